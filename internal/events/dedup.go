package events

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Dedup suppresses repeats of the same key inside a time window. The window
// is bounded by both ttl and the number of keys kept.
type Dedup struct {
	mu    sync.Mutex
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
	now   func() time.Time
}

func NewDedup(maxKeys int, ttl time.Duration) *Dedup {
	if maxKeys <= 0 {
		maxKeys = 1024
	}
	c, _ := lru.New[string, time.Time](maxKeys)
	return &Dedup{cache: c, ttl: ttl, now: time.Now}
}

// Seen records key and reports whether it was already recorded within ttl.
func (d *Dedup) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if addedAt, ok := d.cache.Get(key); ok && now.Sub(addedAt) < d.ttl {
		return true
	}
	d.cache.Add(key, now)
	return false
}

// Forget drops key so the next Seen reports it as new.
func (d *Dedup) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache.Remove(key)
}

// Key identifies an anomaly independent of its event id. Repeated analysis
// of the same clip by the same console yields the same key.
func Key(e AnomalyEvent) string {
	return fmt.Sprintf("%s|%s|%s|%s", e.ConsoleID, e.FileName, e.Message, e.SceneDescription)
}
