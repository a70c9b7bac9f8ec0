package console

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/technosupport/ts-console/internal/metrics"
)

var ErrNotFound = errors.New("console not found")

// Registry keeps the most recently used consoles. When full, the least
// recently used console is evicted and closed.
type Registry struct {
	cache *lru.Cache[string, *Console]
	deps  Deps
	log   *zap.Logger
	// dropped maps ids leaving by Remove or Close to their log message;
	// anything else leaving the cache was evicted.
	dropped sync.Map
}

func NewRegistry(maxConsoles int, deps Deps) (*Registry, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{deps: deps, log: log}

	cache, err := lru.NewWithEvict(maxConsoles, func(id string, c *Console) {
		c.Close()
		msg := "console evicted"
		if m, ok := r.dropped.LoadAndDelete(id); ok {
			msg = m.(string)
		}
		log.Info(msg, zap.String("console_id", id))
	})
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r, nil
}

func (r *Registry) Create() *Console {
	c := New(uuid.NewString(), r.deps)
	r.cache.Add(c.ID(), c)
	metrics.ConsolesActive.Set(float64(r.cache.Len()))
	r.log.Info("console created", zap.String("console_id", c.ID()))
	return c
}

// Get returns the console and marks it recently used.
func (r *Registry) Get(id string) (*Console, error) {
	c, ok := r.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (r *Registry) Remove(id string) error {
	r.dropped.Store(id, "console removed")
	if !r.cache.Remove(id) {
		r.dropped.Delete(id)
		return ErrNotFound
	}
	metrics.ConsolesActive.Set(float64(r.cache.Len()))
	return nil
}

func (r *Registry) Len() int {
	return r.cache.Len()
}

// Close closes every console and waits for their in-flight work.
func (r *Registry) Close() {
	consoles := r.cache.Values()
	for _, c := range consoles {
		r.dropped.Store(c.ID(), "console closed on shutdown")
	}
	r.cache.Purge()
	for _, c := range consoles {
		c.Wait()
	}
	metrics.ConsolesActive.Set(0)
}
