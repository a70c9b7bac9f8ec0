package alerts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	reloadDebounce = 100 * time.Millisecond
	pollInterval   = 60 * time.Second
)

type catalogFile struct {
	Cards []Card `yaml:"cards"`
}

// Catalog holds the card set new consoles start from. Without a file, or
// while the file is absent, it serves DefaultCards.
type Catalog struct {
	path string
	log  *zap.Logger

	mu      sync.RWMutex
	cards   []Card
	modTime time.Time
}

// NewCatalog loads path once. An unreadable or invalid file is an error;
// a missing one is not.
func NewCatalog(path string, log *zap.Logger) (*Catalog, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Catalog{path: path, log: log, cards: DefaultCards()}
	if path == "" {
		return c, nil
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Cards returns a copy of the current set.
func (c *Catalog) Cards() []Card {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Card(nil), c.cards...)
}

// Reload re-reads the file. On error the previous set is kept.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}

	info, err := os.Stat(c.path)
	if errors.Is(err, os.ErrNotExist) {
		c.log.Warn("alert catalog file missing, serving built-in cards", zap.String("path", c.path))
		c.store(DefaultCards(), time.Time{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat alert catalog: %w", err)
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read alert catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse alert catalog: %w", err)
	}
	if err := validate(f.Cards); err != nil {
		return fmt.Errorf("invalid alert catalog: %w", err)
	}

	c.store(f.Cards, info.ModTime())
	c.log.Info("alert catalog loaded", zap.String("path", c.path), zap.Int("cards", len(f.Cards)))
	return nil
}

func (c *Catalog) reloadIfChanged() {
	info, err := os.Stat(c.path)
	if err == nil {
		c.mu.RLock()
		same := info.ModTime().Equal(c.modTime)
		c.mu.RUnlock()
		if same {
			return
		}
	}
	if err := c.Reload(); err != nil {
		c.log.Error("alert catalog reload failed", zap.Error(err))
	}
}

func (c *Catalog) store(cards []Card, mod time.Time) {
	c.mu.Lock()
	c.cards = cards
	c.modTime = mod
	c.mu.Unlock()
}

// Watch reloads the file when it changes until ctx is done. It watches the
// parent directory so editors that replace the file are seen, and always
// runs a slow poll as a fallback.
func (c *Catalog) Watch(ctx context.Context) {
	if c.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.log.Warn("alert catalog watcher unavailable, polling only", zap.Error(err))
	} else if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		c.log.Warn("alert catalog watch failed, polling only", zap.String("path", c.path), zap.Error(err))
		watcher.Close()
		watcher = nil
	}

	if watcher != nil {
		go c.watchLoop(ctx, watcher)
	}

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.reloadIfChanged()
			}
		}
	}()
}

func (c *Catalog) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	target := filepath.Clean(c.path)
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				debounce = time.After(reloadDebounce)
			}
		case <-debounce:
			debounce = nil
			if err := c.Reload(); err != nil {
				c.log.Error("alert catalog reload failed", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.log.Warn("alert catalog watcher error", zap.Error(err))
		}
	}
}
