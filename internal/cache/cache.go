// Package cache provides an expiring on-disk content cache keyed by URL.
// It is a best-effort acceleration layer: concurrent writers racing on the
// same key are acceptable and last write wins.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultTTL is how long an entry stays valid.
const DefaultTTL = 24 * time.Hour

// entry is the serialized on-disk record, one file per URL.
type entry struct {
	TS      int64  `json:"ts"`
	Content string `json:"content"`
	Kind    string `json:"kind"`
}

// Cache stores fetched page content under dir, one JSON file per URL hash.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache rooted at dir.
func New(dir string, opts ...Option) *Cache {
	c := &Cache{
		dir: dir,
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives the stable file key for a URL. MD5 is fine here: the key is a
// filename, not a security boundary, and collisions only cost a stale hit.
func Key(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) path(url string) string {
	return filepath.Join(c.dir, Key(url)+".json")
}

// Get returns the cached content and kind for url. An entry older than the
// TTL is treated as absent; the stale file is left in place until Clear.
func (c *Cache) Get(url string) (content, kind string, ok bool) {
	raw, err := os.ReadFile(c.path(url))
	if err != nil {
		return "", "", false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		zap.L().Debug("cache: corrupt entry, treating as miss",
			zap.String("url", url),
			zap.Error(err),
		)
		return "", "", false
	}

	if c.now().Unix()-e.TS >= int64(c.ttl.Seconds()) {
		return "", "", false
	}
	return e.Content, e.Kind, true
}

// Set writes content for url, unconditionally overwriting any prior record.
func (c *Cache) Set(url, content, kind string) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return eris.Wrap(err, "cache: create dir")
	}

	raw, err := json.Marshal(entry{
		TS:      c.now().Unix(),
		Content: content,
		Kind:    kind,
	})
	if err != nil {
		return eris.Wrap(err, "cache: marshal entry")
	}

	if err := os.WriteFile(c.path(url), raw, 0o644); err != nil {
		return eris.Wrap(err, "cache: write entry")
	}
	return nil
}

// Clear removes the entry for url. Returns the number of files removed.
func (c *Cache) Clear(url string) int {
	if err := os.Remove(c.path(url)); err != nil {
		return 0
	}
	return 1
}

// ClearAll removes every entry and returns the count removed.
func (c *Cache) ClearAll() (int, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return 0, eris.Wrap(err, "cache: glob entries")
	}

	count := 0
	for _, path := range matches {
		if err := os.Remove(path); err == nil {
			count++
		}
	}
	return count, nil
}
