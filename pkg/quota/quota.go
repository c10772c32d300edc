// Package quota caches externally fetched quota utilization behind a
// fixed TTL. It is deliberately outside the store-lock discipline:
// values are read-mostly and staleness is an accepted trade-off for
// fewer external calls.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/charmbracelet/log"
)

// DefaultTTL matches the upstream refresh cadence.
const DefaultTTL = 5 * time.Minute

// Entry is the cached quota view. Utilization values are percentages;
// nil means the upstream did not report that window.
type Entry struct {
	FiveHour  *float64  `json:"five_hour,omitempty"`
	SevenDay  *float64  `json:"seven_day,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (e Entry) hasValues() bool {
	return e.FiveHour != nil || e.SevenDay != nil
}

// Fetcher produces a fresh quota entry on cache miss.
type Fetcher interface {
	Fetch(ctx context.Context) (Entry, error)
}

// Cache is a read-through file-backed TTL cache keyed by a single fixed
// slot (there is only one quota).
type Cache struct {
	path    string
	ttl     time.Duration
	fetcher Fetcher
}

func NewCache(path string, ttl time.Duration, fetcher Fetcher) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{path: path, ttl: ttl, fetcher: fetcher}
}

// Get returns the cached entry while it is fresh, otherwise fetches and
// persists a replacement. A failed fetch degrades to the stale cached
// value when one exists; the second return reports whether the entry
// carries any usable values.
func (c *Cache) Get(ctx context.Context, now time.Time) (Entry, bool) {
	var cached Entry
	if err := loadJSON(c.path, &cached); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("quota cache unreadable", "path", c.path, "error", err)
	}
	if cached.hasValues() && now.Sub(cached.FetchedAt) < c.ttl {
		return cached, true
	}
	if c.fetcher == nil {
		return cached, cached.hasValues()
	}

	fresh, err := c.fetcher.Fetch(ctx)
	if err != nil {
		log.Warn("quota fetch failed, using stale value", "error", err)
		return cached, cached.hasValues()
	}
	fresh.FetchedAt = now
	if err := saveJSON(c.path, fresh); err != nil {
		log.Warn("quota cache write failed", "path", c.path, "error", err)
	}
	return fresh, fresh.hasValues()
}

func loadJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode quota cache: %w", err)
	}
	return nil
}

func saveJSON(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir quota cache dir: %w", err)
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode quota cache: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write quota cache temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename quota cache: %w", err)
	}
	return nil
}
