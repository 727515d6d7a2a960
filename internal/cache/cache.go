// Package cache provides caching for raw tile bytes and encoded frames.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// TileBytes caches raw encoded tile responses keyed by URL, so a tile
// re-requested after a transient parse failure or registry removal skips
// the network.
type TileBytes struct {
	c *bigcache.BigCache
}

// NewTileBytes creates a byte cache bounded to sizeMB. A zero or
// negative ttl defaults to ten minutes.
func NewTileBytes(sizeMB int, ttl time.Duration) (*TileBytes, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	cfg := bigcache.Config{
		Shards:             64,
		LifeWindow:         ttl,
		CleanWindow:        ttl / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       4 * 1024 * 1024,
		HardMaxCacheSize:   sizeMB,
		Verbose:            false,
	}
	c, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile byte cache: %w", err)
	}
	return &TileBytes{c: c}, nil
}

// Get retrieves cached tile bytes.
func (t *TileBytes) Get(key string) ([]byte, bool) {
	data, err := t.c.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores tile bytes.
func (t *TileBytes) Set(key string, data []byte) error {
	return t.c.Set(key, data)
}

// Len returns the number of cached entries.
func (t *TileBytes) Len() int {
	return t.c.Len()
}

// Close releases the cache.
func (t *TileBytes) Close() error {
	return t.c.Close()
}

// Frames is a bounded LRU of PNG-encoded frames keyed by plot state
// fingerprint.
type Frames struct {
	c *lru.Cache[string, []byte]
}

// NewFrames creates a frame cache holding size entries.
func NewFrames(size int) (*Frames, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame cache: %w", err)
	}
	return &Frames{c: c}, nil
}

// Get retrieves a cached frame.
func (f *Frames) Get(key string) ([]byte, bool) {
	return f.c.Get(key)
}

// Add stores a frame.
func (f *Frames) Add(key string, data []byte) {
	f.c.Add(key, data)
}

// Len returns the number of cached frames.
func (f *Frames) Len() int {
	return f.c.Len()
}
