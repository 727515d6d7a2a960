package tileset

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/atlasmap-sc/scattergl/internal/tile"
)

// Fetcher fetches one tile's batch and child keys.
type Fetcher interface {
	FetchTile(ctx context.Context, key tile.Key) (*tile.Batch, []tile.Key, error)
}

// Store owns the full tile registry and drives loading from quadtree
// traversal against the current viewport. There is no eviction: loaded
// tiles accumulate for the session lifetime. The loader's byte cache is
// bounded; decoded tiles are not.
type Store struct {
	fetcher Fetcher

	mu       sync.Mutex
	tiles    map[tile.Key]*tile.Tile
	inflight map[tile.Key]struct{}

	// onLoad fires after a tile transitions to loaded, outside the lock.
	onLoad func(*tile.Tile)
}

// NewStore creates a store backed by the given fetcher.
func NewStore(fetcher Fetcher) *Store {
	return &Store{
		fetcher:  fetcher,
		tiles:    make(map[tile.Key]*tile.Tile),
		inflight: make(map[tile.Key]struct{}),
	}
}

// NewStoreWithRoot creates a store pre-seeded with an already-loaded root
// tile (the in-memory import path). No fetcher is consulted.
func NewStoreWithRoot(root *tile.Tile) *Store {
	s := NewStore(nil)
	root.Loaded = true
	s.tiles[root.Key] = root
	return s
}

// OnLoad registers a callback fired whenever a tile finishes loading.
func (s *Store) OnLoad(fn func(*tile.Tile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLoad = fn
}

// Update traverses the quadtree against the viewport, requesting loads for
// missing-but-needed tiles. Descent stops at unknown tiles (children are
// not known until the tile's metadata is parsed), at unloaded placeholders,
// and at tiles whose bounds do not intersect the viewport.
func (s *Store) Update(ctx context.Context, viewport tile.Bounds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visit(ctx, tile.RootKey, viewport)
}

func (s *Store) visit(ctx context.Context, key tile.Key, viewport tile.Bounds) {
	t, known := s.tiles[key]
	if !known {
		s.requestLocked(ctx, key)
		return
	}
	if !t.Loaded {
		return
	}
	if !t.Bounds().Intersects(viewport) {
		return
	}
	for _, child := range t.Children {
		if child.Bounds().Intersects(viewport) {
			s.visit(ctx, child, viewport)
		}
	}
}

// requestLocked registers an unloaded placeholder and starts the fetch.
// A key already in flight is a no-op. On failure the placeholder is
// deleted so a future traversal pass retries it.
func (s *Store) requestLocked(ctx context.Context, key tile.Key) {
	if _, loading := s.inflight[key]; loading {
		return
	}
	s.inflight[key] = struct{}{}
	s.tiles[key] = tile.New(key)

	go func() {
		batch, children, err := s.fetcher.FetchTile(ctx, key)

		s.mu.Lock()
		delete(s.inflight, key)
		if err != nil {
			delete(s.tiles, key)
			s.mu.Unlock()
			log.Printf("tile %s load failed: %v", key, err)
			return
		}
		t := s.tiles[key]
		if t == nil {
			// Registry entry vanished while in flight; keep the result.
			t = tile.New(key)
			s.tiles[key] = t
		}
		t.Data = batch
		t.Children = children
		t.Loaded = true
		cb := s.onLoad
		s.mu.Unlock()

		if cb != nil {
			cb(t)
		}
	}()
}

// Tiles returns all currently-loaded tiles regardless of the viewport;
// the renderer culls by bounds at draw time. Order is deterministic,
// coarsest first.
func (s *Store) Tiles() []*tile.Tile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*tile.Tile, 0, len(s.tiles))
	for _, t := range s.tiles {
		if t.Loaded {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
	return out
}

// Root returns the root tile if it is loaded.
func (s *Store) Root() (*tile.Tile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tiles[tile.RootKey]
	if !ok || !t.Loaded {
		return nil, false
	}
	return t, true
}

// Len reports the number of registry entries, loaded or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tiles)
}
