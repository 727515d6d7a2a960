package tile

// Tile is one quadtree node: a key, its derived bounding box, and the
// columnar batch streamed for it. A tile is created as an unloaded
// placeholder the moment its fetch is initiated and becomes loaded when the
// fetch resolves. Tiles are owned exclusively by the store; the renderer
// holds only derived buffers keyed by tile key.
type Tile struct {
	Key Key

	// Data is nil until the tile's fetch resolves.
	Data *Batch

	// Children lists child tile keys, known once the tile's schema
	// metadata has been parsed. Empty for leaves.
	Children []Key

	Loaded bool

	// VisualsVersion is compared against the plot's version counter to
	// decide whether the tile's color buffers are stale.
	VisualsVersion uint64
}

// New creates an unloaded placeholder tile.
func New(key Key) *Tile {
	return &Tile{Key: key}
}

// Bounds returns the tile's bounding box, derived purely from its key.
func (t *Tile) Bounds() Bounds { return t.Key.Bounds() }

// NumRows returns the loaded row count, or 0 for an unloaded tile.
func (t *Tile) NumRows() int {
	if t.Data == nil {
		return 0
	}
	return t.Data.NumRows()
}
