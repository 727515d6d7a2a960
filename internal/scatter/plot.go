// Package scatter ties the tile store, view controller, color and filter
// managers, and renderer together into one interactive plot.
package scatter

import (
	"context"
	"fmt"
	"image"
	"log"
	"net/http"
	"sync"

	"github.com/atlasmap-sc/scattergl/internal/aesthetics"
	"github.com/atlasmap-sc/scattergl/internal/dataload"
	"github.com/atlasmap-sc/scattergl/internal/filter"
	"github.com/atlasmap-sc/scattergl/internal/render"
	"github.com/atlasmap-sc/scattergl/internal/tile"
	"github.com/atlasmap-sc/scattergl/internal/tileset"
	"github.com/atlasmap-sc/scattergl/internal/view"
)

// Config configures a plot.
type Config struct {
	// BaseURL is the tile endpoint for remote datasets. Empty for the
	// in-memory import path.
	BaseURL string

	// DefaultColumn is colored by on open when set. The dataset
	// descriptor's default wins when this is empty.
	DefaultColumn string

	Width, Height int
	PointSize     float64
	Colormap      string

	// TileCacheMB sizes the loader's raw byte cache.
	TileCacheMB   int
	MaxConcurrent int
}

func (c *Config) applyDefaults() {
	if c.Width <= 0 {
		c.Width = 800
	}
	if c.Height <= 0 {
		c.Height = 600
	}
	if c.Colormap == "" {
		c.Colormap = "viridis"
	}
}

// Hit is a resolved pick result.
type Hit struct {
	Key   tile.Key
	Index int
	Row   map[string]any
}

// Plot is the top-level interactive scatterplot. All mutating entry
// points bump an internal visuals version; Frame lazily refreshes any
// tile whose buffers are older than the current version.
type Plot struct {
	cfg Config

	store      *tileset.Store
	loader     *tileset.Loader
	desc       *dataload.Descriptor
	controller *view.Controller
	renderer   *render.Renderer
	colors     *aesthetics.Manager
	filters    *filter.Manager

	mu      sync.Mutex
	scale   *aesthetics.Scale
	version uint64
	failed  map[tile.Key]struct{}
	locked  *Hit
	dirty   bool

	// prepMu serializes prepareTiles: tile VisualsVersion and the
	// renderer buffer uploads have no other guard.
	prepMu sync.Mutex
}

func newPlot(cfg Config, store *tileset.Store, loader *tileset.Loader, desc *dataload.Descriptor) *Plot {
	cfg.applyDefaults()

	p := &Plot{
		cfg:        cfg,
		store:      store,
		loader:     loader,
		desc:       desc,
		controller: view.NewController(cfg.Width, cfg.Height),
		renderer:   render.New(render.Config{PointSize: cfg.PointSize}),
		colors:     aesthetics.NewManager(cfg.Colormap),
		filters:    filter.NewManager(),
		version:    1,
		failed:     make(map[tile.Key]struct{}),
	}

	store.OnLoad(func(*tile.Tile) { p.markDirty() })
	p.controller.OnChange(func(tr view.Transform) {
		p.markDirty()
		store.Update(context.Background(), tr.Viewport(cfg.Width, cfg.Height))
	})
	p.controller.OnClick(p.handleClick)
	return p
}

// Open creates a plot over a remote tiled dataset. The descriptor is
// fetched best-effort and the root tile load is kicked off immediately.
func Open(ctx context.Context, cfg Config) (*Plot, error) {
	cfg.applyDefaults()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("open: base URL required")
	}

	loader, err := tileset.NewLoader(tileset.LoaderConfig{
		BaseURL:       cfg.BaseURL,
		MaxConcurrent: cfg.MaxConcurrent,
		ByteCacheMB:   cfg.TileCacheMB,
	})
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	desc := dataload.FetchDescriptor(ctx, http.DefaultClient, cfg.BaseURL)
	p := newPlot(cfg, tileset.NewStore(loader), loader, desc)

	column := cfg.DefaultColumn
	if column == "" && desc != nil {
		column = desc.DefaultColumn
	}
	if column != "" {
		p.store.OnLoad(func(t *tile.Tile) {
			p.markDirty()
			p.mu.Lock()
			needColor := p.scale == nil
			p.mu.Unlock()
			if needColor && t.Key == tile.RootKey {
				if err := p.ColorBy(column); err != nil {
					log.Printf("default color by %q: %v", column, err)
				}
			}
		})
	}

	p.Update(ctx)
	return p, nil
}

// FromRows creates a plot over in-memory row data: a single pre-loaded
// root tile with normalized coordinates, no tile fetching.
func FromRows(cfg Config, rows []map[string]any, xField, yField string) (*Plot, error) {
	root, desc, err := dataload.FromRows(rows, xField, yField)
	if err != nil {
		return nil, fmt.Errorf("from rows: %w", err)
	}
	p := newPlot(cfg, tileset.NewStoreWithRoot(root), nil, desc)
	p.markDirty()
	return p, nil
}

// Close releases the loader's resources.
func (p *Plot) Close() error {
	if p.loader != nil {
		return p.loader.Close()
	}
	return nil
}

// Controller exposes the gesture controller for UI event wiring.
func (p *Plot) Controller() *view.Controller { return p.controller }

// Descriptor returns the dataset descriptor, which may be nil.
func (p *Plot) Descriptor() *dataload.Descriptor { return p.desc }

// Update runs one tile traversal pass against the current viewport.
func (p *Plot) Update(ctx context.Context) {
	tr := p.controller.Transform()
	p.store.Update(ctx, tr.Viewport(p.cfg.Width, p.cfg.Height))
}

// Columns lists the colorable column names: descriptor metadata when
// available, otherwise the root tile's columns minus the coordinates.
func (p *Plot) Columns() []string {
	if p.desc != nil && len(p.desc.Columns) > 0 {
		out := make([]string, 0, len(p.desc.Columns))
		for _, c := range p.desc.Columns {
			out = append(out, c.Name)
		}
		return out
	}
	root, ok := p.store.Root()
	if !ok || root.Data == nil {
		return nil
	}
	var out []string
	for _, name := range root.Data.ColumnNames() {
		if name == "x" || name == "y" {
			continue
		}
		out = append(out, name)
	}
	return out
}

// ColorBy switches the active color encoding to the given field. The
// scale kind comes from descriptor metadata when present, otherwise from
// the field's column kind in loaded tiles.
func (p *Plot) ColorBy(field string) error {
	tiles := p.store.Tiles()
	meta, _ := p.desc.Column(field)

	var (
		scale *aesthetics.Scale
		err   error
	)
	switch {
	case meta != nil && meta.Categorical:
		scale, err = p.colors.CategoricalScale(field, meta.Categories, tiles)
	case meta != nil && meta.Numeric:
		scale, err = p.colors.NumericScale(field, meta, tiles)
	default:
		kind, found := columnKind(field, tiles)
		if !found {
			return fmt.Errorf("color by %q: column not found in loaded tiles", field)
		}
		if kind == tile.KindCategorical {
			scale, err = p.colors.CategoricalScale(field, nil, tiles)
		} else {
			scale, err = p.colors.NumericScale(field, nil, tiles)
		}
	}
	if err != nil {
		return fmt.Errorf("color by %q: %w", field, err)
	}

	p.mu.Lock()
	p.scale = scale
	p.version++
	p.dirty = true
	p.mu.Unlock()
	return nil
}

// ClearColor reverts every point to the default solid color.
func (p *Plot) ClearColor() {
	p.mu.Lock()
	p.scale = nil
	p.version++
	p.dirty = true
	p.mu.Unlock()
}

// Version returns the visuals version counter. It changes whenever the
// color encoding or filter set changes, so callers can fingerprint the
// plot state for caching.
func (p *Plot) Version() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// Scale returns the active color scale, nil when none is set.
func (p *Plot) Scale() *aesthetics.Scale {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scale
}

// SetFilter installs a filter, replacing any existing one on its field.
func (p *Plot) SetFilter(f filter.Filter) {
	p.filters.Set(f)
	p.bumpVisuals()
}

// ClearFilter removes the filter on one field.
func (p *Plot) ClearFilter(field string) {
	p.filters.Clear(field)
	p.bumpVisuals()
}

// ClearFilters removes every active filter.
func (p *Plot) ClearFilters() {
	p.filters.ClearAll()
	p.bumpVisuals()
}

// Filters returns the active filter set.
func (p *Plot) Filters() []filter.Filter { return p.filters.Active() }

// UniqueValues lists the distinct values of a categorical field.
// Descriptor metadata is authoritative when present; otherwise loaded
// tiles are scanned. Returns nil for unknown or non-categorical fields.
func (p *Plot) UniqueValues(field string) []string {
	if meta, ok := p.desc.Column(field); ok && meta.Categorical && len(meta.Categories) > 0 {
		out := make([]string, len(meta.Categories))
		copy(out, meta.Categories)
		return out
	}
	values := filter.UniqueValues(field, p.store.Tiles())
	if len(values) == 0 {
		return nil
	}
	return values
}

func (p *Plot) bumpVisuals() {
	p.mu.Lock()
	p.version++
	p.dirty = true
	p.mu.Unlock()
}

func (p *Plot) markDirty() {
	p.mu.Lock()
	p.dirty = true
	p.mu.Unlock()
}

// Dirty reports whether anything changed since the last Frame, so a
// render loop can skip redundant redraws.
func (p *Plot) Dirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty
}

// Frame renders the current state. New tiles get their buffers
// initialized here; tiles with stale visuals get colors and masks
// recomputed. A tile that fails initialization is logged and excluded
// from future frames.
func (p *Plot) Frame() *image.RGBA {
	tiles := p.prepareTiles()
	tr := p.controller.Transform()

	p.mu.Lock()
	p.dirty = false
	p.mu.Unlock()

	return p.renderer.Render(tiles, p.cfg.Width, p.cfg.Height, tr)
}

// PickAt resolves the point at a screen position, if any.
func (p *Plot) PickAt(x, y int) (Hit, bool) {
	tiles := p.prepareTiles()
	tr := p.controller.Transform()

	key, idx, ok := p.renderer.Pick(x, y, tiles, p.cfg.Width, p.cfg.Height, tr)
	if !ok {
		return Hit{}, false
	}
	hit := Hit{Key: key, Index: idx}
	for _, t := range tiles {
		if t.Key == key && t.Data != nil {
			hit.Row = t.Data.Row(idx)
			break
		}
	}
	return hit, true
}

// Locked returns the point currently locked by a click, if any.
func (p *Plot) Locked() (Hit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locked == nil {
		return Hit{}, false
	}
	return *p.locked, true
}

// handleClick locks the highlight onto the clicked point. Clicking the
// locked point again, or empty space, unlocks.
func (p *Plot) handleClick(x, y float64) {
	hit, ok := p.PickAt(int(x), int(y))

	p.mu.Lock()
	same := ok && p.locked != nil && p.locked.Key == hit.Key && p.locked.Index == hit.Index
	if !ok || same {
		p.locked = nil
	} else {
		p.locked = &hit
	}
	lock := p.locked
	p.dirty = true
	p.mu.Unlock()

	if lock == nil {
		p.renderer.ClearHighlight()
		return
	}
	p.renderer.SetHighlight(lock.Key, lock.Index)
}

// FitToExtent resets the view to frame the full dataset.
func (p *Plot) FitToExtent() {
	p.controller.FitToExtent(tile.RootKey.Bounds())
}

// prepareTiles syncs renderer buffers with the store: initializes newly
// loaded tiles and refreshes any tile whose visuals are stale.
func (p *Plot) prepareTiles() []*tile.Tile {
	p.prepMu.Lock()
	defer p.prepMu.Unlock()

	tiles := p.store.Tiles()

	p.mu.Lock()
	version := p.version
	scale := p.scale
	p.mu.Unlock()

	kept := tiles[:0]
	for _, t := range tiles {
		p.mu.Lock()
		_, bad := p.failed[t.Key]
		p.mu.Unlock()
		if bad {
			continue
		}

		if !p.renderer.HasTile(t.Key) {
			if err := p.renderer.InitTile(t); err != nil {
				log.Printf("tile %s init failed: %v", t.Key, err)
				p.mu.Lock()
				p.failed[t.Key] = struct{}{}
				p.mu.Unlock()
				continue
			}
		}

		if t.VisualsVersion != version {
			p.refreshTile(t, scale)
			t.VisualsVersion = version
		}
		kept = append(kept, t)
	}
	return kept
}

func (p *Plot) refreshTile(t *tile.Tile, scale *aesthetics.Scale) {
	rows := t.NumRows()
	if rows > 0 {
		var buf []float32
		if scale != nil {
			buf = p.colors.Apply(t, scale)
		} else {
			buf = solidDefault(rows)
		}
		if err := p.renderer.UpdateAesthetics(t, buf); err != nil {
			log.Printf("tile %s color update failed: %v", t.Key, err)
		}
	}

	if p.filters.Empty() {
		p.renderer.SetMask(t.Key, nil)
	} else {
		p.renderer.SetMask(t.Key, p.filters.Mask(t))
	}
}

func solidDefault(rows int) []float32 {
	buf := make([]float32, 3*rows)
	for i := range buf {
		buf[i] = render.DefaultPointColor
	}
	return buf
}

func columnKind(field string, tiles []*tile.Tile) (tile.ColumnKind, bool) {
	for _, t := range tiles {
		if t.Data == nil {
			continue
		}
		if col, ok := t.Data.Column(field); ok {
			return col.Kind, true
		}
	}
	return 0, false
}
