package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/fogleman/gg"

	"github.com/atlasmap-sc/scattergl/internal/tile"
	"github.com/atlasmap-sc/scattergl/internal/view"
)

// DefaultPointColor is the grey level points are drawn with until a color
// scale is bound, and again after the scale is cleared. Dark enough to
// stay visible on the default white background.
const DefaultPointColor float32 = 0.25

// Config contains renderer configuration.
type Config struct {
	// PointSize is the drawn point radius in pixels.
	PointSize float64

	// Background fills the frame before drawing. Zero value means white.
	Background color.RGBA
}

// drawState holds the derived buffers for one initialized tile. The
// renderer never holds the tile itself, only buffers keyed by tile key.
type drawState struct {
	rows      int
	positions []float32 // 2 floats per point
	colors    []float32 // comps floats per point
	comps     int       // 3 (RGB) or 4 (RGBA)
	ids       []byte    // 4 bytes per point, little-endian id
	mask      *roaring.Bitmap
}

// highlight marks the currently locked point.
type highlight struct {
	key   tile.Key
	index int
}

// Renderer owns the frame and picking framebuffers and the tile-to-buffer
// lifecycle, and performs the draw and picking passes.
type Renderer struct {
	cfg  Config
	pool *BufferPool

	mu     sync.Mutex
	states map[tile.Key]*drawState
	locked *highlight

	// Offscreen picking framebuffer, reallocated when the frame size
	// changes.
	pick *image.RGBA
}

// New creates a renderer.
func New(cfg Config) *Renderer {
	if cfg.PointSize <= 0 {
		cfg.PointSize = 1.5
	}
	if cfg.Background == (color.RGBA{}) {
		cfg.Background = color.RGBA{255, 255, 255, 255}
	}
	return &Renderer{
		cfg:    cfg,
		pool:   NewBufferPool(),
		states: make(map[tile.Key]*drawState),
	}
}

// InitTile allocates the position and id buffers for a newly loaded tile
// and binds a solid default-grey color buffer. A tile missing its x/y columns is
// rejected with an error and never crashes the draw loop: render and pick
// simply skip uninitialized tiles.
func (r *Renderer) InitTile(t *tile.Tile) error {
	if t.Data == nil {
		return fmt.Errorf("tile %s has no data", t.Key)
	}

	xs, ok := t.Data.Column("x")
	if !ok || xs.Kind != tile.KindNumeric {
		return fmt.Errorf("tile %s missing numeric x column", t.Key)
	}
	ys, ok := t.Data.Column("y")
	if !ok || ys.Kind != tile.KindNumeric {
		return fmt.Errorf("tile %s missing numeric y column", t.Key)
	}

	rows := t.Data.NumRows()
	key := t.Key.String()

	positions := r.pool.AcquireFloats(BufferKey(key, "position"), 2*rows)
	for i := 0; i < rows; i++ {
		positions[2*i] = float32(xs.Floats[i])
		positions[2*i+1] = float32(ys.Floats[i])
	}

	// 1-based point ids, little-endian RGBA; id 0 is reserved for
	// background.
	ids := r.pool.AcquireBytes(BufferKey(key, "id"), 4*rows)
	for i := 0; i < rows; i++ {
		px := EncodeID(i)
		copy(ids[4*i:], px[:])
	}

	colors := r.pool.AcquireFloats(BufferKey(key, "color"), 3*rows)
	for i := range colors {
		colors[i] = DefaultPointColor
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[t.Key] = &drawState{
		rows:      rows,
		positions: positions,
		colors:    colors,
		comps:     3,
		ids:       ids,
	}
	return nil
}

// HasTile reports whether a tile's buffers are initialized.
func (r *Renderer) HasTile(key tile.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.states[key]
	return ok
}

// RemoveTile releases a tile's buffers back to the pool.
func (r *Renderer) RemoveTile(key tile.Key) {
	r.mu.Lock()
	delete(r.states, key)
	if r.locked != nil && r.locked.key == key {
		r.locked = nil
	}
	r.mu.Unlock()
	r.pool.Release(key.String())
}

// UpdateAesthetics re-uploads only the color buffer for a tile. The
// component count is inferred from the buffer length: RGB and RGBA are
// both tolerated, anything else is rejected.
func (r *Renderer) UpdateAesthetics(t *tile.Tile, colors []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[t.Key]
	if !ok {
		return fmt.Errorf("tile %s not initialized", t.Key)
	}
	if st.rows == 0 {
		return nil
	}
	if len(colors)%st.rows != 0 {
		return fmt.Errorf("color buffer length %d not divisible by %d rows", len(colors), st.rows)
	}

	comps := len(colors) / st.rows
	if comps != 3 && comps != 4 {
		return fmt.Errorf("unsupported color component count %d", comps)
	}

	// The pool rebinds the same backing array st.colors already points
	// at, so the copy must stay under r.mu or a concurrent draw observes
	// a half-written buffer.
	buf := r.pool.AcquireFloats(BufferKey(t.Key.String(), "color"), len(colors))
	copy(buf, colors)
	st.colors = buf
	st.comps = comps
	return nil
}

// SetMask installs the visibility bitmask for a tile. Masked-out rows are
// skipped by both the draw and the picking pass. nil clears the mask.
func (r *Renderer) SetMask(key tile.Key, mask *roaring.Bitmap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[key]; ok {
		st.mask = mask
	}
}

// SetHighlight locks the marker onto one point.
func (r *Renderer) SetHighlight(key tile.Key, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = &highlight{key: key, index: index}
}

// ClearHighlight removes the locked marker.
func (r *Renderer) ClearHighlight() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = nil
}

// Render draws the frame: background, decimal grid, one point pass per
// visible initialized tile, and the highlight marker.
func (r *Renderer) Render(tiles []*tile.Tile, width, height int, tr view.Transform) *image.RGBA {
	dc := gg.NewContext(width, height)
	bg := r.cfg.Background
	dc.SetRGBA255(int(bg.R), int(bg.G), int(bg.B), int(bg.A))
	dc.Clear()

	r.drawGrid(dc, width, height, tr)

	viewport := tr.Viewport(width, height)
	size := r.cfg.PointSize

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tiles {
		st, ok := r.states[t.Key]
		if !ok {
			continue
		}
		if !t.Bounds().Intersects(viewport) {
			continue
		}

		for i := 0; i < st.rows; i++ {
			if st.mask != nil && !st.mask.Contains(uint32(i)) {
				continue
			}

			sx, sy := tr.Apply(float64(st.positions[2*i]), float64(st.positions[2*i+1]), width, height)
			if sx < -size || sy < -size || sx > float64(width)+size || sy > float64(height)+size {
				continue
			}

			c := st.colors[st.comps*i:]
			if st.comps == 4 {
				dc.SetRGBA(float64(c[0]), float64(c[1]), float64(c[2]), float64(c[3]))
			} else {
				dc.SetRGB(float64(c[0]), float64(c[1]), float64(c[2]))
			}
			dc.DrawPoint(sx, sy, size)
			dc.Fill()
		}
	}

	if r.locked != nil {
		if st, ok := r.states[r.locked.key]; ok && r.locked.index < st.rows {
			i := r.locked.index
			sx, sy := tr.Apply(float64(st.positions[2*i]), float64(st.positions[2*i+1]), width, height)
			dc.SetRGB(0.9, 0.2, 0.2)
			dc.SetLineWidth(2)
			dc.DrawCircle(sx, sy, size+4)
			dc.Stroke()
		}
	}

	return dc.Image().(*image.RGBA)
}

// gridSpacing is the grid line spacing in data units at zoom k:
// 10^-floor(log10(k)), one decade finer for each decade of zoom-in.
func gridSpacing(k float64) float64 {
	return math.Pow(10, -math.Floor(math.Log10(k)))
}

// drawGrid draws the procedural background grid. Lines sit at data-space
// multiples of the spacing, which keeps them anchored during pan.
func (r *Renderer) drawGrid(dc *gg.Context, width, height int, tr view.Transform) {
	spacing := gridSpacing(tr.K)
	vp := tr.Viewport(width, height)

	dc.SetRGBA(0, 0, 0, 0.08)
	dc.SetLineWidth(1)

	for x := math.Ceil(vp.MinX/spacing) * spacing; x <= vp.MaxX; x += spacing {
		sx, _ := tr.Apply(x, 0, width, height)
		dc.DrawLine(sx, 0, sx, float64(height))
		dc.Stroke()
	}
	for y := math.Ceil(vp.MinY/spacing) * spacing; y <= vp.MaxY; y += spacing {
		_, sy := tr.Apply(0, y, width, height)
		dc.DrawLine(0, sy, float64(width), sy)
		dc.Stroke()
	}
}

// Pick renders tiles into the offscreen picking framebuffer with
// id-encoded colors and reads back the single pixel under the cursor
// after each tile's draw. Tiles draw finest-grained first so more specific
// tiles win ties. The readback is synchronous by construction: acceptable
// for hover/click, never for per-frame use.
func (r *Renderer) Pick(x, y int, tiles []*tile.Tile, width, height int, tr view.Transform) (tile.Key, int, bool) {
	if x < 0 || y < 0 || x >= width || y >= height {
		return tile.Key{}, NoHit, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pick == nil || r.pick.Bounds().Dx() != width || r.pick.Bounds().Dy() != height {
		r.pick = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	clearImage(r.pick)

	ordered := make([]*tile.Tile, 0, len(tiles))
	for _, t := range tiles {
		if _, ok := r.states[t.Key]; ok {
			ordered = append(ordered, t)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Key.Z > ordered[j].Key.Z
	})

	half := int(math.Ceil(r.cfg.PointSize))
	if half < 1 {
		half = 1
	}

	for _, t := range ordered {
		st := r.states[t.Key]
		for i := 0; i < st.rows; i++ {
			if st.mask != nil && !st.mask.Contains(uint32(i)) {
				continue
			}

			sx, sy := tr.Apply(float64(st.positions[2*i]), float64(st.positions[2*i+1]), width, height)
			cx, cy := int(math.Round(sx)), int(math.Round(sy))
			if cx < x-half || cx > x+half || cy < y-half || cy > y+half {
				// Cheap reject: only rasterize near the cursor, the
				// readback is a single pixel anyway.
				continue
			}

			px := st.ids[4*i : 4*i+4]
			for dy := -half; dy <= half; dy++ {
				for dx := -half; dx <= half; dx++ {
					qx, qy := cx+dx, cy+dy
					if qx < 0 || qy < 0 || qx >= width || qy >= height {
						continue
					}
					o := r.pick.PixOffset(qx, qy)
					copy(r.pick.Pix[o:o+4], px)
				}
			}
		}

		// Readback after this tile's draw.
		o := r.pick.PixOffset(x, y)
		if idx := DecodeID(r.pick.Pix[o], r.pick.Pix[o+1], r.pick.Pix[o+2]); idx != NoHit {
			return t.Key, idx, true
		}
	}

	return tile.Key{}, NoHit, false
}

func clearImage(img *image.RGBA) {
	for i := range img.Pix {
		img.Pix[i] = 0
	}
}
