package view

import (
	"math"
	"sync"

	"github.com/atlasmap-sc/scattergl/internal/tile"
)

// dragThreshold is the pointer travel in pixels beyond which a gesture is
// treated as a drag, consuming the terminating pointer-up.
const dragThreshold = 3.0

// wheelZoomRate converts wheel delta to an exponential zoom factor.
const wheelZoomRate = 0.002

// Controller recognizes pan/zoom gestures and owns the transform. It
// reports updates on every gesture tick, not only on release, so the store
// and renderer stay synchronized during a drag. A pointer-up already
// consumed by drag handling is never dispatched as a click.
type Controller struct {
	mu sync.Mutex

	t             Transform
	width, height int

	scaleMin float64
	scaleMax float64

	pointerDown bool
	prevented   bool
	downX       float64
	downY       float64
	lastX       float64
	lastY       float64

	onChange func(Transform)
	onClick  func(x, y float64)
}

// NewController creates a controller for a canvas of the given pixel size.
func NewController(width, height int) *Controller {
	return &Controller{
		t:        Identity,
		width:    width,
		height:   height,
		scaleMin: 0.5,
		scaleMax: 4096,
	}
}

// OnChange registers the per-tick transform callback.
func (c *Controller) OnChange(fn func(Transform)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// OnClick registers the click callback, fired only for un-prevented
// pointer-ups.
func (c *Controller) OnClick(fn func(x, y float64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClick = fn
}

// Transform returns the current transform.
func (c *Controller) Transform() Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// PointerDown begins a gesture at screen coordinates.
func (c *Controller) PointerDown(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pointerDown = true
	c.prevented = false
	c.downX, c.downY = x, y
	c.lastX, c.lastY = x, y
}

// PointerMove pans while a gesture is active, reporting the transform on
// every tick once travel exceeds the drag threshold.
func (c *Controller) PointerMove(x, y float64) {
	c.mu.Lock()
	if !c.pointerDown {
		c.mu.Unlock()
		return
	}

	dx := x - c.lastX
	dy := y - c.lastY
	c.lastX, c.lastY = x, y

	if !c.prevented {
		travel := math.Hypot(x-c.downX, y-c.downY)
		if travel < dragThreshold {
			c.mu.Unlock()
			return
		}
		// Drag machinery takes over; the terminating pointer-up is
		// marked handled and will not be a click.
		c.prevented = true
	}

	c.t.X += dx
	c.t.Y += dy
	cb, t := c.onChange, c.t
	c.mu.Unlock()

	if cb != nil {
		cb(t)
	}
}

// PointerUp terminates a gesture. Un-prevented releases dispatch as clicks.
func (c *Controller) PointerUp(x, y float64) {
	c.mu.Lock()
	if !c.pointerDown {
		c.mu.Unlock()
		return
	}
	c.pointerDown = false
	wasPrevented := c.prevented
	c.prevented = false
	click := c.onClick
	c.mu.Unlock()

	if !wasPrevented && click != nil {
		click(x, y)
	}
}

// Wheel zooms about the cursor position. deltaY follows wheel-event
// convention: positive scrolls down and zooms out.
func (c *Controller) Wheel(x, y, deltaY float64) {
	c.mu.Lock()

	k := c.t.K * math.Exp(-deltaY*wheelZoomRate)
	k = math.Min(math.Max(k, c.scaleMin), c.scaleMax)

	// Keep the data point under the cursor fixed.
	ratio := k / c.t.K
	c.t.X = x - (x-c.t.X)*ratio
	c.t.Y = y - (y-c.t.Y)*ratio
	c.t.K = k

	cb, t := c.onChange, c.t
	c.mu.Unlock()

	if cb != nil {
		cb(t)
	}
}

// SetTransform is the sole programmatic entry point, used for
// fit-to-extent. The scale extent is widened first: it would otherwise
// silently clamp an out-of-range k.
func (c *Controller) SetTransform(k, x, y float64) {
	c.mu.Lock()

	if k < c.scaleMin {
		c.scaleMin = k
	}
	if k > c.scaleMax {
		c.scaleMax = k
	}
	c.t = Transform{K: k, X: x, Y: y}

	cb, t := c.onChange, c.t
	c.mu.Unlock()

	if cb != nil {
		cb(t)
	}
}

// FitToExtent computes and applies the transform that centers the given
// data bounds in the canvas with a small margin.
func (c *Controller) FitToExtent(b tile.Bounds) {
	w, h := float64(c.width), float64(c.height)

	span := math.Max(b.Width(), b.Height())
	if span <= 0 {
		span = 1
	}
	k := 0.9 / span

	cx := (b.MinX + b.MaxX) / 2
	cy := (b.MinY + b.MaxY) / 2
	x := w/2 - k*w*cx
	y := h/2 - k*h*cy

	c.SetTransform(k, x, y)
}

// CanvasSize returns the canvas dimensions the controller was bound to.
func (c *Controller) CanvasSize() (int, int) {
	return c.width, c.height
}
