// Package view owns the pan/zoom transform and the pointer gesture
// recognizer driving it.
package view

import (
	"github.com/atlasmap-sc/scattergl/internal/tile"
)

// Transform is the pan/zoom state in screen-pixel space: scale K and
// translation X/Y. It is the single shared piece of view state, owned by
// the Controller and read by the plot and renderer every frame.
type Transform struct {
	K float64
	X float64
	Y float64
}

// Identity maps the unit data square exactly onto the canvas.
var Identity = Transform{K: 1}

// Apply maps a normalized data coordinate to screen pixels on a canvas of
// the given size.
func (t Transform) Apply(x, y float64, width, height int) (sx, sy float64) {
	sx = t.X + t.K*float64(width)*x
	sy = t.Y + t.K*float64(height)*y
	return sx, sy
}

// Invert maps a screen pixel back to normalized data coordinates.
func (t Transform) Invert(sx, sy float64, width, height int) (x, y float64) {
	x = (sx - t.X) / (t.K * float64(width))
	y = (sy - t.Y) / (t.K * float64(height))
	return x, y
}

// Viewport returns the visible bounding box in data coordinates.
func (t Transform) Viewport(width, height int) tile.Bounds {
	minX, minY := t.Invert(0, 0, width, height)
	maxX, maxY := t.Invert(float64(width), float64(height), width, height)
	return tile.Bounds{MinX: minX, MaxX: maxX, MinY: minY, MaxY: maxY}
}
