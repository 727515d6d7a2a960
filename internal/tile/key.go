// Package tile defines quadtree tiles and the columnar batches they carry.
package tile

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies a tile's position in the quadtree.
type Key struct {
	Z int // depth
	X int
	Y int
}

// RootKey is the quadtree root, covering the full [0,1]x[0,1] extent.
var RootKey = Key{0, 0, 0}

// ParseKey parses a "z/x/y" key string.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("invalid tile key %q: expected z/x/y", s)
	}

	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return Key{}, fmt.Errorf("invalid tile key %q: %w", s, err)
		}
		if v < 0 {
			return Key{}, fmt.Errorf("invalid tile key %q: negative component", s)
		}
		vals[i] = v
	}

	k := Key{Z: vals[0], X: vals[1], Y: vals[2]}
	perAxis := 1 << k.Z
	if k.X >= perAxis || k.Y >= perAxis {
		return Key{}, fmt.Errorf("invalid tile key %q: coordinates out of range for depth %d", s, k.Z)
	}
	return k, nil
}

// String formats the key as "z/x/y".
func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Z, k.X, k.Y)
}

// Bounds derives the tile's bounding box from the key alone.
// Each depth halves the tile width: width = 1/2^z.
func (k Key) Bounds() Bounds {
	width := 1.0 / float64(int64(1)<<k.Z)
	return Bounds{
		MinX: float64(k.X) * width,
		MaxX: float64(k.X+1) * width,
		MinY: float64(k.Y) * width,
		MaxY: float64(k.Y+1) * width,
	}
}

// Children returns the four child keys at depth z+1.
func (k Key) Children() [4]Key {
	return [4]Key{
		{k.Z + 1, 2 * k.X, 2 * k.Y},
		{k.Z + 1, 2*k.X + 1, 2 * k.Y},
		{k.Z + 1, 2 * k.X, 2*k.Y + 1},
		{k.Z + 1, 2*k.X + 1, 2*k.Y + 1},
	}
}

// Bounds is an axis-aligned box in normalized data coordinates.
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// Intersects reports whether the two boxes overlap.
func (b Bounds) Intersects(o Bounds) bool {
	return b.MinX < o.MaxX && b.MaxX > o.MinX &&
		b.MinY < o.MaxY && b.MaxY > o.MinY
}

// Contains reports whether the point lies inside the box.
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Width returns the horizontal extent of the box.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns the vertical extent of the box.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }
