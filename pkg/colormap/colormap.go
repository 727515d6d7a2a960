// Package colormap provides gradient and categorical color schemes for
// point rendering.
package colormap

// RGB is a color with float components in [0,1], the form uploaded into
// per-point color buffers.
type RGB [3]float32

// Gray is the fallback color for missing columns and non-finite values.
var Gray = RGB{0.5, 0.5, 0.5}

// Gradient maps normalized values [0,1] onto an ordered list of stops by
// linear interpolation.
type Gradient struct {
	name  string
	stops []RGB
}

// Name returns the gradient's registered name.
func (g Gradient) Name() string { return g.name }

// At returns the interpolated color at position t. Out-of-range t clamps
// to the first or last stop.
func (g Gradient) At(t float64) RGB {
	if t <= 0 {
		return g.stops[0]
	}
	if t >= 1 {
		return g.stops[len(g.stops)-1]
	}

	idx := t * float64(len(g.stops)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(g.stops) {
		upper = len(g.stops) - 1
	}

	frac := float32(idx - float64(lower))
	a, b := g.stops[lower], g.stops[upper]
	return RGB{
		a[0] + frac*(b[0]-a[0]),
		a[1] + frac*(b[1]-a[1]),
		a[2] + frac*(b[2]-a[2]),
	}
}

// Midpoint returns the color at the center of the gradient, used for
// degenerate (zero-span) numeric domains.
func (g Gradient) Midpoint() RGB { return g.At(0.5) }

func rgb8(r, g, b uint8) RGB {
	return RGB{float32(r) / 255, float32(g) / 255, float32(b) / 255}
}

// Viridis colormap (matplotlib viridis)
var Viridis = Gradient{name: "viridis", stops: []RGB{
	rgb8(68, 1, 84),
	rgb8(72, 35, 116),
	rgb8(64, 67, 135),
	rgb8(52, 94, 141),
	rgb8(41, 120, 142),
	rgb8(32, 144, 140),
	rgb8(34, 167, 132),
	rgb8(68, 190, 112),
	rgb8(121, 209, 81),
	rgb8(189, 222, 38),
	rgb8(253, 231, 37),
}}

// Plasma colormap
var Plasma = Gradient{name: "plasma", stops: []RGB{
	rgb8(13, 8, 135),
	rgb8(75, 3, 161),
	rgb8(125, 3, 168),
	rgb8(168, 34, 150),
	rgb8(203, 70, 121),
	rgb8(229, 107, 93),
	rgb8(248, 148, 65),
	rgb8(253, 195, 40),
	rgb8(240, 249, 33),
}}

// Inferno colormap
var Inferno = Gradient{name: "inferno", stops: []RGB{
	rgb8(0, 0, 4),
	rgb8(40, 11, 84),
	rgb8(101, 21, 110),
	rgb8(159, 42, 99),
	rgb8(212, 72, 66),
	rgb8(245, 125, 21),
	rgb8(250, 193, 39),
	rgb8(252, 255, 164),
}}

// Magma colormap
var Magma = Gradient{name: "magma", stops: []RGB{
	rgb8(0, 0, 4),
	rgb8(28, 16, 68),
	rgb8(79, 18, 123),
	rgb8(129, 37, 129),
	rgb8(181, 54, 122),
	rgb8(229, 80, 100),
	rgb8(251, 135, 97),
	rgb8(254, 194, 135),
	rgb8(252, 253, 191),
}}

var gradients = map[string]Gradient{
	"viridis": Viridis,
	"plasma":  Plasma,
	"inferno": Inferno,
	"magma":   Magma,
}

// ByName looks up a gradient by its registered name.
func ByName(name string) (Gradient, bool) {
	g, ok := gradients[name]
	return g, ok
}

// Palette provides indexed colors for categorical values, wrapping around
// once categories exceed the palette size.
type Palette struct {
	colors []RGB
}

// AtIndex returns the color for category index i.
func (p Palette) AtIndex(i int) RGB {
	if i < 0 {
		return Gray
	}
	return p.colors[i%len(p.colors)]
}

// Len returns the palette size before wraparound.
func (p Palette) Len() int { return len(p.colors) }

// Categorical is the fixed 10-color categorical palette.
var Categorical = Palette{colors: []RGB{
	rgb8(31, 119, 180),  // Blue
	rgb8(255, 127, 14),  // Orange
	rgb8(44, 160, 44),   // Green
	rgb8(214, 39, 40),   // Red
	rgb8(148, 103, 189), // Purple
	rgb8(140, 86, 75),   // Brown
	rgb8(227, 119, 194), // Pink
	rgb8(127, 127, 127), // Gray
	rgb8(188, 189, 34),  // Olive
	rgb8(23, 190, 207),  // Cyan
}}
