package scatter

import (
	"image/color"
	"sync"
	"testing"

	"github.com/atlasmap-sc/scattergl/internal/filter"
	"github.com/atlasmap-sc/scattergl/pkg/colormap"
)

func testRows() []map[string]any {
	return []map[string]any{
		{"x": 0.2, "y": 0.2, "value": 1.0, "cat": "b"},
		{"x": 0.5, "y": 0.5, "value": 5.0, "cat": "a"},
		{"x": 0.8, "y": 0.8, "value": 9.0, "cat": "a"},
		{"x": 0.5, "y": 0.35, "value": 3.0, "cat": "c"},
	}
}

func testPlot(t *testing.T) *Plot {
	t.Helper()
	p, err := FromRows(Config{Width: 100, Height: 100, PointSize: 2}, testRows(), "x", "y")
	if err != nil {
		t.Fatalf("from rows: %v", err)
	}
	return p
}

func rgbaAt(p *Plot, x, y int) color.RGBA {
	img := p.Frame()
	c := img.RGBAAt(x, y)
	return c
}

func TestFromRowsFrame(t *testing.T) {
	p := testPlot(t)

	img := p.Frame()
	b := img.Bounds()
	if b.Dx() != 100 || b.Dy() != 100 {
		t.Fatalf("expected 100x100 frame, got %dx%d", b.Dx(), b.Dy())
	}

	// Coordinates normalize to [0,1]; with the identity transform the
	// point at (0.5, 0.5) lands at the frame center and is drawn in the
	// default grey before any color scale is bound.
	c := img.RGBAAt(50, 50)
	if c.R == 255 && c.G == 255 && c.B == 255 {
		t.Fatal("expected a drawn point at the frame center")
	}
	if c.R != c.G || c.G != c.B {
		t.Fatalf("expected a grey default point, got %v", c)
	}
}

func TestDirtyLifecycle(t *testing.T) {
	p := testPlot(t)

	if !p.Dirty() {
		t.Fatal("expected new plot to start dirty")
	}
	p.Frame()
	if p.Dirty() {
		t.Fatal("expected Frame to clear dirty")
	}
	p.Controller().Wheel(50, 50, -10)
	if !p.Dirty() {
		t.Fatal("expected view change to mark dirty")
	}
}

func TestColumns(t *testing.T) {
	p := testPlot(t)
	cols := p.Columns()
	want := map[string]bool{"value": false, "cat": false}
	for _, c := range cols {
		if _, ok := want[c]; ok {
			want[c] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("expected column %q in %v", name, cols)
		}
	}
}

func TestColorBy(t *testing.T) {
	p := testPlot(t)

	t.Run("numeric scale from descriptor metadata", func(t *testing.T) {
		if err := p.ColorBy("value"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s := p.Scale()
		if s == nil || s.Field != "value" {
			t.Fatalf("expected active scale on value, got %+v", s)
		}
		if s.Min != 1 || s.Max != 9 {
			t.Fatalf("expected domain [1,9], got [%v,%v]", s.Min, s.Max)
		}
	})

	t.Run("categorical scale", func(t *testing.T) {
		if err := p.ColorBy("cat"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		s := p.Scale()
		if s.Index["a"] != 0 || s.Index["b"] != 1 || s.Index["c"] != 2 {
			t.Fatalf("expected index {a:0 b:1 c:2}, got %v", s.Index)
		}

		// The center point has cat="a": after a frame its pixel carries
		// palette color 0, the blue-dominant entry.
		want := colormap.Categorical.AtIndex(0)
		if want[2] <= want[0] {
			t.Fatalf("palette assumption broken: %v", want)
		}
		got := rgbaAt(p, 50, 50)
		if got.B <= got.R {
			t.Fatalf("expected blue-dominant center pixel, got %v", got)
		}
	})

	t.Run("unknown column errors", func(t *testing.T) {
		if err := p.ColorBy("nope"); err == nil {
			t.Fatal("expected error for unknown column")
		}
	})

	t.Run("clear reverts to default grey", func(t *testing.T) {
		p.ClearColor()
		got := rgbaAt(p, 50, 50)
		if got.R != got.G || got.G != got.B {
			t.Fatalf("expected grey point after clear, got %v", got)
		}
		if got.R == 255 {
			t.Fatalf("expected the cleared point to stay visible, got %v", got)
		}
	})
}

func TestPickAt(t *testing.T) {
	p := testPlot(t)
	p.Frame()

	hit, ok := p.PickAt(50, 50)
	if !ok {
		t.Fatal("expected hit at frame center")
	}
	if hit.Index != 1 {
		t.Fatalf("expected row index 1, got %d", hit.Index)
	}
	if hit.Row["cat"] != "a" {
		t.Fatalf("expected picked row cat=a, got %v", hit.Row["cat"])
	}
	if v, _ := hit.Row["value"].(float64); v != 5 {
		t.Fatalf("expected picked row value=5, got %v", hit.Row["value"])
	}

	if _, ok := p.PickAt(10, 90); ok {
		t.Fatal("expected no hit over empty background")
	}
}

func TestFilterHidesPoints(t *testing.T) {
	p := testPlot(t)
	p.Frame()

	min := 4.0
	p.SetFilter(filter.Numeric("value", &min, nil))
	p.Frame()

	// The value=3 point, normalized to (0.5, 0.25), fails the filter and
	// is unpickable.
	if _, ok := p.PickAt(50, 25); ok {
		t.Fatal("expected filtered-out point to be unpickable")
	}
	// value=5 point passes.
	if _, ok := p.PickAt(50, 50); !ok {
		t.Fatal("expected passing point to stay pickable")
	}

	p.ClearFilter("value")
	p.Frame()
	if _, ok := p.PickAt(50, 25); !ok {
		t.Fatal("expected point back after filter cleared")
	}
}

func TestClickLockToggle(t *testing.T) {
	p := testPlot(t)
	p.Frame()

	click := func(x, y float64) {
		c := p.Controller()
		c.PointerDown(x, y)
		c.PointerUp(x, y)
	}

	click(50, 50)
	hit, ok := p.Locked()
	if !ok {
		t.Fatal("expected click to lock the center point")
	}
	if hit.Index != 1 {
		t.Fatalf("expected locked index 1, got %d", hit.Index)
	}

	// Clicking the same point unlocks.
	click(50, 50)
	if _, ok := p.Locked(); ok {
		t.Fatal("expected second click to unlock")
	}

	// A drag never locks.
	c := p.Controller()
	c.PointerDown(50, 50)
	c.PointerMove(70, 70)
	c.PointerUp(70, 70)
	if _, ok := p.Locked(); ok {
		t.Fatal("expected drag not to lock")
	}
}

func TestConcurrentFrameAndVisuals(t *testing.T) {
	// Frames, picks, and visuals bumps land from separate HTTP handlers.
	// Run with -race: buffer refreshes must be serialized against draws.
	p := testPlot(t)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			p.Frame()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			min := float64(i % 5)
			p.SetFilter(filter.Numeric("value", &min, nil))
			p.ClearFilters()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			p.PickAt(50, 50)
		}
	}()
	wg.Wait()
}

func TestFitToExtent(t *testing.T) {
	p := testPlot(t)
	p.Controller().Wheel(10, 10, -500)
	p.FitToExtent()

	tr := p.Controller().Transform()
	x, y := tr.Invert(50, 50, 100, 100)
	if x < 0.4 || x > 0.6 || y < 0.4 || y > 0.6 {
		t.Fatalf("expected extent centered after fit, got data point (%v,%v) at center", x, y)
	}
}
