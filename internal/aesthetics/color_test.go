package aesthetics

import (
	"math"
	"testing"

	"github.com/atlasmap-sc/scattergl/internal/dataload"
	"github.com/atlasmap-sc/scattergl/internal/tile"
	"github.com/atlasmap-sc/scattergl/pkg/colormap"
)

func numericTile(t *testing.T, field string, values []float64) *tile.Tile {
	t.Helper()
	b := tile.NewBatch(len(values))
	if err := b.AddColumn(&tile.Column{Name: field, Kind: tile.KindNumeric, Floats: values}); err != nil {
		t.Fatalf("add column: %v", err)
	}
	tl := tile.New(tile.RootKey)
	tl.Data = b
	tl.Loaded = true
	return tl
}

func categoricalTile(t *testing.T, field string, values []string) *tile.Tile {
	t.Helper()
	levels := make([]string, 0)
	index := make(map[string]int32)
	codes := make([]int32, len(values))
	for i, v := range values {
		code, ok := index[v]
		if !ok {
			code = int32(len(levels))
			index[v] = code
			levels = append(levels, v)
		}
		codes[i] = code
	}
	b := tile.NewBatch(len(values))
	err := b.AddColumn(&tile.Column{Name: field, Kind: tile.KindCategorical, Levels: levels, Codes: codes})
	if err != nil {
		t.Fatalf("add column: %v", err)
	}
	tl := tile.New(tile.RootKey)
	tl.Data = b
	tl.Loaded = true
	return tl
}

func TestNumericScale(t *testing.T) {
	m := NewManager("viridis")

	t.Run("metadata domain wins over scan", func(t *testing.T) {
		lo, hi := 0.0, 100.0
		meta := &dataload.ColumnMeta{Name: "v", Numeric: true, Min: &lo, Max: &hi}
		tl := numericTile(t, "v", []float64{40, 60})

		s, err := m.NumericScale("v", meta, []*tile.Tile{tl})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Min != 0 || s.Max != 100 {
			t.Fatalf("expected domain [0,100], got [%v,%v]", s.Min, s.Max)
		}
		if s.Log {
			t.Fatal("expected linear scale")
		}
	})

	t.Run("scan fallback skips non-finite", func(t *testing.T) {
		tl := numericTile(t, "v", []float64{5, math.NaN(), 1, math.Inf(1), 9})
		s, err := m.NumericScale("v", nil, []*tile.Tile{tl})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Min != 1 || s.Max != 9 {
			t.Fatalf("expected domain [1,9], got [%v,%v]", s.Min, s.Max)
		}
	})

	t.Run("wide positive domain goes log", func(t *testing.T) {
		tl := numericTile(t, "v", []float64{0.001, 10})
		s, err := m.NumericScale("v", nil, []*tile.Tile{tl})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !s.Log {
			t.Fatal("expected log scale for ratio > 100")
		}
		if math.Abs(s.Min-(-3)) > 1e-9 || math.Abs(s.Max-1) > 1e-9 {
			t.Fatalf("expected log domain [-3,1], got [%v,%v]", s.Min, s.Max)
		}
	})

	t.Run("domain crossing zero stays linear", func(t *testing.T) {
		tl := numericTile(t, "v", []float64{-1, 100000})
		s, err := m.NumericScale("v", nil, []*tile.Tile{tl})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Log {
			t.Fatal("expected linear scale for domain containing non-positive values")
		}
	})

	t.Run("no finite values errors", func(t *testing.T) {
		tl := numericTile(t, "v", []float64{math.NaN()})
		if _, err := m.NumericScale("v", nil, []*tile.Tile{tl}); err == nil {
			t.Fatal("expected error for empty domain")
		}
	})
}

func TestCategoricalScale(t *testing.T) {
	m := NewManager("viridis")

	t.Run("stable sorted index", func(t *testing.T) {
		tl := categoricalTile(t, "cat", []string{"b", "a", "a", "c"})
		s, err := m.CategoricalScale("cat", nil, []*tile.Tile{tl})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := map[string]int{"a": 0, "b": 1, "c": 2}
		for v, idx := range want {
			if s.Index[v] != idx {
				t.Fatalf("expected %q at index %d, got %d", v, idx, s.Index[v])
			}
		}
	})

	t.Run("authoritative categories bypass scan", func(t *testing.T) {
		s, err := m.CategoricalScale("cat", []string{"z", "y"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Index["y"] != 0 || s.Index["z"] != 1 {
			t.Fatalf("expected sorted {y:0 z:1}, got %v", s.Index)
		}
	})

	t.Run("cluster labels sort by numeric suffix", func(t *testing.T) {
		labels := []string{"Cluster #10", "Cluster #2", "Cluster #1"}
		s, err := m.CategoricalScale("cluster", labels, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"Cluster #1", "Cluster #2", "Cluster #10"}
		for i, v := range want {
			if s.Values[i] != v {
				t.Fatalf("expected %v, got %v", want, s.Values)
			}
		}
	})

	t.Run("no values errors", func(t *testing.T) {
		if _, err := m.CategoricalScale("cat", nil, nil); err == nil {
			t.Fatal("expected error for empty category set")
		}
	})
}

func TestApply(t *testing.T) {
	m := NewManager("viridis")

	t.Run("categorical palette indices", func(t *testing.T) {
		tl := categoricalTile(t, "cat", []string{"b", "a", "a", "c"})
		s, err := m.CategoricalScale("cat", nil, []*tile.Tile{tl})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		colors := m.Apply(tl, s)
		if len(colors) != 12 {
			t.Fatalf("expected 12 components, got %d", len(colors))
		}
		wantIdx := []int{1, 0, 0, 2}
		for row, idx := range wantIdx {
			want := colormap.Categorical.AtIndex(idx)
			got := colormap.RGB{colors[3*row], colors[3*row+1], colors[3*row+2]}
			if got != want {
				t.Fatalf("row %d: expected palette index %d color %v, got %v", row, idx, want, got)
			}
		}
	})

	t.Run("numeric endpoints hit gradient ends", func(t *testing.T) {
		tl := numericTile(t, "v", []float64{0, 10})
		s, err := m.NumericScale("v", nil, []*tile.Tile{tl})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		colors := m.Apply(tl, s)
		lo := colormap.RGB{colors[0], colors[1], colors[2]}
		hi := colormap.RGB{colors[3], colors[4], colors[5]}
		if lo != colormap.Viridis.At(0) {
			t.Fatalf("expected gradient start, got %v", lo)
		}
		if hi != colormap.Viridis.At(1) {
			t.Fatalf("expected gradient end, got %v", hi)
		}
	})

	t.Run("zero span uses midpoint", func(t *testing.T) {
		tl := numericTile(t, "v", []float64{7, 7, 7})
		s, err := m.NumericScale("v", nil, []*tile.Tile{tl})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		colors := m.Apply(tl, s)
		want := colormap.Viridis.Midpoint()
		for row := 0; row < 3; row++ {
			got := colormap.RGB{colors[3*row], colors[3*row+1], colors[3*row+2]}
			if got != want {
				t.Fatalf("row %d: expected midpoint %v, got %v", row, want, got)
			}
		}
	})

	t.Run("non-finite rows gray without aborting", func(t *testing.T) {
		tl := numericTile(t, "v", []float64{0, math.NaN(), 10})
		s, err := m.NumericScale("v", nil, []*tile.Tile{tl})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		colors := m.Apply(tl, s)
		got := colormap.RGB{colors[3], colors[4], colors[5]}
		if got != colormap.Gray {
			t.Fatalf("expected gray for NaN row, got %v", got)
		}
	})

	t.Run("missing column grays whole tile", func(t *testing.T) {
		tl := numericTile(t, "v", []float64{1, 2})
		s := &Scale{Field: "absent", Kind: KindNumeric, Min: 0, Max: 1, Gradient: colormap.Viridis}
		colors := m.Apply(tl, s)
		for row := 0; row < 2; row++ {
			got := colormap.RGB{colors[3*row], colors[3*row+1], colors[3*row+2]}
			if got != colormap.Gray {
				t.Fatalf("row %d: expected gray, got %v", row, got)
			}
		}
	})
}
