package filter

import (
	"math"
	"testing"

	"github.com/atlasmap-sc/scattergl/internal/tile"
)

func ptr(v float64) *float64 { return &v }

func testTile(t *testing.T) *tile.Tile {
	t.Helper()

	batch := tile.NewBatch(3)
	if err := batch.AddColumn(&tile.Column{
		Name:   "score",
		Kind:   tile.KindNumeric,
		Floats: []float64{0.1, 0.6, 0.9},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := batch.AddColumn(&tile.Column{
		Name:   "cluster",
		Kind:   tile.KindCategorical,
		Levels: []string{"Neuron", "Glia", "T cell"},
		Codes:  []int32{0, 1, 2},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tl := tile.New(tile.RootKey)
	tl.Data = batch
	tl.Loaded = true
	return tl
}

func maskBits(t *testing.T, m *Manager, tl *tile.Tile) []bool {
	t.Helper()
	bm := m.Mask(tl)
	out := make([]bool, tl.NumRows())
	for i := range out {
		out[i] = bm.Contains(uint32(i))
	}
	return out
}

func TestNumericFilterBoundary(t *testing.T) {
	tl := testTile(t)
	m := NewManager()
	m.Set(Numeric("score", ptr(0.5), nil))

	got := maskBits(t, m, tl)
	want := []bool{false, true, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mask[%d]: expected %v, got %v (full mask %v)", i, want[i], got[i], got)
		}
	}

	t.Run("boundaryValueFails", func(t *testing.T) {
		m := NewManager()
		m.Set(Numeric("score", ptr(0.6), nil))
		if maskBits(t, m, tl)[1] {
			t.Fatal("value on the min boundary must fail")
		}

		m = NewManager()
		m.Set(Numeric("score", nil, ptr(0.9)))
		if maskBits(t, m, tl)[2] {
			t.Fatal("value on the max boundary must fail")
		}
	})

	t.Run("nonFiniteFails", func(t *testing.T) {
		batch := tile.NewBatch(2)
		batch.AddColumn(&tile.Column{Name: "score", Kind: tile.KindNumeric, Floats: []float64{math.NaN(), 1}})
		tl := tile.New(tile.RootKey)
		tl.Data = batch

		m := NewManager()
		m.Set(Numeric("score", ptr(0), nil))
		got := maskBits(t, m, tl)
		if got[0] || !got[1] {
			t.Fatalf("expected [false true], got %v", got)
		}
	})
}

func TestFilterComposition(t *testing.T) {
	tl := testTile(t)

	m := NewManager()
	m.Set(Numeric("score", ptr(0.2), nil))
	m.Set(Categorical("cluster", []string{"Glia", "T cell"}))

	// AND semantics: visible iff every predicate passes.
	got := maskBits(t, m, tl)
	want := []bool{false, true, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mask[%d]: expected %v, got %v", i, want[i], got[i])
		}
	}

	t.Run("addingFilterOnlyRemoves", func(t *testing.T) {
		before := m.Mask(tl)
		m.Set(Substring("cluster", "cell"))
		after := m.Mask(tl)
		if after.GetCardinality() > before.GetCardinality() {
			t.Fatal("adding a filter must never add visibility")
		}
		it := after.Iterator()
		for it.HasNext() {
			if !before.Contains(it.Next()) {
				t.Fatal("row became visible after adding a filter")
			}
		}
		m.Clear("cluster")
	})

	t.Run("replacePerField", func(t *testing.T) {
		m := NewManager()
		m.Set(Categorical("cluster", []string{"Neuron"}))
		m.Set(Categorical("cluster", []string{"Glia"}))
		got := maskBits(t, m, tl)
		if got[0] || !got[1] || got[2] {
			t.Fatalf("expected replacement semantics, got %v", got)
		}
	})

	t.Run("missingFieldHidesAll", func(t *testing.T) {
		m := NewManager()
		m.Set(Numeric("absent", ptr(0), nil))
		if m.Mask(tl).GetCardinality() != 0 {
			t.Fatal("filter on a missing field should hide every row")
		}
	})

	t.Run("emptyManagerShowsAll", func(t *testing.T) {
		m := NewManager()
		if got := m.Mask(tl).GetCardinality(); got != 3 {
			t.Fatalf("expected all rows visible, got %d", got)
		}
	})
}

func TestSubstringFilter(t *testing.T) {
	tl := testTile(t)
	m := NewManager()
	m.Set(Substring("cluster", "CELL"))

	got := maskBits(t, m, tl)
	if got[0] || got[1] || !got[2] {
		t.Fatalf("expected case-insensitive substring match on row 2, got %v", got)
	}
}

func TestScanHelpers(t *testing.T) {
	tl := testTile(t)
	tiles := []*tile.Tile{tl}

	t.Run("uniqueValues", func(t *testing.T) {
		got := UniqueValues("cluster", tiles)
		want := []string{"Glia", "Neuron", "T cell"}
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, got)
			}
		}
	})

	t.Run("numericRange", func(t *testing.T) {
		min, max, ok := NumericRange("score", tiles)
		if !ok || min != 0.1 || max != 0.9 {
			t.Fatalf("expected [0.1,0.9], got [%v,%v] ok=%v", min, max, ok)
		}
	})

	t.Run("unknownField", func(t *testing.T) {
		if _, _, ok := NumericRange("absent", tiles); ok {
			t.Fatal("expected ok=false for unknown field")
		}
	})
}
