// Package filter computes per-tile visibility masks from per-field
// predicates. Filters compose by AND across fields.
package filter

import (
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/atlasmap-sc/scattergl/internal/tile"
)

// Kind discriminates the filter variants.
type Kind int

const (
	// KindNumeric keeps rows strictly inside (min, max). Boundary values
	// fail: the test is exclusive at both ends. A nil bound is open.
	KindNumeric Kind = iota
	// KindCategorical keeps rows whose value is in the accepted set.
	KindCategorical
	// KindSubstring keeps rows whose value contains the query,
	// case-insensitively.
	KindSubstring
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindCategorical:
		return "categorical"
	case KindSubstring:
		return "substring"
	}
	return "unknown"
}

// Filter is one per-field predicate.
type Filter struct {
	Field string
	Kind  Kind

	Min *float64
	Max *float64

	Accept map[string]struct{}

	// Substr is stored lowercased.
	Substr string
}

// Numeric builds a range filter. Either bound may be nil (open).
func Numeric(field string, min, max *float64) Filter {
	return Filter{Field: field, Kind: KindNumeric, Min: min, Max: max}
}

// Categorical builds a set-membership filter.
func Categorical(field string, values []string) Filter {
	accept := make(map[string]struct{}, len(values))
	for _, v := range values {
		accept[v] = struct{}{}
	}
	return Filter{Field: field, Kind: KindCategorical, Accept: accept}
}

// Substring builds a case-insensitive substring filter.
func Substring(field, query string) Filter {
	return Filter{Field: field, Kind: KindSubstring, Substr: strings.ToLower(query)}
}

// Values returns the accepted categorical values, sorted.
func (f Filter) Values() []string {
	out := make([]string, 0, len(f.Accept))
	for v := range f.Accept {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// matches evaluates the predicate for one row of a column. A missing or
// unreadable value fails.
func (f Filter) matches(col *tile.Column, row int) bool {
	switch f.Kind {
	case KindNumeric:
		v, ok := col.FloatAt(row)
		if !ok {
			return false
		}
		if f.Min != nil && v <= *f.Min {
			return false
		}
		if f.Max != nil && v >= *f.Max {
			return false
		}
		return true

	case KindCategorical:
		v, ok := stringValue(col, row)
		if !ok {
			return false
		}
		_, accepted := f.Accept[v]
		return accepted

	case KindSubstring:
		v, ok := stringValue(col, row)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(v), f.Substr)
	}
	return false
}

func stringValue(col *tile.Column, row int) (string, bool) {
	if col.Kind == tile.KindCategorical {
		return col.StringAt(row)
	}
	return "", false
}

// Manager holds the active filter set: at most one filter per field,
// setting a new filter on the same field replaces it.
type Manager struct {
	mu      sync.Mutex
	filters map[string]Filter
}

// NewManager creates an empty filter set.
func NewManager() *Manager {
	return &Manager{filters: make(map[string]Filter)}
}

// Set installs a filter, replacing any existing filter on the same field.
func (m *Manager) Set(f Filter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters[f.Field] = f
}

// Clear removes the filter on a field.
func (m *Manager) Clear(field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.filters, field)
}

// ClearAll removes every active filter.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = make(map[string]Filter)
}

// Active returns the active filters in deterministic field order.
func (m *Manager) Active() []Filter {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Filter, 0, len(m.filters))
	for _, f := range m.filters {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// Empty reports whether no filter is active.
func (m *Manager) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filters) == 0
}

// Mask computes the tile's visibility bitmask: all rows start visible, and
// each active filter clears the rows failing its predicate. Rows already
// cleared are never re-examined; AND is commutative so the short-circuit
// only affects speed.
func (m *Manager) Mask(t *tile.Tile) *roaring.Bitmap {
	rows := t.NumRows()
	bm := roaring.New()
	if rows == 0 {
		return bm
	}
	bm.AddRange(0, uint64(rows))

	for _, f := range m.Active() {
		col, ok := t.Data.Column(f.Field)
		if !ok {
			// A filtered field missing from this tile hides every row.
			bm.Clear()
			return bm
		}

		failed := roaring.New()
		it := bm.Iterator()
		for it.HasNext() {
			row := it.Next()
			if !f.matches(col, int(row)) {
				failed.Add(row)
			}
		}
		bm.AndNot(failed)
		if bm.IsEmpty() {
			return bm
		}
	}
	return bm
}

// UniqueValues scans currently-loaded tiles for the distinct values of a
// categorical field. Only as accurate as what is loaded.
func UniqueValues(field string, tiles []*tile.Tile) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range tiles {
		if t.Data == nil {
			continue
		}
		col, ok := t.Data.Column(field)
		if !ok || col.Kind != tile.KindCategorical {
			continue
		}
		for _, level := range col.Levels {
			if _, dup := seen[level]; !dup {
				seen[level] = struct{}{}
				out = append(out, level)
			}
		}
	}
	sort.Strings(out)
	return out
}

// NumericRange scans currently-loaded tiles for a field's min/max. Only as
// accurate as what is loaded. ok is false when no finite value was seen.
func NumericRange(field string, tiles []*tile.Tile) (min, max float64, ok bool) {
	for _, t := range tiles {
		if t.Data == nil {
			continue
		}
		col, found := t.Data.Column(field)
		if !found || col.Kind != tile.KindNumeric {
			continue
		}
		for i := 0; i < col.Len(); i++ {
			v, finite := col.FloatAt(i)
			if !finite {
				continue
			}
			if !ok {
				min, max, ok = v, v, true
				continue
			}
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	return min, max, ok
}
