// Package aesthetics derives per-point color buffers from data fields:
// numeric gradients and categorical palettes.
package aesthetics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/atlasmap-sc/scattergl/internal/dataload"
	"github.com/atlasmap-sc/scattergl/internal/tile"
	"github.com/atlasmap-sc/scattergl/pkg/colormap"
)

// logRatioThreshold selects a log scale: positive domains spanning more
// than two decades read better on log.
const logRatioThreshold = 100

// ScaleKind discriminates the scale variants.
type ScaleKind int

const (
	// KindNumeric maps a numeric domain onto a gradient.
	KindNumeric ScaleKind = iota
	// KindCategorical maps distinct values onto an indexed palette.
	KindCategorical
)

// Scale is a resolved color scale for one field.
type Scale struct {
	Field string
	Kind  ScaleKind

	// Numeric variant. Min/Max are already log-transformed when Log is
	// set.
	Min, Max float64
	Log      bool
	Gradient colormap.Gradient

	// Categorical variant: a stable value-to-index mapping built once
	// per selection, and the ordered values for legend display.
	Index   map[string]int
	Values  []string
	Palette colormap.Palette
}

// Manager builds scales and computes per-tile color buffers.
type Manager struct {
	collator *collate.Collator
	gradient colormap.Gradient
	palette  colormap.Palette
}

// NewManager creates a manager using the given gradient for numeric
// fields. An unknown gradient name falls back to viridis.
func NewManager(gradientName string) *Manager {
	g, ok := colormap.ByName(gradientName)
	if !ok {
		g = colormap.Viridis
	}
	return &Manager{
		collator: collate.New(language.English, collate.Loose),
		gradient: g,
		palette:  colormap.Categorical,
	}
}

// NumericScale builds a numeric scale for a field. Authoritative min/max
// metadata wins; otherwise the domain is scanned from loaded tiles,
// skipping non-finite values — only as accurate as what is loaded.
func (m *Manager) NumericScale(field string, meta *dataload.ColumnMeta, tiles []*tile.Tile) (*Scale, error) {
	var minV, maxV float64
	haveDomain := false

	if meta != nil && meta.Min != nil && meta.Max != nil {
		minV, maxV = *meta.Min, *meta.Max
		haveDomain = true
	} else {
		for _, t := range tiles {
			if t.Data == nil {
				continue
			}
			col, ok := t.Data.Column(field)
			if !ok || col.Kind != tile.KindNumeric {
				continue
			}
			for i := 0; i < col.Len(); i++ {
				v, finite := col.FloatAt(i)
				if !finite {
					continue
				}
				if !haveDomain {
					minV, maxV, haveDomain = v, v, true
					continue
				}
				minV = math.Min(minV, v)
				maxV = math.Max(maxV, v)
			}
		}
	}

	if !haveDomain {
		return nil, fmt.Errorf("no finite values for field %q", field)
	}

	s := &Scale{
		Field:    field,
		Kind:     KindNumeric,
		Gradient: m.gradient,
	}

	if minV > 0 && maxV/minV > logRatioThreshold {
		s.Log = true
		s.Min = math.Log10(minV)
		s.Max = math.Log10(maxV)
	} else {
		s.Min = minV
		s.Max = maxV
	}
	return s, nil
}

// CategoricalScale builds a categorical scale. The category list may come
// from authoritative metadata; otherwise distinct values are collected
// from loaded tiles. Values sort with locale-aware collation so legend
// order is stable, except cluster labels, which order by their numeric
// suffix.
func (m *Manager) CategoricalScale(field string, categories []string, tiles []*tile.Tile) (*Scale, error) {
	values := categories
	if len(values) == 0 {
		seen := make(map[string]struct{})
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
					values = append(values, level)
				}
			}
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no values for field %q", field)
	}

	sorted := make([]string, len(values))
	copy(sorted, values)
	m.sortValues(field, sorted)

	index := make(map[string]int, len(sorted))
	for i, v := range sorted {
		index[v] = i
	}

	return &Scale{
		Field:   field,
		Kind:    KindCategorical,
		Index:   index,
		Values:  sorted,
		Palette: m.palette,
	}, nil
}

// sortValues orders categories deterministically. The cluster field sorts
// by the numeric suffix after '#' ("Cluster #10" after "Cluster #9");
// everything else uses collation.
func (m *Manager) sortValues(field string, values []string) {
	if strings.EqualFold(field, "cluster") {
		sort.Slice(values, func(i, j int) bool {
			a, aok := clusterSuffix(values[i])
			b, bok := clusterSuffix(values[j])
			if aok && bok {
				return a < b
			}
			if aok != bok {
				return aok
			}
			return m.collator.CompareString(values[i], values[j]) < 0
		})
		return
	}

	sort.Slice(values, func(i, j int) bool {
		return m.collator.CompareString(values[i], values[j]) < 0
	})
}

func clusterSuffix(v string) (int, bool) {
	idx := strings.LastIndex(v, "#")
	if idx < 0 || idx == len(v)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v[idx+1:]))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Apply computes one RGB triple per row of the tile. A missing column
// produces a uniform gray buffer; a non-finite numeric value grays only
// its own row and never aborts the tile.
func (m *Manager) Apply(t *tile.Tile, s *Scale) []float32 {
	rows := t.NumRows()
	out := make([]float32, 3*rows)
	if rows == 0 {
		return out
	}

	col, ok := t.Data.Column(s.Field)
	if !ok {
		fillGray(out)
		return out
	}

	switch s.Kind {
	case KindNumeric:
		if col.Kind != tile.KindNumeric {
			fillGray(out)
			return out
		}
		span := s.Max - s.Min
		for i := 0; i < rows; i++ {
			v, finite := col.FloatAt(i)
			if finite && s.Log {
				if v <= 0 {
					finite = false
				} else {
					v = math.Log10(v)
				}
			}
			if !finite {
				setRGB(out, i, colormap.Gray)
				continue
			}

			var c colormap.RGB
			if span == 0 {
				// Constant-valued field: solid midpoint color, never a
				// division by the zero span.
				c = s.Gradient.Midpoint()
			} else {
				frac := (v - s.Min) / span
				c = s.Gradient.At(frac)
			}
			setRGB(out, i, c)
		}

	case KindCategorical:
		if col.Kind != tile.KindCategorical {
			fillGray(out)
			return out
		}
		for i := 0; i < rows; i++ {
			v, present := col.StringAt(i)
			if !present {
				setRGB(out, i, colormap.Gray)
				continue
			}
			idx, known := s.Index[v]
			if !known {
				setRGB(out, i, colormap.Gray)
				continue
			}
			setRGB(out, i, s.Palette.AtIndex(idx))
		}
	}

	return out
}

func setRGB(buf []float32, row int, c colormap.RGB) {
	buf[3*row] = c[0]
	buf[3*row+1] = c[1]
	buf[3*row+2] = c[2]
}

func fillGray(buf []float32) {
	for i := 0; i < len(buf); i += 3 {
		setRGB(buf, i/3, colormap.Gray)
	}
}
