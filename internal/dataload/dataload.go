// Package dataload bootstraps the working dataset: remote descriptor
// metadata for tiled datasets, or an in-memory root tile built from
// externally-parsed rows.
package dataload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/atlasmap-sc/scattergl/internal/tile"
)

// ColumnMeta describes one column of the dataset. Metadata from a remote
// descriptor is authoritative; metadata derived by scanning loaded tiles is
// only as precise as currently-loaded data.
type ColumnMeta struct {
	Name          string   `json:"name"`
	Numeric       bool     `json:"numeric,omitempty"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	Categorical   bool     `json:"categorical,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	NumCategories int      `json:"num_categories,omitempty"`
}

// Descriptor is the dataset's column/config descriptor.
type Descriptor struct {
	Columns       []ColumnMeta `json:"columns"`
	DefaultColumn string       `json:"default_column,omitempty"`
}

// Column looks up column metadata by name.
func (d *Descriptor) Column(name string) (*ColumnMeta, bool) {
	if d == nil {
		return nil, false
	}
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i], true
		}
	}
	return nil, false
}

// FetchDescriptor pulls {base_url}/config.json. A missing or unreadable
// descriptor is tolerated: the caller degrades to scan-based metadata.
func FetchDescriptor(ctx context.Context, client *http.Client, baseURL string) *Descriptor {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	url := baseURL + "/config.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Printf("descriptor skipped: %v", err)
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Printf("descriptor fetch failed, using scan-based metadata: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("descriptor %s returned %d, using scan-based metadata", url, resp.StatusCode)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("descriptor read failed: %v", err)
		return nil
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		log.Printf("descriptor parse failed: %v", err)
		return nil
	}
	return &d
}

// FromRows builds a single loaded root tile covering the normalized
// [0,1]x[0,1] extent from externally-parsed row objects, plus a descriptor
// with derived extents. Columns where every present value is numeric become
// numeric; everything else is interned as categorical. The chosen x/y
// fields are normalized into [0,1] and stored as "x"/"y".
func FromRows(rows []map[string]any, xField, yField string) (*tile.Tile, *Descriptor, error) {
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("no rows to import")
	}
	if xField == "" || yField == "" {
		return nil, nil, fmt.Errorf("x/y field names are required")
	}

	names := collectFieldNames(rows)

	batch := tile.NewBatch(len(rows))
	desc := &Descriptor{}

	for _, name := range names {
		col, meta := buildColumn(name, rows)
		if name == xField || name == yField {
			// The raw coordinate column is still importable under its
			// own name; the normalized copy is added below.
			if col.Kind != tile.KindNumeric {
				return nil, nil, fmt.Errorf("coordinate field %q is not numeric", name)
			}
		}
		if err := batch.AddColumn(col); err != nil {
			return nil, nil, err
		}
		desc.Columns = append(desc.Columns, meta)
	}

	for _, spec := range []struct{ norm, src string }{{"x", xField}, {"y", yField}} {
		src, ok := batch.Column(spec.src)
		if !ok {
			return nil, nil, fmt.Errorf("coordinate field %q not present in rows", spec.src)
		}
		norm, meta := normalizeColumn(spec.norm, src)
		if spec.norm == spec.src {
			// Source field already named x/y: normalize it in place.
			src.Floats = norm.Floats
			if cm, ok := desc.Column(spec.src); ok {
				cm.Min = meta.Min
				cm.Max = meta.Max
			}
			continue
		}
		// A raw column that happens to be named x or y yields to the
		// normalized coordinates.
		if err := batch.SetColumn(norm); err != nil {
			return nil, nil, err
		}
		if cm, ok := desc.Column(spec.norm); ok {
			*cm = meta
		} else {
			desc.Columns = append(desc.Columns, meta)
		}
	}

	root := tile.New(tile.RootKey)
	root.Data = batch
	root.Loaded = true
	return root, desc, nil
}

func collectFieldNames(rows []map[string]any) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, row := range rows {
		for name := range row {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// buildColumn decides the column variant once, from the values themselves.
func buildColumn(name string, rows []map[string]any) (*tile.Column, ColumnMeta) {
	numeric := true
	for _, row := range rows {
		v, ok := row[name]
		if !ok || v == nil {
			continue
		}
		if _, ok := asFloat(v); !ok {
			numeric = false
			break
		}
	}

	if numeric {
		col := &tile.Column{Name: name, Kind: tile.KindNumeric, Floats: make([]float64, len(rows))}
		minV, maxV := math.Inf(1), math.Inf(-1)
		for i, row := range rows {
			f, ok := asFloat(row[name])
			if !ok {
				col.Floats[i] = math.NaN()
				continue
			}
			col.Floats[i] = f
			if f < minV {
				minV = f
			}
			if f > maxV {
				maxV = f
			}
		}
		meta := ColumnMeta{Name: name, Numeric: true}
		if minV <= maxV {
			meta.Min = &minV
			meta.Max = &maxV
		}
		return col, meta
	}

	col := &tile.Column{Name: name, Kind: tile.KindCategorical, Codes: make([]int32, len(rows))}
	intern := make(map[string]int32)
	for i, row := range rows {
		v, ok := row[name]
		if !ok || v == nil {
			col.Codes[i] = -1
			continue
		}
		s := fmt.Sprintf("%v", v)
		code, ok := intern[s]
		if !ok {
			code = int32(len(col.Levels))
			intern[s] = code
			col.Levels = append(col.Levels, s)
		}
		col.Codes[i] = code
	}

	categories := make([]string, len(col.Levels))
	copy(categories, col.Levels)
	sort.Strings(categories)
	return col, ColumnMeta{
		Name:          name,
		Categorical:   true,
		Categories:    categories,
		NumCategories: len(categories),
	}
}

// normalizeColumn maps a numeric column into [0,1]. A constant column maps
// to 0.5 everywhere.
func normalizeColumn(name string, src *tile.Column) (*tile.Column, ColumnMeta) {
	minV, maxV := math.Inf(1), math.Inf(-1)
	for _, v := range src.Floats {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	span := maxV - minV
	out := &tile.Column{Name: name, Kind: tile.KindNumeric, Floats: make([]float64, len(src.Floats))}
	for i, v := range src.Floats {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			out.Floats[i] = 0.5
		case span == 0:
			out.Floats[i] = 0.5
		default:
			out.Floats[i] = (v - minV) / span
		}
	}

	lo, hi := 0.0, 1.0
	return out, ColumnMeta{Name: name, Numeric: true, Min: &lo, Max: &hi}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
