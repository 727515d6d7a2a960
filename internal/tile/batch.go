package tile

import (
	"fmt"
	"math"
)

// ColumnKind discriminates the typed column variants.
type ColumnKind int

const (
	// KindNumeric columns hold float64 values.
	KindNumeric ColumnKind = iota
	// KindCategorical columns hold interned string values.
	KindCategorical
)

// Column is a typed column of a batch. The variant is decided once at load
// time: numeric columns carry Floats, categorical columns carry interned
// Levels plus per-row Codes (-1 marks a missing value).
type Column struct {
	Name string
	Kind ColumnKind

	Floats []float64

	Levels []string
	Codes  []int32
}

// Len returns the row count of the column.
func (c *Column) Len() int {
	if c.Kind == KindNumeric {
		return len(c.Floats)
	}
	return len(c.Codes)
}

// FloatAt returns the numeric value at row i. The second return is false
// for categorical columns, out-of-range rows, and non-finite values.
func (c *Column) FloatAt(i int) (float64, bool) {
	if c.Kind != KindNumeric || i < 0 || i >= len(c.Floats) {
		return 0, false
	}
	v := c.Floats[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// StringAt returns the categorical value at row i.
func (c *Column) StringAt(i int) (string, bool) {
	if c.Kind != KindCategorical || i < 0 || i >= len(c.Codes) {
		return "", false
	}
	code := c.Codes[i]
	if code < 0 || int(code) >= len(c.Levels) {
		return "", false
	}
	return c.Levels[code], true
}

// Batch is a columnar record batch owned by a tile.
type Batch struct {
	numRows int
	columns map[string]*Column
	order   []string
}

// NewBatch creates an empty batch with the given row count.
func NewBatch(numRows int) *Batch {
	return &Batch{
		numRows: numRows,
		columns: make(map[string]*Column),
	}
}

// NumRows returns the batch's row count.
func (b *Batch) NumRows() int { return b.numRows }

// AddColumn attaches a column to the batch. The column length must match
// the batch row count.
func (b *Batch) AddColumn(c *Column) error {
	if c.Len() != b.numRows {
		return fmt.Errorf("column %q has %d rows, batch has %d", c.Name, c.Len(), b.numRows)
	}
	if _, exists := b.columns[c.Name]; exists {
		return fmt.Errorf("column %q already present", c.Name)
	}
	b.columns[c.Name] = c
	b.order = append(b.order, c.Name)
	return nil
}

// SetColumn attaches a column, replacing any existing column of the same
// name. The column length must match the batch row count.
func (b *Batch) SetColumn(c *Column) error {
	if c.Len() != b.numRows {
		return fmt.Errorf("column %q has %d rows, batch has %d", c.Name, c.Len(), b.numRows)
	}
	if _, exists := b.columns[c.Name]; !exists {
		b.order = append(b.order, c.Name)
	}
	b.columns[c.Name] = c
	return nil
}

// Column looks up a column by name.
func (b *Batch) Column(name string) (*Column, bool) {
	c, ok := b.columns[name]
	return c, ok
}

// ColumnNames returns column names in insertion order.
func (b *Batch) ColumnNames() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Row returns the values of a single row keyed by column name.
// Used to resolve picked points for display.
func (b *Batch) Row(i int) map[string]any {
	out := make(map[string]any, len(b.order))
	for _, name := range b.order {
		c := b.columns[name]
		switch c.Kind {
		case KindNumeric:
			if v, ok := c.FloatAt(i); ok {
				out[name] = v
			}
		case KindCategorical:
			if v, ok := c.StringAt(i); ok {
				out[name] = v
			}
		}
	}
	return out
}
