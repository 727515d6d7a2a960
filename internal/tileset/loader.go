// Package tileset manages the quadtree tile registry and the streaming of
// tile batches over HTTP.
package tileset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/klauspost/compress/zstd"

	"github.com/atlasmap-sc/scattergl/internal/cache"
	"github.com/atlasmap-sc/scattergl/internal/tile"
)

// SyntheticRootRows is the row count of the fallback root tile generated
// when the root fetch fails. The plot always has something to render even
// with no backend.
const SyntheticRootRows = 10000

// LoaderConfig contains tile loader configuration.
type LoaderConfig struct {
	BaseURL string

	// MaxConcurrent bounds the number of simultaneous tile fetches.
	MaxConcurrent int

	// ByteCacheMB sizes the raw response cache. Zero disables it.
	ByteCacheMB int

	Client *http.Client
}

// Loader fetches single tiles as Arrow IPC stream batches.
type Loader struct {
	baseURL string
	client  *http.Client
	decoder *zstd.Decoder
	slots   chan struct{}

	byteCache *cache.TileBytes
}

// NewLoader creates a tile loader.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	l := &Loader{
		baseURL: cfg.BaseURL,
		client:  client,
		decoder: decoder,
		slots:   make(chan struct{}, maxConcurrent),
	}

	if cfg.ByteCacheMB > 0 {
		bc, err := cache.NewTileBytes(cfg.ByteCacheMB, 10*time.Minute)
		if err != nil {
			return nil, err
		}
		l.byteCache = bc
	}

	return l, nil
}

// Close releases loader resources.
func (l *Loader) Close() error {
	l.decoder.Close()
	if l.byteCache != nil {
		return l.byteCache.Close()
	}
	return nil
}

// FetchTile fetches and decodes the batch for a key. A failed root fetch
// degrades to a synthetic random batch; non-root failures propagate so the
// store can drop the placeholder and retry on a later traversal.
func (l *Loader) FetchTile(ctx context.Context, key tile.Key) (*tile.Batch, []tile.Key, error) {
	l.slots <- struct{}{}
	defer func() { <-l.slots }()

	data, err := l.fetchBytes(ctx, key)
	if err != nil {
		if key == tile.RootKey {
			log.Printf("root tile unavailable (%v), generating synthetic batch", err)
			return syntheticRootBatch(), nil, nil
		}
		return nil, nil, err
	}

	batch, children, err := decodeBatch(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode tile %s: %w", key, err)
	}
	return batch, children, nil
}

func (l *Loader) tileURL(key tile.Key) string {
	return fmt.Sprintf("%s/%s.feather", l.baseURL, key)
}

func (l *Loader) fetchBytes(ctx context.Context, key tile.Key) ([]byte, error) {
	url := l.tileURL(key)

	if l.byteCache != nil {
		if data, ok := l.byteCache.Get(url); ok {
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "zstd")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	if resp.Header.Get("Content-Encoding") == "zstd" {
		data, err = l.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress %s: %w", url, err)
		}
	}

	if l.byteCache != nil {
		if err := l.byteCache.Set(url, data); err != nil {
			log.Printf("tile byte cache set failed for %s: %v", url, err)
		}
	}

	return data, nil
}

// tileMetadata is the schema-level metadata entry carrying child keys.
type tileMetadata struct {
	Children []string `json:"children"`
}

// decodeBatch parses an Arrow IPC stream into a typed batch plus the child
// keys listed in the schema metadata. The column variant (numeric vs.
// categorical) is decided here, once, from the Arrow type.
func decodeBatch(data []byte) (*tile.Batch, []tile.Key, error) {
	rdr, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("open IPC stream: %w", err)
	}
	defer rdr.Release()

	children, err := childKeys(rdr.Schema())
	if err != nil {
		return nil, nil, err
	}

	var recs []arrow.Record
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	if err := rdr.Err(); err != nil {
		return nil, nil, fmt.Errorf("read IPC stream: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil, fmt.Errorf("IPC stream contains no record batches")
	}

	numRows := 0
	for _, rec := range recs {
		numRows += int(rec.NumRows())
	}

	batch := tile.NewBatch(numRows)
	schema := recs[0].Schema()
	for i, field := range schema.Fields() {
		col, err := convertColumn(field.Name, recs, i)
		if err != nil {
			return nil, nil, err
		}
		if col == nil {
			continue // unsupported type, skipped
		}
		if err := batch.AddColumn(col); err != nil {
			return nil, nil, err
		}
	}

	return batch, children, nil
}

func childKeys(schema *arrow.Schema) ([]tile.Key, error) {
	md := schema.Metadata()
	idx := md.FindKey("metadata")
	if idx < 0 {
		return nil, nil
	}

	var tm tileMetadata
	if err := json.Unmarshal([]byte(md.Values()[idx]), &tm); err != nil {
		return nil, fmt.Errorf("parse tile metadata: %w", err)
	}

	children := make([]tile.Key, 0, len(tm.Children))
	for _, s := range tm.Children {
		k, err := tile.ParseKey(s)
		if err != nil {
			return nil, fmt.Errorf("child key: %w", err)
		}
		children = append(children, k)
	}
	return children, nil
}

// convertColumn concatenates one column across records into a typed column.
// Unknown Arrow types return (nil, nil) and are dropped with a log line.
func convertColumn(name string, recs []arrow.Record, idx int) (*tile.Column, error) {
	switch recs[0].Column(idx).(type) {
	case *array.Float32, *array.Float64, *array.Int32, *array.Int64:
		col := &tile.Column{Name: name, Kind: tile.KindNumeric}
		for _, rec := range recs {
			appendNumeric(col, rec.Column(idx))
		}
		return col, nil

	case *array.String, *array.Dictionary:
		col := &tile.Column{Name: name, Kind: tile.KindCategorical}
		intern := make(map[string]int32)
		for _, rec := range recs {
			if err := appendCategorical(col, intern, rec.Column(idx)); err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
		}
		return col, nil

	default:
		log.Printf("skipping column %q: unsupported Arrow type %s", name, recs[0].Column(idx).DataType())
		return nil, nil
	}
}

func appendNumeric(col *tile.Column, arr arrow.Array) {
	value := func(i int) float64 { return math.NaN() }
	switch a := arr.(type) {
	case *array.Float32:
		value = func(i int) float64 { return float64(a.Value(i)) }
	case *array.Float64:
		value = func(i int) float64 { return a.Value(i) }
	case *array.Int32:
		value = func(i int) float64 { return float64(a.Value(i)) }
	case *array.Int64:
		value = func(i int) float64 { return float64(a.Value(i)) }
	}

	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			col.Floats = append(col.Floats, math.NaN())
			continue
		}
		col.Floats = append(col.Floats, value(i))
	}
}

func appendCategorical(col *tile.Column, intern map[string]int32, arr arrow.Array) error {
	push := func(v string) {
		code, ok := intern[v]
		if !ok {
			code = int32(len(col.Levels))
			intern[v] = code
			col.Levels = append(col.Levels, v)
		}
		col.Codes = append(col.Codes, code)
	}

	switch a := arr.(type) {
	case *array.String:
		for i := 0; i < a.Len(); i++ {
			if a.IsNull(i) {
				col.Codes = append(col.Codes, -1)
				continue
			}
			push(a.Value(i))
		}
	case *array.Dictionary:
		dict, ok := a.Dictionary().(*array.String)
		if !ok {
			return fmt.Errorf("unsupported dictionary value type %s", a.Dictionary().DataType())
		}
		for i := 0; i < a.Len(); i++ {
			if a.IsNull(i) {
				col.Codes = append(col.Codes, -1)
				continue
			}
			push(dict.Value(a.GetValueIndex(i)))
		}
	}
	return nil
}

// syntheticRootBatch generates a uniformly random placeholder batch used
// when no backend is reachable.
func syntheticRootBatch() *tile.Batch {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	xs := make([]float64, SyntheticRootRows)
	ys := make([]float64, SyntheticRootRows)
	for i := range xs {
		xs[i] = rng.Float64()
		ys[i] = rng.Float64()
	}

	batch := tile.NewBatch(SyntheticRootRows)
	batch.AddColumn(&tile.Column{Name: "x", Kind: tile.KindNumeric, Floats: xs})
	batch.AddColumn(&tile.Column{Name: "y", Kind: tile.KindNumeric, Floats: ys})
	return batch
}
