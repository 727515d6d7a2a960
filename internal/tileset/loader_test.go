package tileset

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/atlasmap-sc/scattergl/internal/tile"
)

// encodeTile builds an Arrow IPC stream with x/y/label columns and the
// given child keys in the schema metadata.
func encodeTile(t *testing.T, xs, ys []float32, labels []string, children string) []byte {
	t.Helper()

	var md arrow.Metadata
	if children != "" {
		md = arrow.NewMetadata([]string{"metadata"}, []string{children})
	}
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Float32},
		{Name: "y", Type: arrow.PrimitiveTypes.Float32},
		{Name: "label", Type: arrow.BinaryTypes.String},
	}, &md)

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).(*array.Float32Builder).AppendValues(xs, nil)
	b.Field(1).(*array.Float32Builder).AppendValues(ys, nil)
	b.Field(2).(*array.StringBuilder).AppendValues(labels, nil)

	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := w.Write(rec); err != nil {
		t.Fatalf("write record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf.Bytes()
}

func TestLoaderFetchTile(t *testing.T) {
	payload := encodeTile(t,
		[]float32{0.25, 0.5, 0.75},
		[]float32{0.1, 0.2, 0.3},
		[]string{"a", "b", "a"},
		`{"children": ["1/0/0", "1/1/1"]}`,
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0/0/0.feather" {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	l, err := NewLoader(LoaderConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	batch, children, err := l.FetchTile(context.Background(), tile.RootKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if batch.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", batch.NumRows())
	}

	x, ok := batch.Column("x")
	if !ok || x.Kind != tile.KindNumeric {
		t.Fatal("expected numeric x column")
	}
	if v, _ := x.FloatAt(1); v != 0.5 {
		t.Fatalf("expected x[1]=0.5, got %v", v)
	}

	label, ok := batch.Column("label")
	if !ok || label.Kind != tile.KindCategorical {
		t.Fatal("expected categorical label column")
	}
	if v, _ := label.StringAt(2); v != "a" {
		t.Fatalf("expected label[2]=a, got %q", v)
	}
	if len(label.Levels) != 2 {
		t.Fatalf("expected 2 interned levels, got %d", len(label.Levels))
	}

	want := []tile.Key{{Z: 1, X: 0, Y: 0}, {Z: 1, X: 1, Y: 1}}
	if len(children) != 2 || children[0] != want[0] || children[1] != want[1] {
		t.Fatalf("expected children %v, got %v", want, children)
	}
}

func TestLoaderSyntheticRootFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	l, err := NewLoader(LoaderConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	t.Run("rootDegrades", func(t *testing.T) {
		batch, children, err := l.FetchTile(context.Background(), tile.RootKey)
		if err != nil {
			t.Fatalf("root fetch must not fail outright: %v", err)
		}
		if batch.NumRows() != SyntheticRootRows {
			t.Fatalf("expected %d synthetic rows, got %d", SyntheticRootRows, batch.NumRows())
		}
		if len(children) != 0 {
			t.Fatalf("synthetic root should be a leaf, got children %v", children)
		}
		for _, name := range []string{"x", "y"} {
			col, ok := batch.Column(name)
			if !ok {
				t.Fatalf("synthetic batch missing %q column", name)
			}
			for i := 0; i < col.Len(); i++ {
				v, ok := col.FloatAt(i)
				if !ok || v < 0 || v > 1 {
					t.Fatalf("synthetic %s[%d]=%v outside [0,1]", name, i, v)
				}
			}
		}
	})

	t.Run("nonRootPropagates", func(t *testing.T) {
		_, _, err := l.FetchTile(context.Background(), tile.Key{Z: 1, X: 0, Y: 0})
		if err == nil {
			t.Fatal("expected non-root fetch failure to propagate")
		}
	})
}

func TestLoaderByteCache(t *testing.T) {
	payload := encodeTile(t, []float32{0.5}, []float32{0.5}, []string{"a"}, "")

	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(payload)
	}))
	defer srv.Close()

	l, err := NewLoader(LoaderConfig{BaseURL: srv.URL, ByteCacheMB: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer l.Close()

	for i := 0; i < 3; i++ {
		if _, _, err := l.FetchTile(context.Background(), tile.Key{Z: 1, X: 0, Y: 0}); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if hits != 1 {
		t.Fatalf("expected 1 network hit with byte cache, got %d", hits)
	}
}
