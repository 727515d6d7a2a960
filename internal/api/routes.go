// Package api provides HTTP handlers for the scattergl server.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/atlasmap-sc/scattergl/internal/aesthetics"
	"github.com/atlasmap-sc/scattergl/internal/cache"
	"github.com/atlasmap-sc/scattergl/internal/filter"
	"github.com/atlasmap-sc/scattergl/internal/scatter"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Plot        *scatter.Plot
	CORSOrigins []string

	// FrameCacheSize bounds the encoded-frame LRU. Zero disables caching.
	FrameCacheSize int
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var frameCache *cache.Frames
	if cfg.FrameCacheSize > 0 {
		frameCache, _ = cache.NewFrames(cfg.FrameCacheSize)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/frame.png", frameHandler(cfg.Plot, frameCache))
		r.Get("/pick", pickHandler(cfg.Plot))
		r.Get("/columns", columnsHandler(cfg.Plot))
		r.Get("/columns/{column}/values", columnValuesHandler(cfg.Plot))
		r.Get("/scale", scaleHandler(cfg.Plot))

		r.Post("/view", viewHandler(cfg.Plot))
		r.Post("/view/fit", fitHandler(cfg.Plot))

		r.Post("/color", colorHandler(cfg.Plot))
		r.Delete("/color", clearColorHandler(cfg.Plot))

		r.Get("/filters", filtersHandler(cfg.Plot))
		r.Post("/filters", setFilterHandler(cfg.Plot))
		r.Delete("/filters/{field}", clearFilterHandler(cfg.Plot))
		r.Delete("/filters", clearFiltersHandler(cfg.Plot))
	})

	return r
}

// frameFingerprint keys the encoded-frame cache on everything that can
// change pixels between requests.
func frameFingerprint(p *scatter.Plot) string {
	tr := p.Controller().Transform()
	key, idx := "-", -1
	if hit, ok := p.Locked(); ok {
		key, idx = hit.Key.String(), hit.Index
	}
	return fmt.Sprintf("v%d:k%g:x%g:y%g:l%s/%d", p.Version(), tr.K, tr.X, tr.Y, key, idx)
}

func frameHandler(p *scatter.Plot, frames *cache.Frames) http.HandlerFunc {
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	return func(w http.ResponseWriter, r *http.Request) {
		fp := frameFingerprint(p)
		if frames != nil && !p.Dirty() {
			if data, ok := frames.Get(fp); ok {
				w.Header().Set("Content-Type", "image/png")
				w.Write(data)
				return
			}
		}

		img := p.Frame()
		var buf bytes.Buffer
		if err := encoder.Encode(&buf, img); err != nil {
			http.Error(w, "failed to encode frame: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if frames != nil {
			frames.Add(fp, buf.Bytes())
		}

		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}
}

func pickHandler(p *scatter.Plot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		x, err := strconv.Atoi(r.URL.Query().Get("x"))
		if err != nil {
			http.Error(w, "invalid x", http.StatusBadRequest)
			return
		}
		y, err := strconv.Atoi(r.URL.Query().Get("y"))
		if err != nil {
			http.Error(w, "invalid y", http.StatusBadRequest)
			return
		}

		hit, ok := p.PickAt(x, y)
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			json.NewEncoder(w).Encode(map[string]interface{}{"hit": false})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"hit":   true,
			"tile":  hit.Key.String(),
			"index": hit.Index,
			"row":   hit.Row,
		})
	}
}

func columnsHandler(p *scatter.Plot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"columns": p.Columns(),
		}
		if desc := p.Descriptor(); desc != nil {
			response["default"] = desc.DefaultColumn
			response["metadata"] = desc.Columns
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

func columnValuesHandler(p *scatter.Plot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		column := chi.URLParam(r, "column")
		values := p.UniqueValues(column)
		if values == nil {
			http.Error(w, "column not found or not categorical: "+column, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"column": column,
			"values": values,
		})
	}
}

func scaleHandler(p *scatter.Plot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := p.Scale()
		w.Header().Set("Content-Type", "application/json")
		if s == nil {
			json.NewEncoder(w).Encode(map[string]interface{}{"active": false})
			return
		}

		response := map[string]interface{}{
			"active": true,
			"field":  s.Field,
		}
		switch s.Kind {
		case aesthetics.KindNumeric:
			response["kind"] = "numeric"
			response["min"] = s.Min
			response["max"] = s.Max
			response["log"] = s.Log
			response["colormap"] = s.Gradient.Name()
		case aesthetics.KindCategorical:
			response["kind"] = "categorical"
			response["values"] = s.Values
		}
		json.NewEncoder(w).Encode(response)
	}
}

type viewRequest struct {
	K float64 `json:"k"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func viewHandler(p *scatter.Plot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req viewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.K <= 0 {
			http.Error(w, "k must be positive", http.StatusBadRequest)
			return
		}

		p.Controller().SetTransform(req.K, req.X, req.Y)
		p.Update(r.Context())

		tr := p.Controller().Transform()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"k": tr.K, "x": tr.X, "y": tr.Y,
		})
	}
}

func fitHandler(p *scatter.Plot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.FitToExtent()
		p.Update(r.Context())

		tr := p.Controller().Transform()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"k": tr.K, "x": tr.X, "y": tr.Y,
		})
	}
}

type colorRequest struct {
	Column string `json:"column"`
}

func colorHandler(p *scatter.Plot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req colorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Column) == "" {
			http.Error(w, "column is required", http.StatusBadRequest)
			return
		}

		if err := p.ColorBy(req.Column); err != nil {
			status := http.StatusInternalServerError
			if strings.Contains(err.Error(), "not found") {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"column": req.Column})
	}
}

func clearColorHandler(p *scatter.Plot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.ClearColor()
		w.WriteHeader(http.StatusNoContent)
	}
}

type filterRequest struct {
	Field  string   `json:"field"`
	Kind   string   `json:"kind"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Values []string `json:"values,omitempty"`
	Query  string   `json:"query,omitempty"`
}

func setFilterHandler(p *scatter.Plot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req filterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Field) == "" {
			http.Error(w, "field is required", http.StatusBadRequest)
			return
		}

		var f filter.Filter
		switch req.Kind {
		case "numeric":
			if req.Min == nil && req.Max == nil {
				http.Error(w, "numeric filter needs min or max", http.StatusBadRequest)
				return
			}
			f = filter.Numeric(req.Field, req.Min, req.Max)
		case "categorical":
			f = filter.Categorical(req.Field, req.Values)
		case "substring":
			if req.Query == "" {
				http.Error(w, "substring filter needs query", http.StatusBadRequest)
				return
			}
			f = filter.Substring(req.Field, req.Query)
		default:
			http.Error(w, "invalid kind (expected numeric, categorical or substring)", http.StatusBadRequest)
			return
		}

		p.SetFilter(f)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(filterResponse(p))
	}
}

func filtersHandler(p *scatter.Plot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(filterResponse(p))
	}
}

func clearFilterHandler(p *scatter.Plot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		field := chi.URLParam(r, "field")
		p.ClearFilter(field)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(filterResponse(p))
	}
}

func clearFiltersHandler(p *scatter.Plot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.ClearFilters()
		w.WriteHeader(http.StatusNoContent)
	}
}

func filterResponse(p *scatter.Plot) map[string]interface{} {
	active := p.Filters()
	items := make([]map[string]interface{}, 0, len(active))
	for _, f := range active {
		item := map[string]interface{}{
			"field": f.Field,
			"kind":  f.Kind.String(),
		}
		if f.Min != nil {
			item["min"] = *f.Min
		}
		if f.Max != nil {
			item["max"] = *f.Max
		}
		if len(f.Accept) > 0 {
			item["values"] = f.Values()
		}
		if f.Substr != "" {
			item["query"] = f.Substr
		}
		items = append(items, item)
	}
	return map[string]interface{}{"filters": items}
}
