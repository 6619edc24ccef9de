package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"Pierrot/internal/report"
	"Pierrot/pkg/kit"
)

type Server struct {
	Store *Store
	Log   *zap.Logger

	FallbackImageURL string
	// DebugFor decides per request whether store status is included in
	// responses. Nil means never.
	DebugFor func(q url.Values) bool
}

type listResponse struct {
	Items      []ProductView `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	Size       int           `json:"size"`
	TotalPages int           `json:"total_pages"`
	Message    string        `json:"message,omitempty"`
	Debug      *Status       `json:"debug,omitempty"`
}

type categoryResponse struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()

		if err := s.Store.Ping(ctx); err != nil {
			if s.Log != nil {
				s.Log.Warn("readyz failed", zap.Error(err))
			}
			kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/products", s.list)
	r.Get("/products/{sku}", s.get)
	r.Get("/categories", s.categories)

	return r
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad query", map[string]any{"reason": err.Error()})
		return
	}

	s.Store.Load(r.Context())
	res := s.Store.Query(q)

	resp := listResponse{
		Items:      Views(res.Items, s.FallbackImageURL),
		Total:      res.Total,
		Page:       res.Page,
		Size:       res.Size,
		TotalPages: res.TotalPages,
	}
	if s.Store.TotalProducts() == 0 {
		resp.Message = report.UserMessage(report.ScopeProductLoad)
	}
	if s.debug(r) {
		st := s.Store.Status()
		resp.Debug = &st
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(res.Total))
	w.Header().Set("X-Page", strconv.Itoa(res.Page))
	w.Header().Set("X-Per-Page", strconv.Itoa(res.Size))
	w.Header().Set("X-Total-Pages", strconv.Itoa(res.TotalPages))
	kit.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")

	s.Store.Load(r.Context())
	p, ok := s.Store.ProductBySKU(sku)
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"sku": sku})
		return
	}
	kit.WriteJSON(w, http.StatusOK, View(p, s.FallbackImageURL))
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	s.Store.Load(r.Context())

	counts := make(map[string]int)
	for _, p := range s.Store.Products() {
		counts[p.Category]++
	}

	codes := s.Store.AllCategories()
	out := make([]categoryResponse, 0, len(codes))
	for _, c := range codes {
		out = append(out, categoryResponse{Code: c, Label: CategoryLabel(c), Count: counts[c]})
	}
	kit.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) debug(r *http.Request) bool {
	return s.DebugFor != nil && s.DebugFor(r.URL.Query())
}

// parseQuery reads list parameters. page defaults to 1; size defaults to the
// store's page size.
func parseQuery(v url.Values) (Query, error) {
	q := Query{
		Category: v.Get("category"),
		Search:   v.Get("q"),
		Sort:     SortField(v.Get("sort")),
		Order:    SortOrder(v.Get("order")),
		Page:     1,
	}

	switch q.Sort {
	case "", SortByName, SortByPrice, SortBySKU:
	default:
		return Query{}, fmt.Errorf("sort must be one of name, price, sku")
	}
	switch q.Order {
	case "":
		q.Order = Asc
	case Asc, Desc:
	default:
		return Query{}, fmt.Errorf("order must be asc or desc")
	}

	var err error
	if q.Page, err = intParam(v, "page", 1); err != nil {
		return Query{}, err
	}
	if q.Size, err = intParam(v, "size", 0); err != nil {
		return Query{}, err
	}
	if q.Page < 1 {
		return Query{}, fmt.Errorf("page must be >= 1")
	}
	if q.Size < 0 {
		return Query{}, fmt.Errorf("size must be >= 0")
	}

	for _, p := range []struct {
		name string
		dst  **int64
	}{{"min_price", &q.MinPrice}, {"max_price", &q.MaxPrice}} {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Query{}, fmt.Errorf("%s must be an integer", p.name)
		}
		*p.dst = &n
	}

	return q, nil
}

func intParam(v url.Values, name string, def int) (int, error) {
	raw := v.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
