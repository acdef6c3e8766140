package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tradegazette/gsearch/internal/dates"
	"github.com/tradegazette/gsearch/internal/lookup"
	"github.com/tradegazette/gsearch/internal/search"
	gserrors "github.com/tradegazette/gsearch/pkg/errors"
	"github.com/tradegazette/gsearch/pkg/logger"
	"github.com/tradegazette/gsearch/pkg/metrics"
)

// Handler serves the search API. The lookup table is swapped wholesale on
// reload, so label hydration always sees a consistent snapshot.
type Handler struct {
	planner    *search.Planner
	cache      *QueryCache // nil when Redis is disabled
	lookups    atomic.Pointer[lookup.Table]
	lookupRoot string
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewHandler creates a Handler. cache and m may be nil.
func NewHandler(planner *search.Planner, cache *QueryCache, table *lookup.Table, lookupRoot string, m *metrics.Metrics) *Handler {
	h := &Handler{
		planner:    planner,
		cache:      cache,
		lookupRoot: lookupRoot,
		metrics:    m,
		logger:     slog.Default().With("component", "handler"),
	}
	h.lookups.Store(table)
	return h
}

// Routes registers all API routes on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/answer", h.Answer)
	mux.HandleFunc("GET /api/v1/rows/{id}", h.Row)
	mux.HandleFunc("GET /api/v1/postings", h.Postings)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)

	mux.HandleFunc("POST /api/v1/tools/parse_date_range", h.ParseDateRange)
	mux.HandleFunc("POST /api/v1/tools/lookup_mudurluk", h.LookupCity)
	mux.HandleFunc("POST /api/v1/tools/lookup_ilan_turu", h.LookupType)
	mux.HandleFunc("POST /api/v1/tools/lookup_company", h.LookupCompany)

	mux.HandleFunc("POST /api/v1/lookups/reload", h.ReloadLookups)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type searchFilters struct {
	DateFrom    string `json:"date_from,omitempty"`
	DateTo      string `json:"date_to,omitempty"`
	CityCode    *int64 `json:"city_code,omitempty"`
	TypeCode    *int64 `json:"type_code,omitempty"`
	CompanyCode *int64 `json:"company_code,omitempty"`
	Limit       *int   `json:"limit,omitempty"`
}

type searchRequest struct {
	Filters searchFilters `json:"filters"`
	Limit   *int          `json:"limit,omitempty"`
}

// HitJSON is one hydrated hit: the raw integer fields plus display labels
// resolved through the lookup table.
type HitJSON struct {
	ID       int32  `json:"id"`
	DateInt  int32  `json:"date_int"`
	Date     string `json:"date"`
	LocID    int32  `json:"loc_id"`
	TypeID   int32  `json:"type_id"`
	CompCode int32  `json:"comp_code"`
	AdID     int32  `json:"ad_id"`
	AdLink   int32  `json:"ad_link_code"`
	City     string `json:"city"`
	Type     string `json:"type"`
	Company  string `json:"company,omitempty"`
}

// SearchResponse is the search endpoint payload; it is also the unit the
// query cache stores.
type SearchResponse struct {
	Hits  []HitJSON `json:"hits"`
	Count int       `json:"count"`
}

// Search handles POST /api/v1/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logger.FromContext(r.Context())

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.countSearch("client_error")
		h.writeError(w, r, gserrors.New(gserrors.ErrInvalidInput, http.StatusBadRequest, "malformed request body"))
		return
	}

	// An explicit limit (even 0) is clamped into the valid range; an absent
	// one stays 0 so the planner applies the default.
	var limit int
	switch {
	case req.Filters.Limit != nil:
		limit = h.planner.ClampLimit(*req.Filters.Limit)
	case req.Limit != nil:
		limit = h.planner.ClampLimit(*req.Limit)
	}
	f := search.Filters{
		CityCode:    req.Filters.CityCode,
		TypeCode:    req.Filters.TypeCode,
		CompanyCode: req.Filters.CompanyCode,
		DateFrom:    req.Filters.DateFrom,
		DateTo:      req.Filters.DateTo,
		Limit:       limit,
	}

	cacheStatus := "bypass"
	var resp *SearchResponse
	var err error
	if h.cache != nil {
		var hit bool
		resp, hit, err = h.cache.GetOrCompute(r.Context(), f, func() (*SearchResponse, error) {
			return h.runSearch(r, f)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		resp, err = h.runSearch(r, f)
	}
	if err != nil {
		h.countSearch(outcomeFor(err))
		h.writeError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
		h.metrics.SearchHitsReturned.Observe(float64(resp.Count))
	}
	if resp.Count == 0 {
		h.countSearch("zero_result")
	} else {
		h.countSearch("ok")
	}
	log.Debug("search served",
		"hits", resp.Count,
		"cache", cacheStatus,
		"elapsed", time.Since(start).Round(time.Microsecond).String(),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) runSearch(r *http.Request, f search.Filters) (*SearchResponse, error) {
	res, err := h.planner.Search(r.Context(), f)
	if err != nil {
		return nil, err
	}
	table := h.lookups.Load()
	hits := make([]HitJSON, 0, len(res.Hits))
	for _, hit := range res.Hits {
		hits = append(hits, renderHit(hit, table))
	}
	return &SearchResponse{Hits: hits, Count: res.Count}, nil
}

func renderHit(hit search.Hit, table *lookup.Table) HitJSON {
	rec := hit.Record
	return HitJSON{
		ID:       hit.ID,
		DateInt:  rec.DateKey,
		Date:     dates.ToISO(int64(rec.DateKey)),
		LocID:    rec.LocationCode,
		TypeID:   rec.TypeCode,
		CompCode: rec.CompanyCode,
		AdID:     rec.AdID,
		AdLink:   rec.AdLinkCode,
		City:     table.CityName(int64(rec.LocationCode)),
		Type:     table.TypeName(int64(rec.TypeCode)),
		Company:  table.CompanyName(int64(rec.CompanyCode)),
	}
}

// maxAnswerContext caps how many hits an answer may summarize, regardless of
// the requested max_ctx.
const maxAnswerContext = 100

type answerRequest struct {
	Filters searchFilters `json:"filters"`
	QTR     string        `json:"q_tr,omitempty"`
	MaxCtx  *int          `json:"max_ctx,omitempty"`
}

// AnswerResponse is a deterministic Turkish summary of the first hits of a
// search: one bullet line per hit plus the raw hits as sources. No text
// generation is involved.
type AnswerResponse struct {
	AnswerTR string    `json:"answer_tr"`
	Sources  []HitJSON `json:"sources"`
}

// Answer handles POST /api/v1/answer. It reuses the search path with the
// limit taken from max_ctx (default 20, capped at 100) and formats the hits
// into a short list.
func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, gserrors.New(gserrors.ErrInvalidInput, http.StatusBadRequest, "malformed request body"))
		return
	}
	maxCtx := 20
	if req.MaxCtx != nil && *req.MaxCtx > 0 {
		maxCtx = *req.MaxCtx
	}
	if maxCtx > maxAnswerContext {
		maxCtx = maxAnswerContext
	}

	resp, err := h.runSearch(r, search.Filters{
		CityCode:    req.Filters.CityCode,
		TypeCode:    req.Filters.TypeCode,
		CompanyCode: req.Filters.CompanyCode,
		DateFrom:    req.Filters.DateFrom,
		DateTo:      req.Filters.DateTo,
		Limit:       maxCtx,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(resp.Hits) == 0 {
		h.writeJSON(w, http.StatusOK, AnswerResponse{AnswerTR: "Sonuç bulunamadı.", Sources: []HitJSON{}})
		return
	}

	summary := make([]string, 0, len(resp.Hits)+2)
	if q := strings.TrimSpace(req.QTR); q != "" {
		summary = append(summary, "Soru: "+q)
	}
	summary = append(summary, fmt.Sprintf("Sonuç sayısı (ilk %d gösteriliyor): %d", len(resp.Hits), len(resp.Hits)))
	for _, hit := range resp.Hits {
		summary = append(summary, fmt.Sprintf("- [%d] %s • %s • %s • %s",
			hit.AdID, hit.Date, hit.City, hit.Type, hit.Company))
	}
	h.writeJSON(w, http.StatusOK, AnswerResponse{
		AnswerTR: strings.Join(summary, "\n"),
		Sources:  resp.Hits,
	})
}

// Row handles GET /api/v1/rows/{id}.
func (h *Handler) Row(w http.ResponseWriter, r *http.Request) {
	rid, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || rid < 0 {
		h.writeError(w, r, gserrors.New(gserrors.ErrInvalidInput, http.StatusBadRequest, "row id must be a non-negative integer"))
		return
	}
	rec, err := h.planner.Row(rid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, renderHit(search.Hit{ID: int32(rid), Record: rec}, h.lookups.Load()))
}

// Postings handles GET /api/v1/postings?index=loc_id&key=34. A debugging
// surface: it returns the raw row-id list for one index key.
func (h *Handler) Postings(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("index")
	keyStr := r.URL.Query().Get("key")
	key, err := strconv.ParseInt(keyStr, 10, 64)
	if name == "" || err != nil {
		h.writeError(w, r, gserrors.New(gserrors.ErrInvalidInput, http.StatusBadRequest, "index and integer key query parameters are required"))
		return
	}
	list, err := h.planner.Postings(name, key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"index":    name,
		"key":      key,
		"count":    len(list),
		"postings": list,
	})
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"row_count": h.planner.RowCount(),
	})
}

type textRequest struct {
	Text string `json:"text"`
	Name string `json:"name"`
	Term string `json:"term"`
}

// first returns the first non-empty value, so clients can use whichever
// field name reads naturally for the tool.
func (t textRequest) first() string {
	for _, s := range []string{t.Text, t.Name, t.Term} {
		if s != "" {
			return s
		}
	}
	return ""
}

// ParseDateRange handles POST /api/v1/tools/parse_date_range.
func (h *Handler) ParseDateRange(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}
	from, to, ok := dates.ParseRangeText(req.first())
	if !ok {
		h.writeJSON(w, http.StatusOK, map[string]any{"status": "unmapped"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"date_from": from,
		"date_to":   to,
	})
}

// LookupCity handles POST /api/v1/tools/lookup_mudurluk.
func (h *Handler) LookupCity(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}
	table := h.lookups.Load()
	if code, found := table.ResolveCity(req.first()); found {
		h.writeResolved(w, code, table.CityName(code))
		return
	}
	h.writeUnresolved(w, table.SuggestCities(req.first()))
}

// LookupType handles POST /api/v1/tools/lookup_ilan_turu.
func (h *Handler) LookupType(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}
	table := h.lookups.Load()
	if code, found := table.ResolveType(req.first()); found {
		h.writeResolved(w, code, table.TypeName(code))
		return
	}
	h.writeUnresolved(w, table.SuggestTypes(req.first()))
}

// LookupCompany handles POST /api/v1/tools/lookup_company.
func (h *Handler) LookupCompany(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}
	table := h.lookups.Load()
	if code, found := table.ResolveCompany(req.first()); found {
		h.writeResolved(w, code, table.CompanyName(code))
		return
	}
	h.writeUnresolved(w, table.SuggestCompanies(req.first()))
}

func (h *Handler) decodeText(w http.ResponseWriter, r *http.Request) (textRequest, bool) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.first() == "" {
		h.writeError(w, r, gserrors.New(gserrors.ErrInvalidInput, http.StatusBadRequest, "a non-empty text field is required"))
		return req, false
	}
	return req, true
}

func (h *Handler) writeResolved(w http.ResponseWriter, code int64, name string) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"code":   code,
		"name":   name,
	})
}

func (h *Handler) writeUnresolved(w http.ResponseWriter, opts []lookup.Suggestion) {
	status := "unmapped"
	if len(opts) > 0 {
		status = "ambiguous"
	}
	if opts == nil {
		opts = []lookup.Suggestion{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"options": opts,
	})
}

// ReloadLookups handles POST /api/v1/lookups/reload: it rebuilds the lookup
// table from disk and swaps it in atomically.
func (h *Handler) ReloadLookups(w http.ResponseWriter, r *http.Request) {
	table, err := lookup.Load(h.lookupRoot)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.lookups.Store(table)
	h.logger.Info("lookup tables reloaded", "root", h.lookupRoot)
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	hits, misses := h.cache.Stats()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"enabled": true,
		"hits":    hits,
		"misses":  misses,
	})
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("writing response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := gserrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	h.writeJSON(w, status, map[string]any{"error": err.Error()})
}

func (h *Handler) countSearch(outcome string) {
	if h.metrics != nil {
		h.metrics.SearchesTotal.WithLabelValues(outcome).Inc()
	}
}

func outcomeFor(err error) string {
	if gserrors.HTTPStatusCode(err) < http.StatusInternalServerError {
		return "client_error"
	}
	return "error"
}
