package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/giygas/medicaments-search/cache"
	"github.com/giygas/medicaments-search/dataset/entities"
	"github.com/giygas/medicaments-search/interfaces"
	"github.com/giygas/medicaments-search/logging"
	"github.com/giygas/medicaments-search/protocol"
	"github.com/giygas/medicaments-search/search"
)

const (
	statsCacheKey = "stats"
	retryAfter    = "5"
)

// Compile-time check to ensure HTTPHandlerImpl implements HTTPHandler
var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	dataStore interfaces.DataStore
	searcher  interfaces.SearchService
	validator interfaces.DataValidator
	health    interfaces.HealthChecker
	cache     interfaces.Cache
	stats     *cache.Typed[entities.Stats]
	ttl       time.Duration
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies.
// Search results and stats are cached in c for ttl.
func NewHTTPHandler(
	dataStore interfaces.DataStore,
	searcher interfaces.SearchService,
	validator interfaces.DataValidator,
	health interfaces.HealthChecker,
	c interfaces.Cache,
	ttl time.Duration,
) *HTTPHandlerImpl {
	return &HTTPHandlerImpl{
		dataStore: dataStore,
		searcher:  searcher,
		validator: validator,
		health:    health,
		cache:     c,
		stats:     cache.NewTyped[entities.Stats](c),
		ttl:       ttl,
	}
}

// SearchResponse is the body of /search. Pending is set when the index could
// not answer yet; Results is then empty and the client should retry.
type SearchResponse struct {
	Query   string                 `json:"query"`
	Filters entities.SearchFilters `json:"filters"`
	Limit   int                    `json:"limit"`
	Count   int                    `json:"count"`
	Results []entities.Medication  `json:"results"`
	Pending bool                   `json:"pending"`
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status        string         `json:"status"`
	Uptime        string         `json:"uptime"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Data          map[string]any `json:"data"`
	System        map[string]any `json:"system"`
}

// Search serves GET /search?q=&insurance=&safety=&maxPrice=&minCoverage=&limit=
func (h *HTTPHandlerImpl) Search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := strings.TrimSpace(params.Get("q"))

	filters, err := h.validator.ParseFilters(
		params.Get("insurance"),
		params.Get("safety"),
		params.Get("maxPrice"),
		params.Get("minCoverage"),
	)
	if err != nil {
		logging.Warn("Unusual user input", "filters", r.URL.RawQuery, "error", err)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := h.validator.ParseLimit(params.Get("limit"))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit = search.ClampLimit(limit)

	if query == "" && filters.IsEmpty() {
		RespondWithError(w, http.StatusBadRequest, "Missing search term")
		return
	}
	if query != "" {
		if err := h.validator.ValidateInput(query); err != nil {
			logging.Warn("Unusual user input", "q", query, "error", err)
			RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	response := SearchResponse{
		Query:   query,
		Filters: filters,
		Limit:   limit,
		Results: []entities.Medication{},
	}

	var results []entities.Medication
	err = h.cache.GetOrSet(r.Context(), searchCacheKey(query, filters, limit), &results,
		func(ctx context.Context) (any, error) {
			return h.searcher.Search(ctx, query, filters, limit)
		}, h.ttl)

	switch {
	case err == nil:
		if results != nil {
			response.Results = results
		}
	case protocol.IsTransient(err):
		logging.Info("Search answered as pending", "q", query, "kind", protocol.KindOf(err))
		response.Pending = true
	default:
		h.respondWithHostError(w, err)
		return
	}

	response.Count = len(response.Results)
	RespondWithJSON(w, http.StatusOK, response)
}

// GetMedication serves GET /medications/{id}
func (h *HTTPHandlerImpl) GetMedication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.validator.ValidateID(id); err != nil {
		logging.Warn("Unusual user input", "id", id, "error", err)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.searcher.GetByID(r.Context(), id)
	if err != nil {
		h.respondWithHostError(w, err)
		return
	}
	if rec == nil {
		RespondWithError(w, http.StatusNotFound, "Medication not found")
		return
	}

	RespondWithJSON(w, http.StatusOK, rec)
}

// GetStats serves GET /stats
func (h *HTTPHandlerImpl) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetOrSet(r.Context(), statsCacheKey, h.searcher.GetStats, h.ttl)
	if err != nil {
		h.respondWithHostError(w, err)
		return
	}

	RespondWithJSON(w, http.StatusOK, stats)
}

// HealthCheck serves GET /health
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status, data, httpStatus := h.health.HealthCheck(r.Context())

	var uptime time.Duration
	if start := h.dataStore.GetServerStartTime(); !start.IsZero() {
		uptime = time.Since(start)
	}

	response := HealthResponse{
		Status:        status,
		Uptime:        formatUptimeHuman(uptime),
		UptimeSeconds: uptime.Seconds(),
		Data:          data,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       int(m.Alloc / 1024 / 1024),
				"total_alloc_mb": int(m.TotalAlloc / 1024 / 1024),
				"sys_mb":         int(m.Sys / 1024 / 1024),
				"num_gc":         m.NumGC,
			},
		},
	}

	RespondWithJSON(w, httpStatus, response)
}

// respondWithHostError maps a search host failure to an HTTP status
func (h *HTTPHandlerImpl) respondWithHostError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		logging.Debug("Client went away before the search host answered")
	case errors.Is(err, protocol.ErrNotInitialized):
		w.Header().Set("Retry-After", retryAfter)
		RespondWithError(w, http.StatusServiceUnavailable, "Dataset is loading, retry shortly")
	case errors.Is(err, protocol.ErrTimeout):
		w.Header().Set("Retry-After", retryAfter)
		RespondWithError(w, http.StatusServiceUnavailable, "Search host did not answer in time")
	case errors.Is(err, protocol.ErrHostUnavailable):
		logging.Error("Search host unavailable", "error", err)
		RespondWithError(w, http.StatusServiceUnavailable, "Search service unavailable")
	case errors.Is(err, protocol.ErrMalformedPayload):
		RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		logging.Error("Search host request failed", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// searchCacheKey identifies a search by its normalized query, filters and limit
func searchCacheKey(query string, filters entities.SearchFilters, limit int) string {
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(search.Normalize(query))
	b.WriteString("|ins=")
	b.WriteString(filters.InsuranceType)
	b.WriteString("|safety=")
	b.WriteString(string(filters.SafetyLevel))
	b.WriteString("|max=")
	b.WriteString(formatOptional(filters.MaxPrice))
	b.WriteString("|min=")
	b.WriteString(formatOptional(filters.MinCoverage))
	b.WriteString("|limit=")
	b.WriteString(strconv.Itoa(limit))
	return b.String()
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// formatUptimeHuman formats duration into a human-readable string
func formatUptimeHuman(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string

	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}
