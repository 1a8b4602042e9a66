package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alex-user-go/luxsearch/internal/middleware"
	"github.com/alex-user-go/luxsearch/internal/obs"
	"github.com/alex-user-go/luxsearch/internal/providers"
	"github.com/alex-user-go/luxsearch/internal/search"
	"github.com/alex-user-go/luxsearch/internal/search/cache"
	"github.com/alex-user-go/luxsearch/internal/search/normalize"
	"github.com/alex-user-go/luxsearch/internal/search/ratelimit"
	"github.com/alex-user-go/luxsearch/internal/search/types"
)

const (
	defaultAdults = 2
	maxBodyBytes  = 1 << 20
)

// Handler handles HTTP requests.
type Handler struct {
	aggregator  *search.Aggregator
	normalizer  *normalize.Normalizer
	cache       *cache.Cache
	rateLimiter *ratelimit.Limiter
	metrics     *obs.Metrics
	logger      *slog.Logger
}

// New creates a new Handler.
func New(
	aggregator *search.Aggregator,
	normalizer *normalize.Normalizer,
	searchCache *cache.Cache,
	rateLimiter *ratelimit.Limiter,
	metrics *obs.Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		aggregator:  aggregator,
		normalizer:  normalizer,
		cache:       searchCache,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		logger:      logger,
	}
}

// SearchResponse is the canonical response plus the echoed stay and stats.
type SearchResponse struct {
	types.Response
	Search providers.Stay `json:"search"`
	Stats  SearchStats    `json:"stats"`
}

// SearchStats contains search statistics.
type SearchStats struct {
	ProvidersTotal     int    `json:"providers_total"`
	ProvidersSucceeded int    `json:"providers_succeeded"`
	ProvidersFailed    int    `json:"providers_failed"`
	Cache              string `json:"cache"`
	DurationMs         int64  `json:"duration_ms"`
}

// SearchRequest is the POST /search body.
type SearchRequest struct {
	Query string         `json:"query"`
	Stay  providers.Stay `json:"stay"`
}

// SearchHandler handles GET /search.
func (h *Handler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, func() (providers.Stay, error) {
		return ParseSearchParams(r)
	})
}

// SearchPostHandler handles POST /search with a JSON body.
func (h *Handler) SearchPostHandler(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, func() (providers.Stay, error) {
		return ParseSearchBody(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, parse func() (providers.Stay, error)) {
	startTime := time.Now()
	h.metrics.IncRequests()
	requestID := middleware.RequestID(r.Context())

	ip := ExtractIP(r)
	if !h.rateLimiter.Allow(ip) {
		h.metrics.IncRateLimited()
		h.logger.Warn("rate limit exceeded", "request_id", requestID, "ip", ip)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	stay, err := parse()
	if err != nil {
		h.logger.Debug("invalid request parameters", "request_id", requestID, "error", err, "ip", ip)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := h.cache.Key(stay)

	result, cacheHit, err := h.cache.GetOrFetch(r.Context(), key, func() (*types.Result, error) {
		return h.aggregator.Search(r.Context(), stay)
	})
	if err != nil {
		h.logger.Error("search failed",
			"request_id", requestID,
			"error", err,
			"check_in", stay.CheckIn,
			"city_code", stay.CityCode,
			"ip", ip,
		)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
		h.metrics.IncCacheHits()
	}

	writeJSON(w, h.logger, http.StatusOK, SearchResponse{
		Response: result.Response,
		Search:   stay,
		Stats: SearchStats{
			ProvidersTotal:     result.ProvidersTotal,
			ProvidersSucceeded: result.ProvidersSucceeded,
			ProvidersFailed:    result.ProvidersFailed,
			Cache:              cacheStatus,
			DurationMs:         time.Since(startTime).Milliseconds(),
		},
	})
}

// NormalizeHandler handles POST /normalize. Any JSON body is accepted.
func (h *Handler) NormalizeHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp := h.normalizer.Normalize(payload)
	h.logger.Debug("payload normalized",
		"request_id", middleware.RequestID(r.Context()),
		"items", len(resp.Items),
	)

	writeJSON(w, h.logger, http.StatusOK, resp)
}

// ParseSearchParams parses and validates search parameters from the query string.
func ParseSearchParams(r *http.Request) (providers.Stay, error) {
	query := r.URL.Query()

	stay := providers.Stay{
		CheckIn:  strings.TrimSpace(query.Get("check_in")),
		CheckOut: strings.TrimSpace(query.Get("check_out")),
		CityCode: strings.ToUpper(strings.TrimSpace(query.Get("city_code"))),
		Adults:   defaultAdults,
		Query:    strings.TrimSpace(query.Get("q")),
	}

	// Unparseable numbers become invalid values so ValidateStay reports
	// errors in field order.
	if v := query.Get("adults"); v != "" {
		adults, err := strconv.Atoi(v)
		if err != nil || adults <= 0 {
			adults = -1
		}
		stay.Adults = adults
	}

	if v := strings.TrimSpace(query.Get("max_price_gbp")); v != "" {
		stay.MaxPriceGBP = -1
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			stay.MaxPriceGBP, _ = d.Float64()
		}
	}

	if err := ValidateStay(stay); err != nil {
		return providers.Stay{}, err
	}

	if v := query.Get("indoor_pool"); v != "" {
		pool, err := strconv.ParseBool(v)
		if err != nil {
			return providers.Stay{}, errors.New("indoor_pool must be true or false")
		}
		stay.WantsIndoorPool = pool
	}

	return stay, nil
}

// ParseSearchBody decodes and validates a POST /search body.
func ParseSearchBody(body io.Reader) (providers.Stay, error) {
	var req SearchRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return providers.Stay{}, errors.New("invalid JSON body")
	}

	stay := req.Stay
	stay.CheckIn = strings.TrimSpace(stay.CheckIn)
	stay.CheckOut = strings.TrimSpace(stay.CheckOut)
	stay.CityCode = strings.ToUpper(strings.TrimSpace(stay.CityCode))
	if stay.Query == "" {
		stay.Query = strings.TrimSpace(req.Query)
	}
	if stay.Adults == 0 {
		stay.Adults = defaultAdults
	}

	if err := ValidateStay(stay); err != nil {
		return providers.Stay{}, err
	}
	return stay, nil
}

// ValidateStay checks the fields every search needs.
func ValidateStay(stay providers.Stay) error {
	if stay.CheckIn == "" {
		return errors.New("check_in is required")
	}
	in, err := time.Parse(time.DateOnly, stay.CheckIn)
	if err != nil {
		return errors.New("check_in must be in YYYY-MM-DD format")
	}

	if stay.CheckOut == "" {
		return errors.New("check_out is required")
	}
	out, err := time.Parse(time.DateOnly, stay.CheckOut)
	if err != nil {
		return errors.New("check_out must be in YYYY-MM-DD format")
	}
	if !out.After(in) {
		return errors.New("check_out must be after check_in")
	}

	if stay.Adults <= 0 {
		return errors.New("adults must be a positive integer")
	}
	if stay.MaxPriceGBP < 0 {
		return errors.New("max_price_gbp must be a positive number")
	}
	if stay.CityCode != "" && !isCityCode(stay.CityCode) {
		return errors.New("city_code must be a 3-letter code")
	}
	return nil
}

func isCityCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// ExtractIP extracts the client IP from the request.
// Checks X-Forwarded-For, X-Real-IP, then falls back to RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Can't change status after WriteHeader, just log
		logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
