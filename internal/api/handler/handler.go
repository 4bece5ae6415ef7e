// Package handler serves the job API: paged job queries, cache control and
// index maintenance.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/jobs"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/refresh"
	apperrors "github.com/Adithya-Monish-Kumar-K/jobmap/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/tracing"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Querier interface {
	Query(ctx context.Context, req engine.Request) (*engine.Result, error)
	Rebuild(ctx context.Context) error
}

// CacheController is implemented by *cache.ResultCache.
type CacheController interface {
	Stats() cache.Stats
	InvalidateAll()
}

// Refresher is implemented by *refresh.Refresher.
type Refresher interface {
	Refresh(ctx context.Context, trigger string) error
}

type Options struct {
	DefaultLimit       int
	MaxLimit           int
	SlowQueryThreshold time.Duration
	// Admin wraps the mutating endpoints. Nil leaves them open.
	Admin func(http.Handler) http.Handler
}

type Handler struct {
	engine    Querier
	cache     CacheController
	refresher Refresher
	tracker   analytics.Tracker
	opts      Options
	logger    *slog.Logger
}

// New creates a Handler. refresher and tracker may be nil.
func New(eng Querier, c CacheController, r Refresher, tracker analytics.Tracker, opts Options) *Handler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 50
	}
	if opts.MaxLimit > 0 && opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	return &Handler{
		engine:    eng,
		cache:     c,
		refresher: r,
		tracker:   tracker,
		opts:      opts,
		logger:    slog.Default().With("component", "api-handler"),
	}
}

// Register mounts every endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/jobs", h.Jobs)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.Handle("POST /api/v1/cache/invalidate", h.admin(h.CacheInvalidate))
	mux.Handle("POST /api/v1/index/rebuild", h.admin(h.Rebuild))
	mux.Handle("POST /api/v1/refresh", h.admin(h.Refresh))
}

func (h *Handler) admin(fn http.HandlerFunc) http.Handler {
	if h.opts.Admin == nil {
		return fn
	}
	return h.opts.Admin(fn)
}

type jobsParams struct {
	Query    string `validate:"max=256"`
	Location string `validate:"max=128"`
	Limit    int    `validate:"gte=0"`
	Offset   int    `validate:"gte=0"`
}

type jobsResponse struct {
	Items   []jobs.DisplayJob `json:"items"`
	Total   int               `json:"total"`
	HasMore bool              `json:"hasMore"`
}

// Jobs answers GET /api/v1/jobs?q=&location=&limit=&offset=.
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := logger.RequestID(r.Context())
	ctx, span := tracing.StartSpan(r.Context(), "http.jobs", requestID)
	log := logger.FromContext(ctx)
	defer span.LogIfSlow(log, h.opts.SlowQueryThreshold)

	params, err := h.parseJobsParams(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	span.SetAttr("limit", params.Limit)
	span.SetAttr("offset", params.Offset)

	res, err := h.engine.Query(ctx, engine.Request{
		Query:    params.Query,
		Location: params.Location,
		Limit:    params.Limit,
		Offset:   params.Offset,
	})
	if err != nil {
		log.Error("job query failed", "query", params.Query, "location", params.Location, "error", err)
		h.writeError(w, err)
		return
	}

	latency := time.Since(start)
	log.Info("job query answered",
		"query", params.Query,
		"location", params.Location,
		"total", res.Total,
		"returned", len(res.Items),
		"offset", params.Offset,
		"cache_hit", res.Cached,
		"latency_ms", latency.Milliseconds(),
	)
	if h.tracker != nil {
		event := analytics.NewSearchEvent(
			engine.Normalize(params.Query),
			engine.Normalize(params.Location),
			res.Total, len(res.Items), params.Offset, latency, res.Cached,
		)
		event.RequestID = requestID
		h.tracker.Track(event)
	}

	h.writeJSON(w, http.StatusOK, jobsResponse{
		Items:   res.Items,
		Total:   res.Total,
		HasMore: params.Offset+len(res.Items) < res.Total,
	})
}

func (h *Handler) parseJobsParams(r *http.Request) (jobsParams, error) {
	q := r.URL.Query()
	p := jobsParams{
		Query:    q.Get("q"),
		Location: q.Get("location"),
		Limit:    h.opts.DefaultLimit,
	}
	var err error
	if v := q.Get("limit"); v != "" {
		if p.Limit, err = strconv.Atoi(v); err != nil {
			return p, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit %q is not an integer", v)
		}
	}
	if v := q.Get("offset"); v != "" {
		if p.Offset, err = strconv.Atoi(v); err != nil {
			return p, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "offset %q is not an integer", v)
		}
	}
	if err := validate.Struct(p); err != nil {
		return p, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, describeValidation(err))
	}
	if p.Limit == 0 || (h.opts.MaxLimit > 0 && p.Limit > h.opts.MaxLimit) {
		p.Limit = h.opts.MaxLimit
	}
	return p, nil
}

var paramNames = map[string]string{
	"Query":    "q",
	"Location": "location",
	"Limit":    "limit",
	"Offset":   "offset",
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	name := paramNames[fe.Field()]
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must not be negative", name)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	h.cache.InvalidateAll()
	logger.FromContext(r.Context()).Info("result cache invalidated via api")
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// Rebuild reindexes the records already loaded.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.engine.Rebuild(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("index rebuild failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "rebuilt",
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// Refresh reloads records from the source, then rebuilds the index.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		h.writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusServiceUnavailable, "refresh is disabled"))
		return
	}
	if err := h.refresher.Refresh(r.Context(), refresh.TriggerAPI); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Client errors carry their message;
// server errors are reported generically.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := http.StatusText(status)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	} else if status == http.StatusServiceUnavailable {
		message = "job records are unavailable, try again later"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
