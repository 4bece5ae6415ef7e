package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// Handler serves GET /api/v1/analytics/stats.
type Handler struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Stats writes the aggregated statistics. The optional top parameter
// (1..10) shortens the ranked lists.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.aggregator.Stats()
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > topLimit {
			http.Error(w, `{"error":"top must be between 1 and 10"}`, http.StatusBadRequest)
			return
		}
		stats.TopQueries = truncate(stats.TopQueries, n)
		stats.TopLocations = truncate(stats.TopLocations, n)
		stats.ZeroResultQueries = truncate(stats.ZeroResultQueries, n)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}

func truncate(qc []QueryCount, n int) []QueryCount {
	if len(qc) > n {
		return qc[:n]
	}
	return qc
}
