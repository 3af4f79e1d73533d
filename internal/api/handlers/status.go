package handlers

import (
	"net/http"

	"github.com/quantlab-kr/kscreener/internal/storage"
	"github.com/quantlab-kr/kscreener/pkg/logger"
)

// StatusHandler reports cache and job state
type StatusHandler struct {
	store  *storage.Store
	logger *logger.Logger
}

// NewStatusHandler creates a status handler
func NewStatusHandler(store *storage.Store, log *logger.Logger) *StatusHandler {
	return &StatusHandler{
		store:  store,
		logger: log,
	}
}

// StatusResponse summarizes the cache contents and recent job activity
type StatusResponse struct {
	DBPath             string                `json:"db_path"`
	TableCounts        map[string]int        `json:"table_counts"`
	LatestPriceDate    string                `json:"latest_price_date,omitempty"`
	LatestSnapshotDate string                `json:"latest_snapshot_date,omitempty"`
	RecentJobs         []storage.JobLogEntry `json:"recent_jobs"`
}

// GetStatus returns table counts, latest dates and the job_log tail
// GET /api/v1/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.store.TableCounts(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to count tables")
		respondError(w, http.StatusInternalServerError, "Failed to count tables")
		return
	}

	priceDate, err := h.store.LatestPriceDate(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve latest price date")
		respondError(w, http.StatusInternalServerError, "Failed to resolve latest price date")
		return
	}

	snapshotDate, err := h.store.LatestSnapshotDate(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to resolve latest snapshot date")
		respondError(w, http.StatusInternalServerError, "Failed to resolve latest snapshot date")
		return
	}

	jobs, err := h.store.RecentJobs(ctx, 20)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read job log")
		respondError(w, http.StatusInternalServerError, "Failed to read job log")
		return
	}
	if jobs == nil {
		jobs = []storage.JobLogEntry{}
	}

	respondJSON(w, http.StatusOK, StatusResponse{
		DBPath:             h.store.Path(),
		TableCounts:        counts,
		LatestPriceDate:    priceDate,
		LatestSnapshotDate: snapshotDate,
		RecentJobs:         jobs,
	})
}
