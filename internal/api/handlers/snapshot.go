package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/quantlab-kr/kscreener/internal/contracts"
	"github.com/quantlab-kr/kscreener/internal/storage"
	"github.com/quantlab-kr/kscreener/pkg/logger"
)

// SnapshotHandler serves the snapshot read path
// ⭐ SSOT: 스냅샷 API 핸들러는 이 구조체에서만
type SnapshotHandler struct {
	store  *storage.Store
	logger *logger.Logger
}

// NewSnapshotHandler creates a snapshot handler
func NewSnapshotHandler(store *storage.Store, log *logger.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		store:  store,
		logger: log,
	}
}

// SnapshotResponse wraps one as-of date's snapshot rows
type SnapshotResponse struct {
	AsofDate string                  `json:"asof_date"`
	Count    int                     `json:"count"`
	Rows     []contracts.SnapshotRow `json:"rows"`
}

// GetSnapshot returns snapshot rows for one as-of date
// GET /api/v1/snapshot?asof=YYYY-MM-DD&limit=N
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	asof := r.URL.Query().Get("asof")
	if asof != "" {
		if _, err := time.Parse("2006-01-02", asof); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'asof' date format (expected YYYY-MM-DD)")
			return
		}
	} else {
		latest, err := h.store.LatestSnapshotDate(ctx)
		if err != nil {
			h.logger.WithError(err).Error("Failed to resolve latest snapshot date")
			respondError(w, http.StatusInternalServerError, "Failed to resolve latest snapshot date")
			return
		}
		if latest == "" {
			respondError(w, http.StatusNotFound, "No snapshot available: run full collection first")
			return
		}
		asof = latest
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected a non-negative integer)")
			return
		}
		limit = n
	}

	rows, err := h.store.LoadSnapshot(ctx, asof)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load snapshot")
		respondError(w, http.StatusInternalServerError, "Failed to load snapshot")
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusNotFound, "No snapshot rows for "+asof)
		return
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}

	respondJSON(w, http.StatusOK, SnapshotResponse{
		AsofDate: asof,
		Count:    len(rows),
		Rows:     rows,
	})
}

// GetDates lists every as-of date that has a snapshot
// GET /api/v1/snapshot/dates
func (h *SnapshotHandler) GetDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.store.SnapshotDates(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list snapshot dates")
		respondError(w, http.StatusInternalServerError, "Failed to list snapshot dates")
		return
	}
	if dates == nil {
		dates = []string{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(dates),
		"dates": dates,
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
