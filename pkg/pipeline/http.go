package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carelink-health/platform/pkg/common/logger"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/runs", h.handleTriggerRun).Methods(http.MethodPost)
	router.HandleFunc("/runs/latest", h.handleLatestRun).Methods(http.MethodGet)
}

// handleTriggerRun executes a consolidation run synchronously and returns its
// summary. A 409 means another instance already holds the run lock.
func (h *HTTPHandler) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Execute(r.Context())
	if errors.Is(err, ErrRunInProgress) {
		http.Error(w, "a run is already in progress", http.StatusConflict)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("consolidation run failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *HTTPHandler) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.LatestSummary(r.Context())
	if errors.Is(err, ErrNoRun) {
		http.Error(w, "no run recorded yet", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to load run summary")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
