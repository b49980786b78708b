package review

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/carelink-health/platform/pkg/common/logger"
	"github.com/carelink-health/platform/pkg/common/models"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/reviews", h.handleListPending).Methods(http.MethodGet)
	router.HandleFunc("/reviews/{id}", h.handleResolve).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleListPending(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	pending, err := h.service.Pending(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list pending reviews")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": pending})
}

func (h *HTTPHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req models.ResolveReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	decision, err := h.service.Resolve(r.Context(), mux.Vars(r)["id"], req.Outcome, req.ResolvedBy)
	switch {
	case errors.Is(err, ErrInvalidOutcome):
		http.Error(w, "outcome must be confirmed or declined", http.StatusBadRequest)
		return
	case errors.Is(err, ErrDecisionNotFound):
		http.Error(w, "decision not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrAlreadyResolved):
		http.Error(w, "decision already resolved", http.StatusConflict)
		return
	case err != nil:
		logger.Log.WithError(err).Error("failed to resolve review")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"decision": decision})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
