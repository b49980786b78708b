package canonical

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/carelink-health/platform/pkg/common/logger"
	"github.com/gorilla/mux"
)

type HTTPHandler struct {
	repo *Repository
}

func NewHTTPHandler(repo *Repository) *HTTPHandler {
	return &HTTPHandler{repo: repo}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/patients", h.handleListPatients).Methods(http.MethodGet)
	router.HandleFunc("/patients/{id}", h.handleGetPatient).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleListPatients(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	records, err := h.repo.List(r.Context(), limit, includeInactive)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list canonical patients")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": records})
}

func (h *HTTPHandler) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record, err := h.repo.Get(r.Context(), id)
	if errors.Is(err, ErrPatientNotFound) {
		http.Error(w, "patient not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).WithField("canonical_id", id).Error("failed to load canonical patient")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
