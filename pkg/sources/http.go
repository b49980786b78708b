package sources

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
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/origins/{origin}/rows", h.handleIngestRows).Methods(http.MethodPost)
	router.HandleFunc("/origins/{origin}/rows", h.handleListRows).Methods(http.MethodGet)
	router.HandleFunc("/origins/{origin}/rows/{id}", h.handleRetractRow).Methods(http.MethodDelete)
}

func (h *HTTPHandler) handleIngestRows(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	origin := models.Origin(mux.Vars(r)["origin"])
	if !origin.Valid() {
		http.Error(w, "unknown origin", http.StatusNotFound)
		return
	}

	var req models.RawRowsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid intake payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Rows) == 0 {
		http.Error(w, "rows required", http.StatusBadRequest)
		return
	}

	resp, err := h.service.IngestRows(r.Context(), origin, req.Rows)
	if err != nil {
		if errors.Is(err, ErrUnknownOrigin) {
			http.Error(w, "unknown origin", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to ingest rows")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

func (h *HTTPHandler) handleListRows(w http.ResponseWriter, r *http.Request) {
	origin := models.Origin(mux.Vars(r)["origin"])
	if !origin.Valid() {
		http.Error(w, "unknown origin", http.StatusNotFound)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.service.ListRows(r.Context(), origin, limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list rows")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": records})
}

func (h *HTTPHandler) handleRetractRow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	origin := models.Origin(vars["origin"])
	if !origin.Valid() {
		http.Error(w, "unknown origin", http.StatusNotFound)
		return
	}

	if err := h.service.RetractRow(r.Context(), origin, vars["id"]); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to retract row")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
