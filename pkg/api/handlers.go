package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goran-ethernal/ChainSyncer/internal/dispatcher"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/internal/state"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
	"github.com/sugawarayuuta/sonnet"
)

const maxBodySize = 1 << 16

// IndexRegistry gives access to the running indexes.
type IndexRegistry interface {
	Indexes() []models.IndexState
	Index(name string) (models.IndexState, bool)
	RollbackIndex(ctx context.Context, name string, toLevel uint64) (int, error)
}

// Handler handles HTTP requests for the API.
type Handler struct {
	registry IndexRegistry
	log      *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(registry IndexRegistry, log *logger.Logger) *Handler {
	return &Handler{
		registry: registry,
		log:      log,
	}
}

// ListIndexes returns every configured index.
// @Summary List all indexes
// @Description Get the state of every configured index with its available endpoints
// @Tags Indexes
// @Produce json
// @Success 200 {array} IndexInfo "List of indexes"
// @Router /indexes [get]
func (h *Handler) ListIndexes(w http.ResponseWriter, _ *http.Request) {
	states := h.registry.Indexes()

	infos := make([]IndexInfo, 0, len(states))
	for _, st := range states {
		infos = append(infos, indexInfo(st))
	}

	respondJSON(w, http.StatusOK, infos)
}

// GetIndex returns a single index.
// @Summary Get an index
// @Description Get the state of a single index
// @Tags Indexes
// @Produce json
// @Param name path string true "Index name"
// @Success 200 {object} IndexInfo "Index state"
// @Failure 404 {object} ErrorResponse "Index not found"
// @Router /indexes/{name} [get]
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	st, ok := h.registry.Index(name)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("index '%s' not found", name))
		return
	}

	respondJSON(w, http.StatusOK, indexInfo(st))
}

// RollbackIndex reverts an index to a lower level.
// @Summary Roll back an index
// @Description Revert the persisted effects of an index above to_level; the index resynchronizes from there
// @Tags Indexes
// @Accept json
// @Produce json
// @Param name path string true "Index name"
// @Param request body RollbackRequest true "Target level"
// @Success 200 {object} RollbackResponse "Rollback result"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 404 {object} ErrorResponse "Index not found"
// @Failure 409 {object} ErrorResponse "Target level is beyond the rollback depth"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /indexes/{name}/rollback [post]
func (h *Handler) RollbackIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req RollbackRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err == nil {
		err = sonnet.Unmarshal(body, &req)
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	reverted, err := h.registry.RollbackIndex(r.Context(), name, req.ToLevel)
	switch {
	case err == nil:
	case errors.Is(err, dispatcher.ErrUnknownIndex):
		respondError(w, http.StatusNotFound, fmt.Sprintf("index '%s' not found", name))
		return
	case errors.Is(err, dispatcher.ErrNothingToRollback):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, state.ErrRollbackDepthExceeded):
		respondError(w, http.StatusConflict, err.Error())
		return
	default:
		h.log.Errorw("manual rollback failed", "index", name, "to_level", req.ToLevel, "error", err)
		respondError(w, http.StatusInternalServerError, "rollback failed")
		return
	}

	respondJSON(w, http.StatusOK, RollbackResponse{Index: name, ToLevel: req.ToLevel, Reverted: reverted})
}

// Health returns the health status of the API and all indexes.
// @Summary Health check
// @Description Check the health status of the API and all indexes. A failed index makes the service degraded.
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "API and index health status"
// @Failure 503 {object} HealthResponse "At least one index failed"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	states := h.registry.Indexes()

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Indexes:   make([]IndexHealth, 0, len(states)),
	}

	status := http.StatusOK
	for _, st := range states {
		healthy := st.Status != models.IndexStatusFailed
		if !healthy {
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}

		response.Indexes = append(response.Indexes, IndexHealth{
			Name:    st.Name,
			Kind:    st.Kind,
			Status:  st.Status,
			Level:   st.Level,
			Healthy: healthy,
		})
	}

	respondJSON(w, status, response)
}

func indexInfo(st models.IndexState) IndexInfo {
	return IndexInfo{
		IndexState: st,
		Endpoints: []string{
			fmt.Sprintf("/api/v1/indexes/%s", st.Name),
			fmt.Sprintf("/api/v1/indexes/%s/rollback", st.Name),
		},
	}
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	// Encode first so an encoding error can still change the status
	encoded, err := sonnet.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)

	// Headers are already sent; a failed write can't be reported to the client
	_, _ = w.Write(encoded)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}
	respondJSON(w, status, response)
}
