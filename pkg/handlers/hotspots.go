package handlers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/auth"
	"github.com/duraeco/duraeco-engine/pkg/models"
	"github.com/duraeco/duraeco-engine/pkg/services"
)

// HotspotsHandler serves the hotspot read API.
type HotspotsHandler struct {
	hotspots services.HotspotService
	logger   *zap.Logger
}

// NewHotspotsHandler creates a new hotspots handler.
func NewHotspotsHandler(hotspots services.HotspotService, logger *zap.Logger) *HotspotsHandler {
	return &HotspotsHandler{hotspots: hotspots, logger: logger}
}

// RegisterRoutes registers the hotspots handler's routes on the given mux.
func (h *HotspotsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/hotspots", authMiddleware.RequireUser(h.List))
	mux.HandleFunc("GET /api/hotspots/{id}", authMiddleware.RequireUser(h.Get))
}

// List handles GET /api/hotspots.
// Returns active hotspots ordered by average severity.
func (h *HotspotsHandler) List(w http.ResponseWriter, r *http.Request) {
	hotspots, err := h.hotspots.ListActive(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if hotspots == nil {
		hotspots = []*models.Hotspot{}
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"hotspots": hotspots}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/hotspots/{id}.
// Includes the IDs of the member reports.
func (h *HotspotsHandler) Get(w http.ResponseWriter, r *http.Request) {
	hotspotID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: invalid hotspot id", apperrors.ErrValidation))
		return
	}

	hotspot, err := h.hotspots.GetHotspot(r.Context(), hotspotID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, hotspot); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
