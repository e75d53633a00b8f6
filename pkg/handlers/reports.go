package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/auth"
	"github.com/duraeco/duraeco-engine/pkg/models"
	"github.com/duraeco/duraeco-engine/pkg/repositories"
	"github.com/duraeco/duraeco-engine/pkg/services"
)

// maxImageBytes caps the uploaded photo size.
const maxImageBytes = 10 << 20

// ReportsHandler handles waste report HTTP requests.
type ReportsHandler struct {
	reports services.ReportService
	logger  *zap.Logger
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(reports services.ReportService, logger *zap.Logger) *ReportsHandler {
	return &ReportsHandler{reports: reports, logger: logger}
}

// RegisterRoutes registers the reports handler's routes on the given mux.
func (h *ReportsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/reports", authMiddleware.RequireUser(h.Submit))
	mux.HandleFunc("GET /api/reports", authMiddleware.RequireUser(h.List))
	mux.HandleFunc("GET /api/reports/nearby", authMiddleware.RequireUser(h.ListNearby))
	mux.HandleFunc("GET /api/reports/{id}", authMiddleware.RequireUser(h.Get))
	mux.HandleFunc("DELETE /api/reports/{id}", authMiddleware.RequireUser(h.Delete))
}

// Submit handles POST /api/reports.
// Accepts multipart form data: latitude, longitude, description and an
// optional image file. Returns 202 because analysis continues asynchronously.
func (h *ReportsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserID(r.Context())
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
		return
	}

	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: invalid multipart form: %v", apperrors.ErrValidation, err))
		return
	}

	latitude, err := strconv.ParseFloat(r.FormValue("latitude"), 64)
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: latitude must be a number", apperrors.ErrValidation))
		return
	}
	longitude, err := strconv.ParseFloat(r.FormValue("longitude"), 64)
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: longitude must be a number", apperrors.ErrValidation))
		return
	}

	input := &services.SubmitReportInput{
		UserID:      userID,
		Latitude:    latitude,
		Longitude:   longitude,
		Description: r.FormValue("description"),
	}

	if file, header, err := r.FormFile("image"); err == nil {
		defer func() { _ = file.Close() }()
		data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
		if err != nil {
			respondError(w, h.logger, fmt.Errorf("%w: failed to read image: %v", apperrors.ErrValidation, err))
			return
		}
		if len(data) > maxImageBytes {
			respondError(w, h.logger, fmt.Errorf("%w: image exceeds %d bytes", apperrors.ErrValidation, maxImageBytes))
			return
		}
		input.ImageData = data
		input.ImageContentType = header.Header.Get("Content-Type")
	}

	report, err := h.reports.SubmitReport(r.Context(), input)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, report); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/reports/{id}.
// Includes the analysis result once the report reaches analyzed.
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	reportID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: invalid report id", apperrors.ErrValidation))
		return
	}

	report, err := h.reports.GetReport(r.Context(), reportID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/reports.
// Supports status, mine and limit query parameters.
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repositories.ReportFilter{}

	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status := models.ReportStatus(statusParam)
		switch status {
		case models.ReportStatusSubmitted, models.ReportStatusAnalyzing, models.ReportStatusAnalyzed:
			filter.Status = &status
		default:
			respondError(w, h.logger, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, statusParam))
			return
		}
	}

	if r.URL.Query().Get("mine") == "true" {
		userID, err := auth.RequireUserID(r.Context())
		if err != nil {
			respondError(w, h.logger, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
			return
		}
		filter.UserID = &userID
	}

	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil {
			respondError(w, h.logger, fmt.Errorf("%w: limit must be a number", apperrors.ErrValidation))
			return
		}
		filter.Limit = limit
	}

	reports, err := h.reports.ListReports(r.Context(), filter)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"reports": reports}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListNearby handles GET /api/reports/nearby.
// Requires lat and lon query parameters; radius_km is optional.
func (h *ReportsHandler) ListNearby(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: lat must be a number", apperrors.ErrValidation))
		return
	}
	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: lon must be a number", apperrors.ErrValidation))
		return
	}

	var radiusKm float64
	if radiusParam := r.URL.Query().Get("radius_km"); radiusParam != "" {
		radiusKm, err = strconv.ParseFloat(radiusParam, 64)
		if err != nil {
			respondError(w, h.logger, fmt.Errorf("%w: radius_km must be a number", apperrors.ErrValidation))
			return
		}
	}

	reports, err := h.reports.ListNearbyReports(r.Context(), lat, lon, radiusKm)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"reports": reports}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/reports/{id}.
// Only the submitting user may delete their report.
func (h *ReportsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserID(r.Context())
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
		return
	}

	reportID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: invalid report id", apperrors.ErrValidation))
		return
	}

	report, err := h.reports.GetReport(r.Context(), reportID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if report.Report.UserID != userID {
		respondError(w, h.logger, fmt.Errorf("%w: report belongs to another user", apperrors.ErrForbidden))
		return
	}

	if err := h.reports.DeleteReport(r.Context(), reportID); err != nil {
		respondError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
