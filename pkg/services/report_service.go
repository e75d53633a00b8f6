package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/database"
	"github.com/duraeco/duraeco-engine/pkg/geo"
	"github.com/duraeco/duraeco-engine/pkg/models"
	"github.com/duraeco/duraeco-engine/pkg/repositories"
	"github.com/duraeco/duraeco-engine/pkg/storage"
)

// AnalysisEnqueuer hands analysis work to the background queue. Enqueue
// reports whether the job was accepted; a full queue is not an error
// because the sweeper re-discovers pending reports.
type AnalysisEnqueuer interface {
	Enqueue(reportID uuid.UUID) bool
}

// SubmitReportInput carries a citizen's report submission.
type SubmitReportInput struct {
	UserID      uuid.UUID
	Latitude    float64
	Longitude   float64
	Description string
	// ImageData is the raw photo. Optional: reports without a photo are
	// stored but never analyzed.
	ImageData        []byte
	ImageContentType string
}

// ReportWithAnalysis pairs a report with its analysis, if any.
type ReportWithAnalysis struct {
	Report   *models.Report         `json:"report"`
	Analysis *models.AnalysisResult `json:"analysis,omitempty"`
}

// ReportService provides operations for submitting and managing waste reports.
type ReportService interface {
	// SubmitReport validates and stores a new report, uploads its photo,
	// and queues it for analysis when a photo is present.
	SubmitReport(ctx context.Context, input *SubmitReportInput) (*models.Report, error)
	GetReport(ctx context.Context, id uuid.UUID) (*ReportWithAnalysis, error)
	ListReports(ctx context.Context, filter repositories.ReportFilter) ([]*models.Report, error)
	// ListNearbyReports returns analyzed reports around a point, closest
	// first. A non-positive radius falls back to the hotspot radius.
	ListNearbyReports(ctx context.Context, lat, lon, radiusKm float64) ([]*models.Report, error)
	// DeleteReport removes a report and re-evaluates any hotspot it belonged to.
	DeleteReport(ctx context.Context, id uuid.UUID) error
}

type reportService struct {
	db       *database.DB
	reports  repositories.ReportRepository
	analyses repositories.AnalysisRepository
	hotspots HotspotService
	audit    repositories.AuditRepository
	blobs    storage.BlobStore
	queue    AnalysisEnqueuer
	logger   *zap.Logger
}

// NewReportService creates a new report service. blobs may be nil when
// object storage is not configured; submissions then reject photos.
func NewReportService(
	db *database.DB,
	reports repositories.ReportRepository,
	analyses repositories.AnalysisRepository,
	hotspots HotspotService,
	audit repositories.AuditRepository,
	blobs storage.BlobStore,
	queue AnalysisEnqueuer,
	logger *zap.Logger,
) ReportService {
	return &reportService{
		db:       db,
		reports:  reports,
		analyses: analyses,
		hotspots: hotspots,
		audit:    audit,
		blobs:    blobs,
		queue:    queue,
		logger:   logger.Named("report-service"),
	}
}

var _ ReportService = (*reportService)(nil)

const maxDescriptionLen = 2000

// ReportImageKey is the blob store key for a report's photo.
func ReportImageKey(reportID uuid.UUID) string {
	return fmt.Sprintf("reports/%s.jpg", reportID)
}

func (s *reportService) SubmitReport(ctx context.Context, input *SubmitReportInput) (*models.Report, error) {
	if input.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", apperrors.ErrValidation)
	}
	if !geo.ValidCoordinates(input.Latitude, input.Longitude) {
		return nil, fmt.Errorf("%w: coordinates (%f, %f) are out of range",
			apperrors.ErrValidation, input.Latitude, input.Longitude)
	}
	description := strings.TrimSpace(input.Description)
	if len(description) > maxDescriptionLen {
		return nil, fmt.Errorf("%w: description exceeds %d characters", apperrors.ErrValidation, maxDescriptionLen)
	}
	if len(input.ImageData) > 0 && s.blobs == nil {
		return nil, fmt.Errorf("%w: image storage is not configured", apperrors.ErrDependencyFailure)
	}

	report := &models.Report{
		ID:          uuid.New(),
		UserID:      input.UserID,
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
		Description: description,
		Status:      models.ReportStatusSubmitted,
	}

	if len(input.ImageData) > 0 {
		contentType := input.ImageContentType
		if contentType == "" {
			contentType = "image/jpeg"
		}
		url, err := s.blobs.Upload(ctx, ReportImageKey(report.ID), input.ImageData, contentType)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to store report image: %v", apperrors.ErrDependencyFailure, err)
		}
		report.ImageURL = &url
	}

	if err := s.reports.Create(ctx, report); err != nil {
		if report.ImageURL != nil {
			if delErr := s.blobs.Delete(ctx, ReportImageKey(report.ID)); delErr != nil {
				s.logger.Warn("Failed to remove orphaned report image", zap.Error(delErr))
			}
		}
		return nil, err
	}

	s.recordAudit(ctx, models.AuditAgentIngest, "report_submitted",
		fmt.Sprintf("report at (%.5f, %.5f)", report.Latitude, report.Longitude), report.ID, "reports")

	if report.HasImage() {
		if !s.queue.Enqueue(report.ID) {
			s.logger.Warn("Analysis queue full, report will be picked up by the sweeper",
				zap.String("report_id", report.ID.String()))
		}
	} else {
		s.logger.Info("Report submitted without image, skipping analysis",
			zap.String("report_id", report.ID.String()))
	}

	return report, nil
}

func (s *reportService) GetReport(ctx context.Context, id uuid.UUID) (*ReportWithAnalysis, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &ReportWithAnalysis{Report: report}
	if report.Status == models.ReportStatusAnalyzed {
		analysis, err := s.analyses.GetByReportID(ctx, id)
		if err == nil {
			result.Analysis = analysis
		} else {
			s.logger.Warn("Analyzed report has no analysis row",
				zap.String("report_id", id.String()), zap.Error(err))
		}
	}

	return result, nil
}

func (s *reportService) ListReports(ctx context.Context, filter repositories.ReportFilter) ([]*models.Report, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.reports.List(ctx, filter)
}

// maxNearbyRadiusKm caps the nearby search so a single request cannot scan
// the whole table.
const maxNearbyRadiusKm = 10.0

func (s *reportService) ListNearbyReports(ctx context.Context, lat, lon, radiusKm float64) ([]*models.Report, error) {
	if !geo.ValidCoordinates(lat, lon) {
		return nil, fmt.Errorf("%w: coordinates (%f, %f) are out of range", apperrors.ErrValidation, lat, lon)
	}
	if radiusKm <= 0 {
		radiusKm = float64(models.HotspotRadiusMeters) / 1000
	}
	if radiusKm > maxNearbyRadiusKm {
		radiusKm = maxNearbyRadiusKm
	}
	return s.reports.ListNearby(ctx, lat, lon, radiusKm, 100)
}

func (s *reportService) DeleteReport(ctx context.Context, id uuid.UUID) error {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.InTx(ctx, func(ctx context.Context) error {
		if err := s.hotspots.OnReportDeleted(ctx, id); err != nil {
			return err
		}
		return s.reports.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	if report.HasImage() && s.blobs != nil {
		if err := s.blobs.Delete(ctx, ReportImageKey(id)); err != nil {
			s.logger.Warn("Failed to delete report image", zap.Error(err))
		}
	}

	s.recordAudit(ctx, models.AuditAgentIngest, "report_deleted", "", id, "reports")
	return nil
}

func (s *reportService) recordAudit(ctx context.Context, agent, action, details string, relatedID uuid.UUID, relatedTable string) {
	entry := &models.AuditEntry{
		Agent:        agent,
		Action:       action,
		Details:      details,
		RelatedID:    &relatedID,
		RelatedTable: relatedTable,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("Failed to write audit entry", zap.String("action", action), zap.Error(err))
	}
}
