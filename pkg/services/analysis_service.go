package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/database"
	"github.com/duraeco/duraeco-engine/pkg/embeddings"
	"github.com/duraeco/duraeco-engine/pkg/models"
	"github.com/duraeco/duraeco-engine/pkg/repositories"
	"github.com/duraeco/duraeco-engine/pkg/storage"
	"github.com/duraeco/duraeco-engine/pkg/vision"
)

// ImageClassifier is the vision surface the pipeline needs.
// vision.Classifier satisfies it.
type ImageClassifier interface {
	Classify(ctx context.Context, imageBase64 string, lat, lon float64, userDescription string) (*vision.Outcome, error)
}

// EmbeddingIndexer produces best-effort vectors. embeddings.Indexer satisfies it.
type EmbeddingIndexer interface {
	EmbedAnalysis(ctx context.Context, imageBase64, digest, locationText string) (imageVec, locationVec []float64)
}

// AnalysisService runs the image analysis pipeline for one report at a time.
type AnalysisService interface {
	// AnalyzeReport claims a submitted report, classifies its image, stores
	// the result, and triggers hotspot aggregation. A report claimed by
	// another worker is skipped silently. Failures revert the report to
	// submitted so it stays retry-eligible.
	AnalyzeReport(ctx context.Context, reportID uuid.UUID) error
}

type analysisService struct {
	db            *database.DB
	reports       repositories.ReportRepository
	analyses      repositories.AnalysisRepository
	wasteTypes    repositories.WasteTypeRepository
	audit         repositories.AuditRepository
	hotspots      HotspotService
	classifier    ImageClassifier
	indexer       EmbeddingIndexer
	blobs         storage.BlobStore
	visionTimeout time.Duration
	logger        *zap.Logger
}

// NewAnalysisService creates a new analysis service. indexer may be nil when
// no embedding model is configured; vectors are then stored null.
func NewAnalysisService(
	db *database.DB,
	reports repositories.ReportRepository,
	analyses repositories.AnalysisRepository,
	wasteTypes repositories.WasteTypeRepository,
	audit repositories.AuditRepository,
	hotspots HotspotService,
	classifier ImageClassifier,
	indexer EmbeddingIndexer,
	blobs storage.BlobStore,
	visionTimeout time.Duration,
	logger *zap.Logger,
) AnalysisService {
	if visionTimeout <= 0 {
		visionTimeout = 2 * time.Minute
	}
	return &analysisService{
		db:            db,
		reports:       reports,
		analyses:      analyses,
		wasteTypes:    wasteTypes,
		audit:         audit,
		hotspots:      hotspots,
		classifier:    classifier,
		indexer:       indexer,
		blobs:         blobs,
		visionTimeout: visionTimeout,
		logger:        logger.Named("analysis-service"),
	}
}

var _ AnalysisService = (*analysisService)(nil)

func (s *analysisService) AnalyzeReport(ctx context.Context, reportID uuid.UUID) error {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return err
	}
	if !report.HasImage() {
		s.logger.Debug("Report has no image, nothing to analyze",
			zap.String("report_id", reportID.String()))
		return nil
	}

	if err := s.reports.ClaimForAnalysis(ctx, reportID); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			// Another worker got here first, or the report is already done.
			return nil
		}
		return err
	}

	if err := s.runPipeline(ctx, report); err != nil {
		s.failAnalysis(ctx, reportID, err)
		return err
	}
	return nil
}

func (s *analysisService) runPipeline(ctx context.Context, report *models.Report) error {
	imageData, err := s.blobs.Download(ctx, ReportImageKey(report.ID))
	if err != nil {
		return fmt.Errorf("%w: failed to fetch report image: %v", apperrors.ErrDependencyFailure, err)
	}
	imageBase64 := base64.StdEncoding.EncodeToString(imageData)

	visionCtx, cancel := context.WithTimeout(ctx, s.visionTimeout)
	defer cancel()
	outcome, err := s.classifier.Classify(visionCtx, imageBase64, report.Latitude, report.Longitude, report.Description)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDependencyFailure, err)
	}

	shortDesc := outcome.ShortDescription
	if shortDesc == "" {
		shortDesc = outcome.WasteType
	}
	fullDesc := outcome.FullDescription
	if fullDesc == "" {
		fullDesc = outcome.AnalysisNotes
	}

	// Embeddings are best effort and happen before the transaction so a slow
	// or failing model never holds database locks.
	var imageEmbedding, locationEmbedding []float64
	if s.indexer != nil {
		digest := embeddings.AnalysisDigest(outcome.WasteType, outcome.AnalysisNotes, fullDesc)
		locationText := embeddings.LocationDescription(report.Latitude, report.Longitude)
		imageEmbedding, locationEmbedding = s.indexer.EmbedAnalysis(ctx, imageBase64, digest, locationText)
	}

	err = s.db.InTx(ctx, func(ctx context.Context) error {
		wasteType, err := s.wasteTypes.GetOrCreate(ctx, outcome.WasteType, outcome.HazardLevel, outcome.Recyclable)
		if err != nil {
			return err
		}

		result := &models.AnalysisResult{
			ReportID:          report.ID,
			WasteTypeID:       &wasteType.ID,
			IsWaste:           outcome.IsWaste,
			Confidence:        outcome.Confidence,
			EstimatedVolume:   vision.ParseVolume(outcome.EstimatedVolume),
			SeverityScore:     outcome.SeverityScore,
			PriorityLevel:     models.PriorityLevel(outcome.PriorityLevel),
			AnalysisNotes:     outcome.AnalysisNotes,
			ImageEmbedding:    imageEmbedding,
			LocationEmbedding: locationEmbedding,
		}
		if err := s.analyses.Upsert(ctx, result); err != nil {
			return err
		}

		if err := s.reports.MarkAnalyzed(ctx, report.ID, shortDesc, fullDesc); err != nil {
			return err
		}

		s.recordAudit(ctx, "analysis_completed",
			fmt.Sprintf("type=%s severity=%d waste=%t", wasteType.Name, outcome.SeverityScore, outcome.IsWaste),
			report.ID)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Report analyzed",
		zap.String("report_id", report.ID.String()),
		zap.String("waste_type", outcome.WasteType),
		zap.Bool("is_waste", outcome.IsWaste),
		zap.Int("severity", outcome.SeverityScore))

	// Aggregation runs for non-waste results too: the report is analyzed and
	// its neighbourhood may have changed either way. A failure here leaves
	// the report analyzed; the next nearby analysis retries the clustering.
	if _, err := s.hotspots.OnReportAnalyzed(ctx, report); err != nil {
		s.logger.Error("Hotspot aggregation failed",
			zap.String("report_id", report.ID.String()), zap.Error(err))
	}

	return nil
}

func (s *analysisService) failAnalysis(ctx context.Context, reportID uuid.UUID, cause error) {
	if err := s.reports.RevertToSubmitted(ctx, reportID); err != nil {
		s.logger.Error("Failed to revert report after analysis failure",
			zap.String("report_id", reportID.String()), zap.Error(err))
	}
	s.recordAudit(ctx, "analysis_failed", cause.Error(), reportID)
}

func (s *analysisService) recordAudit(ctx context.Context, action, details string, reportID uuid.UUID) {
	entry := &models.AuditEntry{
		Agent:        models.AuditAgentAnalysis,
		Action:       action,
		Details:      details,
		RelatedID:    &reportID,
		RelatedTable: "reports",
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("Failed to write audit entry", zap.Error(err))
	}
}
