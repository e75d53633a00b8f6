package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/database"
	"github.com/duraeco/duraeco-engine/pkg/models"
)

// AnalysisRepository defines the interface for analysis result data access.
type AnalysisRepository interface {
	// Upsert stores the analysis for a report. A re-analysis replaces the
	// previous result, keeping at most one row per report.
	Upsert(ctx context.Context, result *models.AnalysisResult) error
	GetByReportID(ctx context.Context, reportID uuid.UUID) (*models.AnalysisResult, error)
	DeleteByReportID(ctx context.Context, reportID uuid.UUID) error
}

type analysisRepository struct {
	db *database.DB
}

// NewAnalysisRepository creates a new analysis repository.
func NewAnalysisRepository(db *database.DB) AnalysisRepository {
	return &analysisRepository{db: db}
}

var _ AnalysisRepository = (*analysisRepository)(nil)

func (r *analysisRepository) Upsert(ctx context.Context, result *models.AnalysisResult) error {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	if result.AnalyzedAt.IsZero() {
		result.AnalyzedAt = time.Now()
	}

	query := `
		INSERT INTO analysis_results (
			id, report_id, waste_type_id, is_waste, confidence, estimated_volume,
			severity_score, priority_level, analysis_notes,
			image_embedding, location_embedding, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (report_id) DO UPDATE SET
			waste_type_id = EXCLUDED.waste_type_id,
			is_waste = EXCLUDED.is_waste,
			confidence = EXCLUDED.confidence,
			estimated_volume = EXCLUDED.estimated_volume,
			severity_score = EXCLUDED.severity_score,
			priority_level = EXCLUDED.priority_level,
			analysis_notes = EXCLUDED.analysis_notes,
			image_embedding = EXCLUDED.image_embedding,
			location_embedding = EXCLUDED.location_embedding,
			analyzed_at = EXCLUDED.analyzed_at`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		result.ID,
		result.ReportID,
		result.WasteTypeID,
		result.IsWaste,
		result.Confidence,
		result.EstimatedVolume,
		result.SeverityScore,
		result.PriorityLevel,
		result.AnalysisNotes,
		result.ImageEmbedding,
		result.LocationEmbedding,
		result.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store analysis result: %w", err)
	}

	return nil
}

func (r *analysisRepository) GetByReportID(ctx context.Context, reportID uuid.UUID) (*models.AnalysisResult, error) {
	query := `
		SELECT id, report_id, waste_type_id, is_waste, confidence, estimated_volume,
		       severity_score, priority_level, analysis_notes,
		       image_embedding, location_embedding, analyzed_at
		FROM analysis_results
		WHERE report_id = $1`

	var result models.AnalysisResult
	err := r.db.Querier(ctx).QueryRow(ctx, query, reportID).Scan(
		&result.ID,
		&result.ReportID,
		&result.WasteTypeID,
		&result.IsWaste,
		&result.Confidence,
		&result.EstimatedVolume,
		&result.SeverityScore,
		&result.PriorityLevel,
		&result.AnalysisNotes,
		&result.ImageEmbedding,
		&result.LocationEmbedding,
		&result.AnalyzedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no analysis for report %s", apperrors.ErrNotFound, reportID)
		}
		return nil, fmt.Errorf("failed to get analysis result: %w", err)
	}

	return &result, nil
}

func (r *analysisRepository) DeleteByReportID(ctx context.Context, reportID uuid.UUID) error {
	_, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM analysis_results WHERE report_id = $1`, reportID)
	if err != nil {
		return fmt.Errorf("failed to delete analysis result: %w", err)
	}
	return nil
}
