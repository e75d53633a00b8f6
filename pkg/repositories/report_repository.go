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

// ReportFilter narrows report listings.
type ReportFilter struct {
	Status *models.ReportStatus
	UserID *uuid.UUID
	Limit  int
}

// ReportRepository defines the interface for waste report data access.
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
	List(ctx context.Context, filter ReportFilter) ([]*models.Report, error)
	SetImageURL(ctx context.Context, id uuid.UUID, imageURL string) error
	// ClaimForAnalysis atomically moves a submitted report to analyzing.
	// Returns ErrConflict when the report is not in the submitted state,
	// which makes concurrent workers safe.
	ClaimForAnalysis(ctx context.Context, id uuid.UUID) error
	// MarkAnalyzed completes the lifecycle and stores the derived descriptions.
	MarkAnalyzed(ctx context.Context, id uuid.UUID, shortDescription, fullDescription string) error
	// RevertToSubmitted returns a report to the retry-eligible state.
	RevertToSubmitted(ctx context.Context, id uuid.UUID) error
	// RevertStaleAnalyzing reverts reports stuck in analyzing longer than
	// cutoff and returns their IDs.
	RevertStaleAnalyzing(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	// ListPendingAnalysis returns submitted reports with images, oldest first.
	ListPendingAnalysis(ctx context.Context, limit int) ([]*models.Report, error)
	// ListNearby returns analyzed reports within radiusKm of the point,
	// closest first.
	ListNearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]*models.Report, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type reportRepository struct {
	db *database.DB
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *database.DB) ReportRepository {
	return &reportRepository{db: db}
}

var _ ReportRepository = (*reportRepository)(nil)

const reportColumns = `id, user_id, latitude, longitude, description, full_description, image_url, status, created_at, updated_at`

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if report.Status == "" {
		report.Status = models.ReportStatusSubmitted
	}
	now := time.Now()
	report.CreatedAt = now
	report.UpdatedAt = now

	query := `
		INSERT INTO reports (id, user_id, latitude, longitude, description, full_description, image_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		report.ID,
		report.UserID,
		report.Latitude,
		report.Longitude,
		report.Description,
		report.FullDescription,
		report.ImageURL,
		report.Status,
		report.CreatedAt,
		report.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}

	return nil
}

func (r *reportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`

	report, err := scanReport(r.db.Querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: report %s", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	return report, nil
}

func (r *reportRepository) List(ctx context.Context, filter ReportFilter) ([]*models.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports`
	var args []any
	var where []string

	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	return collectReports(rows)
}

func (r *reportRepository) SetImageURL(ctx context.Context, id uuid.UUID, imageURL string) error {
	query := `UPDATE reports SET image_url = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Querier(ctx).Exec(ctx, query, imageURL, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set image url: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: report %s", apperrors.ErrNotFound, id)
	}

	return nil
}

func (r *reportRepository) ClaimForAnalysis(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE reports
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`

	result, err := r.db.Querier(ctx).Exec(ctx, query,
		models.ReportStatusAnalyzing, time.Now(), id, models.ReportStatusSubmitted)
	if err != nil {
		return fmt.Errorf("failed to claim report: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: report %s is not awaiting analysis", apperrors.ErrConflict, id)
	}

	return nil
}

func (r *reportRepository) MarkAnalyzed(ctx context.Context, id uuid.UUID, shortDescription, fullDescription string) error {
	query := `
		UPDATE reports
		SET status = $1, description = $2, full_description = $3, updated_at = $4
		WHERE id = $5 AND status = $6`

	result, err := r.db.Querier(ctx).Exec(ctx, query,
		models.ReportStatusAnalyzed, shortDescription, fullDescription, time.Now(),
		id, models.ReportStatusAnalyzing)
	if err != nil {
		return fmt.Errorf("failed to mark report analyzed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: report %s is not being analyzed", apperrors.ErrConflict, id)
	}

	return nil
}

func (r *reportRepository) RevertToSubmitted(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE reports
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`

	result, err := r.db.Querier(ctx).Exec(ctx, query,
		models.ReportStatusSubmitted, time.Now(), id, models.ReportStatusAnalyzing)
	if err != nil {
		return fmt.Errorf("failed to revert report: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: report %s is not being analyzed", apperrors.ErrConflict, id)
	}

	return nil
}

func (r *reportRepository) RevertStaleAnalyzing(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	query := `
		UPDATE reports
		SET status = $1, updated_at = $2
		WHERE status = $3 AND updated_at < $4
		RETURNING id`

	rows, err := r.db.Querier(ctx).Query(ctx, query,
		models.ReportStatusSubmitted, time.Now(), models.ReportStatusAnalyzing, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to revert stale reports: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan report id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale reports: %w", err)
	}

	return ids, nil
}

func (r *reportRepository) ListPendingAnalysis(ctx context.Context, limit int) ([]*models.Report, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE status = $1 AND image_url IS NOT NULL
		ORDER BY created_at
		LIMIT $2`

	rows, err := r.db.Querier(ctx).Query(ctx, query, models.ReportStatusSubmitted, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reports: %w", err)
	}
	defer rows.Close()

	return collectReports(rows)
}

func (r *reportRepository) ListNearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]*models.Report, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE status = $4 AND ` + haversineSQL + ` < $3
		ORDER BY ` + haversineSQL + `
		LIMIT $5`

	rows, err := r.db.Querier(ctx).Query(ctx, query, lat, lon, radiusKm, models.ReportStatusAnalyzed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list nearby reports: %w", err)
	}
	defer rows.Close()

	return collectReports(rows)
}

func (r *reportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: report %s", apperrors.ErrNotFound, id)
	}

	return nil
}

func scanReport(row pgx.Row) (*models.Report, error) {
	var report models.Report
	err := row.Scan(
		&report.ID,
		&report.UserID,
		&report.Latitude,
		&report.Longitude,
		&report.Description,
		&report.FullDescription,
		&report.ImageURL,
		&report.Status,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func collectReports(rows pgx.Rows) ([]*models.Report, error) {
	var reports []*models.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	return reports, nil
}
