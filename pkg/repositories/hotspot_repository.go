package repositories

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/database"
	"github.com/duraeco/duraeco-engine/pkg/geo"
	"github.com/duraeco/duraeco-engine/pkg/models"
)

// haversineSQL computes great-circle distance in kilometers between a report
// row and a parameter point. Kept in SQL so proximity filtering happens in
// the database instead of pulling every report into memory.
const haversineSQL = `
	(2 * 6371 * asin(sqrt(
		pow(sin(radians(latitude - $1) / 2), 2) +
		cos(radians($1)) * cos(radians(latitude)) *
		pow(sin(radians(longitude - $2) / 2), 2)
	)))`

// NearbyReport is a proximate analyzed report with its severity.
type NearbyReport struct {
	ReportID      uuid.UUID
	Latitude      float64
	Longitude     float64
	SeverityScore int
	CreatedAt     time.Time
}

// HotspotRepository defines the interface for hotspot data access.
type HotspotRepository interface {
	// AcquireClusterLock takes a transaction-scoped advisory lock covering
	// the geographic bucket around the point. Serializes concurrent
	// aggregation in the same area. Must run inside a transaction.
	AcquireClusterLock(ctx context.Context, lat, lon float64) error
	// ListNearbyAnalyzed returns analyzed reports within radiusKm of the point.
	ListNearbyAnalyzed(ctx context.Context, lat, lon, radiusKm float64) ([]*NearbyReport, error)
	// FindActiveNear returns the closest active hotspot whose center is within
	// radiusKm, locked FOR UPDATE. Returns ErrNotFound when none exists.
	FindActiveNear(ctx context.Context, lat, lon, radiusKm float64) (*models.Hotspot, error)
	Create(ctx context.Context, hotspot *models.Hotspot) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Hotspot, error)
	ListActive(ctx context.Context) ([]*models.Hotspot, error)
	// LinkReport attaches a report to a hotspot. Idempotent: relinking an
	// already-attached report reports false with no error.
	LinkReport(ctx context.Context, hotspotID, reportID uuid.UUID) (bool, error)
	UnlinkReport(ctx context.Context, reportID uuid.UUID) ([]uuid.UUID, error)
	// RefreshStats recomputes the aggregate columns from the joined reports.
	RefreshStats(ctx context.Context, hotspotID uuid.UUID) (*models.Hotspot, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListReportIDs(ctx context.Context, hotspotID uuid.UUID) ([]uuid.UUID, error)
}

type hotspotRepository struct {
	db *database.DB
}

// NewHotspotRepository creates a new hotspot repository.
func NewHotspotRepository(db *database.DB) HotspotRepository {
	return &hotspotRepository{db: db}
}

var _ HotspotRepository = (*hotspotRepository)(nil)

const hotspotColumns = `id, name, center_latitude, center_longitude, radius_meters, first_reported, last_reported, total_reports, average_severity, status`

func (r *hotspotRepository) AcquireClusterLock(ctx context.Context, lat, lon float64) error {
	// Buckets are ~1km squares, so neighbouring clusters rarely contend.
	key := int64(math.Floor(lat*100))<<32 | (int64(math.Floor(lon*100)) & 0xFFFFFFFF)

	if _, err := r.db.Querier(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
		return fmt.Errorf("failed to acquire cluster lock: %w", err)
	}
	return nil
}

func (r *hotspotRepository) ListNearbyAnalyzed(ctx context.Context, lat, lon, radiusKm float64) ([]*NearbyReport, error) {
	query := `
		SELECT r.id, r.latitude, r.longitude, ar.severity_score, r.created_at
		FROM reports r
		JOIN analysis_results ar ON ar.report_id = r.id
		WHERE r.status = 'analyzed' AND ` + haversineSQL + ` < $3
		ORDER BY r.created_at`

	rows, err := r.db.Querier(ctx).Query(ctx, query, lat, lon, radiusKm)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearby reports: %w", err)
	}
	defer rows.Close()

	var nearby []*NearbyReport
	for rows.Next() {
		var n NearbyReport
		if err := rows.Scan(&n.ReportID, &n.Latitude, &n.Longitude, &n.SeverityScore, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan nearby report: %w", err)
		}
		nearby = append(nearby, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nearby reports: %w", err)
	}

	return nearby, nil
}

func (r *hotspotRepository) FindActiveNear(ctx context.Context, lat, lon, radiusKm float64) (*models.Hotspot, error) {
	query := `
		SELECT id, name, center_latitude, center_longitude, radius_meters,
		       first_reported, last_reported, total_reports, average_severity, status
		FROM hotspots
		WHERE status = 'active' AND
			(2 * 6371 * asin(sqrt(
				pow(sin(radians(center_latitude - $1) / 2), 2) +
				cos(radians($1)) * cos(radians(center_latitude)) *
				pow(sin(radians(center_longitude - $2) / 2), 2)
			))) < $3
		ORDER BY (2 * 6371 * asin(sqrt(
				pow(sin(radians(center_latitude - $1) / 2), 2) +
				cos(radians($1)) * cos(radians(center_latitude)) *
				pow(sin(radians(center_longitude - $2) / 2), 2)
			)))
		LIMIT 1
		FOR UPDATE`

	hotspot, err := scanHotspot(r.db.Querier(ctx).QueryRow(ctx, query, lat, lon, radiusKm))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no active hotspot near (%f, %f)", apperrors.ErrNotFound, lat, lon)
		}
		return nil, fmt.Errorf("failed to find hotspot: %w", err)
	}

	return hotspot, nil
}

func (r *hotspotRepository) Create(ctx context.Context, hotspot *models.Hotspot) error {
	if hotspot.ID == uuid.Nil {
		hotspot.ID = uuid.New()
	}
	if hotspot.Name == "" {
		hotspot.Name = models.HotspotName(hotspot.CenterLatitude, hotspot.CenterLongitude)
	}
	if hotspot.RadiusMeters == 0 {
		hotspot.RadiusMeters = models.HotspotRadiusMeters
	}
	if hotspot.Status == "" {
		hotspot.Status = "active"
	}
	now := time.Now()
	if hotspot.FirstReported.IsZero() {
		hotspot.FirstReported = now
	}
	if hotspot.LastReported.IsZero() {
		hotspot.LastReported = now
	}

	query := `
		INSERT INTO hotspots (id, name, center_latitude, center_longitude, radius_meters,
			first_reported, last_reported, total_reports, average_severity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		hotspot.ID,
		hotspot.Name,
		hotspot.CenterLatitude,
		hotspot.CenterLongitude,
		hotspot.RadiusMeters,
		hotspot.FirstReported,
		hotspot.LastReported,
		hotspot.TotalReports,
		hotspot.AverageSeverity,
		hotspot.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create hotspot: %w", err)
	}

	return nil
}

func (r *hotspotRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Hotspot, error) {
	query := `SELECT ` + hotspotColumns + ` FROM hotspots WHERE id = $1`

	hotspot, err := scanHotspot(r.db.Querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: hotspot %s", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get hotspot: %w", err)
	}

	return hotspot, nil
}

func (r *hotspotRepository) ListActive(ctx context.Context) ([]*models.Hotspot, error) {
	query := `SELECT ` + hotspotColumns + ` FROM hotspots WHERE status = 'active' ORDER BY average_severity DESC`

	rows, err := r.db.Querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list hotspots: %w", err)
	}
	defer rows.Close()

	var hotspots []*models.Hotspot
	for rows.Next() {
		hotspot, err := scanHotspot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hotspot: %w", err)
		}
		hotspots = append(hotspots, hotspot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hotspots: %w", err)
	}

	return hotspots, nil
}

func (r *hotspotRepository) LinkReport(ctx context.Context, hotspotID, reportID uuid.UUID) (bool, error) {
	query := `
		INSERT INTO hotspot_reports (hotspot_id, report_id, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (hotspot_id, report_id) DO NOTHING`

	result, err := r.db.Querier(ctx).Exec(ctx, query, hotspotID, reportID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to link report to hotspot: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *hotspotRepository) UnlinkReport(ctx context.Context, reportID uuid.UUID) ([]uuid.UUID, error) {
	query := `DELETE FROM hotspot_reports WHERE report_id = $1 RETURNING hotspot_id`

	rows, err := r.db.Querier(ctx).Query(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to unlink report: %w", err)
	}
	defer rows.Close()

	var hotspotIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan hotspot id: %w", err)
		}
		hotspotIDs = append(hotspotIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hotspot ids: %w", err)
	}

	return hotspotIDs, nil
}

func (r *hotspotRepository) RefreshStats(ctx context.Context, hotspotID uuid.UUID) (*models.Hotspot, error) {
	query := `
		UPDATE hotspots h
		SET total_reports = stats.cnt,
		    average_severity = COALESCE(stats.avg_sev, 0),
		    last_reported = COALESCE(stats.last_at, h.last_reported)
		FROM (
			SELECT COUNT(*) AS cnt, AVG(ar.severity_score) AS avg_sev, MAX(r.created_at) AS last_at
			FROM hotspot_reports hr
			JOIN reports r ON r.id = hr.report_id
			LEFT JOIN analysis_results ar ON ar.report_id = hr.report_id
			WHERE hr.hotspot_id = $1
		) stats
		WHERE h.id = $1
		RETURNING h.id, h.name, h.center_latitude, h.center_longitude, h.radius_meters,
		          h.first_reported, h.last_reported, h.total_reports, h.average_severity, h.status`

	hotspot, err := scanHotspot(r.db.Querier(ctx).QueryRow(ctx, query, hotspotID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: hotspot %s", apperrors.ErrNotFound, hotspotID)
		}
		return nil, fmt.Errorf("failed to refresh hotspot stats: %w", err)
	}

	return hotspot, nil
}

func (r *hotspotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM hotspots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete hotspot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: hotspot %s", apperrors.ErrNotFound, id)
	}

	return nil
}

func (r *hotspotRepository) ListReportIDs(ctx context.Context, hotspotID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT report_id FROM hotspot_reports WHERE hotspot_id = $1 ORDER BY added_at`

	rows, err := r.db.Querier(ctx).Query(ctx, query, hotspotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hotspot reports: %w", err)
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
		return nil, fmt.Errorf("error iterating report ids: %w", err)
	}

	return ids, nil
}

func scanHotspot(row pgx.Row) (*models.Hotspot, error) {
	var h models.Hotspot
	err := row.Scan(
		&h.ID,
		&h.Name,
		&h.CenterLatitude,
		&h.CenterLongitude,
		&h.RadiusMeters,
		&h.FirstReported,
		&h.LastReported,
		&h.TotalReports,
		&h.AverageSeverity,
		&h.Status,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// DefaultClusterRadiusKm mirrors geo.HotspotRadiusKm for callers that work
// through the repository alone.
const DefaultClusterRadiusKm = geo.HotspotRadiusKm
