package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/database"
	"github.com/duraeco/duraeco-engine/pkg/geo"
	"github.com/duraeco/duraeco-engine/pkg/models"
	"github.com/duraeco/duraeco-engine/pkg/repositories"
)

// HotspotWithReports pairs a hotspot with its member report IDs.
type HotspotWithReports struct {
	Hotspot   *models.Hotspot `json:"hotspot"`
	ReportIDs []uuid.UUID     `json:"report_ids"`
}

// HotspotService maintains geographic clusters of analyzed reports.
type HotspotService interface {
	// OnReportAnalyzed re-evaluates clustering around a freshly analyzed
	// report. Runs in its own transaction under an advisory lock so
	// concurrent workers in the same area cannot double-create hotspots.
	OnReportAnalyzed(ctx context.Context, report *models.Report) (models.HotspotAction, error)
	// OnReportDeleted detaches a report from its hotspots and dissolves any
	// that fall below the minimum size. Expects to run inside the caller's
	// transaction.
	OnReportDeleted(ctx context.Context, reportID uuid.UUID) error
	ListActive(ctx context.Context) ([]*models.Hotspot, error)
	GetHotspot(ctx context.Context, id uuid.UUID) (*HotspotWithReports, error)
}

type hotspotService struct {
	db       *database.DB
	hotspots repositories.HotspotRepository
	audit    repositories.AuditRepository
	logger   *zap.Logger
}

// NewHotspotService creates a new hotspot service.
func NewHotspotService(
	db *database.DB,
	hotspots repositories.HotspotRepository,
	audit repositories.AuditRepository,
	logger *zap.Logger,
) HotspotService {
	return &hotspotService{
		db:       db,
		hotspots: hotspots,
		audit:    audit,
		logger:   logger.Named("hotspot-service"),
	}
}

var _ HotspotService = (*hotspotService)(nil)

func (s *hotspotService) OnReportAnalyzed(ctx context.Context, report *models.Report) (models.HotspotAction, error) {
	var action models.HotspotAction = models.HotspotActionNone

	err := s.db.InTx(ctx, func(ctx context.Context) error {
		if err := s.hotspots.AcquireClusterLock(ctx, report.Latitude, report.Longitude); err != nil {
			return err
		}

		nearby, err := s.hotspots.ListNearbyAnalyzed(ctx, report.Latitude, report.Longitude, geo.HotspotRadiusKm)
		if err != nil {
			return err
		}
		if len(nearby) < models.HotspotMinReports {
			return nil
		}

		hotspot, err := s.hotspots.FindActiveNear(ctx, report.Latitude, report.Longitude, geo.HotspotRadiusKm)
		switch {
		case err == nil:
			action = models.HotspotActionUpdated
		case errors.Is(err, apperrors.ErrNotFound):
			// The freshly analyzed report anchors the new cluster.
			hotspot = &models.Hotspot{
				CenterLatitude:  report.Latitude,
				CenterLongitude: report.Longitude,
				Name:            models.HotspotName(report.Latitude, report.Longitude),
			}
			if err := s.hotspots.Create(ctx, hotspot); err != nil {
				return err
			}
			action = models.HotspotActionCreated
		default:
			return err
		}

		for _, n := range nearby {
			if _, err := s.hotspots.LinkReport(ctx, hotspot.ID, n.ReportID); err != nil {
				return err
			}
		}

		if _, err := s.hotspots.RefreshStats(ctx, hotspot.ID); err != nil {
			return err
		}

		s.recordAudit(ctx, string(action),
			fmt.Sprintf("%d reports within %dm", len(nearby), models.HotspotRadiusMeters),
			hotspot.ID)
		return nil
	})
	if err != nil {
		return models.HotspotActionNone, fmt.Errorf("hotspot aggregation failed: %w", err)
	}

	if action != models.HotspotActionNone {
		s.logger.Info("Hotspot aggregation completed",
			zap.String("action", string(action)),
			zap.String("report_id", report.ID.String()))
	}
	return action, nil
}

func (s *hotspotService) OnReportDeleted(ctx context.Context, reportID uuid.UUID) error {
	hotspotIDs, err := s.hotspots.UnlinkReport(ctx, reportID)
	if err != nil {
		return err
	}

	for _, hotspotID := range hotspotIDs {
		hotspot, err := s.hotspots.RefreshStats(ctx, hotspotID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return err
		}

		if hotspot.TotalReports < models.HotspotMinReports {
			if err := s.hotspots.Delete(ctx, hotspotID); err != nil {
				return err
			}
			s.recordAudit(ctx, string(models.HotspotActionDissolved),
				fmt.Sprintf("fell to %d reports", hotspot.TotalReports), hotspotID)
			s.logger.Info("Hotspot dissolved",
				zap.String("hotspot_id", hotspotID.String()),
				zap.Int("remaining_reports", hotspot.TotalReports))
		}
	}

	return nil
}

func (s *hotspotService) ListActive(ctx context.Context) ([]*models.Hotspot, error) {
	return s.hotspots.ListActive(ctx)
}

func (s *hotspotService) GetHotspot(ctx context.Context, id uuid.UUID) (*HotspotWithReports, error) {
	hotspot, err := s.hotspots.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	reportIDs, err := s.hotspots.ListReportIDs(ctx, id)
	if err != nil {
		return nil, err
	}

	return &HotspotWithReports{Hotspot: hotspot, ReportIDs: reportIDs}, nil
}

func (s *hotspotService) recordAudit(ctx context.Context, action, details string, hotspotID uuid.UUID) {
	entry := &models.AuditEntry{
		Agent:        models.AuditAgentHotspot,
		Action:       "hotspot_" + action,
		Details:      details,
		RelatedID:    &hotspotID,
		RelatedTable: "hotspots",
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("Failed to write audit entry", zap.Error(err))
	}
}
