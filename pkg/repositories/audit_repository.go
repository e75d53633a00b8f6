package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duraeco/duraeco-engine/pkg/database"
	"github.com/duraeco/duraeco-engine/pkg/models"
)

// AuditRepository provides data access for the system audit log.
type AuditRepository interface {
	// Create inserts a new audit log entry.
	Create(ctx context.Context, entry *models.AuditEntry) error

	// GetRecent returns the newest entries, optionally filtered by agent.
	GetRecent(ctx context.Context, agent string, limit int) ([]*models.AuditEntry, error)

	// GetByRelated returns entries referencing a specific row, newest first.
	GetByRelated(ctx context.Context, relatedTable string, relatedID uuid.UUID) ([]*models.AuditEntry, error)
}

type auditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) AuditRepository {
	return &auditRepository{db: db}
}

var _ AuditRepository = (*auditRepository)(nil)

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()

	query := `
		INSERT INTO audit_log (id, agent, action, details, related_id, related_table, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		entry.ID,
		entry.Agent,
		entry.Action,
		entry.Details,
		entry.RelatedID,
		entry.RelatedTable,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log entry: %w", err)
	}

	return nil
}

func (r *auditRepository) GetRecent(ctx context.Context, agent string, limit int) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, agent, action, details, related_id, related_table, created_at
		FROM audit_log`
	args := []any{}
	if agent != "" {
		query += ` WHERE agent = $1`
		args = append(args, agent)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	return collectAuditEntries(rows)
}

func (r *auditRepository) GetByRelated(ctx context.Context, relatedTable string, relatedID uuid.UUID) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, agent, action, details, related_id, related_table, created_at
		FROM audit_log
		WHERE related_table = $1 AND related_id = $2
		ORDER BY created_at DESC`

	rows, err := r.db.Querier(ctx).Query(ctx, query, relatedTable, relatedID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log by related row: %w", err)
	}
	defer rows.Close()

	return collectAuditEntries(rows)
}

func collectAuditEntries(rows pgx.Rows) ([]*models.AuditEntry, error) {
	var entries []*models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		err := rows.Scan(
			&entry.ID,
			&entry.Agent,
			&entry.Action,
			&entry.Details,
			&entry.RelatedID,
			&entry.RelatedTable,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log entries: %w", err)
	}

	return entries, nil
}
