package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jinzhu/inflection"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/database"
	"github.com/duraeco/duraeco-engine/pkg/models"
)

// WasteTypeRepository defines the interface for waste category data access.
type WasteTypeRepository interface {
	// GetOrCreate resolves a category by normalized name, creating it when
	// the classifier produces a name not seen before.
	GetOrCreate(ctx context.Context, name string, hazardLevel int, recyclable bool) (*models.WasteType, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.WasteType, error)
	List(ctx context.Context) ([]*models.WasteType, error)
}

type wasteTypeRepository struct {
	db *database.DB
}

// NewWasteTypeRepository creates a new waste type repository.
func NewWasteTypeRepository(db *database.DB) WasteTypeRepository {
	return &wasteTypeRepository{db: db}
}

var _ WasteTypeRepository = (*wasteTypeRepository)(nil)

// NormalizeWasteTypeName canonicalizes classifier output so "Plastics",
// "plastic" and " PLASTIC " all resolve to the same category.
func NormalizeWasteTypeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	words := strings.Fields(strings.ToLower(name))
	last := len(words) - 1
	words[last] = inflection.Singular(words[last])
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (r *wasteTypeRepository) GetOrCreate(ctx context.Context, name string, hazardLevel int, recyclable bool) (*models.WasteType, error) {
	normalized := NormalizeWasteTypeName(name)
	if normalized == "" {
		return nil, fmt.Errorf("%w: waste type name is required", apperrors.ErrValidation)
	}

	query := `
		INSERT INTO waste_types (id, name, description, hazard_level, recyclable, created_at)
		VALUES ($1, $2, '', $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, description, hazard_level, recyclable, created_at`

	var wt models.WasteType
	err := r.db.Querier(ctx).QueryRow(ctx, query,
		uuid.New(), normalized, hazardLevel, recyclable, time.Now(),
	).Scan(&wt.ID, &wt.Name, &wt.Description, &wt.HazardLevel, &wt.Recyclable, &wt.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve waste type %q: %w", normalized, err)
	}

	return &wt, nil
}

func (r *wasteTypeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WasteType, error) {
	query := `SELECT id, name, description, hazard_level, recyclable, created_at FROM waste_types WHERE id = $1`

	var wt models.WasteType
	err := r.db.Querier(ctx).QueryRow(ctx, query, id).Scan(
		&wt.ID, &wt.Name, &wt.Description, &wt.HazardLevel, &wt.Recyclable, &wt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: waste type %s", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get waste type: %w", err)
	}

	return &wt, nil
}

func (r *wasteTypeRepository) List(ctx context.Context) ([]*models.WasteType, error) {
	query := `SELECT id, name, description, hazard_level, recyclable, created_at FROM waste_types ORDER BY name`

	rows, err := r.db.Querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list waste types: %w", err)
	}
	defer rows.Close()

	var types []*models.WasteType
	for rows.Next() {
		var wt models.WasteType
		if err := rows.Scan(&wt.ID, &wt.Name, &wt.Description, &wt.HazardLevel, &wt.Recyclable, &wt.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan waste type: %w", err)
		}
		types = append(types, &wt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating waste types: %w", err)
	}

	return types, nil
}
