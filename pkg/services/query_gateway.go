package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/audit"
	"github.com/duraeco/duraeco-engine/pkg/database"
	"github.com/duraeco/duraeco-engine/pkg/logging"
	sqlvalidate "github.com/duraeco/duraeco-engine/pkg/sql"
)

// QueryResult holds the rows returned by a gateway query.
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// QueryGateway executes model-generated SQL under strict restrictions:
// single SELECT statements only, screened for injection, against a
// read-only transaction with a statement timeout.
type QueryGateway interface {
	ExecuteQuery(ctx context.Context, rawQuery string) (*QueryResult, error)
}

type queryGateway struct {
	db      *database.DB
	timeout time.Duration
	logger  *zap.Logger
	auditor *audit.SecurityAuditor
}

// NewQueryGateway creates a gateway with the given statement timeout.
func NewQueryGateway(db *database.DB, timeout time.Duration, logger *zap.Logger) QueryGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &queryGateway{
		db:      db,
		timeout: timeout,
		logger:  logger.Named("query-gateway"),
		auditor: audit.NewSecurityAuditor(logger),
	}
}

var _ QueryGateway = (*queryGateway)(nil)

// queryableTables is the schema surface exposed to the assistant. Used in
// error hints so the model can self-correct on the next round.
var queryableTables = []string{
	"reports", "analysis_results", "waste_types", "hotspots", "hotspot_reports",
}

func (g *queryGateway) ExecuteQuery(ctx context.Context, rawQuery string) (*QueryResult, error) {
	query, err := sqlvalidate.ValidateReadOnly(rawQuery)
	if err != nil {
		g.logger.Warn("Query rejected by validator",
			zap.Error(err),
			zap.String("query", logging.SanitizeQuery(rawQuery)))
		g.auditor.LogQueryRejected(ctx, audit.QueryRejectionDetails{
			Query:  logging.SanitizeQuery(rawQuery),
			Reason: err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSecurityRejection, err)
	}

	tx, err := g.db.Pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() {
		// Nothing to persist either way.
		_ = tx.Rollback(ctx)
	}()

	timeoutMs := g.timeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeoutMs)); err != nil {
		return nil, fmt.Errorf("failed to set statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, g.describeQueryError(err)
	}
	defer rows.Close()

	fieldDescriptions := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescriptions))
	for i, fd := range fieldDescriptions {
		columns[i] = fd.Name
	}

	var resultRows []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, g.describeQueryError(err)
	}

	g.logger.Info("Gateway query executed",
		zap.Int("rows", len(resultRows)),
		zap.Int("columns", len(columns)),
		zap.String("query", logging.SanitizeQuery(query)))
	g.auditor.LogQueryExecution(ctx, logging.SanitizeQuery(query), len(resultRows))

	return &QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// describeQueryError augments database errors with hints that help the
// model correct its query on the next tool round.
func (g *queryGateway) describeQueryError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("query failed: %w", err)
	}

	switch pgErr.Code {
	case "42703": // undefined_column
		hint := "check the column name against the schema"
		if strings.Contains(pgErr.Message, "hotspot_id") {
			hint = "reports are linked to hotspots through the hotspot_reports junction table, not a hotspot_id column on reports"
		}
		return fmt.Errorf("query failed: %s. Hint: %s", pgErr.Message, hint)
	case "42P01": // undefined_table
		return fmt.Errorf("query failed: %s. Hint: available tables are %s",
			pgErr.Message, strings.Join(queryableTables, ", "))
	case "57014": // query_canceled (statement timeout)
		return fmt.Errorf("%w: query exceeded the %s time limit, add filters or aggregate",
			apperrors.ErrDependencyFailure, g.timeout)
	default:
		return fmt.Errorf("query failed: %s", pgErr.Message)
	}
}
