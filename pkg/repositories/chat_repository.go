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

// ChatRepository defines the interface for chat session and message data access.
type ChatRepository interface {
	CreateSession(ctx context.Context, session *models.ChatSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)
	ListSessions(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error)
	// TouchSession bumps updated_at so recently active sessions sort first.
	TouchSession(ctx context.Context, id uuid.UUID) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	// AddMessage persists one turn. Only user and assistant roles are accepted.
	AddMessage(ctx context.Context, message *models.ChatMessage) error
	// GetMessages returns the most recent messages in chronological order.
	GetMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.ChatMessage, error)
}

type chatRepository struct {
	db *database.DB
}

// NewChatRepository creates a new chat repository.
func NewChatRepository(db *database.DB) ChatRepository {
	return &chatRepository{db: db}
}

var _ ChatRepository = (*chatRepository)(nil)

func (r *chatRepository) CreateSession(ctx context.Context, session *models.ChatSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	query := `
		INSERT INTO chat_sessions (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		session.ID, session.UserID, session.Title, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create chat session: %w", err)
	}

	return nil
}

func (r *chatRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	query := `SELECT id, user_id, title, created_at, updated_at FROM chat_sessions WHERE id = $1`

	var session models.ChatSession
	err := r.db.Querier(ctx).QueryRow(ctx, query, id).Scan(
		&session.ID, &session.UserID, &session.Title, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: chat session %s", apperrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}

	return &session, nil
}

func (r *chatRepository) ListSessions(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error) {
	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY updated_at DESC`

	rows, err := r.db.Querier(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.ChatSession
	for rows.Next() {
		var session models.ChatSession
		if err := rows.Scan(&session.ID, &session.UserID, &session.Title, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat sessions: %w", err)
	}

	return sessions, nil
}

func (r *chatRepository) TouchSession(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE chat_sessions SET updated_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch chat session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: chat session %s", apperrors.ErrNotFound, id)
	}

	return nil
}

func (r *chatRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: chat session %s", apperrors.ErrNotFound, id)
	}

	return nil
}

func (r *chatRepository) AddMessage(ctx context.Context, message *models.ChatMessage) error {
	if !models.IsValidChatRole(message.Role) {
		return fmt.Errorf("%w: chat role %q cannot be persisted", apperrors.ErrValidation, message.Role)
	}
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO chat_messages (id, session_id, user_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		message.ID, message.SessionID, message.UserID, message.Role, message.Content, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add chat message: %w", err)
	}

	return nil
}

func (r *chatRepository) GetMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, session_id, user_id, role, content, created_at
		FROM (
			SELECT id, session_id, user_id, role, content, created_at
			FROM chat_messages
			WHERE session_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at`

	rows, err := r.db.Querier(ctx).Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.UserID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat messages: %w", err)
	}

	return messages, nil
}
