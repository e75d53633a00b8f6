package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/llm"
	"github.com/duraeco/duraeco-engine/pkg/models"
	"github.com/duraeco/duraeco-engine/pkg/repositories"
)

// apologyReply is returned when the model cannot produce usable text within
// the tool round budget.
const apologyReply = "I apologize, but I couldn't generate a proper response. Please try rephrasing your question."

// historyWindow is how many persisted turns are replayed to the model.
const historyWindow = 20

// ChatInput is one user turn addressed to the assistant.
type ChatInput struct {
	UserID uuid.UUID
	// SessionID is nil for the first turn; a session is created lazily.
	SessionID *uuid.UUID
	Message   string
}

// ChatResult is the assistant's reply and the session it belongs to.
type ChatResult struct {
	SessionID uuid.UUID `json:"session_id"`
	Reply     string    `json:"reply"`
}

// ChatService orchestrates assistant conversations: session management,
// history replay, bounded tool calling, and reply persistence.
type ChatService interface {
	Chat(ctx context.Context, input *ChatInput) (*ChatResult, error)
	ListSessions(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error)
	GetHistory(ctx context.Context, userID, sessionID uuid.UUID) ([]*models.ChatMessage, error)
	DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error
}

type chatService struct {
	chats    repositories.ChatRepository
	audit    repositories.AuditRepository
	client   llm.LLMClient
	registry *llm.ToolRegistry
	// fallback produces a plain completion when the primary model fails.
	// Optional; keyword responses are the last resort.
	fallback llm.Completer
	logger   *zap.Logger
}

// NewChatService creates a new chat service. fallback may be nil.
func NewChatService(
	chats repositories.ChatRepository,
	audit repositories.AuditRepository,
	client llm.LLMClient,
	registry *llm.ToolRegistry,
	fallback llm.Completer,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		chats:    chats,
		audit:    audit,
		client:   client,
		registry: registry,
		fallback: fallback,
		logger:   logger.Named("chat-service"),
	}
}

var _ ChatService = (*chatService)(nil)

const chatSystemPrompt = `You are the assistant for a community waste reporting platform in Timor-Leste.
You help users understand waste reports, analysis results, and hotspot clusters.
Use the execute_sql_query tool for questions about the data; use get_platform_info for questions about the platform itself.
When a visualization would help and the tools for it are available, offer one.
Answer concisely and factually. If a query fails, read the hint in the error and correct it.`

func (s *chatService) Chat(ctx context.Context, input *ChatInput) (*ChatResult, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", apperrors.ErrValidation)
	}
	if input.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", apperrors.ErrValidation)
	}

	session, err := s.resolveSession(ctx, input, message)
	if err != nil {
		return nil, err
	}

	// The user turn is persisted before the model runs so a crash or model
	// failure never loses what the user said.
	userMsg := &models.ChatMessage{
		SessionID: session.ID,
		UserID:    input.UserID,
		Role:      models.ChatRoleUser,
		Content:   message,
	}
	if err := s.chats.AddMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	history, err := s.chats.GetMessages(ctx, session.ID, historyWindow)
	if err != nil {
		return nil, err
	}

	reply := s.generateReply(ctx, history, message)

	assistantMsg := &models.ChatMessage{
		SessionID: session.ID,
		UserID:    input.UserID,
		Role:      models.ChatRoleAssistant,
		Content:   reply,
	}
	if err := s.chats.AddMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}
	if err := s.chats.TouchSession(ctx, session.ID); err != nil {
		s.logger.Warn("Failed to touch session", zap.Error(err))
	}

	s.recordAudit(ctx, session.ID)

	return &ChatResult{SessionID: session.ID, Reply: reply}, nil
}

func (s *chatService) resolveSession(ctx context.Context, input *ChatInput, message string) (*models.ChatSession, error) {
	if input.SessionID == nil {
		session := &models.ChatSession{
			UserID: input.UserID,
			Title:  models.SessionTitleFromMessage(message),
		}
		if err := s.chats.CreateSession(ctx, session); err != nil {
			return nil, err
		}
		return session, nil
	}

	session, err := s.chats.GetSession(ctx, *input.SessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != input.UserID {
		return nil, fmt.Errorf("%w: session belongs to another user", apperrors.ErrForbidden)
	}
	return session, nil
}

// generateReply runs the tool loop and degrades through the fallback chain.
// It always returns user-facing text, never an error: by this point the user
// turn is persisted and the conversation must get some reply.
func (s *chatService) generateReply(ctx context.Context, history []*models.ChatMessage, message string) string {
	messages := make([]llm.Message, 0, len(history))
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: string(m.Role), Content: content})
	}

	reply, err := s.client.ChatWithTools(ctx, &llm.ChatRequest{
		Messages:     messages,
		Tools:        s.registry.Definitions(),
		SystemPrompt: chatSystemPrompt,
	}, s.registry)

	switch {
	case err == nil:
		reply = llm.CleanModelOutput(reply)
		if strings.TrimSpace(reply) == "" {
			return apologyReply
		}
		return reply
	case errors.Is(err, llm.ErrToolRoundsExceeded):
		s.logger.Warn("Chat turn exhausted its tool round budget")
		return apologyReply
	default:
		s.logger.Error("Primary chat model failed", zap.Error(err))
	}

	if s.fallback != nil {
		prompt := chatSystemPrompt + "\n\nUser question: " + message +
			"\n\nAnswer from general knowledge; data tools are unavailable right now."
		if text, fbErr := s.fallback.Complete(ctx, prompt); fbErr == nil {
			text = llm.CleanModelOutput(text)
			if strings.TrimSpace(text) != "" {
				return text
			}
		} else {
			s.logger.Error("Fallback completer failed", zap.Error(fbErr))
		}
	}

	return keywordReply(message)
}

// keywordReply is the terminal fallback: canned responses selected by
// keyword so the assistant stays responsive during a full model outage.
func keywordReply(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "hotspot"):
		return "Hotspots are areas where three or more analyzed waste reports fall within 500 meters of each other. I can't reach the data right now, so please try again in a few minutes."
	case strings.Contains(lower, "report"):
		return "Citizens submit geotagged waste reports with photos, and each photo is analyzed automatically to classify the waste and score its severity. I can't reach the data right now, so please try again in a few minutes."
	case strings.Contains(lower, "hello"), strings.Contains(lower, "hi "):
		return "Hello! I'm the waste reporting assistant. I'm having trouble reaching my tools right now, but please try again shortly."
	default:
		return "I'm temporarily unable to process your question. Please try again in a few minutes."
	}
}

func (s *chatService) ListSessions(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error) {
	return s.chats.ListSessions(ctx, userID)
}

func (s *chatService) GetHistory(ctx context.Context, userID, sessionID uuid.UUID) ([]*models.ChatMessage, error) {
	session, err := s.chats.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, fmt.Errorf("%w: session belongs to another user", apperrors.ErrForbidden)
	}
	return s.chats.GetMessages(ctx, sessionID, 200)
}

func (s *chatService) DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	session, err := s.chats.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return fmt.Errorf("%w: session belongs to another user", apperrors.ErrForbidden)
	}
	return s.chats.DeleteSession(ctx, sessionID)
}

func (s *chatService) recordAudit(ctx context.Context, sessionID uuid.UUID) {
	entry := &models.AuditEntry{
		Agent:        models.AuditAgentChat,
		Action:       "chat_turn",
		RelatedID:    &sessionID,
		RelatedTable: "chat_sessions",
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("Failed to write audit entry", zap.Error(err))
	}
}
