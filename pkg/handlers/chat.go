package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/auth"
	"github.com/duraeco/duraeco-engine/pkg/models"
	"github.com/duraeco/duraeco-engine/pkg/services"
)

// ChatHandler serves the assistant conversation API.
type ChatHandler struct {
	chat   services.ChatService
	logger *zap.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat services.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/chat", authMiddleware.RequireUser(h.Chat))
	mux.HandleFunc("GET /api/chat/sessions", authMiddleware.RequireUser(h.ListSessions))
	mux.HandleFunc("GET /api/chat/sessions/{id}/messages", authMiddleware.RequireUser(h.GetHistory))
	mux.HandleFunc("DELETE /api/chat/sessions/{id}", authMiddleware.RequireUser(h.DeleteSession))
}

// ChatRequest is the request body for POST /api/chat.
type ChatRequest struct {
	// SessionID continues an existing conversation; omit to start a new one.
	SessionID *uuid.UUID `json:"session_id,omitempty"`
	Message   string     `json:"message"`
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserID(r.Context())
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: invalid request body", apperrors.ErrValidation))
		return
	}

	result, err := h.chat.Chat(r.Context(), &services.ChatInput{
		UserID:    userID,
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListSessions handles GET /api/chat/sessions.
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserID(r.Context())
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
		return
	}

	sessions, err := h.chat.ListSessions(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if sessions == nil {
		sessions = []*models.ChatSession{}
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetHistory handles GET /api/chat/sessions/{id}/messages.
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserID(r.Context())
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
		return
	}

	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: invalid session id", apperrors.ErrValidation))
		return
	}

	messages, err := h.chat.GetHistory(r.Context(), userID, sessionID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"messages": messages}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// DeleteSession handles DELETE /api/chat/sessions/{id}.
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserID(r.Context())
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
		return
	}

	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, h.logger, fmt.Errorf("%w: invalid session id", apperrors.ErrValidation))
		return
	}

	if err := h.chat.DeleteSession(r.Context(), userID, sessionID); err != nil {
		respondError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
