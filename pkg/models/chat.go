package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatRole represents the role of a chat message sender.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// IsValidChatRole checks if the given role can be persisted. Only user and
// assistant turns are stored; system and tool traffic stays in memory.
func IsValidChatRole(r ChatRole) bool {
	return r == ChatRoleUser || r == ChatRoleAssistant
}

// ChatSession groups the messages of one assistant conversation.
type ChatSession struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one persisted turn in a chat session.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionTitleFromMessage derives a session title from the first user message.
func SessionTitleFromMessage(content string) string {
	const maxTitleLen = 100
	if len(content) <= maxTitleLen {
		return content
	}
	return content[:maxTitleLen]
}
