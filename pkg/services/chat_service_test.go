package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/llm"
	"github.com/duraeco/duraeco-engine/pkg/models"
)

type chatServiceFixture struct {
	service  ChatService
	chats    *mockChatRepo
	audit    *mockAuditRepo
	client   *llm.MockLLMClient
	fallback *llm.MockCompleter
}

func newChatServiceFixture() *chatServiceFixture {
	f := &chatServiceFixture{
		chats:    newMockChatRepo(),
		audit:    &mockAuditRepo{},
		client:   llm.NewMockLLMClient(),
		fallback: &llm.MockCompleter{},
	}
	f.service = NewChatService(f.chats, f.audit, f.client, llm.NewToolRegistry(), f.fallback, zap.NewNop())
	return f
}

func (f *chatServiceFixture) replyWith(text string) {
	f.client.ChatWithToolsFunc = func(ctx context.Context, req *llm.ChatRequest, executor llm.ToolExecutor) (string, error) {
		return text, nil
	}
}

func TestChat_Validation(t *testing.T) {
	f := newChatServiceFixture()

	if _, err := f.service.Chat(context.Background(), &ChatInput{UserID: uuid.New(), Message: "   "}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("blank message: got %v, want validation error", err)
	}
	if _, err := f.service.Chat(context.Background(), &ChatInput{Message: "hello"}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("missing user: got %v, want validation error", err)
	}
	if len(f.chats.Messages) != 0 {
		t.Error("rejected input must not be persisted")
	}
}

func TestChat_CreatesSessionLazily(t *testing.T) {
	f := newChatServiceFixture()
	f.replyWith("There are 4 active hotspots.")
	userID := uuid.New()

	result, err := f.service.Chat(context.Background(), &ChatInput{UserID: userID, Message: "How many hotspots are active?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session, ok := f.chats.Sessions[result.SessionID]
	if !ok {
		t.Fatal("session was not created")
	}
	if session.UserID != userID {
		t.Error("session not bound to the caller")
	}
	if session.Title != "How many hotspots are active?" {
		t.Errorf("session title = %q", session.Title)
	}
	if result.Reply != "There are 4 active hotspots." {
		t.Errorf("reply = %q", result.Reply)
	}
	if len(f.chats.Messages) != 2 {
		t.Fatalf("persisted messages = %d, want user and assistant turns", len(f.chats.Messages))
	}
	if f.chats.Messages[0].Role != models.ChatRoleUser || f.chats.Messages[1].Role != models.ChatRoleAssistant {
		t.Error("messages persisted in the wrong order")
	}
	if len(f.audit.Entries) != 1 || f.audit.Entries[0].Action != "chat_turn" {
		t.Errorf("audit entries = %+v", f.audit.Entries)
	}
}

func TestChat_ReusesExistingSession(t *testing.T) {
	f := newChatServiceFixture()
	f.replyWith("Sure.")
	userID := uuid.New()

	first, err := f.service.Chat(context.Background(), &ChatInput{UserID: userID, Message: "hello there"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.service.Chat(context.Background(), &ChatInput{UserID: userID, SessionID: &first.SessionID, Message: "and another thing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.SessionID != first.SessionID {
		t.Error("follow-up turn must stay in the same session")
	}
	if len(f.chats.Sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(f.chats.Sessions))
	}
	if len(f.chats.Messages) != 4 {
		t.Errorf("persisted messages = %d, want 4", len(f.chats.Messages))
	}
}

func TestChat_RejectsForeignSession(t *testing.T) {
	f := newChatServiceFixture()
	owner := uuid.New()
	session := &models.ChatSession{UserID: owner, Title: "private"}
	if err := f.chats.CreateSession(context.Background(), session); err != nil {
		t.Fatal(err)
	}

	_, err := f.service.Chat(context.Background(), &ChatInput{
		UserID:    uuid.New(),
		SessionID: &session.ID,
		Message:   "show me everything",
	})
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("got %v, want forbidden", err)
	}
	if len(f.chats.Messages) != 0 {
		t.Error("no message may be written into a foreign session")
	}
}

func TestChat_UnknownSession(t *testing.T) {
	f := newChatServiceFixture()
	missing := uuid.New()

	_, err := f.service.Chat(context.Background(), &ChatInput{
		UserID:    uuid.New(),
		SessionID: &missing,
		Message:   "hello",
	})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestChat_UserTurnSurvivesModelFailure(t *testing.T) {
	f := newChatServiceFixture()
	f.client.ChatWithToolsFunc = func(ctx context.Context, req *llm.ChatRequest, executor llm.ToolExecutor) (string, error) {
		return "", errors.New("model down")
	}
	f.fallback.CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("also down")
	}

	result, err := f.service.Chat(context.Background(), &ChatInput{UserID: uuid.New(), Message: "where do hotspots form?"})
	if err != nil {
		t.Fatalf("a model outage must not fail the turn: %v", err)
	}
	if len(f.chats.Messages) != 2 {
		t.Fatalf("persisted messages = %d, want both turns despite the outage", len(f.chats.Messages))
	}
	if f.chats.Messages[0].Content != "where do hotspots form?" {
		t.Error("user turn was not persisted before the model ran")
	}
	if !strings.Contains(result.Reply, "Hotspots") {
		t.Errorf("expected the canned hotspot reply, got %q", result.Reply)
	}
}

func TestChat_ApologyWhenToolRoundsExceeded(t *testing.T) {
	f := newChatServiceFixture()
	f.client.ChatWithToolsFunc = func(ctx context.Context, req *llm.ChatRequest, executor llm.ToolExecutor) (string, error) {
		return "", llm.ErrToolRoundsExceeded
	}

	result, err := f.service.Chat(context.Background(), &ChatInput{UserID: uuid.New(), Message: "count everything twice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reply != apologyReply {
		t.Errorf("reply = %q, want the apology", result.Reply)
	}
	if f.fallback.CompleteCalls != 0 {
		t.Error("an exhausted tool budget must not trigger the fallback model")
	}
}

func TestChat_ApologyOnEmptyModelOutput(t *testing.T) {
	f := newChatServiceFixture()
	f.replyWith("<think>pondering silently</think>")

	result, err := f.service.Chat(context.Background(), &ChatInput{UserID: uuid.New(), Message: "hm"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reply != apologyReply {
		t.Errorf("reply = %q, want the apology for empty output", result.Reply)
	}
}

func TestChat_FallbackCompleterAnswers(t *testing.T) {
	f := newChatServiceFixture()
	f.client.ChatWithToolsFunc = func(ctx context.Context, req *llm.ChatRequest, executor llm.ToolExecutor) (string, error) {
		return "", errors.New("primary down")
	}
	f.fallback.CompleteFunc = func(ctx context.Context, prompt string) (string, error) {
		if !strings.Contains(prompt, "what is this platform?") {
			t.Errorf("fallback prompt missing the user question: %q", prompt)
		}
		return "It is a community waste reporting platform.", nil
	}

	result, err := f.service.Chat(context.Background(), &ChatInput{UserID: uuid.New(), Message: "what is this platform?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Reply != "It is a community waste reporting platform." {
		t.Errorf("reply = %q", result.Reply)
	}
}

func TestChat_HistoryReplayedToModel(t *testing.T) {
	f := newChatServiceFixture()
	var seen []llm.Message
	f.client.ChatWithToolsFunc = func(ctx context.Context, req *llm.ChatRequest, executor llm.ToolExecutor) (string, error) {
		seen = req.Messages
		return "noted", nil
	}
	userID := uuid.New()

	first, err := f.service.Chat(context.Background(), &ChatInput{UserID: userID, Message: "first question"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.Chat(context.Background(), &ChatInput{UserID: userID, SessionID: &first.SessionID, Message: "second question"}); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 3 {
		t.Fatalf("model saw %d messages, want the full history", len(seen))
	}
	if seen[0].Content != "first question" || seen[1].Content != "noted" || seen[2].Content != "second question" {
		t.Errorf("history out of order: %+v", seen)
	}
}

func TestKeywordReply(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"are there hotspots near me?", "Hotspots"},
		{"how do I submit a report?", "Citizens submit"},
		{"hello assistant", "Hello!"},
		{"what is the meaning of life", "temporarily unable"},
	}

	for _, tt := range tests {
		if got := keywordReply(tt.message); !strings.Contains(got, tt.want) {
			t.Errorf("keywordReply(%q) = %q, want it to contain %q", tt.message, got, tt.want)
		}
	}
}

func TestGetHistory_EnforcesOwnership(t *testing.T) {
	f := newChatServiceFixture()
	f.replyWith("ok")
	owner := uuid.New()

	result, err := f.service.Chat(context.Background(), &ChatInput{UserID: owner, Message: "remember this"})
	if err != nil {
		t.Fatal(err)
	}

	history, err := f.service.GetHistory(context.Background(), owner, result.SessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2", len(history))
	}

	if _, err := f.service.GetHistory(context.Background(), uuid.New(), result.SessionID); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("foreign caller got %v, want forbidden", err)
	}
}

func TestDeleteSession_EnforcesOwnership(t *testing.T) {
	f := newChatServiceFixture()
	f.replyWith("ok")
	owner := uuid.New()

	result, err := f.service.Chat(context.Background(), &ChatInput{UserID: owner, Message: "temporary chat"})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.service.DeleteSession(context.Background(), uuid.New(), result.SessionID); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("foreign caller got %v, want forbidden", err)
	}
	if err := f.service.DeleteSession(context.Background(), owner, result.SessionID); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}
	if _, ok := f.chats.Sessions[result.SessionID]; ok {
		t.Error("session was not removed")
	}
}
