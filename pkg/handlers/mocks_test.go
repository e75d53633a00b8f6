package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/auth"
	"github.com/duraeco/duraeco-engine/pkg/config"
	"github.com/duraeco/duraeco-engine/pkg/models"
	"github.com/duraeco/duraeco-engine/pkg/repositories"
	"github.com/duraeco/duraeco-engine/pkg/services"
)

// testMiddleware authenticates via the X-User-ID header, as in local
// development deployments.
func testMiddleware() *auth.Middleware {
	return auth.NewMiddleware(config.AuthConfig{EnableVerification: false}, zap.NewNop())
}

// authedRequest builds a request identified as the given user.
func authedRequest(method, target string, body io.Reader, userID uuid.UUID) *http.Request {
	r := httptest.NewRequest(method, target, body)
	r.Header.Set("X-User-ID", userID.String())
	return r
}

type mockReportService struct {
	SubmitReportFunc func(ctx context.Context, input *services.SubmitReportInput) (*models.Report, error)
	GetReportFunc    func(ctx context.Context, id uuid.UUID) (*services.ReportWithAnalysis, error)
	ListReportsFunc  func(ctx context.Context, filter repositories.ReportFilter) ([]*models.Report, error)
	ListNearbyFunc   func(ctx context.Context, lat, lon, radiusKm float64) ([]*models.Report, error)
	DeleteReportFunc func(ctx context.Context, id uuid.UUID) error

	DeleteCalls int
}

var _ services.ReportService = (*mockReportService)(nil)

func (m *mockReportService) SubmitReport(ctx context.Context, input *services.SubmitReportInput) (*models.Report, error) {
	if m.SubmitReportFunc != nil {
		return m.SubmitReportFunc(ctx, input)
	}
	return &models.Report{ID: uuid.New(), UserID: input.UserID, Status: models.ReportStatusSubmitted}, nil
}

func (m *mockReportService) GetReport(ctx context.Context, id uuid.UUID) (*services.ReportWithAnalysis, error) {
	if m.GetReportFunc != nil {
		return m.GetReportFunc(ctx, id)
	}
	return &services.ReportWithAnalysis{Report: &models.Report{ID: id}}, nil
}

func (m *mockReportService) ListReports(ctx context.Context, filter repositories.ReportFilter) ([]*models.Report, error) {
	if m.ListReportsFunc != nil {
		return m.ListReportsFunc(ctx, filter)
	}
	return nil, nil
}

func (m *mockReportService) ListNearbyReports(ctx context.Context, lat, lon, radiusKm float64) ([]*models.Report, error) {
	if m.ListNearbyFunc != nil {
		return m.ListNearbyFunc(ctx, lat, lon, radiusKm)
	}
	return nil, nil
}

func (m *mockReportService) DeleteReport(ctx context.Context, id uuid.UUID) error {
	m.DeleteCalls++
	if m.DeleteReportFunc != nil {
		return m.DeleteReportFunc(ctx, id)
	}
	return nil
}

type mockHotspotService struct {
	ListActiveFunc func(ctx context.Context) ([]*models.Hotspot, error)
	GetHotspotFunc func(ctx context.Context, id uuid.UUID) (*services.HotspotWithReports, error)
}

var _ services.HotspotService = (*mockHotspotService)(nil)

func (m *mockHotspotService) OnReportAnalyzed(ctx context.Context, report *models.Report) (models.HotspotAction, error) {
	return models.HotspotActionNone, nil
}

func (m *mockHotspotService) OnReportDeleted(ctx context.Context, reportID uuid.UUID) error {
	return nil
}

func (m *mockHotspotService) ListActive(ctx context.Context) ([]*models.Hotspot, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, nil
}

func (m *mockHotspotService) GetHotspot(ctx context.Context, id uuid.UUID) (*services.HotspotWithReports, error) {
	if m.GetHotspotFunc != nil {
		return m.GetHotspotFunc(ctx, id)
	}
	return &services.HotspotWithReports{Hotspot: &models.Hotspot{ID: id}}, nil
}

type mockChatService struct {
	ChatFunc          func(ctx context.Context, input *services.ChatInput) (*services.ChatResult, error)
	ListSessionsFunc  func(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error)
	GetHistoryFunc    func(ctx context.Context, userID, sessionID uuid.UUID) ([]*models.ChatMessage, error)
	DeleteSessionFunc func(ctx context.Context, userID, sessionID uuid.UUID) error
}

var _ services.ChatService = (*mockChatService)(nil)

func (m *mockChatService) Chat(ctx context.Context, input *services.ChatInput) (*services.ChatResult, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, input)
	}
	return &services.ChatResult{SessionID: uuid.New(), Reply: "ok"}, nil
}

func (m *mockChatService) ListSessions(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockChatService) GetHistory(ctx context.Context, userID, sessionID uuid.UUID) ([]*models.ChatMessage, error) {
	if m.GetHistoryFunc != nil {
		return m.GetHistoryFunc(ctx, userID, sessionID)
	}
	return nil, nil
}

func (m *mockChatService) DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, userID, sessionID)
	}
	return nil
}
