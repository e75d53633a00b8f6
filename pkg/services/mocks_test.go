package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/duraeco/duraeco-engine/pkg/apperrors"
	"github.com/duraeco/duraeco-engine/pkg/charts"
	"github.com/duraeco/duraeco-engine/pkg/database"
	"github.com/duraeco/duraeco-engine/pkg/models"
	"github.com/duraeco/duraeco-engine/pkg/repositories"
	"github.com/duraeco/duraeco-engine/pkg/vision"
)

// txContext returns a context carrying a no-op querier so database.DB.InTx
// runs the callback inline without a real pool.
func txContext() context.Context {
	return database.WithQuerier(context.Background(), stubQuerier{})
}

type stubQuerier struct{}

func (stubQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (stubQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (stubQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

type mockReportRepo struct {
	CreateFunc               func(ctx context.Context, report *models.Report) error
	GetByIDFunc              func(ctx context.Context, id uuid.UUID) (*models.Report, error)
	ListFunc                 func(ctx context.Context, filter repositories.ReportFilter) ([]*models.Report, error)
	SetImageURLFunc          func(ctx context.Context, id uuid.UUID, imageURL string) error
	ClaimForAnalysisFunc     func(ctx context.Context, id uuid.UUID) error
	MarkAnalyzedFunc         func(ctx context.Context, id uuid.UUID, shortDescription, fullDescription string) error
	RevertToSubmittedFunc    func(ctx context.Context, id uuid.UUID) error
	RevertStaleAnalyzingFunc func(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	ListPendingAnalysisFunc  func(ctx context.Context, limit int) ([]*models.Report, error)
	ListNearbyFunc           func(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]*models.Report, error)
	DeleteFunc               func(ctx context.Context, id uuid.UUID) error

	ClaimCalls  int
	RevertCalls int
	DeleteCalls int
}

var _ repositories.ReportRepository = (*mockReportRepo)(nil)

func (m *mockReportRepo) Create(ctx context.Context, report *models.Report) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, report)
	}
	return nil
}

func (m *mockReportRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockReportRepo) List(ctx context.Context, filter repositories.ReportFilter) ([]*models.Report, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, nil
}

func (m *mockReportRepo) SetImageURL(ctx context.Context, id uuid.UUID, imageURL string) error {
	if m.SetImageURLFunc != nil {
		return m.SetImageURLFunc(ctx, id, imageURL)
	}
	return nil
}

func (m *mockReportRepo) ClaimForAnalysis(ctx context.Context, id uuid.UUID) error {
	m.ClaimCalls++
	if m.ClaimForAnalysisFunc != nil {
		return m.ClaimForAnalysisFunc(ctx, id)
	}
	return nil
}

func (m *mockReportRepo) MarkAnalyzed(ctx context.Context, id uuid.UUID, shortDescription, fullDescription string) error {
	if m.MarkAnalyzedFunc != nil {
		return m.MarkAnalyzedFunc(ctx, id, shortDescription, fullDescription)
	}
	return nil
}

func (m *mockReportRepo) RevertToSubmitted(ctx context.Context, id uuid.UUID) error {
	m.RevertCalls++
	if m.RevertToSubmittedFunc != nil {
		return m.RevertToSubmittedFunc(ctx, id)
	}
	return nil
}

func (m *mockReportRepo) RevertStaleAnalyzing(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	if m.RevertStaleAnalyzingFunc != nil {
		return m.RevertStaleAnalyzingFunc(ctx, cutoff)
	}
	return nil, nil
}

func (m *mockReportRepo) ListPendingAnalysis(ctx context.Context, limit int) ([]*models.Report, error) {
	if m.ListPendingAnalysisFunc != nil {
		return m.ListPendingAnalysisFunc(ctx, limit)
	}
	return nil, nil
}

func (m *mockReportRepo) ListNearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]*models.Report, error) {
	if m.ListNearbyFunc != nil {
		return m.ListNearbyFunc(ctx, lat, lon, radiusKm, limit)
	}
	return nil, nil
}

func (m *mockReportRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.DeleteCalls++
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

type mockAnalysisRepo struct {
	UpsertFunc           func(ctx context.Context, result *models.AnalysisResult) error
	GetByReportIDFunc    func(ctx context.Context, reportID uuid.UUID) (*models.AnalysisResult, error)
	DeleteByReportIDFunc func(ctx context.Context, reportID uuid.UUID) error

	UpsertCalls int
}

var _ repositories.AnalysisRepository = (*mockAnalysisRepo)(nil)

func (m *mockAnalysisRepo) Upsert(ctx context.Context, result *models.AnalysisResult) error {
	m.UpsertCalls++
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, result)
	}
	return nil
}

func (m *mockAnalysisRepo) GetByReportID(ctx context.Context, reportID uuid.UUID) (*models.AnalysisResult, error) {
	if m.GetByReportIDFunc != nil {
		return m.GetByReportIDFunc(ctx, reportID)
	}
	return nil, nil
}

func (m *mockAnalysisRepo) DeleteByReportID(ctx context.Context, reportID uuid.UUID) error {
	if m.DeleteByReportIDFunc != nil {
		return m.DeleteByReportIDFunc(ctx, reportID)
	}
	return nil
}

type mockWasteTypeRepo struct {
	GetOrCreateFunc func(ctx context.Context, name string, hazardLevel int, recyclable bool) (*models.WasteType, error)
	GetByIDFunc     func(ctx context.Context, id uuid.UUID) (*models.WasteType, error)
	ListFunc        func(ctx context.Context) ([]*models.WasteType, error)
}

var _ repositories.WasteTypeRepository = (*mockWasteTypeRepo)(nil)

func (m *mockWasteTypeRepo) GetOrCreate(ctx context.Context, name string, hazardLevel int, recyclable bool) (*models.WasteType, error) {
	if m.GetOrCreateFunc != nil {
		return m.GetOrCreateFunc(ctx, name, hazardLevel, recyclable)
	}
	return &models.WasteType{ID: uuid.New(), Name: name}, nil
}

func (m *mockWasteTypeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WasteType, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockWasteTypeRepo) List(ctx context.Context) ([]*models.WasteType, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

type mockAuditRepo struct {
	Entries []*models.AuditEntry
}

var _ repositories.AuditRepository = (*mockAuditRepo)(nil)

func (m *mockAuditRepo) Create(ctx context.Context, entry *models.AuditEntry) error {
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *mockAuditRepo) GetRecent(ctx context.Context, agent string, limit int) ([]*models.AuditEntry, error) {
	return m.Entries, nil
}

func (m *mockAuditRepo) GetByRelated(ctx context.Context, relatedTable string, relatedID uuid.UUID) ([]*models.AuditEntry, error) {
	return m.Entries, nil
}

type mockHotspotRepo struct {
	AcquireClusterLockFunc func(ctx context.Context, lat, lon float64) error
	ListNearbyAnalyzedFunc func(ctx context.Context, lat, lon, radiusKm float64) ([]*repositories.NearbyReport, error)
	FindActiveNearFunc     func(ctx context.Context, lat, lon, radiusKm float64) (*models.Hotspot, error)
	CreateFunc             func(ctx context.Context, hotspot *models.Hotspot) error
	GetByIDFunc            func(ctx context.Context, id uuid.UUID) (*models.Hotspot, error)
	ListActiveFunc         func(ctx context.Context) ([]*models.Hotspot, error)
	LinkReportFunc         func(ctx context.Context, hotspotID, reportID uuid.UUID) (bool, error)
	UnlinkReportFunc       func(ctx context.Context, reportID uuid.UUID) ([]uuid.UUID, error)
	RefreshStatsFunc       func(ctx context.Context, hotspotID uuid.UUID) (*models.Hotspot, error)
	DeleteFunc             func(ctx context.Context, id uuid.UUID) error
	ListReportIDsFunc      func(ctx context.Context, hotspotID uuid.UUID) ([]uuid.UUID, error)

	LockCalls   int
	CreateCalls int
	LinkCalls   int
	DeleteCalls int
}

var _ repositories.HotspotRepository = (*mockHotspotRepo)(nil)

func (m *mockHotspotRepo) AcquireClusterLock(ctx context.Context, lat, lon float64) error {
	m.LockCalls++
	if m.AcquireClusterLockFunc != nil {
		return m.AcquireClusterLockFunc(ctx, lat, lon)
	}
	return nil
}

func (m *mockHotspotRepo) ListNearbyAnalyzed(ctx context.Context, lat, lon, radiusKm float64) ([]*repositories.NearbyReport, error) {
	if m.ListNearbyAnalyzedFunc != nil {
		return m.ListNearbyAnalyzedFunc(ctx, lat, lon, radiusKm)
	}
	return nil, nil
}

func (m *mockHotspotRepo) FindActiveNear(ctx context.Context, lat, lon, radiusKm float64) (*models.Hotspot, error) {
	if m.FindActiveNearFunc != nil {
		return m.FindActiveNearFunc(ctx, lat, lon, radiusKm)
	}
	return nil, nil
}

func (m *mockHotspotRepo) Create(ctx context.Context, hotspot *models.Hotspot) error {
	m.CreateCalls++
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, hotspot)
	}
	if hotspot.ID == uuid.Nil {
		hotspot.ID = uuid.New()
	}
	return nil
}

func (m *mockHotspotRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Hotspot, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockHotspotRepo) ListActive(ctx context.Context) ([]*models.Hotspot, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, nil
}

func (m *mockHotspotRepo) LinkReport(ctx context.Context, hotspotID, reportID uuid.UUID) (bool, error) {
	m.LinkCalls++
	if m.LinkReportFunc != nil {
		return m.LinkReportFunc(ctx, hotspotID, reportID)
	}
	return true, nil
}

func (m *mockHotspotRepo) UnlinkReport(ctx context.Context, reportID uuid.UUID) ([]uuid.UUID, error) {
	if m.UnlinkReportFunc != nil {
		return m.UnlinkReportFunc(ctx, reportID)
	}
	return nil, nil
}

func (m *mockHotspotRepo) RefreshStats(ctx context.Context, hotspotID uuid.UUID) (*models.Hotspot, error) {
	if m.RefreshStatsFunc != nil {
		return m.RefreshStatsFunc(ctx, hotspotID)
	}
	return &models.Hotspot{ID: hotspotID}, nil
}

func (m *mockHotspotRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.DeleteCalls++
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *mockHotspotRepo) ListReportIDs(ctx context.Context, hotspotID uuid.UUID) ([]uuid.UUID, error) {
	if m.ListReportIDsFunc != nil {
		return m.ListReportIDsFunc(ctx, hotspotID)
	}
	return nil, nil
}

type mockChatRepo struct {
	Sessions map[uuid.UUID]*models.ChatSession
	Messages []*models.ChatMessage

	AddMessageFunc func(ctx context.Context, message *models.ChatMessage) error
}

var _ repositories.ChatRepository = (*mockChatRepo)(nil)

func newMockChatRepo() *mockChatRepo {
	return &mockChatRepo{Sessions: make(map[uuid.UUID]*models.ChatSession)}
}

func (m *mockChatRepo) CreateSession(ctx context.Context, session *models.ChatSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	m.Sessions[session.ID] = session
	return nil
}

func (m *mockChatRepo) GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	session, ok := m.Sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: chat session %s", apperrors.ErrNotFound, id)
	}
	return session, nil
}

func (m *mockChatRepo) ListSessions(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error) {
	var sessions []*models.ChatSession
	for _, s := range m.Sessions {
		if s.UserID == userID {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

func (m *mockChatRepo) TouchSession(ctx context.Context, id uuid.UUID) error {
	if s, ok := m.Sessions[id]; ok {
		s.UpdatedAt = time.Now()
	}
	return nil
}

func (m *mockChatRepo) DeleteSession(ctx context.Context, id uuid.UUID) error {
	delete(m.Sessions, id)
	return nil
}

func (m *mockChatRepo) AddMessage(ctx context.Context, message *models.ChatMessage) error {
	if m.AddMessageFunc != nil {
		return m.AddMessageFunc(ctx, message)
	}
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	m.Messages = append(m.Messages, message)
	return nil
}

func (m *mockChatRepo) GetMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]*models.ChatMessage, error) {
	var messages []*models.ChatMessage
	for _, msg := range m.Messages {
		if msg.SessionID == sessionID {
			messages = append(messages, msg)
		}
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

type mockHotspotService struct {
	OnReportAnalyzedFunc func(ctx context.Context, report *models.Report) (models.HotspotAction, error)
	OnReportDeletedFunc  func(ctx context.Context, reportID uuid.UUID) error
	ListActiveFunc       func(ctx context.Context) ([]*models.Hotspot, error)
	GetHotspotFunc       func(ctx context.Context, id uuid.UUID) (*HotspotWithReports, error)

	AnalyzedCalls int
	DeletedCalls  int
}

var _ HotspotService = (*mockHotspotService)(nil)

func (m *mockHotspotService) OnReportAnalyzed(ctx context.Context, report *models.Report) (models.HotspotAction, error) {
	m.AnalyzedCalls++
	if m.OnReportAnalyzedFunc != nil {
		return m.OnReportAnalyzedFunc(ctx, report)
	}
	return models.HotspotActionNone, nil
}

func (m *mockHotspotService) OnReportDeleted(ctx context.Context, reportID uuid.UUID) error {
	m.DeletedCalls++
	if m.OnReportDeletedFunc != nil {
		return m.OnReportDeletedFunc(ctx, reportID)
	}
	return nil
}

func (m *mockHotspotService) ListActive(ctx context.Context) ([]*models.Hotspot, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, nil
}

func (m *mockHotspotService) GetHotspot(ctx context.Context, id uuid.UUID) (*HotspotWithReports, error) {
	if m.GetHotspotFunc != nil {
		return m.GetHotspotFunc(ctx, id)
	}
	return nil, nil
}

type mockClassifier struct {
	ClassifyFunc func(ctx context.Context, imageBase64 string, lat, lon float64, userDescription string) (*vision.Outcome, error)

	ClassifyCalls int
}

var _ ImageClassifier = (*mockClassifier)(nil)

func (m *mockClassifier) Classify(ctx context.Context, imageBase64 string, lat, lon float64, userDescription string) (*vision.Outcome, error) {
	m.ClassifyCalls++
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, imageBase64, lat, lon, userDescription)
	}
	return &vision.Outcome{IsWaste: true, WasteType: "Plastic", SeverityScore: 5, PriorityLevel: "medium"}, nil
}

type mockIndexer struct {
	EmbedAnalysisFunc func(ctx context.Context, imageBase64, digest, locationText string) ([]float64, []float64)
}

var _ EmbeddingIndexer = (*mockIndexer)(nil)

func (m *mockIndexer) EmbedAnalysis(ctx context.Context, imageBase64, digest, locationText string) ([]float64, []float64) {
	if m.EmbedAnalysisFunc != nil {
		return m.EmbedAnalysisFunc(ctx, imageBase64, digest, locationText)
	}
	return nil, nil
}

type mockEnqueuer struct {
	Enqueued []uuid.UUID
	Full     bool
}

var _ AnalysisEnqueuer = (*mockEnqueuer)(nil)

func (m *mockEnqueuer) Enqueue(reportID uuid.UUID) bool {
	if m.Full {
		return false
	}
	m.Enqueued = append(m.Enqueued, reportID)
	return true
}

type mockQueryGateway struct {
	ExecuteQueryFunc func(ctx context.Context, rawQuery string) (*QueryResult, error)

	Queries []string
}

var _ QueryGateway = (*mockQueryGateway)(nil)

func (m *mockQueryGateway) ExecuteQuery(ctx context.Context, rawQuery string) (*QueryResult, error) {
	m.Queries = append(m.Queries, rawQuery)
	if m.ExecuteQueryFunc != nil {
		return m.ExecuteQueryFunc(ctx, rawQuery)
	}
	return &QueryResult{Columns: []string{"count"}, Rows: []map[string]any{{"count": 0}}, RowCount: 1}, nil
}

type mockRenderer struct {
	RenderChartFunc func(ctx context.Context, spec charts.ChartSpec) (string, error)
	RenderMapFunc   func(ctx context.Context, title string, points []charts.MapPoint) (string, error)
}

var _ ChartRenderer = (*mockRenderer)(nil)

func (m *mockRenderer) RenderChart(ctx context.Context, spec charts.ChartSpec) (string, error) {
	if m.RenderChartFunc != nil {
		return m.RenderChartFunc(ctx, spec)
	}
	return "http://blob.test/charts/test.html", nil
}

func (m *mockRenderer) RenderMap(ctx context.Context, title string, points []charts.MapPoint) (string, error) {
	if m.RenderMapFunc != nil {
		return m.RenderMapFunc(ctx, title, points)
	}
	return "http://blob.test/maps/test.html", nil
}
