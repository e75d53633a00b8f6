package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/config"
	"github.com/duraeco/duraeco-engine/pkg/models"
)

type mockAnalysisService struct {
	AnalyzeReportFunc func(ctx context.Context, reportID uuid.UUID) error
}

var _ AnalysisService = (*mockAnalysisService)(nil)

func (m *mockAnalysisService) AnalyzeReport(ctx context.Context, reportID uuid.UUID) error {
	if m.AnalyzeReportFunc != nil {
		return m.AnalyzeReportFunc(ctx, reportID)
	}
	return nil
}

func TestAnalysisQueue_EnqueueRejectsWhenFull(t *testing.T) {
	q := NewAnalysisQueue(config.AnalysisConfig{Workers: 1, QueueSize: 1},
		&mockAnalysisService{}, &mockReportRepo{}, zap.NewNop())

	if !q.Enqueue(uuid.New()) {
		t.Fatal("first enqueue should be accepted")
	}
	if q.Enqueue(uuid.New()) {
		t.Fatal("second enqueue should be rejected with no worker draining")
	}
}

func TestAnalysisQueue_WorkersDrainJobs(t *testing.T) {
	processed := make(chan uuid.UUID, 4)
	analysis := &mockAnalysisService{
		AnalyzeReportFunc: func(ctx context.Context, reportID uuid.UUID) error {
			processed <- reportID
			return nil
		},
	}

	q := NewAnalysisQueue(config.AnalysisConfig{Workers: 2, QueueSize: 8},
		analysis, &mockReportRepo{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	defer func() {
		cancel()
		q.Stop()
	}()

	want := map[uuid.UUID]bool{uuid.New(): true, uuid.New(): true, uuid.New(): true}
	for id := range want {
		if !q.Enqueue(id) {
			t.Fatalf("enqueue of %s rejected", id)
		}
	}

	for i := 0; i < len(want); i++ {
		select {
		case id := <-processed:
			if !want[id] {
				t.Errorf("processed unexpected report %s", id)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for workers to drain the queue")
		}
	}
}

func TestAnalysisQueue_SweepRevertsAndRequeues(t *testing.T) {
	reports := &mockReportRepo{}

	var gotCutoff time.Time
	reports.RevertStaleAnalyzingFunc = func(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
		gotCutoff = cutoff
		return []uuid.UUID{uuid.New()}, nil
	}
	pending := []*models.Report{
		{ID: uuid.New()},
		{ID: uuid.New()},
	}
	reports.ListPendingAnalysisFunc = func(ctx context.Context, limit int) ([]*models.Report, error) {
		return pending, nil
	}

	q := NewAnalysisQueue(config.AnalysisConfig{Workers: 1, QueueSize: 8, ClaimTimeoutMinutes: 30},
		&mockAnalysisService{}, reports, zap.NewNop())

	q.sweep(context.Background())

	wantCutoff := time.Now().Add(-30 * time.Minute)
	if gotCutoff.Before(wantCutoff.Add(-time.Minute)) || gotCutoff.After(wantCutoff.Add(time.Minute)) {
		t.Errorf("stale cutoff = %v, want about %v", gotCutoff, wantCutoff)
	}
	if len(q.jobs) != len(pending) {
		t.Errorf("requeued %d jobs, want %d", len(q.jobs), len(pending))
	}
}

func TestAnalysisQueue_SweepToleratesFullQueue(t *testing.T) {
	reports := &mockReportRepo{}
	reports.ListPendingAnalysisFunc = func(ctx context.Context, limit int) ([]*models.Report, error) {
		return []*models.Report{{ID: uuid.New()}, {ID: uuid.New()}}, nil
	}

	q := NewAnalysisQueue(config.AnalysisConfig{Workers: 1, QueueSize: 1},
		&mockAnalysisService{}, reports, zap.NewNop())

	q.sweep(context.Background())

	if len(q.jobs) != 1 {
		t.Errorf("queued jobs = %d, want the queue filled to capacity", len(q.jobs))
	}
}

func TestAnalysisQueue_ConfigDefaults(t *testing.T) {
	q := NewAnalysisQueue(config.AnalysisConfig{}, &mockAnalysisService{}, &mockReportRepo{}, zap.NewNop())

	if q.workers != 4 {
		t.Errorf("workers = %d, want the default of 4", q.workers)
	}
	if cap(q.jobs) != 256 {
		t.Errorf("queue size = %d, want the default of 256", cap(q.jobs))
	}
	if q.sweepInterval != 10*time.Minute {
		t.Errorf("sweep interval = %v", q.sweepInterval)
	}
	if q.claimTimeout != 30*time.Minute {
		t.Errorf("claim timeout = %v", q.claimTimeout)
	}
}
