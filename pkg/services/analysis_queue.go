package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duraeco/duraeco-engine/pkg/config"
	"github.com/duraeco/duraeco-engine/pkg/repositories"
)

// AnalysisQueue feeds submitted reports to a fixed pool of analysis workers.
// A periodic sweeper reverts reports stuck in analyzing (crashed worker,
// restart mid-analysis) and re-enqueues submitted reports the queue dropped.
type AnalysisQueue struct {
	jobs          chan uuid.UUID
	workers       int
	sweepInterval time.Duration
	claimTimeout  time.Duration

	analysis AnalysisService
	reports  repositories.ReportRepository
	logger   *zap.Logger

	wg sync.WaitGroup
}

// NewAnalysisQueue creates a queue sized from configuration.
func NewAnalysisQueue(
	cfg config.AnalysisConfig,
	analysis AnalysisService,
	reports repositories.ReportRepository,
	logger *zap.Logger,
) *AnalysisQueue {
	workers := cfg.Workers
	if workers < 1 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = 256
	}
	sweepInterval := time.Duration(cfg.SweepIntervalMinutes) * time.Minute
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	claimTimeout := time.Duration(cfg.ClaimTimeoutMinutes) * time.Minute
	if claimTimeout <= 0 {
		claimTimeout = 30 * time.Minute
	}

	return &AnalysisQueue{
		jobs:          make(chan uuid.UUID, queueSize),
		workers:       workers,
		sweepInterval: sweepInterval,
		claimTimeout:  claimTimeout,
		analysis:      analysis,
		reports:       reports,
		logger:        logger.Named("analysis-queue"),
	}
}

var _ AnalysisEnqueuer = (*AnalysisQueue)(nil)

// Enqueue submits a report for analysis. Returns false when the queue is
// full; the sweeper will pick the report up later.
func (q *AnalysisQueue) Enqueue(reportID uuid.UUID) bool {
	select {
	case q.jobs <- reportID:
		return true
	default:
		return false
	}
}

// Start launches the workers and the sweeper. They run until ctx is
// cancelled; Stop waits for in-flight work to finish.
func (q *AnalysisQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	q.wg.Add(1)
	go q.sweeper(ctx)

	q.logger.Info("Analysis queue started",
		zap.Int("workers", q.workers),
		zap.Int("queue_size", cap(q.jobs)),
		zap.Duration("sweep_interval", q.sweepInterval))
}

// Stop blocks until all workers have exited. Call after cancelling the
// context passed to Start.
func (q *AnalysisQueue) Stop() {
	q.wg.Wait()
}

func (q *AnalysisQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case reportID := <-q.jobs:
			if err := q.analysis.AnalyzeReport(ctx, reportID); err != nil {
				q.logger.Warn("Analysis failed",
					zap.Int("worker", id),
					zap.String("report_id", reportID.String()),
					zap.Error(err))
			}
		}
	}
}

func (q *AnalysisQueue) sweeper(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweep(ctx)
		}
	}
}

// sweep reverts abandoned claims and requeues waiting reports.
func (q *AnalysisQueue) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-q.claimTimeout)
	reverted, err := q.reports.RevertStaleAnalyzing(ctx, cutoff)
	if err != nil {
		q.logger.Error("Sweep failed to revert stale reports", zap.Error(err))
	} else if len(reverted) > 0 {
		q.logger.Warn("Reverted reports stuck in analyzing", zap.Int("count", len(reverted)))
	}

	pending, err := q.reports.ListPendingAnalysis(ctx, cap(q.jobs))
	if err != nil {
		q.logger.Error("Sweep failed to list pending reports", zap.Error(err))
		return
	}

	queued := 0
	for _, report := range pending {
		if q.Enqueue(report.ID) {
			queued++
		}
	}
	if queued > 0 {
		q.logger.Info("Sweep requeued pending reports", zap.Int("count", queued))
	}
}
