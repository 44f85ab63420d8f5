package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/optisass/optisass-core/internal/reconcile"
	"github.com/optisass/optisass-core/internal/reporting"
)

// ReconcileScanJob runs the nightly reconciliation sweep and logs every
// anomaly it finds. The job never mutates ledger data.
type ReconcileScanJob struct {
	Reconcile *reconcile.Service
	Logger    *slog.Logger
	clock     func() time.Time
}

// NewReconcileScanJob initialises the sweep handler.
func NewReconcileScanJob(svc *reconcile.Service, logger *slog.Logger) *ReconcileScanJob {
	return &ReconcileScanJob{
		Reconcile: svc,
		Logger:    logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the reconciliation sweep.
func (j *ReconcileScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reconcile == nil {
		return errors.New("reconcile scan: handler not configured")
	}
	var payload ReconcileScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Days <= 0 {
		payload.Days = 1
	}

	now := j.now()
	to := now.Truncate(24 * time.Hour)
	window := reporting.Window{From: to.AddDate(0, 0, -payload.Days), To: to}

	logger := j.logger().With(
		slog.Time("from", window.From),
		slog.Time("to", window.To),
		slog.Int64("center_id", payload.CenterID),
	)
	logger.Info("starting reconciliation sweep")

	report, err := j.Reconcile.Report(ctx, window, payload.CenterID, reconcile.Reference{})
	if err != nil {
		logger.Error("sweep failed", slog.Any("error", err))
		return err
	}

	for _, d := range report.AggregatorDeltas {
		logger.Warn("aggregator mismatch",
			slog.String("field", d.Field),
			slog.Float64("got", d.Got),
			slog.Float64("expected", d.Expected),
			slog.Float64("diff", d.Diff),
		)
	}
	for _, g := range report.DuplicateGroups {
		logger.Warn("duplicate payment candidates",
			slog.Int64("document_id", g.DocumentID),
			slog.Float64("amount", g.Amount),
			slog.String("method", g.Method),
			slog.Int("payments", len(g.Payments)),
		)
	}
	if len(report.BalanceDriftIDs) > 0 {
		logger.Warn("outstanding balance drift", slog.Any("document_ids", report.BalanceDriftIDs))
	}
	if len(report.NilIssueDateIDs) > 0 {
		logger.Warn("documents without issue date", slog.Any("document_ids", report.NilIssueDateIDs))
	}

	logger.Info("completed reconciliation sweep",
		slog.Bool("clean", report.Clean),
		slog.Int("out_of_window", len(report.OutOfWindow)),
		slog.Duration("duration", time.Since(now)),
	)
	return nil
}

func (j *ReconcileScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReconcileScan))
	}
	return slog.Default().With(slog.String("job", TaskReconcileScan))
}

func (j *ReconcileScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
