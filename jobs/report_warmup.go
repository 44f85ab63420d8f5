package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/optisass/optisass-core/internal/reporting"
)

// ReportWarmupJob pre-populates the reporting cache so the first dashboard
// request of the day does not pay the aggregation cost.
type ReportWarmupJob struct {
	Reporting *reporting.Service
	Logger    *slog.Logger
	clock     func() time.Time
}

// NewReportWarmupJob wires dependencies for the warmup handler.
func NewReportWarmupJob(svc *reporting.Service, logger *slog.Logger) *ReportWarmupJob {
	return &ReportWarmupJob{
		Reporting: svc,
		Logger:    logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes warmup tasks.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reporting == nil {
		return errors.New("report warmup: handler not configured")
	}
	var payload ReportWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	now := j.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from := monthStart.AddDate(0, -payload.Months, 0)

	windows := []reporting.Window{
		{},
		{From: from, To: monthStart.AddDate(0, 1, 0)},
	}

	logger := j.logger().With(slog.Int64("center_id", payload.CenterID))
	logger.Info("starting report warmup", slog.Int("windows", len(windows)))

	for _, w := range windows {
		warmCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		_, err := j.Reporting.Summary(warmCtx, w, payload.CenterID)
		cancel()
		if err != nil {
			logger.Error("warm window", slog.Time("from", w.From), slog.Time("to", w.To), slog.Any("error", err))
			return err
		}
	}

	logger.Info("completed report warmup", slog.Duration("duration", time.Since(now)))
	return nil
}

func (j *ReportWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportWarmup))
}

func (j *ReportWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
