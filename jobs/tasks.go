package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcileScan runs the nightly reconciliation sweep.
	TaskReconcileScan = "reconcile:scan"
	// TaskReportWarmup pre-populates the reporting cache.
	TaskReportWarmup = "report:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// ReconcileScanPayload parameterises a reconciliation sweep.
type ReconcileScanPayload struct {
	// Days is the size of the scan window ending now. Zero means yesterday.
	Days     int   `json:"days"`
	CenterID int64 `json:"center_id"`
}

// ReportWarmupPayload parameterises a warmup run.
type ReportWarmupPayload struct {
	// Months is how far back the warmed window reaches. Zero means the
	// current month only.
	Months   int   `json:"months"`
	CenterID int64 `json:"center_id"`
}

// NewReconcileScanTask builds an Asynq task for the reconciliation sweep.
func NewReconcileScanTask(payload ReconcileScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileScan, data), nil
}

// NewReportWarmupTask builds an Asynq task for the reporting cache warmup.
func NewReportWarmupTask(payload ReportWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, data), nil
}

// IdempotencyCleanupPayload parameterises the key pruning task.
type IdempotencyCleanupPayload struct {
	// RetentionHours keeps keys younger than this. Zero means one week.
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask builds an Asynq task for key pruning.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
