package reconcile

import (
	"time"

	"github.com/optisass/optisass-core/internal/documents"
	"github.com/optisass/optisass-core/internal/payments"
	"github.com/optisass/optisass-core/internal/reporting"
)

// Reference carries externally supplied totals, typically the legacy system's
// own figures for the same window. Zero-value fields are simply not compared.
type Reference struct {
	Revenue   float64                                       `json:"revenue,omitempty"`
	COGS      float64                                       `json:"cogs,omitempty"`
	Breakdown map[documents.Category]reporting.CategoryStat `json:"breakdown,omitempty"`
}

// Delta is one discrepancy between two figures.
type Delta struct {
	Field    string  `json:"field"`
	Got      float64 `json:"got"`
	Expected float64 `json:"expected"`
	Diff     float64 `json:"diff"`
}

// OutOfWindowDocument is a document that classifies into a revenue category
// but whose issue date falls outside the requested window. These are the
// usual suspects when a period total "loses" invoices.
type OutOfWindowDocument struct {
	ID        int64              `json:"id"`
	Number    string             `json:"number"`
	Category  documents.Category `json:"category"`
	IssueDate *time.Time         `json:"issue_date"`
	Amount    float64            `json:"amount"`
}

// Report is the read-only reconciliation outcome.
type Report struct {
	Window           reporting.Window          `json:"window"`
	CenterID         int64                     `json:"center_id,omitempty"`
	Independent      reporting.Summary         `json:"independent"`
	AggregatorDeltas []Delta                   `json:"aggregator_deltas"`
	ReferenceDeltas  []Delta                   `json:"reference_deltas"`
	OutOfWindow      []OutOfWindowDocument     `json:"out_of_window"`
	NilIssueDateIDs  []int64                   `json:"nil_issue_date_ids,omitempty"`
	DuplicateGroups  []payments.DuplicateGroup `json:"duplicate_groups,omitempty"`
	BalanceDriftIDs  []int64                   `json:"balance_drift_ids,omitempty"`
	Clean            bool                      `json:"clean"`
	GeneratedAt      time.Time                 `json:"generated_at"`
}
