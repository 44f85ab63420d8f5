package reporting

import (
	"time"

	"github.com/optisass/optisass-core/internal/documents"
)

// Window is a half-open interval [From, To) over issue dates. A zero bound is
// unbounded on that side, so the zero Window means no filter and must yield
// the same figures as an explicit unbounded one.
type Window struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// IsZero reports whether the window applies no filter at all.
func (w Window) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// CategoryStat is a per-category count and amount pair.
type CategoryStat struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// Summary is the windowed profit rollup. InformalSales is the money actually
// collected on ORDER documents; it is reported next to Revenue and never
// folded into it.
type Summary struct {
	Window          Window                              `json:"window"`
	CenterID        int64                               `json:"center_id,omitempty"`
	Revenue         float64                             `json:"revenue"`
	InvoiceTotal    float64                             `json:"invoice_total"`
	CreditNoteTotal float64                             `json:"credit_note_total"`
	InformalSales   float64                             `json:"informal_sales"`
	COGS            float64                             `json:"cogs"`
	GrossMargin     float64                             `json:"gross_margin"`
	Expenses        float64                             `json:"expenses"`
	NetProfit       float64                             `json:"net_profit"`
	Breakdown       map[documents.Category]CategoryStat `json:"breakdown"`
	Anomalies       SummaryAnomalies                    `json:"anomalies"`
	GeneratedAt     time.Time                           `json:"generated_at"`
}

// SummaryAnomalies lists data problems the rollup skipped over instead of
// failing on.
type SummaryAnomalies struct {
	NilIssueDateCount int     `json:"nil_issue_date_count"`
	NilIssueDateIDs   []int64 `json:"nil_issue_date_ids,omitempty"`
}
