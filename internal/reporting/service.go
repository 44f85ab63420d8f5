package reporting

import (
	"context"
	"strconv"
	"time"

	"github.com/optisass/optisass-core/internal/documents"
	"github.com/optisass/optisass-core/internal/stock"
)

// RepositoryPort feeds the aggregator with raw rows. Documents come back with
// their has-payments flag populated; rows with a nil issue date are included
// so the service can count them as anomalies.
type RepositoryPort interface {
	ListDocuments(ctx context.Context, w Window, centerID int64) ([]documents.Document, error)
	ListMovementsForDocuments(ctx context.Context, documentIDs []int64) ([]stock.Movement, error)
}

// ExpenseProvider supplies period expenses for net profit. Expenses live
// outside this engine (payroll, rent, suppliers), so the aggregator only
// subtracts what the collaborator reports.
type ExpenseProvider interface {
	PeriodExpenses(ctx context.Context, w Window, centerID int64) (float64, error)
}

// Service computes windowed revenue, COGS and profit rollups.
type Service struct {
	repo     RepositoryPort
	cache    *Cache
	expenses ExpenseProvider
}

// NewService wires the repository with the cache helper and the expense
// collaborator. Both cache and expenses may be nil.
func NewService(repo RepositoryPort, cache *Cache, expenses ExpenseProvider) *Service {
	return &Service{repo: repo, cache: cache, expenses: expenses}
}

// Summary returns the rollup for a window and optional center, serving from
// the versioned cache when possible.
func (s *Service) Summary(ctx context.Context, w Window, centerID int64) (*Summary, error) {
	key, err := s.cache.BuildKey(ctx, "reporting", "summary", windowToken(w), strconv.FormatInt(centerID, 10))
	if err != nil {
		return nil, err
	}
	var out Summary
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return s.compute(ctx, w, centerID)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) compute(ctx context.Context, w Window, centerID int64) (*Summary, error) {
	docs, err := s.repo.ListDocuments(ctx, w, centerID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Window:      w,
		CenterID:    centerID,
		Breakdown:   make(map[documents.Category]CategoryStat),
		GeneratedAt: time.Now().UTC(),
	}

	// cogsSign carries +1 for invoices and -1 for credit notes; movements of
	// documents outside the revenue set contribute nothing.
	cogsSign := make(map[int64]float64)
	var revenueIDs []int64

	for i := range docs {
		doc := &docs[i]
		if doc.IssueDate == nil {
			summary.Anomalies.NilIssueDateCount++
			summary.Anomalies.NilIssueDateIDs = append(summary.Anomalies.NilIssueDateIDs, doc.ID)
			continue
		}
		if !w.Contains(*doc.IssueDate) {
			continue
		}
		if doc.Status.Terminal() {
			continue
		}
		category := documents.ClassifyDocument(doc)
		stat := summary.Breakdown[category]
		stat.Count++
		stat.Amount += doc.TotalAmount
		summary.Breakdown[category] = stat

		switch category {
		case documents.CategoryInvoice:
			summary.InvoiceTotal += doc.TotalAmount
			cogsSign[doc.ID] = 1
			revenueIDs = append(revenueIDs, doc.ID)
		case documents.CategoryCreditNote:
			summary.CreditNoteTotal += doc.TotalAmount
			cogsSign[doc.ID] = -1
			revenueIDs = append(revenueIDs, doc.ID)
		case documents.CategoryOrder:
			if doc.HasPayments {
				summary.InformalSales += doc.TotalAmount - doc.OutstandingBalance
			}
		}
	}
	summary.Revenue = summary.InvoiceTotal - summary.CreditNoteTotal

	if len(revenueIDs) > 0 {
		movements, err := s.repo.ListMovementsForDocuments(ctx, revenueIDs)
		if err != nil {
			return nil, err
		}
		for _, m := range movements {
			sign, ok := cogsSign[m.DocumentID]
			if !ok || m.Qty >= 0 {
				continue
			}
			// Exits carry negative qty, so -qty*cost is the positive cost of
			// goods shipped; the credit-note sign flips it back out.
			summary.COGS += sign * (-m.Qty * m.UnitCost)
		}
	}

	summary.GrossMargin = summary.Revenue - summary.COGS
	if s.expenses != nil {
		exp, err := s.expenses.PeriodExpenses(ctx, w, centerID)
		if err != nil {
			return nil, err
		}
		summary.Expenses = exp
	}
	summary.NetProfit = summary.GrossMargin - summary.Expenses
	return summary, nil
}

// InvalidateCache drops every cached summary.
func (s *Service) InvalidateCache(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func windowToken(w Window) string {
	from, to := "-", "-"
	if !w.From.IsZero() {
		from = w.From.UTC().Format(time.RFC3339)
	}
	if !w.To.IsZero() {
		to = w.To.UTC().Format(time.RFC3339)
	}
	return from + ".." + to
}
