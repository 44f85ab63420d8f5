package reconcile

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/optisass/optisass-core/internal/documents"
	"github.com/optisass/optisass-core/internal/payments"
	"github.com/optisass/optisass-core/internal/reporting"
	"github.com/optisass/optisass-core/internal/stock"
)

// moneyTolerance is the largest difference still treated as equal. Rounding
// noise below one cent is not a discrepancy worth a human's time.
const moneyTolerance = 0.01

// RepositoryPort reads raw rows for the independent fold. It deliberately
// does not share queries with the reporting repository: two code paths that
// agree are worth more than one that agrees with itself.
type RepositoryPort interface {
	ListAllDocuments(ctx context.Context, centerID int64) ([]documents.Document, error)
	ListMovementsForDocuments(ctx context.Context, documentIDs []int64) ([]stock.Movement, error)
	ListPaymentSums(ctx context.Context, centerID int64) (map[int64]float64, error)
}

// SummaryPort is the primary aggregator being checked.
type SummaryPort interface {
	Summary(ctx context.Context, w reporting.Window, centerID int64) (*reporting.Summary, error)
}

// DuplicatePort surfaces duplicate payment candidates.
type DuplicatePort interface {
	FindDuplicates(ctx context.Context, q payments.DuplicateQuery) ([]payments.DuplicateGroup, error)
}

// Service produces read-only reconciliation reports. It never mutates
// anything; every anomaly it finds stays in the report for a human to act on.
type Service struct {
	repo       RepositoryPort
	aggregator SummaryPort
	duplicates DuplicatePort
}

// NewService builds Service.
func NewService(repo RepositoryPort, aggregator SummaryPort, duplicates DuplicatePort) *Service {
	return &Service{repo: repo, aggregator: aggregator, duplicates: duplicates}
}

// Report recomputes the window's figures through an independent fold and
// diffs them against the aggregator and the supplied reference totals.
func (s *Service) Report(ctx context.Context, w reporting.Window, centerID int64, ref Reference) (*Report, error) {
	var (
		primary     *reporting.Summary
		docs        []documents.Document
		paymentSums map[int64]float64
		dupGroups   []payments.DuplicateGroup
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := s.aggregator.Summary(gctx, w, centerID)
		if err != nil {
			return fmt.Errorf("reconcile: aggregator: %w", err)
		}
		primary = summary
		return nil
	})
	g.Go(func() error {
		rows, err := s.repo.ListAllDocuments(gctx, centerID)
		if err != nil {
			return fmt.Errorf("reconcile: documents: %w", err)
		}
		docs = rows
		return nil
	})
	g.Go(func() error {
		sums, err := s.repo.ListPaymentSums(gctx, centerID)
		if err != nil {
			return fmt.Errorf("reconcile: payment sums: %w", err)
		}
		paymentSums = sums
		return nil
	})
	g.Go(func() error {
		groups, err := s.duplicates.FindDuplicates(gctx, payments.DuplicateQuery{From: w.From, To: w.To, CenterID: centerID})
		if err != nil {
			return fmt.Errorf("reconcile: duplicates: %w", err)
		}
		dupGroups = groups
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Window:          w,
		CenterID:        centerID,
		DuplicateGroups: dupGroups,
		GeneratedAt:     time.Now().UTC(),
	}

	independent, err := s.fold(ctx, w, centerID, docs, report)
	if err != nil {
		return nil, err
	}
	report.Independent = *independent

	report.AggregatorDeltas = diffSummaries(independent, primary)
	report.ReferenceDeltas = diffReference(independent, ref)

	for i := range docs {
		doc := &docs[i]
		expected, ok := paymentSums[doc.ID]
		if !ok {
			expected = 0
		}
		if math.Abs(doc.TotalAmount-expected-doc.OutstandingBalance) > moneyTolerance {
			report.BalanceDriftIDs = append(report.BalanceDriftIDs, doc.ID)
		}
	}
	sort.Slice(report.BalanceDriftIDs, func(i, j int) bool { return report.BalanceDriftIDs[i] < report.BalanceDriftIDs[j] })

	report.Clean = len(report.AggregatorDeltas) == 0 &&
		len(report.ReferenceDeltas) == 0 &&
		len(report.DuplicateGroups) == 0 &&
		len(report.BalanceDriftIDs) == 0
	return report, nil
}

// fold is the second code path: a plain tally over raw rows, sharing nothing
// with the aggregator but the classifier, which by contract is the only place
// a category may come from.
func (s *Service) fold(ctx context.Context, w reporting.Window, centerID int64, docs []documents.Document, report *Report) (*reporting.Summary, error) {
	out := &reporting.Summary{
		Window:      w,
		CenterID:    centerID,
		Breakdown:   make(map[documents.Category]reporting.CategoryStat),
		GeneratedAt: time.Now().UTC(),
	}

	sign := make(map[int64]float64)
	var revenueIDs []int64

	for i := range docs {
		doc := &docs[i]
		category := documents.ClassifyDocument(doc)

		if doc.IssueDate == nil {
			out.Anomalies.NilIssueDateCount++
			out.Anomalies.NilIssueDateIDs = append(out.Anomalies.NilIssueDateIDs, doc.ID)
			report.NilIssueDateIDs = append(report.NilIssueDateIDs, doc.ID)
			continue
		}
		if !w.Contains(*doc.IssueDate) {
			if !w.IsZero() && !doc.Status.Terminal() &&
				(category == documents.CategoryInvoice || category == documents.CategoryCreditNote) {
				report.OutOfWindow = append(report.OutOfWindow, OutOfWindowDocument{
					ID:        doc.ID,
					Number:    doc.Number,
					Category:  category,
					IssueDate: doc.IssueDate,
					Amount:    doc.TotalAmount,
				})
			}
			continue
		}
		if doc.Status.Terminal() {
			continue
		}

		stat := out.Breakdown[category]
		stat.Count++
		stat.Amount += doc.TotalAmount
		out.Breakdown[category] = stat

		switch category {
		case documents.CategoryInvoice:
			out.InvoiceTotal += doc.TotalAmount
			sign[doc.ID] = 1
			revenueIDs = append(revenueIDs, doc.ID)
		case documents.CategoryCreditNote:
			out.CreditNoteTotal += doc.TotalAmount
			sign[doc.ID] = -1
			revenueIDs = append(revenueIDs, doc.ID)
		case documents.CategoryOrder:
			if doc.HasPayments {
				out.InformalSales += doc.TotalAmount - doc.OutstandingBalance
			}
		}
	}
	out.Revenue = out.InvoiceTotal - out.CreditNoteTotal

	if len(revenueIDs) > 0 {
		movements, err := s.repo.ListMovementsForDocuments(ctx, revenueIDs)
		if err != nil {
			return nil, fmt.Errorf("reconcile: movements: %w", err)
		}
		for _, m := range movements {
			docSign, ok := sign[m.DocumentID]
			if !ok || m.Qty >= 0 {
				continue
			}
			out.COGS += docSign * (-m.Qty * m.UnitCost)
		}
	}
	out.GrossMargin = out.Revenue - out.COGS
	return out, nil
}

func diffSummaries(independent, primary *reporting.Summary) []Delta {
	var deltas []Delta
	deltas = appendDelta(deltas, "revenue", independent.Revenue, primary.Revenue)
	deltas = appendDelta(deltas, "cogs", independent.COGS, primary.COGS)
	deltas = appendDelta(deltas, "informal_sales", independent.InformalSales, primary.InformalSales)
	for _, category := range []documents.Category{documents.CategoryInvoice, documents.CategoryOrder, documents.CategoryQuote, documents.CategoryCreditNote} {
		got := independent.Breakdown[category]
		want := primary.Breakdown[category]
		deltas = appendDelta(deltas, string(category)+"_count", float64(got.Count), float64(want.Count))
		deltas = appendDelta(deltas, string(category)+"_amount", got.Amount, want.Amount)
	}
	return deltas
}

func diffReference(independent *reporting.Summary, ref Reference) []Delta {
	var deltas []Delta
	if ref.Revenue != 0 {
		deltas = appendDelta(deltas, "revenue", independent.Revenue, ref.Revenue)
	}
	if ref.COGS != 0 {
		deltas = appendDelta(deltas, "cogs", independent.COGS, ref.COGS)
	}
	for category, want := range ref.Breakdown {
		got := independent.Breakdown[category]
		deltas = appendDelta(deltas, string(category)+"_count", float64(got.Count), float64(want.Count))
		deltas = appendDelta(deltas, string(category)+"_amount", got.Amount, want.Amount)
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Field < deltas[j].Field })
	return deltas
}

func appendDelta(deltas []Delta, field string, got, expected float64) []Delta {
	if math.Abs(got-expected) <= moneyTolerance {
		return deltas
	}
	return append(deltas, Delta{Field: field, Got: got, Expected: expected, Diff: got - expected})
}
