package reporting

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/optisass/optisass-core/internal/documents"
	"github.com/optisass/optisass-core/internal/stock"
)

type mockRepo struct {
	docs      []documents.Document
	movements []stock.Movement
	docCalls  int
}

func (m *mockRepo) ListDocuments(ctx context.Context, w Window, centerID int64) ([]documents.Document, error) {
	m.docCalls++
	var out []documents.Document
	for _, d := range m.docs {
		if centerID != 0 && d.CenterID != centerID {
			continue
		}
		if d.IssueDate != nil && !w.Contains(*d.IssueDate) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *mockRepo) ListMovementsForDocuments(ctx context.Context, documentIDs []int64) ([]stock.Movement, error) {
	wanted := make(map[int64]bool, len(documentIDs))
	for _, id := range documentIDs {
		wanted[id] = true
	}
	var out []stock.Movement
	for _, mv := range m.movements {
		if wanted[mv.DocumentID] {
			out = append(out, mv)
		}
	}
	return out, nil
}

type fixedExpenses float64

func (f fixedExpenses) PeriodExpenses(ctx context.Context, w Window, centerID int64) (float64, error) {
	return float64(f), nil
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func seedRepo() *mockRepo {
	return &mockRepo{
		docs: []documents.Document{
			{ID: 1, Number: "FAC-1", DeclaredType: "FACTURE", Status: documents.StatusPaid, TotalAmount: 1000, IssueDate: date(2024, 3, 10), CenterID: 1},
			{ID: 2, Number: "AV-1", DeclaredType: "AVOIR", Status: documents.StatusValidated, TotalAmount: 200, IssueDate: date(2024, 3, 12), CenterID: 1},
			{ID: 3, Number: "BC-1", DeclaredType: "BON_COMMANDE", Status: documents.StatusPartiallyPaid, TotalAmount: 300, OutstandingBalance: 100, IssueDate: date(2024, 3, 15), CenterID: 1, HasPayments: true},
			{ID: 4, Number: "D-1", DeclaredType: "DEVIS", Status: documents.StatusQuoteUnconfirmed, TotalAmount: 50, IssueDate: date(2024, 3, 16), CenterID: 1},
			{ID: 5, Number: "FAC-2", DeclaredType: "FACTURE", Status: documents.StatusCancelled, TotalAmount: 9999, IssueDate: date(2024, 3, 17), CenterID: 1},
			{ID: 6, Number: "FAC-3", DeclaredType: "FACTURE", Status: documents.StatusPaid, TotalAmount: 500, IssueDate: nil, CenterID: 1},
			{ID: 7, Number: "FAC-4", DeclaredType: "FACTURE", Status: documents.StatusPaid, TotalAmount: 700, IssueDate: date(2024, 4, 2), CenterID: 1},
		},
		movements: []stock.Movement{
			{ID: 10, DocumentID: 1, ProductID: 1, Qty: -4, UnitCost: 50},
			{ID: 11, DocumentID: 2, ProductID: 1, Qty: -1, UnitCost: 50},
			{ID: 12, DocumentID: 1, ProductID: 2, Qty: 3, UnitCost: 10}, // receipt, not COGS
		},
	}
}

func march() Window {
	return Window{
		From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSummaryNetsCreditNotesAgainstRevenue(t *testing.T) {
	repo := seedRepo()
	svc := NewService(repo, nil, fixedExpenses(100))

	summary, err := svc.Summary(context.Background(), march(), 0)
	require.NoError(t, err)

	require.InDelta(t, 1000, summary.InvoiceTotal, 1e-9)
	require.InDelta(t, 200, summary.CreditNoteTotal, 1e-9)
	require.InDelta(t, 800, summary.Revenue, 1e-9)

	// Invoice exit costs 200, the credit-note exit hands 50 back.
	require.InDelta(t, 150, summary.COGS, 1e-9)
	require.InDelta(t, 650, summary.GrossMargin, 1e-9)
	require.InDelta(t, 100, summary.Expenses, 1e-9)
	require.InDelta(t, 550, summary.NetProfit, 1e-9)
}

func TestSummaryKeepsInformalSalesSeparate(t *testing.T) {
	repo := seedRepo()
	svc := NewService(repo, nil, nil)

	summary, err := svc.Summary(context.Background(), march(), 0)
	require.NoError(t, err)

	// The paid part of the order, never merged into revenue.
	require.InDelta(t, 200, summary.InformalSales, 1e-9)
	require.InDelta(t, 800, summary.Revenue, 1e-9)

	require.Equal(t, 1, summary.Breakdown[documents.CategoryInvoice].Count)
	require.Equal(t, 1, summary.Breakdown[documents.CategoryOrder].Count)
	require.Equal(t, 1, summary.Breakdown[documents.CategoryQuote].Count)
	require.Equal(t, 1, summary.Breakdown[documents.CategoryCreditNote].Count)
}

func TestSummaryNoFilterEqualsUnboundedWindow(t *testing.T) {
	repo := seedRepo()
	svc := NewService(repo, nil, nil)

	zero, err := svc.Summary(context.Background(), Window{}, 0)
	require.NoError(t, err)

	wide, err := svc.Summary(context.Background(), Window{
		From: time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC),
	}, 0)
	require.NoError(t, err)

	require.InDelta(t, wide.Revenue, zero.Revenue, 1e-9)
	require.InDelta(t, wide.COGS, zero.COGS, 1e-9)
	require.InDelta(t, wide.InformalSales, zero.InformalSales, 1e-9)
	require.Equal(t, wide.Breakdown, zero.Breakdown)

	// April invoice enters the unbounded figure but not March's.
	monthly, err := svc.Summary(context.Background(), march(), 0)
	require.NoError(t, err)
	require.InDelta(t, monthly.Revenue+700, zero.Revenue, 1e-9)
}

func TestSummarySkipsNilIssueDatesAsAnomalies(t *testing.T) {
	repo := seedRepo()
	svc := NewService(repo, nil, nil)

	summary, err := svc.Summary(context.Background(), Window{}, 0)
	require.NoError(t, err)

	require.Equal(t, 1, summary.Anomalies.NilIssueDateCount)
	require.Equal(t, []int64{6}, summary.Anomalies.NilIssueDateIDs)
	// The 500 never reaches revenue, filtered or not.
	require.InDelta(t, 1500, summary.Revenue, 1e-9)
}

func TestSummaryWindowIsHalfOpen(t *testing.T) {
	repo := &mockRepo{docs: []documents.Document{
		{ID: 1, Number: "FAC-1", DeclaredType: "FACTURE", Status: documents.StatusPaid, TotalAmount: 100, IssueDate: date(2024, 3, 1)},
		{ID: 2, Number: "FAC-2", DeclaredType: "FACTURE", Status: documents.StatusPaid, TotalAmount: 100, IssueDate: date(2024, 4, 1)},
	}}
	svc := NewService(repo, nil, nil)

	summary, err := svc.Summary(context.Background(), march(), 0)
	require.NoError(t, err)
	// The start is included, the end is not.
	require.InDelta(t, 100, summary.Revenue, 1e-9)
}

func TestSummaryCachesUntilBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	repo := seedRepo()
	cache := NewCache(client, time.Minute)
	svc := NewService(repo, cache, nil)
	ctx := context.Background()

	_, err := svc.Summary(ctx, march(), 0)
	require.NoError(t, err)
	_, err = svc.Summary(ctx, march(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, repo.docCalls)

	require.NoError(t, cache.Bump(ctx))
	_, err = svc.Summary(ctx, march(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, repo.docCalls)
}
