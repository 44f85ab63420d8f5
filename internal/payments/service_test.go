package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/optisass/optisass-core/internal/documents"
	"github.com/optisass/optisass-core/internal/shared"
)

type memoryLedger struct {
	docs     map[int64]*documents.Document
	payments map[int64]*Payment
	nextID   int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{docs: make(map[int64]*documents.Document), payments: make(map[int64]*Payment)}
}

func (m *memoryLedger) addDocument(doc documents.Document) *documents.Document {
	m.nextID++
	doc.ID = m.nextID
	m.docs[doc.ID] = &doc
	return m.docs[doc.ID]
}

func (m *memoryLedger) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, nil
	}
	copy := *p
	return &copy, nil
}

func (m *memoryLedger) ListByDocument(ctx context.Context, documentID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range m.payments {
		if p.DocumentID == documentID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memoryLedger) ListInWindow(ctx context.Context, from, to time.Time, centerID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range m.payments {
		if !from.IsZero() && p.PaidAt.Before(from) {
			continue
		}
		if !to.IsZero() && !p.PaidAt.Before(to) {
			continue
		}
		if centerID != 0 {
			if doc, ok := m.docs[p.DocumentID]; !ok || doc.CenterID != centerID {
				continue
			}
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryLedger) GetDocumentForUpdate(ctx context.Context, id int64) (*documents.Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	copy := *doc
	return &copy, nil
}

func (m *memoryLedger) GetPaymentForUpdate(ctx context.Context, id int64) (*Payment, error) {
	return m.GetPayment(ctx, id)
}

func (m *memoryLedger) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	m.nextID++
	p.ID = m.nextID
	m.payments[p.ID] = &p
	return p.ID, nil
}

func (m *memoryLedger) UpdatePaymentAmount(ctx context.Context, id int64, amount float64) error {
	m.payments[id].Amount = amount
	return nil
}

func (m *memoryLedger) DeletePayment(ctx context.Context, id int64) error {
	delete(m.payments, id)
	return nil
}

func (m *memoryLedger) SumPayments(ctx context.Context, documentID int64, excludeID int64) (float64, int, error) {
	var sum float64
	var count int
	for _, p := range m.payments {
		if p.DocumentID != documentID || p.ID == excludeID {
			continue
		}
		sum += p.Amount
		count++
	}
	return sum, count, nil
}

func (m *memoryLedger) UpdateDocumentBalance(ctx context.Context, documentID int64, outstanding float64, status documents.Status) error {
	doc := m.docs[documentID]
	doc.OutstandingBalance = outstanding
	doc.Status = status
	return nil
}

type fakeIdem struct {
	keys map[string]bool
}

func (f *fakeIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.keys == nil {
		f.keys = make(map[string]bool)
	}
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdem) Delete(ctx context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

func invoice(ledger *memoryLedger, total float64) *documents.Document {
	return ledger.addDocument(documents.Document{
		Number:             "FAC-1001",
		DeclaredType:       "FACTURE",
		Status:             documents.StatusValidated,
		TotalAmount:        total,
		OutstandingBalance: total,
	})
}

func TestApplyWalksInvoiceToPaid(t *testing.T) {
	ctx := context.Background()
	ledger := newMemoryLedger()
	svc := NewService(ledger, nil, nil, nil, ServiceConfig{})
	doc := invoice(ledger, 1000)

	res, err := svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 400, Method: MethodCash, Actor: "caisse"})
	require.NoError(t, err)
	require.InDelta(t, 600, res.OutstandingBalance, 1e-9)
	require.Equal(t, documents.StatusPartiallyPaid, res.Status)

	res, err = svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 600, Method: MethodCard, Actor: "caisse"})
	require.NoError(t, err)
	require.InDelta(t, 0, res.OutstandingBalance, 1e-9)
	require.Equal(t, documents.StatusPaid, res.Status)

	_, err = svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 1, Method: MethodCash, Actor: "caisse"})
	require.ErrorIs(t, err, ErrOverpayment)

	// Rejection leaves the ledger untouched.
	require.InDelta(t, 0, ledger.docs[doc.ID].OutstandingBalance, 1e-9)
	require.Equal(t, documents.StatusPaid, ledger.docs[doc.ID].Status)
}

func TestApplyRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	ledger := newMemoryLedger()
	svc := NewService(ledger, nil, nil, nil, ServiceConfig{})
	doc := invoice(ledger, 100)

	_, err := svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 0, Method: MethodCash, Actor: "caisse"})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: -5, Method: MethodCash, Actor: "caisse"})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Apply(ctx, ApplyInput{DocumentID: 999, Amount: 10, Method: MethodCash, Actor: "caisse"})
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestApplyRejectsTerminalDocument(t *testing.T) {
	ctx := context.Background()
	ledger := newMemoryLedger()
	svc := NewService(ledger, nil, nil, nil, ServiceConfig{})
	doc := ledger.addDocument(documents.Document{
		Number:             "FAC-7",
		DeclaredType:       "FACTURE",
		Status:             documents.StatusCancelled,
		TotalAmount:        100,
		OutstandingBalance: 100,
	})

	_, err := svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 50, Method: MethodCash, Actor: "caisse"})
	require.ErrorIs(t, err, ErrTerminalDocument)
}

func TestApplyIdempotencyKeyBlocksRetry(t *testing.T) {
	ctx := context.Background()
	ledger := newMemoryLedger()
	idem := &fakeIdem{}
	svc := NewService(ledger, nil, idem, nil, ServiceConfig{})
	doc := invoice(ledger, 500)

	_, err := svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 100, Method: MethodCash, Actor: "caisse", IdempotencyKey: "k-1"})
	require.NoError(t, err)

	_, err = svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 100, Method: MethodCash, Actor: "caisse", IdempotencyKey: "k-1"})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, ledger.payments, 1)

	// A failed application releases the key so the client can retry.
	_, err = svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 9999, Method: MethodCash, Actor: "caisse", IdempotencyKey: "k-2"})
	require.ErrorIs(t, err, ErrOverpayment)
	require.False(t, idem.keys["k-2"])
}

func TestReverseRecomputesFromRemainingSet(t *testing.T) {
	ctx := context.Background()
	ledger := newMemoryLedger()
	svc := NewService(ledger, nil, nil, nil, ServiceConfig{})
	doc := invoice(ledger, 1000)

	first, err := svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 400, Method: MethodCash, Actor: "caisse"})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 300, Method: MethodCheck, Actor: "caisse"})
	require.NoError(t, err)

	// Simulate legacy drift: the stored balance disagrees with the payments.
	ledger.docs[doc.ID].OutstandingBalance = 123

	res, err := svc.Reverse(ctx, ReverseInput{PaymentID: first.Payment.ID, Actor: "admin", Reason: "double saisie"})
	require.NoError(t, err)
	require.InDelta(t, 700, res.OutstandingBalance, 1e-9)
	require.Equal(t, documents.StatusPartiallyPaid, res.Status)

	_, err = svc.Reverse(ctx, ReverseInput{PaymentID: first.Payment.ID, Actor: "admin"})
	require.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestReverseLastPaymentRestoresUnpaidStatus(t *testing.T) {
	ctx := context.Background()
	ledger := newMemoryLedger()
	svc := NewService(ledger, nil, nil, nil, ServiceConfig{})
	doc := invoice(ledger, 200)

	res, err := svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 200, Method: MethodCash, Actor: "caisse"})
	require.NoError(t, err)
	require.Equal(t, documents.StatusPaid, res.Status)

	out, err := svc.Reverse(ctx, ReverseInput{PaymentID: res.Payment.ID, Actor: "admin"})
	require.NoError(t, err)
	require.InDelta(t, 200, out.OutstandingBalance, 1e-9)
	require.Equal(t, documents.StatusValidated, out.Status)
}

func TestEditValidatesAgainstRemainingBalance(t *testing.T) {
	ctx := context.Background()
	ledger := newMemoryLedger()
	svc := NewService(ledger, nil, nil, nil, ServiceConfig{})
	doc := invoice(ledger, 1000)

	first, err := svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 400, Method: MethodCash, Actor: "caisse"})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 500, Method: MethodCard, Actor: "caisse"})
	require.NoError(t, err)

	// 500 already booked elsewhere, so the edited payment may grow to 500.
	res, err := svc.Edit(ctx, EditInput{PaymentID: first.Payment.ID, NewAmount: 500, Actor: "admin"})
	require.NoError(t, err)
	require.InDelta(t, 0, res.OutstandingBalance, 1e-9)
	require.Equal(t, documents.StatusPaid, res.Status)

	_, err = svc.Edit(ctx, EditInput{PaymentID: first.Payment.ID, NewAmount: 501, Actor: "admin"})
	require.ErrorIs(t, err, ErrOverpayment)

	_, err = svc.Edit(ctx, EditInput{PaymentID: first.Payment.ID, NewAmount: 0, Actor: "admin"})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestZeroTotalDocumentNeverAutoPaid(t *testing.T) {
	ctx := context.Background()
	ledger := newMemoryLedger()
	svc := NewService(ledger, nil, nil, nil, ServiceConfig{})
	doc := ledger.addDocument(documents.Document{
		Number:             "FAC-0",
		DeclaredType:       "FACTURE",
		Status:             documents.StatusValidated,
		TotalAmount:        0,
		OutstandingBalance: 0,
	})

	_, err := svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 1, Method: MethodCash, Actor: "caisse"})
	require.ErrorIs(t, err, ErrOverpayment)
	require.Equal(t, documents.StatusValidated, ledger.docs[doc.ID].Status)
}

func TestFindDuplicatesGroupsSameDayEntries(t *testing.T) {
	ctx := context.Background()
	ledger := newMemoryLedger()
	svc := NewService(ledger, nil, nil, nil, ServiceConfig{})
	doc := invoice(ledger, 1000)

	morning := time.Date(2024, 3, 12, 9, 15, 0, 0, time.UTC)
	afternoon := time.Date(2024, 3, 12, 16, 40, 0, 0, time.UTC)
	nextDay := time.Date(2024, 3, 13, 9, 15, 0, 0, time.UTC)

	_, err := svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 150, Method: MethodCash, PaidAt: morning, Actor: "caisse"})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 150, Method: MethodCash, PaidAt: afternoon, Actor: "caisse"})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 150, Method: MethodCash, PaidAt: nextDay, Actor: "caisse"})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 150, Method: MethodCard, PaidAt: morning, Actor: "caisse"})
	require.NoError(t, err)

	groups, err := svc.FindDuplicates(ctx, DuplicateQuery{})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Payments, 2)
	require.Equal(t, MethodCash, groups[0].Method)

	// Detection never removes anything.
	require.Len(t, ledger.payments, 4)

	// Hour granularity splits the same-day pair apart.
	groups, err = svc.FindDuplicates(ctx, DuplicateQuery{Granularity: time.Hour})
	require.NoError(t, err)
	require.Empty(t, groups)
}

func TestFindDuplicatesUsesConfiguredGranularity(t *testing.T) {
	ctx := context.Background()
	ledger := newMemoryLedger()
	svc := NewService(ledger, nil, nil, nil, ServiceConfig{DuplicateGranularity: time.Hour})
	doc := invoice(ledger, 1000)

	morning := time.Date(2024, 3, 12, 9, 15, 0, 0, time.UTC)
	afternoon := time.Date(2024, 3, 12, 16, 40, 0, 0, time.UTC)

	_, err := svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 150, Method: MethodCash, PaidAt: morning, Actor: "caisse"})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 150, Method: MethodCash, PaidAt: afternoon, Actor: "caisse"})
	require.NoError(t, err)

	// Hourly default splits the same-day pair apart.
	groups, err := svc.FindDuplicates(ctx, DuplicateQuery{})
	require.NoError(t, err)
	require.Empty(t, groups)

	// The query granularity still wins over the configured default.
	groups, err = svc.FindDuplicates(ctx, DuplicateQuery{Granularity: 24 * time.Hour})
	require.NoError(t, err)
	require.Len(t, groups, 1)
}

func TestFindDuplicatesHonoursWindow(t *testing.T) {
	ctx := context.Background()
	ledger := newMemoryLedger()
	svc := NewService(ledger, nil, nil, nil, ServiceConfig{})
	doc := invoice(ledger, 1000)

	day := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		_, err := svc.Apply(ctx, ApplyInput{DocumentID: doc.ID, Amount: 50, Method: MethodCash, PaidAt: day.Add(time.Duration(i) * time.Hour), Actor: "caisse"})
		require.NoError(t, err)
	}

	groups, err := svc.FindDuplicates(ctx, DuplicateQuery{From: day.AddDate(0, 0, 1)})
	require.NoError(t, err)
	require.Empty(t, groups)

	groups, err = svc.FindDuplicates(ctx, DuplicateQuery{To: day.AddDate(0, 0, 1)})
	require.NoError(t, err)
	require.Len(t, groups, 1)
}
