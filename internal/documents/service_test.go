package documents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryDocRepo struct {
	docs   map[int64]*Document
	recs   map[int64][]Reclassification
	nextID int64
}

type memoryDocTx struct {
	repo *memoryDocRepo
}

func newMemoryDocRepo() *memoryDocRepo {
	return &memoryDocRepo{docs: make(map[int64]*Document), recs: make(map[int64][]Reclassification)}
}

func (r *memoryDocRepo) add(doc Document) *Document {
	r.nextID++
	doc.ID = r.nextID
	r.docs[doc.ID] = &doc
	return r.docs[doc.ID]
}

func (r *memoryDocRepo) GetDocument(ctx context.Context, id int64) (*Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, nil
	}
	copy := *doc
	return &copy, nil
}

func (r *memoryDocRepo) ListDocuments(ctx context.Context, f ListFilter) ([]Document, int, error) {
	var matched []Document
	for id := r.nextID; id >= 1; id-- {
		doc, ok := r.docs[id]
		if !ok {
			continue
		}
		if f.Status != "" && doc.Status != f.Status {
			continue
		}
		if f.CenterID != 0 && doc.CenterID != f.CenterID {
			continue
		}
		matched = append(matched, *doc)
	}
	total := len(matched)
	start := (f.Page - 1) * f.PerPage
	if start > total {
		start = total
	}
	end := start + f.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *memoryDocRepo) ListReclassifications(ctx context.Context, documentID int64) ([]Reclassification, error) {
	return r.recs[documentID], nil
}

func (r *memoryDocRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryDocTx{repo: r})
}

func (tx *memoryDocTx) GetDocumentForUpdate(ctx context.Context, id int64) (*Document, error) {
	return tx.repo.GetDocument(ctx, id)
}

func (tx *memoryDocTx) UpdateDeclaredType(ctx context.Context, id int64, declaredType string) error {
	tx.repo.docs[id].DeclaredType = declaredType
	return nil
}

func (tx *memoryDocTx) UpdateNumber(ctx context.Context, id int64, number string) error {
	tx.repo.docs[id].Number = number
	return nil
}

func (tx *memoryDocTx) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tx.repo.docs[id].Status = status
	return nil
}

func (tx *memoryDocTx) InsertReclassification(ctx context.Context, rec Reclassification) (int64, error) {
	tx.repo.nextID++
	rec.ID = tx.repo.nextID
	tx.repo.recs[rec.DocumentID] = append([]Reclassification{rec}, tx.repo.recs[rec.DocumentID]...)
	return rec.ID, nil
}

func TestReclassifyPromotesOrderToInvoice(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryDocRepo()
	svc := NewService(repo, nil)

	doc := repo.add(Document{Number: "BC-12", DeclaredType: "BON_COMMANDE", Status: StatusValidated, TotalAmount: 900, OutstandingBalance: 900})

	// Promoting an order keeps the "BC" number prefix, which outranks the
	// declared type. Without a new number the change would not take effect,
	// so the service refuses it rather than persisting a dead update.
	_, err := svc.Reclassify(ctx, ReclassifyInput{DocumentID: doc.ID, To: CategoryInvoice, Actor: "admin"})
	require.ErrorIs(t, err, ErrClassificationAmbiguous)

	rec, err := svc.Reclassify(ctx, ReclassifyInput{DocumentID: doc.ID, To: CategoryInvoice, NewNumber: "FAC-2024-12", Actor: "admin", Reason: "facture émise"})
	require.NoError(t, err)
	require.Equal(t, CategoryOrder, rec.From)
	require.Equal(t, CategoryInvoice, rec.To)
	require.Equal(t, "admin", rec.Actor)

	got, err := svc.Classification(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, CategoryInvoice, got)

	stored, err := svc.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, "FAC-2024-12", stored.Number)

	history, err := svc.History(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestReclassifyRejectsCreditNote(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryDocRepo()
	svc := NewService(repo, nil)

	doc := repo.add(Document{Number: "AV-3", DeclaredType: "AVOIR", Status: StatusValidated, TotalAmount: 100, OutstandingBalance: 100})

	_, err := svc.Reclassify(ctx, ReclassifyInput{DocumentID: doc.ID, To: CategoryInvoice, Actor: "admin"})
	require.ErrorIs(t, err, ErrCreditNoteTarget)

	other := repo.add(Document{Number: "D-1", DeclaredType: "DEVIS", Status: StatusQuoteUnconfirmed, TotalAmount: 100, OutstandingBalance: 100})
	_, err = svc.Reclassify(ctx, ReclassifyInput{DocumentID: other.ID, To: CategoryCreditNote, Actor: "admin"})
	require.ErrorIs(t, err, ErrCreditNoteTarget)
}

func TestReclassifyUnknownDocument(t *testing.T) {
	svc := NewService(newMemoryDocRepo(), nil)
	_, err := svc.Reclassify(context.Background(), ReclassifyInput{DocumentID: 404, To: CategoryInvoice, Actor: "admin"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancelIsTerminalAndReinstateRederives(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryDocRepo()
	svc := NewService(repo, nil)

	doc := repo.add(Document{Number: "FAC-5", DeclaredType: "FACTURE", Status: StatusPartiallyPaid, TotalAmount: 1000, OutstandingBalance: 400, HasPayments: true})

	cancelled, err := svc.Cancel(ctx, AdminActionInput{DocumentID: doc.ID, Actor: "admin", Reason: "erreur de saisie"})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.Cancel(ctx, AdminActionInput{DocumentID: doc.ID, Actor: "admin"})
	require.ErrorIs(t, err, ErrTerminalStatus)

	reinstated, err := svc.Reinstate(ctx, AdminActionInput{DocumentID: doc.ID, Actor: "admin"})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, reinstated.Status)

	_, err = svc.Reinstate(ctx, AdminActionInput{DocumentID: doc.ID, Actor: "admin"})
	require.ErrorIs(t, err, ErrNotTerminal)
}

func TestListPaginatesAndFilters(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryDocRepo()
	svc := NewService(repo, nil)

	for i := 0; i < 5; i++ {
		repo.add(Document{Number: "FAC-1", DeclaredType: "FACTURE", Status: StatusValidated, CenterID: 1, TotalAmount: 100, OutstandingBalance: 100})
	}
	repo.add(Document{Number: "BC-1", DeclaredType: "COMMANDE", Status: StatusOrderPending, CenterID: 2, TotalAmount: 50, OutstandingBalance: 50})

	res, err := svc.List(ctx, ListFilter{Page: 1, PerPage: 4})
	require.NoError(t, err)
	require.Len(t, res.Documents, 4)
	require.Equal(t, 6, res.Pagination.Total)
	require.Equal(t, 2, res.Pagination.TotalPages)

	res, err = svc.List(ctx, ListFilter{Page: 2, PerPage: 4})
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)

	res, err = svc.List(ctx, ListFilter{Status: StatusOrderPending})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	require.Equal(t, int64(2), res.Documents[0].CenterID)
}

func TestArchiveRequiresActor(t *testing.T) {
	repo := newMemoryDocRepo()
	svc := NewService(repo, nil)
	doc := repo.add(Document{Number: "FAC-9", DeclaredType: "FACTURE", Status: StatusValidated, TotalAmount: 10, OutstandingBalance: 10})

	_, err := svc.Archive(context.Background(), AdminActionInput{DocumentID: doc.ID})
	require.Error(t, err)
}
