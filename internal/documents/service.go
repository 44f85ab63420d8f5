package documents

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/optisass/optisass-core/internal/shared"
)

// RepositoryPort defines data access methods for documents.
type RepositoryPort interface {
	GetDocument(ctx context.Context, id int64) (*Document, error)
	ListDocuments(ctx context.Context, f ListFilter) ([]Document, int, error)
	ListReclassifications(ctx context.Context, documentID int64) ([]Reclassification, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetDocumentForUpdate(ctx context.Context, id int64) (*Document, error)
	UpdateDeclaredType(ctx context.Context, id int64, declaredType string) error
	UpdateNumber(ctx context.Context, id int64, number string) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	InsertReclassification(ctx context.Context, rec Reclassification) (int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns document classification lookups and the explicit
// administrative operations: reclassification, cancel, archive, reinstate.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Get returns a document by id.
func (s *Service) Get(ctx context.Context, id int64) (*Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

// ListFilter narrows a document listing.
type ListFilter struct {
	Status   Status
	CenterID int64
	Page     int
	PerPage  int
}

// ListResult bundles one page of documents with pagination metadata.
type ListResult struct {
	Documents  []Document        `json:"documents"`
	Pagination shared.Pagination `json:"pagination"`
}

// List returns one page of documents matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	if f.PerPage <= 0 {
		f.PerPage = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	docs, total, err := s.repo.ListDocuments(ctx, f)
	if err != nil {
		return nil, err
	}
	return &ListResult{Documents: docs, Pagination: shared.NewPagination(f.Page, f.PerPage, total)}, nil
}

// GetStatus returns the persisted lifecycle status of a document.
func (s *Service) GetStatus(ctx context.Context, id int64) (Status, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.Status, nil
}

// Classification returns the category of a document via the shared classifier.
func (s *Service) Classification(ctx context.Context, id int64) (Category, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return ClassifyDocument(doc), nil
}

// ReclassifyInput describes an administrative category change. NewNumber is
// required when promotion would otherwise be contradicted by the existing
// number convention, e.g. promoting a "BC"-numbered order to an invoice.
type ReclassifyInput struct {
	DocumentID int64
	To         Category
	NewNumber  string
	Actor      string
	Reason     string
}

// Reclassify promotes or demotes a document between categories. The change is
// recorded with actor, reason and old→new categories so it can be reviewed
// and reversed; payment application never reclassifies anything. If the
// resulting signals still classify to a different category the operation
// fails loud instead of persisting a change that would not take effect.
func (s *Service) Reclassify(ctx context.Context, input ReclassifyInput) (*Reclassification, error) {
	if !input.To.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, input.To)
	}
	if input.To == CategoryCreditNote {
		return nil, ErrCreditNoteTarget
	}
	if input.Actor == "" {
		return nil, errors.New("documents: actor required")
	}

	var rec Reclassification
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocumentForUpdate(ctx, input.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return ErrNotFound
		}
		from := ClassifyDocument(doc)
		if from == CategoryCreditNote {
			// Classification rule: a credit note is never reclassified.
			return ErrCreditNoteTarget
		}
		if from == input.To {
			return ErrSameCategory
		}
		updated := *doc
		updated.DeclaredType = canonicalDeclaredType(input.To)
		if input.NewNumber != "" {
			updated.Number = input.NewNumber
		}
		if got := ClassifyDocument(&updated); got != input.To {
			return fmt.Errorf("%w: signals still classify as %s (number %q)", ErrClassificationAmbiguous, got, updated.Number)
		}
		if err := tx.UpdateDeclaredType(ctx, doc.ID, updated.DeclaredType); err != nil {
			return err
		}
		if input.NewNumber != "" {
			if err := tx.UpdateNumber(ctx, doc.ID, input.NewNumber); err != nil {
				return err
			}
		}
		if !doc.Status.Terminal() {
			next := DeriveStatus(StatusInput{
				Category:    input.To,
				Total:       doc.TotalAmount,
				Outstanding: doc.OutstandingBalance,
				Current:     doc.Status,
				SalePending: IsSalePendingStatus(doc.RawStatus),
			})
			if next != doc.Status {
				if err := tx.UpdateStatus(ctx, doc.ID, next); err != nil {
					return err
				}
			}
		}
		rec = Reclassification{
			DocumentID: doc.ID,
			From:       from,
			To:         input.To,
			Actor:      input.Actor,
			Reason:     input.Reason,
			OccurredAt: time.Now().UTC(),
		}
		id, err := tx.InsertReclassification(ctx, rec)
		if err != nil {
			return err
		}
		rec.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    input.Actor,
			Action:   "documents:reclassify",
			Entity:   "document",
			EntityID: strconv.FormatInt(input.DocumentID, 10),
			Meta: map[string]any{
				"from":   string(rec.From),
				"to":     string(rec.To),
				"reason": input.Reason,
			},
		})
	}
	return &rec, nil
}

// AdminActionInput identifies the target and operator of a status action.
type AdminActionInput struct {
	DocumentID int64
	Actor      string
	Reason     string
}

// Cancel moves a document into the terminal CANCELLED state. Cancelled
// documents drop out of every revenue and COGS computation.
func (s *Service) Cancel(ctx context.Context, input AdminActionInput) (*Document, error) {
	return s.setTerminal(ctx, input, StatusCancelled, "documents:cancel")
}

// Archive moves a document into the terminal ARCHIVED state.
func (s *Service) Archive(ctx context.Context, input AdminActionInput) (*Document, error) {
	return s.setTerminal(ctx, input, StatusArchived, "documents:archive")
}

func (s *Service) setTerminal(ctx context.Context, input AdminActionInput, target Status, action string) (*Document, error) {
	if input.Actor == "" {
		return nil, errors.New("documents: actor required")
	}
	var doc *Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetDocumentForUpdate(ctx, input.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return ErrNotFound
		}
		if doc.Status.Terminal() {
			return ErrTerminalStatus
		}
		if err := tx.UpdateStatus(ctx, doc.ID, target); err != nil {
			return err
		}
		doc.Status = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAdmin(ctx, input, action, string(target))
	return doc, nil
}

// Reinstate exits a terminal state and re-derives the status from the
// document's balance, as if the administrative freeze never happened.
func (s *Service) Reinstate(ctx context.Context, input AdminActionInput) (*Document, error) {
	if input.Actor == "" {
		return nil, errors.New("documents: actor required")
	}
	var doc *Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetDocumentForUpdate(ctx, input.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return ErrNotFound
		}
		if !doc.Status.Terminal() {
			return ErrNotTerminal
		}
		next := DeriveStatus(StatusInput{
			Category:    ClassifyDocument(doc),
			Total:       doc.TotalAmount,
			Outstanding: doc.OutstandingBalance,
			SalePending: IsSalePendingStatus(doc.RawStatus),
		})
		if err := tx.UpdateStatus(ctx, doc.ID, next); err != nil {
			return err
		}
		doc.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAdmin(ctx, input, "documents:reinstate", string(doc.Status))
	return doc, nil
}

// History lists the reclassification trail of a document, newest first.
func (s *Service) History(ctx context.Context, documentID int64) ([]Reclassification, error) {
	return s.repo.ListReclassifications(ctx, documentID)
}

func (s *Service) recordAdmin(ctx context.Context, input AdminActionInput, action, result string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    input.Actor,
		Action:   action,
		Entity:   "document",
		EntityID: strconv.FormatInt(input.DocumentID, 10),
		Meta: map[string]any{
			"status": result,
			"reason": input.Reason,
		},
	})
}
