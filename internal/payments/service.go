package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/optisass/optisass-core/internal/documents"
	"github.com/optisass/optisass-core/internal/platform/db"
	"github.com/optisass/optisass-core/internal/shared"
)

// amountEpsilon absorbs float noise when comparing money amounts; anything
// within a ten-thousandth of a cent counts as equal.
const amountEpsilon = 1e-6

// RepositoryPort defines data access methods for the payment ledger.
type RepositoryPort interface {
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	ListByDocument(ctx context.Context, documentID int64) ([]Payment, error)
	ListInWindow(ctx context.Context, from, to time.Time, centerID int64) ([]Payment, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the transactional operations the ledger needs. Every
// mutation happens behind a document row lock so balance and status always
// move together.
type TxRepository interface {
	GetDocumentForUpdate(ctx context.Context, id int64) (*documents.Document, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (*Payment, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	UpdatePaymentAmount(ctx context.Context, id int64, amount float64) error
	DeletePayment(ctx context.Context, id int64) error
	SumPayments(ctx context.Context, documentID int64, excludeID int64) (float64, int, error)
	UpdateDocumentBalance(ctx context.Context, documentID int64, outstanding float64, status documents.Status) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against double-booking on client retries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// EventPort is notified after every committed ledger mutation. The reporting
// cache registers here so stale summaries get invalidated.
type EventPort interface {
	LedgerMutated(ctx context.Context)
}

// ServiceConfig carries ledger tunables.
type ServiceConfig struct {
	// DuplicateGranularity is the paid-at bucket applied to duplicate scans
	// whose query does not set its own.
	DuplicateGranularity time.Duration
}

// Service owns payment application, reversal, edition and duplicate
// detection. It is the only writer of document outstanding balances.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	idem   IdempotencyPort
	events EventPort
	cfg    ServiceConfig
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, events EventPort, cfg ServiceConfig) *Service {
	if cfg.DuplicateGranularity <= 0 {
		cfg.DuplicateGranularity = DefaultDuplicateGranularity
	}
	return &Service{repo: repo, audit: audit, idem: idem, events: events, cfg: cfg}
}

// ApplyInput describes a payment to register against a document.
type ApplyInput struct {
	DocumentID     int64
	Amount         float64
	Method         string
	PaidAt         time.Time
	Reference      string
	Bank           string
	ThirdParty     string
	Actor          string
	IdempotencyKey string
}

// ApplyResult bundles the booked payment with the document state it produced.
type ApplyResult struct {
	Payment            Payment          `json:"payment"`
	OutstandingBalance float64          `json:"outstanding_balance"`
	Status             documents.Status `json:"status"`
}

// Apply books a payment. The document row is locked for the whole
// transaction; validation runs against the locked balance, so two concurrent
// applications can never jointly overpay. Overpayments are rejected outright,
// never clamped.
func (s *Service) Apply(ctx context.Context, input ApplyInput) (*ApplyResult, error) {
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: %.2f", ErrInvalidAmount, input.Amount)
	}
	if input.Method == "" {
		return nil, errors.New("payments: method required")
	}
	if input.PaidAt.IsZero() {
		input.PaidAt = time.Now().UTC()
	}
	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "payments"); err != nil {
			return nil, err
		}
	}

	var result ApplyResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocumentForUpdate(ctx, input.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return ErrDocumentNotFound
		}
		if doc.Status.Terminal() {
			return ErrTerminalDocument
		}
		if input.Amount > doc.OutstandingBalance+amountEpsilon {
			return fmt.Errorf("%w: %.2f against %.2f outstanding", ErrOverpayment, input.Amount, doc.OutstandingBalance)
		}

		p := Payment{
			DocumentID: doc.ID,
			Amount:     input.Amount,
			Method:     input.Method,
			PaidAt:     input.PaidAt,
			Reference:  input.Reference,
			Bank:       input.Bank,
			ThirdParty: input.ThirdParty,
			Actor:      input.Actor,
			CreatedAt:  time.Now().UTC(),
		}
		id, err := tx.InsertPayment(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id

		outstanding := doc.OutstandingBalance - input.Amount
		doc.HasPayments = true
		status := s.deriveStatus(doc, outstanding)
		if err := tx.UpdateDocumentBalance(ctx, doc.ID, outstanding, status); err != nil {
			return err
		}
		result = ApplyResult{Payment: p, OutstandingBalance: outstanding, Status: status}
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idem != nil && !errors.Is(err, shared.ErrIdempotencyConflict) {
			_ = s.idem.Delete(ctx, input.IdempotencyKey)
		}
		return nil, translateTxErr(err)
	}

	s.notifyMutation(ctx)
	s.recordAudit(ctx, input.Actor, "payments:apply", result.Payment.ID, map[string]any{
		"document_id": input.DocumentID,
		"amount":      input.Amount,
		"method":      input.Method,
	})
	return &result, nil
}

// ReverseInput identifies the payment to undo.
type ReverseInput struct {
	PaymentID int64
	Actor     string
	Reason    string
}

// Reverse removes a payment and recomputes the document balance from the
// full remaining payment set rather than adding the amount back. A balance
// that had drifted is therefore repaired by any reversal.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (*ApplyResult, error) {
	var result ApplyResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPaymentForUpdate(ctx, input.PaymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPaymentNotFound
		}
		doc, err := tx.GetDocumentForUpdate(ctx, p.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return ErrDocumentNotFound
		}
		if err := tx.DeletePayment(ctx, p.ID); err != nil {
			return err
		}
		paid, count, err := tx.SumPayments(ctx, doc.ID, 0)
		if err != nil {
			return err
		}
		outstanding := doc.TotalAmount - paid
		doc.HasPayments = count > 0
		status := s.deriveStatus(doc, outstanding)
		if err := tx.UpdateDocumentBalance(ctx, doc.ID, outstanding, status); err != nil {
			return err
		}
		result = ApplyResult{Payment: *p, OutstandingBalance: outstanding, Status: status}
		return nil
	})
	if err != nil {
		return nil, translateTxErr(err)
	}

	s.notifyMutation(ctx)
	s.recordAudit(ctx, input.Actor, "payments:reverse", input.PaymentID, map[string]any{
		"document_id": result.Payment.DocumentID,
		"amount":      result.Payment.Amount,
		"reason":      input.Reason,
	})
	return &result, nil
}

// EditInput carries the corrected amount for an existing payment.
type EditInput struct {
	PaymentID int64
	NewAmount float64
	Actor     string
	Reason    string
}

// Edit changes a payment amount with reverse-then-reapply semantics in a
// single transaction: the new amount is validated against the balance that
// would remain once the edited payment is excluded.
func (s *Service) Edit(ctx context.Context, input EditInput) (*ApplyResult, error) {
	if input.NewAmount <= 0 {
		return nil, fmt.Errorf("%w: %.2f", ErrInvalidAmount, input.NewAmount)
	}

	var result ApplyResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPaymentForUpdate(ctx, input.PaymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPaymentNotFound
		}
		doc, err := tx.GetDocumentForUpdate(ctx, p.DocumentID)
		if err != nil {
			return err
		}
		if doc == nil {
			return ErrDocumentNotFound
		}
		paidOthers, _, err := tx.SumPayments(ctx, doc.ID, p.ID)
		if err != nil {
			return err
		}
		if input.NewAmount > doc.TotalAmount-paidOthers+amountEpsilon {
			return fmt.Errorf("%w: %.2f against %.2f available", ErrOverpayment, input.NewAmount, doc.TotalAmount-paidOthers)
		}
		if err := tx.UpdatePaymentAmount(ctx, p.ID, input.NewAmount); err != nil {
			return err
		}
		outstanding := doc.TotalAmount - paidOthers - input.NewAmount
		doc.HasPayments = true
		status := s.deriveStatus(doc, outstanding)
		if err := tx.UpdateDocumentBalance(ctx, doc.ID, outstanding, status); err != nil {
			return err
		}
		p.Amount = input.NewAmount
		result = ApplyResult{Payment: *p, OutstandingBalance: outstanding, Status: status}
		return nil
	})
	if err != nil {
		return nil, translateTxErr(err)
	}

	s.notifyMutation(ctx)
	s.recordAudit(ctx, input.Actor, "payments:edit", input.PaymentID, map[string]any{
		"document_id": result.Payment.DocumentID,
		"new_amount":  input.NewAmount,
		"reason":      input.Reason,
	})
	return &result, nil
}

// Get returns a payment by id.
func (s *Service) Get(ctx context.Context, id int64) (*Payment, error) {
	p, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

// ListByDocument returns all payments applied to a document.
func (s *Service) ListByDocument(ctx context.Context, documentID int64) ([]Payment, error) {
	return s.repo.ListByDocument(ctx, documentID)
}

// deriveStatus recomputes the lifecycle status after a balance change. The
// category comes from the shared classifier so payment operations never hold
// classification logic of their own.
func (s *Service) deriveStatus(doc *documents.Document, outstanding float64) documents.Status {
	return documents.DeriveStatus(documents.StatusInput{
		Category:    documents.ClassifyDocument(doc),
		Total:       doc.TotalAmount,
		Outstanding: outstanding,
		Current:     doc.Status,
		SalePending: documents.IsSalePendingStatus(doc.RawStatus),
	})
}

func (s *Service) notifyMutation(ctx context.Context) {
	if s.events != nil {
		s.events.LedgerMutated(ctx)
	}
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, paymentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "payment",
		EntityID: strconv.FormatInt(paymentID, 10),
		Meta:     meta,
	})
}

func translateTxErr(err error) error {
	if errors.Is(err, db.ErrSerialization) {
		return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
	}
	return err
}
