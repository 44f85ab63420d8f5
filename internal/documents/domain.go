package documents

import (
	"errors"
	"time"
)

// Category partitions every commercial document into exactly one kind.
type Category string

const (
	// CategoryInvoice is a formally issued, fiscally numbered sales document.
	CategoryInvoice Category = "INVOICE"
	// CategoryOrder is a sale recorded without formal invoicing ("bon de commande").
	CategoryOrder Category = "ORDER"
	// CategoryQuote is a non-committal, unpaid proposal ("devis").
	CategoryQuote Category = "QUOTE"
	// CategoryCreditNote is a negative-value document reversing an invoice ("avoir").
	CategoryCreditNote Category = "CREDIT_NOTE"
)

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryInvoice, CategoryOrder, CategoryQuote, CategoryCreditNote:
		return true
	}
	return false
}

// Status is the derived lifecycle state of a document.
type Status string

const (
	StatusDraft            Status = "DRAFT"
	StatusQuoteUnconfirmed Status = "QUOTE_UNCONFIRMED"
	StatusPartiallyPaid    Status = "PARTIALLY_PAID"
	StatusPaid             Status = "PAID"
	StatusOrderPending     Status = "ORDER_PENDING"
	StatusValidated        Status = "VALIDATED"
	StatusCancelled        Status = "CANCELLED"
	StatusArchived         Status = "ARCHIVED"
)

// Terminal reports whether the status blocks balance-driven transitions.
// Terminal statuses only change through explicit administrative action.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusArchived
}

// Active reports whether the document counts toward revenue and COGS.
func (s Status) Active() bool {
	return !s.Terminal()
}

// Document is a commercial record: invoice, order, quote or credit note.
// DeclaredType and RawStatus carry the loosely-controlled legacy strings as
// stored; Status is the lifecycle state this engine derives and persists.
type Document struct {
	ID                 int64
	Number             string
	DeclaredType       string
	RawStatus          string
	Status             Status
	TotalAmount        float64
	OutstandingBalance float64
	IssueDate          *time.Time
	CenterID           int64
	ClientID           int64
	FicheID            int64
	HasPayments        bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Reclassification records an administrative category change (who/when/old→new).
type Reclassification struct {
	ID         int64
	DocumentID int64
	From       Category
	To         Category
	Actor      string
	Reason     string
	OccurredAt time.Time
}

var (
	// ErrNotFound indicates an unknown document id.
	ErrNotFound = errors.New("documents: not found")
	// ErrInvalidCategory indicates a reclassification target outside the four categories.
	ErrInvalidCategory = errors.New("documents: invalid category")
	// ErrCreditNoteTarget rejects promoting a document into a credit note;
	// credit notes are created, never reclassified into.
	ErrCreditNoteTarget = errors.New("documents: cannot reclassify into a credit note")
	// ErrSameCategory indicates the document already carries the target category.
	ErrSameCategory = errors.New("documents: document already has the requested category")
	// ErrTerminalStatus indicates the operation is blocked by CANCELLED/ARCHIVED.
	ErrTerminalStatus = errors.New("documents: document is cancelled or archived")
	// ErrNotTerminal indicates reinstate was requested on a live document.
	ErrNotTerminal = errors.New("documents: document is not cancelled or archived")
	// ErrClassificationAmbiguous is reserved for future signals the fixed
	// precedence order cannot resolve; classification fails loud, never guesses.
	ErrClassificationAmbiguous = errors.New("documents: classification ambiguous")
)
