package payments

import (
	"errors"
	"time"
)

// Payment methods mirror what front-office operators actually record; legacy
// rows occasionally carry free-form variants, so Method is not validated at
// the domain layer beyond non-emptiness.
const (
	MethodCash      = "CASH"
	MethodCard      = "CARD"
	MethodCheck     = "CHECK"
	MethodTransfer  = "TRANSFER"
	MethodInsurance = "INSURANCE"
)

// Payment is one applied settlement against a document.
type Payment struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	Amount     float64   `json:"amount"`
	Method     string    `json:"method"`
	PaidAt     time.Time `json:"paid_at"`
	Reference  string    `json:"reference,omitempty"`
	Bank       string    `json:"bank,omitempty"`
	ThirdParty string    `json:"third_party,omitempty"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}

// DuplicateGroup is an advisory cluster of payments sharing document, amount,
// method and a truncated paid-at timestamp. Reporting only; nothing in the
// engine deletes a member automatically.
type DuplicateGroup struct {
	DocumentID int64     `json:"document_id"`
	Amount     float64   `json:"amount"`
	Method     string    `json:"method"`
	Bucket     time.Time `json:"bucket"`
	Payments   []Payment `json:"payments"`
}

var (
	ErrDocumentNotFound       = errors.New("document not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrInvalidAmount          = errors.New("payment amount must be positive")
	ErrOverpayment            = errors.New("payment exceeds outstanding balance")
	ErrTerminalDocument       = errors.New("document is cancelled or archived")
	ErrConcurrentModification = errors.New("document modified concurrently, retry")
)
