package stock

import (
	"errors"
	"time"
)

// Movement is one costed stock event. Qty is signed: positive for receipts,
// negative for exits. UnitCost is the purchase cost on receipts and the
// weighted-average cost captured at posting time on exits; it is never
// recomputed afterwards, so historical COGS stays stable when the average
// moves. Only Repoint may touch a recorded movement, and only its product or
// document reference.
type Movement struct {
	ID         int64     `json:"id"`
	Code       string    `json:"code"`
	ProductID  int64     `json:"product_id"`
	DocumentID int64     `json:"document_id,omitempty"`
	Qty        float64   `json:"qty"`
	UnitCost   float64   `json:"unit_cost"`
	Note       string    `json:"note,omitempty"`
	Actor      string    `json:"actor"`
	PostedAt   time.Time `json:"posted_at"`
}

// ProductCost is the running weighted-average state for one product.
type ProductCost struct {
	ProductID int64     `json:"product_id"`
	QtyOnHand float64   `json:"qty_on_hand"`
	AvgCost   float64   `json:"avg_cost"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrInvalidUnitCost  = errors.New("unit cost must not be negative")
	ErrNegativeStock    = errors.New("movement would drive stock negative")
	ErrMovementNotFound = errors.New("stock movement not found")
)
