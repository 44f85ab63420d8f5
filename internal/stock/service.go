package stock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/optisass/optisass-core/internal/shared"
)

// qtyEpsilon absorbs float noise on quantity comparisons.
const qtyEpsilon = 1e-4

// RepositoryPort abstracts repository usage for the costing service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMovement(ctx context.Context, id int64) (*Movement, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	GetProductCost(ctx context.Context, productID int64) (*ProductCost, error)
}

// TxRepository exposes transactional costing operations.
type TxRepository interface {
	GetCostForUpdate(ctx context.Context, productID int64) (ProductCost, error)
	UpsertCost(ctx context.Context, cost ProductCost) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	GetMovementForUpdate(ctx context.Context, id int64) (*Movement, error)
	UpdateMovementRefs(ctx context.Context, id, productID, documentID int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against double postings on client retries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// EventPort is notified after every committed costing mutation. The reporting
// cache registers here so stale summaries get invalidated.
type EventPort interface {
	LedgerMutated(ctx context.Context)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service maintains per-product weighted-average costs and the movement
// ledger that feeds COGS.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	idem     IdempotencyPort
	events   EventPort
	allowNeg bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, events EventPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, idem: idem, events: events, allowNeg: cfg.AllowNegativeStock}
}

// MovementFilter scopes movement listings. Zero fields are not applied.
type MovementFilter struct {
	ProductID  int64
	DocumentID int64
	From       time.Time
	To         time.Time
}

// InboundInput describes a stock receipt.
type InboundInput struct {
	Code           string
	ProductID      int64
	Qty            float64
	UnitCost       float64
	DocumentID     int64
	Note           string
	Actor          string
	IdempotencyKey string
}

// OutboundInput describes a stock exit tied to a sale document.
type OutboundInput struct {
	Code           string
	ProductID      int64
	Qty            float64
	DocumentID     int64
	Note           string
	Actor          string
	IdempotencyKey string
}

// PostInbound books a receipt and folds its cost into the running average:
// avg = (qOld*cOld + qNew*cNew) / (qOld + qNew). A zero denominator
// short-circuits to cNew, which also covers the first receipt of a product.
func (s *Service) PostInbound(ctx context.Context, input InboundInput) (*Movement, error) {
	if input.ProductID == 0 {
		return nil, errors.New("stock: product required")
	}
	if input.Qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if input.UnitCost < 0 {
		return nil, ErrInvalidUnitCost
	}

	var movement Movement
	err := s.withIdempotency(ctx, input.IdempotencyKey, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			cost, err := tx.GetCostForUpdate(ctx, input.ProductID)
			if err != nil {
				return err
			}
			newQty := cost.QtyOnHand + input.Qty
			var avg float64
			if math.Abs(newQty) < qtyEpsilon {
				avg = input.UnitCost
			} else {
				avg = (cost.QtyOnHand*cost.AvgCost + input.Qty*input.UnitCost) / newQty
			}
			movement = Movement{
				Code:       s.code(input.Code, "SM-IN"),
				ProductID:  input.ProductID,
				DocumentID: input.DocumentID,
				Qty:        input.Qty,
				UnitCost:   input.UnitCost,
				Note:       input.Note,
				Actor:      input.Actor,
				PostedAt:   time.Now().UTC(),
			}
			id, err := tx.InsertMovement(ctx, movement)
			if err != nil {
				return err
			}
			movement.ID = id
			return tx.UpsertCost(ctx, ProductCost{ProductID: input.ProductID, QtyOnHand: newQty, AvgCost: avg})
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifyMutation(ctx)
	s.recordAudit(ctx, input.Actor, "stock:inbound", movement.ID, map[string]any{
		"product_id": input.ProductID,
		"qty":        input.Qty,
		"unit_cost":  input.UnitCost,
	})
	return &movement, nil
}

// PostOutbound books an exit. The movement captures the current average as
// its unit cost; later receipts change the average but never this movement.
func (s *Service) PostOutbound(ctx context.Context, input OutboundInput) (*Movement, error) {
	if input.ProductID == 0 {
		return nil, errors.New("stock: product required")
	}
	if input.DocumentID == 0 {
		return nil, errors.New("stock: owning document required")
	}
	if input.Qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	var movement Movement
	err := s.withIdempotency(ctx, input.IdempotencyKey, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			cost, err := tx.GetCostForUpdate(ctx, input.ProductID)
			if err != nil {
				return err
			}
			newQty := cost.QtyOnHand - input.Qty
			if !s.allowNeg && newQty < -qtyEpsilon {
				return ErrNegativeStock
			}
			movement = Movement{
				Code:       s.code(input.Code, "SM-OUT"),
				ProductID:  input.ProductID,
				DocumentID: input.DocumentID,
				Qty:        -input.Qty,
				UnitCost:   cost.AvgCost,
				Note:       input.Note,
				Actor:      input.Actor,
				PostedAt:   time.Now().UTC(),
			}
			id, err := tx.InsertMovement(ctx, movement)
			if err != nil {
				return err
			}
			movement.ID = id
			// Exits never move the average; only on-hand quantity changes.
			return tx.UpsertCost(ctx, ProductCost{ProductID: input.ProductID, QtyOnHand: newQty, AvgCost: cost.AvgCost})
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifyMutation(ctx)
	s.recordAudit(ctx, input.Actor, "stock:outbound", movement.ID, map[string]any{
		"product_id":  input.ProductID,
		"document_id": input.DocumentID,
		"qty":         input.Qty,
		"unit_cost":   movement.UnitCost,
	})
	return &movement, nil
}

// RepointInput re-targets a movement's references during data-repair merges.
// Zero fields keep the current reference.
type RepointInput struct {
	MovementID int64
	ProductID  int64
	DocumentID int64
	Actor      string
	Reason     string
}

// Repoint updates a movement's product or document reference. Quantity and
// unit cost are immutable once recorded, so merges never change costing
// history, only where it is attributed.
func (s *Service) Repoint(ctx context.Context, input RepointInput) (*Movement, error) {
	if input.ProductID == 0 && input.DocumentID == 0 {
		return nil, errors.New("stock: nothing to repoint")
	}
	if input.Actor == "" {
		return nil, errors.New("stock: actor required")
	}

	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovementForUpdate(ctx, input.MovementID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrMovementNotFound
		}
		productID := m.ProductID
		if input.ProductID != 0 {
			productID = input.ProductID
		}
		documentID := m.DocumentID
		if input.DocumentID != 0 {
			documentID = input.DocumentID
		}
		if err := tx.UpdateMovementRefs(ctx, m.ID, productID, documentID); err != nil {
			return err
		}
		m.ProductID = productID
		m.DocumentID = documentID
		movement = *m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyMutation(ctx)
	s.recordAudit(ctx, input.Actor, "stock:repoint", movement.ID, map[string]any{
		"product_id":  movement.ProductID,
		"document_id": movement.DocumentID,
		"reason":      input.Reason,
	})
	return &movement, nil
}

// Get returns a movement by id.
func (s *Service) Get(ctx context.Context, id int64) (*Movement, error) {
	m, err := s.repo.GetMovement(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMovementNotFound
	}
	return m, nil
}

// List returns movements matching the filter.
func (s *Service) List(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// Cost returns the current weighted-average state for a product; a product
// with no recorded movement reports zero quantity at zero cost.
func (s *Service) Cost(ctx context.Context, productID int64) (*ProductCost, error) {
	cost, err := s.repo.GetProductCost(ctx, productID)
	if err != nil {
		return nil, err
	}
	if cost == nil {
		return &ProductCost{ProductID: productID}, nil
	}
	return cost, nil
}

func (s *Service) withIdempotency(ctx context.Context, key string, fn func(context.Context) error) error {
	if key == "" || s.idem == nil {
		return fn(ctx)
	}
	if err := s.idem.CheckAndInsert(ctx, key, "stock"); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		_ = s.idem.Delete(ctx, key)
		return err
	}
	return nil
}

func (s *Service) code(code, prefix string) string {
	if code != "" {
		return code
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

func (s *Service) notifyMutation(ctx context.Context) {
	if s.events != nil {
		s.events.LedgerMutated(ctx)
	}
}

func (s *Service) recordAudit(ctx context.Context, actor, action string, movementID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: strconv.FormatInt(movementID, 10),
		Meta:     meta,
	})
}
