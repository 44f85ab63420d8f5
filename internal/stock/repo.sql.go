package stock

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optisass/optisass-core/internal/platform/db"
)

// Repository persists stock movements and product cost state in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const movementColumns = `id, code, product_id, COALESCE(document_id, 0), qty, unit_cost, note, actor, posted_at`

// GetMovement loads a movement by id.
func (r *Repository) GetMovement(ctx context.Context, id int64) (*Movement, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE id=$1`, id)
	return scanMovement(row)
}

// ListMovements returns movements matching the filter, oldest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE 1=1`
	args := []any{}
	if filter.ProductID != 0 {
		args = append(args, filter.ProductID)
		query += ` AND product_id = $` + strconv.Itoa(len(args))
	}
	if filter.DocumentID != 0 {
		args = append(args, filter.DocumentID)
		query += ` AND document_id = $` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND posted_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND posted_at < $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY posted_at, id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.Code, &m.ProductID, &m.DocumentID, &m.Qty, &m.UnitCost, &m.Note, &m.Actor, &m.PostedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProductCost loads the current cost state for a product.
func (r *Repository) GetProductCost(ctx context.Context, productID int64) (*ProductCost, error) {
	row := r.pool.QueryRow(ctx, `SELECT product_id, qty_on_hand, avg_cost, updated_at FROM product_costs WHERE product_id=$1`, productID)
	var cost ProductCost
	err := row.Scan(&cost.ProductID, &cost.QtyOnHand, &cost.AvgCost, &cost.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cost, nil
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetCostForUpdate locks the cost row, creating it when the product has no
// costing history yet.
func (r *txRepository) GetCostForUpdate(ctx context.Context, productID int64) (ProductCost, error) {
	row := r.tx.QueryRow(ctx, `SELECT product_id, qty_on_hand, avg_cost, updated_at FROM product_costs WHERE product_id=$1 FOR UPDATE`, productID)
	var cost ProductCost
	err := row.Scan(&cost.ProductID, &cost.QtyOnHand, &cost.AvgCost, &cost.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductCost{ProductID: productID}, nil
		}
		return ProductCost{}, err
	}
	return cost, nil
}

func (r *txRepository) UpsertCost(ctx context.Context, cost ProductCost) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO product_costs (product_id, qty_on_hand, avg_cost, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (product_id) DO UPDATE SET qty_on_hand=EXCLUDED.qty_on_hand, avg_cost=EXCLUDED.avg_cost, updated_at=NOW()`,
		cost.ProductID, cost.QtyOnHand, cost.AvgCost)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var documentID any
	if m.DocumentID != 0 {
		documentID = m.DocumentID
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (code, product_id, document_id, qty, unit_cost, note, actor, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		m.Code, m.ProductID, documentID, m.Qty, m.UnitCost, m.Note, m.Actor, m.PostedAt).Scan(&id)
	return id, err
}

func (r *txRepository) GetMovementForUpdate(ctx context.Context, id int64) (*Movement, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE id=$1 FOR UPDATE`, id)
	return scanMovement(row)
}

func (r *txRepository) UpdateMovementRefs(ctx context.Context, id, productID, documentID int64) error {
	var docArg any
	if documentID != 0 {
		docArg = documentID
	}
	_, err := r.tx.Exec(ctx, `UPDATE stock_movements SET product_id=$1, document_id=$2 WHERE id=$3`, productID, docArg, id)
	return err
}

func scanMovement(row pgx.Row) (*Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.Code, &m.ProductID, &m.DocumentID, &m.Qty, &m.UnitCost, &m.Note, &m.Actor, &m.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
