package reconcile

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optisass/optisass-core/internal/documents"
	"github.com/optisass/optisass-core/internal/platform/db"
	"github.com/optisass/optisass-core/internal/stock"
)

// Repository reads raw reconciliation rows from PostgreSQL. Its queries are
// written from scratch rather than borrowed from the reporting repository so
// an error there does not silently cancel out here. Reads run inside
// db.WithReadTx so a scan never blocks ledger mutations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// fiche_id is nullable, the zero value stands in for "no fiche".
const documentColumns = `d.id, d.number, d.declared_type, d.raw_status, d.status, d.total_amount, d.outstanding_balance,
d.issue_date, d.center_id, d.client_id, COALESCE(d.fiche_id, 0),
(SELECT COUNT(*) FROM payments p WHERE p.document_id = d.id) > 0,
d.created_at, d.updated_at`

// ListAllDocuments returns every document for the center, windowed or not,
// so the fold itself decides what is in scope and what is an anomaly.
func (r *Repository) ListAllDocuments(ctx context.Context, centerID int64) ([]documents.Document, error) {
	if r == nil {
		return nil, errors.New("reconcile repository not initialised")
	}
	query := `SELECT ` + documentColumns + `
FROM documents d`
	args := []any{}
	if centerID != 0 {
		args = append(args, centerID)
		query += ` WHERE d.center_id = $1`
	}
	query += ` ORDER BY d.id`

	var out []documents.Document
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var doc documents.Document
			if err := rows.Scan(&doc.ID, &doc.Number, &doc.DeclaredType, &doc.RawStatus, &doc.Status, &doc.TotalAmount, &doc.OutstandingBalance,
				&doc.IssueDate, &doc.CenterID, &doc.ClientID, &doc.FicheID, &doc.HasPayments, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
				return err
			}
			out = append(out, doc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListMovementsForDocuments returns the costed movements owned by the given
// documents.
func (r *Repository) ListMovementsForDocuments(ctx context.Context, documentIDs []int64) ([]stock.Movement, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	var out []stock.Movement
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, code, product_id, COALESCE(document_id, 0), qty, unit_cost, note, actor, posted_at
FROM stock_movements WHERE document_id = ANY($1)`, documentIDs)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var m stock.Movement
			if err := rows.Scan(&m.ID, &m.Code, &m.ProductID, &m.DocumentID, &m.Qty, &m.UnitCost, &m.Note, &m.Actor, &m.PostedAt); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListPaymentSums returns paid-to-date per document, used to spot stored
// balances that drifted from their payments.
func (r *Repository) ListPaymentSums(ctx context.Context, centerID int64) (map[int64]float64, error) {
	query := `SELECT p.document_id, SUM(p.amount) FROM payments p`
	args := []any{}
	if centerID != 0 {
		args = append(args, centerID)
		query += ` JOIN documents d ON d.id = p.document_id WHERE d.center_id = $1`
	}
	query += ` GROUP BY p.document_id`

	out := make(map[int64]float64)
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var documentID int64
			var sum float64
			if err := rows.Scan(&documentID, &sum); err != nil {
				return err
			}
			out[documentID] = sum
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
