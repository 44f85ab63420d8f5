package reporting

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optisass/optisass-core/internal/documents"
	"github.com/optisass/optisass-core/internal/platform/db"
	"github.com/optisass/optisass-core/internal/stock"
)

// Repository reads aggregation rows from PostgreSQL. Reads run inside
// db.WithReadTx so they never block payment or costing mutations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// fiche_id is nullable, the zero value stands in for "no fiche".
const documentColumns = `d.id, d.number, d.declared_type, d.raw_status, d.status, d.total_amount, d.outstanding_balance,
d.issue_date, d.center_id, d.client_id, COALESCE(d.fiche_id, 0) AS fiche_id,
EXISTS(SELECT 1 FROM payments p WHERE p.document_id = d.id) AS has_payments,
d.created_at, d.updated_at`

// ListDocuments returns documents whose issue date falls in the half-open
// window, plus nil-issue-date rows so the aggregator can report them.
func (r *Repository) ListDocuments(ctx context.Context, w Window, centerID int64) ([]documents.Document, error) {
	if r == nil {
		return nil, errors.New("reporting repository not initialised")
	}
	query := `SELECT ` + documentColumns + `
FROM documents d WHERE 1=1`
	args := []any{}
	if !w.From.IsZero() {
		args = append(args, w.From)
		query += ` AND (d.issue_date IS NULL OR d.issue_date >= $` + strconv.Itoa(len(args)) + `)`
	}
	if !w.To.IsZero() {
		args = append(args, w.To)
		query += ` AND (d.issue_date IS NULL OR d.issue_date < $` + strconv.Itoa(len(args)) + `)`
	}
	if centerID != 0 {
		args = append(args, centerID)
		query += ` AND d.center_id = $` + strconv.Itoa(len(args))
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

// PeriodExpenses sums operational expenses recorded for the window. The
// expenses table is fed by payroll and supplier imports outside this engine.
func (r *Repository) PeriodExpenses(ctx context.Context, w Window, centerID int64) (float64, error) {
	if r == nil {
		return 0, errors.New("reporting repository not initialised")
	}
	query := `SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE 1=1`
	args := []any{}
	if !w.From.IsZero() {
		args = append(args, w.From)
		query += ` AND incurred_at >= $` + strconv.Itoa(len(args))
	}
	if !w.To.IsZero() {
		args = append(args, w.To)
		query += ` AND incurred_at < $` + strconv.Itoa(len(args))
	}
	if centerID != 0 {
		args = append(args, centerID)
		query += ` AND center_id = $` + strconv.Itoa(len(args))
	}
	var total float64
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query, args...).Scan(&total)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ListMovementsForDocuments returns the stock movements owned by the given
// documents.
func (r *Repository) ListMovementsForDocuments(ctx context.Context, documentIDs []int64) ([]stock.Movement, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}
	var out []stock.Movement
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, code, product_id, COALESCE(document_id, 0), qty, unit_cost, note, actor, posted_at
FROM stock_movements WHERE document_id = ANY($1) ORDER BY posted_at, id`, documentIDs)
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
