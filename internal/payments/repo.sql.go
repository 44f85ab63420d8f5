package payments

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optisass/optisass-core/internal/documents"
	"github.com/optisass/optisass-core/internal/platform/db"
)

// Repository persists payments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const paymentColumns = `p.id, p.document_id, p.amount, p.method, p.paid_at, p.reference, p.bank, p.third_party, p.actor, p.created_at`

// fiche_id is nullable, the zero value stands in for "no fiche".
const documentColumns = `d.id, d.number, d.declared_type, d.raw_status, d.status, d.total_amount, d.outstanding_balance,
d.issue_date, d.center_id, d.client_id, COALESCE(d.fiche_id, 0) AS fiche_id,
EXISTS(SELECT 1 FROM payments p WHERE p.document_id = d.id) AS has_payments,
d.created_at, d.updated_at`

// GetPayment loads a payment by id.
func (r *Repository) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	if r == nil {
		return nil, errors.New("payments repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments p WHERE p.id=$1`, id)
	return scanPayment(row)
}

// ListByDocument returns payments applied to a document, oldest first.
func (r *Repository) ListByDocument(ctx context.Context, documentID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments p WHERE p.document_id=$1 ORDER BY p.paid_at, p.id`, documentID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

// ListInWindow returns payments with paid_at in the half-open window
// [from, to). Zero bounds are unbounded; zero centerID spans all centers.
func (r *Repository) ListInWindow(ctx context.Context, from, to time.Time, centerID int64) ([]Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments p JOIN documents d ON d.id = p.document_id WHERE 1=1`
	args := []any{}
	if !from.IsZero() {
		args = append(args, from)
		query += ` AND p.paid_at >= $` + strconv.Itoa(len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += ` AND p.paid_at < $` + strconv.Itoa(len(args))
	}
	if centerID != 0 {
		args = append(args, centerID)
		query += ` AND d.center_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY p.paid_at, p.id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction and
// translates serialization failures for retrying callers.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("payments repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) GetDocumentForUpdate(ctx context.Context, id int64) (*documents.Document, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.id=$1 FOR UPDATE OF d`, id)
	var doc documents.Document
	err := row.Scan(&doc.ID, &doc.Number, &doc.DeclaredType, &doc.RawStatus, &doc.Status, &doc.TotalAmount, &doc.OutstandingBalance,
		&doc.IssueDate, &doc.CenterID, &doc.ClientID, &doc.FicheID, &doc.HasPayments, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (r *txRepository) GetPaymentForUpdate(ctx context.Context, id int64) (*Payment, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments p WHERE p.id=$1 FOR UPDATE`, id)
	return scanPayment(row)
}

func (r *txRepository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO payments (document_id, amount, method, paid_at, reference, bank, third_party, actor, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		p.DocumentID, p.Amount, p.Method, p.PaidAt, p.Reference, p.Bank, p.ThirdParty, p.Actor, p.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpdatePaymentAmount(ctx context.Context, id int64, amount float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE payments SET amount=$1 WHERE id=$2`, amount, id)
	return err
}

func (r *txRepository) DeletePayment(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM payments WHERE id=$1`, id)
	return err
}

func (r *txRepository) SumPayments(ctx context.Context, documentID int64, excludeID int64) (float64, int, error) {
	var sum float64
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM payments WHERE document_id=$1 AND ($2 = 0 OR id <> $2)`,
		documentID, excludeID).Scan(&sum, &count)
	return sum, count, err
}

func (r *txRepository) UpdateDocumentBalance(ctx context.Context, documentID int64, outstanding float64, status documents.Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE documents SET outstanding_balance=$1, status=$2, updated_at=NOW() WHERE id=$3`,
		outstanding, string(status), documentID)
	return err
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.DocumentID, &p.Amount, &p.Method, &p.PaidAt, &p.Reference, &p.Bank, &p.ThirdParty, &p.Actor, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func collectPayments(rows pgx.Rows) ([]Payment, error) {
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Amount, &p.Method, &p.PaidAt, &p.Reference, &p.Bank, &p.ThirdParty, &p.Actor, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
