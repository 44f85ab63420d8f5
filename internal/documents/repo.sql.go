package documents

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists documents in PostgreSQL.
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

// GetDocument loads a document together with its has-payments flag.
func (r *Repository) GetDocument(ctx context.Context, id int64) (*Document, error) {
	if r == nil {
		return nil, errors.New("documents repository not initialised")
	}
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.id=$1`, id)
	return scanDocument(row)
}

// ListDocuments returns one page of documents plus the unpaged total.
func (r *Repository) ListDocuments(ctx context.Context, f ListFilter) ([]Document, int, error) {
	if r == nil {
		return nil, 0, errors.New("documents repository not initialised")
	}
	query := `SELECT ` + documentColumns + `, COUNT(*) OVER() AS total FROM documents d WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += ` AND d.status = $` + strconv.Itoa(len(args))
	}
	if f.CenterID != 0 {
		args = append(args, f.CenterID)
		query += ` AND d.center_id = $` + strconv.Itoa(len(args))
	}
	args = append(args, f.PerPage)
	query += ` ORDER BY d.id DESC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, (f.Page-1)*f.PerPage)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Document
	var total int
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Number, &doc.DeclaredType, &doc.RawStatus, &doc.Status, &doc.TotalAmount, &doc.OutstandingBalance,
			&doc.IssueDate, &doc.CenterID, &doc.ClientID, &doc.FicheID, &doc.HasPayments, &doc.CreatedAt, &doc.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListReclassifications returns the reclassification trail, newest first.
func (r *Repository) ListReclassifications(ctx context.Context, documentID int64) ([]Reclassification, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, document_id, from_category, to_category, actor, reason, occurred_at
FROM document_reclassifications WHERE document_id=$1 ORDER BY occurred_at DESC, id DESC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []Reclassification
	for rows.Next() {
		var rec Reclassification
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.From, &rec.To, &rec.Actor, &rec.Reason, &rec.OccurredAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("documents repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *txRepository) GetDocumentForUpdate(ctx context.Context, id int64) (*Document, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.id=$1 FOR UPDATE OF d`, id)
	return scanDocument(row)
}

func (r *txRepository) UpdateDeclaredType(ctx context.Context, id int64, declaredType string) error {
	_, err := r.tx.Exec(ctx, `UPDATE documents SET declared_type=$1, updated_at=NOW() WHERE id=$2`, declaredType, id)
	return err
}

func (r *txRepository) UpdateNumber(ctx context.Context, id int64, number string) error {
	_, err := r.tx.Exec(ctx, `UPDATE documents SET number=$1, updated_at=NOW() WHERE id=$2`, number, id)
	return err
}

func (r *txRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE documents SET status=$1, updated_at=NOW() WHERE id=$2`, string(status), id)
	return err
}

func (r *txRepository) InsertReclassification(ctx context.Context, rec Reclassification) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO document_reclassifications (document_id, from_category, to_category, actor, reason, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`, rec.DocumentID, string(rec.From), string(rec.To), rec.Actor, rec.Reason, rec.OccurredAt).Scan(&id)
	return id, err
}

func scanDocument(row pgx.Row) (*Document, error) {
	var doc Document
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
