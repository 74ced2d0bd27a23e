package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Repository persists sales, payments and the payment transaction ledger
// in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction. The ledger
// store is bound to the same transaction so sale, payment and inventory
// writes commit or roll back together.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{db: tx, ledger: ledger.NewTxStore(tx)}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetSale returns the sale with its lines.
func (r *Repository) GetSale(ctx context.Context, storeID, saleID int64) (Sale, error) {
	sale, err := getSale(ctx, r.pool, storeID, saleID)
	if err != nil {
		return Sale{}, err
	}
	sale.Lines, err = listSaleLines(ctx, r.pool, saleID)
	return sale, err
}

// ListPayments returns every payment recorded against a sale.
func (r *Repository) ListPayments(ctx context.Context, storeID, saleID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+`
FROM payments WHERE store_id = $1 AND sale_id = $2 ORDER BY id ASC`, storeID, saleID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

// TenderTotals sums net applied amounts per tender type for a register
// session. Voided payments are excluded entirely.
func (r *Repository) TenderTotals(ctx context.Context, storeID, registerSessionID int64) (map[TenderType]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT tender_type, COALESCE(SUM(amount_cents - change_cents), 0)
FROM payments
WHERE store_id = $1 AND register_session_id = $2 AND status = 'COMPLETED'
GROUP BY tender_type`, storeID, registerSessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[TenderType]int64)
	for rows.Next() {
		var tender string
		var total int64
		if err := rows.Scan(&tender, &total); err != nil {
			return nil, err
		}
		out[TenderType(tender)] = total
	}
	return out, rows.Err()
}

type txRepo struct {
	db     pgx.Tx
	ledger ledger.TxStore
}

func (t *txRepo) Ledger() ledger.TxStore { return t.ledger }

const saleColumns = `id, store_id, code, status, payment_status, total_due_cents, total_paid_cents, change_due_cents, register_session_id, version, created_by, created_at, updated_at, posted_at, voided_at, void_reason`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.StoreID, &s.Code, &s.Status, &s.PaymentStatus,
		&s.TotalDueCents, &s.TotalPaidCents, &s.ChangeDueCents, &s.RegisterSessionID,
		&s.Version, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.PostedAt, &s.VoidedAt, &s.VoidReason)
	return s, err
}

func (t *txRepo) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	row := t.db.QueryRow(ctx, `INSERT INTO sales
(store_id, code, status, payment_status, total_due_cents, total_paid_cents, change_due_cents, register_session_id, version, created_by, created_at, updated_at, void_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, NOW(), NOW(), '')
RETURNING `+saleColumns,
		s.StoreID, s.Code, string(s.Status), string(s.PaymentStatus),
		s.TotalDueCents, s.TotalPaidCents, s.ChangeDueCents, s.RegisterSessionID, s.CreatedBy)
	return scanSale(row)
}

func getSale(ctx context.Context, db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, storeID, saleID int64) (Sale, error) {
	row := db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE store_id = $1 AND id = $2`, storeID, saleID)
	s, err := scanSale(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, shared.NotFound("sales.get", "sale %d", saleID)
	}
	return s, err
}

func (t *txRepo) GetSaleForUpdate(ctx context.Context, storeID, saleID int64) (Sale, error) {
	row := t.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE store_id = $1 AND id = $2 FOR UPDATE`, storeID, saleID)
	s, err := scanSale(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, shared.NotFound("sales.get", "sale %d", saleID)
	}
	return s, err
}

// UpdateSale persists the sale guarded by a version check; a stale version
// surfaces as a transient conflict so the caller's retry re-reads.
func (t *txRepo) UpdateSale(ctx context.Context, s Sale) (Sale, error) {
	row := t.db.QueryRow(ctx, `UPDATE sales
SET status = $3, payment_status = $4, total_paid_cents = $5, change_due_cents = $6,
    posted_at = $7, voided_at = $8, void_reason = $9, version = version + 1, updated_at = NOW()
WHERE store_id = $1 AND id = $2 AND version = $10
RETURNING `+saleColumns,
		s.StoreID, s.ID, string(s.Status), string(s.PaymentStatus),
		s.TotalPaidCents, s.ChangeDueCents, s.PostedAt, s.VoidedAt, s.VoidReason, s.Version)
	updated, err := scanSale(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, shared.TransientConflict("sales.update", "sale %d was modified concurrently", s.ID)
	}
	return updated, err
}

const lineColumns = `id, sale_id, store_id, product_id, quantity, unit_price_cents, line_total_cents, inventory_tx_id`

func (t *txRepo) InsertSaleLine(ctx context.Context, l SaleLine) (SaleLine, error) {
	row := t.db.QueryRow(ctx, `INSERT INTO sale_lines
(sale_id, store_id, product_id, quantity, unit_price_cents, line_total_cents)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+lineColumns,
		l.SaleID, l.StoreID, l.ProductID, l.Quantity, l.UnitPriceCents, l.LineTotalCents)
	return scanSaleLine(row)
}

func scanSaleLine(row pgx.Row) (SaleLine, error) {
	var l SaleLine
	err := row.Scan(&l.ID, &l.SaleID, &l.StoreID, &l.ProductID, &l.Quantity,
		&l.UnitPriceCents, &l.LineTotalCents, &l.InventoryTxID)
	return l, err
}

func (t *txRepo) ListSaleLines(ctx context.Context, saleID int64) ([]SaleLine, error) {
	return listSaleLines(ctx, t.db, saleID)
}

func listSaleLines(ctx context.Context, db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, saleID int64) ([]SaleLine, error) {
	rows, err := db.Query(ctx, `SELECT `+lineColumns+` FROM sale_lines WHERE sale_id = $1 ORDER BY id ASC`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SaleLine
	for rows.Next() {
		l, err := scanSaleLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *txRepo) SetLineInventoryTx(ctx context.Context, lineID, inventoryTxID int64) error {
	_, err := t.db.Exec(ctx, `UPDATE sale_lines SET inventory_tx_id = $2 WHERE id = $1`, lineID, inventoryTxID)
	return err
}

const paymentColumns = `id, store_id, sale_id, register_session_id, tender_type, amount_cents, change_cents, status, reference, created_by, created_at, voided_at, void_reason`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.StoreID, &p.SaleID, &p.RegisterSessionID, &p.Tender,
		&p.AmountCents, &p.ChangeCents, &p.Status, &p.Reference, &p.CreatedBy,
		&p.CreatedAt, &p.VoidedAt, &p.VoidReason)
	return p, err
}

func collectPayments(rows pgx.Rows) ([]Payment, error) {
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	row := t.db.QueryRow(ctx, `INSERT INTO payments
(store_id, sale_id, register_session_id, tender_type, amount_cents, change_cents, status, reference, created_by, created_at, void_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), '')
RETURNING `+paymentColumns,
		p.StoreID, p.SaleID, p.RegisterSessionID, string(p.Tender),
		p.AmountCents, p.ChangeCents, string(p.Status), p.Reference, p.CreatedBy)
	return scanPayment(row)
}

func (t *txRepo) GetPaymentForUpdate(ctx context.Context, storeID, paymentID int64) (Payment, error) {
	row := t.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE store_id = $1 AND id = $2 FOR UPDATE`, storeID, paymentID)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.NotFound("payments.get", "payment %d", paymentID)
	}
	return p, err
}

func (t *txRepo) UpdatePayment(ctx context.Context, p Payment) error {
	_, err := t.db.Exec(ctx, `UPDATE payments
SET status = $3, voided_at = $4, void_reason = $5
WHERE store_id = $1 AND id = $2`,
		p.StoreID, p.ID, string(p.Status), p.VoidedAt, p.VoidReason)
	return err
}

func (t *txRepo) ListPayments(ctx context.Context, saleID int64) ([]Payment, error) {
	rows, err := t.db.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE sale_id = $1 ORDER BY id ASC`, saleID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (t *txRepo) InsertPaymentTransaction(ctx context.Context, p PaymentTransaction) (PaymentTransaction, error) {
	err := t.db.QueryRow(ctx, `INSERT INTO payment_transactions
(store_id, payment_id, sale_id, tx_type, amount_cents, note, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
RETURNING id, created_at`,
		p.StoreID, p.PaymentID, p.SaleID, string(p.Type), p.AmountCents, p.Note, p.CreatedBy).
		Scan(&p.ID, &p.CreatedAt)
	return p, err
}

// RefundTotal sums refunds across the sale as positive cents.
func (t *txRepo) RefundTotal(ctx context.Context, saleID int64) (int64, error) {
	var total int64
	err := t.db.QueryRow(ctx, `SELECT COALESCE(-SUM(amount_cents), 0)
FROM payment_transactions WHERE sale_id = $1 AND tx_type = 'REFUND'`, saleID).Scan(&total)
	return total, err
}

// RefundTotalForPayment sums refunds already taken out of one payment.
func (t *txRepo) RefundTotalForPayment(ctx context.Context, paymentID int64) (int64, error) {
	var total int64
	err := t.db.QueryRow(ctx, `SELECT COALESCE(-SUM(amount_cents), 0)
FROM payment_transactions WHERE payment_id = $1 AND tx_type = 'REFUND'`, paymentID).Scan(&total)
	return total, err
}
