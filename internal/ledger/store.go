package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-retail/meridian/internal/shared"
)

// TxStore exposes the ledger operations available inside one atomic unit
// of work. The ledger store exclusively owns inventory transaction and
// master ledger event rows; no component writes them directly.
type TxStore interface {
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	GetTransaction(ctx context.Context, storeID, id int64) (Transaction, error)
	GetTransactionForUpdate(ctx context.Context, storeID, id int64) (Transaction, error)
	UpdateTransactionStatus(ctx context.Context, t Transaction) error
	DeleteTransaction(ctx context.Context, storeID, id int64) error
	FindBySaleLine(ctx context.Context, storeID, saleID, saleLineID int64) (*Transaction, error)
	OnHand(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, error)
	WeightedAverageCost(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error)
	MostRecentReceiveCost(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error)
	LockProductStock(ctx context.Context, storeID, productID int64) error
	AppendEvent(ctx context.Context, ev Event) (Event, error)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists the ledger in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if s == nil {
		return errors.New("ledger store not initialised")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txStore{queries{db: tx}}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// NewTxStore binds ledger operations to an externally managed transaction,
// letting aggregate repositories share one atomic unit with the ledger.
func NewTxStore(tx pgx.Tx) TxStore {
	return &txStore{queries{db: tx}}
}

type txStore struct {
	queries
}

// Pool-backed reads for the costing engine and query endpoints.

func (s *Store) OnHand(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, error) {
	return queries{db: s.pool}.OnHand(ctx, storeID, productID, asOf)
}

func (s *Store) WeightedAverageCost(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error) {
	return queries{db: s.pool}.WeightedAverageCost(ctx, storeID, productID, asOf)
}

func (s *Store) MostRecentReceiveCost(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error) {
	return queries{db: s.pool}.MostRecentReceiveCost(ctx, storeID, productID, asOf)
}

func (s *Store) GetTransaction(ctx context.Context, storeID, id int64) (Transaction, error) {
	return queries{db: s.pool}.GetTransaction(ctx, storeID, id)
}

// TransactionFilter bounds ledger listings.
type TransactionFilter struct {
	StoreID   int64
	ProductID int64
	Type      TxType
	From      time.Time
	To        time.Time
	Limit     int
}

// ListTransactions returns ledger rows in business-time order.
func (s *Store) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, `SELECT `+txColumns+`
FROM inventory_transactions
WHERE store_id = $1
  AND ($2::bigint = 0 OR product_id = $2)
  AND ($3::text = '' OR tx_type = $3)
  AND occurred_at >= COALESCE(NULLIF($4::timestamptz, '0001-01-01'::timestamptz), '-infinity')
  AND occurred_at <= COALESCE(NULLIF($5::timestamptz, '0001-01-01'::timestamptz), 'infinity')
ORDER BY occurred_at ASC, id ASC
LIMIT $6`,
		filter.StoreID, filter.ProductID, string(filter.Type), filter.From.UTC(), filter.To.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// EventFilter bounds master ledger listings.
type EventFilter struct {
	StoreID    int64
	EntityType string
	EntityID   string
	Limit      int
}

// ListEvents returns master ledger events, newest first.
func (s *Store) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, `SELECT id, store_id, event_type, entity_type, entity_id, sale_id, payment_id, register_session_id, actor_id, note, occurred_at
FROM master_ledger_events
WHERE store_id = $1
  AND ($2::text = '' OR entity_type = $2)
  AND ($3::text = '' OR entity_id = $3)
ORDER BY occurred_at DESC, id DESC
LIMIT $4`, filter.StoreID, filter.EntityType, filter.EntityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.StoreID, &ev.EventType, &ev.EntityType, &ev.EntityID, &ev.SaleID, &ev.PaymentID, &ev.RegisterSessionID, &ev.ActorID, &ev.Note, &ev.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

const txColumns = `id, store_id, product_id, tx_type, quantity_delta, unit_cost_cents, unit_cost_cents_at_sale, cogs_cents, sale_id, sale_line_id, status, note, occurred_at, created_at, created_by, approved_by, approved_at, posted_by, posted_at`

type queries struct {
	db querier
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.StoreID, &t.ProductID, &t.Type, &t.QuantityDelta,
		&t.UnitCostCents, &t.UnitCostCentsAtSale, &t.COGSCents, &t.SaleID, &t.SaleLineID,
		&t.Status, &t.Note, &t.OccurredAt, &t.CreatedAt, &t.CreatedBy,
		&t.ApprovedBy, &t.ApprovedAt, &t.PostedBy, &t.PostedAt)
	return t, err
}

func (q queries) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	row := q.db.QueryRow(ctx, `INSERT INTO inventory_transactions
(store_id, product_id, tx_type, quantity_delta, unit_cost_cents, unit_cost_cents_at_sale, cogs_cents, sale_id, sale_line_id, status, note, occurred_at, created_at, created_by, approved_by, approved_at, posted_by, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), $13, $14, $15, $16, $17)
RETURNING `+txColumns,
		t.StoreID, t.ProductID, string(t.Type), t.QuantityDelta, t.UnitCostCents,
		t.UnitCostCentsAtSale, t.COGSCents, t.SaleID, t.SaleLineID, string(t.Status),
		t.Note, t.OccurredAt.UTC(), t.CreatedBy, t.ApprovedBy, t.ApprovedAt, t.PostedBy, t.PostedAt)
	return scanTransaction(row)
}

func (q queries) GetTransaction(ctx context.Context, storeID, id int64) (Transaction, error) {
	row := q.db.QueryRow(ctx, `SELECT `+txColumns+` FROM inventory_transactions WHERE store_id = $1 AND id = $2`, storeID, id)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, shared.NotFound("ledger.get", "inventory transaction %d", id)
	}
	return t, err
}

func (q queries) GetTransactionForUpdate(ctx context.Context, storeID, id int64) (Transaction, error) {
	row := q.db.QueryRow(ctx, `SELECT `+txColumns+` FROM inventory_transactions WHERE store_id = $1 AND id = $2 FOR UPDATE`, storeID, id)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, shared.NotFound("ledger.get", "inventory transaction %d", id)
	}
	return t, err
}

// UpdateTransactionStatus persists a lifecycle transition. The WHERE clause
// refuses to touch POSTED rows so the immutability invariant holds even if
// a caller bypasses the state machine.
func (q queries) UpdateTransactionStatus(ctx context.Context, t Transaction) error {
	tag, err := q.db.Exec(ctx, `UPDATE inventory_transactions
SET status = $3, approved_by = $4, approved_at = $5, posted_by = $6, posted_at = $7
WHERE store_id = $1 AND id = $2 AND status <> 'POSTED'`,
		t.StoreID, t.ID, string(t.Status), t.ApprovedBy, t.ApprovedAt, t.PostedBy, t.PostedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Lifecycle("ledger.transition", "transaction %d is posted or missing", t.ID)
	}
	return nil
}

func (q queries) DeleteTransaction(ctx context.Context, storeID, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM inventory_transactions WHERE store_id = $1 AND id = $2 AND status IN ('DRAFT','APPROVED')`, storeID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Lifecycle("ledger.delete", "transaction %d is posted or missing", id)
	}
	return nil
}

func (q queries) FindBySaleLine(ctx context.Context, storeID, saleID, saleLineID int64) (*Transaction, error) {
	row := q.db.QueryRow(ctx, `SELECT `+txColumns+` FROM inventory_transactions WHERE store_id = $1 AND sale_id = $2 AND sale_line_id = $3`, storeID, saleID, saleLineID)
	t, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (q queries) OnHand(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, error) {
	var qty int64
	err := q.db.QueryRow(ctx, `SELECT COALESCE(SUM(quantity_delta), 0)
FROM inventory_transactions
WHERE store_id = $1 AND product_id = $2 AND status = 'POSTED' AND occurred_at <= $3`,
		storeID, productID, boundAsOf(asOf)).Scan(&qty)
	return qty, err
}

func (q queries) WeightedAverageCost(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error) {
	var totalCost, totalQty int64
	err := q.db.QueryRow(ctx, `SELECT COALESCE(SUM(quantity_delta * unit_cost_cents), 0), COALESCE(SUM(quantity_delta), 0)
FROM inventory_transactions
WHERE store_id = $1 AND product_id = $2 AND tx_type = 'RECEIVE' AND status = 'POSTED' AND occurred_at <= $3`,
		storeID, productID, boundAsOf(asOf)).Scan(&totalCost, &totalQty)
	if err != nil {
		return 0, false, err
	}
	return WeightedAverage(totalCost, totalQty)
}

func (q queries) MostRecentReceiveCost(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error) {
	var cost int64
	err := q.db.QueryRow(ctx, `SELECT unit_cost_cents
FROM inventory_transactions
WHERE store_id = $1 AND product_id = $2 AND tx_type = 'RECEIVE' AND status = 'POSTED' AND occurred_at <= $3
ORDER BY occurred_at DESC, id DESC
LIMIT 1`, storeID, productID, boundAsOf(asOf)).Scan(&cost)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cost, true, nil
}

// LockProductStock serialises guard-then-write sections per (store, product)
// for the remainder of the transaction.
func (q queries) LockProductStock(ctx context.Context, storeID, productID int64) error {
	_, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`, storeID, productID)
	return err
}

func (q queries) AppendEvent(ctx context.Context, ev Event) (Event, error) {
	occurredAt := ev.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	err := q.db.QueryRow(ctx, `INSERT INTO master_ledger_events
(store_id, event_type, entity_type, entity_id, sale_id, payment_id, register_session_id, actor_id, note, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`,
		ev.StoreID, ev.EventType, ev.EntityType, ev.EntityID, ev.SaleID, ev.PaymentID,
		ev.RegisterSessionID, ev.ActorID, ev.Note, occurredAt.UTC()).Scan(&ev.ID)
	if err != nil {
		return Event{}, err
	}
	ev.OccurredAt = occurredAt.UTC()
	return ev, nil
}

func boundAsOf(asOf time.Time) time.Time {
	if asOf.IsZero() {
		return time.Now().UTC()
	}
	return asOf.UTC()
}
