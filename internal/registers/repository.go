package registers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/sales"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Repository persists register sessions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the transactional surface for session mutations.
type TxRepository interface {
	Ledger() ledger.TxStore
	InsertSession(ctx context.Context, s Session) (Session, error)
	GetSessionForUpdate(ctx context.Context, storeID, sessionID int64) (Session, error)
	UpdateSession(ctx context.Context, s Session) error
	TenderTotals(ctx context.Context, storeID, registerSessionID int64) (map[sales.TenderType]int64, error)
}

// WithTx executes fn inside a repeatable-read transaction sharing the
// ledger event stream.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
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

const sessionColumns = `id, store_id, register_id, status, opening_float_cents, expected_cash_cents, counted_cash_cents, over_short_cents, opened_by, opened_at, closed_by, closed_at, note`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.StoreID, &s.RegisterID, &s.Status, &s.OpeningFloatCents,
		&s.ExpectedCashCents, &s.CountedCashCents, &s.OverShortCents,
		&s.OpenedBy, &s.OpenedAt, &s.ClosedBy, &s.ClosedAt, &s.Note)
	return s, err
}

// GetSession returns a session by id.
func (r *Repository) GetSession(ctx context.Context, storeID, sessionID int64) (Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM register_sessions WHERE store_id = $1 AND id = $2`, storeID, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, shared.NotFound("registers.get", "register session %d", sessionID)
	}
	return s, err
}

type txRepo struct {
	db     pgx.Tx
	ledger ledger.TxStore
}

func (t *txRepo) Ledger() ledger.TxStore { return t.ledger }

// InsertSession opens a session. A partial unique index on
// (store_id, register_id) WHERE status = 'OPEN' enforces one open session
// per register; the violation surfaces as a conflict.
func (t *txRepo) InsertSession(ctx context.Context, s Session) (Session, error) {
	row := t.db.QueryRow(ctx, `INSERT INTO register_sessions
(store_id, register_id, status, opening_float_cents, opened_by, opened_at, note)
VALUES ($1, $2, $3, $4, $5, NOW(), $6)
RETURNING `+sessionColumns,
		s.StoreID, s.RegisterID, string(s.Status), s.OpeningFloatCents, s.OpenedBy, s.Note)
	inserted, err := scanSession(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Session{}, shared.Conflict("registers.open", "register %d already has an open session", s.RegisterID)
	}
	return inserted, err
}

func (t *txRepo) GetSessionForUpdate(ctx context.Context, storeID, sessionID int64) (Session, error) {
	row := t.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM register_sessions WHERE store_id = $1 AND id = $2 FOR UPDATE`, storeID, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, shared.NotFound("registers.get", "register session %d", sessionID)
	}
	return s, err
}

// TenderTotals sums net applied amounts per tender for the session,
// inside the close transaction. Voided payments are excluded entirely.
func (t *txRepo) TenderTotals(ctx context.Context, storeID, registerSessionID int64) (map[sales.TenderType]int64, error) {
	rows, err := t.db.Query(ctx, `SELECT tender_type, COALESCE(SUM(amount_cents - change_cents), 0)
FROM payments
WHERE store_id = $1 AND register_session_id = $2 AND status = 'COMPLETED'
GROUP BY tender_type`, storeID, registerSessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[sales.TenderType]int64)
	for rows.Next() {
		var tender string
		var total int64
		if err := rows.Scan(&tender, &total); err != nil {
			return nil, err
		}
		out[sales.TenderType(tender)] = total
	}
	return out, rows.Err()
}

func (t *txRepo) UpdateSession(ctx context.Context, s Session) error {
	_, err := t.db.Exec(ctx, `UPDATE register_sessions
SET status = $3, expected_cash_cents = $4, counted_cash_cents = $5, over_short_cents = $6,
    closed_by = $7, closed_at = $8, note = $9
WHERE store_id = $1 AND id = $2`,
		s.StoreID, s.ID, string(s.Status), s.ExpectedCashCents, s.CountedCashCents,
		s.OverShortCents, s.ClosedBy, s.ClosedAt, s.Note)
	return err
}
