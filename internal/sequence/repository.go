package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-retail/meridian/internal/shared"
)

const pgUniqueViolation = "23505"

// Repository persists document sequences in PostgreSQL. next_number always
// holds the next unallocated value, so the allocated number is the
// post-increment value minus one.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Increment(ctx context.Context, storeID int64, docType string) (int64, bool, error) {
	var next int64
	err := r.pool.QueryRow(ctx, `UPDATE document_sequences
SET next_number = next_number + 1
WHERE store_id = $1 AND document_type = $2
RETURNING next_number`, storeID, docType).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return next - 1, true, nil
}

func (r *Repository) InsertInitial(ctx context.Context, storeID int64, docType string) (int64, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO document_sequences (store_id, document_type, next_number) VALUES ($1, $2, 2)`, storeID, docType)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			// a concurrent caller inserted first; retry the increment path
			return 0, shared.TransientConflict("sequence.insert", "counter for %q created concurrently", docType)
		}
		return 0, err
	}
	return 1, nil
}
