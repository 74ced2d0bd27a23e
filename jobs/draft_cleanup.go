package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DraftCleaner deletes inventory documents abandoned in DRAFT. Only DRAFT
// rows are eligible; the SQL predicate keeps posted history untouchable
// even if the retention window is misconfigured.
type DraftCleaner struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDraftCleaner constructs DraftCleaner.
func NewDraftCleaner(pool *pgxpool.Pool, logger *slog.Logger) *DraftCleaner {
	return &DraftCleaner{pool: pool, logger: logger}
}

// Handle processes TaskDraftCleanup tasks.
func (d *DraftCleaner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DraftCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OlderThan <= 0 {
		payload.OlderThan = 30 * 24 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-payload.OlderThan)
	tag, err := d.pool.Exec(ctx, `DELETE FROM inventory_transactions
WHERE status = 'DRAFT' AND created_at < $1`, cutoff)
	if err != nil {
		return err
	}
	d.logger.Info("draft cleanup completed",
		slog.Int64("deleted", tag.RowsAffected()),
		slog.Time("cutoff", cutoff))
	return nil
}
