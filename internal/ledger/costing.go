package ledger

import (
	"context"
	"time"
)

// ReadStore is the aggregation surface of the ledger used by the costing
// engine. Both the pool-backed Store and in-transaction TxStore satisfy it.
type ReadStore interface {
	OnHand(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, error)
	WeightedAverageCost(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error)
	MostRecentReceiveCost(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error)
}

// Costing derives on-hand quantity and cost basis from ledger history.
// Nothing here is ever cached as a mutable counter; as-of queries are
// exact replays of the POSTED rows.
type Costing struct {
	store ReadStore
}

// NewCosting constructs the costing engine over a ledger read surface.
func NewCosting(store ReadStore) *Costing {
	return &Costing{store: store}
}

// OnHand returns the stock quantity as of the given time (zero means now).
func (c *Costing) OnHand(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, error) {
	return c.store.OnHand(ctx, storeID, productID, asOf)
}

// WeightedAverageCost returns the per-unit cost in cents derived from
// POSTED RECEIVE rows only. The second return is false when no receive
// history exists as of that time; selling without it is a hard error.
func (c *Costing) WeightedAverageCost(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error) {
	return c.store.WeightedAverageCost(ctx, storeID, productID, asOf)
}

// MostRecentReceiveCost returns the latest receive unit cost for display
// and estimation. Never used for COGS.
func (c *Costing) MostRecentReceiveCost(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error) {
	return c.store.MostRecentReceiveCost(ctx, storeID, productID, asOf)
}

// WeightedAverage computes round_half_up(totalCostCents / totalQty),
// reporting false when there is no receive quantity to average over.
func WeightedAverage(totalCostCents, totalQty int64) (int64, bool, error) {
	if totalQty <= 0 {
		return 0, false, nil
	}
	return roundHalfUpDiv(totalCostCents, totalQty), true, nil
}

// roundHalfUpDiv divides non-negative num by positive den, rounding .5 up.
func roundHalfUpDiv(num, den int64) int64 {
	return (num + den/2) / den
}
