// Package ledgertest provides an in-memory ledger store for exercising
// posting coordinators without PostgreSQL. Semantics mirror the SQL store:
// append-only rows, POSTED immutability, aggregate-by-replay costing and
// snapshot rollback for failed units of work.
package ledgertest

import (
	"context"
	"sync"
	"time"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Store is the in-memory ledger.
type Store struct {
	mu           sync.Mutex
	nextTxID     int64
	nextEventID  int64
	Transactions []ledger.Transaction
	Events       []ledger.Event
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{}
}

// WithTx runs fn against a transactional view; on error every change made
// inside fn is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txSnapshot := append([]ledger.Transaction(nil), s.Transactions...)
	evSnapshot := append([]ledger.Event(nil), s.Events...)
	txID, evID := s.nextTxID, s.nextEventID
	if err := fn(ctx, &txView{s: s}); err != nil {
		s.Transactions = txSnapshot
		s.Events = evSnapshot
		s.nextTxID, s.nextEventID = txID, evID
		return err
	}
	return nil
}

// Pool-style reads used by costing outside a unit of work.

func (s *Store) OnHand(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{s: s}).OnHand(ctx, storeID, productID, asOf)
}

func (s *Store) WeightedAverageCost(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{s: s}).WeightedAverageCost(ctx, storeID, productID, asOf)
}

func (s *Store) MostRecentReceiveCost(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{s: s}).MostRecentReceiveCost(ctx, storeID, productID, asOf)
}

func (s *Store) GetTransaction(ctx context.Context, storeID, id int64) (ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{s: s}).GetTransaction(ctx, storeID, id)
}

type txView struct {
	s *Store
}

func (v *txView) InsertTransaction(_ context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	v.s.nextTxID++
	t.ID = v.s.nextTxID
	t.OccurredAt = t.OccurredAt.UTC()
	t.CreatedAt = time.Now().UTC()
	v.s.Transactions = append(v.s.Transactions, t)
	return t, nil
}

func (v *txView) GetTransaction(_ context.Context, storeID, id int64) (ledger.Transaction, error) {
	for _, t := range v.s.Transactions {
		if t.StoreID == storeID && t.ID == id {
			return t, nil
		}
	}
	return ledger.Transaction{}, shared.NotFound("ledger.get", "inventory transaction %d", id)
}

func (v *txView) GetTransactionForUpdate(ctx context.Context, storeID, id int64) (ledger.Transaction, error) {
	return v.GetTransaction(ctx, storeID, id)
}

func (v *txView) UpdateTransactionStatus(_ context.Context, t ledger.Transaction) error {
	for i := range v.s.Transactions {
		row := &v.s.Transactions[i]
		if row.StoreID == t.StoreID && row.ID == t.ID {
			if row.Status == ledger.StatusPosted {
				return shared.Lifecycle("ledger.transition", "transaction %d is posted or missing", t.ID)
			}
			row.Status = t.Status
			row.ApprovedBy, row.ApprovedAt = t.ApprovedBy, t.ApprovedAt
			row.PostedBy, row.PostedAt = t.PostedBy, t.PostedAt
			return nil
		}
	}
	return shared.Lifecycle("ledger.transition", "transaction %d is posted or missing", t.ID)
}

func (v *txView) DeleteTransaction(_ context.Context, storeID, id int64) error {
	for i := range v.s.Transactions {
		row := v.s.Transactions[i]
		if row.StoreID == storeID && row.ID == id {
			if !ledger.CanDelete(row.Status) {
				return shared.Lifecycle("ledger.delete", "transaction %d is posted or missing", id)
			}
			v.s.Transactions = append(v.s.Transactions[:i], v.s.Transactions[i+1:]...)
			return nil
		}
	}
	return shared.Lifecycle("ledger.delete", "transaction %d is posted or missing", id)
}

func (v *txView) FindBySaleLine(_ context.Context, storeID, saleID, saleLineID int64) (*ledger.Transaction, error) {
	for _, t := range v.s.Transactions {
		if t.StoreID == storeID && t.SaleID != nil && *t.SaleID == saleID && t.SaleLineID != nil && *t.SaleLineID == saleLineID {
			row := t
			return &row, nil
		}
	}
	return nil, nil
}

func (v *txView) OnHand(_ context.Context, storeID, productID int64, asOf time.Time) (int64, error) {
	asOf = boundAsOf(asOf)
	var qty int64
	for _, t := range v.s.Transactions {
		if t.StoreID == storeID && t.ProductID == productID && t.Status == ledger.StatusPosted && !t.OccurredAt.After(asOf) {
			qty += t.QuantityDelta
		}
	}
	return qty, nil
}

func (v *txView) WeightedAverageCost(_ context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error) {
	asOf = boundAsOf(asOf)
	var totalCost, totalQty int64
	for _, t := range v.s.Transactions {
		if t.StoreID == storeID && t.ProductID == productID && t.Type == ledger.TxReceive && t.Status == ledger.StatusPosted && !t.OccurredAt.After(asOf) && t.UnitCostCents != nil {
			totalCost += t.QuantityDelta * *t.UnitCostCents
			totalQty += t.QuantityDelta
		}
	}
	return ledger.WeightedAverage(totalCost, totalQty)
}

func (v *txView) MostRecentReceiveCost(_ context.Context, storeID, productID int64, asOf time.Time) (int64, bool, error) {
	asOf = boundAsOf(asOf)
	var cost int64
	found := false
	var latest time.Time
	for _, t := range v.s.Transactions {
		if t.StoreID == storeID && t.ProductID == productID && t.Type == ledger.TxReceive && t.Status == ledger.StatusPosted && !t.OccurredAt.After(asOf) && t.UnitCostCents != nil {
			if !found || t.OccurredAt.After(latest) || t.OccurredAt.Equal(latest) {
				cost = *t.UnitCostCents
				latest = t.OccurredAt
				found = true
			}
		}
	}
	return cost, found, nil
}

func (v *txView) LockProductStock(context.Context, int64, int64) error {
	// the store mutex already serialises units of work
	return nil
}

func (v *txView) AppendEvent(_ context.Context, ev ledger.Event) (ledger.Event, error) {
	v.s.nextEventID++
	ev.ID = v.s.nextEventID
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	v.s.Events = append(v.s.Events, ev)
	return ev, nil
}

func boundAsOf(asOf time.Time) time.Time {
	if asOf.IsZero() {
		return time.Now().UTC()
	}
	return asOf.UTC()
}
