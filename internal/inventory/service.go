package inventory

import (
	"context"
	"strconv"
	"time"

	"github.com/meridian-retail/meridian/internal/catalog"
	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/shared"
)

// LedgerPort is the slice of the ledger store the coordinator needs.
type LedgerPort interface {
	WithTx(ctx context.Context, fn func(context.Context, ledger.TxStore) error) error
	OnHand(ctx context.Context, storeID, productID int64, asOf time.Time) (int64, error)
	GetTransaction(ctx context.Context, storeID, id int64) (ledger.Transaction, error)
}

// CatalogPort resolves products before any write.
type CatalogPort interface {
	RequireActive(ctx context.Context, storeID, productID int64) (catalog.Product, error)
}

// Config groups optional service settings.
type Config struct {
	Retry      shared.RetryPolicy
	Now        shared.NowFunc
	FutureSkew time.Duration
}

// Service coordinates stock postings. Every operation validates its
// invariants, writes ledger rows and appends the audit event inside one
// atomic unit of work, retried on transient contention.
type Service struct {
	ledger  LedgerPort
	catalog CatalogPort
	retry   shared.RetryPolicy
	now     shared.NowFunc
	skew    time.Duration
}

// NewService builds Service.
func NewService(ledgerPort LedgerPort, catalogPort CatalogPort, cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	retry := cfg.Retry
	if retry.Attempts == 0 {
		retry = shared.DefaultRetryPolicy()
	}
	skew := cfg.FutureSkew
	if skew <= 0 {
		skew = shared.DefaultFutureSkew
	}
	return &Service{ledger: ledgerPort, catalog: catalogPort, retry: retry, now: now, skew: skew}
}

// Receive posts an inbound movement. Receives always increase stock, so no
// oversell check applies.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (ledger.Transaction, error) {
	const op = "inventory.receive"
	if in.Quantity <= 0 {
		return ledger.Transaction{}, shared.Validation(op, "quantity must be positive")
	}
	if in.UnitCostCents < 0 {
		return ledger.Transaction{}, shared.Validation(op, "unit cost must be >= 0")
	}
	occurredAt, err := shared.NormalizeOccurredAt(op, s.now(), in.OccurredAt, s.skew)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if _, err := s.catalog.RequireActive(ctx, in.StoreID, in.ProductID); err != nil {
		return ledger.Transaction{}, err
	}

	cost := in.UnitCostCents
	var posted ledger.Transaction
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
			if err := tx.LockProductStock(ctx, in.StoreID, in.ProductID); err != nil {
				return err
			}
			var err error
			posted, err = tx.InsertTransaction(ctx, ledger.NewPosted(ledger.Transaction{
				StoreID:       in.StoreID,
				ProductID:     in.ProductID,
				Type:          ledger.TxReceive,
				QuantityDelta: in.Quantity,
				UnitCostCents: &cost,
				Note:          in.Note,
				OccurredAt:    occurredAt,
			}, in.ActorID, s.now()))
			if err != nil {
				return err
			}
			return s.appendEvent(ctx, tx, ledger.EventReceivePosted, posted, in.ActorID, occurredAt)
		})
	})
	return posted, err
}

// Adjust posts a signed correction. The negative-on-hand guard is evaluated
// at the transaction's effective business time, so back-dated adjustments
// are checked against history as it stood then.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (ledger.Transaction, error) {
	const op = "inventory.adjust"
	if in.QuantityDelta == 0 {
		return ledger.Transaction{}, shared.Validation(op, "quantity delta must be non-zero")
	}
	occurredAt, err := shared.NormalizeOccurredAt(op, s.now(), in.OccurredAt, s.skew)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if _, err := s.catalog.RequireActive(ctx, in.StoreID, in.ProductID); err != nil {
		return ledger.Transaction{}, err
	}

	var posted ledger.Transaction
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
			if err := tx.LockProductStock(ctx, in.StoreID, in.ProductID); err != nil {
				return err
			}
			if err := s.guardOnHand(ctx, tx, op, in.StoreID, in.ProductID, in.QuantityDelta, occurredAt); err != nil {
				return err
			}
			var err error
			posted, err = tx.InsertTransaction(ctx, ledger.NewPosted(ledger.Transaction{
				StoreID:       in.StoreID,
				ProductID:     in.ProductID,
				Type:          ledger.TxAdjust,
				QuantityDelta: in.QuantityDelta,
				Note:          in.Note,
				OccurredAt:    occurredAt,
			}, in.ActorID, s.now()))
			if err != nil {
				return err
			}
			return s.appendEvent(ctx, tx, ledger.EventAdjustPosted, posted, in.ActorID, occurredAt)
		})
	})
	return posted, err
}

// Transfer ships stock out of one store and receives it into another in a
// single unit of work. Transfer rows never carry cost; WAC stays a pure
// function of each store's receive history.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (ledger.Transaction, ledger.Transaction, error) {
	const op = "inventory.transfer"
	if in.Quantity <= 0 {
		return ledger.Transaction{}, ledger.Transaction{}, shared.Validation(op, "quantity must be positive")
	}
	if in.SrcStoreID == in.DstStoreID {
		return ledger.Transaction{}, ledger.Transaction{}, shared.Validation(op, "source and destination store must differ")
	}
	occurredAt, err := shared.NormalizeOccurredAt(op, s.now(), in.OccurredAt, s.skew)
	if err != nil {
		return ledger.Transaction{}, ledger.Transaction{}, err
	}
	if _, err := s.catalog.RequireActive(ctx, in.SrcStoreID, in.ProductID); err != nil {
		return ledger.Transaction{}, ledger.Transaction{}, err
	}
	if _, err := s.catalog.RequireActive(ctx, in.DstStoreID, in.ProductID); err != nil {
		return ledger.Transaction{}, ledger.Transaction{}, err
	}

	var out, inbound ledger.Transaction
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
			// lock in a stable order to avoid lock cycles between stores
			first, second := in.SrcStoreID, in.DstStoreID
			if second < first {
				first, second = second, first
			}
			if err := tx.LockProductStock(ctx, first, in.ProductID); err != nil {
				return err
			}
			if err := tx.LockProductStock(ctx, second, in.ProductID); err != nil {
				return err
			}
			if err := s.guardOnHand(ctx, tx, op, in.SrcStoreID, in.ProductID, -in.Quantity, occurredAt); err != nil {
				return err
			}
			var err error
			out, err = tx.InsertTransaction(ctx, ledger.NewPosted(ledger.Transaction{
				StoreID:       in.SrcStoreID,
				ProductID:     in.ProductID,
				Type:          ledger.TxTransfer,
				QuantityDelta: -in.Quantity,
				Note:          in.Note,
				OccurredAt:    occurredAt,
			}, in.ActorID, s.now()))
			if err != nil {
				return err
			}
			inbound, err = tx.InsertTransaction(ctx, ledger.NewPosted(ledger.Transaction{
				StoreID:       in.DstStoreID,
				ProductID:     in.ProductID,
				Type:          ledger.TxTransfer,
				QuantityDelta: in.Quantity,
				Note:          in.Note,
				OccurredAt:    occurredAt,
			}, in.ActorID, s.now()))
			if err != nil {
				return err
			}
			if err := s.appendEvent(ctx, tx, ledger.EventTransferPosted, out, in.ActorID, occurredAt); err != nil {
				return err
			}
			return s.appendEvent(ctx, tx, ledger.EventTransferPosted, inbound, in.ActorID, occurredAt)
		})
	})
	return out, inbound, err
}

// PostCount writes a single COUNT_ADJUST row bringing on-hand to the
// counted quantity. Returns nil when the count matches and nothing was
// written.
func (s *Service) PostCount(ctx context.Context, in CountInput) (*ledger.Transaction, error) {
	const op = "inventory.count"
	if in.CountedQty < 0 {
		return nil, shared.Validation(op, "counted quantity must be >= 0")
	}
	occurredAt, err := shared.NormalizeOccurredAt(op, s.now(), in.OccurredAt, s.skew)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.RequireActive(ctx, in.StoreID, in.ProductID); err != nil {
		return nil, err
	}

	var posted *ledger.Transaction
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		posted = nil
		return s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
			if err := tx.LockProductStock(ctx, in.StoreID, in.ProductID); err != nil {
				return err
			}
			onHand, err := tx.OnHand(ctx, in.StoreID, in.ProductID, occurredAt)
			if err != nil {
				return err
			}
			delta := in.CountedQty - onHand
			if delta == 0 {
				return nil
			}
			row, err := tx.InsertTransaction(ctx, ledger.NewPosted(ledger.Transaction{
				StoreID:       in.StoreID,
				ProductID:     in.ProductID,
				Type:          ledger.TxCountAdjust,
				QuantityDelta: delta,
				Note:          in.Note,
				OccurredAt:    occurredAt,
			}, in.ActorID, s.now()))
			if err != nil {
				return err
			}
			posted = &row
			return s.appendEvent(ctx, tx, ledger.EventCountPosted, row, in.ActorID, occurredAt)
		})
	})
	return posted, err
}

// CreateDraft captures a manual receive or adjustment document in DRAFT.
// Drafts never aggregate and append no audit event; posting does.
func (s *Service) CreateDraft(ctx context.Context, in DraftInput) (ledger.Transaction, error) {
	const op = "inventory.draft"
	txType := ledger.TxType(in.Type)
	switch txType {
	case ledger.TxReceive:
		if in.QuantityDelta <= 0 {
			return ledger.Transaction{}, shared.Validation(op, "receive quantity must be positive")
		}
		if in.UnitCostCents == nil || *in.UnitCostCents < 0 {
			return ledger.Transaction{}, shared.Validation(op, "receive requires a unit cost >= 0")
		}
	case ledger.TxAdjust:
		if in.QuantityDelta == 0 {
			return ledger.Transaction{}, shared.Validation(op, "quantity delta must be non-zero")
		}
		if in.UnitCostCents != nil {
			return ledger.Transaction{}, shared.Validation(op, "adjustments must not carry a unit cost")
		}
	default:
		return ledger.Transaction{}, shared.Validation(op, "unsupported draft type %q", in.Type)
	}
	occurredAt, err := shared.NormalizeOccurredAt(op, s.now(), in.OccurredAt, s.skew)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if _, err := s.catalog.RequireActive(ctx, in.StoreID, in.ProductID); err != nil {
		return ledger.Transaction{}, err
	}

	var draft ledger.Transaction
	err = s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
		var err error
		draft, err = tx.InsertTransaction(ctx, ledger.Transaction{
			StoreID:       in.StoreID,
			ProductID:     in.ProductID,
			Type:          txType,
			QuantityDelta: in.QuantityDelta,
			UnitCostCents: in.UnitCostCents,
			Status:        ledger.StatusDraft,
			Note:          in.Note,
			OccurredAt:    occurredAt,
			CreatedBy:     in.ActorID,
		})
		return err
	})
	return draft, err
}

// Approve moves a DRAFT document to APPROVED.
func (s *Service) Approve(ctx context.Context, storeID, txID, actorID int64) (ledger.Transaction, error) {
	var approved ledger.Transaction
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
			row, err := tx.GetTransactionForUpdate(ctx, storeID, txID)
			if err != nil {
				return err
			}
			if err := row.Approve(actorID, s.now()); err != nil {
				return err
			}
			if err := tx.UpdateTransactionStatus(ctx, row); err != nil {
				return err
			}
			approved = row
			return nil
		})
	})
	return approved, err
}

// Post moves an APPROVED document to POSTED, re-evaluating the stock guard
// at the document's effective time and appending the audit event. POSTED is
// terminal; from here the row aggregates and never changes.
func (s *Service) Post(ctx context.Context, storeID, txID, actorID int64) (ledger.Transaction, error) {
	const op = "inventory.post"
	var posted ledger.Transaction
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
			row, err := tx.GetTransactionForUpdate(ctx, storeID, txID)
			if err != nil {
				return err
			}
			if err := tx.LockProductStock(ctx, row.StoreID, row.ProductID); err != nil {
				return err
			}
			if row.QuantityDelta < 0 {
				if err := s.guardOnHand(ctx, tx, op, row.StoreID, row.ProductID, row.QuantityDelta, row.OccurredAt); err != nil {
					return err
				}
			}
			if err := row.Post(actorID, s.now()); err != nil {
				return err
			}
			if err := tx.UpdateTransactionStatus(ctx, row); err != nil {
				return err
			}
			posted = row
			return s.appendEvent(ctx, tx, ledger.EventDocumentPosted, row, actorID, row.OccurredAt)
		})
	})
	return posted, err
}

// DeleteDraft removes a document that has not been posted yet.
func (s *Service) DeleteDraft(ctx context.Context, storeID, txID int64) error {
	return s.ledger.WithTx(ctx, func(ctx context.Context, tx ledger.TxStore) error {
		row, err := tx.GetTransactionForUpdate(ctx, storeID, txID)
		if err != nil {
			return err
		}
		if !ledger.CanDelete(row.Status) {
			return shared.Lifecycle("inventory.delete", "cannot delete transaction in state %s", row.Status)
		}
		return tx.DeleteTransaction(ctx, storeID, txID)
	})
}

func (s *Service) guardOnHand(ctx context.Context, tx ledger.TxStore, op string, storeID, productID, delta int64, asOf time.Time) error {
	onHand, err := tx.OnHand(ctx, storeID, productID, asOf)
	if err != nil {
		return err
	}
	if onHand+delta < 0 {
		return shared.Conflict(op, "would make on-hand negative: have %d, delta %d", onHand, delta)
	}
	return nil
}

func (s *Service) appendEvent(ctx context.Context, tx ledger.TxStore, eventType string, row ledger.Transaction, actorID int64, occurredAt time.Time) error {
	_, err := tx.AppendEvent(ctx, ledger.Event{
		StoreID:    row.StoreID,
		EventType:  eventType,
		EntityType: "inventory_transaction",
		EntityID:   strconv.FormatInt(row.ID, 10),
		ActorID:    actorID,
		Note:       row.Note,
		OccurredAt: occurredAt,
	})
	return err
}
