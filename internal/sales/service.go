package sales

import (
	"context"
	"strconv"
	"time"

	"github.com/meridian-retail/meridian/internal/catalog"
	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/shared"
)

// RepositoryPort abstracts sale storage for the services.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, storeID, saleID int64) (Sale, error)
	ListPayments(ctx context.Context, storeID, saleID int64) ([]Payment, error)
	TenderTotals(ctx context.Context, storeID, registerSessionID int64) (map[TenderType]int64, error)
}

// TxRepository is the transactional surface shared by sale posting and
// payment reconciliation; Ledger exposes the inventory/audit ledger bound
// to the same unit of work.
type TxRepository interface {
	Ledger() ledger.TxStore
	InsertSale(ctx context.Context, s Sale) (Sale, error)
	InsertSaleLine(ctx context.Context, l SaleLine) (SaleLine, error)
	GetSaleForUpdate(ctx context.Context, storeID, saleID int64) (Sale, error)
	ListSaleLines(ctx context.Context, saleID int64) ([]SaleLine, error)
	SetLineInventoryTx(ctx context.Context, lineID, inventoryTxID int64) error
	UpdateSale(ctx context.Context, s Sale) (Sale, error)
	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	GetPaymentForUpdate(ctx context.Context, storeID, paymentID int64) (Payment, error)
	UpdatePayment(ctx context.Context, p Payment) error
	ListPayments(ctx context.Context, saleID int64) ([]Payment, error)
	InsertPaymentTransaction(ctx context.Context, t PaymentTransaction) (PaymentTransaction, error)
	RefundTotal(ctx context.Context, saleID int64) (int64, error)
	RefundTotalForPayment(ctx context.Context, paymentID int64) (int64, error)
}

// CatalogPort resolves products before any write.
type CatalogPort interface {
	RequireActive(ctx context.Context, storeID, productID int64) (catalog.Product, error)
}

// SequencePort allocates sale document codes.
type SequencePort interface {
	Next(ctx context.Context, storeID int64, docType, prefix string) (string, int64, error)
}

// Config groups optional service settings.
type Config struct {
	Retry      shared.RetryPolicy
	Now        shared.NowFunc
	FutureSkew time.Duration
}

// Service coordinates the sale document lifecycle.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	seq     SequencePort
	retry   shared.RetryPolicy
	now     shared.NowFunc
	skew    time.Duration
}

// NewService builds Service.
func NewService(repo RepositoryPort, catalogPort CatalogPort, seq SequencePort, cfg Config) *Service {
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
	return &Service{repo: repo, catalog: catalogPort, seq: seq, retry: retry, now: now, skew: skew}
}

// CreateDraft captures a sale with its lines in DRAFT. No stock moves and
// no audit event is appended until the sale posts.
func (s *Service) CreateDraft(ctx context.Context, in DraftSaleInput) (Sale, error) {
	const op = "sales.draft"
	if len(in.Lines) == 0 {
		return Sale{}, shared.Validation(op, "at least one line required")
	}
	var totalDue int64
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return Sale{}, shared.Validation(op, "line quantity must be positive")
		}
		if line.UnitPriceCents < 0 {
			return Sale{}, shared.Validation(op, "line unit price must be >= 0")
		}
		if _, err := s.catalog.RequireActive(ctx, in.StoreID, line.ProductID); err != nil {
			return Sale{}, err
		}
		totalDue += line.Quantity * line.UnitPriceCents
	}
	code, _, err := s.seq.Next(ctx, in.StoreID, "SALE", "SAL")
	if err != nil {
		return Sale{}, err
	}

	var created Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertSale(ctx, Sale{
			StoreID:           in.StoreID,
			Code:              code,
			Status:            SaleDraft,
			PaymentStatus:     PaymentUnpaid,
			TotalDueCents:     totalDue,
			RegisterSessionID: in.RegisterSessionID,
			CreatedBy:         in.ActorID,
		})
		if err != nil {
			return err
		}
		for _, line := range in.Lines {
			inserted, err := tx.InsertSaleLine(ctx, SaleLine{
				SaleID:         created.ID,
				StoreID:        in.StoreID,
				ProductID:      line.ProductID,
				Quantity:       line.Quantity,
				UnitPriceCents: line.UnitPriceCents,
				LineTotalCents: line.Quantity * line.UnitPriceCents,
			})
			if err != nil {
				return err
			}
			created.Lines = append(created.Lines, inserted)
		}
		return nil
	})
	return created, err
}

// PostSale finalises a DRAFT sale: one POSTED SALE ledger row per line with
// the WAC snapshot, in line order, inside one unit of work. Posting an
// already POSTED sale returns it unchanged, which makes the call safe to
// retry after a client-side timeout.
func (s *Service) PostSale(ctx context.Context, storeID, saleID, actorID int64, occurredAt time.Time) (Sale, error) {
	const op = "sales.post"
	at, err := shared.NormalizeOccurredAt(op, s.now(), occurredAt, s.skew)
	if err != nil {
		return Sale{}, err
	}
	var posted Sale
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			sale, err := tx.GetSaleForUpdate(ctx, storeID, saleID)
			if err != nil {
				return err
			}
			if sale.Status == SalePosted {
				posted = sale
				return nil
			}
			if sale.Status == SaleVoided {
				return shared.Lifecycle(op, "cannot post a voided sale")
			}
			if err := postSaleLocked(ctx, tx, &sale, actorID, at, s.now().UTC()); err != nil {
				return err
			}
			posted = sale
			return nil
		})
	})
	return posted, err
}

// postSaleLocked posts every line of a DRAFT sale. The caller must hold the
// sale row lock. Shared with payment reconciliation, where the first
// payment implicitly finalises inventory posting.
func postSaleLocked(ctx context.Context, tx TxRepository, sale *Sale, actorID int64, at, now time.Time) error {
	const op = "sales.post"
	lines, err := tx.ListSaleLines(ctx, sale.ID)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return shared.Validation(op, "sale %d has no lines", sale.ID)
	}
	for i := range lines {
		if err := postLineLocked(ctx, tx, sale, &lines[i], actorID, at, now); err != nil {
			return err
		}
	}
	sale.Lines = lines
	sale.Status = SalePosted
	postedAt := now
	sale.PostedAt = &postedAt
	updated, err := tx.UpdateSale(ctx, *sale)
	if err != nil {
		return err
	}
	*sale = updated
	sale.Lines = lines
	if _, err := tx.Ledger().AppendEvent(ctx, ledger.Event{
		StoreID:    sale.StoreID,
		EventType:  ledger.EventSalePosted,
		EntityType: "sale",
		EntityID:   strconv.FormatInt(sale.ID, 10),
		SaleID:     &sale.ID,
		ActorID:    actorID,
		OccurredAt: at,
	}); err != nil {
		return err
	}
	return nil
}

// postLineLocked creates the line's inventory transaction exactly once,
// idempotent on (store, sale, line).
func postLineLocked(ctx context.Context, tx TxRepository, sale *Sale, line *SaleLine, actorID int64, at, now time.Time) error {
	const op = "sales.post"
	existing, err := tx.Ledger().FindBySaleLine(ctx, sale.StoreID, sale.ID, line.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Type != ledger.TxSale || existing.ProductID != line.ProductID {
			return shared.Conflict(op, "ledger row for sale %d line %d does not match the line", sale.ID, line.ID)
		}
		if line.InventoryTxID == nil {
			if err := tx.SetLineInventoryTx(ctx, line.ID, existing.ID); err != nil {
				return err
			}
			line.InventoryTxID = &existing.ID
		}
		return nil
	}

	if err := tx.Ledger().LockProductStock(ctx, sale.StoreID, line.ProductID); err != nil {
		return err
	}
	onHand, err := tx.Ledger().OnHand(ctx, sale.StoreID, line.ProductID, at)
	if err != nil {
		return err
	}
	if onHand-line.Quantity < 0 {
		return shared.Conflict(op, "insufficient stock for product %d: have %d, need %d", line.ProductID, onHand, line.Quantity)
	}
	wac, ok, err := tx.Ledger().WeightedAverageCost(ctx, sale.StoreID, line.ProductID, at)
	if err != nil {
		return err
	}
	if !ok {
		return shared.Conflict(op, "no cost basis for product %d: no receive history", line.ProductID)
	}
	cogs := wac * line.Quantity
	row, err := tx.Ledger().InsertTransaction(ctx, ledger.NewPosted(ledger.Transaction{
		StoreID:             sale.StoreID,
		ProductID:           line.ProductID,
		Type:                ledger.TxSale,
		QuantityDelta:       -line.Quantity,
		UnitCostCentsAtSale: &wac,
		COGSCents:           &cogs,
		SaleID:              &sale.ID,
		SaleLineID:          &line.ID,
		OccurredAt:          at,
	}, actorID, now))
	if err != nil {
		return err
	}
	if err := tx.SetLineInventoryTx(ctx, line.ID, row.ID); err != nil {
		return err
	}
	line.InventoryTxID = &row.ID
	_, err = tx.Ledger().AppendEvent(ctx, ledger.Event{
		StoreID:    sale.StoreID,
		EventType:  ledger.EventSaleLinePosted,
		EntityType: "inventory_transaction",
		EntityID:   strconv.FormatInt(row.ID, 10),
		SaleID:     &sale.ID,
		ActorID:    actorID,
		OccurredAt: at,
	})
	return err
}

// VoidSale reverses a POSTED sale in full: one SALE_VOID row per line at the
// original cost snapshot, every completed payment voided, sale marked
// VOIDED. If any line lacks its ledger link the whole void fails before any
// write.
func (s *Service) VoidSale(ctx context.Context, storeID, saleID, actorID int64, reason string) (Sale, error) {
	const op = "sales.void"
	var voided Sale
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			sale, err := tx.GetSaleForUpdate(ctx, storeID, saleID)
			if err != nil {
				return err
			}
			switch sale.Status {
			case SaleDraft:
				return shared.Lifecycle(op, "cannot void a draft sale; delete or abandon it instead")
			case SaleVoided:
				return shared.Conflict(op, "sale %d is already voided", saleID)
			}
			lines, err := tx.ListSaleLines(ctx, sale.ID)
			if err != nil {
				return err
			}
			for _, line := range lines {
				if line.InventoryTxID == nil {
					return shared.Conflict(op, "sale %d line %d has no inventory transaction link", saleID, line.ID)
				}
			}
			now := s.now().UTC()
			for _, line := range lines {
				orig, err := tx.Ledger().GetTransaction(ctx, storeID, *line.InventoryTxID)
				if err != nil {
					return err
				}
				if orig.UnitCostCentsAtSale == nil || orig.COGSCents == nil {
					return shared.Conflict(op, "sale %d line %d has no cost snapshot", saleID, line.ID)
				}
				// reverse at the original snapshot, never current WAC
				costAtSale := *orig.UnitCostCentsAtSale
				reversedCOGS := -*orig.COGSCents
				row, err := tx.Ledger().InsertTransaction(ctx, ledger.NewPosted(ledger.Transaction{
					StoreID:             storeID,
					ProductID:           orig.ProductID,
					Type:                ledger.TxSaleVoid,
					QuantityDelta:       -orig.QuantityDelta,
					UnitCostCentsAtSale: &costAtSale,
					COGSCents:           &reversedCOGS,
					SaleID:              &sale.ID,
					Note:                reason,
					OccurredAt:          now,
				}, actorID, now))
				if err != nil {
					return err
				}
				if _, err := tx.Ledger().AppendEvent(ctx, ledger.Event{
					StoreID:    storeID,
					EventType:  ledger.EventSaleVoided,
					EntityType: "inventory_transaction",
					EntityID:   strconv.FormatInt(row.ID, 10),
					SaleID:     &sale.ID,
					ActorID:    actorID,
					Note:       reason,
					OccurredAt: now,
				}); err != nil {
					return err
				}
			}
			payments, err := tx.ListPayments(ctx, sale.ID)
			if err != nil {
				return err
			}
			for i := range payments {
				if payments[i].Status != PaymentCompleted {
					continue
				}
				if err := voidPaymentLocked(ctx, tx, &payments[i], actorID, reason, now); err != nil {
					return err
				}
			}
			sale.Status = SaleVoided
			sale.PaymentStatus = PaymentVoided
			sale.TotalPaidCents = 0
			sale.ChangeDueCents = 0
			sale.VoidedAt = &now
			sale.VoidReason = reason
			updated, err := tx.UpdateSale(ctx, sale)
			if err != nil {
				return err
			}
			updated.Lines = lines
			voided = updated
			return nil
		})
	})
	return voided, err
}

// GetSale returns the sale with its lines.
func (s *Service) GetSale(ctx context.Context, storeID, saleID int64) (Sale, error) {
	return s.repo.GetSale(ctx, storeID, saleID)
}
