package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-retail/meridian/internal/catalog"
	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/ledger/ledgertest"
	"github.com/meridian-retail/meridian/internal/shared"
)

// memoryRepo backs the services with in-memory state sharing one unit of
// work with an in-memory ledger, including rollback on failure.
type memoryRepo struct {
	ledgerStore *ledgertest.Store

	nextSaleID    int64
	nextLineID    int64
	nextPaymentID int64
	nextPayTxID   int64
	Sales         []Sale
	SaleLines     []SaleLine
	Payments      []Payment
	PayTxs        []PaymentTransaction
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{ledgerStore: ledgertest.NewStore()}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	sales := append([]Sale(nil), m.Sales...)
	lines := append([]SaleLine(nil), m.SaleLines...)
	payments := append([]Payment(nil), m.Payments...)
	payTxs := append([]PaymentTransaction(nil), m.PayTxs...)
	saleID, lineID, paymentID, payTxID := m.nextSaleID, m.nextLineID, m.nextPaymentID, m.nextPayTxID

	err := m.ledgerStore.WithTx(ctx, func(ctx context.Context, ls ledger.TxStore) error {
		return fn(ctx, &memTx{repo: m, ledger: ls})
	})
	if err != nil {
		m.Sales, m.SaleLines, m.Payments, m.PayTxs = sales, lines, payments, payTxs
		m.nextSaleID, m.nextLineID, m.nextPaymentID, m.nextPayTxID = saleID, lineID, paymentID, payTxID
	}
	return err
}

func (m *memoryRepo) GetSale(_ context.Context, storeID, saleID int64) (Sale, error) {
	for _, s := range m.Sales {
		if s.StoreID == storeID && s.ID == saleID {
			for _, l := range m.SaleLines {
				if l.SaleID == saleID {
					s.Lines = append(s.Lines, l)
				}
			}
			return s, nil
		}
	}
	return Sale{}, shared.NotFound("sales.get", "sale %d", saleID)
}

func (m *memoryRepo) ListPayments(_ context.Context, storeID, saleID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range m.Payments {
		if p.StoreID == storeID && p.SaleID == saleID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memoryRepo) TenderTotals(_ context.Context, storeID, registerSessionID int64) (map[TenderType]int64, error) {
	out := make(map[TenderType]int64)
	for _, p := range m.Payments {
		if p.StoreID == storeID && p.RegisterSessionID != nil && *p.RegisterSessionID == registerSessionID && p.Status == PaymentCompleted {
			out[p.Tender] += p.AppliedCents()
		}
	}
	return out, nil
}

type memTx struct {
	repo   *memoryRepo
	ledger ledger.TxStore
}

func (t *memTx) Ledger() ledger.TxStore { return t.ledger }

func (t *memTx) InsertSale(_ context.Context, s Sale) (Sale, error) {
	t.repo.nextSaleID++
	s.ID = t.repo.nextSaleID
	s.Version = 1
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	s.Lines = nil
	t.repo.Sales = append(t.repo.Sales, s)
	return s, nil
}

func (t *memTx) InsertSaleLine(_ context.Context, l SaleLine) (SaleLine, error) {
	t.repo.nextLineID++
	l.ID = t.repo.nextLineID
	t.repo.SaleLines = append(t.repo.SaleLines, l)
	return l, nil
}

func (t *memTx) GetSaleForUpdate(_ context.Context, storeID, saleID int64) (Sale, error) {
	for _, s := range t.repo.Sales {
		if s.StoreID == storeID && s.ID == saleID {
			return s, nil
		}
	}
	return Sale{}, shared.NotFound("sales.get", "sale %d", saleID)
}

func (t *memTx) ListSaleLines(_ context.Context, saleID int64) ([]SaleLine, error) {
	var out []SaleLine
	for _, l := range t.repo.SaleLines {
		if l.SaleID == saleID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (t *memTx) SetLineInventoryTx(_ context.Context, lineID, inventoryTxID int64) error {
	for i := range t.repo.SaleLines {
		if t.repo.SaleLines[i].ID == lineID {
			id := inventoryTxID
			t.repo.SaleLines[i].InventoryTxID = &id
			return nil
		}
	}
	return shared.NotFound("sales.line", "sale line %d", lineID)
}

func (t *memTx) UpdateSale(_ context.Context, s Sale) (Sale, error) {
	for i := range t.repo.Sales {
		row := &t.repo.Sales[i]
		if row.StoreID == s.StoreID && row.ID == s.ID {
			if row.Version != s.Version {
				return Sale{}, shared.TransientConflict("sales.update", "sale %d was modified concurrently", s.ID)
			}
			row.Status = s.Status
			row.PaymentStatus = s.PaymentStatus
			row.TotalPaidCents = s.TotalPaidCents
			row.ChangeDueCents = s.ChangeDueCents
			row.PostedAt = s.PostedAt
			row.VoidedAt = s.VoidedAt
			row.VoidReason = s.VoidReason
			row.Version++
			row.UpdatedAt = time.Now().UTC()
			out := *row
			out.Lines = nil
			return out, nil
		}
	}
	return Sale{}, shared.NotFound("sales.get", "sale %d", s.ID)
}

func (t *memTx) InsertPayment(_ context.Context, p Payment) (Payment, error) {
	t.repo.nextPaymentID++
	p.ID = t.repo.nextPaymentID
	p.CreatedAt = time.Now().UTC()
	t.repo.Payments = append(t.repo.Payments, p)
	return p, nil
}

func (t *memTx) GetPaymentForUpdate(_ context.Context, storeID, paymentID int64) (Payment, error) {
	for _, p := range t.repo.Payments {
		if p.StoreID == storeID && p.ID == paymentID {
			return p, nil
		}
	}
	return Payment{}, shared.NotFound("payments.get", "payment %d", paymentID)
}

func (t *memTx) UpdatePayment(_ context.Context, p Payment) error {
	for i := range t.repo.Payments {
		if t.repo.Payments[i].StoreID == p.StoreID && t.repo.Payments[i].ID == p.ID {
			t.repo.Payments[i].Status = p.Status
			t.repo.Payments[i].VoidedAt = p.VoidedAt
			t.repo.Payments[i].VoidReason = p.VoidReason
			return nil
		}
	}
	return shared.NotFound("payments.get", "payment %d", p.ID)
}

func (t *memTx) ListPayments(_ context.Context, saleID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range t.repo.Payments {
		if p.SaleID == saleID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memTx) InsertPaymentTransaction(_ context.Context, p PaymentTransaction) (PaymentTransaction, error) {
	t.repo.nextPayTxID++
	p.ID = t.repo.nextPayTxID
	p.CreatedAt = time.Now().UTC()
	t.repo.PayTxs = append(t.repo.PayTxs, p)
	return p, nil
}

func (t *memTx) RefundTotal(_ context.Context, saleID int64) (int64, error) {
	var total int64
	for _, tx := range t.repo.PayTxs {
		if tx.SaleID == saleID && tx.Type == PayTxRefund {
			total -= tx.AmountCents
		}
	}
	return total, nil
}

func (t *memTx) RefundTotalForPayment(_ context.Context, paymentID int64) (int64, error) {
	var total int64
	for _, tx := range t.repo.PayTxs {
		if tx.PaymentID == paymentID && tx.Type == PayTxRefund {
			total -= tx.AmountCents
		}
	}
	return total, nil
}

type staticCatalog struct {
	inactive map[int64]bool
}

func (c staticCatalog) RequireActive(_ context.Context, storeID, productID int64) (catalog.Product, error) {
	if c.inactive[productID] {
		return catalog.Product{}, shared.Conflict("catalog.require", "product %d is inactive", productID)
	}
	return catalog.Product{ID: productID, StoreID: storeID, Active: true}, nil
}

type fakeSeq struct {
	n int64
}

func (s *fakeSeq) Next(_ context.Context, storeID int64, _, prefix string) (string, int64, error) {
	s.n++
	return fmt.Sprintf("%s-%d-%04d", prefix, storeID, s.n), s.n, nil
}
