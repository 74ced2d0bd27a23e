package sales

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/shared"
)

func newSaleService(repo *memoryRepo) *Service {
	return NewService(repo, staticCatalog{}, &fakeSeq{}, Config{
		Retry: shared.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond},
	})
}

func seedReceive(t *testing.T, repo *memoryRepo, storeID, productID, qty, unitCost int64, at time.Time) {
	t.Helper()
	err := repo.ledgerStore.WithTx(context.Background(), func(ctx context.Context, ls ledger.TxStore) error {
		_, err := ls.InsertTransaction(ctx, ledger.NewPosted(ledger.Transaction{
			StoreID:       storeID,
			ProductID:     productID,
			Type:          ledger.TxReceive,
			QuantityDelta: qty,
			UnitCostCents: &unitCost,
			OccurredAt:    at,
		}, 1, at))
		return err
	})
	require.NoError(t, err)
}

func draftOneLine(t *testing.T, svc *Service, storeID, productID, qty, price int64) Sale {
	t.Helper()
	sale, err := svc.CreateDraft(context.Background(), DraftSaleInput{
		StoreID: storeID,
		ActorID: 7,
		Lines:   []DraftLineInput{{ProductID: productID, Quantity: qty, UnitPriceCents: price}},
	})
	require.NoError(t, err)
	return sale
}

func TestCreateDraftValidation(t *testing.T) {
	svc := newSaleService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateDraft(ctx, DraftSaleInput{StoreID: 1})
	require.True(t, shared.IsKind(err, shared.KindValidation))

	_, err = svc.CreateDraft(ctx, DraftSaleInput{StoreID: 1, Lines: []DraftLineInput{{ProductID: 10, Quantity: 0, UnitPriceCents: 100}}})
	require.True(t, shared.IsKind(err, shared.KindValidation))

	_, err = svc.CreateDraft(ctx, DraftSaleInput{StoreID: 1, Lines: []DraftLineInput{{ProductID: 10, Quantity: 1, UnitPriceCents: -1}}})
	require.True(t, shared.IsKind(err, shared.KindValidation))
}

func TestCreateDraftWritesNoLedgerRows(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)

	sale := draftOneLine(t, svc, 1, 10, 2, 1500)
	require.Equal(t, SaleDraft, sale.Status)
	require.Equal(t, "SAL-1-0001", sale.Code)
	require.Equal(t, int64(3000), sale.TotalDueCents)
	require.Len(t, sale.Lines, 1)
	require.Empty(t, repo.ledgerStore.Transactions)
	require.Empty(t, repo.ledgerStore.Events)
}

func TestPostSaleSnapshotsCostBasis(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	ctx := context.Background()

	day1 := time.Now().Add(-48 * time.Hour)
	seedReceive(t, repo, 1, 10, 10, 500, day1)
	seedReceive(t, repo, 1, 10, 10, 1000, day1.Add(time.Hour))

	sale := draftOneLine(t, svc, 1, 10, 2, 2000)
	posted, err := svc.PostSale(ctx, 1, sale.ID, 7, time.Time{})
	require.NoError(t, err)
	require.Equal(t, SalePosted, posted.Status)
	require.NotNil(t, posted.PostedAt)
	require.NotNil(t, posted.Lines[0].InventoryTxID)

	row, err := repo.ledgerStore.GetTransaction(ctx, 1, *posted.Lines[0].InventoryTxID)
	require.NoError(t, err)
	require.Equal(t, ledger.TxSale, row.Type)
	require.Equal(t, int64(-2), row.QuantityDelta)
	require.Equal(t, int64(750), *row.UnitCostCentsAtSale)
	require.Equal(t, int64(1500), *row.COGSCents)
	require.Equal(t, ledger.StatusPosted, row.Status)

	onHand, err := repo.ledgerStore.OnHand(ctx, 1, 10, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(18), onHand)
}

func TestPostSaleIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	ctx := context.Background()

	seedReceive(t, repo, 1, 10, 10, 500, time.Now().Add(-time.Hour))
	sale := draftOneLine(t, svc, 1, 10, 3, 1000)

	first, err := svc.PostSale(ctx, 1, sale.ID, 7, time.Time{})
	require.NoError(t, err)
	rows := len(repo.ledgerStore.Transactions)

	second, err := svc.PostSale(ctx, 1, sale.ID, 7, time.Time{})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, SalePosted, second.Status)
	require.Len(t, repo.ledgerStore.Transactions, rows)

	onHand, err := repo.ledgerStore.OnHand(ctx, 1, 10, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(7), onHand)
}

func TestPostSaleRejectsOversell(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	ctx := context.Background()

	seedReceive(t, repo, 1, 10, 2, 500, time.Now().Add(-time.Hour))
	sale := draftOneLine(t, svc, 1, 10, 5, 1000)
	seeded := len(repo.ledgerStore.Transactions)

	_, err := svc.PostSale(ctx, 1, sale.ID, 7, time.Time{})
	require.True(t, shared.IsKind(err, shared.KindConflict))

	// whole unit of work rolled back: no partial rows, sale still DRAFT
	require.Len(t, repo.ledgerStore.Transactions, seeded)
	require.Empty(t, repo.ledgerStore.Events)
	got, err := svc.GetSale(ctx, 1, sale.ID)
	require.NoError(t, err)
	require.Equal(t, SaleDraft, got.Status)
}

func TestPostSaleRequiresCostBasis(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	ctx := context.Background()

	// stock via adjustment only: on-hand positive, but no receive history
	err := repo.ledgerStore.WithTx(ctx, func(ctx context.Context, ls ledger.TxStore) error {
		_, err := ls.InsertTransaction(ctx, ledger.NewPosted(ledger.Transaction{
			StoreID: 1, ProductID: 10, Type: ledger.TxAdjust, QuantityDelta: 5,
			OccurredAt: time.Now().Add(-time.Hour),
		}, 1, time.Now()))
		return err
	})
	require.NoError(t, err)

	sale := draftOneLine(t, svc, 1, 10, 1, 1000)
	_, err = svc.PostSale(ctx, 1, sale.ID, 7, time.Time{})
	require.True(t, shared.IsKind(err, shared.KindConflict))
}

func TestVoidSaleReversesAtOriginalCost(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	ctx := context.Background()

	day1 := time.Now().Add(-72 * time.Hour)
	seedReceive(t, repo, 1, 10, 10, 500, day1)

	sale := draftOneLine(t, svc, 1, 10, 2, 1000)
	posted, err := svc.PostSale(ctx, 1, sale.ID, 7, time.Time{})
	require.NoError(t, err)
	require.Equal(t, SalePosted, posted.Status)

	// later receives move WAC to 800; the void must not use it
	seedReceive(t, repo, 1, 10, 10, 1100, time.Now().Add(-time.Minute))

	voided, err := svc.VoidSale(ctx, 1, sale.ID, 9, "customer return")
	require.NoError(t, err)
	require.Equal(t, SaleVoided, voided.Status)
	require.Equal(t, PaymentVoided, voided.PaymentStatus)
	require.NotNil(t, voided.VoidedAt)

	var reversal *ledger.Transaction
	for i := range repo.ledgerStore.Transactions {
		if repo.ledgerStore.Transactions[i].Type == ledger.TxSaleVoid {
			reversal = &repo.ledgerStore.Transactions[i]
		}
	}
	require.NotNil(t, reversal)
	require.Equal(t, int64(2), reversal.QuantityDelta)
	require.Equal(t, int64(500), *reversal.UnitCostCentsAtSale)
	require.Equal(t, int64(-1000), *reversal.COGSCents)

	onHand, err := repo.ledgerStore.OnHand(ctx, 1, 10, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(20), onHand)
}

func TestVoidSaleLifecycleGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	ctx := context.Background()

	seedReceive(t, repo, 1, 10, 10, 500, time.Now().Add(-time.Hour))
	sale := draftOneLine(t, svc, 1, 10, 1, 1000)

	_, err := svc.VoidSale(ctx, 1, sale.ID, 9, "oops")
	require.True(t, shared.IsKind(err, shared.KindLifecycle))

	_, err = svc.PostSale(ctx, 1, sale.ID, 7, time.Time{})
	require.NoError(t, err)
	_, err = svc.VoidSale(ctx, 1, sale.ID, 9, "return")
	require.NoError(t, err)

	_, err = svc.VoidSale(ctx, 1, sale.ID, 9, "again")
	require.True(t, shared.IsKind(err, shared.KindConflict))

	_, err = svc.PostSale(ctx, 1, sale.ID, 7, time.Time{})
	require.True(t, shared.IsKind(err, shared.KindLifecycle))
}

func TestVoidSaleVoidsCompletedPayments(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	pay := NewPaymentService(repo, Config{Retry: shared.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}})
	ctx := context.Background()

	seedReceive(t, repo, 1, 10, 10, 500, time.Now().Add(-time.Hour))
	sale := draftOneLine(t, svc, 1, 10, 2, 1000)

	payment, _, err := pay.AddPayment(ctx, AddPaymentInput{StoreID: 1, SaleID: sale.ID, Tender: TenderCash, AmountCents: 2000, ActorID: 7})
	require.NoError(t, err)

	voided, err := svc.VoidSale(ctx, 1, sale.ID, 9, "return")
	require.NoError(t, err)
	require.Equal(t, int64(0), voided.TotalPaidCents)

	payments, err := pay.ListPayments(ctx, 1, sale.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, PaymentReversed, payments[0].Status)
	require.Equal(t, payment.ID, payments[0].ID)
}
