package sales

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-retail/meridian/internal/shared"
)

func newPaymentService(repo *memoryRepo) *PaymentService {
	return NewPaymentService(repo, Config{
		Retry: shared.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond},
	})
}

// postedSale seeds stock, drafts a one-line sale of qty*price and posts it.
func postedSale(t *testing.T, repo *memoryRepo, svc *Service, qty, price int64) Sale {
	t.Helper()
	seedReceive(t, repo, 1, 10, 100, 500, time.Now().Add(-time.Hour))
	sale := draftOneLine(t, svc, 1, 10, qty, price)
	posted, err := svc.PostSale(context.Background(), 1, sale.ID, 7, time.Time{})
	require.NoError(t, err)
	return posted
}

func TestAddPaymentCashChange(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	pay := newPaymentService(repo)
	ctx := context.Background()

	sale := postedSale(t, repo, svc, 3, 1000) // due 3000

	payment, updated, err := pay.AddPayment(ctx, AddPaymentInput{
		StoreID: 1, SaleID: sale.ID, Tender: TenderCash, AmountCents: 4000, ActorID: 7,
	})
	require.NoError(t, err)
	require.Equal(t, int64(4000), payment.AmountCents)
	require.Equal(t, int64(1000), payment.ChangeCents)
	require.Equal(t, int64(3000), payment.AppliedCents())
	require.Equal(t, int64(3000), updated.TotalPaidCents)
	require.Equal(t, int64(1000), updated.ChangeDueCents)
	require.Equal(t, PaymentPaid, updated.PaymentStatus)

	// the ledger row records the full tendered amount, not the applied one
	require.Len(t, repo.PayTxs, 1)
	require.Equal(t, PayTxPayment, repo.PayTxs[0].Type)
	require.Equal(t, int64(4000), repo.PayTxs[0].AmountCents)
}

func TestAddPaymentRejectsNonCashOverpay(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	pay := newPaymentService(repo)
	ctx := context.Background()

	sale := postedSale(t, repo, svc, 3, 1000)
	before := len(repo.Payments)

	_, _, err := pay.AddPayment(ctx, AddPaymentInput{
		StoreID: 1, SaleID: sale.ID, Tender: TenderCard, AmountCents: 4000, ActorID: 7,
	})
	require.True(t, shared.IsKind(err, shared.KindConflict))
	require.Len(t, repo.Payments, before)
	require.Empty(t, repo.PayTxs)

	got, err := svc.GetSale(ctx, 1, sale.ID)
	require.NoError(t, err)
	require.Equal(t, PaymentUnpaid, got.PaymentStatus)
	require.Equal(t, int64(0), got.TotalPaidCents)
}

func TestAddPaymentPartialThenPaid(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	pay := newPaymentService(repo)
	ctx := context.Background()

	sale := postedSale(t, repo, svc, 3, 1000)

	_, updated, err := pay.AddPayment(ctx, AddPaymentInput{StoreID: 1, SaleID: sale.ID, Tender: TenderCard, AmountCents: 1000, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, PaymentPartial, updated.PaymentStatus)
	require.Equal(t, int64(1000), updated.TotalPaidCents)

	// exact remainder on a non-cash tender is fine
	_, updated, err = pay.AddPayment(ctx, AddPaymentInput{StoreID: 1, SaleID: sale.ID, Tender: TenderTransfer, AmountCents: 2000, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, updated.PaymentStatus)
	require.Equal(t, int64(3000), updated.TotalPaidCents)
	require.Equal(t, int64(0), updated.ChangeDueCents)
}

func TestAddPaymentPostsDraftSale(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	pay := newPaymentService(repo)
	ctx := context.Background()

	seedReceive(t, repo, 1, 10, 10, 500, time.Now().Add(-time.Hour))
	sale := draftOneLine(t, svc, 1, 10, 2, 1000)
	require.Equal(t, SaleDraft, sale.Status)

	_, updated, err := pay.AddPayment(ctx, AddPaymentInput{StoreID: 1, SaleID: sale.ID, Tender: TenderCash, AmountCents: 2000, ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, SalePosted, updated.Status)
	require.Equal(t, PaymentPaid, updated.PaymentStatus)

	onHand, err := repo.ledgerStore.OnHand(ctx, 1, 10, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(8), onHand)
}

func TestAddPaymentValidation(t *testing.T) {
	repo := newMemoryRepo()
	pay := newPaymentService(repo)
	ctx := context.Background()

	_, _, err := pay.AddPayment(ctx, AddPaymentInput{StoreID: 1, SaleID: 1, Tender: TenderCash, AmountCents: 0})
	require.True(t, shared.IsKind(err, shared.KindValidation))

	_, _, err = pay.AddPayment(ctx, AddPaymentInput{StoreID: 1, SaleID: 1, Tender: "CHEQUE", AmountCents: 100})
	require.True(t, shared.IsKind(err, shared.KindValidation))

	_, _, err = pay.AddPayment(ctx, AddPaymentInput{StoreID: 1, SaleID: 99, Tender: TenderCash, AmountCents: 100})
	require.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestVoidPayment(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	pay := newPaymentService(repo)
	ctx := context.Background()

	sale := postedSale(t, repo, svc, 3, 1000)
	payment, _, err := pay.AddPayment(ctx, AddPaymentInput{StoreID: 1, SaleID: sale.ID, Tender: TenderCash, AmountCents: 4000, ActorID: 7})
	require.NoError(t, err)

	updated, err := pay.VoidPayment(ctx, 1, payment.ID, 9, "wrong tender")
	require.NoError(t, err)
	require.Equal(t, int64(0), updated.TotalPaidCents)
	require.Equal(t, int64(0), updated.ChangeDueCents)
	require.Equal(t, PaymentUnpaid, updated.PaymentStatus)

	// the reversal is an appended row mirroring the full tendered amount
	require.Len(t, repo.PayTxs, 2)
	require.Equal(t, PayTxVoid, repo.PayTxs[1].Type)
	require.Equal(t, int64(-4000), repo.PayTxs[1].AmountCents)

	_, err = pay.VoidPayment(ctx, 1, payment.ID, 9, "again")
	require.True(t, shared.IsKind(err, shared.KindConflict))
}

func TestRefundPayment(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	pay := newPaymentService(repo)
	ctx := context.Background()

	sale := postedSale(t, repo, svc, 3, 1000)
	payment, _, err := pay.AddPayment(ctx, AddPaymentInput{StoreID: 1, SaleID: sale.ID, Tender: TenderCard, AmountCents: 3000, ActorID: 7})
	require.NoError(t, err)

	updated, err := pay.RefundPayment(ctx, RefundInput{StoreID: 1, PaymentID: payment.ID, AmountCents: 1000, Reason: "damaged item", ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, int64(2000), updated.TotalPaidCents)
	require.Equal(t, PaymentPartial, updated.PaymentStatus)

	// refundable is applied minus already refunded
	_, err = pay.RefundPayment(ctx, RefundInput{StoreID: 1, PaymentID: payment.ID, AmountCents: 2500, ActorID: 9})
	require.True(t, shared.IsKind(err, shared.KindConflict))

	updated, err = pay.RefundPayment(ctx, RefundInput{StoreID: 1, PaymentID: payment.ID, AmountCents: 2000, ActorID: 9})
	require.NoError(t, err)
	require.Equal(t, int64(0), updated.TotalPaidCents)
	require.Equal(t, PaymentUnpaid, updated.PaymentStatus)

	_, err = pay.RefundPayment(ctx, RefundInput{StoreID: 1, PaymentID: payment.ID, AmountCents: 0, ActorID: 9})
	require.True(t, shared.IsKind(err, shared.KindValidation))
}

func TestRefundRejectsVoidedPayment(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	pay := newPaymentService(repo)
	ctx := context.Background()

	sale := postedSale(t, repo, svc, 1, 1000)
	payment, _, err := pay.AddPayment(ctx, AddPaymentInput{StoreID: 1, SaleID: sale.ID, Tender: TenderCash, AmountCents: 1000, ActorID: 7})
	require.NoError(t, err)
	_, err = pay.VoidPayment(ctx, 1, payment.ID, 9, "void")
	require.NoError(t, err)

	_, err = pay.RefundPayment(ctx, RefundInput{StoreID: 1, PaymentID: payment.ID, AmountCents: 500, ActorID: 9})
	require.True(t, shared.IsKind(err, shared.KindConflict))
}

func TestTenderSummary(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	pay := newPaymentService(repo)
	ctx := context.Background()
	session := int64(42)

	seedReceive(t, repo, 1, 10, 100, 500, time.Now().Add(-time.Hour))

	saleA := draftOneLine(t, svc, 1, 10, 2, 1000)
	_, _, err := pay.AddPayment(ctx, AddPaymentInput{StoreID: 1, SaleID: saleA.ID, RegisterSessionID: &session, Tender: TenderCash, AmountCents: 2500, ActorID: 7})
	require.NoError(t, err)

	saleB := draftOneLine(t, svc, 1, 10, 3, 1000)
	cardPay, _, err := pay.AddPayment(ctx, AddPaymentInput{StoreID: 1, SaleID: saleB.ID, RegisterSessionID: &session, Tender: TenderCard, AmountCents: 3000, ActorID: 7})
	require.NoError(t, err)

	totals, err := pay.TenderSummary(ctx, 1, session)
	require.NoError(t, err)
	// cash counts applied amount only, not the change handed back
	require.Equal(t, int64(2000), totals[TenderCash])
	require.Equal(t, int64(3000), totals[TenderCard])

	_, err = pay.VoidPayment(ctx, 1, cardPay.ID, 9, "declined")
	require.NoError(t, err)
	totals, err = pay.TenderSummary(ctx, 1, session)
	require.NoError(t, err)
	require.Zero(t, totals[TenderCard])
}

func TestReceiptRendering(t *testing.T) {
	repo := newMemoryRepo()
	svc := newSaleService(repo)
	pay := newPaymentService(repo)
	ctx := context.Background()

	sale := postedSale(t, repo, svc, 2, 125050)
	_, updated, err := pay.AddPayment(ctx, AddPaymentInput{StoreID: 1, SaleID: sale.ID, Tender: TenderCash, AmountCents: 300000, ActorID: 7})
	require.NoError(t, err)

	payments, err := pay.ListPayments(ctx, 1, sale.ID)
	require.NoError(t, err)
	text := Receipt(updated, payments, map[int64]string{10: "Espresso Beans 1kg"})

	require.Contains(t, text, updated.Code)
	require.Contains(t, text, "Espresso Beans 1kg")
	require.Contains(t, text, "2,501.00") // 2 x 1250.50 with grouping
	require.Contains(t, text, "CHANGE")
	require.Contains(t, text, "499.00")
}
