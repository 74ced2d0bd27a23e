package sales

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/shared"
)

// PaymentService reconciles tenders against sales. Every mutation appends
// to the payment transaction ledger and re-derives the sale's cached
// totals from it.
type PaymentService struct {
	repo  RepositoryPort
	retry shared.RetryPolicy
	now   shared.NowFunc
}

// NewPaymentService builds PaymentService.
func NewPaymentService(repo RepositoryPort, cfg Config) *PaymentService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	retry := cfg.Retry
	if retry.Attempts == 0 {
		retry = shared.DefaultRetryPolicy()
	}
	return &PaymentService{repo: repo, retry: retry, now: now}
}

// AddPayment applies a tender to a sale. The first payment against a DRAFT
// sale posts its inventory first, in the same unit of work. Cash may
// overpay the remaining balance; the excess becomes change due. Any other
// tender overpaying is rejected before a single row is written.
func (s *PaymentService) AddPayment(ctx context.Context, in AddPaymentInput) (Payment, Sale, error) {
	const op = "payments.add"
	if in.AmountCents <= 0 {
		return Payment{}, Sale{}, shared.Validation(op, "payment amount must be positive")
	}
	if !in.Tender.Valid() {
		return Payment{}, Sale{}, shared.Validation(op, "unknown tender type %q", in.Tender)
	}
	// external references come from card terminals; cash gets a generated one
	if in.Reference == "" {
		in.Reference = uuid.NewString()
	}
	var (
		payment Payment
		sale    Sale
	)
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			sale, err = tx.GetSaleForUpdate(ctx, in.StoreID, in.SaleID)
			if err != nil {
				return err
			}
			if sale.Status == SaleVoided {
				return shared.Lifecycle(op, "cannot pay a voided sale")
			}
			now := s.now().UTC()
			if sale.Status == SaleDraft {
				if err := postSaleLocked(ctx, tx, &sale, in.ActorID, now, now); err != nil {
					return err
				}
			}
			remaining := sale.TotalDueCents - sale.TotalPaidCents
			if remaining < 0 {
				remaining = 0
			}
			change := int64(0)
			if in.AmountCents > remaining {
				if in.Tender != TenderCash {
					return shared.Conflict(op, "%s payment of %d exceeds remaining balance %d", in.Tender, in.AmountCents, remaining)
				}
				change = in.AmountCents - remaining
			}
			payment, err = tx.InsertPayment(ctx, Payment{
				StoreID:           in.StoreID,
				SaleID:            sale.ID,
				RegisterSessionID: in.RegisterSessionID,
				Tender:            in.Tender,
				AmountCents:       in.AmountCents,
				ChangeCents:       change,
				Status:            PaymentCompleted,
				Reference:         in.Reference,
				CreatedBy:         in.ActorID,
			})
			if err != nil {
				return err
			}
			// ledger rows carry the full tendered amount; change stays
			// on the payment row, never as a negative entry
			if _, err := tx.InsertPaymentTransaction(ctx, PaymentTransaction{
				StoreID:     in.StoreID,
				PaymentID:   payment.ID,
				SaleID:      sale.ID,
				Type:        PayTxPayment,
				AmountCents: payment.AmountCents,
				CreatedBy:   in.ActorID,
			}); err != nil {
				return err
			}
			if err := recomputeSaleLocked(ctx, tx, &sale); err != nil {
				return err
			}
			_, err = tx.Ledger().AppendEvent(ctx, ledger.Event{
				StoreID:           in.StoreID,
				EventType:         ledger.EventPaymentApplied,
				EntityType:        "payment",
				EntityID:          strconv.FormatInt(payment.ID, 10),
				SaleID:            &sale.ID,
				PaymentID:         &payment.ID,
				RegisterSessionID: in.RegisterSessionID,
				ActorID:           in.ActorID,
				OccurredAt:        now,
			})
			return err
		})
	})
	if err != nil {
		return Payment{}, Sale{}, err
	}
	return payment, sale, nil
}

// VoidPayment reverses a completed payment in full and re-derives the
// sale's settlement state. Voiding twice is a conflict.
func (s *PaymentService) VoidPayment(ctx context.Context, storeID, paymentID, actorID int64, reason string) (Sale, error) {
	const op = "payments.void"
	var sale Sale
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			payment, err := tx.GetPaymentForUpdate(ctx, storeID, paymentID)
			if err != nil {
				return err
			}
			sale, err = tx.GetSaleForUpdate(ctx, storeID, payment.SaleID)
			if err != nil {
				return err
			}
			if err := voidPaymentLocked(ctx, tx, &payment, actorID, reason, s.now().UTC()); err != nil {
				return err
			}
			if err := recomputeSaleLocked(ctx, tx, &sale); err != nil {
				return err
			}
			return nil
		})
	})
	return sale, err
}

// voidPaymentLocked writes the reversing VOID ledger row and flips the
// payment record. Callers hold the payment (and sale) row locks; sale
// recomputation is theirs. Shared with full-sale voiding.
func voidPaymentLocked(ctx context.Context, tx TxRepository, p *Payment, actorID int64, reason string, now time.Time) error {
	const op = "payments.void"
	if p.Status == PaymentReversed {
		return shared.Conflict(op, "payment %d is already voided", p.ID)
	}
	if _, err := tx.InsertPaymentTransaction(ctx, PaymentTransaction{
		StoreID:     p.StoreID,
		PaymentID:   p.ID,
		SaleID:      p.SaleID,
		Type:        PayTxVoid,
		AmountCents: -p.AmountCents,
		Note:        reason,
		CreatedBy:   actorID,
	}); err != nil {
		return err
	}
	p.Status = PaymentReversed
	p.VoidedAt = &now
	p.VoidReason = reason
	if err := tx.UpdatePayment(ctx, *p); err != nil {
		return err
	}
	_, err := tx.Ledger().AppendEvent(ctx, ledger.Event{
		StoreID:    p.StoreID,
		EventType:  ledger.EventPaymentVoided,
		EntityType: "payment",
		EntityID:   strconv.FormatInt(p.ID, 10),
		SaleID:     &p.SaleID,
		PaymentID:  &p.ID,
		ActorID:    actorID,
		Note:       reason,
		OccurredAt: now,
	})
	return err
}

// RefundPayment partially reverses a completed payment. The refundable
// amount is what the payment applied minus what was already refunded;
// the payment record itself stays COMPLETED.
func (s *PaymentService) RefundPayment(ctx context.Context, in RefundInput) (Sale, error) {
	const op = "payments.refund"
	if in.AmountCents <= 0 {
		return Sale{}, shared.Validation(op, "refund amount must be positive")
	}
	var sale Sale
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			payment, err := tx.GetPaymentForUpdate(ctx, in.StoreID, in.PaymentID)
			if err != nil {
				return err
			}
			if payment.Status != PaymentCompleted {
				return shared.Conflict(op, "payment %d is voided and cannot be refunded", payment.ID)
			}
			refunded, err := tx.RefundTotalForPayment(ctx, payment.ID)
			if err != nil {
				return err
			}
			refundable := payment.AppliedCents() - refunded
			if in.AmountCents > refundable {
				return shared.Conflict(op, "refund %d exceeds refundable %d on payment %d", in.AmountCents, refundable, payment.ID)
			}
			sale, err = tx.GetSaleForUpdate(ctx, in.StoreID, payment.SaleID)
			if err != nil {
				return err
			}
			if _, err := tx.InsertPaymentTransaction(ctx, PaymentTransaction{
				StoreID:     in.StoreID,
				PaymentID:   payment.ID,
				SaleID:      payment.SaleID,
				Type:        PayTxRefund,
				AmountCents: -in.AmountCents,
				Note:        in.Reason,
				CreatedBy:   in.ActorID,
			}); err != nil {
				return err
			}
			if err := recomputeSaleLocked(ctx, tx, &sale); err != nil {
				return err
			}
			_, err = tx.Ledger().AppendEvent(ctx, ledger.Event{
				StoreID:    in.StoreID,
				EventType:  ledger.EventPaymentRefunded,
				EntityType: "payment",
				EntityID:   strconv.FormatInt(payment.ID, 10),
				SaleID:     &payment.SaleID,
				PaymentID:  &payment.ID,
				ActorID:    in.ActorID,
				Note:       in.Reason,
				OccurredAt: s.now().UTC(),
			})
			return err
		})
	})
	return sale, err
}

// ListPayments returns every payment recorded against the sale.
func (s *PaymentService) ListPayments(ctx context.Context, storeID, saleID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, storeID, saleID)
}

// TenderSummary totals net applied amounts per tender for a register
// session, the basis for end-of-day cash-up.
func (s *PaymentService) TenderSummary(ctx context.Context, storeID, registerSessionID int64) (map[TenderType]int64, error) {
	return s.repo.TenderTotals(ctx, storeID, registerSessionID)
}

// recomputeSaleLocked re-derives paid total, change due and payment status
// from completed payments and the refund ledger, then persists the sale.
func recomputeSaleLocked(ctx context.Context, tx TxRepository, sale *Sale) error {
	payments, err := tx.ListPayments(ctx, sale.ID)
	if err != nil {
		return err
	}
	var applied, change int64
	for _, p := range payments {
		if p.Status != PaymentCompleted {
			continue
		}
		applied += p.AppliedCents()
		change += p.ChangeCents
	}
	refunded, err := tx.RefundTotal(ctx, sale.ID)
	if err != nil {
		return err
	}
	applied -= refunded

	sale.TotalPaidCents = applied
	sale.ChangeDueCents = change
	sale.PaymentStatus = derivePaymentStatus(applied, sale.TotalDueCents)
	updated, err := tx.UpdateSale(ctx, *sale)
	if err != nil {
		return err
	}
	lines := sale.Lines
	*sale = updated
	sale.Lines = lines
	return nil
}

func derivePaymentStatus(paidCents, dueCents int64) PaymentStatus {
	switch {
	case paidCents <= 0:
		return PaymentUnpaid
	case paidCents < dueCents:
		return PaymentPartial
	default:
		return PaymentPaid
	}
}
