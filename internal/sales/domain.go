// Package sales is the posting coordinator for the money side: sale
// documents, their inventory postings, and payment reconciliation. The
// sale's current-state fields (totals, payment status) are derived caches;
// the payment transaction ledger is the source of truth.
package sales

import "time"

// SaleStatus is the sale document state.
type SaleStatus string

const (
	SaleDraft  SaleStatus = "DRAFT"
	SalePosted SaleStatus = "POSTED"
	SaleVoided SaleStatus = "VOIDED"
)

// PaymentStatus summarises how much of the sale has been settled.
// OVERPAID is deliberately not a terminal status: cash overpayment is
// capped to PAID and the excess tracked as change due.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentVoided  PaymentStatus = "VOIDED"
)

// TenderType is how a payment was tendered. Only cash may overpay.
type TenderType string

const (
	TenderCash     TenderType = "CASH"
	TenderCard     TenderType = "CARD"
	TenderTransfer TenderType = "BANK_TRANSFER"
)

// Valid reports whether t is a known tender.
func (t TenderType) Valid() bool {
	switch t {
	case TenderCash, TenderCard, TenderTransfer:
		return true
	}
	return false
}

// PaymentState is the payment record state.
type PaymentState string

const (
	PaymentCompleted PaymentState = "COMPLETED"
	PaymentReversed  PaymentState = "VOIDED"
)

// PayTxType enumerates payment ledger entries. VOID and REFUND rows carry
// negative amounts; reversal is additive, never a deletion.
type PayTxType string

const (
	PayTxPayment PayTxType = "PAYMENT"
	PayTxVoid    PayTxType = "VOID"
	PayTxRefund  PayTxType = "REFUND"
)

// Sale is the aggregate root for a point-of-sale document.
type Sale struct {
	ID                int64         `json:"id"`
	StoreID           int64         `json:"store_id"`
	Code              string        `json:"code"`
	Status            SaleStatus    `json:"status"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	TotalDueCents     int64         `json:"total_due_cents"`
	TotalPaidCents    int64         `json:"total_paid_cents"`
	ChangeDueCents    int64         `json:"change_due_cents"`
	RegisterSessionID *int64        `json:"register_session_id,omitempty"`
	Version           int64         `json:"version"`
	CreatedBy         int64         `json:"created_by"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	PostedAt          *time.Time    `json:"posted_at,omitempty"`
	VoidedAt          *time.Time    `json:"voided_at,omitempty"`
	VoidReason        string        `json:"void_reason,omitempty"`
	Lines             []SaleLine    `json:"lines,omitempty"`
}

// SaleLine is one product line; InventoryTxID links the ledger row created
// exactly once at post time.
type SaleLine struct {
	ID             int64  `json:"id"`
	SaleID         int64  `json:"sale_id"`
	StoreID        int64  `json:"store_id"`
	ProductID      int64  `json:"product_id"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
	InventoryTxID  *int64 `json:"inventory_tx_id,omitempty"`
}

// Payment records one tender against a sale. AmountCents is the full
// tendered amount; ChangeCents the part returned to the customer. Only
// amount − change contributes to the sale's paid total.
type Payment struct {
	ID                int64        `json:"id"`
	StoreID           int64        `json:"store_id"`
	SaleID            int64        `json:"sale_id"`
	RegisterSessionID *int64       `json:"register_session_id,omitempty"`
	Tender            TenderType   `json:"tender_type"`
	AmountCents       int64        `json:"amount_cents"`
	ChangeCents       int64        `json:"change_cents"`
	Status            PaymentState `json:"status"`
	Reference         string       `json:"reference,omitempty"`
	CreatedBy         int64        `json:"created_by"`
	CreatedAt         time.Time    `json:"created_at"`
	VoidedAt          *time.Time   `json:"voided_at,omitempty"`
	VoidReason        string       `json:"void_reason,omitempty"`
}

// AppliedCents is the part of the tendered amount settling the sale.
func (p Payment) AppliedCents() int64 { return p.AmountCents - p.ChangeCents }

// PaymentTransaction is one append-only row of the payment ledger.
type PaymentTransaction struct {
	ID          int64
	StoreID     int64
	PaymentID   int64
	SaleID      int64
	Type        PayTxType
	AmountCents int64
	Note        string
	CreatedBy   int64
	CreatedAt   time.Time
}

// DraftLineInput is one requested sale line.
type DraftLineInput struct {
	ProductID      int64
	Quantity       int64
	UnitPriceCents int64
}

// DraftSaleInput captures a new DRAFT sale.
type DraftSaleInput struct {
	StoreID           int64
	RegisterSessionID *int64
	ActorID           int64
	Lines             []DraftLineInput
}

// AddPaymentInput applies a tender to a sale.
type AddPaymentInput struct {
	StoreID           int64
	SaleID            int64
	RegisterSessionID *int64
	Tender            TenderType
	AmountCents       int64
	Reference         string
	ActorID           int64
}

// RefundInput partially reverses a completed payment.
type RefundInput struct {
	StoreID     int64
	PaymentID   int64
	AmountCents int64
	Reason      string
	ActorID     int64
}
