package ledger

import (
	"time"
)

// TxType enumerates inventory ledger movements.
type TxType string

const (
	// TxReceive is an inbound movement carrying a unit cost.
	TxReceive TxType = "RECEIVE"
	// TxAdjust is a manual correction without cost impact.
	TxAdjust TxType = "ADJUST"
	// TxSale is a sale-line posting with a cost-basis snapshot.
	TxSale TxType = "SALE"
	// TxSaleVoid reverses a SALE row at its original cost snapshot.
	TxSaleVoid TxType = "SALE_VOID"
	// TxTransfer moves stock between stores without touching cost basis.
	TxTransfer TxType = "TRANSFER"
	// TxCountAdjust reconciles on-hand with a physical count.
	TxCountAdjust TxType = "COUNT_ADJUST"
)

// Valid reports whether t is a known movement type.
func (t TxType) Valid() bool {
	switch t {
	case TxReceive, TxAdjust, TxSale, TxSaleVoid, TxTransfer, TxCountAdjust:
		return true
	}
	return false
}

// Status is the document lifecycle state.
type Status string

const (
	// StatusDraft rows are fully mutable and never aggregate.
	StatusDraft Status = "DRAFT"
	// StatusApproved rows are deletable but not editable.
	StatusApproved Status = "APPROVED"
	// StatusPosted rows are terminal and immutable; only they contribute
	// to on-hand and cost.
	StatusPosted Status = "POSTED"
)

// Transaction is one append-only row of the inventory ledger. Once POSTED
// it is never mutated or deleted; corrections are new rows.
type Transaction struct {
	ID                  int64      `json:"id"`
	StoreID             int64      `json:"store_id"`
	ProductID           int64      `json:"product_id"`
	Type                TxType     `json:"tx_type"`
	QuantityDelta       int64      `json:"quantity_delta"`
	UnitCostCents       *int64     `json:"unit_cost_cents,omitempty"`
	UnitCostCentsAtSale *int64     `json:"unit_cost_cents_at_sale,omitempty"`
	COGSCents           *int64     `json:"cogs_cents,omitempty"`
	SaleID              *int64     `json:"sale_id,omitempty"`
	SaleLineID          *int64     `json:"sale_line_id,omitempty"`
	Status              Status     `json:"status"`
	Note                string     `json:"note,omitempty"`
	OccurredAt          time.Time  `json:"occurred_at"`
	CreatedAt           time.Time  `json:"created_at"`
	CreatedBy           int64      `json:"created_by"`
	ApprovedBy          *int64     `json:"approved_by,omitempty"`
	ApprovedAt          *time.Time `json:"approved_at,omitempty"`
	PostedBy            *int64     `json:"posted_by,omitempty"`
	PostedAt            *time.Time `json:"posted_at,omitempty"`
}

// Event types recorded in the master ledger.
const (
	EventReceivePosted   = "inventory.receive_posted"
	EventAdjustPosted    = "inventory.adjust_posted"
	EventTransferPosted  = "inventory.transfer_posted"
	EventCountPosted     = "inventory.count_posted"
	EventDocumentPosted  = "inventory.document_posted"
	EventSalePosted      = "sale.posted"
	EventSaleLinePosted  = "sale.line_posted"
	EventSaleVoided      = "sale.voided"
	EventPaymentApplied  = "payment.applied"
	EventPaymentVoided   = "payment.voided"
	EventPaymentRefunded = "payment.refunded"
	EventSessionOpened   = "register.session_opened"
	EventSessionClosed   = "register.session_closed"
)

// Event is one append-only master ledger (audit) fact, written in the same
// atomic unit as the domain mutation it records.
type Event struct {
	ID                int64     `json:"id"`
	StoreID           int64     `json:"store_id"`
	EventType         string    `json:"event_type"`
	EntityType        string    `json:"entity_type"`
	EntityID          string    `json:"entity_id"`
	SaleID            *int64    `json:"sale_id,omitempty"`
	PaymentID         *int64    `json:"payment_id,omitempty"`
	RegisterSessionID *int64    `json:"register_session_id,omitempty"`
	ActorID           int64     `json:"actor_id"`
	Note              string    `json:"note,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}
