// Package inventory is the posting coordinator for stock-side business
// events: receives, adjustments, transfers, counts and the draft →
// approved → posted lifecycle of manually captured documents.
package inventory

import "time"

// ReceiveInput describes an inbound posting.
type ReceiveInput struct {
	StoreID       int64
	ProductID     int64
	Quantity      int64
	UnitCostCents int64
	OccurredAt    time.Time
	ActorID       int64
	Note          string
}

// AdjustInput describes a signed stock correction. Adjustments never carry
// a unit cost; they must not alter cost basis.
type AdjustInput struct {
	StoreID       int64
	ProductID     int64
	QuantityDelta int64
	OccurredAt    time.Time
	ActorID       int64
	Note          string
}

// TransferInput moves stock between two stores.
type TransferInput struct {
	SrcStoreID int64
	DstStoreID int64
	ProductID  int64
	Quantity   int64
	OccurredAt time.Time
	ActorID    int64
	Note       string
}

// CountInput reconciles on-hand with a physical count.
type CountInput struct {
	StoreID    int64
	ProductID  int64
	CountedQty int64
	OccurredAt time.Time
	ActorID    int64
	Note       string
}

// DraftInput captures a document that enters the lifecycle as DRAFT.
// Only receives and adjustments go through the manual draft flow.
type DraftInput struct {
	StoreID       int64
	ProductID     int64
	Type          string
	QuantityDelta int64
	UnitCostCents *int64
	OccurredAt    time.Time
	ActorID       int64
	Note          string
}
