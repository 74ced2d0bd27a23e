// Package registers manages point-of-sale register sessions: the open →
// close lifecycle and end-of-day cash reconciliation against the tender
// totals recorded by payments.
package registers

import "time"

// SessionStatus is the register session state.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "OPEN"
	SessionClosed SessionStatus = "CLOSED"
)

// Session is one cashier shift on a register. Expected cash is derived at
// close time from the opening float plus net cash tenders; over/short is
// counted minus expected.
type Session struct {
	ID                int64         `json:"id"`
	StoreID           int64         `json:"store_id"`
	RegisterID        int64         `json:"register_id"`
	Status            SessionStatus `json:"status"`
	OpeningFloatCents int64         `json:"opening_float_cents"`
	ExpectedCashCents *int64        `json:"expected_cash_cents,omitempty"`
	CountedCashCents  *int64        `json:"counted_cash_cents,omitempty"`
	OverShortCents    *int64        `json:"over_short_cents,omitempty"`
	OpenedBy          int64         `json:"opened_by"`
	OpenedAt          time.Time     `json:"opened_at"`
	ClosedBy          *int64        `json:"closed_by,omitempty"`
	ClosedAt          *time.Time    `json:"closed_at,omitempty"`
	Note              string        `json:"note,omitempty"`
}

// OpenInput starts a session.
type OpenInput struct {
	StoreID           int64
	RegisterID        int64
	OpeningFloatCents int64
	ActorID           int64
}

// CloseInput ends a session with the physically counted cash.
type CloseInput struct {
	StoreID          int64
	SessionID        int64
	CountedCashCents int64
	ActorID          int64
	Note             string
}
