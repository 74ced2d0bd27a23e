package ledger

import (
	"time"

	"github.com/meridian-retail/meridian/internal/shared"
)

// The only legal transitions. Skipping a state or reversing one is not
// representable here.
var transitions = map[Status]Status{
	StatusDraft:    StatusApproved,
	StatusApproved: StatusPosted,
}

// CanTransition reports whether from→to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	return transitions[from] == to
}

// CanEdit reports whether a document in the given state may be modified.
func CanEdit(s Status) bool { return s == StatusDraft }

// CanDelete reports whether a document in the given state may be removed.
func CanDelete(s Status) bool { return s == StatusDraft || s == StatusApproved }

// Approve moves a DRAFT transaction to APPROVED, stamping the actor.
func (t *Transaction) Approve(actorID int64, at time.Time) error {
	if !CanTransition(t.Status, StatusApproved) {
		return shared.Lifecycle("ledger.approve", "cannot approve transaction in state %s", t.Status)
	}
	t.Status = StatusApproved
	t.ApprovedBy = &actorID
	approvedAt := at.UTC()
	t.ApprovedAt = &approvedAt
	return nil
}

// Post moves an APPROVED transaction to POSTED, the terminal state. Posting
// is the only transition that lets the row contribute to derived aggregates.
func (t *Transaction) Post(actorID int64, at time.Time) error {
	if !CanTransition(t.Status, StatusPosted) {
		return shared.Lifecycle("ledger.post", "cannot post transaction in state %s", t.Status)
	}
	t.Status = StatusPosted
	t.PostedBy = &actorID
	postedAt := at.UTC()
	t.PostedAt = &postedAt
	return nil
}

// NewPosted stamps a transaction that is born POSTED, for system-generated
// movements that never pass through the draft flow.
func NewPosted(t Transaction, actorID int64, at time.Time) Transaction {
	postedAt := at.UTC()
	t.Status = StatusPosted
	t.CreatedBy = actorID
	t.PostedBy = &actorID
	t.PostedAt = &postedAt
	return t
}
