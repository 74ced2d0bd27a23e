package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPaymentDriftCheck verifies sale paid totals against the payment
	// transaction ledger.
	TaskPaymentDriftCheck = "ledger:payment_drift_check"
	// TaskDraftCleanup deletes stale DRAFT inventory documents.
	TaskDraftCleanup = "ledger:draft_cleanup"
)

// PaymentDriftPayload carries scheduling metadata.
type PaymentDriftPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewPaymentDriftTask constructs the nightly drift-check task.
func NewPaymentDriftTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(PaymentDriftPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentDriftCheck, body, asynq.Queue(QueueDefault)), nil
}

// DraftCleanupPayload bounds which drafts are eligible for deletion.
type DraftCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewDraftCleanupTask constructs the draft-cleanup task.
func NewDraftCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(DraftCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDraftCleanup, body, asynq.Queue(QueueDefault)), nil
}
