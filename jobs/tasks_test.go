package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestTaskConstruction(t *testing.T) {
	task, err := NewPaymentDriftTask(time.Now())
	require.NoError(t, err)
	require.Equal(t, TaskPaymentDriftCheck, task.Type())

	task, err = NewDraftCleanupTask(24 * time.Hour)
	require.NoError(t, err)
	require.Equal(t, TaskDraftCleanup, task.Type())
}

func TestHandlersSkipRetryOnBadPayload(t *testing.T) {
	logger := slog.Default()
	bad := asynq.NewTask(TaskPaymentDriftCheck, []byte("{"))

	err := NewDriftChecker(nil, logger).Handle(context.Background(), bad)
	require.True(t, errors.Is(err, asynq.SkipRetry))

	err = NewDraftCleaner(nil, logger).Handle(context.Background(), asynq.NewTask(TaskDraftCleanup, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}
