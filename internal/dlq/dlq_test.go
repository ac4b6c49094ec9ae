package dlq_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/as2hooks/common/logging"
	"github.com/telhawk-systems/as2hooks/internal/dlq"
	"github.com/telhawk-systems/as2hooks/internal/models"
)

func failedNotification(messageID, reason string) models.FailedNotification {
	msg := models.NewReceivedMessage(messageID, "ACME", "BIGBUY", 10, "order_234.xml", time.Now())
	return models.FailedNotification{
		Timestamp:   time.Now().UTC(),
		DeliveryID:  uuid.NewString(),
		MessageID:   messageID,
		Endpoint:    "http://127.0.0.1:1/hook",
		Payload:     models.NewNotificationPayload(msg),
		Error:       "connection refused",
		Reason:      reason,
		Attempts:    4,
		LastAttempt: time.Now().UTC(),
	}
}

func TestNewQueue(t *testing.T) {
	tempDir := t.TempDir()

	t.Run("creates nested directories", func(t *testing.T) {
		nested := filepath.Join(tempDir, "nested", "dlq")
		queue, err := dlq.NewQueue(nested, logging.Discard())

		require.NoError(t, err)
		assert.NotNil(t, queue)

		info, err := os.Stat(nested)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("fails under a regular file", func(t *testing.T) {
		blocker := filepath.Join(tempDir, "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0o644))

		_, err := dlq.NewQueue(filepath.Join(blocker, "dlq"), logging.Discard())
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrIO))
	})
}

func TestQueue_WriteAndList(t *testing.T) {
	queue, err := dlq.NewQueue(t.TempDir(), logging.Discard())
	require.NoError(t, err)
	ctx := context.Background()

	first := failedNotification("m-1", models.ReasonTransportExhausted)
	second := failedNotification("m-2", models.ReasonRejected)
	second.Timestamp = first.Timestamp.Add(time.Millisecond)

	require.NoError(t, queue.Write(ctx, first))
	require.NoError(t, queue.Write(ctx, second))

	entries, err := queue.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "m-1", entries[0].MessageID)
	assert.Equal(t, first.DeliveryID, entries[0].DeliveryID)
	assert.Equal(t, models.ReasonTransportExhausted, entries[0].Reason)
	assert.Equal(t, 4, entries[0].Attempts)
	assert.Equal(t, "/as2/inbox/order_234.xml", entries[0].Payload.Path)
	assert.Equal(t, "m-2", entries[1].MessageID)

	limited, err := queue.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestQueue_ListSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	queue, err := dlq.NewQueue(dir, logging.Discard())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, queue.Write(ctx, failedNotification("m-1", models.ReasonRejected)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "failed_0000000000000000001_000000_bad.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0o644))

	entries, err := queue.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m-1", entries[0].MessageID)
}

func TestQueue_Delete(t *testing.T) {
	queue, err := dlq.NewQueue(t.TempDir(), logging.Discard())
	require.NoError(t, err)
	ctx := context.Background()

	failed := failedNotification("m-1", models.ReasonRejected)
	require.NoError(t, queue.Write(ctx, failed))

	require.NoError(t, queue.Delete(ctx, failed.DeliveryID))

	err = queue.Delete(ctx, failed.DeliveryID)
	assert.True(t, errors.Is(err, dlq.ErrNotFound))

	entries, err := queue.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQueue_PurgeAndStats(t *testing.T) {
	dir := t.TempDir()
	queue, err := dlq.NewQueue(dir, logging.Discard())
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, queue.Write(ctx, failedNotification("m", models.ReasonInterrupted)))
	}

	stats := queue.Stats(ctx)
	assert.True(t, stats.Enabled)
	assert.Equal(t, "file", stats.Backend)
	assert.Equal(t, uint64(3), stats.Written)
	assert.Equal(t, uint64(3), stats.Pending)
	assert.Equal(t, dir, stats.Location)

	deleted, err := queue.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	stats = queue.Stats(ctx)
	assert.Equal(t, uint64(0), stats.Pending)
	assert.Equal(t, uint64(3), stats.Written)
}

func TestQueue_Nil(t *testing.T) {
	var queue *dlq.Queue
	ctx := context.Background()

	assert.NoError(t, queue.Write(ctx, failedNotification("m", models.ReasonRejected)))

	_, err := queue.List(ctx, 0)
	assert.ErrorIs(t, err, dlq.ErrDisabled)

	_, err = queue.Purge(ctx)
	assert.ErrorIs(t, err, dlq.ErrDisabled)

	assert.False(t, queue.Stats(ctx).Enabled)
}

func TestQueue_ImplementsStore(t *testing.T) {
	var _ dlq.Store = (*dlq.Queue)(nil)
	var _ dlq.Store = (*dlq.JetStreamQueue)(nil)
}
