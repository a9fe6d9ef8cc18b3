package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/ports/driven"
)

func testIntent(id, token string) domain.ChangeIntent {
	return domain.ChangeIntent{
		ID:          id,
		FileID:      "file-1",
		ChangeType:  domain.ChangeModified,
		Source:      domain.SourceWebhook,
		DedupeToken: token,
		ObservedAt:  time.Now(),
	}
}

func receive(t *testing.T, deliveries <-chan driven.Delivery) driven.Delivery {
	t.Helper()
	select {
	case d, ok := <-deliveries:
		require.True(t, ok, "delivery stream closed early")
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
		return nil
	}
}

func TestQueue_PublishConsume(t *testing.T) {
	queue := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, queue.Publish(ctx, testIntent("intent-1", "file-1@a")))

	deliveries, err := queue.Consume(ctx)
	require.NoError(t, err)

	d := receive(t, deliveries)
	assert.Equal(t, "intent-1", d.Intent().ID)
	require.NoError(t, d.Ack())
	assert.Zero(t, queue.Len())
}

func TestQueue_DedupeByToken(t *testing.T) {
	queue := NewQueue()
	ctx := context.Background()

	require.NoError(t, queue.Publish(ctx, testIntent("intent-1", "file-1@a")))
	require.NoError(t, queue.Publish(ctx, testIntent("intent-2", "file-1@a")))
	require.NoError(t, queue.Publish(ctx, testIntent("intent-3", "file-1@b")))

	pending := queue.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "intent-1", pending[0].ID)
	assert.Equal(t, "intent-3", pending[1].ID)
}

func TestQueue_DedupeReleasedAfterDelivery(t *testing.T) {
	queue := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, queue.Publish(ctx, testIntent("intent-1", "file-1@a")))

	deliveries, err := queue.Consume(ctx)
	require.NoError(t, err)
	d := receive(t, deliveries)
	require.NoError(t, d.Ack())

	// The token only guards the pending set; retries of a delivered
	// revision are accepted.
	require.NoError(t, queue.Publish(ctx, testIntent("intent-2", "file-1@a")))
	assert.Equal(t, 1, queue.Len())
}

func TestQueue_NackRequeues(t *testing.T) {
	queue := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, queue.Publish(ctx, testIntent("intent-1", "file-1@a")))

	deliveries, err := queue.Consume(ctx)
	require.NoError(t, err)

	d := receive(t, deliveries)
	require.NoError(t, d.Nack(true))

	redelivered := receive(t, deliveries)
	assert.Equal(t, "intent-1", redelivered.Intent().ID)
	require.NoError(t, redelivered.Ack())
}

func TestQueue_NackWithoutRequeueDiscards(t *testing.T) {
	queue := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, queue.Publish(ctx, testIntent("intent-1", "file-1@a")))

	deliveries, err := queue.Consume(ctx)
	require.NoError(t, err)

	d := receive(t, deliveries)
	require.NoError(t, d.Nack(false))
	assert.Zero(t, queue.Len())
}

func TestQueue_SettleIsIdempotent(t *testing.T) {
	queue := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, queue.Publish(ctx, testIntent("intent-1", "file-1@a")))

	deliveries, err := queue.Consume(ctx)
	require.NoError(t, err)

	d := receive(t, deliveries)
	require.NoError(t, d.Ack())
	require.NoError(t, d.Nack(true), "nack after ack is a no-op")
	assert.Zero(t, queue.Len())
}

func TestQueue_DeadLetters(t *testing.T) {
	queue := NewQueue()
	ctx := context.Background()

	intent := testIntent("intent-1", "file-1@a")
	require.NoError(t, queue.DeadLetter(ctx, intent, "retries exhausted"))

	letters, err := queue.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "intent-1", letters[0].Intent.ID)
	assert.Equal(t, "retries exhausted", letters[0].Reason)
	assert.False(t, letters[0].At.IsZero())
}

func TestQueue_PublishAfterClose(t *testing.T) {
	queue := NewQueue()
	require.NoError(t, queue.Close())

	err := queue.Publish(context.Background(), testIntent("intent-1", "file-1@a"))
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
	assert.Error(t, queue.Ping(context.Background()))
}

func TestQueue_ConsumeStopsOnContextCancel(t *testing.T) {
	queue := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	deliveries, err := queue.Consume(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-deliveries:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery stream did not close")
	}
}
