package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage(id string) *models.NotificationMessage {
	return &models.NotificationMessage{
		RequestID: id,
		Channel:   models.ChannelSMS,
		SMS:       &models.SMSParams{To: "+15555550100", Message: "hello"},
	}
}

func TestMemoryQueue_PublishFull(t *testing.T) {
	q := NewMemoryQueue(1)

	require.NoError(t, q.Publish(context.Background(), testMessage("a")))
	err := q.Publish(context.Background(), testMessage("b"))

	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, q.Len())
}

func TestMemoryQueue_PublishAfterClose(t *testing.T) {
	q := NewMemoryQueue(4)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	err := q.Publish(context.Background(), testMessage("a"))

	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryQueue_ConsumeDrainsAfterClose(t *testing.T) {
	q := NewMemoryQueue(4)
	require.NoError(t, q.Publish(context.Background(), testMessage("a")))
	require.NoError(t, q.Publish(context.Background(), testMessage("b")))
	require.NoError(t, q.Close())

	var seen []string
	err := q.Consume(context.Background(), func(ctx context.Context, msg *models.NotificationMessage) error {
		seen = append(seen, msg.RequestID)
		return errors.New("handler errors do not stop the loop")
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestMemoryQueue_ConsumeStopsOnCancel(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, func(ctx context.Context, msg *models.NotificationMessage) error { return nil })
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
