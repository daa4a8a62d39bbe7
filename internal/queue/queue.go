// Package queue carries notification messages from request handlers to the
// delivery worker, over Kafka or an in-process channel.
package queue

import (
	"context"
	"errors"

	"github.com/BradenHooton/posgate/internal/models"
)

var (
	// ErrQueueFull is returned when the in-process buffer has no room
	ErrQueueFull = errors.New("notification queue is full")
	// ErrQueueClosed is returned after Close
	ErrQueueClosed = errors.New("notification queue is closed")
)

// Handler processes one message. The message is acknowledged whatever the
// handler returns; retries are the handler's job.
type Handler func(ctx context.Context, msg *models.NotificationMessage) error

// Queue is both ends of the notification channel
type Queue interface {
	Publish(ctx context.Context, msg *models.NotificationMessage) error
	Consume(ctx context.Context, handle Handler) error
	Close() error
}
