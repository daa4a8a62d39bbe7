package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
	"github.com/BradenHooton/posgate/internal/queue"
	"github.com/BradenHooton/posgate/internal/services"
	"github.com/BradenHooton/posgate/pkg/logger"
	"golang.org/x/time/rate"
)

var errMissingPayload = errors.New("notification has no payload for its channel")

// WorkerConfig bounds delivery throughput and retries
type WorkerConfig struct {
	RatePerSecond float64
	Burst         int
	MaxRetries    int
	RetryBackoff  time.Duration
}

// NotificationWorker drains the notification queue and hands each message to
// the email or SMS provider. A message that still fails after MaxRetries is
// logged and dropped.
type NotificationWorker struct {
	queue   queue.Queue
	email   services.EmailSender
	sms     services.SMSSender
	limiter *rate.Limiter
	cfg     WorkerConfig
	logger  *slog.Logger
}

func NewNotificationWorker(
	q queue.Queue,
	email services.EmailSender,
	sms services.SMSSender,
	cfg WorkerConfig,
	logger *slog.Logger,
) *NotificationWorker {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &NotificationWorker{
		queue:   q,
		email:   email,
		sms:     sms,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		cfg:     cfg,
		logger:  logger,
	}
}

// Run blocks until ctx is cancelled or the queue is closed
func (w *NotificationWorker) Run(ctx context.Context) error {
	w.logger.Info("notification worker started",
		slog.Float64("rate_per_second", w.cfg.RatePerSecond),
		slog.Int("max_retries", w.cfg.MaxRetries))

	err := w.queue.Consume(ctx, w.Handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("notification worker stopped", slog.Any("error", err))
		return err
	}
	w.logger.Info("notification worker stopped")
	return nil
}

// Handle delivers one message with retries. The returned error is only
// informational; the queue acknowledges the message either way.
func (w *NotificationWorker) Handle(ctx context.Context, msg *models.NotificationMessage) error {
	var err error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.cfg.RetryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err = w.limiter.Wait(ctx); err != nil {
			return err
		}

		var providerID string
		providerID, err = w.deliver(ctx, msg)
		if err == nil {
			w.logger.Info("notification delivered",
				slog.String("request_id", msg.RequestID),
				slog.String("channel", msg.Channel),
				slog.String("provider_id", providerID),
				slog.Int("attempt", attempt+1))
			return nil
		}
		if errors.Is(err, errMissingPayload) {
			break
		}
		w.logger.Warn("notification delivery failed",
			slog.String("request_id", msg.RequestID),
			slog.String("channel", msg.Channel),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
	}

	w.logger.Error("dropping notification",
		slog.String("request_id", msg.RequestID),
		slog.String("channel", msg.Channel),
		recipientAttr(msg),
		slog.Any("error", err))
	return err
}

func (w *NotificationWorker) deliver(ctx context.Context, msg *models.NotificationMessage) (string, error) {
	switch msg.Channel {
	case models.ChannelEmail:
		if msg.Email == nil {
			return "", errMissingPayload
		}
		return w.email.SendEmail(ctx, msg.Email)
	case models.ChannelSMS:
		if msg.SMS == nil {
			return "", errMissingPayload
		}
		return w.sms.SendSMS(ctx, msg.SMS)
	default:
		return "", fmt.Errorf("%w: unknown channel %q", errMissingPayload, msg.Channel)
	}
}

func recipientAttr(msg *models.NotificationMessage) slog.Attr {
	if msg.Email != nil {
		return slog.String("recipient", logger.SanitizedEmail(msg.Email.To))
	}
	return slog.String("recipient", "[REDACTED]")
}
