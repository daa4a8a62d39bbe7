package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
	pkglogger "github.com/BradenHooton/posgate/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// LoginStatisticsRepository maintains the per-user login counters
type LoginStatisticsRepository interface {
	RecordFailure(ctx context.Context, userID string, info models.RequestInfo) (int, error)
	RecordSuccess(ctx context.Context, userID string, info models.RequestInfo) error
	DecrementActiveSessions(ctx context.Context, userID string) error
}

// ActivityLogRepository appends to the user activity trail
type ActivityLogRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
}

// AccountLocker persists the account lock
type AccountLocker interface {
	LockUntil(ctx context.Context, userID string, until time.Time) error
}

// LockoutPolicy is the failed-login threshold and lock duration
type LockoutPolicy struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// FailureOutcome is the result of recording a failed password check
type FailureOutcome struct {
	Attempts  int
	Remaining int
	State     models.LockState
}

// LockoutTracker counts consecutive failed logins and locks the account when
// the threshold is reached. Locks expire on their own.
type LockoutTracker struct {
	users       AccountLocker
	stats       LoginStatisticsRepository
	activity    ActivityLogRepository
	policy      LockoutPolicy
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewLockoutTracker(users AccountLocker, stats LoginStatisticsRepository, activity ActivityLogRepository, policy LockoutPolicy, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *LockoutTracker {
	return &LockoutTracker{
		users:       users,
		stats:       stats,
		activity:    activity,
		policy:      policy,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// State computes the account lock at the current time
func (t *LockoutTracker) State(user *models.User) models.LockState {
	return user.LockState(t.now())
}

// RecordFailure bumps the consecutive failure counter and writes the failed
// login activity concurrently, then locks the account once the threshold is
// reached. Neither write cancels the other. A wrong password during an active lock extends it.
func (t *LockoutTracker) RecordFailure(ctx context.Context, user *models.User, info models.RequestInfo) (*FailureOutcome, error) {
	var attempts int

	var g errgroup.Group
	g.Go(func() error {
		n, err := t.stats.RecordFailure(ctx, user.ID, info)
		if err != nil {
			return fmt.Errorf("failed to record login failure: %w", err)
		}
		attempts = n
		return nil
	})
	g.Go(func() error {
		entry := models.NewActivityLog(user.ID, nil, models.ActivityUserLogin, models.ActivityResultFailure, info)
		if err := t.activity.Create(ctx, entry); err != nil {
			return fmt.Errorf("failed to log login failure: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outcome := &FailureOutcome{
		Attempts:  attempts,
		Remaining: max(t.policy.MaxFailedAttempts-attempts, 0),
		State:     models.Unlocked(),
	}

	if attempts < t.policy.MaxFailedAttempts {
		return outcome, nil
	}

	until := t.now().Add(t.policy.LockoutDuration)
	if err := t.users.LockUntil(ctx, user.ID, until); err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	entry := models.NewActivityLog(user.ID, nil, models.ActivityAccountLocked, models.ActivityResultSuccess, info)
	if err := t.activity.Create(ctx, entry); err != nil {
		t.logger.Warn("failed to log account lock", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	t.logger.Info("account locked",
		slog.String("user_id", user.ID),
		slog.Int("attempts", attempts),
		slog.Time("locked_until", until),
	)
	t.auditLogger.LogLockout(ctx, user.ID, info.IPAddress, until, "too_many_failed_logins")

	outcome.State = models.LockedUntil(until)
	return outcome, nil
}

// RecordSuccess resets the failure counter, bumps the active session count
// and logs action as a success, concurrently
func (t *LockoutTracker) RecordSuccess(ctx context.Context, userID, sessionID, action string, info models.RequestInfo) error {
	var g errgroup.Group
	g.Go(func() error {
		if err := t.stats.RecordSuccess(ctx, userID, info); err != nil {
			return fmt.Errorf("failed to record login success: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		entry := models.NewActivityLog(userID, &sessionID, action, models.ActivityResultSuccess, info)
		if err := t.activity.Create(ctx, entry); err != nil {
			return fmt.Errorf("failed to log %s: %w", action, err)
		}
		return nil
	})
	return g.Wait()
}

// RecordBlocked logs a correct password rejected because of an active lock.
// The counter is left alone.
func (t *LockoutTracker) RecordBlocked(ctx context.Context, userID string, info models.RequestInfo) error {
	entry := models.NewActivityLog(userID, nil, models.ActivityUserLogin, models.ActivityResultFailure, info)
	if err := t.activity.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to log blocked login: %w", err)
	}
	return nil
}
