package background

import (
	"context"
	"log/slog"
	"time"
)

type sessionPurger interface {
	DeactivateExpired(ctx context.Context) (int64, error)
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type resetTokenPurger interface {
	DeleteSpentBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type activityPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention windows for rows the cleanup manager removes
type Retention struct {
	InactiveSessions time.Duration
	SpentResetTokens time.Duration
	ActivityLogs     time.Duration
}

// DefaultRetention keeps inactive sessions and spent reset tokens for a week
// and activity logs for 90 days
var DefaultRetention = Retention{
	InactiveSessions: 7 * 24 * time.Hour,
	SpentResetTokens: 7 * 24 * time.Hour,
	ActivityLogs:     90 * 24 * time.Hour,
}

// CleanupManager periodically expires sessions and purges spent rows
type CleanupManager struct {
	sessions  sessionPurger
	tokens    resetTokenPurger
	activity  activityPurger
	retention Retention
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sessions sessionPurger,
	tokens resetTokenPurger,
	activity activityPurger,
	retention Retention,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sessions:  sessions,
		tokens:    tokens,
		activity:  activity,
		retention: retention,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup runs each task independently; one failure does not skip the rest
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Info("starting cleanup")

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.now()
	tasks := []struct {
		name string
		run  func(context.Context) (int64, error)
	}{
		{"expire_sessions", cm.sessions.DeactivateExpired},
		{"purge_inactive_sessions", func(ctx context.Context) (int64, error) {
			return cm.sessions.DeleteInactiveBefore(ctx, now.Add(-cm.retention.InactiveSessions))
		}},
		{"purge_reset_tokens", func(ctx context.Context) (int64, error) {
			return cm.tokens.DeleteSpentBefore(ctx, now.Add(-cm.retention.SpentResetTokens))
		}},
		{"purge_activity_logs", func(ctx context.Context) (int64, error) {
			return cm.activity.DeleteOlderThan(ctx, now.Add(-cm.retention.ActivityLogs))
		}},
	}

	for _, task := range tasks {
		rows, err := task.run(cleanupCtx)
		if err != nil {
			cm.logger.Error("cleanup task failed", slog.String("task", task.name), slog.Any("error", err))
			continue
		}
		if rows > 0 {
			cm.logger.Info("cleanup task completed", slog.String("task", task.name), slog.Int64("rows", rows))
		}
	}
}
