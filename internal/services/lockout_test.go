package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/posgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLockoutTracker(stats *MockLoginStatisticsRepository, activity *MockActivityLogRepository) *LockoutTracker {
	return NewLockoutTracker(&MockUserRepository{}, stats, activity, LockoutPolicy{
		MaxFailedAttempts: 5,
		LockoutDuration:   30 * time.Minute,
	}, testLogger(), testAuditLogger())
}

// waitCancelled blocks until the sibling write has failed, then reports
// whether ctx was cancelled within a short grace period.
func waitCancelled(ctx context.Context, sibling <-chan struct{}) bool {
	<-sibling
	select {
	case <-ctx.Done():
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

func TestLockoutTracker_RecordFailure_StatsErrorDoesNotCancelActivity(t *testing.T) {
	failed := make(chan struct{})
	stats := &MockLoginStatisticsRepository{
		RecordFailureFunc: func(ctx context.Context, userID string, info models.RequestInfo) (int, error) {
			defer close(failed)
			return 0, errors.New("connection reset")
		},
	}
	var cancelled bool
	activity := &MockActivityLogRepository{
		CreateFunc: func(ctx context.Context, entry *models.ActivityLog) error {
			cancelled = waitCancelled(ctx, failed)
			return nil
		},
	}
	tracker := newTestLockoutTracker(stats, activity)

	outcome, err := tracker.RecordFailure(context.Background(), NewTestUser("user-1", "jane@example.com"), testRequestInfo())

	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.False(t, cancelled)
	assert.True(t, activity.Has(models.ActivityUserLogin, models.ActivityResultFailure))
}

func TestLockoutTracker_RecordSuccess_ActivityErrorDoesNotCancelStats(t *testing.T) {
	failed := make(chan struct{})
	activity := &MockActivityLogRepository{
		CreateFunc: func(ctx context.Context, entry *models.ActivityLog) error {
			defer close(failed)
			return errors.New("insert failed")
		},
	}
	var cancelled, recorded bool
	stats := &MockLoginStatisticsRepository{
		RecordSuccessFunc: func(ctx context.Context, userID string, info models.RequestInfo) error {
			cancelled = waitCancelled(ctx, failed)
			recorded = true
			return nil
		},
	}
	tracker := newTestLockoutTracker(stats, activity)

	err := tracker.RecordSuccess(context.Background(), "user-1", "session-abc", models.ActivityUserLogin, testRequestInfo())

	require.Error(t, err)
	assert.True(t, recorded)
	assert.False(t, cancelled)
}
