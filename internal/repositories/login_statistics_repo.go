package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/posgate/internal/database"
	"github.com/BradenHooton/posgate/internal/models"
)

// LoginStatisticsRepository maintains the one-row-per-user login aggregate.
// Rows are created lazily by upsert and counters only move through atomic SQL.
type LoginStatisticsRepository struct {
	db *database.DB
}

func NewLoginStatisticsRepository(db *database.DB) *LoginStatisticsRepository {
	return &LoginStatisticsRepository{db: db}
}

// RecordFailure counts a failed password check and returns the new
// consecutive failure count
func (r *LoginStatisticsRepository) RecordFailure(ctx context.Context, userID string, info models.RequestInfo) (int, error) {
	query := `
		INSERT INTO user_login_statistics (
			user_id, total_logins, failed_logins, consecutive_failed_attempts,
			last_failed_login_at, last_failed_login_ip, last_failed_user_agent
		) VALUES ($1, 1, 1, 1, NOW(), $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			total_logins = user_login_statistics.total_logins + 1,
			failed_logins = user_login_statistics.failed_logins + 1,
			consecutive_failed_attempts = user_login_statistics.consecutive_failed_attempts + 1,
			last_failed_login_at = NOW(),
			last_failed_login_ip = EXCLUDED.last_failed_login_ip,
			last_failed_user_agent = EXCLUDED.last_failed_user_agent,
			updated_at = NOW()
		RETURNING consecutive_failed_attempts
	`

	var consecutive int
	err := r.db.Pool.QueryRow(ctx, query, userID, info.IPAddress, info.UserAgent).Scan(&consecutive)
	if err != nil {
		return 0, fmt.Errorf("failed to record login failure: %w", database.MapPostgresError(err))
	}
	return consecutive, nil
}

// RecordSuccess counts a successful login, resets the consecutive failure
// counter and accounts for the newly opened session
func (r *LoginStatisticsRepository) RecordSuccess(ctx context.Context, userID string, info models.RequestInfo) error {
	query := `
		INSERT INTO user_login_statistics (
			user_id, total_logins, successful_logins, consecutive_failed_attempts,
			last_successful_login_at, last_successful_login_ip, last_successful_user_agent,
			active_sessions_count
		) VALUES ($1, 1, 1, 0, NOW(), $2, $3, 1)
		ON CONFLICT (user_id) DO UPDATE SET
			total_logins = user_login_statistics.total_logins + 1,
			successful_logins = user_login_statistics.successful_logins + 1,
			consecutive_failed_attempts = 0,
			last_successful_login_at = NOW(),
			last_successful_login_ip = EXCLUDED.last_successful_login_ip,
			last_successful_user_agent = EXCLUDED.last_successful_user_agent,
			active_sessions_count = user_login_statistics.active_sessions_count + 1,
			updated_at = NOW()
	`

	if _, err := r.db.Pool.Exec(ctx, query, userID, info.IPAddress, info.UserAgent); err != nil {
		return fmt.Errorf("failed to record login success: %w", database.MapPostgresError(err))
	}
	return nil
}

// DecrementActiveSessions lowers the active session count, never below zero
func (r *LoginStatisticsRepository) DecrementActiveSessions(ctx context.Context, userID string) error {
	query := `
		UPDATE user_login_statistics
		SET active_sessions_count = GREATEST(active_sessions_count - 1, 0), updated_at = NOW()
		WHERE user_id = $1
	`

	if _, err := r.db.Pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to decrement active sessions: %w", database.MapPostgresError(err))
	}
	return nil
}

// Get returns the aggregate, or ErrNotFound before the first attempt
func (r *LoginStatisticsRepository) Get(ctx context.Context, userID string) (*models.LoginStatistics, error) {
	query := `
		SELECT user_id::text, total_logins, successful_logins, failed_logins, consecutive_failed_attempts,
			last_successful_login_at, last_successful_login_ip, last_failed_login_at, last_failed_login_ip,
			active_sessions_count
		FROM user_login_statistics WHERE user_id = $1
	`

	var s models.LoginStatistics
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&s.UserID, &s.TotalLogins, &s.SuccessfulLogins, &s.FailedLogins, &s.ConsecutiveFailedAttempts,
		&s.LastSuccessfulLoginAt, &s.LastSuccessfulLoginIP, &s.LastFailedLoginAt, &s.LastFailedLoginIP,
		&s.ActiveSessionsCount,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}
