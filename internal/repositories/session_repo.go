package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/posgate/internal/database"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository persists user_sessions. No statement ever sets
// is_active back to TRUE.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO user_sessions (session_id, user_id, ip_address, user_agent, device_fingerprint, expires_at, is_active, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW())
		RETURNING last_activity, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		s.SessionID, s.UserID, s.IPAddress, s.UserAgent, s.DeviceFingerprint, s.ExpiresAt,
	).Scan(&s.LastActivity, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", database.MapPostgresError(err))
	}
	s.IsActive = true
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `
		SELECT session_id, user_id::text, ip_address, user_agent, device_fingerprint,
			expires_at, is_active, last_activity, created_at
		FROM user_sessions WHERE session_id = $1
	`

	var s models.Session
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&s.SessionID, &s.UserID, &s.IPAddress, &s.UserAgent, &s.DeviceFingerprint,
		&s.ExpiresAt, &s.IsActive, &s.LastActivity, &s.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

// Deactivate ends an active session owned by userID. It reports false when
// no active session matched.
func (r *SessionRepository) Deactivate(ctx context.Context, sessionID, userID string) (bool, error) {
	query := `
		UPDATE user_sessions SET is_active = FALSE, last_activity = NOW()
		WHERE session_id = $1 AND user_id = $2 AND is_active = TRUE
	`

	result, err := r.pool.Exec(ctx, query, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session: %w", database.MapPostgresError(err))
	}
	return result.RowsAffected() == 1, nil
}

// Touch bumps last_activity only; expires_at is fixed at creation
func (r *SessionRepository) Touch(ctx context.Context, sessionID string) error {
	query := `UPDATE user_sessions SET last_activity = NOW() WHERE session_id = $1 AND is_active = TRUE`

	result, err := r.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", database.MapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeactivateExpired closes every active session past its expiry and lowers
// each owner's active session count by the number closed, in one statement
func (r *SessionRepository) DeactivateExpired(ctx context.Context) (int64, error) {
	query := `
		WITH expired AS (
			UPDATE user_sessions SET is_active = FALSE
			WHERE is_active = TRUE AND expires_at <= NOW()
			RETURNING user_id
		),
		per_user AS (
			SELECT user_id, COUNT(*) AS closed FROM expired GROUP BY user_id
		),
		decremented AS (
			UPDATE user_login_statistics s
			SET active_sessions_count = GREATEST(s.active_sessions_count - p.closed, 0), updated_at = NOW()
			FROM per_user p
			WHERE s.user_id = p.user_id
		)
		SELECT COUNT(*) FROM expired
	`

	var n int64
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to deactivate expired sessions: %w", err)
	}
	return n, nil
}

// DeleteInactiveBefore purges inactive sessions that expired before cutoff
func (r *SessionRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE is_active = FALSE AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive sessions: %w", err)
	}
	return result.RowsAffected(), nil
}
