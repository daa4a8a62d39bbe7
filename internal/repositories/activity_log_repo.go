package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/posgate/internal/database"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityLogRepository writes the user_activity_logs trail
type ActivityLogRepository struct {
	pool *pgxpool.Pool
}

func NewActivityLogRepository(db *database.DB) *ActivityLogRepository {
	return &ActivityLogRepository{pool: db.Pool}
}

func (r *ActivityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	query := `
		INSERT INTO user_activity_logs (
			user_id, session_id, action_type, ip_address, user_agent,
			device_fingerprint, action_result, performed_by
		)
		VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5, $6, $7, NULLIF($8, '')::uuid)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		entry.UserID, entry.SessionID, entry.ActionType, entry.IPAddress, entry.UserAgent,
		entry.DeviceFingerprint, entry.ActionResult, entry.PerformedBy,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create activity log: %w", database.MapPostgresError(err))
	}
	return nil
}

// DeleteOlderThan enforces the retention window
func (r *ActivityLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM user_activity_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old activity logs: %w", err)
	}
	return result.RowsAffected(), nil
}
