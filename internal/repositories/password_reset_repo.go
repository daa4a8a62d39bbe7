package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/posgate/internal/database"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PasswordResetRepository struct {
	pool *pgxpool.Pool
}

func NewPasswordResetRepository(db *database.DB) *PasswordResetRepository {
	return &PasswordResetRepository{pool: db.Pool}
}

func (r *PasswordResetRepository) Create(ctx context.Context, t *models.PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	if err := r.pool.QueryRow(ctx, query, t.UserID, t.Token, t.ExpiresAt).Scan(&t.ID, &t.CreatedAt); err != nil {
		return fmt.Errorf("failed to create reset token: %w", database.MapPostgresError(err))
	}
	return nil
}

func (r *PasswordResetRepository) GetByToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	query := `
		SELECT id, user_id::text, token, expires_at, used_at, created_at
		FROM password_reset_tokens WHERE token = $1
	`

	var t models.PasswordResetToken
	err := r.pool.QueryRow(ctx, query, token).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &t, nil
}

// MarkUsed sets used_at once. It reports false when the token was already used.
func (r *PasswordResetRepository) MarkUsed(ctx context.Context, tokenID int64) (bool, error) {
	result, err := r.pool.Exec(ctx,
		`UPDATE password_reset_tokens SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`, tokenID)
	if err != nil {
		return false, fmt.Errorf("failed to mark reset token used: %w", database.MapPostgresError(err))
	}
	return result.RowsAffected() == 1, nil
}

// DeleteSpentBefore purges used or expired tokens older than cutoff
func (r *PasswordResetRepository) DeleteSpentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM password_reset_tokens WHERE (used_at IS NOT NULL OR expires_at <= NOW()) AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete spent reset tokens: %w", err)
	}
	return result.RowsAffected(), nil
}
