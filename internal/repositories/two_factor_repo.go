package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/posgate/internal/database"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// TwoFactorRepository persists user_two_factor_auth rows. Backup codes are a
// TEXT[] of bcrypt hashes.
type TwoFactorRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewTwoFactorRepository(db *database.DB) *TwoFactorRepository {
	return &TwoFactorRepository{db: db, pool: db.Pool}
}

// GetActiveByUserID returns the active record or ErrNotFound
func (r *TwoFactorRepository) GetActiveByUserID(ctx context.Context, userID string) (*models.TwoFactorRecord, error) {
	query := `
		SELECT id, user_id::text, secret, backup_codes, backup_codes_generated_at, backup_codes_used_count,
			failed_attempts, max_failed_attempts, is_active, is_locked, locked_until, created_at, updated_at
		FROM user_two_factor_auth
		WHERE user_id = $1 AND is_active = TRUE
	`

	var rec models.TwoFactorRecord
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&rec.ID, &rec.UserID, &rec.Secret, pq.Array(&rec.BackupCodes), &rec.BackupCodesGeneratedAt,
		&rec.BackupCodesUsedCount, &rec.FailedAttempts, &rec.MaxFailedAttempts, &rec.IsActive,
		&rec.IsLocked, &rec.LockedUntil, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &rec, nil
}

// Initialize stores a freshly generated secret and backup code set. An
// existing row is reactivated with its counters and lock cleared.
func (r *TwoFactorRepository) Initialize(ctx context.Context, userID, secret string, backupCodeHashes []string, maxFailedAttempts int) error {
	query := `
		INSERT INTO user_two_factor_auth (
			user_id, secret, backup_codes, backup_codes_generated_at, max_failed_attempts, is_active
		) VALUES ($1, $2, $3, NOW(), $4, TRUE)
		ON CONFLICT (user_id) DO UPDATE SET
			secret = EXCLUDED.secret,
			backup_codes = EXCLUDED.backup_codes,
			backup_codes_generated_at = EXCLUDED.backup_codes_generated_at,
			backup_codes_used_count = 0,
			max_failed_attempts = EXCLUDED.max_failed_attempts,
			failed_attempts = 0,
			is_locked = FALSE,
			locked_until = NULL,
			is_active = TRUE,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, userID, secret, pq.Array(backupCodeHashes), maxFailedAttempts)
	if err != nil {
		return fmt.Errorf("failed to initialize two-factor record: %w", database.MapPostgresError(err))
	}
	return nil
}

// RecordFailure increments failed_attempts and, in the same statement, locks
// the record until lockUntil once the threshold is reached
func (r *TwoFactorRepository) RecordFailure(ctx context.Context, userID string, lockUntil time.Time) (*models.TwoFactorFailure, error) {
	query := `
		UPDATE user_two_factor_auth SET
			failed_attempts = failed_attempts + 1,
			is_locked = CASE WHEN failed_attempts + 1 >= max_failed_attempts THEN TRUE ELSE is_locked END,
			locked_until = CASE WHEN failed_attempts + 1 >= max_failed_attempts THEN $2 ELSE locked_until END,
			updated_at = NOW()
		WHERE user_id = $1 AND is_active = TRUE
		RETURNING failed_attempts, max_failed_attempts, is_locked, locked_until
	`

	var f models.TwoFactorFailure
	err := r.pool.QueryRow(ctx, query, userID, lockUntil).Scan(
		&f.FailedAttempts, &f.MaxFailedAttempts, &f.IsLocked, &f.LockedUntil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record two-factor failure: %w", database.MapPostgresError(err))
	}
	return &f, nil
}

// ResetFailures clears the counter and any lock after a successful verification
func (r *TwoFactorRepository) ResetFailures(ctx context.Context, userID string) error {
	query := `
		UPDATE user_two_factor_auth
		SET failed_attempts = 0, is_locked = FALSE, locked_until = NULL, updated_at = NOW()
		WHERE user_id = $1 AND is_active = TRUE
	`

	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to reset two-factor failures: %w", database.MapPostgresError(err))
	}
	return nil
}

// ConsumeBackupCode removes one hash from the set. It reports false when the
// hash is no longer present, meaning a concurrent request already spent it.
func (r *TwoFactorRepository) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	query := `
		UPDATE user_two_factor_auth SET
			backup_codes = array_remove(backup_codes, $2),
			backup_codes_used_count = backup_codes_used_count + 1,
			updated_at = NOW()
		WHERE user_id = $1 AND is_active = TRUE AND $2 = ANY(backup_codes)
	`

	result, err := r.pool.Exec(ctx, query, userID, codeHash)
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", database.MapPostgresError(err))
	}
	return result.RowsAffected() == 1, nil
}

// Delete hard-deletes the user's record and clears users.is_2fa_enabled in
// one transaction
func (r *TwoFactorRepository) Delete(ctx context.Context, userID string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx,
			`UPDATE users SET is_2fa_enabled = FALSE, updated_at = NOW() WHERE id = $1`, userID)
		if err != nil {
			return fmt.Errorf("failed to clear 2FA flag: %w", database.MapPostgresError(err))
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM user_two_factor_auth WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to delete two-factor record: %w", database.MapPostgresError(err))
		}
		return nil
	})
}
