package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/posgate/internal/database"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner covers pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// The role name is only joined while the role is active
const userColumns = `
	u.id::text, u.first_name, u.last_name, u.email, u.phone, u.password_hash,
	u.role_id, COALESCE(r.name, ''), u.is_active, u.is_2fa_required, u.is_2fa_enabled,
	u.account_locked_until, u.created_at, u.updated_at`

const userFrom = `
	FROM users u
	LEFT JOIN roles r ON r.id = u.role_id AND r.is_active = TRUE`

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.Phone, &user.PasswordHash,
		&user.RoleID, &user.RoleName, &user.IsActive, &user.Is2FARequired, &user.Is2FAEnabled,
		&user.AccountLockedUntil, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

// GetByID returns the user regardless of its active flag
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + userFrom + ` WHERE u.id = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// GetActiveByEmail looks an active user up by case-insensitive email
func (r *UserRepository) GetActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + userFrom + `
		WHERE LOWER(u.email) = $1 AND u.is_active = TRUE`

	return scanUserRow(r.pool.QueryRow(ctx, query, normalizeEmail(email)))
}

// GetByEmail includes inactive users, which forgot-password logs but never mails
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + userFrom + ` WHERE LOWER(u.email) = $1`

	return scanUserRow(r.pool.QueryRow(ctx, query, normalizeEmail(email)))
}

// Create inserts a user; registration is external so this only serves the
// bootstrap admin and tests
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (first_name, last_name, email, phone, password_hash, role_id, is_active, is_2fa_required)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text
	`

	var id string
	err := r.pool.QueryRow(ctx, query,
		user.FirstName, user.LastName, normalizeEmail(user.Email), user.Phone,
		user.PasswordHash, user.RoleID, user.IsActive, user.Is2FARequired,
	).Scan(&id)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return r.GetByID(ctx, id)
}

// LockUntil sets account_locked_until
func (r *UserRepository) LockUntil(ctx context.Context, userID string, until time.Time) error {
	query := `UPDATE users SET account_locked_until = $1, updated_at = NOW() WHERE id = $2`

	return r.execOne(ctx, query, until, userID)
}

// SetTwoFactorEnabled flips is_2fa_enabled on an active user
func (r *UserRepository) SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error {
	query := `UPDATE users SET is_2fa_enabled = $1, updated_at = NOW() WHERE id = $2 AND is_active = TRUE`

	return r.execOne(ctx, query, enabled, userID)
}

// UpdatePassword stores a new hash and clears any account lock
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `
		UPDATE users SET password_hash = $1, account_locked_until = NULL, updated_at = NOW()
		WHERE id = $2 AND is_active = TRUE
	`

	return r.execOne(ctx, query, passwordHash, userID)
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", database.MapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
