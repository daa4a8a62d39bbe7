package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/posgate/internal/database"
	"github.com/BradenHooton/posgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PermissionRepository struct {
	pool *pgxpool.Pool
}

func NewPermissionRepository(db *database.DB) *PermissionRepository {
	return &PermissionRepository{pool: db.Pool}
}

// GetEffectivePermissions returns one grant per active module the user can
// reach. A live direct user grant wins over the role grant.
func (r *PermissionRepository) GetEffectivePermissions(ctx context.Context, userID string, roleID int) ([]models.ModulePermission, error) {
	query := `
		SELECT
			m.id,
			m.name,
			m.endpoint_pattern,
			COALESCE(up.can_create, rp.can_create, FALSE),
			COALESCE(up.can_read, rp.can_read, FALSE),
			COALESCE(up.can_update, rp.can_update, FALSE),
			COALESCE(up.can_delete, rp.can_delete, FALSE),
			CASE WHEN up.id IS NOT NULL THEN 'user_permission' ELSE 'role_permission' END
		FROM modules m
		LEFT JOIN role_permissions rp
			ON rp.module_id = m.id AND rp.role_id = $1 AND rp.is_active = TRUE
		LEFT JOIN user_permissions up
			ON up.module_id = m.id AND up.user_id = $2 AND up.is_active = TRUE
			AND (up.expires_at IS NULL OR up.expires_at > NOW())
		WHERE m.is_active = TRUE
			AND (rp.id IS NOT NULL OR up.id IS NOT NULL)
		ORDER BY m.display_order ASC, m.id ASC
	`

	rows, err := r.pool.Query(ctx, query, roleID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", database.MapPostgresError(err))
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ModulePermission, error) {
		var p models.ModulePermission
		err := row.Scan(
			&p.ModuleID, &p.ModuleName, &p.EndpointPattern,
			&p.CanCreate, &p.CanRead, &p.CanUpdate, &p.CanDelete, &p.Source,
		)
		return p, err
	})
}

// GetRole returns the role regardless of its active flag
func (r *PermissionRepository) GetRole(ctx context.Context, roleID int) (*models.Role, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), display_order, is_active
		FROM roles WHERE id = $1
	`

	var role models.Role
	err := r.pool.QueryRow(ctx, query, roleID).Scan(
		&role.ID, &role.Name, &role.Description, &role.DisplayOrder, &role.IsActive,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &role, nil
}
