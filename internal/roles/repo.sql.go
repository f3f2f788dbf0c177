package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storehub-platform/storehub/internal/authz"
)

// Repository provides PostgreSQL backed persistence for system and tenant
// roles. System roles live in system_roles and are written only by the
// bootstrap seed; tenant roles live in tenant_roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const uniqueViolation = "23505"

// RoleByID implements authz.RoleSource. System role ids resolve first; tenant
// role ids resolve only within the given tenant.
func (r *Repository) RoleByID(ctx context.Context, tenantID, roleID string) (authz.Role, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, description, level, permissions, is_active, created_at, updated_at FROM system_roles WHERE id = $1`, roleID)
	role, err := scanSystemRole(row)
	if err == nil {
		return role, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return authz.Role{}, false, err
	}

	row = r.pool.QueryRow(ctx, `SELECT id, tenant_id, name, description, level, permissions, COALESCE(inherits_from, ''), is_active, created_by, created_at, updated_at FROM tenant_roles WHERE id = $1 AND tenant_id = $2`, roleID, tenantID)
	role, err = scanTenantRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return authz.Role{}, false, nil
	}
	if err != nil {
		return authz.Role{}, false, err
	}
	return role, true, nil
}

// ListRoles returns the system roles plus the tenant's custom roles, ordered
// by level descending.
func (r *Repository) ListRoles(ctx context.Context, tenantID string) ([]authz.Role, error) {
	var roles []authz.Role

	rows, err := r.pool.Query(ctx, `SELECT id, name, description, level, permissions, is_active, created_at, updated_at FROM system_roles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		role, err := scanSystemRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `SELECT id, tenant_id, name, description, level, permissions, COALESCE(inherits_from, ''), is_active, created_by, created_at, updated_at FROM tenant_roles WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		role, err := scanTenantRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortRolesByLevel(roles)
	return roles, nil
}

// InsertTenantRole persists a new tenant role. foldedName backs the
// case-insensitive uniqueness constraint.
func (r *Repository) InsertTenantRole(ctx context.Context, role authz.Role, foldedName string) error {
	permissions, err := json.Marshal(role.Permissions)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO tenant_roles (id, tenant_id, name, name_folded, description, level, permissions, inherits_from, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12)`,
		role.ID, role.TenantID, role.Name, foldedName, role.Description, role.Level, permissions, role.InheritsFrom, role.IsActive, role.CreatedBy, role.CreatedAt, role.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrNameTaken
	}
	return err
}

// UpdateTenantRole overwrites the mutable fields of a tenant role.
func (r *Repository) UpdateTenantRole(ctx context.Context, role authz.Role, foldedName string) error {
	permissions, err := json.Marshal(role.Permissions)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenant_roles
		SET name = $3, name_folded = $4, description = $5, level = $6, permissions = $7, inherits_from = NULLIF($8, ''), is_active = $9, updated_at = $10
		WHERE id = $1 AND tenant_id = $2`,
		role.ID, role.TenantID, role.Name, foldedName, role.Description, role.Level, permissions, role.InheritsFrom, role.IsActive, role.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrNameTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTenantRoleActive flips the is_active flag.
func (r *Repository) SetTenantRoleActive(ctx context.Context, tenantID, roleID string, active bool, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE tenant_roles SET is_active = $3, updated_at = $4 WHERE id = $1 AND tenant_id = $2`, roleID, tenantID, active, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NameTaken reports whether another role in the tenant already uses the
// folded name.
func (r *Repository) NameTaken(ctx context.Context, tenantID, foldedName, excludeRoleID string) (bool, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenant_roles WHERE tenant_id = $1 AND name_folded = $2 AND id <> $3`, tenantID, foldedName, excludeRoleID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountActiveMembershipsByRole counts active memberships referencing the
// role, for the deactivation advisory and the delete guard.
func (r *Repository) CountActiveMembershipsByRole(ctx context.Context, tenantID, roleID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM memberships WHERE tenant_id = $1 AND role_id = $2 AND status = 'active'`, tenantID, roleID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UpsertSystemRole creates or refreshes a system role, preserving created_at.
// Used only by the bootstrap seed.
func (r *Repository) UpsertSystemRole(ctx context.Context, role authz.Role, at time.Time) error {
	permissions, err := json.Marshal(role.Permissions)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO system_roles (id, name, description, level, permissions, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, description = EXCLUDED.description, level = EXCLUDED.level, permissions = EXCLUDED.permissions, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`,
		role.ID, role.Name, role.Description, role.Level, permissions, role.IsActive, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSystemRole(row rowScanner) (authz.Role, error) {
	var (
		role authz.Role
		raw  []byte
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Level, &raw, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return authz.Role{}, err
	}
	role.Kind = authz.KindSystem
	if err := json.Unmarshal(raw, &role.Permissions); err != nil {
		return authz.Role{}, fmt.Errorf("roles: decode permissions for %s: %w", role.ID, err)
	}
	return role, nil
}

func scanTenantRole(row rowScanner) (authz.Role, error) {
	var (
		role authz.Role
		raw  []byte
	)
	if err := row.Scan(&role.ID, &role.TenantID, &role.Name, &role.Description, &role.Level, &raw, &role.InheritsFrom, &role.IsActive, &role.CreatedBy, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return authz.Role{}, err
	}
	role.Kind = authz.KindTenant
	if err := json.Unmarshal(raw, &role.Permissions); err != nil {
		return authz.Role{}, fmt.Errorf("roles: decode permissions for %s: %w", role.ID, err)
	}
	return role, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func sortRolesByLevel(roles []authz.Role) {
	sort.SliceStable(roles, func(i, j int) bool {
		return roles[i].Level > roles[j].Level
	})
}
