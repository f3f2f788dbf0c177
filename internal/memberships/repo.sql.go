package memberships

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storehub-platform/storehub/internal/authz"
)

// Repository provides PostgreSQL backed persistence for memberships. The
// table is keyed (tenant_id, user_id); rows are never deleted, removal is a
// status change.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const uniqueViolation = "23505"

const membershipColumns = `tenant_id, user_id, COALESCE(role_id, ''), custom_permissions, status, expires_at, joined_at, invited_by, updated_at`

// MembershipByUser fetches the membership for a user in a tenant.
func (r *Repository) MembershipByUser(ctx context.Context, tenantID, userID string) (authz.Membership, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	m, err := scanMembership(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return authz.Membership{}, false, nil
	}
	if err != nil {
		return authz.Membership{}, false, err
	}
	return m, true, nil
}

// ListMemberships returns one page of a tenant's memberships plus the total
// count, ordered by join time.
func (r *Repository) ListMemberships(ctx context.Context, tenantID string, limit, offset int) ([]authz.Membership, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM memberships WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE tenant_id = $1 ORDER BY joined_at, user_id LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var memberships []authz.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, 0, err
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return memberships, total, nil
}

// InsertMembership enrolls a user. The primary key enforces one membership
// per user per tenant.
func (r *Repository) InsertMembership(ctx context.Context, m authz.Membership) error {
	overrides, err := marshalOverrides(m.CustomPermissions)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO memberships (tenant_id, user_id, role_id, custom_permissions, status, expires_at, joined_at, invited_by, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)`,
		m.TenantID, m.UserID, m.RoleID, overrides, m.Status, m.ExpiresAt, m.JoinedAt, m.InvitedBy, m.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyMember
	}
	return err
}

// UpdateMembership overwrites the mutable fields of a membership.
func (r *Repository) UpdateMembership(ctx context.Context, m authz.Membership) error {
	overrides, err := marshalOverrides(m.CustomPermissions)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE memberships
		SET role_id = NULLIF($3, ''), custom_permissions = $4, status = $5, expires_at = $6, updated_at = $7
		WHERE tenant_id = $1 AND user_id = $2`,
		m.TenantID, m.UserID, m.RoleID, overrides, m.Status, m.ExpiresAt, m.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireDue flips active memberships whose expiry has passed to inactive and
// returns the affected pairs. Used by the hygiene sweep.
func (r *Repository) ExpireDue(ctx context.Context, now time.Time) ([]authz.Membership, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE memberships
		SET status = 'inactive', updated_at = $1
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING `+membershipColumns, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []authz.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, m)
	}
	return expired, rows.Err()
}

// RoleReferences returns the distinct (tenant_id, role_id) pairs referenced by
// active memberships. Used by the integrity scan.
func (r *Repository) RoleReferences(ctx context.Context) (map[string][]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id, role_id FROM memberships WHERE status = 'active' AND role_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make(map[string][]string)
	for rows.Next() {
		var tenantID, roleID string
		if err := rows.Scan(&tenantID, &roleID); err != nil {
			return nil, err
		}
		refs[tenantID] = append(refs[tenantID], roleID)
	}
	return refs, rows.Err()
}

func marshalOverrides(set authz.PermissionSet) ([]byte, error) {
	if set == nil {
		return nil, nil
	}
	return json.Marshal(set)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (authz.Membership, error) {
	var (
		m   authz.Membership
		raw []byte
	)
	if err := row.Scan(&m.TenantID, &m.UserID, &m.RoleID, &raw, &m.Status, &m.ExpiresAt, &m.JoinedAt, &m.InvitedBy, &m.UpdatedAt); err != nil {
		return authz.Membership{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m.CustomPermissions); err != nil {
			return authz.Membership{}, fmt.Errorf("memberships: decode overrides for %s/%s: %w", m.TenantID, m.UserID, err)
		}
	}
	return m, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
