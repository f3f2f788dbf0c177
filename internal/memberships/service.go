package memberships

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storehub-platform/storehub/internal/authz"
	"github.com/storehub-platform/storehub/internal/shared"
)

// RepositoryPort defines data access methods for memberships.
type RepositoryPort interface {
	MembershipByUser(ctx context.Context, tenantID, userID string) (authz.Membership, bool, error)
	ListMemberships(ctx context.Context, tenantID string, limit, offset int) ([]authz.Membership, int, error)
	InsertMembership(ctx context.Context, m authz.Membership) error
	UpdateMembership(ctx context.Context, m authz.Membership) error
}

// AuditRecorder captures audit events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DecisionInvalidator drops cached authorization decisions after a mutation.
type DecisionInvalidator interface {
	Bump(ctx context.Context) error
}

// Page is one page of a tenant's member list.
type Page struct {
	Members    []authz.Membership `json:"members"`
	Pagination shared.Pagination  `json:"pagination"`
}

// Service administers tenant memberships. Role references are checked against
// the role store at assignment time; resolution-time integrity is the
// engine's concern.
type Service struct {
	repo        RepositoryPort
	roles       authz.RoleSource
	audit       AuditRecorder
	invalidator DecisionInvalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roles authz.RoleSource, audit AuditRecorder, invalidator DecisionInvalidator, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		roles:       roles,
		audit:       audit,
		invalidator: invalidator,
		logger:      logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Get fetches the membership for a user in a tenant.
func (s *Service) Get(ctx context.Context, tenantID, userID string) (authz.Membership, error) {
	m, ok, err := s.repo.MembershipByUser(ctx, tenantID, userID)
	if err != nil {
		return authz.Membership{}, err
	}
	if !ok {
		return authz.Membership{}, ErrNotFound
	}
	return m, nil
}

// List returns one page of a tenant's members.
func (s *Service) List(ctx context.Context, tenantID string, page, perPage int) (Page, error) {
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	members, total, err := s.repo.ListMemberships(ctx, tenantID, perPage, (page-1)*perPage)
	if err != nil {
		return Page{}, err
	}
	return Page{Members: members, Pagination: shared.NewPagination(page, perPage, total)}, nil
}

// Add enrolls a user into a tenant. The membership starts active.
func (s *Service) Add(ctx context.Context, actorID, tenantID string, input AddInput) (authz.Membership, error) {
	if input.UserID == "" {
		return authz.Membership{}, fmt.Errorf("%w: user_id required", ErrInvalidInput)
	}

	roleID := input.RoleID
	overrides := input.CustomPermissions
	if roleID == "" {
		if input.Tier != "" && !authz.ValidTier(input.Tier) {
			return authz.Membership{}, fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, input.Tier)
		}
		roleID, overrides = tierDefaults(input.Tier, overrides)
	}
	if err := s.checkAssignable(ctx, tenantID, roleID); err != nil {
		return authz.Membership{}, err
	}
	if overrides != nil {
		if err := overrides.Validate(); err != nil {
			return authz.Membership{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		overrides = overrides.Clone()
	}

	now := s.now()
	m := authz.Membership{
		TenantID:          tenantID,
		UserID:            input.UserID,
		RoleID:            roleID,
		CustomPermissions: overrides,
		Status:            authz.StatusActive,
		ExpiresAt:         input.ExpiresAt,
		JoinedAt:          now,
		InvitedBy:         actorID,
		UpdatedAt:         now,
	}
	if err := s.repo.InsertMembership(ctx, m); err != nil {
		return authz.Membership{}, err
	}

	s.recordAudit(ctx, actorID, "member_add", tenantID, input.UserID, map[string]any{"role_id": roleID})
	s.bump(ctx)
	return m, nil
}

// Patch applies a partial update: role reassignment, override replacement,
// status transition per the lifecycle machine, expiry change.
func (s *Service) Patch(ctx context.Context, actorID, tenantID, userID string, input PatchInput) (authz.Membership, error) {
	m, err := s.Get(ctx, tenantID, userID)
	if err != nil {
		return authz.Membership{}, err
	}

	if input.RoleID != nil {
		if err := s.checkAssignable(ctx, tenantID, *input.RoleID); err != nil {
			return authz.Membership{}, err
		}
		m.RoleID = *input.RoleID
	}
	if input.CustomPermissions != nil {
		if err := input.CustomPermissions.Validate(); err != nil {
			return authz.Membership{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		m.CustomPermissions = input.CustomPermissions.Clone()
	}
	if input.Status != nil {
		if !authz.ValidStatus(*input.Status) {
			return authz.Membership{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *input.Status)
		}
		if !authz.CanTransition(m.Status, *input.Status) {
			return authz.Membership{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, m.Status, *input.Status)
		}
		// A removed member has no role; reinstating one without assigning a
		// role in the same patch would activate an unresolvable membership.
		if *input.Status == authz.StatusActive && m.RoleID == "" {
			return authz.Membership{}, fmt.Errorf("%w: cannot activate a membership without a role", ErrInvalidTransition)
		}
		m.Status = *input.Status
	}
	if input.ClearExpiry {
		m.ExpiresAt = nil
	} else if input.ExpiresAt != nil {
		m.ExpiresAt = input.ExpiresAt
	}
	m.UpdatedAt = s.now()

	if err := s.repo.UpdateMembership(ctx, m); err != nil {
		return authz.Membership{}, err
	}

	s.recordAudit(ctx, actorID, "member_update", tenantID, userID, map[string]any{"role_id": m.RoleID, "status": string(m.Status)})
	s.bump(ctx)
	return m, nil
}

// Remove retires a membership: status inactive, role reference cleared. The
// record stays for the audit trail. Removal is administrative and applies
// from any status; removing an already removed member is a no-op.
func (s *Service) Remove(ctx context.Context, actorID, tenantID, userID string) error {
	m, err := s.Get(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if m.Status == authz.StatusInactive && m.RoleID == "" {
		return nil
	}

	m.Status = authz.StatusInactive
	m.RoleID = ""
	m.CustomPermissions = nil
	m.UpdatedAt = s.now()
	if err := s.repo.UpdateMembership(ctx, m); err != nil {
		return err
	}

	s.recordAudit(ctx, actorID, "member_remove", tenantID, userID, nil)
	s.bump(ctx)
	return nil
}

func (s *Service) checkAssignable(ctx context.Context, tenantID, roleID string) error {
	if roleID == "" {
		return fmt.Errorf("%w: role_id required", ErrInvalidInput)
	}
	role, ok, err := s.roles.RoleByID(ctx, tenantID, roleID)
	if err != nil {
		return err
	}
	if !ok || !role.IsActive {
		return fmt.Errorf("%w: %s", ErrRoleNotAssignable, roleID)
	}
	// Level order: a caller may only hand out roles strictly below their own
	// level. Contexts without a resolved authority (seed, jobs) are exempt.
	if authority, ok := shared.AuthorityFromContext(ctx); ok && !authz.CanManage(authority.Level, role.Level) {
		return fmt.Errorf("%w: level %d at caller level %d", ErrRoleNotManageable, role.Level, authority.Level)
	}
	return nil
}

// tierDefaults maps the informal tier to a system role plus canned overrides.
// Owner gets the owner role outright; other tiers ride on the member role
// with the tier's permissions as membership overrides.
func tierDefaults(tier authz.Tier, overrides authz.PermissionSet) (string, authz.PermissionSet) {
	if tier == authz.TierOwner {
		return authz.RoleOwner, overrides
	}
	if overrides == nil && tier != "" && tier != authz.TierViewer {
		overrides = authz.DefaultPermissionsForTier(tier)
	}
	return authz.RoleMember, overrides
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, tenantID, userID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		TenantID: tenantID,
		Action:   action,
		Entity:   "memberships",
		EntityID: tenantID + "/" + userID,
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("record audit", slog.Any("error", err))
	}
}

func (s *Service) bump(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("invalidate decisions", slog.Any("error", err))
	}
}
