package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/storehub-platform/storehub/internal/authz"
	"github.com/storehub-platform/storehub/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	RoleByID(ctx context.Context, tenantID, roleID string) (authz.Role, bool, error)
	ListRoles(ctx context.Context, tenantID string) ([]authz.Role, error)
	InsertTenantRole(ctx context.Context, role authz.Role, foldedName string) error
	UpdateTenantRole(ctx context.Context, role authz.Role, foldedName string) error
	SetTenantRoleActive(ctx context.Context, tenantID, roleID string, active bool, at time.Time) error
	NameTaken(ctx context.Context, tenantID, foldedName, excludeRoleID string) (bool, error)
	CountActiveMembershipsByRole(ctx context.Context, tenantID, roleID string) (int, error)
}

// AuditRecorder captures audit events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DecisionInvalidator drops cached authorization decisions after a mutation.
type DecisionInvalidator interface {
	Bump(ctx context.Context) error
}

// Service handles tenant role administration. Every mutation is validated
// against the hierarchy invariants before it is persisted; the resolution
// engine never sees a role this service rejected.
type Service struct {
	repo        RepositoryPort
	audit       AuditRecorder
	invalidator DecisionInvalidator
	logger      *slog.Logger
	folder      cases.Caser
	now         func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditRecorder, invalidator DecisionInvalidator, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		audit:       audit,
		invalidator: invalidator,
		logger:      logger,
		folder:      cases.Fold(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// List returns the system roles plus the tenant's custom roles, level
// descending.
func (s *Service) List(ctx context.Context, tenantID string) ([]authz.Role, error) {
	return s.repo.ListRoles(ctx, tenantID)
}

// Get fetches a role visible in the tenant's scope.
func (s *Service) Get(ctx context.Context, tenantID, roleID string) (authz.Role, error) {
	role, ok, err := s.repo.RoleByID(ctx, tenantID, roleID)
	if err != nil {
		return authz.Role{}, err
	}
	if !ok {
		return authz.Role{}, ErrNotFound
	}
	return role, nil
}

// Templates returns the predefined custom role starting points.
func (s *Service) Templates() []authz.RoleTemplate {
	return authz.RoleTemplates()
}

// Create validates and persists a new tenant role.
func (s *Service) Create(ctx context.Context, actorID string, input CreateInput) (authz.Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return authz.Role{}, fmt.Errorf("%w: name required", ErrInvalidRoleDefinition)
	}
	permissions := input.Permissions
	if permissions == nil {
		permissions = authz.ViewDefaults()
	}

	now := s.now()
	role := authz.Role{
		ID:           uuid.NewString(),
		Kind:         authz.KindTenant,
		TenantID:     input.TenantID,
		Name:         name,
		Description:  strings.TrimSpace(input.Description),
		Level:        input.Level,
		Permissions:  permissions.Clone(),
		InheritsFrom: input.InheritsFrom,
		IsActive:     true,
		CreatedBy:    actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.validateDefinition(ctx, role); err != nil {
		return authz.Role{}, err
	}

	folded := s.folder.String(name)
	taken, err := s.repo.NameTaken(ctx, input.TenantID, folded, role.ID)
	if err != nil {
		return authz.Role{}, err
	}
	if taken {
		return authz.Role{}, ErrNameTaken
	}

	if err := s.repo.InsertTenantRole(ctx, role, folded); err != nil {
		return authz.Role{}, err
	}

	s.recordAudit(ctx, actorID, "role_create", role.ID, role.TenantID, map[string]any{"name": role.Name, "level": role.Level})
	s.bump(ctx)
	return role, nil
}

// Update validates the post-patch state and persists it. System roles are
// immutable.
func (s *Service) Update(ctx context.Context, actorID, tenantID, roleID string, input UpdateInput) (authz.Role, error) {
	role, err := s.Get(ctx, tenantID, roleID)
	if err != nil {
		return authz.Role{}, err
	}
	if role.IsSystem() {
		return authz.Role{}, ErrSystemRoleImmutable
	}

	if input.Name != nil {
		role.Name = strings.TrimSpace(*input.Name)
		if role.Name == "" {
			return authz.Role{}, fmt.Errorf("%w: name required", ErrInvalidRoleDefinition)
		}
	}
	if input.Description != nil {
		role.Description = strings.TrimSpace(*input.Description)
	}
	if input.Level != nil {
		role.Level = *input.Level
	}
	if input.InheritsFrom != nil {
		role.InheritsFrom = *input.InheritsFrom
	}
	if input.Permissions != nil {
		role.Permissions = input.Permissions.Clone()
	}
	if input.IsActive != nil {
		role.IsActive = *input.IsActive
	}
	role.UpdatedAt = s.now()

	if err := s.validateDefinition(ctx, role); err != nil {
		return authz.Role{}, err
	}

	folded := s.folder.String(role.Name)
	taken, err := s.repo.NameTaken(ctx, tenantID, folded, roleID)
	if err != nil {
		return authz.Role{}, err
	}
	if taken {
		return authz.Role{}, ErrNameTaken
	}

	if err := s.repo.UpdateTenantRole(ctx, role, folded); err != nil {
		return authz.Role{}, err
	}

	s.recordAudit(ctx, actorID, "role_update", role.ID, role.TenantID, map[string]any{"name": role.Name, "level": role.Level})
	s.bump(ctx)
	return role, nil
}

// Deactivate flips the role inactive and reports how many active memberships
// still reference it. The count is advisory, never blocking: resolution
// already degrades an inactive role to the all-deny contribution.
func (s *Service) Deactivate(ctx context.Context, actorID, tenantID, roleID string) (DeactivateResult, error) {
	role, err := s.Get(ctx, tenantID, roleID)
	if err != nil {
		return DeactivateResult{}, err
	}
	if role.IsSystem() {
		return DeactivateResult{}, ErrSystemRoleImmutable
	}

	if err := checkLevelCeiling(ctx, role.Level); err != nil {
		return DeactivateResult{}, err
	}

	now := s.now()
	if err := s.repo.SetTenantRoleActive(ctx, tenantID, roleID, false, now); err != nil {
		return DeactivateResult{}, err
	}
	role.IsActive = false
	role.UpdatedAt = now

	affected, err := s.repo.CountActiveMembershipsByRole(ctx, tenantID, roleID)
	if err != nil {
		return DeactivateResult{}, err
	}
	if affected > 0 {
		s.logger.Warn("deactivated role still referenced",
			slog.String("role_id", roleID),
			slog.String("tenant_id", tenantID),
			slog.Int("active_memberships", affected))
	}

	s.recordAudit(ctx, actorID, "role_deactivate", roleID, tenantID, map[string]any{"affected_memberships": affected})
	s.bump(ctx)
	return DeactivateResult{Role: role, AffectedMemberships: affected}, nil
}

// Delete retires a role. Deletion is refused while active memberships still
// reference it; the record itself is retained (deactivated) because audit
// trails reference role ids.
func (s *Service) Delete(ctx context.Context, actorID, tenantID, roleID string) error {
	role, err := s.Get(ctx, tenantID, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem() {
		return ErrSystemRoleImmutable
	}
	if err := checkLevelCeiling(ctx, role.Level); err != nil {
		return err
	}

	count, err := s.repo.CountActiveMembershipsByRole(ctx, tenantID, roleID)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %d active memberships", ErrRoleInUse, count)
	}

	if err := s.repo.SetTenantRoleActive(ctx, tenantID, roleID, false, s.now()); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "role_delete", roleID, tenantID, nil)
	s.bump(ctx)
	return nil
}

// Clone copies an existing role into a new tenant role under a new name.
func (s *Service) Clone(ctx context.Context, actorID, tenantID, sourceRoleID, newName string) (authz.Role, error) {
	source, err := s.Get(ctx, tenantID, sourceRoleID)
	if err != nil {
		return authz.Role{}, err
	}

	level := source.Level
	if source.IsSystem() {
		level = authz.LevelManager
	}
	return s.Create(ctx, actorID, CreateInput{
		TenantID:     tenantID,
		Name:         newName,
		Description:  fmt.Sprintf("Cloned from %s", source.Name),
		Level:        level,
		InheritsFrom: source.InheritsFrom,
		Permissions:  source.Permissions.Clone(),
	})
}

// validateDefinition enforces the hierarchy invariants on a prospective role
// state: level band, vocabulary, parent existence and scope, and acyclicity.
// The cycle check runs the same bounded walk the resolution engine uses, with
// the prospective role overlaid on the store.
func (s *Service) validateDefinition(ctx context.Context, role authz.Role) error {
	if !authz.ValidTenantLevel(role.Level) {
		return fmt.Errorf("%w: level %d outside %d-%d", ErrInvalidRoleDefinition, role.Level, authz.TenantLevelMin, authz.TenantLevelMax)
	}
	if err := checkLevelCeiling(ctx, role.Level); err != nil {
		return err
	}
	if err := role.Permissions.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRoleDefinition, err)
	}
	if authz.SystemRoleID(s.folder.String(role.Name)) {
		return fmt.Errorf("%w: name %q is reserved", ErrInvalidRoleDefinition, role.Name)
	}
	if role.InheritsFrom == "" {
		return nil
	}
	if role.InheritsFrom == role.ID {
		return fmt.Errorf("%w: role cannot inherit from itself", ErrInvalidRoleDefinition)
	}
	parent, ok, err := s.repo.RoleByID(ctx, role.TenantID, role.InheritsFrom)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: parent role %s not found in tenant scope", ErrInvalidRoleDefinition, role.InheritsFrom)
	}
	if parent.Kind == authz.KindTenant && parent.TenantID != role.TenantID {
		return fmt.Errorf("%w: parent role belongs to another tenant", ErrInvalidRoleDefinition)
	}

	overlay := overlayRoleSource{base: s.repo, candidate: role}
	if _, err := authz.ChainFor(ctx, overlay, role.TenantID, role); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRoleDefinition, err)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, roleID, tenantID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		TenantID: tenantID,
		Action:   action,
		Entity:   "tenant_roles",
		EntityID: roleID,
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

// checkLevelCeiling enforces the level order on role mutations: a caller may
// only touch levels strictly below their own. Contexts without a resolved
// authority (seed, jobs) are exempt.
func checkLevelCeiling(ctx context.Context, level int) error {
	authority, ok := shared.AuthorityFromContext(ctx)
	if !ok || authz.CanManage(authority.Level, level) {
		return nil
	}
	return fmt.Errorf("%w: level %d at caller level %d", ErrLevelNotPermitted, level, authority.Level)
}

// overlayRoleSource lets the cycle check see a role state that is not
// persisted yet.
type overlayRoleSource struct {
	base      authz.RoleSource
	candidate authz.Role
}

func (o overlayRoleSource) RoleByID(ctx context.Context, tenantID, roleID string) (authz.Role, bool, error) {
	if roleID == o.candidate.ID {
		return o.candidate, true, nil
	}
	return o.base.RoleByID(ctx, tenantID, roleID)
}
