package authz

import "time"

// MembershipStatus enumerates the lifecycle states of a tenant membership.
type MembershipStatus string

const (
	StatusActive    MembershipStatus = "active"
	StatusInactive  MembershipStatus = "inactive"
	StatusSuspended MembershipStatus = "suspended"
)

// ValidStatus reports whether s is a known membership status.
func ValidStatus(s MembershipStatus) bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// CanTransition encodes the membership state machine. Moving between
// inactive and suspended requires passing through active first.
func CanTransition(from, to MembershipStatus) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusActive:
		return to == StatusInactive || to == StatusSuspended
	case StatusInactive, StatusSuspended:
		return to == StatusActive
	}
	return false
}

// Membership ties one user to one tenant with exactly one role reference.
// Records are never physically deleted; removal is a status transition.
type Membership struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	RoleID   string `json:"role_id,omitempty"`
	// CustomPermissions is an optional partial override applied on top of the
	// resolved role chain for this user only.
	CustomPermissions PermissionSet    `json:"custom_permissions,omitempty"`
	Status            MembershipStatus `json:"status"`
	// ExpiresAt, when set, hard-stops authorization at that instant
	// regardless of role.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	JoinedAt  time.Time  `json:"joined_at"`
	InvitedBy string     `json:"invited_by,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Expired reports whether the membership has an expiry at or before now.
func (m Membership) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}
