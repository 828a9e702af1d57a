package models

import (
	"time"

	"github.com/google/uuid"
)

// MembershipStatus is the lifecycle state of a user's seat in an organization.
type MembershipStatus string

const (
	MembershipActive         MembershipStatus = "active"
	MembershipPendingRemoval MembershipStatus = "pending_removal"
	MembershipArchived       MembershipStatus = "archived"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// Membership links a user to an organization. IsActive stays true while the
// member is in the grace period (pending_removal) and flips to false only
// once the removal is finalized at renewal.
type Membership struct {
	ID                   uuid.UUID        `json:"id" db:"id"`
	UserID               uuid.UUID        `json:"user_id" db:"user_id"`
	OrganizationID       uuid.UUID        `json:"organization_id" db:"organization_id"`
	Role                 Role             `json:"role" db:"role"`
	Status               MembershipStatus `json:"status" db:"status"`
	IsActive             bool             `json:"is_active" db:"is_active"`
	RemovalEffectiveDate *time.Time       `json:"removal_effective_date" db:"removal_effective_date"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at" db:"updated_at"`
}

// OccupiesSeat reports whether the membership is billed for the current period.
func (m *Membership) OccupiesSeat() bool {
	return m.Status == MembershipActive || m.Status == MembershipPendingRemoval
}
