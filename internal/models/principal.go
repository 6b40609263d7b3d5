package models

import "github.com/google/uuid"

// Roles carried by principals
const (
	RolePassenger   = "passenger"
	RoleAgencyStaff = "agency_staff"
	RoleAdmin       = "admin"
)

// Principal is the pre-validated caller handed to every operation
type Principal struct {
	UserID   uuid.UUID `json:"user_id"`
	Roles    []string  `json:"roles"`
	AgencyID string    `json:"agency_id,omitempty"`
}

// HasRole reports whether the principal carries any of roles
func (p Principal) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range p.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IsAdmin reports whether the principal has the admin role
func (p Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

// CanActForAgency is true for admins and for staff of that agency
func (p Principal) CanActForAgency(agencyID string) bool {
	if p.IsAdmin() {
		return true
	}
	return p.HasRole(RoleAgencyStaff) && p.AgencyID != "" && p.AgencyID == agencyID
}

// ActorID returns the user id as a pointer for created_by columns
func (p Principal) ActorID() *uuid.UUID {
	if p.UserID == uuid.Nil {
		return nil
	}
	id := p.UserID
	return &id
}
