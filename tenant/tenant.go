// Package tenant resolves who is acting and which organization/instance a
// piece of data belongs to.
package tenant

import (
	"errors"
	"strings"
)

// ErrTenantMismatch is returned whenever a principal reaches for an entity
// owned by another organization or instance.
var ErrTenantMismatch = errors.New("tenant mismatch")

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleStaff    Role = "STAFF"
	RoleBorrower Role = "BORROWER"
)

// ParseRole is case-insensitive; unknown roles come back as "".
func ParseRole(s string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleStaff:
		return RoleStaff
	case RoleBorrower:
		return RoleBorrower
	}
	return ""
}

// Tenant is the data-isolation boundary. An empty InstanceID means the
// organization as a whole.
type Tenant struct {
	OrgID      string `json:"orgId"`
	InstanceID string `json:"instanceId,omitempty"`
}

func (t Tenant) String() string {
	if t.InstanceID == "" {
		return t.OrgID
	}
	return t.OrgID + "/" + t.InstanceID
}

// Principal is the caller as reported by the identity service.
type Principal struct {
	UserID string
	Role   Role
	Tenant
}

func (p Principal) IsStaff() bool { return p.Role == RoleAdmin || p.Role == RoleStaff }

// Guard allows p to touch data owned by target. An org-level principal (no
// instance) reaches every instance of its org; an instance-level principal
// only its own instance.
func Guard(p Principal, target Tenant) error {
	if p.OrgID == "" || p.OrgID != target.OrgID {
		return ErrTenantMismatch
	}
	if p.InstanceID != "" && p.InstanceID != target.InstanceID {
		return ErrTenantMismatch
	}
	return nil
}
