// Package authz decides whether a resolved principal may act on a
// specific resource. Role capabilities gate what a principal may attempt;
// the ownership comparison gates which records those attempts can touch.
package authz

import "strings"

// Role is the account tier carried on a profile. Tiers drive a capability
// set; they do not replace the per-record ownership comparison.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOwner    Role = "owner"
	RoleManager  Role = "property_manager"
	RoleTenant   Role = "tenant"
	RoleProspect Role = "prospect"
	RoleGuest    Role = "guest"
)

// ParseRole maps the loose account-type strings accepted at registration
// onto a known tier; anything unrecognized degrades to guest.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "administrator":
		return RoleAdmin
	case "owner", "landlord":
		return RoleOwner
	case "property_manager", "manager":
		return RoleManager
	case "tenant":
		return RoleTenant
	case "prospect", "prospective_tenant":
		return RoleProspect
	default:
		return RoleGuest
	}
}

type Capability string

const (
	// CapManageAll bypasses the ownership comparison entirely.
	CapManageAll      Capability = "manage.all"
	CapResourceCreate Capability = "resource.create"
	CapResourceRead   Capability = "resource.read"
	CapResourceWrite  Capability = "resource.write"
	CapDashboardView  Capability = "dashboard.view"
	CapSubscribe      Capability = "subscribe"
)

var roleCaps = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapManageAll: true, CapResourceCreate: true, CapResourceRead: true,
		CapResourceWrite: true, CapDashboardView: true, CapSubscribe: true,
	},
	RoleOwner: {
		CapResourceCreate: true, CapResourceRead: true,
		CapResourceWrite: true, CapDashboardView: true, CapSubscribe: true,
	},
	RoleManager: {
		CapResourceCreate: true, CapResourceRead: true,
		CapResourceWrite: true, CapDashboardView: true, CapSubscribe: true,
	},
	RoleTenant: {
		CapResourceRead: true, CapDashboardView: true,
	},
	RoleProspect: {
		CapResourceRead: true,
	},
	RoleGuest: {},
}

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	caps, ok := roleCaps[r]
	if !ok {
		caps = roleCaps[RoleGuest]
	}
	return caps[c]
}

// Action is the operation attempted against one resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// CapabilityFor maps an action to the capability it requires.
func CapabilityFor(a Action) Capability {
	if a == ActionRead {
		return CapResourceRead
	}
	return CapResourceWrite
}
