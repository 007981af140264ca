package domain

import "strings"

// Role is the presales role attached to a user account.
type Role string

const (
	RoleAdmin   Role = "presales_admin"
	RoleCreator Role = "presales_creator"
	RoleViewer  Role = "presales_viewer"
)

// Roles lists every recognised role, most privileged first.
var Roles = []Role{RoleAdmin, RoleCreator, RoleViewer}

// ParseRole accepts the wire value or the short name ("admin", "creator",
// "viewer"). Unknown input returns false.
func ParseRole(s string) (Role, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, r := range Roles {
		if s == string(r) || s == strings.TrimPrefix(string(r), "presales_") {
			return r, true
		}
	}
	return "", false
}

// Valid reports whether r is one of the recognised roles.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Label is the display name of the role.
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleCreator:
		return "Creator"
	case RoleViewer:
		return "Viewer"
	default:
		return string(r)
	}
}

// Action is something a user may attempt from the dashboard.
type Action string

const (
	ActionView        Action = "view"
	ActionCreate      Action = "create"
	ActionEdit        Action = "edit"
	ActionDelete      Action = "delete"
	ActionManageUsers Action = "manage_users"
)

// Actions lists every action in display order.
var Actions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionManageUsers}
