// Package policy is the single role -> permitted actions table consulted
// before every user-initiated mutation.
package policy

import (
	"fmt"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
)

var permissions = map[domain.Role]map[domain.Action]bool{
	domain.RoleAdmin: {
		domain.ActionView:        true,
		domain.ActionCreate:      true,
		domain.ActionEdit:        true,
		domain.ActionDelete:      true,
		domain.ActionManageUsers: true,
	},
	domain.RoleCreator: {
		domain.ActionView:   true,
		domain.ActionCreate: true,
		domain.ActionEdit:   true,
	},
	domain.RoleViewer: {
		domain.ActionView: true,
	},
}

var deniedMessages = map[domain.Action]string{
	domain.ActionView:        "You do not have permission to view opportunities",
	domain.ActionCreate:      "You do not have permission to add opportunities",
	domain.ActionEdit:        "You do not have permission to edit opportunities",
	domain.ActionDelete:      "Only admins can delete opportunities",
	domain.ActionManageUsers: "Only admins can manage users",
}

// Viewers get a more specific message for the write actions.
var viewerDeniedMessages = map[domain.Action]string{
	domain.ActionCreate: "Viewers cannot add opportunities",
	domain.ActionEdit:   "Viewers cannot edit opportunities",
}

// CanPerform reports whether role may perform action. Unknown roles and
// unknown actions are denied.
func CanPerform(role domain.Role, action domain.Action) bool {
	return permissions[role][action]
}

// Allowed lists the actions role may perform, in display order.
func Allowed(role domain.Role) []domain.Action {
	var out []domain.Action
	for _, a := range domain.Actions {
		if CanPerform(role, a) {
			out = append(out, a)
		}
	}
	return out
}

// DeniedError is returned by Check when the role lacks the action.
type DeniedError struct {
	Role    domain.Role
	Action  domain.Action
	Message string
}

func (e *DeniedError) Error() string {
	return e.Message
}

// Check returns nil when permitted, otherwise a *DeniedError carrying the
// message to show the user.
func Check(role domain.Role, action domain.Action) error {
	if CanPerform(role, action) {
		return nil
	}

	msg, ok := deniedMessages[action]
	if !ok {
		msg = fmt.Sprintf("You do not have permission to %s", action)
	}
	if m, ok := viewerDeniedMessages[action]; ok && role == domain.RoleViewer {
		msg = m
	}

	return &DeniedError{Role: role, Action: action, Message: msg}
}
