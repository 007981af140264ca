package policy

import (
	"errors"
	"testing"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/stretchr/testify/require"
)

func TestCanPerformTable(t *testing.T) {
	t.Parallel()

	want := map[domain.Role][]domain.Action{
		domain.RoleAdmin:   {domain.ActionView, domain.ActionCreate, domain.ActionEdit, domain.ActionDelete, domain.ActionManageUsers},
		domain.RoleCreator: {domain.ActionView, domain.ActionCreate, domain.ActionEdit},
		domain.RoleViewer:  {domain.ActionView},
	}

	for _, role := range domain.Roles {
		for _, action := range domain.Actions {
			allowed := false
			for _, a := range want[role] {
				if a == action {
					allowed = true
				}
			}
			require.Equal(t, allowed, CanPerform(role, action), "%s/%s", role, action)
		}
		require.Equal(t, want[role], Allowed(role))
	}
}

func TestDefaultDeny(t *testing.T) {
	t.Parallel()

	for _, action := range domain.Actions {
		require.False(t, CanPerform("", action))
		require.False(t, CanPerform("presales_superuser", action))
		require.False(t, CanPerform("admin", action), "short names are not roles on the wire")
	}
	require.False(t, CanPerform(domain.RoleAdmin, "export"))
	require.Empty(t, Allowed("nobody"))
}

func TestCheckMessages(t *testing.T) {
	t.Parallel()

	require.NoError(t, Check(domain.RoleAdmin, domain.ActionDelete))

	err := Check(domain.RoleViewer, domain.ActionDelete)
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	require.Equal(t, domain.ActionDelete, denied.Action)
	require.Contains(t, err.Error(), "Only admins can delete")

	require.EqualError(t, Check(domain.RoleViewer, domain.ActionCreate), "Viewers cannot add opportunities")
	require.EqualError(t, Check("", domain.ActionCreate), "You do not have permission to add opportunities")
	require.EqualError(t, Check(domain.RoleViewer, domain.ActionEdit), "Viewers cannot edit opportunities")
	require.EqualError(t, Check("", domain.ActionEdit), "You do not have permission to edit opportunities")
	require.EqualError(t, Check(domain.RoleCreator, domain.ActionManageUsers), "Only admins can manage users")
	require.EqualError(t, Check(domain.RoleAdmin, "export"), "You do not have permission to export")
}
