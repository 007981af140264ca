package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/internal/flux/policy"
	"github.com/aussiebroadwan/flux/internal/flux/session"
	"github.com/aussiebroadwan/flux/pkg/fluxsdk"
)

func TestPeopleRequiresAdmin(t *testing.T) {
	t.Parallel()

	for _, role := range []domain.Role{domain.RoleCreator, domain.RoleViewer} {
		api := newFakeAPI()
		n := &notices{}
		p := NewPeople(api, signedIn(role), n)

		_, err := p.List(context.Background())
		var denied *policy.DeniedError
		require.ErrorAs(t, err, &denied, role)
		require.Equal(t, "Only admins can manage users", n.last().Message)
		require.Zero(t, api.total())
	}
}

func TestAddUserDefaultsToViewer(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	n := &notices{}
	p := NewPeople(api, signedIn(domain.RoleAdmin), n)

	u, err := p.Add(context.Background(), " carol@example.com ", "Carol", "")
	require.NoError(t, err)
	require.Equal(t, domain.RoleViewer, u.Role)
	require.Equal(t, []fluxsdk.AddUserRequest{{Email: "carol@example.com", Name: "Carol", Role: domain.RoleViewer}}, api.added)
	require.Equal(t, UserAddedMessage, n.last().Message)
}

func TestAddUserValidation(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	p := NewPeople(api, signedIn(domain.RoleAdmin), nil)

	_, err := p.Add(context.Background(), "not-an-email", "", "presales_superuser")
	var fields domain.FieldErrors
	require.ErrorAs(t, err, &fields)
	require.Equal(t, "Please enter a valid email address", fields["email"])
	require.Equal(t, "Please select a valid role", fields["role"])
	require.Zero(t, api.total())
}

func TestChangeRoleAndRemove(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	api.users = []domain.User{{ID: "u-1", Email: "dave@example.com", Role: domain.RoleViewer}}
	n := &notices{}
	p := NewPeople(api, signedIn(domain.RoleAdmin), n)
	ctx := context.Background()

	u, err := p.ChangeRole(ctx, "u-1", domain.RoleCreator)
	require.NoError(t, err)
	require.Equal(t, domain.RoleCreator, u.Role)
	require.Equal(t, RoleUpdatedMessage, n.last().Message)

	_, err = p.ChangeRole(ctx, "u-1", "owner")
	require.Error(t, err)
	require.Equal(t, 1, api.count("update-role"))

	require.NoError(t, p.Remove(ctx, "u-1"))
	require.Equal(t, UserRemovedMessage, n.last().Message)

	users, err := p.List(ctx)
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestPeopleFailureMessages(t *testing.T) {
	t.Parallel()

	api := newFakeAPI()
	n := &notices{}
	p := NewPeople(api, signedIn(domain.RoleAdmin), n)
	ctx := context.Background()

	api.err = &fluxsdk.APIError{StatusCode: 500, Message: "Server error: 500"}
	require.Error(t, p.Remove(ctx, "u-1"))
	require.Equal(t, session.Notice{Kind: session.NoticeInfo, Message: "Failed to remove user"}, n.last())

	api.err = &fluxsdk.APIError{StatusCode: 400, Message: "User already exists", Detail: "User already exists"}
	_, err := p.Add(ctx, "erin@example.com", "Erin", domain.RoleViewer)
	require.Error(t, err)
	require.Equal(t, "User already exists", n.last().Message)
}
