package fluxtest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/pkg/fluxsdk"
	"github.com/aussiebroadwan/flux/pkg/httpx"
	"github.com/aussiebroadwan/flux/pkg/jwtx"
)

var (
	admin  = domain.User{ID: "u-admin", Email: "admin@example.com", Name: "Ada", Role: domain.RoleAdmin}
	viewer = domain.User{ID: "u-viewer", Email: "viewer@example.com", Name: "Vic", Role: domain.RoleViewer}
)

func TestSignInAndVerify(t *testing.T) {
	srv := New()
	defer srv.Close()
	srv.AddUser(admin, "google-admin")

	ctx := context.Background()
	c := srv.Client()

	resp, err := c.GoogleAuth(ctx, "google-admin")
	require.NoError(t, err)
	require.Equal(t, admin.ID, resp.User.ID)

	claims, err := jwtx.Decode(resp.Token)
	require.NoError(t, err)
	require.Equal(t, admin.ID, claims.Subject)
	require.Equal(t, string(domain.RoleAdmin), claims.Role)

	v, err := c.VerifyToken(ctx, resp.Token)
	require.NoError(t, err)
	require.True(t, v.Valid)
	require.Equal(t, admin.Email, v.User.Email)

	_, err = c.GoogleAuth(ctx, "google-stranger")
	require.ErrorIs(t, err, fluxsdk.ErrUnauthorized)
}

func TestRevokedTokenIsUnauthorized(t *testing.T) {
	srv := New()
	defer srv.Close()
	srv.AddUser(viewer, "")

	tok := srv.IssueToken(viewer)
	srv.Revoke(tok)

	_, err := srv.Client().VerifyToken(context.Background(), tok)
	require.ErrorIs(t, err, fluxsdk.ErrUnauthorized)
}

func TestRolesAreEnforced(t *testing.T) {
	srv := New()
	defer srv.Close()
	srv.AddUser(viewer, "")
	srv.Seed(domain.Opportunity{AccountName: "Acme"})

	c := srv.Client(fluxsdk.WithTokenSource(fluxsdk.StaticToken(srv.IssueToken(viewer))))
	ctx := context.Background()

	list, err := c.ListOpportunities(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, list.Count)

	err = c.DeleteOpportunity(ctx, list.Data[0].ID)
	require.ErrorIs(t, err, fluxsdk.ErrForbidden)
	require.Len(t, srv.Opportunities(), 1)

	_, err = c.ListUsers(ctx)
	require.ErrorIs(t, err, fluxsdk.ErrForbidden)
}

func TestRoleChangesApplyImmediately(t *testing.T) {
	srv := New()
	defer srv.Close()
	srv.AddUser(admin, "")
	srv.AddUser(viewer, "")

	ctx := context.Background()
	adminClient := srv.Client(fluxsdk.WithTokenSource(fluxsdk.StaticToken(srv.IssueToken(admin))))
	viewerClient := srv.Client(fluxsdk.WithTokenSource(fluxsdk.StaticToken(srv.IssueToken(viewer))))

	_, err := viewerClient.CreateOpportunity(ctx, domain.OpportunityInput{AccountName: "Acme"})
	require.ErrorIs(t, err, fluxsdk.ErrForbidden)

	_, err = adminClient.UpdateUserRole(ctx, viewer.ID, domain.RoleCreator)
	require.NoError(t, err)

	o, err := viewerClient.CreateOpportunity(ctx, domain.OpportunityInput{AccountName: "Acme"})
	require.NoError(t, err)
	require.NotZero(t, o.ID)
	require.NotNil(t, o.CreatedAt)
}

func TestOpportunityCRUD(t *testing.T) {
	srv := New()
	defer srv.Close()
	srv.AddUser(admin, "")

	ctx := context.Background()
	c := srv.Client(fluxsdk.WithTokenSource(fluxsdk.StaticToken(srv.IssueToken(admin))))

	created, err := c.CreateOpportunity(ctx, domain.OpportunityInput{AccountName: "Acme", DealValueUSD: 50000})
	require.NoError(t, err)

	updated, err := c.UpdateOpportunity(ctx, created.ID, domain.OpportunityInput{AccountName: "Acme Corp", Status: domain.StatusWon})
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", updated.AccountName)
	require.Equal(t, created.CreatedAt.Unix(), updated.CreatedAt.Unix())

	got, err := c.GetOpportunity(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusWon, got.Status)

	require.NoError(t, c.DeleteOpportunity(ctx, created.ID))
	_, err = c.GetOpportunity(ctx, created.ID)
	require.ErrorIs(t, err, fluxsdk.ErrNotFound)

	require.Equal(t, 1, srv.CountCalls(http.MethodDelete, "/opportunities/1"))

	_, err = c.CreateOpportunity(ctx, domain.OpportunityInput{})
	var apiErr *fluxsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Equal(t, "Account name is required", apiErr.Message)
}

func TestUserAdministration(t *testing.T) {
	srv := New()
	defer srv.Close()
	srv.AddUser(admin, "")

	ctx := context.Background()
	c := srv.Client(fluxsdk.WithTokenSource(fluxsdk.StaticToken(srv.IssueToken(admin))))

	u, err := c.AddUser(ctx, fluxsdk.AddUserRequest{Email: "new@example.com", Role: domain.RoleViewer})
	require.NoError(t, err)

	_, err = c.AddUser(ctx, fluxsdk.AddUserRequest{Email: "new@example.com", Role: domain.RoleViewer})
	require.EqualError(t, err, "fluxsdk: HTTP 400: User already exists")

	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	require.NoError(t, c.DeleteUser(ctx, u.ID))
	err = c.DeleteUser(ctx, admin.ID)
	require.Error(t, err, "admins cannot remove themselves")
}

func TestSignInLimit(t *testing.T) {
	srv := New(WithSignInLimit(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}))
	defer srv.Close()

	ctx := context.Background()
	_, err := srv.Client().GoogleAuth(ctx, "nobody")
	require.ErrorIs(t, err, fluxsdk.ErrUnauthorized)

	_, err = srv.Client().GoogleAuth(ctx, "nobody")
	var apiErr *fluxsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestWriteLimitIsPerUser(t *testing.T) {
	srv := New(WithWriteLimit(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}))
	defer srv.Close()
	creator := domain.User{ID: "u-creator", Email: "creator@example.com", Name: "Cat", Role: domain.RoleCreator}
	srv.AddUser(admin, "")
	srv.AddUser(creator, "")

	ctx := context.Background()
	adminClient := srv.Client(fluxsdk.WithTokenSource(fluxsdk.StaticToken(srv.IssueToken(admin))))
	creatorClient := srv.Client(fluxsdk.WithTokenSource(fluxsdk.StaticToken(srv.IssueToken(creator))))
	in := domain.OpportunityInput{AccountName: "Acme", DealValueUSD: 50000}

	_, err := adminClient.CreateOpportunity(ctx, in)
	require.NoError(t, err)

	_, err = adminClient.CreateOpportunity(ctx, in)
	var apiErr *fluxsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)

	_, err = creatorClient.CreateOpportunity(ctx, in)
	require.NoError(t, err, "other users keep their own budget")

	_, err = adminClient.ListOpportunities(ctx)
	require.NoError(t, err, "reads are not limited")
}

func TestCallsRecordUser(t *testing.T) {
	srv := New()
	defer srv.Close()
	srv.AddUser(viewer, "")

	c := srv.Client(fluxsdk.WithTokenSource(fluxsdk.StaticToken(srv.IssueToken(viewer))))
	_, err := c.ListOpportunities(context.Background())
	require.NoError(t, err)

	calls := srv.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, Call{Method: http.MethodGet, Path: "/opportunities/", UserID: viewer.ID, Status: http.StatusOK}, calls[0])
}
