package fluxsdk

import (
	"context"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
)

// User administration. The API only allows these for admins.

func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var out userList
	if err := c.do(ctx, request{method: http.MethodGet, path: "/users/", out: &out}); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) AddUser(ctx context.Context, in AddUserRequest) (*domain.User, error) {
	var out userEnvelope
	if err := c.do(ctx, request{method: http.MethodPost, path: "/users/", in: in, out: &out}); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) UpdateUserRole(ctx context.Context, userID string, role domain.Role) (*domain.User, error) {
	var out userEnvelope
	in := UpdateRoleRequest{UserID: userID, Role: role}
	if err := c.do(ctx, request{method: http.MethodPut, path: "/users/role", in: in, out: &out}); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/users/" + url.PathEscape(userID), out: &userEnvelope{}})
}
