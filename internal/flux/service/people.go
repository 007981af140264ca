package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/internal/flux/session"
	"github.com/aussiebroadwan/flux/pkg/fluxsdk"
	"github.com/aussiebroadwan/flux/pkg/slogx"
)

const (
	UserAddedMessage   = "User added successfully"
	RoleUpdatedMessage = "User role updated successfully"
	UserRemovedMessage = "User removed successfully"
)

// Fallbacks used when the API gives no usable message.
const (
	loadUsersFailed  = "Failed to load users"
	addUserFailed    = "Failed to add user"
	updateRoleFailed = "Failed to update user role"
	removeUserFailed = "Failed to remove user"
)

// DefaultRole is assigned to new users when none is chosen.
const DefaultRole = domain.RoleViewer

// UserAPI is the part of the API client used for user administration.
type UserAPI interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	AddUser(ctx context.Context, in fluxsdk.AddUserRequest) (*domain.User, error)
	UpdateUserRole(ctx context.Context, userID string, role domain.Role) (*domain.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

// People is the admin-only user management panel.
type People struct {
	API      UserAPI
	Sessions SessionSource
	Notifier session.Notifier
}

// NewPeople wires the handlers. A nil notifier discards notices.
func NewPeople(api UserAPI, sessions SessionSource, notifier session.Notifier) *People {
	if notifier == nil {
		notifier = session.NotifierFunc(func(session.Notice) {})
	}
	return &People{API: api, Sessions: sessions, Notifier: notifier}
}

// List returns every user known to the API.
func (p *People) List(ctx context.Context) ([]domain.User, error) {
	if _, err := authorize(ctx, p.Sessions, p.Notifier, domain.ActionManageUsers); err != nil {
		return nil, err
	}

	users, err := p.API.ListUsers(ctx)
	if err != nil {
		p.fail(ctx, err, loadUsersFailed)
		return nil, err
	}
	return users, nil
}

// Add registers a user. An empty role means DefaultRole.
func (p *People) Add(ctx context.Context, email, name string, role domain.Role) (domain.User, error) {
	if _, err := authorize(ctx, p.Sessions, p.Notifier, domain.ActionManageUsers); err != nil {
		return domain.User{}, err
	}

	if role == "" {
		role = DefaultRole
	}

	email = strings.TrimSpace(email)
	fields := make(domain.FieldErrors)
	switch {
	case email == "":
		fields["email"] = "Email is required"
	case !validEmail(email):
		fields["email"] = "Please enter a valid email address"
	}
	if !role.Valid() {
		fields["role"] = "Please select a valid role"
	}
	if len(fields) > 0 {
		p.Notifier.Notify(session.NoticeFor(fields))
		return domain.User{}, fields
	}

	u, err := p.API.AddUser(ctx, fluxsdk.AddUserRequest{
		Email: email,
		Name:  strings.TrimSpace(name),
		Role:  role,
	})
	if err != nil {
		p.fail(ctx, err, addUserFailed)
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user added",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	p.Notifier.Notify(session.Notice{Kind: session.NoticeInfo, Message: UserAddedMessage})
	return *u, nil
}

// ChangeRole assigns role to userID.
func (p *People) ChangeRole(ctx context.Context, userID string, role domain.Role) (domain.User, error) {
	if _, err := authorize(ctx, p.Sessions, p.Notifier, domain.ActionManageUsers); err != nil {
		return domain.User{}, err
	}

	if !role.Valid() {
		fields := domain.FieldErrors{"role": "Please select a valid role"}
		p.Notifier.Notify(session.NoticeFor(fields))
		return domain.User{}, fields
	}

	u, err := p.API.UpdateUserRole(ctx, userID, role)
	if err != nil {
		p.fail(ctx, err, updateRoleFailed)
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user role updated",
		slog.String("user_id", userID),
		slog.String("role", string(role)),
	)
	p.Notifier.Notify(session.Notice{Kind: session.NoticeInfo, Message: RoleUpdatedMessage})
	return *u, nil
}

// Remove deletes userID.
func (p *People) Remove(ctx context.Context, userID string) error {
	if _, err := authorize(ctx, p.Sessions, p.Notifier, domain.ActionManageUsers); err != nil {
		return err
	}

	if err := p.API.DeleteUser(ctx, userID); err != nil {
		p.fail(ctx, err, removeUserFailed)
		return err
	}

	slogx.FromContext(ctx).Info("user removed", slog.String("user_id", userID))
	p.Notifier.Notify(session.Notice{Kind: session.NoticeInfo, Message: UserRemovedMessage})
	return nil
}

func (p *People) fail(ctx context.Context, err error, fallback string) {
	slogx.FromContext(ctx).Warn(strings.ToLower(fallback), slog.Any("error", err))

	var apiErr *fluxsdk.APIError
	switch {
	case errors.Is(err, fluxsdk.ErrUnauthorized), errors.Is(err, context.Canceled):
		return
	case errors.Is(err, fluxsdk.ErrForbidden), errors.Is(err, fluxsdk.ErrTransport):
		p.Notifier.Notify(session.NoticeFor(err))
	case errors.As(err, &apiErr) && apiErr.Detail != "":
		p.Notifier.Notify(session.Notice{Kind: session.NoticeInfo, Message: apiErr.Detail})
	default:
		p.Notifier.Notify(session.Notice{Kind: session.NoticeInfo, Message: fallback})
	}
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
