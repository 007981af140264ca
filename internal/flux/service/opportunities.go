// Package service holds the handlers behind each dashboard action. Every
// mutation consults the role policy before a request is issued.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/internal/flux/policy"
	"github.com/aussiebroadwan/flux/internal/flux/session"
	"github.com/aussiebroadwan/flux/pkg/fluxsdk"
	"github.com/aussiebroadwan/flux/pkg/slogx"
)

const (
	CreatedMessage = "Opportunity created successfully"
	UpdatedMessage = "Opportunity updated successfully"
	DeletedMessage = "Opportunity deleted successfully"
)

// SessionSource yields the current tab's session.
type SessionSource interface {
	Session() (domain.Session, bool)
}

// OpportunityAPI is the part of the API client the opportunity handlers use.
type OpportunityAPI interface {
	ListOpportunities(ctx context.Context) (*fluxsdk.OpportunityList, error)
	GetOpportunity(ctx context.Context, id int64) (*domain.Opportunity, error)
	CreateOpportunity(ctx context.Context, in domain.OpportunityInput) (*domain.Opportunity, error)
	UpdateOpportunity(ctx context.Context, id int64, in domain.OpportunityInput) (*domain.Opportunity, error)
	DeleteOpportunity(ctx context.Context, id int64) error
}

// Opportunities keeps the transient list of opportunities for the signed-in
// user and runs create, update and delete on their behalf.
type Opportunities struct {
	API      OpportunityAPI
	Sessions SessionSource
	Notifier session.Notifier

	mu    sync.RWMutex
	owner string
	items []domain.Opportunity
}

// NewOpportunities wires the handlers. A nil notifier discards notices.
func NewOpportunities(api OpportunityAPI, sessions SessionSource, notifier session.Notifier) *Opportunities {
	if notifier == nil {
		notifier = session.NotifierFunc(func(session.Notice) {})
	}
	return &Opportunities{API: api, Sessions: sessions, Notifier: notifier}
}

// Load fetches the list from the API and replaces the cached copy.
func (s *Opportunities) Load(ctx context.Context) ([]domain.Opportunity, error) {
	sess, err := s.authorize(ctx, domain.ActionView)
	if err != nil {
		return nil, err
	}

	list, err := s.API.ListOpportunities(ctx)
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to load opportunities", slog.Any("error", err))
		s.fail(err)
		return nil, err
	}

	items := append([]domain.Opportunity(nil), list.Data...)

	s.mu.Lock()
	s.owner = sess.UserID
	s.items = items
	s.mu.Unlock()

	return append([]domain.Opportunity(nil), items...), nil
}

// Items returns the cached list. It is empty when nobody is signed in or the
// list was loaded for a different user.
func (s *Opportunities) Items() []domain.Opportunity {
	sess, ok := s.Sessions.Session()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ok || sess.UserID != s.owner {
		s.owner = ""
		s.items = nil
		return nil
	}
	return append([]domain.Opportunity(nil), s.items...)
}

// Reset discards the cached list.
func (s *Opportunities) Reset() {
	s.mu.Lock()
	s.owner = ""
	s.items = nil
	s.mu.Unlock()
}

// Get fetches a single opportunity.
func (s *Opportunities) Get(ctx context.Context, id int64) (domain.Opportunity, error) {
	if _, err := s.authorize(ctx, domain.ActionView); err != nil {
		return domain.Opportunity{}, err
	}

	o, err := s.API.GetOpportunity(ctx, id)
	if err != nil {
		s.fail(err)
		return domain.Opportunity{}, err
	}
	return *o, nil
}

// Create validates form and creates the opportunity. Denied roles never reach
// the API.
func (s *Opportunities) Create(ctx context.Context, form domain.OpportunityForm) (domain.Opportunity, error) {
	if _, err := s.authorize(ctx, domain.ActionCreate); err != nil {
		return domain.Opportunity{}, err
	}

	in, err := s.validate(form)
	if err != nil {
		return domain.Opportunity{}, err
	}

	o, err := s.API.CreateOpportunity(ctx, in)
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to create opportunity", slog.Any("error", err))
		s.fail(err)
		return domain.Opportunity{}, err
	}

	slogx.FromContext(ctx).Info("opportunity created", slog.Int64("opportunity_id", o.ID))
	s.succeed(ctx, CreatedMessage)
	return *o, nil
}

// Update validates form and replaces opportunity id.
func (s *Opportunities) Update(ctx context.Context, id int64, form domain.OpportunityForm) (domain.Opportunity, error) {
	if _, err := s.authorize(ctx, domain.ActionEdit); err != nil {
		return domain.Opportunity{}, err
	}

	in, err := s.validate(form)
	if err != nil {
		return domain.Opportunity{}, err
	}

	o, err := s.API.UpdateOpportunity(ctx, id, in)
	if err != nil {
		slogx.FromContext(ctx).Warn("failed to update opportunity",
			slog.Int64("opportunity_id", id),
			slog.Any("error", err),
		)
		s.fail(err)
		return domain.Opportunity{}, err
	}

	slogx.FromContext(ctx).Info("opportunity updated", slog.Int64("opportunity_id", id))
	s.succeed(ctx, UpdatedMessage)
	return *o, nil
}

// Delete removes opportunity id. Only admins may delete.
func (s *Opportunities) Delete(ctx context.Context, id int64) error {
	if _, err := s.authorize(ctx, domain.ActionDelete); err != nil {
		return err
	}

	if err := s.API.DeleteOpportunity(ctx, id); err != nil {
		slogx.FromContext(ctx).Warn("failed to delete opportunity",
			slog.Int64("opportunity_id", id),
			slog.Any("error", err),
		)
		s.fail(err)
		return err
	}

	slogx.FromContext(ctx).Info("opportunity deleted", slog.Int64("opportunity_id", id))
	s.succeed(ctx, DeletedMessage)
	return nil
}

func (s *Opportunities) authorize(ctx context.Context, action domain.Action) (domain.Session, error) {
	return authorize(ctx, s.Sessions, s.Notifier, action)
}

func (s *Opportunities) validate(form domain.OpportunityForm) (domain.OpportunityInput, error) {
	in, fields := form.Validate()
	if fields != nil {
		s.Notifier.Notify(session.NoticeFor(fields))
		return domain.OpportunityInput{}, fields
	}
	return in, nil
}

// succeed refreshes the list and reports msg. A failed refresh is logged but
// does not undo the mutation.
func (s *Opportunities) succeed(ctx context.Context, msg string) {
	if _, err := s.Load(ctx); err != nil {
		slogx.FromContext(ctx).Warn("failed to refresh opportunities", slog.Any("error", err))
	}
	s.Notifier.Notify(session.Notice{Kind: session.NoticeInfo, Message: msg})
}

func (s *Opportunities) fail(err error) {
	if errors.Is(err, fluxsdk.ErrUnauthorized) {
		// The client's unauthorized hook has already ended the session.
		s.Reset()
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	s.Notifier.Notify(session.NoticeFor(err))
}

// authorize resolves the session and checks action against its role.
func authorize(ctx context.Context, sessions SessionSource, n session.Notifier, action domain.Action) (domain.Session, error) {
	sess, ok := sessions.Session()
	if !ok {
		n.Notify(session.NoticeFor(session.ErrNotAuthenticated))
		return domain.Session{}, session.ErrNotAuthenticated
	}

	if err := policy.Check(sess.Role, action); err != nil {
		slogx.FromContext(ctx).Info("action denied",
			slog.String("role", string(sess.Role)),
			slog.String("action", string(action)),
		)
		n.Notify(session.NoticeFor(err))
		return domain.Session{}, err
	}
	return sess, nil
}
