package service

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/internal/flux/session"
	"github.com/aussiebroadwan/flux/pkg/fluxsdk"
)

type staticSession struct {
	s  domain.Session
	ok bool
}

func (s *staticSession) Session() (domain.Session, bool) { return s.s, s.ok }

func signedIn(role domain.Role) *staticSession {
	return &staticSession{
		s:  domain.Session{UserID: "u-" + string(role), Email: "someone@example.com", Role: role, Token: "tok"},
		ok: true,
	}
}

// fakeAPI keeps opportunities and users in memory and counts calls.
type fakeAPI struct {
	mu     sync.Mutex
	opps   []domain.Opportunity
	users  []domain.User
	nextID int64
	err    error
	calls  map[string]int
	added  []fluxsdk.AddUserRequest
}

func newFakeAPI(opps ...domain.Opportunity) *fakeAPI {
	return &fakeAPI{opps: opps, nextID: 100, calls: make(map[string]int)}
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeAPI) enter(op string) error {
	f.calls[op]++
	return f.err
}

func (f *fakeAPI) ListOpportunities(context.Context) (*fluxsdk.OpportunityList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list"); err != nil {
		return nil, err
	}
	data := append([]domain.Opportunity(nil), f.opps...)
	return &fluxsdk.OpportunityList{Count: len(data), Data: data}, nil
}

func (f *fakeAPI) GetOpportunity(_ context.Context, id int64) (*domain.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("get"); err != nil {
		return nil, err
	}
	for _, o := range f.opps {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, &fluxsdk.APIError{StatusCode: 404, Message: "Opportunity not found", Detail: "Opportunity not found"}
}

func (f *fakeAPI) CreateOpportunity(_ context.Context, in domain.OpportunityInput) (*domain.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("create"); err != nil {
		return nil, err
	}
	f.nextID++
	o := domain.Opportunity{ID: f.nextID, AccountName: in.AccountName, Status: in.Status, DealValueUSD: in.DealValueUSD}
	f.opps = append(f.opps, o)
	return &o, nil
}

func (f *fakeAPI) UpdateOpportunity(_ context.Context, id int64, in domain.OpportunityInput) (*domain.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("update"); err != nil {
		return nil, err
	}
	for i := range f.opps {
		if f.opps[i].ID == id {
			f.opps[i].AccountName = in.AccountName
			f.opps[i].Status = in.Status
			o := f.opps[i]
			return &o, nil
		}
	}
	return nil, &fluxsdk.APIError{StatusCode: 404, Message: "Opportunity not found", Detail: "Opportunity not found"}
}

func (f *fakeAPI) DeleteOpportunity(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete"); err != nil {
		return err
	}
	for i := range f.opps {
		if f.opps[i].ID == id {
			f.opps = append(f.opps[:i], f.opps[i+1:]...)
			return nil
		}
	}
	return &fluxsdk.APIError{StatusCode: 404, Message: "Opportunity not found", Detail: "Opportunity not found"}
}

func (f *fakeAPI) ListUsers(context.Context) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("list-users"); err != nil {
		return nil, err
	}
	return append([]domain.User(nil), f.users...), nil
}

func (f *fakeAPI) AddUser(_ context.Context, in fluxsdk.AddUserRequest) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("add-user"); err != nil {
		return nil, err
	}
	f.added = append(f.added, in)
	u := domain.User{ID: "u-" + in.Email, Email: in.Email, Name: in.Name, Role: in.Role}
	f.users = append(f.users, u)
	return &u, nil
}

func (f *fakeAPI) UpdateUserRole(_ context.Context, userID string, role domain.Role) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("update-role"); err != nil {
		return nil, err
	}
	for i := range f.users {
		if f.users[i].ID == userID {
			f.users[i].Role = role
			u := f.users[i]
			return &u, nil
		}
	}
	return nil, &fluxsdk.APIError{StatusCode: 404, Message: "User not found", Detail: "User not found"}
}

func (f *fakeAPI) DeleteUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete-user"); err != nil {
		return err
	}
	for i := range f.users {
		if f.users[i].ID == userID {
			f.users = append(f.users[:i], f.users[i+1:]...)
			return nil
		}
	}
	return &fluxsdk.APIError{StatusCode: 404, Message: "User not found", Detail: "User not found"}
}

type notices struct {
	mu  sync.Mutex
	all []session.Notice
}

func (n *notices) Notify(x session.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.all = append(n.all, x)
}

func (n *notices) last() session.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.all) == 0 {
		return session.Notice{}
	}
	return n.all[len(n.all)-1]
}

func (n *notices) len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.all)
}
