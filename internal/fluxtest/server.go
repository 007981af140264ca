// Package fluxtest runs an in-process stand-in for the Flux API. It issues
// real HS256 session tokens, enforces the API's role rules and records every
// call so tests can assert on what reached the network.
package fluxtest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/pkg/fluxsdk"
	"github.com/aussiebroadwan/flux/pkg/httpx"
	"github.com/aussiebroadwan/flux/pkg/idx"
	"github.com/aussiebroadwan/flux/pkg/jwtx"
	"github.com/aussiebroadwan/flux/pkg/slogx"
)

// DefaultTokenTTL matches the API's session lifetime.
const DefaultTokenTTL = 24 * time.Hour

// Call is one request the server answered.
type Call struct {
	Method string
	Path   string
	UserID string
	Status int
}

// Server is a fake Flux API. The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	Signer   jwtx.HS256Signer
	TokenTTL time.Duration
	Logger   *slog.Logger

	mu          sync.Mutex
	now         func() time.Time
	users       map[string]domain.User
	credentials map[string]string
	revoked     map[string]bool
	opps        []domain.Opportunity
	nextID      int64
	calls       []Call
	limit       *httpx.RateLimitConfig
	writeLimit  *httpx.RateLimitConfig
}

// Option configures a Server.
type Option func(*Server)

// WithNow sets the clock used to mint tokens.
func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger logs every request to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.Logger = logger }
}

// WithSignInLimit rate limits POST /auth/google per client address.
func WithSignInLimit(cfg httpx.RateLimitConfig) Option {
	return func(s *Server) { s.limit = &cfg }
}

// WithWriteLimit rate limits opportunity writes per signed-in user.
func WithWriteLimit(cfg httpx.RateLimitConfig) Option {
	return func(s *Server) { s.writeLimit = &cfg }
}

// New starts a server. Close it when done.
func New(opts ...Option) *Server {
	s := &Server{
		Signer:      jwtx.HS256Signer{Key: []byte(idx.New().String())},
		TokenTTL:    DefaultTokenTTL,
		Logger:      slogx.Discard(),
		now:         time.Now,
		users:       make(map[string]domain.User),
		credentials: make(map[string]string),
		revoked:     make(map[string]bool),
		nextID:      1,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	authn := httpx.AuthnMiddleware(verifier{s}, s.resolveRole)
	anyone := []httpx.Middleware{authn}
	writers := []httpx.Middleware{authn, httpx.RequireAnyRole(string(domain.RoleAdmin), string(domain.RoleCreator))}
	admins := []httpx.Middleware{authn, httpx.RequireAnyRole(string(domain.RoleAdmin))}

	if s.writeLimit != nil {
		writers = append(writers, httpx.RateLimitByUser(*s.writeLimit))
	}

	var signIn []httpx.Middleware
	if s.limit != nil {
		signIn = append(signIn, httpx.RateLimitByIP(*s.limit))
	}

	mux.Handle("POST /auth/google", httpx.Chain(http.HandlerFunc(s.handleGoogle), signIn...))
	mux.Handle("GET /auth/verify", httpx.Chain(http.HandlerFunc(s.handleVerify), anyone...))

	mux.Handle("GET /opportunities/", httpx.Chain(http.HandlerFunc(s.handleListOpportunities), anyone...))
	mux.Handle("GET /opportunities/{id}", httpx.Chain(http.HandlerFunc(s.handleGetOpportunity), anyone...))
	mux.Handle("POST /opportunities/", httpx.Chain(http.HandlerFunc(s.handleCreateOpportunity), writers...))
	mux.Handle("PUT /opportunities/{id}", httpx.Chain(http.HandlerFunc(s.handleUpdateOpportunity), writers...))
	mux.Handle("DELETE /opportunities/{id}", httpx.Chain(http.HandlerFunc(s.handleDeleteOpportunity), admins...))

	mux.Handle("GET /users/", httpx.Chain(http.HandlerFunc(s.handleListUsers), admins...))
	mux.Handle("POST /users/", httpx.Chain(http.HandlerFunc(s.handleAddUser), admins...))
	mux.Handle("PUT /users/role", httpx.Chain(http.HandlerFunc(s.handleUpdateRole), admins...))
	mux.Handle("DELETE /users/{id}", httpx.Chain(http.HandlerFunc(s.handleDeleteUser), admins...))

	return httpx.Chain(mux, slogx.HTTPMiddleware(s.Logger), s.record)
}

// verifier also rejects revoked tokens.
type verifier struct{ s *Server }

func (v verifier) Verify(token string) (jwtx.Claims, error) {
	v.s.mu.Lock()
	revoked := v.s.revoked[token]
	v.s.mu.Unlock()
	if revoked {
		return jwtx.Claims{}, errors.New("token revoked")
	}
	return v.s.Signer.Verify(token)
}

// resolveRole uses the stored role so that role changes apply at once.
func (s *Server) resolveRole(_ context.Context, c jwtx.Claims) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[c.Subject]
	return string(u.Role), ok
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		var userID string
		if c, err := (verifier{s}).Verify(bearer(r)); err == nil {
			userID = c.Subject
		}

		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, UserID: userID, Status: rec.status})
		s.mu.Unlock()
	})
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}

// AddUser registers u. A non-empty credential lets u sign in with it.
func (s *Server) AddUser(u domain.User, credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	if credential != "" {
		s.credentials[credential] = u.ID
	}
}

// User returns the stored user.
func (s *Server) User(id string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

// IssueToken mints a session token for u as a sign-in would.
func (s *Server) IssueToken(u domain.User) string {
	s.mu.Lock()
	now := s.now()
	s.mu.Unlock()

	tok, err := s.Signer.Sign(jwtx.NewClaims(u.ID, u.Email, u.Name, string(u.Role), s.TokenTTL, now))
	if err != nil {
		panic("fluxtest: sign token: " + err.Error())
	}
	return tok
}

// Revoke makes the API reject token from now on.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

// Seed adds opportunities, assigning ids to those without one.
func (s *Server) Seed(opps ...domain.Opportunity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range opps {
		if o.ID == 0 {
			o.ID = s.nextID
		}
		s.nextID = max(s.nextID, o.ID+1)
		s.opps = append(s.opps, o)
	}
}

// Opportunities returns the stored opportunities.
func (s *Server) Opportunities() []domain.Opportunity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.opps)
}

// Calls returns every call so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CountCalls counts calls matching method and path.
func (s *Server) CountCalls(method, path string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Client returns an SDK client pointed at the server.
func (s *Server) Client(opts ...fluxsdk.Option) *fluxsdk.Client {
	return fluxsdk.NewClient(s.URL, opts...)
}

func (s *Server) handleGoogle(w http.ResponseWriter, r *http.Request) {
	var in fluxsdk.GoogleAuthRequest
	if err := httpx.DecodeJSON(r, &in); err != nil || in.Token == "" {
		httpx.WriteDetail(w, http.StatusBadRequest, "Token is required")
		return
	}

	s.mu.Lock()
	id, ok := s.credentials[in.Token]
	u := s.users[id]
	s.mu.Unlock()

	if !ok {
		httpx.WriteDetail(w, http.StatusUnauthorized, "Invalid Google token")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, fluxsdk.AuthResponse{
		Message: "Authentication successful",
		User:    u,
		Token:   s.IssueToken(u),
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	u, _ := s.User(httpx.UserIDFromContext(r.Context()))
	httpx.WriteJSON(w, http.StatusOK, fluxsdk.VerifyResponse{Valid: true, User: &u})
}

func (s *Server) handleListOpportunities(w http.ResponseWriter, _ *http.Request) {
	opps := s.Opportunities()
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	httpx.WriteJSON(w, http.StatusOK, fluxsdk.OpportunityList{Count: len(opps), Data: opps})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

// find returns the index of id. Callers hold s.mu.
func (s *Server) find(id int64) int {
	return slices.IndexFunc(s.opps, func(o domain.Opportunity) bool { return o.ID == id })
}

func (s *Server) handleGetOpportunity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.WriteDetail(w, http.StatusNotFound, "Opportunity not found")
		return
	}

	s.mu.Lock()
	i := s.find(id)
	var o domain.Opportunity
	if i >= 0 {
		o = s.opps[i]
	}
	s.mu.Unlock()

	if i < 0 {
		httpx.WriteDetail(w, http.StatusNotFound, "Opportunity not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"data": o})
}

func (s *Server) handleCreateOpportunity(w http.ResponseWriter, r *http.Request) {
	var in domain.OpportunityInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.WriteDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if in.AccountName == "" {
		httpx.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "account_name"}, "msg": "Account name is required"}},
		})
		return
	}

	s.mu.Lock()
	now := s.now().UTC()
	o := fromInput(in)
	o.ID = s.nextID
	o.CreatedAt, o.UpdatedAt = &now, &now
	s.nextID++
	s.opps = append(s.opps, o)
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"message": "Opportunity created successfully", "data": o})
}

func (s *Server) handleUpdateOpportunity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	var in domain.OpportunityInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.WriteDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	i := -1
	if ok {
		i = s.find(id)
	}
	var o domain.Opportunity
	if i >= 0 {
		now := s.now().UTC()
		o = fromInput(in)
		o.ID = id
		o.CreatedAt = s.opps[i].CreatedAt
		o.UpdatedAt = &now
		s.opps[i] = o
	}
	s.mu.Unlock()

	if i < 0 {
		httpx.WriteDetail(w, http.StatusNotFound, "Opportunity not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"message": "Opportunity updated successfully", "data": o})
}

func (s *Server) handleDeleteOpportunity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)

	s.mu.Lock()
	i := -1
	if ok {
		i = s.find(id)
	}
	if i >= 0 {
		s.opps = slices.Delete(s.opps, i, i+1)
	}
	s.mu.Unlock()

	if i < 0 {
		httpx.WriteDetail(w, http.StatusNotFound, "Opportunity not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, fluxsdk.DeleteResponse{Message: "Opportunity deleted successfully", ID: id})
}

func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	s.mu.Unlock()

	slices.SortFunc(users, func(a, b domain.User) int {
		switch {
		case a.Email < b.Email:
			return -1
		case a.Email > b.Email:
			return 1
		}
		return 0
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"data": users})
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var in fluxsdk.AddUserRequest
	if err := httpx.DecodeJSON(r, &in); err != nil || in.Email == "" {
		httpx.WriteDetail(w, http.StatusBadRequest, "Email is required")
		return
	}
	if !in.Role.Valid() {
		httpx.WriteDetail(w, http.StatusBadRequest, "Invalid role")
		return
	}

	s.mu.Lock()
	for _, u := range s.users {
		if u.Email == in.Email {
			s.mu.Unlock()
			httpx.WriteDetail(w, http.StatusBadRequest, "User already exists")
			return
		}
	}
	now := s.now().UTC()
	u := domain.User{ID: idx.New().String(), Email: in.Email, Name: in.Name, Role: in.Role, CreatedAt: &now}
	s.users[u.ID] = u
	s.mu.Unlock()

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"message": "User added successfully", "user": u})
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var in fluxsdk.UpdateRoleRequest
	if err := httpx.DecodeJSON(r, &in); err != nil || !in.Role.Valid() {
		httpx.WriteDetail(w, http.StatusBadRequest, "Invalid role")
		return
	}

	s.mu.Lock()
	u, ok := s.users[in.UserID]
	if ok {
		u.Role = in.Role
		s.users[in.UserID] = u
	}
	s.mu.Unlock()

	if !ok {
		httpx.WriteDetail(w, http.StatusNotFound, "User not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"message": "User role updated successfully", "user": u})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == httpx.UserIDFromContext(r.Context()) {
		httpx.WriteDetail(w, http.StatusBadRequest, "You cannot remove yourself")
		return
	}

	s.mu.Lock()
	u, ok := s.users[id]
	delete(s.users, id)
	for cred, uid := range s.credentials {
		if uid == id {
			delete(s.credentials, cred)
		}
	}
	s.mu.Unlock()

	if !ok {
		httpx.WriteDetail(w, http.StatusNotFound, "User not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"message": "User removed successfully", "user": u})
}

func fromInput(in domain.OpportunityInput) domain.Opportunity {
	return domain.Opportunity{
		AccountName:           in.AccountName,
		Opportunity:           in.Opportunity,
		RegionLocation:        in.RegionLocation,
		Region:                in.Region,
		SubRegion:             in.SubRegion,
		DealValueUSD:          in.DealValueUSD,
		ScopingDoc:            in.ScopingDoc,
		VectorLink:            in.VectorLink,
		ChargingOnVector:      in.ChargingOnVector,
		PeriodOfPresalesWeeks: in.PeriodOfPresalesWeeks,
		Status:                in.Status,
		AssigneeFromGSD:       in.AssigneeFromGSD,
		PursuitLead:           in.PursuitLead,
		DeliveryManager:       in.DeliveryManager,
		PresalesStartDate:     in.PresalesStartDate,
		ExpectedPlannedStart:  in.ExpectedPlannedStart,
		SOWSignatureDate:      in.SOWSignatureDate,
		StaffingCompletedFlag: in.StaffingCompletedFlag,
		StaffingPOC:           in.StaffingPOC,
		Remarks:               in.Remarks,
	}
}
