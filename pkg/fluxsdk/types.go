package fluxsdk

import "github.com/aussiebroadwan/flux/internal/flux/domain"

// GoogleAuthRequest is the body of POST /auth/google.
type GoogleAuthRequest struct {
	Token string `json:"token"`
}

// AuthResponse is returned by a successful sign-in.
type AuthResponse struct {
	Message string      `json:"message,omitempty"`
	User    domain.User `json:"user"`
	Token   string      `json:"token"`
}

// VerifyResponse is returned by GET /auth/verify.
type VerifyResponse struct {
	Valid bool         `json:"valid"`
	User  *domain.User `json:"user,omitempty"`
}

// OpportunityList is returned by GET /opportunities/.
type OpportunityList struct {
	Count int                  `json:"count"`
	Data  []domain.Opportunity `json:"data"`
}

type opportunityEnvelope struct {
	Message string             `json:"message,omitempty"`
	Data    domain.Opportunity `json:"data"`
}

// DeleteResponse confirms a deletion.
type DeleteResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// AddUserRequest is the body of POST /users/.
type AddUserRequest struct {
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Role  domain.Role `json:"role"`
}

// UpdateRoleRequest is the body of PUT /users/role.
type UpdateRoleRequest struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

type userList struct {
	Data []domain.User `json:"data"`
}

type userEnvelope struct {
	Message string      `json:"message,omitempty"`
	User    domain.User `json:"user"`
}
