package domain

import "time"

// Session is the authenticated user's identity, role and token. It lives in
// the credential store and is mirrored in memory by each tab.
type Session struct {
	UserID         string
	Email          string
	DisplayName    string
	Role           Role
	Token          string
	LastActivityAt time.Time
}

// User returns the profile part of the session.
func (s Session) User() User {
	return User{
		ID:    s.UserID,
		Email: s.Email,
		Name:  s.DisplayName,
		Role:  s.Role,
	}
}

// NewSession combines a user profile with its token.
func NewSession(u User, token string, lastActivity time.Time) Session {
	return Session{
		UserID:         u.ID,
		Email:          u.Email,
		DisplayName:    u.Name,
		Role:           u.Role,
		Token:          token,
		LastActivityAt: lastActivity,
	}
}
