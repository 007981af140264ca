package domain

import "time"

// User is an account known to the Flux API. Field tags match the API.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      Role       `json:"role"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}
