package core

import (
	"time"

	"github.com/google/uuid"
)

// Role is the application-level role carried by a user profile.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// User is the identity record as known to the provider. It is replaced
// wholesale on every provider update, never patched field by field.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
}

// UserProfile is the application-level record keyed by User.ID. It is
// owned by the backend profile store; a valid user can exist with no
// profile loaded.
type UserProfile struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is the live proof of authentication handed back by the
// identity provider.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user"`
}

// AuthEventType tags a session fact pushed by the provider.
type AuthEventType string

const (
	EventSignedIn         AuthEventType = "SIGNED_IN"
	EventSignedOut        AuthEventType = "SIGNED_OUT"
	EventTokenRefreshed   AuthEventType = "TOKEN_REFRESHED"
	EventUserUpdated      AuthEventType = "USER_UPDATED"
	EventPasswordRecovery AuthEventType = "PASSWORD_RECOVERY"
)

// AuthEvent is consumed exactly once to advance session state; it is
// never stored.
type AuthEvent struct {
	Type    AuthEventType
	Session *Session
}

// SessionState is the canonical bundle owned by the SessionManager.
// Invariants: Loading is true only during initialization or an
// in-flight operation, and User == nil implies Profile == nil.
type SessionState struct {
	User    *User        `json:"user"`
	Profile *UserProfile `json:"profile"`
	Loading bool         `json:"loading"`
	Err     string       `json:"error,omitempty"`
}

// Authenticated reports the definitive signed-in signal: a present
// user once loading has settled.
func (s SessionState) Authenticated() bool {
	return s.User != nil && !s.Loading
}

// ProfileUpdate carries the mutable profile fields for a partial
// update. Nil fields are left untouched by the gateway.
type ProfileUpdate struct {
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}
