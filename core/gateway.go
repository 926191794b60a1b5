package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrProfileNotFound     = errors.New("profile not found")
	ErrNotAuthenticated    = errors.New("not authenticated")

	// ErrTimeout is the local flavour of ErrProviderUnavailable raised
	// when an initialization race exceeds its budget.
	ErrTimeout = fmt.Errorf("%w: request timed out", ErrProviderUnavailable)
)

// EventCallback receives provider-pushed auth events in arrival order.
type EventCallback func(event AuthEvent)

// Subscription is the disposable handle returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

// IdentityGateway is the narrow seam over the external identity
// provider. Two implementations exist, a live one and a deterministic
// mock, selected once at construction time; the SessionManager is
// indifferent to which it holds.
type IdentityGateway interface {
	// GetSession returns the current provider session, or (nil, nil)
	// when no session exists.
	GetSession(ctx context.Context) (*Session, error)

	SignIn(ctx context.Context, email, password string) (*Session, error)

	// SignOut is best-effort; a provider-side failure must not prevent
	// local session clearing.
	SignOut(ctx context.Context) error

	// GetUserProfile failure is explicitly non-fatal to callers.
	GetUserProfile(ctx context.Context, userID uuid.UUID) (*UserProfile, error)

	UpdateUserProfile(ctx context.Context, userID uuid.UUID, updates ProfileUpdate) (*UserProfile, error)

	ResetPassword(ctx context.Context, email string) error

	// Subscribe registers a callback for provider-pushed events. At
	// most one callback fires per provider-side change; push events are
	// delivered in arrival order.
	Subscribe(cb EventCallback) Subscription
}

// UserMessage maps a gateway failure to the short, non-technical text
// surfaced to interactive callers.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrNotAuthenticated):
		return "You need to sign in first."
	case errors.Is(err, ErrProfileNotFound):
		return "Profile not found."
	case errors.Is(err, ErrProviderUnavailable):
		return "Cannot reach the sign-in service. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
