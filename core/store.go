package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// StoredSession is the single persisted provider session. The refresh
// token is encrypted by the gateway before it reaches the store.
type StoredSession struct {
	UserID       uuid.UUID
	RefreshToken string
	UpdatedAt    time.Time
}

// SessionStore persists the provider session across restarts and
// caches profile records. The store holds at most one session row.
type SessionStore interface {
	SaveSession(ctx context.Context, session *StoredSession) error

	// LoadSession returns ErrNotFound when no session is persisted.
	LoadSession(ctx context.Context) (*StoredSession, error)

	DeleteSession(ctx context.Context) error

	SaveProfile(ctx context.Context, profile *UserProfile) error

	// LoadProfile returns ErrNotFound when no profile is cached for id.
	LoadProfile(ctx context.Context, id uuid.UUID) (*UserProfile, error)
}
