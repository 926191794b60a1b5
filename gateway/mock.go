package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"sessiond/core"
)

// Fixture identity served by the mock gateway. The values are fixed so
// the rest of the system is exercisable without provider configuration.
var (
	MockUserID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

	MockEmail    = "demo@sessiond.test"
	MockPassword = "demo-password"

	mockCreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

// MockUser returns the fixed synthetic user.
func MockUser() *core.User {
	return &core.User{
		ID:        MockUserID,
		Email:     MockEmail,
		CreatedAt: mockCreatedAt,
		UpdatedAt: mockCreatedAt,
	}
}

// MockProfile returns the fixed synthetic profile.
func MockProfile() *core.UserProfile {
	return &core.UserProfile{
		ID:        MockUserID,
		FullName:  "Demo User",
		Email:     MockEmail,
		Role:      core.RoleAdmin,
		AvatarURL: "https://sessiond.test/avatar.png",
		CreatedAt: mockCreatedAt,
		UpdatedAt: mockCreatedAt,
	}
}

func mockSession() *core.Session {
	return &core.Session{
		AccessToken:  "mock_access_token",
		RefreshToken: "mock_refresh_token",
		ExpiresAt:    mockCreatedAt.AddDate(10, 0, 0),
		User:         MockUser(),
	}
}

// MockGateway is the deterministic stand-in selected when provider
// configuration is absent. Every call returns immediately, the session
// is always the fixture, and the subscription is a no-op. Profile
// edits go through the store so they survive a restart in mock mode.
type MockGateway struct {
	store core.SessionStore

	// call counters for test verification
	GetSessionCalls        int
	SignInCalls            int
	SignOutCalls           int
	GetUserProfileCalls    int
	UpdateUserProfileCalls int
	ResetPasswordCalls     int
}

func NewMockGateway(store core.SessionStore) *MockGateway {
	g := &MockGateway{store: store}

	// seed the fixture profile once so GetUserProfile is total
	if _, err := store.LoadProfile(context.Background(), MockUserID); errors.Is(err, core.ErrNotFound) {
		_ = store.SaveProfile(context.Background(), MockProfile())
	}

	return g
}

func (g *MockGateway) GetSession(ctx context.Context) (*core.Session, error) {
	g.GetSessionCalls++
	return mockSession(), nil
}

func (g *MockGateway) SignIn(ctx context.Context, email, password string) (*core.Session, error) {
	g.SignInCalls++

	if email != MockEmail || password != MockPassword {
		return nil, core.ErrInvalidCredentials
	}
	return mockSession(), nil
}

func (g *MockGateway) SignOut(ctx context.Context) error {
	g.SignOutCalls++
	return nil
}

func (g *MockGateway) GetUserProfile(ctx context.Context, userID uuid.UUID) (*core.UserProfile, error) {
	g.GetUserProfileCalls++

	profile, err := g.store.LoadProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrProfileNotFound
		}
		return nil, err
	}
	return profile, nil
}

func (g *MockGateway) UpdateUserProfile(ctx context.Context, userID uuid.UUID, updates core.ProfileUpdate) (*core.UserProfile, error) {
	g.UpdateUserProfileCalls++

	profile, err := g.store.LoadProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrProfileNotFound
		}
		return nil, err
	}

	if updates.FullName != nil {
		profile.FullName = *updates.FullName
	}
	if updates.AvatarURL != nil {
		profile.AvatarURL = *updates.AvatarURL
	}
	profile.UpdatedAt = time.Now()

	if err := g.store.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (g *MockGateway) ResetPassword(ctx context.Context, email string) error {
	g.ResetPasswordCalls++
	return nil
}

// Subscribe returns a no-op subscription: the mock provider never
// pushes events.
func (g *MockGateway) Subscribe(cb core.EventCallback) core.Subscription {
	return noopSubscription{}
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}
