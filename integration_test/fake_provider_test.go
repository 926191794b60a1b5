package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sessiond/core"
)

const (
	accountEmail    = "owner@acme.test"
	accountPassword = "s3cret-pass"
)

var accountID = uuid.MustParse("dddddddd-4444-4444-4444-444444444444")

// fakeIdentityProvider stands in for the GoTrue and PostgREST endpoints
// the live gateway depends on. It issues real HS256 tokens so expiry
// parsing sees well-formed JWTs.
type fakeIdentityProvider struct {
	mu sync.Mutex

	server  *httptest.Server
	profile core.UserProfile

	refreshToken string
	tokenSerial  int

	// hang makes every request block until the server shuts down,
	// simulating an unresponsive provider.
	hang bool
}

func newFakeIdentityProvider() *fakeIdentityProvider {
	now := time.Now().UTC().Truncate(time.Second)
	p := &fakeIdentityProvider{
		profile: core.UserProfile{
			ID:        accountID,
			FullName:  "Acme Owner",
			Email:     accountEmail,
			Role:      core.RoleAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

func (p *fakeIdentityProvider) close() {
	p.server.Close()
}

func (p *fakeIdentityProvider) setHang(hang bool) {
	p.mu.Lock()
	p.hang = hang
	p.mu.Unlock()
}

func (p *fakeIdentityProvider) handle(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	hang := p.hang
	p.mu.Unlock()
	if hang {
		<-r.Context().Done()
		return
	}

	switch {
	case r.URL.Path == "/auth/v1/token":
		p.handleToken(w, r)
	case r.URL.Path == "/auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/auth/v1/recover":
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{}"))
	case strings.HasPrefix(r.URL.Path, "/rest/v1/user_profiles"):
		p.handleProfiles(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (p *fakeIdentityProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch r.URL.Query().Get("grant_type") {
	case "password":
		if body["email"] != accountEmail || body["password"] != accountPassword {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	case "refresh_token":
		if body["refresh_token"] == "" || body["refresh_token"] != p.refreshToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.tokenSerial++
	p.refreshToken = "refresh-serial-" + strconv.Itoa(p.tokenSerial)

	lastSignIn := time.Now().UTC()
	resp := map[string]interface{}{
		"access_token":  p.mintAccessToken(),
		"refresh_token": p.refreshToken,
		"expires_in":    3600,
		"token_type":    "bearer",
		"user": core.User{
			ID:           accountID,
			Email:        accountEmail,
			CreatedAt:    p.profile.CreatedAt,
			UpdatedAt:    p.profile.UpdatedAt,
			LastSignInAt: &lastSignIn,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (p *fakeIdentityProvider) handleProfiles(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r.Method == http.MethodPatch {
		var updates core.ProfileUpdate
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if updates.FullName != nil {
			p.profile.FullName = *updates.FullName
		}
		if updates.AvatarURL != nil {
			p.profile.AvatarURL = *updates.AvatarURL
		}
		p.profile.UpdatedAt = time.Now().UTC()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode([]core.UserProfile{p.profile})
}

func (p *fakeIdentityProvider) mintAccessToken() string {
	claims := jwt.RegisteredClaims{
		Subject:   accountID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("integration-signing-secret"))
	if err != nil {
		panic(err)
	}
	return signed
}
