package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"sessiond/core"
)

// LiveConfig configures the gateway for a GoTrue-style identity
// provider. Both URL and APIKey must be present for the live gateway
// to be selected at startup.
type LiveConfig struct {
	URL                   string `yaml:"url"`
	APIKey                string `yaml:"api_key"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	RefreshLeewaySeconds  int    `yaml:"refresh_leeway_seconds"`
}

// Configured reports whether the provider endpoint and key are both
// present. Absence selects the mock gateway, never a partial mix.
func (c *LiveConfig) Configured() bool {
	return c != nil && c.URL != "" && c.APIKey != ""
}

func (c *LiveConfig) requestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *LiveConfig) refreshLeeway() time.Duration {
	if c.RefreshLeewaySeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RefreshLeewaySeconds) * time.Second
}

// LiveGateway talks to the real identity provider. It keeps the
// current provider session in memory, persists the refresh token
// (encrypted) through the optional store so a restart can restore the
// session, and pushes SIGNED_IN / SIGNED_OUT / TOKEN_REFRESHED events
// to subscribers in arrival order.
type LiveGateway struct {
	config     *LiveConfig
	httpClient *http.Client
	store      core.SessionStore
	crypto     *core.CryptoService
	logger     *slog.Logger

	mu           sync.Mutex
	current      *core.Session
	refreshTimer *time.Timer
	subscribers  map[int]core.EventCallback
	nextSub      int
	closed       bool

	events chan core.AuthEvent
	done   chan struct{}
}

// NewLiveGateway creates the live gateway. store and crypto may be nil
// together, in which case sessions do not survive a restart.
func NewLiveGateway(config *LiveConfig, store core.SessionStore, crypto *core.CryptoService, logger *slog.Logger) *LiveGateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &LiveGateway{
		config:      config,
		httpClient:  &http.Client{Timeout: config.requestTimeout()},
		store:       store,
		crypto:      crypto,
		logger:      logger,
		subscribers: make(map[int]core.EventCallback),
		events:      make(chan core.AuthEvent, 16),
		done:        make(chan struct{}),
	}
	go g.dispatch()
	return g
}

// Close stops the refresh loop and the event dispatcher.
func (g *LiveGateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	if g.refreshTimer != nil {
		g.refreshTimer.Stop()
		g.refreshTimer = nil
	}
	g.mu.Unlock()
	close(g.done)
}

type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	TokenType    string     `json:"token_type"`
	User         *core.User `json:"user"`
}

func (g *LiveGateway) GetSession(ctx context.Context) (*core.Session, error) {
	g.mu.Lock()
	if g.current != nil {
		sess := *g.current
		g.mu.Unlock()
		return &sess, nil
	}
	g.mu.Unlock()

	return g.restoreSession(ctx)
}

// restoreSession exchanges a persisted refresh token for a fresh
// provider session after a restart. No push event is emitted; the
// restored session is the initialization result, not a change.
func (g *LiveGateway) restoreSession(ctx context.Context) (*core.Session, error) {
	if g.store == nil || g.crypto == nil {
		return nil, nil
	}

	stored, err := g.store.LoadSession(ctx)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			g.logger.Warn("failed to load persisted session", slog.String("error", err.Error()))
		}
		return nil, nil
	}

	refreshToken, err := g.crypto.DecryptToken(stored.RefreshToken)
	if err != nil {
		g.logger.Warn("persisted refresh token is unreadable, discarding it")
		_ = g.store.DeleteSession(ctx)
		return nil, nil
	}

	sess, err := g.refreshGrant(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, core.ErrInvalidCredentials) {
			// the provider revoked the token; nothing to restore
			_ = g.store.DeleteSession(ctx)
			return nil, nil
		}
		return nil, err
	}

	g.setSession(sess)
	return sess, nil
}

func (g *LiveGateway) SignIn(ctx context.Context, email, password string) (*core.Session, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}

	var tokenResp tokenResponse
	err := g.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", body, "", &tokenResp)
	if err != nil {
		return nil, err
	}

	sess := g.buildSession(&tokenResp)
	g.setSession(sess)
	g.emit(core.AuthEvent{Type: core.EventSignedIn, Session: sess})

	return sess, nil
}

func (g *LiveGateway) SignOut(ctx context.Context) error {
	g.mu.Lock()
	current := g.current
	g.mu.Unlock()

	var err error
	if current != nil {
		err = g.doJSON(ctx, http.MethodPost, "/auth/v1/logout", nil, current.AccessToken, nil)
	}

	g.clearSession(ctx)
	g.emit(core.AuthEvent{Type: core.EventSignedOut})

	return err
}

func (g *LiveGateway) GetUserProfile(ctx context.Context, userID uuid.UUID) (*core.UserProfile, error) {
	profiles, err := g.profileRequest(ctx, http.MethodGet, userID, nil)
	if err != nil {
		if errors.Is(err, core.ErrProviderUnavailable) && g.store != nil {
			// serve the cached copy when the provider is unreachable
			if cached, cacheErr := g.store.LoadProfile(ctx, userID); cacheErr == nil {
				return cached, nil
			}
		}
		return nil, err
	}

	if len(profiles) == 0 {
		return nil, core.ErrProfileNotFound
	}

	profile := &profiles[0]
	g.cacheProfile(ctx, profile)
	return profile, nil
}

func (g *LiveGateway) UpdateUserProfile(ctx context.Context, userID uuid.UUID, updates core.ProfileUpdate) (*core.UserProfile, error) {
	profiles, err := g.profileRequest(ctx, http.MethodPatch, userID, updates)
	if err != nil {
		return nil, err
	}

	if len(profiles) == 0 {
		return nil, core.ErrProfileNotFound
	}

	profile := &profiles[0]
	g.cacheProfile(ctx, profile)
	return profile, nil
}

func (g *LiveGateway) ResetPassword(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return g.doJSON(ctx, http.MethodPost, "/auth/v1/recover", body, "", nil)
}

func (g *LiveGateway) Subscribe(cb core.EventCallback) core.Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextSub
	g.nextSub++
	g.subscribers[id] = cb

	return &liveSubscription{gateway: g, id: id}
}

type liveSubscription struct {
	gateway *LiveGateway
	id      int
}

func (s *liveSubscription) Unsubscribe() {
	s.gateway.mu.Lock()
	delete(s.gateway.subscribers, s.id)
	s.gateway.mu.Unlock()
}

// dispatch delivers events to subscribers one at a time, preserving
// arrival order.
func (g *LiveGateway) dispatch() {
	for {
		select {
		case event := <-g.events:
			g.mu.Lock()
			subs := make([]core.EventCallback, 0, len(g.subscribers))
			for _, cb := range g.subscribers {
				subs = append(subs, cb)
			}
			g.mu.Unlock()

			for _, cb := range subs {
				cb(event)
			}
		case <-g.done:
			return
		}
	}
}

func (g *LiveGateway) emit(event core.AuthEvent) {
	select {
	case g.events <- event:
	case <-g.done:
	}
}

func (g *LiveGateway) buildSession(tokenResp *tokenResponse) *core.Session {
	expiresAt, err := core.AccessTokenExpiry(tokenResp.AccessToken)
	if err != nil {
		expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	return &core.Session{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         tokenResp.User,
	}
}

func (g *LiveGateway) setSession(sess *core.Session) {
	g.mu.Lock()
	g.current = sess
	g.mu.Unlock()

	g.persistSession(sess)
	g.scheduleRefresh(sess)
}

func (g *LiveGateway) clearSession(ctx context.Context) {
	g.mu.Lock()
	g.current = nil
	if g.refreshTimer != nil {
		g.refreshTimer.Stop()
		g.refreshTimer = nil
	}
	g.mu.Unlock()

	if g.store != nil {
		if err := g.store.DeleteSession(ctx); err != nil {
			g.logger.Warn("failed to delete persisted session", slog.String("error", err.Error()))
		}
	}
}

func (g *LiveGateway) persistSession(sess *core.Session) {
	if g.store == nil || g.crypto == nil || sess.User == nil {
		return
	}

	encrypted, err := g.crypto.EncryptToken(sess.RefreshToken)
	if err != nil {
		g.logger.Warn("failed to encrypt refresh token", slog.String("error", err.Error()))
		return
	}

	stored := &core.StoredSession{
		UserID:       sess.User.ID,
		RefreshToken: encrypted,
		UpdatedAt:    time.Now(),
	}
	if err := g.store.SaveSession(context.Background(), stored); err != nil {
		g.logger.Warn("failed to persist session", slog.String("error", err.Error()))
	}
}

func (g *LiveGateway) cacheProfile(ctx context.Context, profile *core.UserProfile) {
	if g.store == nil {
		return
	}
	if err := g.store.SaveProfile(ctx, profile); err != nil {
		g.logger.Debug("failed to cache profile", slog.String("error", err.Error()))
	}
}

func (g *LiveGateway) scheduleRefresh(sess *core.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	if g.refreshTimer != nil {
		g.refreshTimer.Stop()
	}

	d := time.Until(sess.ExpiresAt) - g.config.refreshLeeway()
	if d < time.Second {
		d = time.Second
	}
	g.refreshTimer = time.AfterFunc(d, g.refreshNow)
}

// refreshNow runs when the access token approaches expiry. A rejected
// refresh token signs the session out; an unreachable provider retries
// after the leeway interval.
func (g *LiveGateway) refreshNow() {
	g.mu.Lock()
	if g.closed || g.current == nil {
		g.mu.Unlock()
		return
	}
	refreshToken := g.current.RefreshToken
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), g.config.requestTimeout())
	defer cancel()

	sess, err := g.refreshGrant(ctx, refreshToken)
	switch {
	case err == nil:
		g.setSession(sess)
		g.emit(core.AuthEvent{Type: core.EventTokenRefreshed, Session: sess})
	case errors.Is(err, core.ErrInvalidCredentials):
		g.logger.Info("refresh token rejected by provider, signing out")
		g.clearSession(context.Background())
		g.emit(core.AuthEvent{Type: core.EventSignedOut})
	default:
		g.logger.Warn("token refresh failed, will retry", slog.String("error", err.Error()))
		g.mu.Lock()
		if !g.closed {
			g.refreshTimer = time.AfterFunc(g.config.refreshLeeway(), g.refreshNow)
		}
		g.mu.Unlock()
	}
}

// refreshGrant exchanges a refresh token for a new session. A 4xx
// response means the token was rejected and maps to
// ErrInvalidCredentials.
func (g *LiveGateway) refreshGrant(ctx context.Context, refreshToken string) (*core.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var tokenResp tokenResponse
	if err := g.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", body, "", &tokenResp); err != nil {
		return nil, err
	}

	return g.buildSession(&tokenResp), nil
}

func (g *LiveGateway) profileRequest(ctx context.Context, method string, userID uuid.UUID, body interface{}) ([]core.UserProfile, error) {
	path := "/rest/v1/user_profiles?id=eq." + userID.String() + "&select=*"

	g.mu.Lock()
	accessToken := ""
	if g.current != nil {
		accessToken = g.current.AccessToken
	}
	g.mu.Unlock()

	var profiles []core.UserProfile
	if err := g.doJSON(ctx, method, path, body, accessToken, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// doJSON performs one provider request. 401 on the password and
// refresh grants maps to ErrInvalidCredentials; transport failures and
// 5xx map to ErrProviderUnavailable.
func (g *LiveGateway) doJSON(ctx context.Context, method, path string, body interface{}, accessToken string, dest interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", core.ErrProviderUnavailable, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.config.URL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}

	req.Header.Set("apikey", g.config.APIKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPatch {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return core.ErrInvalidCredentials
	case resp.StatusCode == http.StatusNotFound:
		return core.ErrProfileNotFound
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", core.ErrProviderUnavailable, resp.StatusCode, string(respBody))
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: decode response: %v", core.ErrProviderUnavailable, err)
	}
	return nil
}
