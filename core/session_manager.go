package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionManager owns the canonical session state. All mutation goes
// through its operations or through the gateway's push events; every
// other component holds a read-only view.
//
// Async completions (initialization, profile fetches, in-flight profile
// updates) capture the epoch they started under and are discarded when
// the epoch has moved, so a completed call never rolls the state back
// past a transition a push event already applied. The epoch advances on
// every authoritative transition: SIGNED_IN, SIGNED_OUT and local
// sign-out clearing.
type SessionManager struct {
	gateway IdentityGateway
	config  *Config
	logger  *slog.Logger
	metrics *Metrics

	mu            sync.Mutex
	state         SessionState
	epoch         uint64
	initialized   bool
	closed        bool
	sub           Subscription
	watchers      map[int]func(SessionState)
	eventWatchers map[int]func(AuthEvent)
	nextWatcher   int
}

func NewSessionManager(gateway IdentityGateway, config *Config, logger *slog.Logger, metrics *Metrics) *SessionManager {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		gateway: gateway,
		config:  config,
		logger:  logger,
		metrics: metrics,
		state:   SessionState{Loading: true},
	}
}

// NextState applies a provider-pushed event to a session state and
// returns the next state. It is a pure function so the interleaving
// behaviour can be unit-tested directly.
func NextState(state SessionState, event AuthEvent) SessionState {
	switch event.Type {
	case EventSignedIn:
		if event.Session != nil && event.Session.User != nil {
			state.User = event.Session.User
			state.Profile = nil // fetched separately, non-fatal
			state.Err = ""
		}
	case EventSignedOut:
		state.User = nil
		state.Profile = nil
	case EventTokenRefreshed:
		if event.Session != nil && event.Session.User != nil {
			state.User = event.Session.User
		}
	case EventUserUpdated, EventPasswordRecovery:
		// forwarded to event watchers, no state mutation
	}
	return state
}

// Initialize establishes the session once at startup: subscribe to
// provider events, race GetSession against the timeout budget, then
// fetch the profile under its own budget. A gateway failure or timeout
// records an advisory error and proceeds unauthenticated; a profile
// failure is silent. Loading ends false exactly once.
func (m *SessionManager) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.initialized || m.closed {
		m.mu.Unlock()
		return
	}
	m.initialized = true
	m.state.Loading = true
	startEpoch := m.epoch
	m.mu.Unlock()

	// Subscribe before the session fetch so a push event arriving
	// mid-initialization is not lost.
	sub := m.gateway.Subscribe(m.handleEvent)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	m.sub = sub
	m.mu.Unlock()

	started := time.Now()
	sess, err := m.raceGetSession(ctx)

	var fetchID uuid.UUID
	wantProfile := false

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return
	case m.epoch != startEpoch:
		// a push event advanced the state past this initialization;
		// keep what it produced
	case err != nil:
		m.state.User = nil
		m.state.Profile = nil
		m.state.Err = UserMessage(err)
	case sess == nil || sess.User == nil:
		m.state.User = nil
		m.state.Profile = nil
	default:
		m.state.User = sess.User
		fetchID = sess.User.ID
		wantProfile = true
	}
	epoch := m.epoch
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("session initialization failed, proceeding unauthenticated",
			slog.String("error", err.Error()),
		)
	}

	if wantProfile {
		m.fetchProfile(ctx, epoch, fetchID)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.state.Loading = false
	m.mu.Unlock()

	m.metrics.ObserveInitDuration(time.Since(started))
	m.notify()
}

// raceGetSession races the gateway call against the initialization
// budget. The explicit select covers gateways that do not honour
// context cancellation.
func (m *SessionManager) raceGetSession(ctx context.Context) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.InitTimeout())
	defer cancel()

	type result struct {
		sess *Session
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		sess, err := m.gateway.GetSession(ctx)
		ch <- result{sess, err}
	}()

	select {
	case r := <-ch:
		if errors.Is(r.err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return r.sess, r.err
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}

// SignIn delegates to the gateway. On success the user is NOT assigned
// here: the push-event subscription is the single writer for that
// transition, which avoids applying it twice.
func (m *SessionManager) SignIn(ctx context.Context, email, password string) error {
	m.setError("")

	_, err := m.gateway.SignIn(ctx, email, password)
	m.metrics.RecordSignIn(err == nil)
	if err != nil {
		m.logger.Info("sign-in failed", slog.String("error", err.Error()))
		m.setError(UserMessage(err))
		return err
	}
	return nil
}

// SignOut clears local state regardless of the gateway outcome, so
// callers are never left holding a session the provider may already
// have revoked. The returned error is advisory.
func (m *SessionManager) SignOut(ctx context.Context) error {
	err := m.gateway.SignOut(ctx)
	if err != nil {
		m.logger.Warn("provider sign-out failed, clearing local session anyway",
			slog.String("error", err.Error()),
		)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return err
	}
	m.epoch++
	m.state.User = nil
	m.state.Profile = nil
	m.state.Err = ""
	m.mu.Unlock()
	m.notify()
	return err
}

// UpdateProfile requires an authenticated user and replaces the cached
// profile wholesale with the gateway's record. A completion that lands
// after the session moved on (sign-out, new sign-in) is not applied.
func (m *SessionManager) UpdateProfile(ctx context.Context, updates ProfileUpdate) (*UserProfile, error) {
	m.mu.Lock()
	if m.state.User == nil {
		m.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	userID := m.state.User.ID
	epoch := m.epoch
	m.mu.Unlock()
	m.setError("")

	profile, err := m.gateway.UpdateUserProfile(ctx, userID, updates)
	if err != nil {
		m.setError(UserMessage(err))
		return nil, err
	}

	m.mu.Lock()
	if m.closed || epoch != m.epoch {
		m.mu.Unlock()
		return profile, nil
	}
	m.state.Profile = profile
	m.mu.Unlock()
	m.notify()
	return profile, nil
}

// ResetPassword is pure delegation; no local state changes.
func (m *SessionManager) ResetPassword(ctx context.Context, email string) error {
	m.setError("")

	if err := m.gateway.ResetPassword(ctx, email); err != nil {
		m.setError(UserMessage(err))
		return err
	}
	return nil
}

// Snapshot returns a read-only copy of the current session state.
func (m *SessionManager) Snapshot() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnChange registers a state observer and returns its unsubscribe
// function. Observers are called outside the manager's lock.
func (m *SessionManager) OnChange(fn func(SessionState)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextWatcher
	m.nextWatcher++
	if m.watchers == nil {
		m.watchers = make(map[int]func(SessionState))
	}
	m.watchers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// OnEvent registers an observer for raw provider events, including the
// ones that do not mutate state (USER_UPDATED, PASSWORD_RECOVERY).
func (m *SessionManager) OnEvent(fn func(AuthEvent)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextWatcher
	m.nextWatcher++
	if m.eventWatchers == nil {
		m.eventWatchers = make(map[int]func(AuthEvent))
	}
	m.eventWatchers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.eventWatchers, id)
		m.mu.Unlock()
	}
}

// Close releases the gateway subscription and marks the manager so
// late async completions are dropped instead of mutating state after
// teardown.
func (m *SessionManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sub := m.sub
	m.sub = nil
	m.watchers = nil
	m.eventWatchers = nil
	m.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

func (m *SessionManager) handleEvent(event AuthEvent) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	next := NextState(m.state, event)

	var fetchID uuid.UUID
	wantProfile := false
	switch event.Type {
	case EventSignedIn:
		m.epoch++
		if next.User != nil {
			fetchID = next.User.ID
			wantProfile = true
		}
	case EventSignedOut:
		m.epoch++
	}
	epoch := m.epoch
	m.state = next

	fns := make([]func(AuthEvent), 0, len(m.eventWatchers))
	for _, fn := range m.eventWatchers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	m.metrics.RecordAuthEvent(event.Type)
	m.logger.Debug("auth event applied", slog.String("type", string(event.Type)))

	for _, fn := range fns {
		fn(event)
	}
	m.notify()

	if wantProfile {
		go m.fetchProfile(context.Background(), epoch, fetchID)
	}
}

// fetchProfile loads the profile under its own budget. Failure leaves
// the profile nil and the user untouched; it never sets the error
// field. The result is dropped when the epoch moved or the user
// changed while the fetch was in flight.
func (m *SessionManager) fetchProfile(ctx context.Context, epoch uint64, userID uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, m.config.ProfileTimeout())
	defer cancel()

	profile, err := m.gateway.GetUserProfile(ctx, userID)
	if err != nil {
		m.logger.Debug("profile fetch failed, continuing without profile",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	m.mu.Lock()
	if m.closed || epoch != m.epoch || m.state.User == nil || m.state.User.ID != userID {
		m.mu.Unlock()
		return
	}
	m.state.Profile = profile
	m.mu.Unlock()
	m.notify()
}

func (m *SessionManager) setError(msg string) {
	m.mu.Lock()
	if m.closed || m.state.Err == msg {
		m.mu.Unlock()
		return
	}
	m.state.Err = msg
	m.mu.Unlock()
	m.notify()
}

func (m *SessionManager) notify() {
	m.mu.Lock()
	state := m.state
	fns := make([]func(SessionState), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
