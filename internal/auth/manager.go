// Package auth owns the session lifecycle: login, logout, refresh with
// single-flight coalescing, and the proactive validity check performed
// at startup. The persisted session lives in a durable key-value store
// behind the SessionStore interface.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skymark/skymark/internal/domain"
	"github.com/skymark/skymark/internal/logger"
	"github.com/skymark/skymark/internal/xrpc"
)

// ErrAuthenticationFailed wraps a rejected login. Terminal: the user
// must retry with different credentials.
var ErrAuthenticationFailed = errors.New("authentication failed")

const (
	// SessionMaxAge is a coarse client-side cleanup horizon. It only
	// decides whether a proactive refresh is worth attempting; a stored
	// session is never silently treated as absent because of age.
	SessionMaxAge = 30 * 24 * time.Hour

	// ProactiveRefreshAge is the session age beyond which the startup
	// validity check refreshes unconditionally instead of probing.
	ProactiveRefreshAge = 8 * time.Hour
)

// SessionStore is the durable key-value persistence for one session.
// Implemented by the Redis store; an in-memory version backs the tests.
type SessionStore interface {
	SaveSession(ctx context.Context, session *domain.Session) error
	// LoadSession returns (nil, nil) for absent or malformed entries,
	// clearing the malformed ones as a side effect.
	LoadSession(ctx context.Context) (*domain.Session, error)
	ClearSession(ctx context.Context) error
}

// refreshCall is one in-flight refresh shared by concurrent callers.
type refreshCall struct {
	done chan struct{}
	sess *domain.Session
	err  error
}

// Manager drives the session state machine:
// LoggedOut -> Authenticating -> LoggedIn -> Refreshing -> (LoggedIn | LoggedOut).
type Manager struct {
	client *xrpc.Client
	store  SessionStore
	logger logger.Logger

	mu       sync.Mutex
	inflight *refreshCall

	obsMu     sync.RWMutex
	observers []func(reason string)

	now func() time.Time
}

// NewManager creates a Manager. Call client.SetCredentials(m) after
// construction so authenticated requests can obtain headers and join
// refreshes.
func NewManager(client *xrpc.Client, store SessionStore, log logger.Logger) *Manager {
	return &Manager{
		client: client,
		store:  store,
		logger: log,
		now:    time.Now,
	}
}

// OnForcedLogout registers an observer notified when the session is
// torn down without an explicit user action (refresh failure). Multiple
// observers are supported; each receives a user-facing reason.
func (m *Manager) OnForcedLogout(fn func(reason string)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, fn)
}

func (m *Manager) notifyForcedLogout(reason string) {
	m.obsMu.RLock()
	observers := make([]func(string), len(m.observers))
	copy(observers, m.observers)
	m.obsMu.RUnlock()
	for _, fn := range observers {
		fn(reason)
	}
}

// Login authenticates against the PDS and persists the resulting
// session. The profile fetch for the display name is best effort: a
// failure is logged and the display name falls back to the handle.
func (m *Manager) Login(ctx context.Context, identifier, password string) (*domain.Session, error) {
	data, err := m.client.CreateSession(ctx, identifier, password)
	if err != nil || !data.Complete() {
		// Make sure no stale session outlives a failed login.
		_ = m.store.ClearSession(ctx)
		if err == nil {
			err = fmt.Errorf("incomplete session data received")
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	session := &domain.Session{
		DID:         data.DID,
		Handle:      data.Handle,
		DisplayName: data.Handle,
		AccessJWT:   data.AccessJWT,
		RefreshJWT:  data.RefreshJWT,
		IssuedAt:    m.now(),
	}

	// Temporarily save before the profile probe so AuthHeader works.
	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	if profile, perr := m.client.GetProfile(ctx, data.DID); perr != nil {
		m.logger.Warn("could not fetch profile after login",
			logger.String("handle", data.Handle),
			logger.Error(perr))
	} else if profile.DisplayName != "" {
		session.DisplayName = profile.DisplayName
		if err := m.store.SaveSession(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to persist session: %w", err)
		}
	}

	m.logger.Info("logged in",
		logger.String("did", session.DID),
		logger.String("handle", session.Handle))
	return session, nil
}

// Logout clears the persisted session. Idempotent: logging out while
// already logged out is a no-op. Timer teardown is the scheduler's job,
// triggered through the same code paths that call Logout.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.ClearSession(ctx); err != nil {
		return err
	}
	m.logger.Info("logged out, session cleared")
	return nil
}

// CurrentSession reads the stored session, including the
// malformed-record cleanup performed by the store.
func (m *Manager) CurrentSession(ctx context.Context) (*domain.Session, error) {
	return m.store.LoadSession(ctx)
}

// Refresh exchanges the stored refresh token for new tokens.
//
// At most one refresh is in flight at a time: concurrent callers join
// the pending call and observe the same outcome, so a 401-triggered
// refresh and a timer-triggered one can never race on the stored
// session.
//
// Returns (nil, nil) when there is no refresh token (any partial
// session is cleared) and when the remote call fails (session cleared,
// forced-logout observers notified). Errors are reserved for local
// persistence failures.
func (m *Manager) Refresh(ctx context.Context) (*domain.Session, error) {
	m.mu.Lock()
	if call := m.inflight; call != nil {
		m.mu.Unlock()
		select {
		case <-call.done:
			return call.sess, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	m.inflight = call
	m.mu.Unlock()

	call.sess, call.err = m.doRefresh(ctx)
	close(call.done)

	m.mu.Lock()
	m.inflight = nil
	m.mu.Unlock()

	return call.sess, call.err
}

func (m *Manager) doRefresh(ctx context.Context) (*domain.Session, error) {
	current, err := m.store.LoadSession(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil || current.RefreshJWT == "" {
		m.logger.Warn("no refresh token available, cannot refresh")
		_ = m.store.ClearSession(ctx)
		return nil, nil
	}

	data, rerr := m.client.RefreshSession(ctx, current.RefreshJWT)
	if rerr != nil || !data.Complete() {
		if rerr == nil {
			rerr = fmt.Errorf("incomplete session data received")
		}
		m.logger.Error("session refresh failed", logger.Error(rerr))
		_ = m.store.ClearSession(ctx)
		m.notifyForcedLogout("Your session expired. Please log in again.")
		return nil, nil
	}

	session := &domain.Session{
		DID:         data.DID,
		Handle:      data.Handle,
		DisplayName: current.DisplayName,
		AccessJWT:   data.AccessJWT,
		RefreshJWT:  data.RefreshJWT,
		IssuedAt:    m.now(),
	}
	// Preserve identity fields the refresh response may omit.
	if session.Handle == "" {
		session.Handle = current.Handle
	}
	if session.DisplayName == "" {
		session.DisplayName = session.Handle
	}

	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed session: %w", err)
	}
	m.logger.Info("session refreshed", logger.String("did", session.DID))
	return session, nil
}

// AuthHeader returns the bearer header for the current access token,
// or "" when no usable session exists. Implements xrpc.Credentials.
func (m *Manager) AuthHeader(ctx context.Context) string {
	session, err := m.store.LoadSession(ctx)
	if err != nil || !session.Usable() {
		return ""
	}
	return "Bearer " + session.AccessJWT
}

// RefreshSession implements xrpc.Credentials: it joins or starts a
// refresh and reports terminal failure as an error so the transport
// stops retrying.
func (m *Manager) RefreshSession(ctx context.Context) error {
	session, err := m.Refresh(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("session refresh failed")
	}
	return nil
}

// CheckValidity is the proactive startup check. Sessions older than
// ProactiveRefreshAge are refreshed unconditionally; younger ones are
// probed with a lightweight authenticated call and refreshed once on
// any probe error. It reports whether a usable session remains; when
// it does, callers must re-read CurrentSession to adopt any new tokens.
func (m *Manager) CheckValidity(ctx context.Context, session *domain.Session) bool {
	if !session.Usable() {
		return false
	}

	if age := session.Age(m.now()); age > ProactiveRefreshAge {
		m.logger.Info("session is stale, refreshing proactively",
			logger.Duration("age", age))
		refreshed, err := m.Refresh(ctx)
		return err == nil && refreshed != nil
	}

	if _, err := m.client.GetProfile(ctx, session.DID); err != nil {
		m.logger.Warn("session probe failed, attempting refresh", logger.Error(err))
		refreshed, rerr := m.Refresh(ctx)
		return rerr == nil && refreshed != nil
	}
	return true
}
