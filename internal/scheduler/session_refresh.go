package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/skymark/skymark/internal/auth"
	"github.com/skymark/skymark/internal/logger"
)

// SessionRefresher keeps the stored session fresh by refreshing it on a
// fixed interval while a refresh token is present. The refresh spans a
// network round trip, so the auth manager serializes attempts; the
// refresher never needs to coordinate with 401-triggered refreshes.
type SessionRefresher struct {
	auth     *auth.Manager
	logger   logger.Logger
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewSessionRefresher creates a new session refresher
func NewSessionRefresher(mgr *auth.Manager, log logger.Logger, interval time.Duration) *SessionRefresher {
	return &SessionRefresher{
		auth:     mgr,
		logger:   log,
		interval: interval,
	}
}

// Start begins the periodic refresh. Restarting replaces any existing
// timer, so there is never more than one.
func (sr *SessionRefresher) Start(ctx context.Context) {
	sr.mu.Lock()
	if sr.stopCh != nil {
		close(sr.stopCh)
	}
	stopCh := make(chan struct{})
	sr.stopCh = stopCh
	sr.mu.Unlock()

	ticker := time.NewTicker(sr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sr.tick(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	sr.logger.Info("session auto-refresh started",
		logger.Duration("interval", sr.interval))
}

// Stop cancels the timer. Idempotent; safe when never started.
func (sr *SessionRefresher) Stop() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.stopCh != nil {
		close(sr.stopCh)
		sr.stopCh = nil
		sr.logger.Info("session auto-refresh stopped")
	}
}

func (sr *SessionRefresher) tick(ctx context.Context) {
	session, err := sr.auth.CurrentSession(ctx)
	if err != nil {
		sr.logger.Warn("auto-refresh could not read session", logger.Error(err))
		return
	}
	if session == nil || session.RefreshJWT == "" {
		// Logged out since the last tick: stop ourselves.
		sr.logger.Info("no refresh token present, stopping auto-refresh")
		sr.Stop()
		return
	}

	// Refresh handles its own failure path (clears the session and
	// notifies forced-logout observers, which stop this timer).
	if refreshed, err := sr.auth.Refresh(ctx); err != nil {
		sr.logger.Error("auto-refresh failed", logger.Error(err))
	} else if refreshed == nil {
		sr.logger.Warn("auto-refresh could not renew session")
	} else {
		sr.logger.Debug("auto-refresh completed")
	}
}
