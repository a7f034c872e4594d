package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skymark/skymark/internal/httpserver/deps"
	"github.com/skymark/skymark/internal/httpserver/handlers"
	"github.com/skymark/skymark/internal/httpserver/mw"
)

func init() { Register(registerAuth) }

func registerAuth(r chi.Router, d deps.Deps) {
	refill := d.LoginRateLimit
	if window := d.LoginRateWindow; window > 0 {
		refill = int(float64(d.LoginRateLimit) * float64(time.Minute) / float64(window))
	}
	loginLimiter := mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.LoginRateLimit,
		RefillPerIPPerMin: refill,
		MaxEntries:        10_000,
		TrustProxy:        d.TrustProxy,
	})

	r.With(loginLimiter).Post("/api/auth/login", handlers.Login(d))
	r.Post("/api/auth/logout", handlers.Logout(d))
	r.Get("/api/auth/session", handlers.Session(d))
}
