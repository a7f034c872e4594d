package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/skymark/skymark/internal/httpserver/deps"
	"github.com/skymark/skymark/internal/httpserver/handlers"
)

func init() { Register(registerFeed) }

func registerFeed(r chi.Router, d deps.Deps) {
	r.Get("/api/feed", handlers.Feed(d))
	r.Get("/api/feed/options", handlers.FeedOptions(d))
	r.Get("/api/pinned", handlers.PinnedFeeds(d))
	r.Post("/api/pinned/reload", handlers.ReloadPinnedFeeds(d))
}
