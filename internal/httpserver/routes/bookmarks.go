package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/skymark/skymark/internal/httpserver/deps"
	"github.com/skymark/skymark/internal/httpserver/handlers"
)

func init() { Register(registerBookmarks) }

func registerBookmarks(r chi.Router, d deps.Deps) {
	r.Get("/api/bookmarks", handlers.ListBookmarks(d))
	r.Post("/api/bookmarks", handlers.CreateBookmark(d))
	r.Post("/api/bookmarks/validate", handlers.ValidateBookmark(d))
	r.Put("/api/bookmarks/{rkey}", handlers.UpdateBookmark(d))
	r.Delete("/api/bookmarks/{rkey}", handlers.DeleteBookmark(d))
	r.Get("/api/bookmarks/export", handlers.ExportBookmarks(d))
}
