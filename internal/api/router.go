package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/wolog/internal/postservice"
	"github.com/starford/wolog/internal/syncer"
)

// NewRouter creates a chi router with all routes mounted. The site surface
// (pages, search, feed, tags) is public; the synchronization trigger sits
// behind Bearer token auth. sseHandler, if non-nil, is mounted at GET
// /events.
func NewRouter(svc *postservice.Service, sync *syncer.Engine, authEnabled bool, token string, sseHandler http.Handler, logger *slog.Logger) chi.Router {
	h := NewHandler(svc, sync, logger)

	r := chi.NewRouter()

	r.Get("/post/*", h.Page)
	r.Get("/search", h.Search)
	r.Get("/feed", h.Feed)
	r.Get("/tags", h.TagCounts)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))
		r.Post("/sync", h.Sync)
	})

	return r
}
