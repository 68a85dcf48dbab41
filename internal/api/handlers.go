package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/wolog/internal/apperr"
	"github.com/starford/wolog/internal/models"
	"github.com/starford/wolog/internal/postservice"
	"github.com/starford/wolog/internal/search"
	"github.com/starford/wolog/internal/syncer"
	"github.com/starford/wolog/internal/viewer"
)

// Handler holds the route handlers.
type Handler struct {
	svc    *postservice.Service
	sync   *syncer.Engine
	logger *slog.Logger
}

func NewHandler(svc *postservice.Service, sync *syncer.Engine, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, sync: sync, logger: logger}
}

// postPath extracts the document path from the URL (everything after
// /post/). Supports encoded slashes (e.g. topics%2Fpage).
func postPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Page handles GET /post/*. With ?bare=true the converted HTML is returned
// without the page template. Serving a page also refreshes the viewer
// cookie so embedded listings can badge unseen documents.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	path := postPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	v := viewerFromRequest(r)
	bare := r.URL.Query().Get("bare") == "true"

	page, err := h.svc.Page(r.Context(), path, v, bare)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			h.logger.Error("page failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	markViewed(w, v, path)
	writeHTML(w, http.StatusOK, page)
}

// Search handles GET /search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q, err := search.ParseQuery(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	v := viewerFromRequest(r)

	page, err := h.svc.Search(r.Context(), q, v)
	if err != nil {
		h.logger.Error("search failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeHTML(w, http.StatusOK, page)
}

// Feed handles GET /feed.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	q, err := search.ParseQuery(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	feed, err := h.svc.Feed(r.Context(), q)
	if err != nil {
		h.logger.Error("feed failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(feed))
}

// TagCounts handles GET /tags.
func (h *Handler) TagCounts(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.TagCounts(r.Context())
	if err != nil {
		h.logger.Error("tag counts failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

// Sync handles POST /sync: a full synchronization pass on demand.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.SyncAll(r.Context()); err != nil {
		h.logger.Error("sync failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// markViewed records path as seen now and re-issues the viewer cookie.
func markViewed(w http.ResponseWriter, v viewer.Viewer, path string) {
	if v.Viewed == nil {
		v.Viewed = map[string]models.Date{}
	}
	v.Viewed[path] = models.Date{Time: time.Now()}
	setViewerCookie(w, v)
}
