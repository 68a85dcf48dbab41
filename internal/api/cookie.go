package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/starford/wolog/internal/viewer"
)

const viewerCookie = "viewed"

// viewerFromRequest decodes the reader's visit history from the viewer
// cookie. Anything undecodable degrades to an empty history, which just
// means every document counts as new.
func viewerFromRequest(r *http.Request) viewer.Viewer {
	c, err := r.Cookie(viewerCookie)
	if err != nil {
		return viewer.Viewer{}
	}
	raw, err := base64.URLEncoding.DecodeString(c.Value)
	if err != nil {
		return viewer.Viewer{}
	}
	var v viewer.Viewer
	if err := json.Unmarshal(raw, &v); err != nil {
		return viewer.Viewer{}
	}
	return v
}

func setViewerCookie(w http.ResponseWriter, v viewer.Viewer) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     viewerCookie,
		Value:    base64.URLEncoding.EncodeToString(raw),
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
