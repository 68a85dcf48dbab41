// Package viewer carries per-request reader state into the postprocessing
// passes. How that state persists between requests (cookies, sessions) is an
// external collaborator's concern.
package viewer

import "github.com/starford/wolog/internal/models"

// Viewer is the request-time reader context: when each path was last seen.
type Viewer struct {
	Viewed map[string]models.Date `json:"viewed,omitempty"`
}

// IsNew reports whether a document updated on the given date is unseen or
// newer than the viewer's last visit to it.
func (v Viewer) IsNew(path string, updated models.Date) bool {
	seen, ok := v.Viewed[path]
	if !ok {
		return true
	}
	return seen.Before(updated.Time)
}
