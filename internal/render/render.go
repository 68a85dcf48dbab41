// Package render holds the hot-reloadable template registry used by the
// read path. The template language itself is a collaborator; this package
// only owns loading, swapping and concurrent access.
package render

import (
	"fmt"
	"html/template"
	"strings"
	"sync"
)

// Renderer renders a named template with a context map.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// Registry is a swappable template set: many concurrent readers render while
// Reload replaces the parsed set under the write lock, never mid-render.
type Registry struct {
	glob string

	mu   sync.RWMutex
	tmpl *template.Template
}

// NewRegistry parses the template set matching glob.
func NewRegistry(glob string) (*Registry, error) {
	r := &Registry{glob: glob}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses the template set and swaps it in atomically. A parse
// failure leaves the previous set serving.
func (r *Registry) Reload() error {
	tmpl, err := template.ParseGlob(r.glob)
	if err != nil {
		return fmt.Errorf("render: parse %s: %w", r.glob, err)
	}
	r.mu.Lock()
	r.tmpl = tmpl
	r.mu.Unlock()
	return nil
}

// Render executes the named template.
func (r *Registry) Render(name string, data any) (string, error) {
	r.mu.RLock()
	tmpl := r.tmpl
	r.mu.RUnlock()

	var sb strings.Builder
	if err := tmpl.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("render: %s: %w", name, err)
	}
	return sb.String(), nil
}
