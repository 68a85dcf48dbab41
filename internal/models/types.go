package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PostType classifies a document for templating and feeds.
type PostType string

// Post types, from weakest to strongest classification. Note is the default;
// the link/mention preprocessing pass may upgrade it.
const (
	Note    PostType = "Note"
	Article PostType = "Article"
	Like    PostType = "Like"
	Repost  PostType = "Repost"
	Reply   PostType = "Reply"
)

// ParsePostType parses a post type name.
func ParsePostType(s string) (PostType, error) {
	switch PostType(s) {
	case Note, Article, Like, Repost, Reply:
		return PostType(s), nil
	}
	return "", fmt.Errorf("models: unknown post type %q", s)
}

// TemplateName returns the default template identifier for the post type.
func (p PostType) TemplateName() string {
	if p == "" {
		p = Note
	}
	return strings.ToLower(string(p))
}

const dateLayout = "2006-01-02"

// Date is a civil date (no time-of-day component). The zero value means
// unset. It serializes as an ISO "YYYY-MM-DD" string in JSON and YAML.
type Date struct {
	time.Time
}

// ParseDate parses an ISO date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("models: parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

// MustDate parses an ISO date string and panics on failure. Test helper.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String returns the ISO form, or "" for the zero value.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MarshalJSON encodes the date as an ISO string.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes an ISO date string; null and "" decode to the zero
// value.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("models: date: %w", err)
	}
	return d.set(s)
}

// MarshalYAML encodes the date as an ISO string.
func (d Date) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML decodes an ISO date string.
func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("models: date: %w", err)
	}
	return d.set(s)
}

func (d *Date) set(s string) error {
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
