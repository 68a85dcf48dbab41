package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Content ContentConfig     `yaml:"content"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Pandoc  PandocConfig      `yaml:"pandoc"`
	Sandbox SandboxConfig     `yaml:"sandbox"`
	Sync    SyncConfig        `yaml:"sync"`
	Site    SiteConfig        `yaml:"site"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Content.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Pandoc.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Site.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ContentConfig holds the markdown content root configuration.
type ContentConfig struct {
	Root      string   `yaml:"root"`
	Extension string   `yaml:"extension"`
	Ignore    []string `yaml:"ignore"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	if c.Extension == "" {
		c.Extension = ".md"
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// PandocConfig holds the converter binary configuration.
type PandocConfig struct {
	Binary string `yaml:"binary"`
}

// Validate validates the pandoc configuration.
func (c *PandocConfig) Validate() error {
	if c.Binary == "" {
		c.Binary = "pandoc"
	}
	return nil
}

// SandboxConfig holds the dynamic code execution sandbox configuration.
// With Enabled false, dynamic blocks are left unexecuted.
type SandboxConfig struct {
	Enabled bool          `yaml:"enabled"`
	Sudo    string        `yaml:"sudo"`
	User    string        `yaml:"user"`
	Group   string        `yaml:"group"`
	Timeout time.Duration `yaml:"timeout"`
}

// SyncConfig holds the synchronization engine configuration.
//
// SkewTolerance absorbs filesystems whose modtime resolution is coarser
// than the stored timestamp; a file only counts as stale when its modtime
// exceeds the stored one by more than this. Develop makes documents not
// marked ready visible.
type SyncConfig struct {
	Interval      time.Duration `yaml:"interval"`
	SkewTolerance time.Duration `yaml:"skew_tolerance"`
	Develop       bool          `yaml:"develop"`
	Workers       int           `yaml:"workers"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if c.SkewTolerance == 0 {
		c.SkewTolerance = time.Second
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(1)),
	)
}

// SiteConfig holds the outward-facing site configuration.
type SiteConfig struct {
	Origin        string `yaml:"origin"`
	Bridge        string `yaml:"bridge"`
	TemplatesGlob string `yaml:"templates_glob"`

	// TemplateReload re-parses the template set on this interval; zero
	// disables hot reload.
	TemplateReload time.Duration `yaml:"template_reload"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TemplatesGlob, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how the synchronization trigger is protected:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Content: ContentConfig{
			Root:      "./content",
			Extension: ".md",
		},
		SQLite: SQLiteConfig{
			Path: "./wolog.db",
		},
		Pandoc: PandocConfig{
			Binary: "pandoc",
		},
		Sandbox: SandboxConfig{
			Enabled: false,
		},
		Sync: SyncConfig{
			Interval:      15 * time.Minute,
			SkewTolerance: time.Second,
			Workers:       4,
		},
		Site: SiteConfig{
			Bridge:         "https://fed.brid.gy/",
			TemplatesGlob:  "./templates/*.html",
			TemplateReload: 30 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
