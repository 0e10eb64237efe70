// Package config loads shell settings from ~/.hopewell/config.toml and the
// HOPEWELL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// InsecureDefaultSecret is the well-known handshake secret the shell falls
// back to when no secret is configured and AllowInsecureSecret is set.
const InsecureDefaultSecret = "your-shared-secret-here"

// envPrefix selects HOPEWELL_SECRET, HOPEWELL_APP_URL and friends.
const envPrefix = "HOPEWELL"

// ErrNoSecret is returned by ResolveSecret when neither a secret nor the
// insecure fallback is available.
var ErrNoSecret = errors.New("no handshake secret configured")

// Update policies.
const (
	UpdatePolicyAuto    = "auto"
	UpdatePolicyConfirm = "confirm"
)

// Config holds all shell configuration.
type Config struct {
	AppURL              string       `toml:"app_url"`
	Scheme              string       `toml:"scheme"`
	CallbackHost        string       `toml:"callback_host"`
	PublicRoutes        []string     `toml:"public_routes"`
	Partition           string       `toml:"partition"`
	Secret              string       `toml:"-"`
	AllowInsecureSecret bool         `toml:"allow_insecure_secret"`
	PendingLinkTTL      Duration     `toml:"pending_link_ttl"`
	Update              UpdateConfig `toml:"update"`
	Log                 LogConfig    `toml:"log"`
	Window              WindowConfig `toml:"window"`

	path string
}

// UpdateConfig controls the update orchestrator.
type UpdateConfig struct {
	Policy       string   `toml:"policy"` // "auto" or "confirm"
	Owner        string   `toml:"owner"`
	Repo         string   `toml:"repo"`
	InitialDelay Duration `toml:"initial_delay"`
	Interval     Duration `toml:"interval"`
	GraceDelay   Duration `toml:"grace_delay"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// WindowConfig holds main window geometry.
type WindowConfig struct {
	Width          int `toml:"width"`
	Height         int `toml:"height"`
	MinWidth       int `toml:"min_width"`
	MinHeight      int `toml:"min_height"`
	TitlebarHeight int `toml:"titlebar_height"`
}

// envOverlay is the subset of settings that may come from the environment.
type envOverlay struct {
	Secret       string `envconfig:"SECRET"`
	AppURL       string `envconfig:"APP_URL"`
	LogLevel     string `envconfig:"LOG_LEVEL"`
	Dev          bool   `envconfig:"DEV"`
	UpdatePolicy string `envconfig:"UPDATE_POLICY"`
	InsecureOK   bool   `envconfig:"ALLOW_INSECURE_SECRET"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AppURL:       "https://hopewellcommunityclinic.lovable.app/auth",
		Scheme:       "hopewell-clinic",
		CallbackHost: "auth-callback",
		PublicRoutes: []string{
			"/",
			"/about",
			"/services",
			"/team",
			"/contact",
			"/resources",
			"/articles",
			"/blog",
			"/book-appointment",
		},
		Partition:      "persist:hopewell",
		PendingLinkTTL: Duration{30 * time.Second},
		Update: UpdateConfig{
			Policy:       UpdatePolicyAuto,
			Owner:        "hopewell-clinic",
			Repo:         "hopewell-desktop",
			InitialDelay: Duration{3 * time.Second},
			Interval:     Duration{6 * time.Hour},
			GraceDelay:   Duration{5 * time.Second},
		},
		Log: LogConfig{Level: "info"},
		Window: WindowConfig{
			Width:          1280,
			Height:         800,
			MinWidth:       800,
			MinHeight:      600,
			TitlebarHeight: 40,
		},
	}
}

// DefaultPath returns ~/.hopewell/config.toml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".hopewell", "config.toml")
	}
	return filepath.Join(home, ".hopewell", "config.toml")
}

// Dir returns the directory holding the config file. Lock files, the
// activation socket and the account store live next to it.
func (c *Config) Dir() string {
	if c.path == "" {
		return filepath.Dir(DefaultPath())
	}
	return filepath.Dir(c.path)
}

// PartitionDir returns the webview data directory for Partition, under Dir.
// The Electron-style "persist:" prefix is dropped and characters outside
// [A-Za-z0-9._-] become underscores.
func (c *Config) PartitionDir() string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		}
		return '_'
	}, strings.TrimPrefix(c.Partition, "persist:"))
	if strings.Trim(name, ".") == "" {
		name = "default"
	}
	return filepath.Join(c.Dir(), "partitions", name)
}

// AppOrigin returns the scheme://host origin of AppURL, or "" when AppURL
// is not absolute.
func (c *Config) AppOrigin() string {
	u, err := url.Parse(c.AppURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// Load reads the TOML file at path (DefaultPath when empty) and applies the
// environment overlay. A missing file yields defaults. A malformed file also
// yields defaults, together with the parse error so the caller can log it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()
	cfg.path = path

	var fileErr error
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		parsed := Default()
		if _, err := toml.Decode(string(data), parsed); err != nil {
			fileErr = fmt.Errorf("failed to parse %s: %w", path, err)
		} else {
			cfg = parsed
			cfg.path = path
		}
	case !os.IsNotExist(err):
		fileErr = fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.normalize()
	return cfg, fileErr
}

func (c *Config) applyEnv() error {
	var env envOverlay
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}
	c.Secret = env.Secret
	if env.AppURL != "" {
		c.AppURL = env.AppURL
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.Dev {
		c.Log.Development = true
	}
	if env.UpdatePolicy != "" {
		c.Update.Policy = env.UpdatePolicy
	}
	if env.InsecureOK {
		c.AllowInsecureSecret = true
	}
	return nil
}

// normalize fills empty values and repairs invalid ones.
func (c *Config) normalize() {
	d := Default()
	if c.AppURL == "" {
		c.AppURL = d.AppURL
	}
	c.Scheme = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(c.Scheme), "://"))
	if c.Scheme == "" {
		c.Scheme = d.Scheme
	}
	if c.CallbackHost == "" {
		c.CallbackHost = d.CallbackHost
	}
	if c.Partition == "" {
		c.Partition = d.Partition
	}
	if c.PendingLinkTTL.Duration < 0 {
		c.PendingLinkTTL = d.PendingLinkTTL
	}

	c.Update.Policy = strings.ToLower(strings.TrimSpace(c.Update.Policy))
	switch c.Update.Policy {
	case UpdatePolicyAuto, UpdatePolicyConfirm:
		// Valid
	default:
		c.Update.Policy = UpdatePolicyAuto
	}
	if c.Update.Interval.Duration <= 0 {
		c.Update.Interval = d.Update.Interval
	}
	if c.Update.InitialDelay.Duration < 0 {
		c.Update.InitialDelay = d.Update.InitialDelay
	}
	if c.Update.GraceDelay.Duration < 0 {
		c.Update.GraceDelay = d.Update.GraceDelay
	}

	if c.Window.Width <= 0 {
		c.Window.Width = d.Window.Width
	}
	if c.Window.Height <= 0 {
		c.Window.Height = d.Window.Height
	}
	if c.Window.MinWidth <= 0 {
		c.Window.MinWidth = d.Window.MinWidth
	}
	if c.Window.MinHeight <= 0 {
		c.Window.MinHeight = d.Window.MinHeight
	}
	if c.Window.TitlebarHeight <= 0 {
		c.Window.TitlebarHeight = d.Window.TitlebarHeight
	}
}

// ResolveSecret returns the handshake secret. When none is configured the
// insecure default is returned only if AllowInsecureSecret is set, and
// insecure reports that the caller should warn about it.
func (c *Config) ResolveSecret() (secret []byte, insecure bool, err error) {
	if c.Secret != "" {
		return []byte(c.Secret), false, nil
	}
	if c.AllowInsecureSecret {
		return []byte(InsecureDefaultSecret), true, nil
	}
	return nil, false, ErrNoSecret
}

// Duration lets TOML files spell durations as "5s" or "6h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
