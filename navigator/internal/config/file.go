// Package config handles the helpers service configuration: a YAML file,
// environment overrides and defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Davasny/n8n-helpers/observability"
)

// DefaultUserAgent is applied to every new browser session.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"

// Session lifecycle policies.
const (
	PolicyKeepAlive  = "keepalive"
	PolicyPerRequest = "per_request"
)

// Final-attempt fallback policies.
const (
	FallbackSoft = "soft"
	FallbackHard = "hard"
)

// Config is the top-level configuration.
type Config struct {
	Server      ServerConfig            `yaml:"server"`
	Log         observability.LogConfig `yaml:"log"`
	Browser     BrowserConfig           `yaml:"browser"`
	Session     SessionConfig           `yaml:"session"`
	Navigation  NavigationConfig        `yaml:"navigation"`
	Screenshots ScreenshotConfig        `yaml:"screenshots"`
	Targets     TargetConfig            `yaml:"targets"`
	Auth        AuthConfig              `yaml:"auth"`
	RateLimit   RateLimitConfig         `yaml:"rate_limit"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	MCP               bool          `yaml:"mcp"`
}

// BrowserConfig controls how Chrome is launched or reached.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"` // ws:// control URL; empty launches a local Chrome
	Mode             string   `yaml:"mode"`   // headless | headful
	XVFB             bool     `yaml:"xvfb"`   // wrap headful Chrome in xvfb-run
	Stealth          bool     `yaml:"stealth"`
	IgnoreCertErrors bool     `yaml:"ignore_cert_errors"`
	ResourceBlocking []string `yaml:"resource_blocking"` // images, fonts, media, stylesheets
	UserAgent        string   `yaml:"user_agent"`
	Bin              string   `yaml:"bin"`
}

// Headless reports whether the browser runs without a window.
func (b BrowserConfig) Headless() bool { return b.Mode != "headful" }

// SessionConfig controls the shared browser session.
type SessionConfig struct {
	Policy      string        `yaml:"policy"` // keepalive | per_request
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// NavigationConfig controls retries and the readiness fallback.
type NavigationConfig struct {
	MaxTries          int           `yaml:"max_tries"`
	AttemptTimeout    time.Duration `yaml:"attempt_timeout"`
	ReadyStateTimeout time.Duration `yaml:"ready_state_timeout"`
	IdleWindow        time.Duration `yaml:"idle_window"`
	Fallback          string        `yaml:"fallback"` // soft | hard
}

// ScreenshotConfig controls the diagnostic store.
type ScreenshotConfig struct {
	Dir            string        `yaml:"dir"`
	IndexDB        string        `yaml:"index_db"` // optional SQLite metadata index
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
}

// TargetConfig restricts which URLs /goto may visit.
type TargetConfig struct {
	AllowedHosts []string `yaml:"allowed_hosts"`
	BlockPrivate bool     `yaml:"block_private"`
}

// AuthConfig enables basic auth when both fields are set.
type AuthConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// Enabled reports whether basic auth is configured.
func (a AuthConfig) Enabled() bool { return a.Username != "" && a.PasswordHash != "" }

// RateLimitConfig limits /goto per client. Zero GotoRPS disables it.
type RateLimitConfig struct {
	GotoRPS    float64 `yaml:"goto_rps"`
	Burst      int     `yaml:"burst"`
	TrustProxy bool    `yaml:"trust_proxy"` // key clients by X-Forwarded-For / X-Real-IP
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Load reads path when non-empty, then applies environment overrides and
// validates the result.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		c.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 10 << 20
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.UserAgent == "" {
		c.Browser.UserAgent = DefaultUserAgent
	}
	if c.Session.Policy == "" {
		c.Session.Policy = PolicyKeepAlive
	}
	if c.Session.IdleTimeout <= 0 {
		c.Session.IdleTimeout = 5 * time.Minute
	}
	if c.Navigation.MaxTries <= 0 {
		c.Navigation.MaxTries = 3
	}
	if c.Navigation.AttemptTimeout <= 0 {
		c.Navigation.AttemptTimeout = 10 * time.Second
	}
	if c.Navigation.ReadyStateTimeout <= 0 {
		c.Navigation.ReadyStateTimeout = 5 * time.Second
	}
	if c.Navigation.IdleWindow <= 0 {
		c.Navigation.IdleWindow = 500 * time.Millisecond
	}
	if c.Navigation.Fallback == "" {
		c.Navigation.Fallback = FallbackSoft
	}
	if c.Screenshots.Dir == "" {
		c.Screenshots.Dir = "screenshots"
	}
	if c.Screenshots.CaptureTimeout <= 0 {
		c.Screenshots.CaptureTimeout = 15 * time.Second
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 1
	}
}

// ApplyEnv overrides fields from the environment. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("config: PORT: %w", err)
		}
		c.Server.Addr = ":" + v
	}
	if v := getenv("MCP_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: MCP_ENABLED: %w", err)
		}
		c.Server.MCP = b
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := getenv("BROWSER_REMOTE_URL"); v != "" {
		c.Browser.Remote = v
	}
	if v := getenv("BROWSER_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: BROWSER_HEADLESS: %w", err)
		}
		c.Browser.Mode = "headless"
		if !b {
			c.Browser.Mode = "headful"
		}
	}
	if v := getenv("SESSION_POLICY"); v != "" {
		c.Session.Policy = v
	}
	if v := getenv("SESSION_IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: SESSION_IDLE_TIMEOUT: %w", err)
		}
		c.Session.IdleTimeout = d
	}
	if v := getenv("NAV_FALLBACK"); v != "" {
		c.Navigation.Fallback = v
	}
	if v := getenv("SCREENSHOT_DIR"); v != "" {
		c.Screenshots.Dir = v
	}
	if v := getenv("SCREENSHOT_INDEX_DB"); v != "" {
		c.Screenshots.IndexDB = v
	}
	if v := getenv("RATE_LIMIT_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: RATE_LIMIT_TRUST_PROXY: %w", err)
		}
		c.RateLimit.TrustProxy = b
	}
	if v := getenv("AUTH_USERNAME"); v != "" {
		c.Auth.Username = v
	}
	if v := getenv("AUTH_PASSWORD_HASH"); v != "" {
		c.Auth.PasswordHash = v
	}
	return nil
}

// Validate rejects unknown enum values and non-positive limits.
func (c *Config) Validate() error {
	var errs []error
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		errs = append(errs, fmt.Errorf("browser.mode: unknown value %q", c.Browser.Mode))
	}
	for _, r := range c.Browser.ResourceBlocking {
		switch r {
		case "images", "fonts", "media", "stylesheets":
		default:
			errs = append(errs, fmt.Errorf("browser.resource_blocking: unknown value %q", r))
		}
	}
	switch c.Session.Policy {
	case PolicyKeepAlive, PolicyPerRequest:
	default:
		errs = append(errs, fmt.Errorf("session.policy: unknown value %q", c.Session.Policy))
	}
	switch c.Navigation.Fallback {
	case FallbackSoft, FallbackHard:
	default:
		errs = append(errs, fmt.Errorf("navigation.fallback: unknown value %q", c.Navigation.Fallback))
	}
	if c.Session.IdleTimeout <= 0 {
		errs = append(errs, errors.New("session.idle_timeout: must be positive"))
	}
	if c.Navigation.MaxTries <= 0 {
		errs = append(errs, errors.New("navigation.max_tries: must be positive"))
	}
	if c.Navigation.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("navigation.attempt_timeout: must be positive"))
	}
	if c.Navigation.ReadyStateTimeout <= 0 {
		errs = append(errs, errors.New("navigation.ready_state_timeout: must be positive"))
	}
	if c.RateLimit.GotoRPS < 0 {
		errs = append(errs, errors.New("rate_limit.goto_rps: must not be negative"))
	}
	if (c.Auth.Username == "") != (c.Auth.PasswordHash == "") {
		errs = append(errs, errors.New("auth: username and password_hash must be set together"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}
