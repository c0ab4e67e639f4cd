// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/edge-forwarder/config.toml",
	"configs/config.toml",
}

// DefaultStripHeaders are removed from every forwarded request unless
// forward.strip_headers is set.
var DefaultStripHeaders = []string{"Host", "Referer"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string   `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host      string   `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int      `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	AdminPort int      `kong:"help='Admin listen port (overrides config).',env='ADMIN_PORT'"`
	LogLevel  string   `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Route     []string `kong:"short='r',sep='none',help='Route as prefix=origin, repeatable (replaces config routes).'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Admin    AdminConfig    `toml:"admin"`
	Upstream UpstreamConfig `toml:"upstream"`
	Forward  ForwardConfig  `toml:"forward"`
	Routes   []RouteConfig  `toml:"routes"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds public HTTP listener settings.
type ServerConfig struct {
	Host          string          `toml:"host"`
	Port          int             `toml:"port"` // 0 means "use default" (8080)
	BodyMaxBytes  int64           `toml:"body_max_bytes"` // 0 means unlimited
	ProxyProtocol bool            `toml:"proxy_protocol"`
	RateLimit     RateLimitConfig `toml:"rate_limit"`
}

// AdminConfig holds the health/status/metrics listener settings.
type AdminConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"` // 0 means "use default" (9090)
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds upstream connection settings shared by all routes.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections"`
	MaxRedirects    int `toml:"max_redirects"`
}

// ForwardConfig controls how inbound requests are rewritten.
type ForwardConfig struct {
	// StripHeaders is nil when unset; an explicit empty list strips nothing.
	StripHeaders []string `toml:"strip_headers"`
}

// RouteConfig maps a path prefix to an upstream origin.
type RouteConfig struct {
	Prefix         string `toml:"prefix"`
	UpstreamOrigin string `toml:"upstream_origin"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings. Metrics are served on the
// admin listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Validate implements validation.Validatable.
func (r RouteConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Prefix,
			validation.Required,
			validation.By(validatePrefix),
		),
		validation.Field(&r.UpstreamOrigin,
			validation.Required,
			validation.By(validateOrigin),
		),
	)
}

func validatePrefix(value any) error {
	s, _ := value.(string)
	if s != "" && !strings.HasPrefix(s, "/") {
		return errors.New("must start with '/'")
	}
	return nil
}

func validateOrigin(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := ParseOrigin(s)
	return err
}

// ParseOrigin parses an upstream origin: scheme and host, no path, query,
// fragment or userinfo. A lone trailing slash is dropped.
func ParseOrigin(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme must be http or https; got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("host is required")
	}
	if u.User != nil {
		return nil, errors.New("userinfo is not allowed")
	}
	if u.Path != "" && u.Path != "/" {
		return nil, fmt.Errorf("must not have a path; got %q", u.Path)
	}
	if u.RawQuery != "" || u.ForceQuery || u.Fragment != "" {
		return nil, errors.New("must not have a query or fragment")
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/edge-forwarder/config.toml then configs/config.toml. If no file is
// found but routes were given on the command line, built-in defaults are used.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	switch {
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	case len(cli.Route) == 0:
		return nil, fmt.Errorf("config: no config file found (searched %v) and no --route given", configSearchPaths)
	}

	if err := cfg.applyCLI(cli); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) error {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.AdminPort != 0 {
		c.Admin.Port = cli.AdminPort
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if len(cli.Route) > 0 {
		routes := make([]RouteConfig, 0, len(cli.Route))
		for _, r := range cli.Route {
			prefix, origin, ok := strings.Cut(r, "=")
			if !ok {
				return fmt.Errorf("--route %q: want prefix=origin", r)
			}
			routes = append(routes, RouteConfig{Prefix: prefix, UpstreamOrigin: origin})
		}
		c.Routes = routes
	}
	return nil
}

func (c *Config) validate() error {
	if len(c.Routes) == 0 {
		return errors.New("at least one [[routes]] entry is required")
	}
	for i, r := range c.Routes {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("routes[%d]: %w", i, err)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("admin.port must be 0–65535; got %d", c.Admin.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Upstream.MaxRedirects < 0 {
		return fmt.Errorf("upstream.max_redirects must be non-negative; got %d", c.Upstream.MaxRedirects)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}
	for _, h := range c.Forward.StripHeaders {
		if strings.TrimSpace(h) == "" {
			return errors.New("forward.strip_headers must not contain empty names")
		}
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/healthz", "/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key. The exception is
// server.body_max_bytes, where 0 keeps request bodies unlimited.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Admin.Host == "" {
		c.Admin.Host = "127.0.0.1"
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = 9090
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 120
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.MaxRedirects == 0 {
		c.Upstream.MaxRedirects = 10
	}
	if c.Forward.StripHeaders == nil {
		c.Forward.StripHeaders = append([]string(nil), DefaultStripHeaders...)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the admin listen address as host:port.
func (c *AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
