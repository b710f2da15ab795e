// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/relay-proxy/config.toml",
	"configs/config.toml",
}

// maxWorkers caps the worker count regardless of available cores.
// The relay targets resource-constrained hosts.
const maxWorkers = 2

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config           string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host             string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port             int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel         string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Timeout          int    `kong:"help='Upstream timeout in seconds (overrides config).',env='PROXY_TIMEOUT'"`
	MaxRetries       int    `kong:"help='Max attempts per forwarded request (overrides config).',env='MAX_RETRIES'"`
	RateLimitDelayMS int    `kong:"help='Minimum milliseconds between upstream dispatches (overrides config).',env='RATE_LIMIT_DELAY_MS'"`
	MaxConcurrent    int    `kong:"help='Max concurrent forwarded requests (overrides config).',env='MAX_CONCURRENT_REQUESTS'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Proxy    ProxyConfig    `toml:"proxy"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	Workers      int             `toml:"workers"` // 0 means "derive from CPU count"
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP inbound request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ProxyConfig holds the forwarding knobs: timeout, retries, dispatch
// spacing, and the concurrency ceiling.
type ProxyConfig struct {
	TimeoutSeconds   int `toml:"timeout_seconds"`
	MaxRetries       int `toml:"max_retries"`
	RateLimitDelayMS int `toml:"rate_limit_delay_ms"`
	MaxConcurrent    int `toml:"max_concurrent"`
}

// UpstreamConfig holds upstream connection pool settings.
type UpstreamConfig struct {
	MaxConnections  int `toml:"max_connections"`
	IdleConnections int `toml:"idle_connections"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/relay-proxy/config.toml then configs/config.toml. The relay runs on
// defaults when no config file exists at all.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.Timeout != 0 {
		c.Proxy.TimeoutSeconds = cli.Timeout
	}
	if cli.MaxRetries != 0 {
		c.Proxy.MaxRetries = cli.MaxRetries
	}
	if cli.RateLimitDelayMS != 0 {
		c.Proxy.RateLimitDelayMS = cli.RateLimitDelayMS
	}
	if cli.MaxConcurrent != 0 {
		c.Proxy.MaxConcurrent = cli.MaxConcurrent
	}
}

func (c *Config) validate() error {
	// Numeric bounds. Zero means "use default" throughout, so only negative
	// values are rejected.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Server.Workers < 0 {
		return fmt.Errorf("server.workers must be non-negative; got %d", c.Server.Workers)
	}
	if c.Proxy.TimeoutSeconds < 0 {
		return fmt.Errorf("proxy.timeout_seconds must be non-negative; got %d", c.Proxy.TimeoutSeconds)
	}
	if c.Proxy.MaxRetries < 0 {
		return fmt.Errorf("proxy.max_retries must be non-negative; got %d", c.Proxy.MaxRetries)
	}
	if c.Proxy.RateLimitDelayMS < 0 {
		return fmt.Errorf("proxy.rate_limit_delay_ms must be non-negative; got %d", c.Proxy.RateLimitDelayMS)
	}
	if c.Proxy.MaxConcurrent < 0 {
		return fmt.Errorf("proxy.max_concurrent must be non-negative; got %d", c.Proxy.MaxConcurrent)
	}
	if c.Upstream.MaxConnections < 0 {
		return fmt.Errorf("upstream.max_connections must be non-negative; got %d", c.Upstream.MaxConnections)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/proxy", "/status", "/healthz"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key. The forwarding defaults match a
// relay sized for a small host: 30s timeout, 3 attempts, 50ms dispatch
// spacing, 10 concurrent forwards.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Server.Workers == 0 {
		c.Server.Workers = min(runtime.NumCPU(), maxWorkers)
	}
	if c.Proxy.TimeoutSeconds == 0 {
		c.Proxy.TimeoutSeconds = 30
	}
	if c.Proxy.MaxRetries == 0 {
		c.Proxy.MaxRetries = 3
	}
	if c.Proxy.RateLimitDelayMS == 0 {
		c.Proxy.RateLimitDelayMS = 50
	}
	if c.Proxy.MaxConcurrent == 0 {
		c.Proxy.MaxConcurrent = 10
	}
	if c.Upstream.MaxConnections == 0 {
		c.Upstream.MaxConnections = 20
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 10
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

// Timeout returns the upstream request timeout as a duration.
func (p *ProxyConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// RateLimitDelay returns the minimum inter-dispatch interval as a duration.
func (p *ProxyConfig) RateLimitDelay() time.Duration {
	return time.Duration(p.RateLimitDelayMS) * time.Millisecond
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
