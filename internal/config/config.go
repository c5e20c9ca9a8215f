// Package config loads and hot-reloads the Agent Execution Core's
// start-up configuration (§6 "Configuration"): a JSON5 document for
// structural settings, overlaid with environment-variable secrets that
// are never persisted to the file.
package config

import (
	"sync"
)

// AgentBackend selects the Supervisor implementation at start-up. No
// runtime fallback between variants (§6 Open Question 1).
type AgentBackend string

const (
	BackendPrimaryCLI  AgentBackend = "primary_cli"
	BackendSDK         AgentBackend = "sdk"
	BackendAlternateCLI AgentBackend = "alternate_cli"
)

// Config is the root configuration document.
type Config struct {
	ApprovedDirectory    string       `json:"approved_directory"`
	AgentBackend         AgentBackend `json:"agent_backend"`
	AgentTimeoutSeconds  int          `json:"agent_timeout_seconds"`
	AllowedTools         []string     `json:"allowed_tools,omitempty"`
	DisallowedTools      []string     `json:"disallowed_tools,omitempty"`
	SessionTimeoutHours  int          `json:"session_timeout_hours"`
	MaxTurns             int          `json:"max_turns"`
	Model                string       `json:"model"`

	Binary    BinaryConfig    `json:"binary"`
	Gateway   GatewayConfig   `json:"gateway"`
	RateLimit RateLimitConfig `json:"rate_limit,omitempty"`
	Channels  ChannelsConfig  `json:"channels,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Cron      CronConfig      `json:"cron,omitempty"`

	// Database holds only the env-sourced Postgres DSN; it is never
	// read from or written to the config file.
	Database DatabaseConfig `json:"-"`

	mu sync.RWMutex
}

// BinaryConfig overrides the on-disk location of whichever agent CLI
// the configured AgentBackend shells out to, plus the environment
// variables the supervisor should forward to the child (API keys, etc).
type BinaryConfig struct {
	PrimaryCLIPath   string   `json:"primary_cli_path,omitempty"`
	AlternateCLIPath string   `json:"alternate_cli_path,omitempty"`
	PassthroughEnv   []string `json:"passthrough_env,omitempty"`
}

// GatewayConfig configures the serve command's HTTP/WebSocket surface
// (debug broadcaster, webhook endpoints for chat platforms).
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// RateLimitConfig configures the optional default RateLimiter.
// RequestsPerMinute <= 0 disables rate limiting entirely.
type RateLimitConfig struct {
	RequestsPerMinute   float64 `json:"requests_per_minute,omitempty"`
	Burst               int     `json:"burst,omitempty"`
	CostBudgetPerMinute float64 `json:"cost_budget_per_minute,omitempty"`
}

// ChannelsConfig holds the non-secret chat-platform settings; bot
// tokens live in env vars only (see load.go).
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Discord  DiscordConfig  `json:"discord,omitempty"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"-"`
	AllowFrom []string `json:"allow_from,omitempty"`
}

type DiscordConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"-"`
	AllowFrom []string `json:"allow_from,omitempty"`
}

// TelemetryConfig configures the OTEL exporter wired up in cmd/agentbridge.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" | "http"
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// CronConfig schedules the Session Store's expired-session sweep.
type CronConfig struct {
	CleanupExpr string `json:"cleanup_expr,omitempty"` // default "*/15 * * * *"
}

// DatabaseConfig is sourced entirely from environment variables.
type DatabaseConfig struct {
	PostgresDSN string
}

// Default returns a Config with the same sensible baseline values the
// teacher's Default() seeds before file/env overlay.
func Default() *Config {
	return &Config{
		AgentBackend:        BackendPrimaryCLI,
		AgentTimeoutSeconds: 300,
		SessionTimeoutHours: 24,
		MaxTurns:            25,
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8790,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 20,
			Burst:             5,
		},
		Cron: CronConfig{
			CleanupExpr: "*/15 * * * *",
		},
	}
}

// Snapshot returns a shallow copy safe to read without holding the
// config's lock for the caller's remaining lifetime — used by watch.go
// to publish a new version without blocking readers mid-request.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.mu = sync.RWMutex{}
	return cp
}
