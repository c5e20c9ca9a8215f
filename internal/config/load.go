package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Load reads a JSON5 config document from path, then overlays secrets
// from environment variables. A missing file is not an error: Load
// returns Default() with env overrides applied, matching the teacher's
// Load() behavior for a not-yet-created config.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays secrets and operator overrides from the
// environment. Env vars always win over file values, and nothing read
// here is ever written back to the config file (Database.PostgresDSN
// in particular has no JSON tag at all).
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("AGENTBRIDGE_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("AGENTBRIDGE_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("AGENTBRIDGE_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("AGENTBRIDGE_MODEL", &c.Model)
	envStr("AGENTBRIDGE_APPROVED_DIRECTORY", &c.ApprovedDirectory)
	envStr("AGENTBRIDGE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)

	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}

	if v := os.Getenv("AGENTBRIDGE_AGENT_BACKEND"); v != "" {
		c.AgentBackend = AgentBackend(v)
	}
	if v := os.Getenv("AGENTBRIDGE_AGENT_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			c.AgentTimeoutSeconds = n
		}
	}
	if v := os.Getenv("AGENTBRIDGE_ALLOWED_TOOLS"); v != "" {
		c.AllowedTools = strings.Split(v, ",")
	}
	if v := os.Getenv("AGENTBRIDGE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
}
