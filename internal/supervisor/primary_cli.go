package supervisor

import (
	"regexp"
	"strings"
	"time"

	"github.com/agentbridge/core/pkg/agentproto"
)

// PrimaryCLIConfig configures the primary_cli back-end: the stock `claude`
// CLI, driven headlessly via its own stream-json output format.
type PrimaryCLIConfig struct {
	BinaryPath      string // defaults to "claude" on PATH
	Model           string // optional; omitted means the CLI's own default
	TimeoutSeconds  int
	DangerouslySkip bool // --dangerously-skip-permissions, for a sandboxed workspace root
}

// NewPrimaryCLISupervisor builds the primary_cli Supervisor: resolve
// a resumable session into --resume, otherwise a plain one-shot prompt.
func NewPrimaryCLISupervisor(cfg PrimaryCLIConfig) *CLISupervisor {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "claude"
	}

	build := func(req agentproto.AgentRequest) ([]string, error) {
		argv := []string{binary, "--print", "--output-format", "stream-json", "--verbose"}

		if cfg.DangerouslySkip {
			argv = append(argv, "--dangerously-skip-permissions")
		}
		if cfg.Model != "" {
			argv = append(argv, "--model", cfg.Model)
		}
		if req.ContinueSession && req.SessionID != "" {
			argv = append(argv, "--resume", req.SessionID)
		}

		argv = append(argv, req.Prompt)
		return argv, nil
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return NewCLISupervisor(build, detectPrimaryUsageLimit, timeout)
}

var resetTimePattern = regexp.MustCompile(`(?i)resets?\s*(?:at\s*)?(\d{1,2}(?::\d{2})?\s*[apm]{0,2})`)

// detectPrimaryUsageLimit matches the claude CLI's plain-text usage-limit
// message, which arrives as an error result rather than a distinct
// stderr line.
func detectPrimaryUsageLimit(stderr, lastResultText string) (string, bool) {
	for _, text := range []string{lastResultText, stderr} {
		if !strings.Contains(strings.ToLower(text), "usage limit") {
			continue
		}
		if m := resetTimePattern.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
		return "later", true
	}
	return "", false
}
