package supervisor

import (
	"time"

	"github.com/agentbridge/core/pkg/agentproto"
)

// AlternateCLIConfig configures the alternate_cli back-end: the
// cursor-agent CLI, run headlessly in force mode with auto-approved MCP
// servers (§5 supplemented features).
type AlternateCLIConfig struct {
	BinaryPath     string // defaults to "cursor-agent" on PATH
	Model          string
	ForceMode      bool // -f: allow all commands without interactive approval
	ApproveMCPs    bool // --approve-mcps
	TimeoutSeconds int
}

// NewAlternateCLISupervisor builds the alternate_cli Supervisor, matching
// cursor_agent_integration.py's _build_command argument order exactly.
func NewAlternateCLISupervisor(cfg AlternateCLIConfig) *CLISupervisor {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "cursor-agent"
	}

	build := func(req agentproto.AgentRequest) ([]string, error) {
		argv := []string{binary}

		if cfg.ForceMode {
			argv = append(argv, "-f")
		}
		if cfg.ApproveMCPs {
			argv = append(argv, "--approve-mcps")
		}

		argv = append(argv, "--print", "--output-format", "stream-json", "--stream-partial-output")
		argv = append(argv, "--workspace", req.WorkingDirectory)

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
