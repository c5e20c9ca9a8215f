// Package toolpolicy implements the Tool Monitor (§4.2): it consults an
// allow/deny list, delegates path and command checks to internal/validator,
// and accumulates usage and violation statistics. Nothing in this package
// performs I/O; it is a pure decision layer consulted by the facade before
// a tool is allowed to run.
package toolpolicy

import (
	"sync"

	"github.com/agentbridge/core/internal/validator"
)

// criticalTools must cancel the run immediately on denial (§4.2, glossary).
var criticalTools = map[string]bool{
	"read_file": true, "write_file": true, "edit_file": true,
	"Read": true, "Write": true, "Edit": true,
	"task_spawn": true, "Task": true,
}

// IsCritical reports whether denying toolName must abort the current run.
func IsCritical(toolName string) bool {
	return criticalTools[toolName]
}

// fileTools read or write a file and carry a path/file_path input.
var fileTools = map[string]bool{
	"read_file": true, "write_file": true, "edit_file": true,
	"Read": true, "Write": true, "Edit": true,
}

// shellTools run a command and carry a command input.
var shellTools = map[string]bool{
	"exec": true, "bash": true, "shell": true, "Bash": true,
}

// Violation records one denied tool call for later inspection.
type Violation struct {
	Kind             string
	ToolName         string
	UserID           int64
	WorkingDirectory string
	Reason           string
}

// Monitor tracks per-tool usage counts and security violations while
// validating tool calls against the configured allow/deny lists.
type Monitor struct {
	mu sync.Mutex

	allowList map[string]bool // nil/empty = no constraint
	denyList  map[string]bool

	approvedRoot string

	toolUsage         map[string]int
	securityViolations []Violation
}

// Config configures a Monitor at construction time.
type Config struct {
	AllowedTools    []string
	DisallowedTools []string
	ApprovedRoot    string
}

// New builds a Monitor from Config.
func New(cfg Config) *Monitor {
	m := &Monitor{
		approvedRoot: cfg.ApprovedRoot,
		toolUsage:    make(map[string]int),
	}
	if len(cfg.AllowedTools) > 0 {
		m.allowList = toSet(cfg.AllowedTools)
	}
	if len(cfg.DisallowedTools) > 0 {
		m.denyList = toSet(cfg.DisallowedTools)
	}
	return m
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}

// Validate applies the §4.2 policy to one tool call, recording usage and
// violations as a side effect. It returns (true, "") when the call is
// allowed to proceed.
func (m *Monitor) Validate(toolName string, toolInput map[string]any, workingDirectory string, userID int64) (ok bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.allowList != nil && !m.allowList[toolName] {
		m.recordViolation("disallowed_tool", toolName, userID, workingDirectory, "tool not allowed: "+toolName)
		return false, "tool not allowed: " + toolName
	}
	if m.denyList != nil && m.denyList[toolName] {
		m.recordViolation("explicitly_disallowed_tool", toolName, userID, workingDirectory, "tool explicitly disallowed: "+toolName)
		return false, "tool explicitly disallowed: " + toolName
	}

	if fileTools[toolName] {
		path, _ := stringField(toolInput, "path")
		if path == "" {
			path, _ = stringField(toolInput, "file_path")
		}
		if path == "" {
			m.recordViolation("file_path_required", toolName, userID, workingDirectory, "file path required")
			return false, "file path required"
		}
		root := workingDirectory
		if m.approvedRoot != "" {
			root = m.approvedRoot
		}
		valid, _, err := validator.ValidatePath(path, root)
		if !valid {
			reason := "invalid file path"
			if err != nil {
				reason = err.Error()
			}
			m.recordViolation("invalid_file_path", toolName, userID, workingDirectory, reason)
			return false, reason
		}
	}

	if shellTools[toolName] {
		command, _ := stringField(toolInput, "command")
		valid, err := validator.ValidateCommand(command)
		if !valid {
			reason := "dangerous command"
			if err != nil {
				reason = err.Error()
			}
			m.recordViolation("dangerous_command", toolName, userID, workingDirectory, reason)
			return false, reason
		}
	}

	m.toolUsage[toolName]++
	return true, ""
}

func stringField(input map[string]any, key string) (string, bool) {
	if input == nil {
		return "", false
	}
	v, ok := input[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (m *Monitor) recordViolation(kind, toolName string, userID int64, workingDirectory, reason string) {
	m.securityViolations = append(m.securityViolations, Violation{
		Kind:             kind,
		ToolName:         toolName,
		UserID:           userID,
		WorkingDirectory: workingDirectory,
		Reason:           reason,
	})
}

// Stats is a snapshot of usage and violation counters.
type Stats struct {
	TotalCalls        int
	ByTool            map[string]int
	UniqueTools       int
	SecurityViolations int
}

// GetStats returns a snapshot of tool usage statistics.
func (m *Monitor) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	byTool := make(map[string]int, len(m.toolUsage))
	for k, v := range m.toolUsage {
		total += v
		byTool[k] = v
	}
	return Stats{
		TotalCalls:        total,
		ByTool:            byTool,
		UniqueTools:       len(m.toolUsage),
		SecurityViolations: len(m.securityViolations),
	}
}

// Violations returns a copy of the recorded security violations.
func (m *Monitor) Violations() []Violation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Violation, len(m.securityViolations))
	copy(out, m.securityViolations)
	return out
}

// Reset clears usage and violation counters.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolUsage = make(map[string]int)
	m.securityViolations = nil
}

// IsToolAllowed checks allow/deny membership without side effects.
func (m *Monitor) IsToolAllowed(toolName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allowList != nil && !m.allowList[toolName] {
		return false
	}
	if m.denyList != nil && m.denyList[toolName] {
		return false
	}
	return true
}

// UserViolations returns violation types recorded for a specific user.
func (m *Monitor) UserViolations(userID int64) (count int, kinds []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	for _, v := range m.securityViolations {
		if v.UserID != userID {
			continue
		}
		count++
		if !seen[v.Kind] {
			seen[v.Kind] = true
			kinds = append(kinds, v.Kind)
		}
	}
	return count, kinds
}
