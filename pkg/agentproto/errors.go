package agentproto

import "fmt"

// PolicyViolation is raised by the validator or tool monitor (§4.1, §4.2).
type PolicyViolation struct {
	Kind   string // "path_escape" | "dangerous_command" | "filename_invalid"
	Reason string
}

func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Kind, e.Reason)
}

// ToolValidationError is raised when a critical tool is denied mid-run (§4.2, §4.4).
type ToolValidationError struct {
	BlockedTools []string
	AllowedTools []string
	Reason       string
}

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("tool validation failed: %s (blocked: %v)", e.Reason, e.BlockedTools)
}

// TimeoutError is raised when the wall-clock bound elapses (§4.4).
type TimeoutError struct {
	TimeoutSeconds int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("agent run timed out after %ds", e.TimeoutSeconds)
}

// ProcessError is raised on non-zero exit with no result message, a failed
// spawn, or a failed API call (§4.4, §7). A detected usage-limit message
// is not a ProcessError: it comes back as an AgentResponse with
// ErrorKindUsageLimit.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Message  string
}

func (e *ProcessError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("agent process failed (exit %d): %s", e.ExitCode, e.Stderr)
}

// ParsingError is raised when the stream ends without a result update
// although the process exited with status zero (§4.3); a non-zero exit
// without a result is a ProcessError.
type ParsingError struct {
	Reason string
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("stream parsing error: %s", e.Reason)
}

// SessionNotFoundError is raised when a resume is requested for a session
// the store has no record of (§4.5, §7). Per spec §8 scenario 6 this must
// NOT be raised by get_or_create. The stores return it from the lookup
// behind ContinueSession and from Update for an unknown session id.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// CancelledError signals preemption by a new request from the same user (§7).
type CancelledError struct {
	UserID int64
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled for user %d", e.UserID)
}
