package agentproto

import "time"

// UpdateType discriminates the StreamUpdate tagged union (§3).
type UpdateType string

const (
	UpdateSystem     UpdateType = "system"
	UpdateUser       UpdateType = "user"
	UpdateThinking   UpdateType = "thinking"
	UpdateAssistant  UpdateType = "assistant"
	UpdateToolCall   UpdateType = "tool_call"
	UpdateToolResult UpdateType = "tool_result"
	UpdateResult     UpdateType = "result"
	UpdateError      UpdateType = "error"
)

// ThinkingSubtype distinguishes an append-only delta from a completed block.
type ThinkingSubtype string

const (
	ThinkingDelta     ThinkingSubtype = "delta"
	ThinkingCompleted ThinkingSubtype = "completed"
)

// ToolCallStatusTag mirrors the wire-level tool_result status field.
type ToolCallStatusTag string

const (
	ToolStatusSuccess ToolCallStatusTag = "success"
	ToolStatusError   ToolCallStatusTag = "error"
)

// ToolCallRequest is one tool invocation requested by the assistant,
// embedded in an `assistant` update's ToolCalls slice.
type ToolCallRequest struct {
	Name  string
	ID    string
	Input map[string]any
}

// SessionContext carries the back-end's notion of session identity, when
// a given update line reports one.
type SessionContext struct {
	SessionID string
}

// StreamUpdate is the single concrete representation of every line the
// Stream Parser can emit. Only the fields relevant to Type are populated;
// consumers must switch on Type, not on field presence, so that a parser
// fix never silently changes downstream behavior.
type StreamUpdate struct {
	Type      UpdateType
	Timestamp time.Time
	Session   *SessionContext

	// system
	Subtype string
	Model   string
	Cwd     string
	Tools   []string

	// user / assistant / thinking content
	Content string

	// thinking
	ThinkingSubtype ThinkingSubtype

	// assistant
	ToolCalls []ToolCallRequest

	// tool_call (started)
	CallID   string
	ToolName string
	ToolArgs map[string]any

	// tool_result
	ToolStatus ToolCallStatusTag
	Result     string
	Error      string

	// result (final)
	ResultSessionID  string
	Cost             float64
	DurationMS       int64
	NumTurns         int
	IsError          bool
	ErrorKind        ErrorKind
}
