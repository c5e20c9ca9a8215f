package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agentbridge/core/pkg/agentproto"
)

const resultPreviewLimit = 5000

// toolCallKinds are the nested tool_call envelope keys the alternate_cli
// (cursor-agent-style) backend emits. mcpToolCall is handled specially:
// its args nest a provider/tool name pair instead of a flat args object.
var toolCallKinds = []string{
	"grepToolCall", "readToolCall", "editToolCall", "semSearchToolCall",
	"listToolCall", "shellToolCall", "writeToolCall", "globToolCall",
	"readLintsToolCall", "updateTodosToolCall", "deleteToolCall",
	"moveToolCall", "copyToolCall", "mkdirToolCall", "webSearchToolCall",
	"fetchToolCall", "searchToolCall", "mcpToolCall",
}

type envelope struct {
	Type        string      `json:"type"`
	Subtype     string      `json:"subtype"`
	SessionID   string      `json:"session_id"`
	TimestampMS json.Number `json:"timestamp_ms"`

	// system
	Model string   `json:"model"`
	Cwd   string   `json:"cwd"`
	Tools []string `json:"tools"`

	// thinking
	Text string `json:"text"`

	// assistant / user content blocks, shared by both wire shapes
	Message *contentMessage `json:"message"`

	// tool_call (alternate_cli nested shape)
	CallID   string                     `json:"call_id"`
	ToolCall map[string]json.RawMessage `json:"tool_call"`

	// result
	Result       string  `json:"result"`
	IsError      bool    `json:"is_error"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	DurationMS   int64   `json:"duration_ms"`
	NumTurns     int     `json:"num_turns"`

	// error
	Error string `json:"error"`
}

type contentMessage struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     map[string]any  `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

// Parse decodes one JSON line into a StreamUpdate. A nil update with a
// nil error means a recognized-but-ignored message. The error return is
// non-nil only for malformed JSON or a message with no type field, which
// §4.3 treats as non-fatal: log and keep reading.
func Parse(line string, tracker *ToolTracker, now time.Time) (*agentproto.StreamUpdate, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return nil, fmt.Errorf("decode stream line: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode stream line: missing type field")
	}

	ts := timestampFromMS(env.TimestampMS, now)
	session := sessionContext(env.SessionID)

	switch env.Type {
	case "system":
		return &agentproto.StreamUpdate{
			Type: agentproto.UpdateSystem, Timestamp: ts, Session: session,
			Subtype: env.Subtype, Model: env.Model, Cwd: env.Cwd, Tools: env.Tools,
		}, nil

	case "user":
		return &agentproto.StreamUpdate{
			Type: agentproto.UpdateUser, Timestamp: ts, Session: session,
			Content: extractText(env.Message),
		}, nil

	case "thinking":
		subtype := agentproto.ThinkingDelta
		if env.Subtype == "completed" {
			subtype = agentproto.ThinkingCompleted
		}
		return &agentproto.StreamUpdate{
			Type: agentproto.UpdateThinking, Timestamp: ts, Session: session,
			Content: env.Text, ThinkingSubtype: subtype,
		}, nil

	case "assistant":
		return &agentproto.StreamUpdate{
			Type: agentproto.UpdateAssistant, Timestamp: ts, Session: session,
			Content:   extractText(env.Message),
			ToolCalls: extractToolUses(env.Message),
		}, nil

	case "tool_call":
		return parseToolCall(env, tracker, ts, session)

	case "result":
		errorKind := agentproto.ErrorKindNone
		if env.IsError {
			errorKind = agentproto.ErrorKindProcess
		}
		return &agentproto.StreamUpdate{
			Type: agentproto.UpdateResult, Timestamp: ts, Session: session,
			Content: env.Result, ResultSessionID: env.SessionID,
			Cost: env.TotalCostUSD, DurationMS: env.DurationMS, NumTurns: env.NumTurns,
			IsError: env.IsError, ErrorKind: errorKind,
		}, nil

	case "error":
		return &agentproto.StreamUpdate{
			Type: agentproto.UpdateError, Timestamp: ts, Session: session,
			Error: env.Error,
		}, nil
	}

	return nil, nil
}

// extractText concatenates text blocks for assistant content, and, per
// §4.3, treats tool_result blocks embedded in a user message as
// appendable text too.
func extractText(msg *contentMessage) string {
	if msg == nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range msg.Content {
		switch b.Type {
		case "text":
			sb.WriteString(b.Text)
		case "tool_result":
			sb.Write(decodeToolResultContent(b.Content))
		}
	}
	return sb.String()
}

func decodeToolResultContent(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return []byte(s)
	}
	var blocks []contentBlock
	if json.Unmarshal(raw, &blocks) == nil {
		var sb strings.Builder
		for _, b := range blocks {
			if b.Type == "text" {
				sb.WriteString(b.Text)
			}
		}
		return []byte(sb.String())
	}
	return nil
}

func extractToolUses(msg *contentMessage) []agentproto.ToolCallRequest {
	if msg == nil {
		return nil
	}
	var out []agentproto.ToolCallRequest
	for _, b := range msg.Content {
		if b.Type == "tool_use" {
			out = append(out, agentproto.ToolCallRequest{Name: b.Name, ID: b.ID, Input: b.Input})
		}
	}
	return out
}

func parseToolCall(env envelope, tracker *ToolTracker, ts time.Time, session *agentproto.SessionContext) (*agentproto.StreamUpdate, error) {
	toolName, args, result, isMCP := extractNestedToolCall(env.ToolCall)

	switch env.Subtype {
	case "started":
		if toolName == "" {
			toolName = "unknown"
		}
		tracker.Start(env.CallID, toolName, ts)
		return &agentproto.StreamUpdate{
			Type: agentproto.UpdateToolCall, Timestamp: ts, Session: session,
			CallID: env.CallID, ToolName: toolName, ToolArgs: args,
		}, nil

	case "completed":
		cachedName, _, found := tracker.Finish(env.CallID)
		if toolName == "" && found {
			toolName = cachedName
		}
		if toolName == "" {
			toolName = "unknown"
		}

		status := agentproto.ToolStatusSuccess
		errMsg := ""
		var failed bool
		if isMCP {
			errMsg, failed = mcpResultError(result)
		} else {
			errMsg, failed = plainResultError(result)
		}
		if failed {
			status = agentproto.ToolStatusError
		}

		return &agentproto.StreamUpdate{
			Type: agentproto.UpdateToolResult, Timestamp: ts, Session: session,
			CallID: env.CallID, ToolName: toolName,
			ToolStatus: status, Result: resultPreview(result), Error: errMsg,
		}, nil
	}

	return nil, nil
}

func extractNestedToolCall(toolCall map[string]json.RawMessage) (name string, args map[string]any, result json.RawMessage, isMCP bool) {
	for _, kind := range toolCallKinds {
		raw, ok := toolCall[kind]
		if !ok {
			continue
		}

		var info struct {
			Args   json.RawMessage `json:"args"`
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(raw, &info); err != nil {
			return strings.ToLower(strings.TrimSuffix(kind, "ToolCall")), nil, nil, kind == "mcpToolCall"
		}

		if kind == "mcpToolCall" {
			var mcpArgs struct {
				ProviderIdentifier string         `json:"providerIdentifier"`
				ToolName           string         `json:"toolName"`
				Args               map[string]any `json:"args"`
			}
			_ = json.Unmarshal(info.Args, &mcpArgs)
			provider := mcpArgs.ProviderIdentifier
			if provider == "" {
				provider = "unknown"
			}
			tool := mcpArgs.ToolName
			if tool == "" {
				tool = "unknown"
			}
			return fmt.Sprintf("mcp_%s_%s", provider, tool), mcpArgs.Args, info.Result, true
		}

		var plainArgs map[string]any
		_ = json.Unmarshal(info.Args, &plainArgs)
		return strings.ToLower(strings.TrimSuffix(kind, "ToolCall")), plainArgs, info.Result, false
	}
	return "", nil, nil, false
}

// mcpResultError inspects an MCP tool result envelope
// ({"success":{"isError":...}}) for a failure, per cursor-agent's MCP
// result shape.
func mcpResultError(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var wrapper struct {
		Success struct {
			IsError bool   `json:"isError"`
			Message string `json:"message"`
			Content []struct {
				Text json.RawMessage `json:"text"`
			} `json:"content"`
		} `json:"success"`
	}
	if json.Unmarshal(raw, &wrapper) != nil || !wrapper.Success.IsError {
		return "", false
	}
	if wrapper.Success.Message != "" {
		return wrapper.Success.Message, true
	}
	for _, c := range wrapper.Success.Content {
		var s string
		if json.Unmarshal(c.Text, &s) == nil && s != "" {
			return s, true
		}
	}
	return "tool reported an error", true
}

// plainResultError inspects a regular tool result (string or object) for
// the error markers a builtin tool call result may carry.
func plainResultError(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		lower := strings.ToLower(asString)
		for _, marker := range []string{"error:", "failed:", "exception:"} {
			if strings.Contains(lower, marker) {
				return asString, true
			}
		}
		return "", false
	}

	var asObject struct {
		Error  string `json:"error"`
		Status string `json:"status"`
	}
	if json.Unmarshal(raw, &asObject) == nil {
		if asObject.Error != "" {
			return asObject.Error, true
		}
		switch asObject.Status {
		case "error", "failed", "rejected":
			return asObject.Status, true
		}
	}
	return "", false
}

func resultPreview(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		return truncate(asString, resultPreviewLimit)
	}
	return truncate(string(raw), resultPreviewLimit)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}

func timestampFromMS(raw json.Number, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return fallback
	}
	return time.UnixMilli(ms).UTC()
}

func sessionContext(id string) *agentproto.SessionContext {
	if id == "" {
		return nil
	}
	return &agentproto.SessionContext{SessionID: id}
}
