// Package telemetry implements the Telemetry Bridge (§4.8): one OTEL
// span per tool call, keyed by call_id in a flat correlation map (never
// a stack), opened on tool_call.started and closed on
// tool_call.completed or end-of-request orphan cleanup.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentbridge/core/pkg/agentproto"
)

const (
	maxInputKeyBytes  = 1024
	maxInputValueBytes = 2048
	maxResultBytes     = 5 * 1024
)

var tracer = otel.Tracer("github.com/agentbridge/core/internal/telemetry")

type liveSpan struct {
	span      trace.Span
	toolName  string
	startedAt time.Time
}

// Bridge tracks one span per in-flight call_id.
type Bridge struct {
	log *slog.Logger

	mu   sync.Mutex
	live map[string]*liveSpan
}

func New(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{log: logger, live: make(map[string]*liveSpan)}
}

// Observe folds one StreamUpdate into the bridge: a tool_call, and each
// tool call carried inline in an assistant update, opens a span;
// tool_result closes it. Every other update type is ignored.
func (b *Bridge) Observe(ctx context.Context, update *agentproto.StreamUpdate) {
	switch update.Type {
	case agentproto.UpdateToolCall:
		b.start(ctx, update.CallID, update.ToolName, classifyToolType(update.ToolName), update.ToolArgs)
	case agentproto.UpdateAssistant:
		for _, call := range update.ToolCalls {
			b.start(ctx, call.ID, call.Name, classifyToolType(call.Name), call.Input)
		}
	case agentproto.UpdateToolResult:
		isError := update.ToolStatus == agentproto.ToolStatusError
		b.complete(update.CallID, string(update.ToolStatus), update.Result, update.Error, isError)
	}
}

func (b *Bridge) start(ctx context.Context, callID, toolName string, toolType ToolType, input map[string]any) {
	if callID == "" {
		return
	}
	_, span := tracer.Start(ctx, toolName, trace.WithAttributes(
		AttrToolName.String(toolName),
		AttrCallID.String(callID),
		AttrToolType.String(string(toolType)),
		AttrInputArgs.String(truncateInput(input)),
	))

	b.mu.Lock()
	b.live[callID] = &liveSpan{span: span, toolName: toolName, startedAt: time.Now()}
	b.mu.Unlock()
}

func (b *Bridge) complete(callID, resultType, resultPreview, errText string, isError bool) {
	b.mu.Lock()
	ls, ok := b.live[callID]
	if ok {
		delete(b.live, callID)
	}
	b.mu.Unlock()

	if !ok {
		b.log.Warn("tool_call.completed for unknown call_id", "call_id", callID)
		return
	}

	ls.span.SetAttributes(
		AttrResultType.String(resultType),
		AttrResult.String(truncate(resultPreview, maxResultBytes)),
	)
	if errText != "" {
		ls.span.SetAttributes(AttrErrorText.String(truncate(errText, maxResultBytes)))
	}
	if isError {
		ls.span.SetStatus(codes.Error, errText)
	} else {
		ls.span.SetStatus(codes.Ok, "")
	}
	ls.span.End()
}

// CloseOrphans ends every span still open at request end with status
// ERROR, reason "not completed" (§4.8, §3 invariant on tool_result
// coverage).
func (b *Bridge) CloseOrphans() {
	b.mu.Lock()
	orphans := b.live
	b.live = make(map[string]*liveSpan)
	b.mu.Unlock()

	for callID, ls := range orphans {
		ls.span.SetAttributes(AttrErrorText.String("not completed"))
		ls.span.SetStatus(codes.Error, "not completed")
		ls.span.End()
		b.log.Warn("closing orphaned tool span", "call_id", callID, "tool_name", ls.toolName)
	}
}

// classifyToolType tags mcp_<provider>_<tool>-shaped names as MCP, and
// everything else as a built-in tool.
func classifyToolType(toolName string) ToolType {
	if len(toolName) > 4 && toolName[:4] == "mcp_" {
		return ToolMCP
	}
	return ToolBuiltin
}

// truncateInput renders a tool's input arguments as JSON, truncating
// each value to ~2KiB and then the whole serialized object to ~1KiB per
// key (§4.8). Key names themselves are not truncated.
func truncateInput(input map[string]any) string {
	if len(input) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make(map[string]string, len(keys))
	for _, k := range keys {
		raw, err := json.Marshal(input[k])
		value := string(raw)
		if err != nil {
			value = fmt.Sprintf("%v", input[k])
		}
		value = truncate(value, maxInputValueBytes)
		entries[k] = value
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return "{}"
	}
	return truncate(string(data), maxInputKeyBytes*len(keys))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
