package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/agentbridge/core/pkg/agentproto"
)

func TestObserveTracksToolCallLifecycle(t *testing.T) {
	b := New(nil)

	b.Observe(context.Background(), &agentproto.StreamUpdate{
		Type: agentproto.UpdateToolCall, CallID: "c1", ToolName: "Read", ToolArgs: map[string]any{"path": "a.go"},
	})
	if len(b.live) != 1 {
		t.Fatalf("expected one live span after tool_call, got %d", len(b.live))
	}

	b.Observe(context.Background(), &agentproto.StreamUpdate{
		Type: agentproto.UpdateToolResult, CallID: "c1", ToolName: "Read", ToolStatus: agentproto.ToolStatusSuccess, Result: "ok",
	})
	if len(b.live) != 0 {
		t.Fatalf("expected the span to be closed and removed, got %d live", len(b.live))
	}
}

func TestObserveTracksAssistantToolCalls(t *testing.T) {
	b := New(nil)
	b.Observe(context.Background(), &agentproto.StreamUpdate{
		Type: agentproto.UpdateAssistant,
		ToolCalls: []agentproto.ToolCallRequest{
			{ID: "a1", Name: "Bash", Input: map[string]any{"cmd": "ls"}},
			{ID: "a2", Name: "Write", Input: map[string]any{"path": "x"}},
		},
	})
	if len(b.live) != 2 {
		t.Fatalf("expected two live spans from an assistant update's tool_calls, got %d", len(b.live))
	}
}

func TestCompleteUnknownCallIDIsTolerated(t *testing.T) {
	b := New(nil)
	b.Observe(context.Background(), &agentproto.StreamUpdate{
		Type: agentproto.UpdateToolResult, CallID: "never-started", ToolStatus: agentproto.ToolStatusSuccess,
	})
	if len(b.live) != 0 {
		t.Fatalf("expected no live spans, got %d", len(b.live))
	}
}

func TestCloseOrphansClearsLiveMap(t *testing.T) {
	b := New(nil)
	b.Observe(context.Background(), &agentproto.StreamUpdate{Type: agentproto.UpdateToolCall, CallID: "c1", ToolName: "Read"})
	b.Observe(context.Background(), &agentproto.StreamUpdate{Type: agentproto.UpdateToolCall, CallID: "c2", ToolName: "Write"})

	b.CloseOrphans()
	if len(b.live) != 0 {
		t.Fatalf("expected CloseOrphans to clear every live span, got %d", len(b.live))
	}
}

func TestClassifyToolTypeDistinguishesMCP(t *testing.T) {
	if classifyToolType("mcp_github_search") != ToolMCP {
		t.Fatal("expected an mcp_-prefixed tool to classify as MCP")
	}
	if classifyToolType("Read") != ToolBuiltin {
		t.Fatal("expected a plain tool name to classify as builtin")
	}
}

func TestTruncateInputBoundsLongValues(t *testing.T) {
	long := strings.Repeat("x", 4096)
	out := truncateInput(map[string]any{"content": long})
	if len(out) >= len(long) {
		t.Fatalf("expected the serialized input to be truncated, got length %d", len(out))
	}
	if !strings.Contains(out, "truncated") {
		t.Fatalf("expected a truncation marker, got %q", out)
	}
}

func TestTruncateInputHandlesEmpty(t *testing.T) {
	if got := truncateInput(nil); got != "{}" {
		t.Fatalf("expected {} for no input, got %q", got)
	}
}
