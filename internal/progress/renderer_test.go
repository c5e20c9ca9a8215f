package progress

import (
	"strings"
	"testing"
	"time"

	"github.com/agentbridge/core/pkg/agentproto"
)

func withFixedClock(t *testing.T, start time.Time) func(advance time.Duration) {
	t.Helper()
	cur := start
	now = func() time.Time { return cur }
	t.Cleanup(func() { now = time.Now })
	return func(advance time.Duration) { cur = cur.Add(advance) }
}

func TestApplyTracksToolLifecycleAndIcons(t *testing.T) {
	advance := withFixedClock(t, time.Unix(0, 0))
	r := New("Running /fix", ModeCommand, false, nil)

	body, edit := r.Apply(&agentproto.StreamUpdate{
		Type: agentproto.UpdateToolCall, CallID: "c1", ToolName: "Read", ToolArgs: map[string]any{"path": "a.go"},
	})
	if !edit {
		t.Fatal("expected the first tool-call update to trigger an edit")
	}
	if !strings.Contains(body, "⏳") || !strings.Contains(body, "Read") {
		t.Fatalf("expected a running Read entry, got %q", body)
	}

	advance(2 * time.Second)
	body, edit = r.Apply(&agentproto.StreamUpdate{
		Type: agentproto.UpdateToolResult, CallID: "c1", ToolName: "Read", ToolStatus: agentproto.ToolStatusSuccess, Result: "ok",
	})
	if !edit {
		t.Fatal("tool_result is an important update and should always force an edit")
	}
	if !strings.Contains(body, "✅") || strings.Contains(body, "⏳") {
		t.Fatalf("expected the entry to flip to success, got %q", body)
	}
}

func TestApplyThrottlesNonImportantUpdatesByMode(t *testing.T) {
	advance := withFixedClock(t, time.Unix(0, 0))
	r := New("", ModeCommand, false, nil)

	_, edit := r.Apply(&agentproto.StreamUpdate{Type: agentproto.UpdateAssistant, Content: "first chunk"})
	if !edit {
		t.Fatal("first render should always edit (no prior rendered state)")
	}

	advance(100 * time.Millisecond)
	_, edit = r.Apply(&agentproto.StreamUpdate{Type: agentproto.UpdateAssistant, Content: "second chunk"})
	if edit {
		t.Fatal("expected a sub-command-throttle elapsed non-important update to be suppressed")
	}

	advance(900 * time.Millisecond)
	_, edit = r.Apply(&agentproto.StreamUpdate{Type: agentproto.UpdateAssistant, Content: "third chunk"})
	if !edit {
		t.Fatal("expected the update past the command throttle window to force an edit")
	}
}

func TestApplyUsesLongerThrottleForFreeTextMode(t *testing.T) {
	advance := withFixedClock(t, time.Unix(0, 0))
	r := New("", ModeFreeText, false, nil)

	r.Apply(&agentproto.StreamUpdate{Type: agentproto.UpdateAssistant, Content: "a"})
	advance(1 * time.Second)
	_, edit := r.Apply(&agentproto.StreamUpdate{Type: agentproto.UpdateAssistant, Content: "b"})
	if edit {
		t.Fatal("1s is within the free-text throttle window and should not force an edit")
	}

	advance(600 * time.Millisecond)
	_, edit = r.Apply(&agentproto.StreamUpdate{Type: agentproto.UpdateAssistant, Content: "c"})
	if !edit {
		t.Fatal("expected the update past the free-text throttle window to force an edit")
	}
}

func TestApplyNeverPanicsOnMalformedUpdate(t *testing.T) {
	r := New("", ModeCommand, false, nil)
	body, edit := r.Apply(&agentproto.StreamUpdate{Type: agentproto.UpdateToolResult, CallID: "", Result: "{bad json"})
	if edit && body == "" {
		t.Fatal("edit=true should always come with a non-empty body")
	}
}

func TestMergeTodoPayloadOverwritesWhenMergeDisabled(t *testing.T) {
	r := New("", ModeCommand, false, nil)
	r.mergeTodoPayload(`[{"id":"1","content":"write tests","status":"TODO_STATUS_PENDING"}]`)
	r.mergeTodoPayload(`[{"id":"2","content":"ship it","status":"TODO_STATUS_IN_PROGRESS"}]`)

	if len(r.todoOrder) != 1 || r.todoOrder[0] != "2" {
		t.Fatalf("expected overwrite to drop the first payload, got order %+v", r.todoOrder)
	}
}

func TestMergeTodoPayloadMergesWhenEnabled(t *testing.T) {
	r := New("", ModeCommand, true, nil)
	r.mergeTodoPayload(`[{"id":"1","content":"write tests","status":"TODO_STATUS_PENDING"}]`)
	r.mergeTodoPayload(`{"todos":[{"id":"1","content":"write tests","status":"TODO_STATUS_COMPLETED"},{"id":"2","content":"ship it","status":"TODO_STATUS_PENDING"}]}`)

	if len(r.todoOrder) != 2 {
		t.Fatalf("expected both todos retained after merge, got %+v", r.todoOrder)
	}
	if r.todos["1"].Status != TodoCompleted {
		t.Fatalf("expected todo 1 status updated in place, got %+v", r.todos["1"])
	}
}

func TestRenderTodosMarksCompletedItems(t *testing.T) {
	r := New("", ModeCommand, false, nil)
	r.mergeTodoPayload(`[{"id":"1","content":"write tests","status":"TODO_STATUS_COMPLETED"},{"id":"2","content":"ship it","status":"TODO_STATUS_IN_PROGRESS"}]`)

	rendered := r.renderTodos()
	if !strings.Contains(rendered, "✅") || !strings.Contains(rendered, "~write tests~") {
		t.Fatalf("expected completed todo to render struck through, got %q", rendered)
	}
	if !strings.Contains(rendered, "⏳") || !strings.Contains(rendered, "ship it") {
		t.Fatalf("expected in-progress todo rendered, got %q", rendered)
	}
}

func TestFinishDeletesOnEmptyResponse(t *testing.T) {
	r := New("", ModeCommand, false, nil)
	text, del := r.Finish(&agentproto.AgentResponse{Content: "   "})
	if !del || text != "" {
		t.Fatalf("expected delete on blank content, got text=%q del=%v", text, del)
	}
}

func TestFinishReplacesWithFinalContent(t *testing.T) {
	r := New("", ModeCommand, false, nil)
	text, del := r.Finish(&agentproto.AgentResponse{Content: "all done"})
	if del || text != "all done" {
		t.Fatalf("expected final content preserved, got text=%q del=%v", text, del)
	}
}

func TestFormatToolParamsSortsKeysDeterministically(t *testing.T) {
	params := map[string]any{"zeta": "last", "alpha": "first", "mid": 3}
	out := formatToolParams(params)
	if !strings.HasPrefix(out, "(alpha=") {
		t.Fatalf("expected alphabetically sorted params, got %q", out)
	}
}

func TestFormatToolParamsTruncatesLongStringValue(t *testing.T) {
	long := strings.Repeat("x", 80)
	out := formatToolParams(map[string]any{"content": long})
	if strings.Contains(out, strings.Repeat("x", 80)) {
		t.Fatalf("expected the long value truncated, got %q", out)
	}
	if !strings.Contains(out, "...") {
		t.Fatalf("expected an ellipsis marker in truncated output, got %q", out)
	}
}

func TestFormatToolNameRendersMCPProviderTool(t *testing.T) {
	name := formatToolName("mcp_github_search_issues")
	if !strings.Contains(name, ":") {
		t.Fatalf("expected provider:tool rendering for an mcp_ tool, got %q", name)
	}
}

func TestFormatToolNameTitleCasesPlainTool(t *testing.T) {
	if got := formatToolName("read_file"); got != "Read File" {
		t.Fatalf("expected title-cased plain tool name, got %q", got)
	}
}
