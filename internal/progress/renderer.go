// Package progress implements the Progress Renderer (§4.7): a stateful,
// per-request accumulator over the StreamUpdate sequence that composes a
// single chat message body (tool journal, todo list, current activity
// line) and decides when that message is worth re-editing. It performs
// no I/O itself — the caller's chat transport owns the actual edit.
package progress

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/agentbridge/core/pkg/agentproto"
)

// Mode selects the throttle window: a slash command gets snappier
// updates than free-text chat, matching the original's distinction
// between command-triggered and free-text-triggered runs.
type Mode string

const (
	ModeCommand  Mode = "command"
	ModeFreeText Mode = "free_text"
)

const (
	commandThrottle  = 800 * time.Millisecond
	freeTextThrottle = 1500 * time.Millisecond

	maxParamValueWidth = 30
	maxParamsWidth     = 50
)

// toolEntry is one row of the tool journal.
type toolEntry struct {
	name   string
	params map[string]any
	status agentproto.ToolCallStatus
}

// Renderer accumulates a tool journal, a todo list, and a thinking
// indicator across one request's StreamUpdate sequence, and decides
// when the composed body has changed enough to warrant a chat edit.
type Renderer struct {
	heading string
	mode    Mode
	merge   bool
	log     *slog.Logger

	mu sync.Mutex

	journal map[string]*toolEntry
	order   []string

	todos     map[string]*Todo
	todoOrder []string

	thinkingLine     string
	thinkingThoughts strings.Builder

	lastRendered string
	lastEditAt   time.Time
}

// now is indirected for deterministic throttle tests.
var now = time.Now

// New builds a Renderer for one request. heading is the static prefix
// (command name and working directory); mode selects the throttle
// window; merge controls whether a todo update overwrites or merges
// into the existing todo list.
func New(heading string, mode Mode, merge bool, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		heading: heading,
		mode:    mode,
		merge:   merge,
		log:     logger,
		journal: make(map[string]*toolEntry),
		todos:   make(map[string]*Todo),
	}
}

// Apply folds one StreamUpdate into the renderer's state and reports
// the composed body plus whether the caller should actually edit the
// chat message now. It never panics: any internal failure is logged
// and treated as "nothing to render."
func (r *Renderer) Apply(update *agentproto.StreamUpdate) (body string, shouldEdit bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("progress renderer failed", "recover", rec)
			body, shouldEdit = "", false
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.track(update)
	composed := r.compose(update)
	if composed == "" {
		return "", false
	}

	important := update.Type == agentproto.UpdateToolResult ||
		update.Type == agentproto.UpdateResult ||
		update.Type == agentproto.UpdateError

	changed := composed != r.lastRendered
	elapsed := now().Sub(r.lastEditAt)

	if changed && (important || elapsed >= r.throttle()) {
		r.lastRendered = composed
		r.lastEditAt = now()
		return composed, true
	}
	return composed, false
}

// Finish renders the terminal state for a `result` update. If the
// response carries final content it is returned for a last edit;
// otherwise the caller should delete the progress message.
func (r *Renderer) Finish(response *agentproto.AgentResponse) (finalText string, deleteMessage bool) {
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", true
	}
	return response.Content, false
}

func (r *Renderer) throttle() time.Duration {
	if r.mode == ModeCommand {
		return commandThrottle
	}
	return freeTextThrottle
}

// track updates the tool journal and, for a completed updatetodos call,
// the todo list.
func (r *Renderer) track(update *agentproto.StreamUpdate) {
	switch update.Type {
	case agentproto.UpdateAssistant:
		for _, call := range update.ToolCalls {
			r.startTool(call.ID, call.Name, call.Input)
		}

	case agentproto.UpdateToolCall:
		r.startTool(update.CallID, update.ToolName, update.ToolArgs)

	case agentproto.UpdateToolResult:
		status := agentproto.ToolCallSuccess
		if update.ToolStatus == agentproto.ToolStatusError {
			status = agentproto.ToolCallError
		}
		entry, ok := r.journal[update.CallID]
		if !ok {
			entry = &toolEntry{name: update.ToolName}
			r.journal[update.CallID] = entry
			r.appendOrder(update.CallID)
		}
		entry.status = status
		if update.ToolName != "" {
			entry.name = update.ToolName
		}

		if strings.EqualFold(entry.name, "updatetodos") {
			r.mergeTodoPayload(update.Result)
		}
	}
}

func (r *Renderer) startTool(callID, name string, input map[string]any) {
	if callID == "" {
		return
	}
	entry, ok := r.journal[callID]
	if !ok {
		entry = &toolEntry{}
		r.journal[callID] = entry
		r.appendOrder(callID)
	}
	entry.name = name
	entry.params = input
	entry.status = agentproto.ToolCallRunning
}

func (r *Renderer) appendOrder(callID string) {
	for _, id := range r.order {
		if id == callID {
			return
		}
	}
	r.order = append(r.order, callID)
}

// compose builds the full message body: heading, todo list, tool
// journal, current activity line.
func (r *Renderer) compose(update *agentproto.StreamUpdate) string {
	var b strings.Builder
	if r.heading != "" {
		b.WriteString(r.heading)
		b.WriteString("\n\n")
	}
	if todoText := r.renderTodos(); todoText != "" {
		b.WriteString(todoText)
		b.WriteString("\n\n")
	}
	if journalText := r.renderJournal(); journalText != "" {
		b.WriteString(journalText)
		b.WriteString("\n\n")
	}

	activity := r.activityLine(update)
	if activity == "" && b.Len() == 0 {
		return ""
	}
	b.WriteString(activity)
	return strings.TrimRight(b.String(), "\n")
}

func (r *Renderer) activityLine(update *agentproto.StreamUpdate) string {
	switch update.Type {
	case agentproto.UpdateThinking:
		if update.ThinkingSubtype == agentproto.ThinkingDelta {
			r.thinkingThoughts.WriteString(update.Content)
			return "💭 Thinking..."
		}
		r.thinkingLine = "💭 Thinking..."
		return r.thinkingLine

	case agentproto.UpdateAssistant:
		if update.Content != "" {
			preview := update.Content
			if runewidth.StringWidth(preview) > 150 {
				preview = runewidth.Truncate(preview, 150, "...")
			}
			return "🤖 Working...\n\n" + preview
		}
		return "🤔 Processing..."

	case agentproto.UpdateToolCall:
		return "🤔 Processing..."

	case agentproto.UpdateToolResult:
		return "🤔 Processing..."

	case agentproto.UpdateError:
		msg := update.Error
		if msg == "" {
			msg = update.Content
		}
		return "❌ **Error**\n\n_" + msg + "_"

	case agentproto.UpdateResult:
		if update.IsError {
			return "❌ **Failed**"
		}
		return "✅ **Done**"

	case agentproto.UpdateSystem:
		return "🚀 Starting " + update.Model + " with " + itoaLen(update.Tools) + " tools available"

	default:
		return ""
	}
}

func itoaLen(items []string) string {
	n := len(items)
	digits := []byte{}
	if n == 0 {
		return "0"
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func (r *Renderer) renderJournal() string {
	if len(r.order) == 0 {
		return ""
	}
	lines := make([]string, 0, len(r.order))
	for _, callID := range r.order {
		entry, ok := r.journal[callID]
		if !ok {
			continue
		}
		lines = append(lines, formatToolLine(entry))
	}
	return strings.Join(lines, "\n")
}

func formatToolLine(e *toolEntry) string {
	icon := toolIcon(e.status)
	name := formatToolName(e.name)
	params := formatToolParams(e.params)
	status := statusSuffix(e.status)
	return icon + " " + name + params + status
}

func toolIcon(status agentproto.ToolCallStatus) string {
	switch status {
	case agentproto.ToolCallSuccess:
		return "✅"
	case agentproto.ToolCallError:
		return "❌"
	default:
		return "⏳"
	}
}

func statusSuffix(status agentproto.ToolCallStatus) string {
	switch status {
	case agentproto.ToolCallSuccess:
		return " [success]"
	case agentproto.ToolCallError:
		return " [error]"
	default:
		return " [running]"
	}
}

// formatToolName renders mcp_<provider>_<tool> as Provider:Tool, and
// everything else as Title Case with underscores turned to spaces.
func formatToolName(name string) string {
	if strings.HasPrefix(name, "mcp_") {
		parts := strings.SplitN(name, "_", 3)
		if len(parts) == 3 {
			provider := titleCase(strings.ReplaceAll(parts[1], "-", " "))
			tool := titleCase(strings.ReplaceAll(strings.ReplaceAll(parts[2], "_", " "), "-", " "))
			return provider + ":" + tool
		}
	}
	return titleCase(strings.ReplaceAll(name, "_", " "))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// formatToolParams renders a compact key=value list, truncating long
// values to ~30 display columns and the whole string to ~50, the way
// the original's `_format_tool_params` does for chat rendering.
func formatToolParams(params map[string]any) string {
	if len(params) == 0 {
		return "()"
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatParamValue(params[k]))
	}

	joined := strings.Join(parts, ", ")
	if runewidth.StringWidth(joined) > maxParamsWidth {
		joined = runewidth.Truncate(joined, maxParamsWidth, "...")
	}
	return "(" + joined + ")"
}

func formatParamValue(v any) string {
	switch val := v.(type) {
	case string:
		if runewidth.StringWidth(val) > maxParamValueWidth {
			val = runewidth.Truncate(val, maxParamValueWidth, "...")
		}
		return `"` + val + `"`
	case nil:
		return "null"
	default:
		s := jsonPreview(val)
		if runewidth.StringWidth(s) > maxParamValueWidth {
			s = runewidth.Truncate(s, maxParamValueWidth, "...")
		}
		return s
	}
}
