// Package facade implements the Execution Facade (§4.6): the single
// externally observable entry point that preempts a user's in-flight
// run, resolves a session, wraps the caller's stream sink with tool
// validation, drives the configured Supervisor, and returns one
// consolidated AgentResponse.
package facade

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentbridge/core/internal/ratelimit"
	"github.com/agentbridge/core/internal/sessionstore"
	"github.com/agentbridge/core/internal/supervisor"
	"github.com/agentbridge/core/internal/toolpolicy"
	"github.com/agentbridge/core/pkg/agentproto"
)

// preemptWait bounds how long Run waits for a preempted prior task to
// unwind before starting the new one. The escalation path itself is
// bounded at ~4.5s (§5); give it a little headroom.
const preemptWait = 5 * time.Second

var tracer = otel.Tracer("github.com/agentbridge/core/internal/facade")

// now is indirected for tests that want a fixed clock.
var now = time.Now

// Config wires the Facade's collaborators together.
type Config struct {
	Supervisor   supervisor.Supervisor
	Sessions     sessionstore.Store
	Tools        *toolpolicy.Monitor
	RateLimiter  ratelimit.RateLimiter // optional; nil disables rate limiting
	AgentType    string // "primary_cli" | "sdk" | "alternate_cli", for logging/tracing
	AllowedTools []string
	Logger       *slog.Logger
}

// Facade is the one public entry point described by §4.6.
type Facade struct {
	sup          supervisor.Supervisor
	sessions     sessionstore.Store
	tools        *toolpolicy.Monitor
	limiter      ratelimit.RateLimiter
	agentType    string
	allowedTools []string
	log          *slog.Logger

	mu          sync.Mutex
	activeTasks map[int64]*activeTask
}

type activeTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Facade from Config. Logger defaults to slog.Default().
func New(cfg Config) *Facade {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		sup:          cfg.Supervisor,
		sessions:     cfg.Sessions,
		tools:        cfg.Tools,
		limiter:      cfg.RateLimiter,
		agentType:    cfg.AgentType,
		allowedTools: cfg.AllowedTools,
		log:          logger,
		activeTasks:  make(map[int64]*activeTask),
	}
}

// Request is the Facade's public input, mirroring §3's AgentRequest
// plus the caller's optional stream sink.
type Request struct {
	Prompt           string
	WorkingDirectory string
	UserID           int64
	SessionID        string // optional; empty means "no resume requested"
	Sink             supervisor.StreamSink
}

// Run is the §4.6 `run` operation.
func (f *Facade) Run(ctx context.Context, req Request) (*agentproto.AgentResponse, error) {
	if f.limiter != nil {
		// Cost is unknown before the agent runs, so every request is
		// checked at an estimated cost of 0 — it still consumes a
		// request-count slot (§6 Open Question 3). Where cost budgeting
		// is enabled, TokenBucketLimiter also charges every call, this
		// zero-cost one included, at least one cent of the cost budget.
		if allowed, reason := f.limiter.Check(req.UserID, 0); !allowed {
			f.log.Warn("rate limit denied request", "user_id", req.UserID, "reason", reason)
			return &agentproto.AgentResponse{
				IsError:   true,
				ErrorKind: agentproto.ErrorKindPolicyViolation,
				Content:   fmt.Sprintf("🚫 **Rate limit exceeded**\n\n%s", reason),
			}, nil
		}
	}

	f.preempt(req.UserID)

	sess, err := f.sessions.GetOrCreate(req.UserID, req.WorkingDirectory, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	ctx, span := tracer.Start(ctx, "facade.run", trace.WithAttributes(
		attribute.Int64("user_id", req.UserID),
		attribute.String("working_directory", req.WorkingDirectory),
		attribute.Bool("has_session_id", req.SessionID != ""),
		attribute.Int("prompt_length", len(req.Prompt)),
		attribute.String("agent_type", f.agentType),
	))
	defer span.End()

	continueSession := req.SessionID != "" && !sess.IsNew
	agentSessionID := sess.SessionID
	if sess.IsNew {
		agentSessionID = ""
	}

	vs := newValidationState()
	wrappedSink := f.wrapSink(req.Sink, vs, req.WorkingDirectory, req.UserID)

	agentReq := agentproto.AgentRequest{
		Prompt:           req.Prompt,
		WorkingDirectory: req.WorkingDirectory,
		UserID:           req.UserID,
		SessionID:        agentSessionID,
		ContinueSession:  continueSession,
	}

	runCtx, cancel := context.WithCancel(ctx)
	task := &activeTask{cancel: cancel, done: make(chan struct{})}
	f.mu.Lock()
	f.activeTasks[req.UserID] = task
	f.mu.Unlock()

	response, execErr := f.sup.Execute(runCtx, agentReq, wrappedSink)

	close(task.done)
	f.mu.Lock()
	if f.activeTasks[req.UserID] == task {
		delete(f.activeTasks, req.UserID)
	}
	f.mu.Unlock()

	if execErr != nil {
		return f.translateError(span, sess, execErr)
	}

	if response.ErrorKind == agentproto.ErrorKindUsageLimit {
		response.Content = FormatUsageLimitMessage(response.Content, now())
	}

	if vs.hasErrors() {
		f.log.Error("command completed but tool validation failed",
			"user_id", req.UserID, "errors", vs.errors)
		response.IsError = true
		response.ErrorKind = agentproto.ErrorKindToolValidation
		response.Content = buildToolValidationMessage(vs.blockedToolsList(), f.allowedTools, vs.errors)
	}

	updated, err := f.sessions.Update(sess.SessionID, response)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("committing session: %w", err)
	}
	response.SessionID = updated.SessionID

	span.SetAttributes(
		attribute.String("session_id", response.SessionID),
		attribute.Float64("cost_usd", response.Cost),
		attribute.Int64("duration_ms", response.DurationMS),
		attribute.Int("num_turns", response.NumTurns),
		attribute.Bool("is_error", response.IsError),
		attribute.String("tools_used", toolNames(response.ToolsUsed)),
		attribute.Int("response_length", len(response.Content)),
	)
	if response.IsError {
		span.SetStatus(codes.Error, string(response.ErrorKind))
	}

	f.log.Info("command completed",
		"session_id", response.SessionID, "cost", response.Cost,
		"duration_ms", response.DurationMS, "num_turns", response.NumTurns,
		"is_error", response.IsError)

	return response, nil
}

// ContinueSession dispatches against the most recent non-temporary
// session for (user, workingDirectory), or returns a SessionNotFoundError
// if none exists.
func (f *Facade) ContinueSession(ctx context.Context, userID int64, workingDirectory, prompt string, sink supervisor.StreamSink) (*agentproto.AgentResponse, error) {
	latest, err := f.sessions.MostRecentNonTemp(userID, workingDirectory)
	if err != nil {
		return nil, err
	}

	return f.Run(ctx, Request{
		Prompt:           prompt,
		WorkingDirectory: workingDirectory,
		UserID:           userID,
		SessionID:        latest.SessionID,
		Sink:             sink,
	})
}

// preempt cancels and awaits any task still running for userID before a
// new one starts (§4.6 step 1, §5 ordering guarantees).
func (f *Facade) preempt(userID int64) {
	f.mu.Lock()
	prev, ok := f.activeTasks[userID]
	f.mu.Unlock()
	if !ok {
		return
	}

	f.sup.Cancel(userID)
	prev.cancel()

	select {
	case <-prev.done:
	case <-time.After(preemptWait):
		f.log.Warn("preemption did not complete within bound", "user_id", userID)
	}
}

func (f *Facade) translateError(span trace.Span, sess *agentproto.Session, err error) (*agentproto.AgentResponse, error) {
	span.RecordError(err)

	switch e := err.(type) {
	case *agentproto.TimeoutError:
		span.SetStatus(codes.Error, "timeout")
		return &agentproto.AgentResponse{
			IsError:   true,
			ErrorKind: agentproto.ErrorKindTimeout,
			Content:   fmt.Sprintf("⏱️ **Request timed out** after %ds. Try a narrower request or resume this session.", e.TimeoutSeconds),
			SessionID: sess.SessionID,
		}, nil

	case *agentproto.SessionNotFoundError:
		span.SetStatus(codes.Error, "session_not_found")
		return &agentproto.AgentResponse{
			IsError:   true,
			ErrorKind: agentproto.ErrorKindSessionNotFound,
			Content:   "Session not found. Send your request again to start a new session.",
			SessionID: sess.SessionID,
		}, nil

	case *agentproto.ToolValidationError:
		span.SetStatus(codes.Error, "tool_validation_failed")
		return &agentproto.AgentResponse{
			IsError:   true,
			ErrorKind: agentproto.ErrorKindToolValidation,
			Content:   buildToolValidationMessage(e.BlockedTools, f.allowedTools, []string{e.Reason}),
			SessionID: sess.SessionID,
		}, nil

	default:
		span.SetStatus(codes.Error, err.Error())
		f.log.Error("command failed", "user_id", sess.UserID, "session_id", sess.SessionID, "error", err)
		return nil, err
	}
}

func toolNames(uses []agentproto.ToolUse) string {
	names := make([]string, len(uses))
	for i, u := range uses {
		names[i] = u.Name
	}
	return strings.Join(names, ",")
}

// buildToolValidationMessage renders the user-facing explanation for a
// tool_validation_failed response, matching the blocked-vs-generic split
// the teacher's tool monitor drives its callers with.
func buildToolValidationMessage(blockedTools, allowedTools, errors []string) string {
	if len(blockedTools) > 0 {
		sorted := append([]string(nil), blockedTools...)
		sort.Strings(sorted)
		var b strings.Builder
		b.WriteString("🚫 **Tool Access Blocked**\n\n")
		b.WriteString("The agent tried to use tools that are not allowed:\n")
		b.WriteString(quoteJoin(sorted))
		b.WriteString("\n\n**What you can do:**\n")
		b.WriteString("- Contact the administrator to request access to these tools\n")
		b.WriteString("- Try rephrasing your request to use a different approach\n")
		b.WriteString("- Check what tools are currently available with `/status`\n\n")
		b.WriteString("**Currently allowed tools:**\n")
		b.WriteString(quoteJoin(allowedTools))
		return b.String()
	}

	return fmt.Sprintf(
		"🚫 **Tool Validation Failed**\n\nTools failed security validation. Try a different approach.\n\nDetails: %s",
		strings.Join(errors, "; "),
	)
}

func quoteJoin(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = "`" + it + "`"
	}
	return strings.Join(quoted, ", ")
}
