// Package supervisor implements the Agent Process Supervisor (§4.4): one
// Supervisor per agent back-end, all sharing the same contract — spawn,
// stream, enforce a wall-clock timeout, and escalate cancellation
// cooperatively. Back-end polymorphism is an interface with three
// implementations chosen once at startup; the core never introspects
// which one is in play.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentbridge/core/pkg/agentproto"
)

// StreamSink receives every StreamUpdate as the run progresses. Returning
// a *agentproto.ToolValidationError for a critical-tool denial tells the
// Supervisor to cancel the run; any other error is logged and ignored so
// a sink failure never aborts an otherwise healthy run (§4.4).
type StreamSink func(update *agentproto.StreamUpdate) error

// Supervisor is the contract every back-end variant implements.
type Supervisor interface {
	// Execute runs one agent invocation to completion, streaming every
	// update to sink, and returns the consolidated response.
	Execute(ctx context.Context, req agentproto.AgentRequest, sink StreamSink) (*agentproto.AgentResponse, error)

	// Cancel requests cancellation of any run currently active for
	// userID. It is a no-op if the user has no active run.
	Cancel(userID int64)
}

// Backend selects which Supervisor implementation is active. Exactly one
// is chosen at startup from configuration; there is no runtime fallback
// (§9 Open Question 1).
type Backend string

const (
	BackendPrimaryCLI   Backend = "primary_cli"
	BackendAlternateCLI Backend = "alternate_cli"
	BackendSDK          Backend = "sdk"
)

// tracker holds the bookkeeping common to every back-end: each user's
// active runs keyed by process_id, and a cancellation flag per user,
// mirroring cursor_agent_integration.py's
// active_processes / user_processes / cancelled_users.
type tracker struct {
	mu              sync.Mutex
	userProcesses   map[int64]map[string]context.CancelFunc
	cancelledUsers  map[int64]bool
}

func newTracker() *tracker {
	return &tracker{
		userProcesses:  make(map[int64]map[string]context.CancelFunc),
		cancelledUsers: make(map[int64]bool),
	}
}

// register derives a run-scoped, cancellable context from parent, files
// it under a fresh process_id for userID, and clears any stale
// cancellation flag left over from a prior run. The returned cleanup
// must be called once the run finishes so Cancel never reaches a dead
// process_id.
func (t *tracker) register(parent context.Context, userID int64) (processID string, ctx context.Context, cleanup func()) {
	ctx, cancelFunc := context.WithCancel(parent)

	t.mu.Lock()
	processID = uuid.NewString()
	if t.userProcesses[userID] == nil {
		t.userProcesses[userID] = make(map[string]context.CancelFunc)
	}
	t.userProcesses[userID][processID] = cancelFunc
	t.cancelledUsers[userID] = false
	t.mu.Unlock()

	return processID, ctx, func() {
		t.mu.Lock()
		delete(t.userProcesses[userID], processID)
		if len(t.userProcesses[userID]) == 0 {
			delete(t.userProcesses, userID)
		}
		t.mu.Unlock()
		cancelFunc()
	}
}

// cancelled reports whether userID's run has been flagged for
// preemption. Consulted by the Stream Parser between chunks (§4.3).
func (t *tracker) cancelled(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelledUsers[userID]
}

// Cancel flags userID's active runs for cancellation and invokes every
// registered cancel func, tearing down both in-flight subprocesses and
// in-process sdk calls uniformly.
func (t *tracker) Cancel(userID int64) {
	t.mu.Lock()
	t.cancelledUsers[userID] = true
	cancels := make([]context.CancelFunc, 0, len(t.userProcesses[userID]))
	for _, c := range t.userProcesses[userID] {
		cancels = append(cancels, c)
	}
	t.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

// now exists so tests can stub the clock without reaching for a real
// wall-clock dependency.
var now = time.Now
