package facade

import (
	"sync"

	"github.com/agentbridge/core/internal/supervisor"
	"github.com/agentbridge/core/internal/toolpolicy"
	"github.com/agentbridge/core/pkg/agentproto"
)

// validationState accumulates the tool denials of one run, so
// Run can fold them into the final response after the Supervisor returns
// (§4.6 step 3 and step 5).
type validationState struct {
	mu           sync.Mutex
	errors       []string
	blockedTools map[string]struct{}
}

func newValidationState() *validationState {
	return &validationState{blockedTools: make(map[string]struct{})}
}

func (vs *validationState) record(toolName, reason string) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.errors = append(vs.errors, reason)
	vs.blockedTools[toolName] = struct{}{}
}

func (vs *validationState) hasErrors() bool {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return len(vs.errors) > 0
}

func (vs *validationState) blockedToolsList() []string {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	out := make([]string, 0, len(vs.blockedTools))
	for name := range vs.blockedTools {
		out = append(out, name)
	}
	return out
}

// wrapSink returns a StreamSink that validates every tool call an update
// carries before forwarding the update to the caller's sink. A denied
// critical tool aborts the run synchronously by returning
// *agentproto.ToolValidationError, which both Supervisor implementations
// catch and treat as the run's terminal error. A denied non-critical tool
// is merely recorded.
func (f *Facade) wrapSink(caller supervisor.StreamSink, vs *validationState, workingDirectory string, userID int64) supervisor.StreamSink {
	return func(update *agentproto.StreamUpdate) error {
		if err := f.validateUpdate(update, vs, workingDirectory, userID); err != nil {
			return err
		}

		if caller == nil {
			return nil
		}
		if err := caller(update); err != nil {
			f.log.Warn("stream callback failed", "error", err)
		}
		return nil
	}
}

func (f *Facade) validateUpdate(update *agentproto.StreamUpdate, vs *validationState, workingDirectory string, userID int64) error {
	switch update.Type {
	case agentproto.UpdateAssistant:
		for _, call := range update.ToolCalls {
			if err := f.validateToolCall(call.Name, call.Input, vs, workingDirectory, userID); err != nil {
				return err
			}
		}
	case agentproto.UpdateToolCall:
		if err := f.validateToolCall(update.ToolName, update.ToolArgs, vs, workingDirectory, userID); err != nil {
			return err
		}
	}
	return nil
}

func (f *Facade) validateToolCall(toolName string, input map[string]any, vs *validationState, workingDirectory string, userID int64) error {
	ok, reason := f.tools.Validate(toolName, input, workingDirectory, userID)
	if ok {
		return nil
	}

	vs.record(toolName, reason)
	f.log.Error("tool validation failed", "tool_name", toolName, "error", reason, "user_id", userID)

	if !toolpolicy.IsCritical(toolName) {
		return nil
	}

	return &agentproto.ToolValidationError{
		BlockedTools: vs.blockedToolsList(),
		AllowedTools: f.allowedTools,
		Reason:       reason,
	}
}
