package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentbridge/core/internal/stream"
	"github.com/agentbridge/core/pkg/agentproto"
)

// CommandBuilder turns an AgentRequest into an argument vector for a
// specific CLI back-end. argv[0] is the executable name.
type CommandBuilder func(req agentproto.AgentRequest) (argv []string, err error)

// UsageLimitDetector inspects accumulated stderr/stdout text for a
// back-end-specific usage-limit message and, if found, returns the raw
// reset-time fragment for the facade's reset-time parser (§4.6). Back-ends
// that never emit such a message can pass a detector that always returns
// ("", false).
type UsageLimitDetector func(stderr, lastResultText string) (resetFragment string, found bool)

// CLISupervisor runs one subprocess-backed CLI to completion per request,
// streaming parsed updates to the caller's sink and enforcing the
// wall-clock timeout and cancellation escalation common to every
// subprocess back-end (primary_cli, alternate_cli).
type CLISupervisor struct {
	build        CommandBuilder
	detectLimit  UsageLimitDetector
	timeout      time.Duration
	escalation   EscalationTimeouts
	ringCapacity int

	tracker *tracker
}

// NewCLISupervisor constructs a subprocess supervisor for one back-end.
// timeout is the wall-clock bound on a single run (§4.4); a zero timeout
// means no bound.
func NewCLISupervisor(build CommandBuilder, detectLimit UsageLimitDetector, timeout time.Duration) *CLISupervisor {
	if detectLimit == nil {
		detectLimit = func(string, string) (string, bool) { return "", false }
	}
	return &CLISupervisor{
		build:        build,
		detectLimit:  detectLimit,
		timeout:      timeout,
		escalation:   DefaultEscalationTimeouts,
		ringCapacity: 1000,
		tracker:      newTracker(),
	}
}

func (s *CLISupervisor) Cancel(userID int64) { s.tracker.Cancel(userID) }

// Execute spawns the CLI, streams its stdout through the Stream Parser to
// sink, and returns the consolidated response once the process exits or
// is cancelled (§4.4).
func (s *CLISupervisor) Execute(ctx context.Context, req agentproto.AgentRequest, sink StreamSink) (*agentproto.AgentResponse, error) {
	argv, err := s.build(req)
	if err != nil {
		return nil, &agentproto.ProcessError{Message: fmt.Sprintf("building command: %v", err)}
	}

	_, runCtx, cleanup := s.tracker.register(ctx, req.UserID)
	defer cleanup()

	if s.timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, s.timeout)
		defer cancelTimeout()
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = req.WorkingDirectory
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &agentproto.ProcessError{Message: fmt.Sprintf("stdout pipe: %v", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &agentproto.ProcessError{Message: fmt.Sprintf("stderr pipe: %v", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &agentproto.ProcessError{Message: fmt.Sprintf("starting process: %v", err)}
	}

	done := make(chan struct{})
	go func() {
		<-runCtx.Done()
		select {
		case <-done:
			return
		default:
		}
		gracefulCancel(cmd.Process, done, s.escalation)
	}()

	result := &runResult{}
	toolTracker := stream.NewToolTracker()
	ring := stream.NewMessageRing(s.ringCapacity)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return drainStdout(gctx, stdout, toolTracker, ring, sink, result, s.tracker, req.UserID)
	})

	var stderrBuf bytes.Buffer
	g.Go(func() error {
		_, copyErr := io.Copy(&stderrBuf, stderr)
		return copyErr
	})

	streamErr := g.Wait()
	waitErr := cmd.Wait()
	close(done)

	return s.buildResponse(runCtx, req, result, stderrBuf.String(), waitErr, streamErr)
}

// runResult accumulates what the Stream Parser observed across a run,
// mirroring what cursor_agent_integration.py collects before assembling
// its final response dict.
type runResult struct {
	finalText       string
	sessionID       string
	cost            float64
	durationMS      int64
	numTurns        int
	isError         bool
	errorKind       agentproto.ErrorKind
	sawResult       bool
	toolValidation  *agentproto.ToolValidationError
	toolsUsed       []agentproto.ToolUse
}

func drainStdout(
	ctx context.Context,
	r io.Reader,
	toolTracker *stream.ToolTracker,
	ring *stream.MessageRing,
	sink StreamSink,
	result *runResult,
	userTracker *tracker,
	userID int64,
) error {
	lr := stream.NewLineReader(ctx, r)
	for line := range lr.Lines() {
		if userTracker.cancelled(userID) {
			lr.Stop()
			return &agentproto.CancelledError{UserID: userID}
		}

		ring.Push(line)
		update, err := stream.Parse(line, toolTracker, time.Now())
		if err != nil {
			continue // malformed line; keep draining rather than aborting the run
		}
		if update == nil {
			continue
		}

		applyUpdate(update, result)

		if sink == nil {
			continue
		}
		if sinkErr := sink(update); sinkErr != nil {
			var tve *agentproto.ToolValidationError
			if ok := errorsAsToolValidation(sinkErr, &tve); ok {
				result.toolValidation = tve
				lr.Stop()
				return tve
			}
		}
	}
	return lr.Err()
}

func errorsAsToolValidation(err error, target **agentproto.ToolValidationError) bool {
	if tve, ok := err.(*agentproto.ToolValidationError); ok {
		*target = tve
		return true
	}
	return false
}

func applyUpdate(update *agentproto.StreamUpdate, result *runResult) {
	switch update.Type {
	case agentproto.UpdateAssistant:
		if update.Content != "" {
			result.finalText = update.Content
		}
	case agentproto.UpdateToolResult:
		result.toolsUsed = append(result.toolsUsed, agentproto.ToolUse{
			Name:      update.ToolName,
			Timestamp: update.Timestamp,
			Input:     update.ToolArgs,
		})
	case agentproto.UpdateResult:
		result.sawResult = true
		result.sessionID = update.ResultSessionID
		result.cost = update.Cost
		result.durationMS = update.DurationMS
		result.numTurns = update.NumTurns
		result.isError = update.IsError
		result.errorKind = update.ErrorKind
		if update.Content != "" {
			result.finalText = update.Content
		}
	}
}

func (s *CLISupervisor) buildResponse(
	ctx context.Context,
	req agentproto.AgentRequest,
	result *runResult,
	stderrText string,
	waitErr, streamErr error,
) (*agentproto.AgentResponse, error) {
	if result.toolValidation != nil {
		return nil, result.toolValidation
	}

	var cancelled *agentproto.CancelledError
	if asCancelled(streamErr, &cancelled) {
		return nil, cancelled
	}

	if ctx.Err() == context.DeadlineExceeded {
		return nil, &agentproto.TimeoutError{TimeoutSeconds: int(s.timeout.Seconds())}
	}

	if waitErr != nil || result.isError {
		if resetFragment, found := s.detectLimit(stderrText, result.finalText); found {
			return &agentproto.AgentResponse{
				IsError:   true,
				ErrorKind: agentproto.ErrorKindUsageLimit,
				Content:   resetFragment,
				SessionID: req.SessionID,
			}, nil
		}
	}

	exitCode := exitCodeOf(waitErr)
	if waitErr != nil && !result.sawResult {
		return nil, &agentproto.ProcessError{
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderrText),
			Message:  fmt.Sprintf("process exited with code %d", exitCode),
		}
	}

	if !result.sawResult {
		return nil, &agentproto.ParsingError{Reason: "stream ended without a result message"}
	}

	return &agentproto.AgentResponse{
		Content:    result.finalText,
		SessionID:  result.sessionID,
		Cost:       result.cost,
		DurationMS: result.durationMS,
		NumTurns:   result.numTurns,
		IsError:    result.isError,
		ErrorKind:  result.errorKind,
		ToolsUsed:  result.toolsUsed,
	}, nil
}

func asCancelled(err error, target **agentproto.CancelledError) bool {
	if c, ok := err.(*agentproto.CancelledError); ok {
		*target = c
		return true
	}
	return false
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	return -1
}

func asExitError(err error, target **exec.ExitError) bool {
	if e, ok := err.(*exec.ExitError); ok {
		*target = e
		return true
	}
	return false
}
