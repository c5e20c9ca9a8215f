package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentbridge/core/pkg/agentproto"
)

const (
	sdkDefaultModel      = "claude-sonnet-4-5-20250929"
	sdkAPIBase           = "https://api.anthropic.com/v1"
	sdkAPIVersion        = "2023-06-01"
	sdkDefaultMaxTurns   = 25
)

// ToolExecutor runs one tool call in-process on behalf of the sdk
// back-end and returns its result text. The sdk back-end has no
// subprocess to delegate tool execution to, so it calls back into the
// host application directly, one call at a time, same as the other two
// back-ends' tool_call/tool_result pairing.
type ToolExecutor func(ctx context.Context, name string, input map[string]any) (result string, isError bool)

// SDKConfig configures the in-process sdk back-end: a direct Anthropic
// Messages API client with no subprocess boundary (§4.4 — "one per
// back-end: subprocess-CLI, in-process SDK, alternate-CLI").
type SDKConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	TimeoutSeconds int
	MaxTurns       int
	Tools          []sdkToolDef
	Executor       ToolExecutor
}

// sdkToolDef mirrors the subset of the Anthropic tool schema the core
// needs to forward: name, description, and a JSON schema for input.
type sdkToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// SDKSupervisor drives the Anthropic Messages API directly, looping
// tool-use turns until the model stops requesting tools or MaxTurns is
// reached, translating every event into the same agentproto.StreamUpdate
// sequence the CLI back-ends produce.
type SDKSupervisor struct {
	cfg     SDKConfig
	client  *http.Client
	tracker *tracker
}

// NewSDKSupervisor builds the sdk back-end.
func NewSDKSupervisor(cfg SDKConfig) *SDKSupervisor {
	if cfg.Model == "" {
		cfg.Model = sdkDefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = sdkAPIBase
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = sdkDefaultMaxTurns
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &SDKSupervisor{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		tracker: newTracker(),
	}
}

func (s *SDKSupervisor) Cancel(userID int64) { s.tracker.Cancel(userID) }

type sdkMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Execute runs the tool-use loop to completion or cancellation.
func (s *SDKSupervisor) Execute(ctx context.Context, req agentproto.AgentRequest, sink StreamSink) (*agentproto.AgentResponse, error) {
	_, runCtx, cleanup := s.tracker.register(ctx, req.UserID)
	defer cleanup()
	if s.cfg.TimeoutSeconds > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
		defer cancelTimeout()
	}

	messages := []sdkMessage{{Role: "user", Content: req.Prompt}}

	var (
		finalText  string
		toolsUsed  []agentproto.ToolUse
		start      = time.Now()
		sessionID  = req.SessionID
	)
	if sessionID == "" {
		sessionID = newSessionID()
	}

	emit(sink, &agentproto.StreamUpdate{
		Type:      agentproto.UpdateSystem,
		Timestamp: time.Now(),
		Model:     s.cfg.Model,
		Cwd:       req.WorkingDirectory,
		Session:   &agentproto.SessionContext{SessionID: sessionID},
	})

	for turn := 0; turn < s.cfg.MaxTurns; turn++ {
		if s.tracker.cancelled(req.UserID) {
			return nil, &agentproto.CancelledError{UserID: req.UserID}
		}

		turnResult, err := s.runTurn(runCtx, req.UserID, messages, sink)
		if err != nil {
			var tve *agentproto.ToolValidationError
			if errorsAsToolValidation(err, &tve) {
				return nil, tve
			}
			var cancelled *agentproto.CancelledError
			if asCancelled(err, &cancelled) {
				return nil, cancelled
			}
			if resetFragment, found := detectSDKUsageLimit(err.Error()); found {
				return &agentproto.AgentResponse{
					IsError:   true,
					ErrorKind: agentproto.ErrorKindUsageLimit,
					Content:   resetFragment,
					SessionID: sessionID,
				}, nil
			}
			if runCtx.Err() == context.DeadlineExceeded {
				return nil, &agentproto.TimeoutError{TimeoutSeconds: s.cfg.TimeoutSeconds}
			}
			return nil, &agentproto.ProcessError{Message: err.Error()}
		}

		if turnResult.text != "" {
			finalText = turnResult.text
		}
		if len(turnResult.toolCalls) == 0 {
			return &agentproto.AgentResponse{
				Content:    finalText,
				SessionID:  sessionID,
				Cost:       estimateCost(turnResult.inputTokens, turnResult.outputTokens, s.cfg.Model),
				DurationMS: time.Since(start).Milliseconds(),
				NumTurns:   turn + 1,
				ToolsUsed:  toolsUsed,
			}, nil
		}

		assistantContent := make([]map[string]any, 0, len(turnResult.toolCalls)+1)
		if turnResult.text != "" {
			assistantContent = append(assistantContent, map[string]any{"type": "text", "text": turnResult.text})
		}
		toolResultContent := make([]map[string]any, 0, len(turnResult.toolCalls))

		for _, call := range turnResult.toolCalls {
			assistantContent = append(assistantContent, map[string]any{
				"type":  "tool_use",
				"id":    call.id,
				"name":  call.name,
				"input": call.args,
			})

			if sink != nil {
				if sinkErr := sink(&agentproto.StreamUpdate{
					Type:      agentproto.UpdateToolCall,
					Timestamp: time.Now(),
					CallID:    call.id,
					ToolName:  call.name,
					ToolArgs:  call.args,
				}); sinkErr != nil {
					var tve *agentproto.ToolValidationError
					if errorsAsToolValidation(sinkErr, &tve) {
						return nil, tve
					}
				}
			}

			result, isError := "", false
			if s.cfg.Executor != nil {
				result, isError = s.cfg.Executor(runCtx, call.name, call.args)
			}

			status := agentproto.ToolStatusSuccess
			if isError {
				status = agentproto.ToolStatusError
			}
			emit(sink, &agentproto.StreamUpdate{
				Type:       agentproto.UpdateToolResult,
				Timestamp:  time.Now(),
				CallID:     call.id,
				ToolName:   call.name,
				ToolStatus: status,
				Result:     result,
			})

			toolsUsed = append(toolsUsed, agentproto.ToolUse{Name: call.name, Timestamp: time.Now(), Input: call.args})

			toolResultContent = append(toolResultContent, map[string]any{
				"type":        "tool_result",
				"tool_use_id": call.id,
				"content":     result,
				"is_error":    isError,
			})
		}

		messages = append(messages, sdkMessage{Role: "assistant", Content: assistantContent})
		messages = append(messages, sdkMessage{Role: "user", Content: toolResultContent})
	}

	return &agentproto.AgentResponse{
		Content:    finalText,
		SessionID:  sessionID,
		DurationMS: time.Since(start).Milliseconds(),
		NumTurns:   s.cfg.MaxTurns,
		ToolsUsed:  toolsUsed,
	}, nil
}

func emit(sink StreamSink, update *agentproto.StreamUpdate) {
	if sink == nil {
		return
	}
	_ = sink(update)
}

type sdkToolCall struct {
	id   string
	name string
	args map[string]any
}

type sdkTurnResult struct {
	text         string
	toolCalls    []sdkToolCall
	inputTokens  int
	outputTokens int
}

func (s *SDKSupervisor) runTurn(ctx context.Context, userID int64, messages []sdkMessage, sink StreamSink) (*sdkTurnResult, error) {
	body := map[string]any{
		"model":      s.cfg.Model,
		"max_tokens": 8192,
		"messages":   messages,
		"stream":     true,
	}
	if len(s.cfg.Tools) > 0 {
		body["tools"] = s.cfg.Tools
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", s.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", sdkAPIVersion)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic api error (%d): %s", resp.StatusCode, string(respBody))
	}

	return s.consumeEvents(resp.Body, userID, sink)
}

func (s *SDKSupervisor) consumeEvents(body io.Reader, userID int64, sink StreamSink) (*sdkTurnResult, error) {
	result := &sdkTurnResult{}
	toolArgsJSON := make(map[int]string)
	toolIndexByID := make(map[int]string)
	toolNameByID := make(map[int]string)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var currentEvent string
	for scanner.Scan() {
		if s.tracker.cancelled(userID) {
			return nil, &agentproto.CancelledError{UserID: userID}
		}

		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			currentEvent = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		switch currentEvent {
		case "message_start":
			var ev struct {
				Message struct {
					Usage struct {
						InputTokens int `json:"input_tokens"`
					} `json:"usage"`
				} `json:"message"`
			}
			if json.Unmarshal([]byte(data), &ev) == nil {
				result.inputTokens = ev.Message.Usage.InputTokens
			}

		case "content_block_start":
			var ev struct {
				Index        int `json:"index"`
				ContentBlock struct {
					Type string `json:"type"`
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"content_block"`
			}
			if json.Unmarshal([]byte(data), &ev) == nil && ev.ContentBlock.Type == "tool_use" {
				toolIndexByID[ev.Index] = ev.ContentBlock.ID
				toolNameByID[ev.Index] = ev.ContentBlock.Name
			}

		case "content_block_delta":
			var ev struct {
				Index int `json:"index"`
				Delta struct {
					Type        string `json:"type"`
					Text        string `json:"text"`
					Thinking    string `json:"thinking"`
					PartialJSON string `json:"partial_json"`
				} `json:"delta"`
			}
			if json.Unmarshal([]byte(data), &ev) != nil {
				continue
			}
			switch ev.Delta.Type {
			case "text_delta":
				result.text += ev.Delta.Text
				emit(sink, &agentproto.StreamUpdate{Type: agentproto.UpdateAssistant, Timestamp: time.Now(), Content: result.text})
			case "thinking_delta":
				emit(sink, &agentproto.StreamUpdate{
					Type: agentproto.UpdateThinking, Timestamp: time.Now(),
					ThinkingSubtype: agentproto.ThinkingDelta, Content: ev.Delta.Thinking,
				})
			case "input_json_delta":
				toolArgsJSON[ev.Index] += ev.Delta.PartialJSON
			}

		case "message_delta":
			var ev struct {
				Usage struct {
					OutputTokens int `json:"output_tokens"`
				} `json:"usage"`
			}
			if json.Unmarshal([]byte(data), &ev) == nil {
				result.outputTokens = ev.Usage.OutputTokens
			}

		case "error":
			var ev struct {
				Error struct {
					Type    string `json:"type"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if json.Unmarshal([]byte(data), &ev) == nil {
				return nil, fmt.Errorf("%s: %s", ev.Error.Type, ev.Error.Message)
			}

		case "message_stop":
			// nothing to accumulate; loop exits when the scanner drains.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for idx, id := range toolIndexByID {
		args := make(map[string]any)
		if raw := toolArgsJSON[idx]; raw != "" {
			_ = json.Unmarshal([]byte(raw), &args)
		}
		result.toolCalls = append(result.toolCalls, sdkToolCall{id: id, name: toolNameByID[idx], args: args})
	}

	return result, nil
}

func detectSDKUsageLimit(errText string) (string, bool) {
	return detectPrimaryUsageLimit(errText, "")
}

// estimateCost is a rough per-model per-token estimate; the SDK's own
// billing API is the source of truth and this is only shown to the user
// pending a real accounting pass.
func estimateCost(inputTokens, outputTokens int, model string) float64 {
	rate := 0.000003 // sonnet-tier default, USD per token
	if strings.Contains(model, "opus") {
		rate = 0.000015
	} else if strings.Contains(model, "haiku") {
		rate = 0.0000008
	}
	return float64(inputTokens+outputTokens) * rate
}

func newSessionID() string {
	return fmt.Sprintf("sdk-%d", time.Now().UnixNano())
}
