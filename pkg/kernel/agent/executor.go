// Package agent implements the Agent Executor (C2): runs a single agent
// to completion through a bounded tool loop, emitting a lazy event
// sequence as it goes.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/aof-dev/aof/pkg/kernel/memory"
	"github.com/aof-dev/aof/pkg/kernel/model"
	"github.com/aof-dev/aof/pkg/kernel/tool"
)

// Config is an AgentConfig's execution-relevant fields (spec §3).
type Config struct {
	Name              string
	SystemPrompt      string
	MaxIterations     int
	MaxContextMessages int
	Temperature       float64
	MaxTokens         int
	Approval          *ApprovalPolicy
}

// DefaultConfig fills in spec-mandated defaults (max-iterations 10,
// max-context-messages 10).
func DefaultConfig(name string) Config {
	return Config{
		Name:               name,
		MaxIterations:      10,
		MaxContextMessages: 10,
	}
}

func sanitize(cfg Config) Config {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.MaxContextMessages <= 0 {
		cfg.MaxContextMessages = 10
	}
	return cfg
}

// Executor runs one configured agent's tool loop over a Model, a
// tool.Executor, and an optional Memory backend. Grounded on the
// teacher's AgenticLoop phase machine (Init -> Stream -> ExecuteTools ->
// Continue -> Complete), adapted so tool calls within one iteration run
// strictly sequentially (spec §4.2/§5) instead of the teacher's parallel
// ExecuteAll.
type Executor struct {
	cfg    Config
	model  model.Model
	tools  tool.Executor
	mem    memory.Memory
	logger *slog.Logger
}

// New builds an Executor. mem may be nil (no memory configured).
func New(cfg Config, m model.Model, tools tool.Executor, mem memory.Memory, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:    sanitize(cfg),
		model:  m,
		tools:  tools,
		mem:    mem,
		logger: logger.With("component", "agent.executor", "agent", cfg.Name),
	}
}

// Execute runs the agent to completion without streaming.
func (e *Executor) Execute(ctx context.Context, input string) (string, error) {
	return e.run(ctx, input, nil)
}

// ExecuteStreaming runs the agent to completion, emitting StreamEvents
// to sink as it progresses. sink may be nil.
func (e *Executor) ExecuteStreaming(ctx context.Context, input string, sink Sink) (string, error) {
	return e.run(ctx, input, sink)
}

func (e *Executor) run(ctx context.Context, input string, sink Sink) (string, error) {
	emit(sink, StreamEvent{Type: EventStarted, Agent: e.cfg.Name})

	rc := NewContext(input)
	rc.Metadata.Model = e.cfg.Name

	if e.cfg.SystemPrompt != "" {
		rc.appendMessage(model.Message{Role: model.RoleSystem, Text: e.cfg.SystemPrompt})
	}

	if e.mem != nil {
		recent, err := e.mem.Recent(e.cfg.MaxContextMessages)
		if err != nil {
			e.logger.Warn("memory recent failed, continuing without history", "error", err)
		} else {
			rc.Messages = append(rc.Messages, recent...)
		}
	}

	rc.appendMessage(model.Message{Role: model.RoleUser, Text: input})

	toolDefs, err := e.listTools(ctx)
	if err != nil {
		return e.fail(sink, rc, KindInvariant, err)
	}
	schemas := compileToolSchemas(toolDefs, e.logger)

	for iter := 0; iter < e.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			emit(sink, StreamEvent{Type: EventError, Message: "Execution cancelled"})
			return "", &Error{Kind: KindCancelled, Agent: e.cfg.Name, Cause: ErrCancelled}
		}

		completion, err := e.invokeWithRetry(ctx, rc.Messages, toolDefs)
		if err != nil {
			return e.fail(sink, rc, KindModelFailure, err)
		}
		rc.Metadata.InputTokens += completion.Usage.InputTokens
		rc.Metadata.OutputTokens += completion.Usage.OutputTokens

		if completion.IsFinal() {
			rc.appendMessage(model.Message{Role: model.RoleAssistant, Text: completion.Text})
			if e.mem != nil {
				if err := e.mem.Append(model.Message{Role: model.RoleAssistant, Text: completion.Text}); err != nil {
					e.logger.Warn("memory append failed", "error", err)
				}
			}
			rc.Metadata.WallTimeMs = rc.elapsedMs()
			emit(sink, StreamEvent{Type: EventFinal, Text: completion.Text})
			return completion.Text, nil
		}

		rc.appendMessage(model.Message{Role: model.RoleAssistant, ToolCalls: completion.ToolCalls})

		// Tool calls within one iteration run strictly sequentially so
		// later tools can observe earlier tool outputs in context.
		for _, call := range completion.ToolCalls {
			if err := ctx.Err(); err != nil {
				emit(sink, StreamEvent{Type: EventError, Message: "Execution cancelled"})
				return "", &Error{Kind: KindCancelled, Agent: e.cfg.Name, Cause: ErrCancelled}
			}

			argsText := string(call.Args)
			emit(sink, StreamEvent{Type: EventToolCall, ToolName: call.Name, ToolArgs: argsText})

			if decision := e.checkApproval(call.Name); !decision.Allowed {
				result := tool.Result{OK: false, ErrorText: "tool call denied: " + decision.Reason}
				rc.ToolResults = append(rc.ToolResults, result)
				rc.appendMessage(toolResultMessage(call.ID, result))
				emit(sink, StreamEvent{Type: EventToolResult, ToolName: call.Name, ToolOK: false, ToolData: result.ErrorText})
				continue
			}

			var result tool.Result
			if verr := schemas.validate(call.Name, call.Args); verr != nil {
				result = tool.Result{OK: false, ErrorText: verr.Error()}
			} else if res, err := e.tools.Execute(ctx, call.Name, call.Args); err != nil {
				result = tool.Result{OK: false, ErrorText: err.Error()}
			} else {
				result = res
			}
			rc.Metadata.ToolCalls++
			rc.ToolResults = append(rc.ToolResults, result)
			rc.appendMessage(toolResultMessage(call.ID, result))
			emit(sink, StreamEvent{
				Type:     EventToolResult,
				ToolName: call.Name,
				ToolOK:   result.OK,
				ToolData: string(result.Data),
				ToolMs:   result.DurationMs,
			})
		}
	}

	return e.fail(sink, rc, KindIterationsExceeded, ErrIterationsExceeded)
}

func (e *Executor) fail(sink Sink, rc *Context, kind ErrorKind, cause error) (string, error) {
	emit(sink, StreamEvent{Type: EventError, Message: cause.Error()})
	return "", &Error{Kind: kind, Agent: e.cfg.Name, Cause: cause}
}

func (e *Executor) checkApproval(toolName string) ApprovalDecision {
	if e.cfg.Approval == nil {
		return ApprovalDecision{Allowed: true, Reason: "no policy configured"}
	}
	return e.cfg.Approval.Check(toolName)
}

func (e *Executor) listTools(ctx context.Context) ([]model.ToolDefinition, error) {
	if e.tools == nil {
		return nil, nil
	}
	return e.tools.ListTools(ctx)
}

// invokeWithRetry calls the model once, retrying exactly once if the
// failure is classified retryable (spec §4.2, §7).
func (e *Executor) invokeWithRetry(ctx context.Context, messages []model.Message, tools []model.ToolDefinition) (model.Completion, error) {
	opts := model.Options{Temperature: e.cfg.Temperature, MaxTokens: e.cfg.MaxTokens}
	completion, err := e.model.Invoke(ctx, messages, tools, opts)
	if err == nil {
		return completion, nil
	}
	var modelErr *model.Error
	if errors.As(err, &modelErr) && modelErr.Retryable {
		e.logger.Warn("model call failed, retrying once", "error", err)
		return e.model.Invoke(ctx, messages, tools, opts)
	}
	return model.Completion{}, err
}

func toolResultMessage(callID string, result tool.Result) model.Message {
	var data string
	if result.OK {
		data = string(result.Data)
	} else {
		data = result.ErrorText
	}
	payload, _ := json.Marshal(map[string]any{"ok": result.OK, "data": json.RawMessage(nullIfEmpty(data))})
	return model.Message{Role: model.RoleTool, ToolCallID: callID, Text: string(payload)}
}

func nullIfEmpty(s string) string {
	if s == "" {
		return "null"
	}
	if json.Valid([]byte(s)) {
		return s
	}
	b, _ := json.Marshal(s)
	return string(b)
}
