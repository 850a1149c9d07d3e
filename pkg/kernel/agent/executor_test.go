package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aof-dev/aof/pkg/kernel/model"
	"github.com/aof-dev/aof/pkg/kernel/tool"
)

// scriptedModel returns a fixed sequence of completions, one per call.
type scriptedModel struct {
	turns []model.Completion
	calls int
}

func (m *scriptedModel) Invoke(ctx context.Context, messages []model.Message, tools []model.ToolDefinition, opts model.Options) (model.Completion, error) {
	c := m.turns[m.calls]
	m.calls++
	return c, nil
}

type fakeTools struct {
	order []string
}

func (f *fakeTools) ListTools(ctx context.Context) ([]model.ToolDefinition, error) {
	return []model.ToolDefinition{{Name: "add"}}, nil
}

func (f *fakeTools) Execute(ctx context.Context, name string, args json.RawMessage) (tool.Result, error) {
	f.order = append(f.order, name)
	return tool.Result{OK: true, Data: json.RawMessage(`5`)}, nil
}

func TestExecuteEchoesImmediateFinal(t *testing.T) {
	m := &scriptedModel{turns: []model.Completion{{Text: "hello"}}}
	ex := New(Config{Name: "echo", SystemPrompt: "Repeat after me."}, m, nil, nil, nil)

	got, err := ex.Execute(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if got != "hello" {
		t.Errorf("Execute() = %q, want %q", got, "hello")
	}
}

func TestExecuteToolLoop(t *testing.T) {
	m := &scriptedModel{turns: []model.Completion{
		{ToolCalls: []model.ToolCall{{ID: "t1", Name: "add", Args: json.RawMessage(`{"a":2,"b":3}`)}}},
		{Text: "5"},
	}}
	tools := &fakeTools{}
	ex := New(Config{Name: "calc"}, m, tools, nil, nil)

	var sink recordingSink
	got, err := ex.ExecuteStreaming(context.Background(), "what is 2+3", &sink)
	if err != nil {
		t.Fatalf("ExecuteStreaming error: %v", err)
	}
	if got != "5" {
		t.Fatalf("result = %q, want %q", got, "5")
	}

	foundToolCall, foundToolResult := false, false
	for _, ev := range sink.events {
		if ev.Type == EventToolCall {
			foundToolCall = true
		}
		if ev.Type == EventToolResult {
			foundToolResult = true
		}
	}
	if !foundToolCall || !foundToolResult {
		t.Errorf("expected ToolCall and ToolResult events, got %+v", sink.events)
	}
}

func TestMaxIterationsExceeded(t *testing.T) {
	turns := make([]model.Completion, 5)
	for i := range turns {
		turns[i] = model.Completion{ToolCalls: []model.ToolCall{{ID: "t", Name: "add"}}}
	}
	m := &scriptedModel{turns: turns}
	tools := &fakeTools{}
	ex := New(Config{Name: "loopy", MaxIterations: 1}, m, tools, nil, nil)

	_, err := ex.Execute(context.Background(), "go")
	var agentErr *Error
	if err == nil {
		t.Fatal("expected IterationsExceeded error")
	}
	if !asAgentError(err, &agentErr) || agentErr.Kind != KindIterationsExceeded {
		t.Errorf("err = %v, want IterationsExceeded", err)
	}
}

func asAgentError(err error, target **Error) bool {
	ae, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = ae
	return true
}

type recordingSink struct {
	events []StreamEvent
}

func (s *recordingSink) Emit(ev StreamEvent) {
	s.events = append(s.events, ev)
}
