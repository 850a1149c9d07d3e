package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

func TestRegistryExecuteUnknown(t *testing.T) {
	r := NewRegistry()
	res, err := r.Execute(context.Background(), "nope", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK {
		t.Error("expected non-ok result for unknown tool")
	}
}

func TestRegistryExecuteFailureIsNotError(t *testing.T) {
	r := NewRegistry()
	r.Register(model.ToolDefinition{Name: "boom"}, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("kaboom")
	})
	res, err := r.Execute(context.Background(), "boom", nil)
	if err != nil {
		t.Fatalf("underlying tool failure must not surface as an error: %v", err)
	}
	if res.OK {
		t.Error("expected non-ok result")
	}
	if res.ErrorText != "kaboom" {
		t.Errorf("errorText = %q", res.ErrorText)
	}
}

func TestRegistryExecuteNeverPanics(t *testing.T) {
	r := NewRegistry()
	r.Register(model.ToolDefinition{Name: "panicky"}, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		panic("nope")
	})
	res, err := r.Execute(context.Background(), "panicky", nil)
	if err != nil {
		t.Fatalf("panic must be converted to a failed result, not an error: %v", err)
	}
	if res.OK {
		t.Error("expected non-ok result after recovered panic")
	}
}

func TestMultiRoutesByOwner(t *testing.T) {
	a := NewRegistry()
	a.Register(model.ToolDefinition{Name: "a_tool"}, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"from-a"`), nil
	})
	b := NewRegistry()
	b.Register(model.ToolDefinition{Name: "b_tool"}, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"from-b"`), nil
	})
	m := NewMulti(a, b)
	defs, err := m.ListTools(context.Background())
	if err != nil || len(defs) != 2 {
		t.Fatalf("ListTools = %v, %v", defs, err)
	}
	res, err := m.Execute(context.Background(), "b_tool", nil)
	if err != nil || !res.OK || string(res.Data) != `"from-b"` {
		t.Fatalf("Execute(b_tool) = %+v, %v", res, err)
	}
}
