// Package tool defines the Tool boundary (C1): the interface the kernel
// calls out to in order to list and execute tools.
package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

// Result is the outcome of one tool execution. Execution must never panic;
// an underlying failure becomes a non-ok Result, not an error return.
type Result struct {
	OK         bool            `json:"ok"`
	Data       json.RawMessage `json:"data,omitempty"`
	ErrorText  string          `json:"error_text,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// Executor lists and runs tools. A single Executor may be backed by a
// local builtin dispatcher or by one or more MCP servers; the kernel
// never distinguishes between them.
type Executor interface {
	ListTools(ctx context.Context) ([]model.ToolDefinition, error)
	Execute(ctx context.Context, name string, arguments json.RawMessage) (Result, error)
}

// Func is a single tool's implementation, used by the builtin dispatcher.
type Func func(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error)

// Registry is a local, in-process Executor dispatching to registered
// builtin Funcs by name, each described by a ToolDefinition for the
// model's tool catalogue.
type Registry struct {
	defs  []model.ToolDefinition
	funcs map[string]Func
}

// NewRegistry builds an empty builtin tool registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds a builtin tool under def.Name.
func (r *Registry) Register(def model.ToolDefinition, fn Func) {
	r.defs = append(r.defs, def)
	r.funcs[def.Name] = fn
}

func (r *Registry) ListTools(ctx context.Context) ([]model.ToolDefinition, error) {
	out := make([]model.ToolDefinition, len(r.defs))
	copy(out, r.defs)
	return out, nil
}

func (r *Registry) Execute(ctx context.Context, name string, arguments json.RawMessage) (res Result, err error) {
	start := time.Now()
	defer func() {
		res.DurationMs = time.Since(start).Milliseconds()
		if p := recover(); p != nil {
			res = Result{OK: false, ErrorText: "tool panicked", DurationMs: res.DurationMs}
		}
	}()

	fn, ok := r.funcs[name]
	if !ok {
		return Result{OK: false, ErrorText: "unknown tool: " + name}, nil
	}
	data, err := fn(ctx, arguments)
	if err != nil {
		return Result{OK: false, ErrorText: err.Error()}, nil
	}
	return Result{OK: true, Data: data}, nil
}

// Multi fans calls out across several Executors (e.g. several MCP
// servers), keyed by which one owns each tool name. Listing merges every
// sub-executor's catalogue; execution is routed to the owner.
type Multi struct {
	executors []Executor
	owner     map[string]Executor
}

// NewMulti builds a composite Executor over several sub-executors. Tool
// name collisions are resolved first-registered-wins.
func NewMulti(executors ...Executor) *Multi {
	return &Multi{executors: executors, owner: make(map[string]Executor)}
}

func (m *Multi) ListTools(ctx context.Context) ([]model.ToolDefinition, error) {
	var all []model.ToolDefinition
	for _, ex := range m.executors {
		defs, err := ex.ListTools(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range defs {
			if _, exists := m.owner[d.Name]; exists {
				continue
			}
			m.owner[d.Name] = ex
			all = append(all, d)
		}
	}
	return all, nil
}

func (m *Multi) Execute(ctx context.Context, name string, arguments json.RawMessage) (Result, error) {
	ex, ok := m.owner[name]
	if !ok {
		if _, err := m.ListTools(ctx); err != nil {
			return Result{}, err
		}
		ex, ok = m.owner[name]
	}
	if !ok {
		return Result{OK: false, ErrorText: "unknown tool: " + name}, nil
	}
	return ex.Execute(ctx, name, arguments)
}
