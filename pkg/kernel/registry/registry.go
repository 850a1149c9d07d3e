// Package registry implements the Runtime Registry (C3): the
// process-wide name -> AgentExecutor map that the Fleet Coordinator and
// the two workflow engines borrow executors from by name, grounded on
// the teacher's internal/agent/runtime.go load/replace/lookup registry.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aof-dev/aof/pkg/kernel/agent"
)

// ErrAlreadyExistsAndBusy is returned by Load when an agent of the same
// name is currently executing and cannot be safely replaced.
type ErrAlreadyExistsAndBusy struct{ Name string }

func (e *ErrAlreadyExistsAndBusy) Error() string {
	return fmt.Sprintf("agent %q already exists and is busy", e.Name)
}

type entry struct {
	executor *agent.Executor
	inFlight int
}

// Registry is the process-wide name -> executor map. The zero value is
// not usable; construct with New.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger
}

// New builds an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger.With("component", "registry"),
	}
}

// Load inserts or replaces the executor under name. Replacement is only
// permitted once the prior executor has drained (no in-flight
// executions); otherwise ErrAlreadyExistsAndBusy is returned.
func (r *Registry) Load(name string, ex *agent.Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[name]; ok && existing.inFlight > 0 {
		return &ErrAlreadyExistsAndBusy{Name: name}
	}
	r.entries[name] = &entry{executor: ex}
	r.logger.Info("agent loaded", "agent", name)
	return nil
}

// Has reports whether name is currently registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names lists every registered agent name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	return names
}

// Execute runs the named agent to completion.
func (r *Registry) Execute(ctx context.Context, name, input string) (string, error) {
	ex, done, err := r.acquire(name)
	if err != nil {
		return "", err
	}
	defer done()
	return ex.Execute(ctx, input)
}

// ExecuteStreaming runs the named agent to completion, emitting events.
func (r *Registry) ExecuteStreaming(ctx context.Context, name, input string, sink agent.Sink) (string, error) {
	ex, done, err := r.acquire(name)
	if err != nil {
		return "", err
	}
	defer done()
	return ex.ExecuteStreaming(ctx, input, sink)
}

func (r *Registry) acquire(name string) (*agent.Executor, func(), error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("registry: agent %q not found", name)
	}
	e.inFlight++
	r.mu.Unlock()

	return e.executor, func() {
		r.mu.Lock()
		e.inFlight--
		r.mu.Unlock()
	}, nil
}

// Drain blocks (via busy-check) until every entry has zero in-flight
// executions; callers typically pair this with a bounded task timeout
// via the passed context.
func (r *Registry) Drain(ctx context.Context) error {
	for {
		if r.idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (r *Registry) idle() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.inFlight > 0 {
			return false
		}
	}
	return true
}
