// Package workflow implements the Workflow Executor (C6): a step-graph
// runner with conditionals, reducers, parallel fork-join, and approval
// waits. Grounded on kadirpekel-hector's workflow/types.go step-dispatch
// shape (StepStatus, per-step-type dispatch, borrow-by-name agent
// services) — the teacher repo has no step-graph engine of its own, so
// this package is the one place the secondary teacher supplies the
// primary grounding (see DESIGN.md).
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aof-dev/aof/internal/backoff"
	"github.com/aof-dev/aof/internal/config"
	"github.com/aof-dev/aof/internal/expr"
	"github.com/aof-dev/aof/pkg/kernel/registry"
)

// Status is a RunState's overall status (spec §3).
type Status string

const (
	StatusPending          Status = "pending"
	StatusRunning          Status = "running"
	StatusWaitingApproval  Status = "waiting_approval"
	StatusWaitingInput     Status = "waiting_input"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
)

// StepResult records one step's outcome.
type StepResult struct {
	Status    string
	Output    map[string]any
	StartedAt time.Time
	EndedAt   time.Time
	Error     string
}

// RunState is one in-flight or completed workflow run (spec §3), guarded
// by its own writer lock per spec §5.
type RunState struct {
	mu sync.Mutex

	RunID          string
	TargetName     string
	CurrentStep    string
	Status         Status
	Data           map[string]any
	CompletedSteps []string
	StepResults    map[string]*StepResult
	Err            string

	approvalCh chan ApprovalDecision
}

// Snapshot returns a shallow copy safe to read without the run's lock.
func (r *RunState) Snapshot() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r
	cp.approvalCh = nil
	return cp
}

// ApprovalDecision is the external decision payload for a waiting
// approval step (spec §4.6).
type ApprovalDecision struct {
	Step     string
	Approved bool
	Approver string
	Comment  string
}

// EventType tags a workflow-run lifecycle notification (spec §2/§4.6:
// executors emit a lazy sequence of structured events).
type EventType string

const (
	EventStepStarted    EventType = "step_started"
	EventStepCompleted  EventType = "step_completed"
	EventStepFailed     EventType = "step_failed"
	EventWaitingApproval EventType = "waiting_approval"
	EventRunCompleted   EventType = "run_completed"
	EventRunFailed      EventType = "run_failed"
)

// Event is one notification emitted during a workflow run.
type Event struct {
	Type      EventType
	RunID     string
	Step      string
	Approvers []string
	Reason    string
}

// Sink receives workflow events; nil is a valid no-op sink, mirroring
// flow.Sink.
type Sink interface {
	Emit(Event)
}

// ValidatorFunc is a registered Function-type validator.
type ValidatorFunc func(state map[string]any) error

// AgentRunner borrows agent executors by name, satisfied by
// *registry.Registry in production and a fake in tests.
type AgentRunner interface {
	Execute(ctx context.Context, name, input string) (string, error)
}

// ScriptRunner runs a Script-type validator or step with STATE in its
// environment, satisfied by internal/exec in production.
type ScriptRunner func(ctx context.Context, command string, env map[string]string) error

// Runner drives one Workflow definition to completion.
type Runner struct {
	name       string
	spec       *config.WorkflowSpec
	agents     AgentRunner
	validators map[string]ValidatorFunc
	runScript  ScriptRunner
	sink       Sink

	mu   sync.Mutex
	runs map[string]*RunState
}

// New builds a Runner for one workflow definition. sink may be nil if
// no consumer needs this workflow's event stream.
func New(name string, spec *config.WorkflowSpec, agents AgentRunner, validators map[string]ValidatorFunc, runScript ScriptRunner, sink Sink) *Runner {
	if validators == nil {
		validators = map[string]ValidatorFunc{}
	}
	return &Runner{
		name:       name,
		spec:       spec,
		agents:     agents,
		validators: validators,
		runScript:  runScript,
		sink:       sink,
		runs:       make(map[string]*RunState),
	}
}

func (r *Runner) emit(ev Event) {
	if r.sink != nil {
		r.sink.Emit(ev)
	}
}

// Start creates a new run and drives it until it blocks (waiting on
// approval/input) or reaches a terminal status.
func (r *Runner) Start(ctx context.Context, input map[string]any) (*RunState, error) {
	run := &RunState{
		RunID:       uuid.NewString(),
		TargetName:  r.name,
		CurrentStep: r.spec.Entrypoint,
		Status:      StatusRunning,
		Data:        mergeMaps(nil, input, config.Reducer(config.ReducerReplace)),
		StepResults: make(map[string]*StepResult),
	}
	r.mu.Lock()
	r.runs[run.RunID] = run
	r.mu.Unlock()

	return run, r.drive(ctx, run)
}

// Get returns a run by id.
func (r *Runner) Get(runID string) (*RunState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	return run, ok
}

// Decide delivers an external approval decision to a waiting run and
// resumes the drive loop.
func (r *Runner) Decide(ctx context.Context, runID string, decision ApprovalDecision) error {
	run, ok := r.Get(runID)
	if !ok {
		return fmt.Errorf("workflow run %q not found", runID)
	}
	run.mu.Lock()
	ch := run.approvalCh
	run.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("workflow run %q is not waiting on an approval", runID)
	}
	select {
	case ch <- decision:
	default:
	}
	return r.drive(ctx, run)
}

func (r *Runner) stepByName(name string) (config.StepSpec, bool) {
	for _, s := range r.spec.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return config.StepSpec{}, false
}

// drive runs the main loop of spec §4.6 until the run completes, fails,
// or blocks on an external wait.
func (r *Runner) drive(ctx context.Context, run *RunState) error {
	for {
		run.mu.Lock()
		status := run.Status
		run.mu.Unlock()
		if status != StatusRunning {
			return nil
		}

		run.mu.Lock()
		stepName := run.CurrentStep
		run.mu.Unlock()

		step, ok := r.stepByName(stepName)
		if !ok {
			r.failRun(run, fmt.Errorf("step not found: %s", stepName))
			return nil
		}

		r.emit(Event{Type: EventStepStarted, RunID: run.RunID, Step: step.Name})
		result, next, err := r.dispatchWithRetry(ctx, run, step)
		if err != nil {
			r.emit(Event{Type: EventStepFailed, RunID: run.RunID, Step: step.Name, Reason: err.Error()})
			if r.spec.ErrorHandler != "" {
				run.mu.Lock()
				run.CompletedSteps = append(run.CompletedSteps, step.Name)
				run.CurrentStep = r.spec.ErrorHandler
				run.mu.Unlock()
				continue
			}
			r.failRun(run, err)
			return nil
		}

		run.mu.Lock()
		run.StepResults[step.Name] = result
		run.mu.Unlock()

		if result.Status == "waiting" {
			return nil
		}
		r.emit(Event{Type: EventStepCompleted, RunID: run.RunID, Step: step.Name})

		if step.Type == config.StepTerminal {
			run.mu.Lock()
			st := step.Status
			if st == "" {
				st = string(StatusCompleted)
			}
			run.Status = Status(st)
			run.mu.Unlock()
			r.emit(Event{Type: EventRunCompleted, RunID: run.RunID})
			return nil
		}

		if next == "" {
			run.mu.Lock()
			run.Status = StatusCompleted
			run.mu.Unlock()
			r.emit(Event{Type: EventRunCompleted, RunID: run.RunID})
			return nil
		}

		run.mu.Lock()
		run.CompletedSteps = append(run.CompletedSteps, step.Name)
		run.CurrentStep = next
		run.mu.Unlock()
	}
}

func (r *Runner) failRun(run *RunState, err error) {
	run.mu.Lock()
	run.Status = StatusFailed
	run.Err = err.Error()
	run.mu.Unlock()
	r.emit(Event{Type: EventRunFailed, RunID: run.RunID, Reason: err.Error()})
}

// dispatchWithRetry wraps dispatch with the workflow's optional retry
// policy (spec §3 Workflow.retry). Approval and parallel-join steps are
// never retried here: a failure there is either a human decision or
// already the aggregate of several branches, and re-running it would
// re-ask/re-run side effects rather than recover a transient failure.
func (r *Runner) dispatchWithRetry(ctx context.Context, run *RunState, step config.StepSpec) (*StepResult, string, error) {
	if r.spec.Retry == nil || r.spec.Retry.MaxAttempts <= 1 || step.Type == config.StepApproval {
		return r.dispatch(ctx, run, step)
	}

	policy := backoffPolicyFor(r.spec.Retry.Backoff)
	var (
		result *StepResult
		next   string
		err    error
	)
	for attempt := 1; attempt <= r.spec.Retry.MaxAttempts; attempt++ {
		result, next, err = r.dispatch(ctx, run, step)
		if err == nil || attempt == r.spec.Retry.MaxAttempts {
			return result, next, err
		}
		if sleepErr := backoff.SleepWithContext(ctx, backoff.ComputeBackoff(policy, attempt)); sleepErr != nil {
			return result, next, err
		}
	}
	return result, next, err
}

// backoffPolicyFor maps a RetryPolicy.Backoff name to a concrete
// backoff.BackoffPolicy; unrecognised or empty values fall back to the
// default exponential policy.
func backoffPolicyFor(name string) backoff.BackoffPolicy {
	switch name {
	case "aggressive":
		return backoff.AggressivePolicy()
	case "conservative":
		return backoff.ConservativePolicy()
	default:
		return backoff.DefaultPolicy()
	}
}

// dispatch runs one step and returns its result plus the resolved next
// step name ("" means no outgoing edge / stop).
func (r *Runner) dispatch(ctx context.Context, run *RunState, step config.StepSpec) (*StepResult, string, error) {
	started := time.Now()
	var output map[string]any
	var err error

	switch step.Type {
	case config.StepAgent:
		output, err = r.dispatchAgent(ctx, run, step)
	case config.StepApproval:
		return r.dispatchApproval(ctx, run, step, started)
	case config.StepValidation:
		output = map[string]any{}
		run.mu.Lock()
		state := run.Data
		run.mu.Unlock()
		for _, v := range step.Validators {
			if verr := r.runValidator(ctx, v, state); verr != nil {
				err = verr
				break
			}
		}
	case config.StepParallel:
		output, err = r.dispatchParallel(ctx, run, step)
	case config.StepJoin:
		output = map[string]any{}
	case config.StepTerminal:
		output = map[string]any{}
	default:
		err = fmt.Errorf("unknown step type: %s", step.Type)
	}

	if err != nil {
		return &StepResult{Status: "failed", StartedAt: started, EndedAt: time.Now(), Error: err.Error()}, "", err
	}

	run.mu.Lock()
	run.Data = mergeStepOutput(run.Data, output, r.spec.Reducers)
	data := run.Data
	run.mu.Unlock()

	next := r.resolveNext(step, output, data)
	return &StepResult{Status: "completed", Output: output, StartedAt: started, EndedAt: time.Now()}, next, nil
}

func (r *Runner) dispatchAgent(ctx context.Context, run *RunState, step config.StepSpec) (map[string]any, error) {
	run.mu.Lock()
	payload, _ := json.Marshal(run.Data)
	run.mu.Unlock()

	text, err := r.agents.Execute(ctx, step.Agent, string(payload))
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if json.Valid([]byte(text)) {
		_ = json.Unmarshal([]byte(text), &out)
	}
	if out == nil {
		out = map[string]any{"response": text}
	}

	for _, v := range step.Validators {
		if err := r.runValidator(ctx, v, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Runner) runValidator(ctx context.Context, v config.ValidatorSpec, state map[string]any) error {
	switch v.Type {
	case config.ValidatorFunction:
		fn, ok := r.validators[v.Name]
		if !ok {
			return fmt.Errorf("unregistered function validator: %s", v.Name)
		}
		return fn(state)
	case config.ValidatorLLM:
		payload, _ := json.Marshal(map[string]any{"prompt": v.Prompt, "state": state})
		_, err := r.agents.Execute(ctx, v.Agent, string(payload))
		return err
	case config.ValidatorScript:
		if r.runScript == nil {
			return fmt.Errorf("no script runner configured")
		}
		payload, _ := json.Marshal(state)
		return r.runScript(ctx, v.Command, map[string]string{"STATE": string(payload)})
	default:
		return fmt.Errorf("unknown validator type: %s", v.Type)
	}
}

func (r *Runner) dispatchApproval(ctx context.Context, run *RunState, step config.StepSpec, started time.Time) (*StepResult, string, error) {
	run.mu.Lock()
	data := run.Data
	run.mu.Unlock()

	if step.AutoApproveCondition != "" && expr.Eval(step.AutoApproveCondition, data, nil) {
		out := map[string]any{"approved": true}
		run.mu.Lock()
		run.Data = mergeStepOutput(run.Data, out, r.spec.Reducers)
		merged := run.Data
		run.mu.Unlock()
		next := r.resolveNext(step, out, merged)
		return &StepResult{Status: "completed", Output: out, StartedAt: started, EndedAt: time.Now()}, next, nil
	}

	timeout := time.Hour
	if step.Timeout != "" {
		if d, err := config.ParseDuration(step.Timeout); err == nil {
			timeout = d
		}
	}

	ch := make(chan ApprovalDecision, 1)
	run.mu.Lock()
	run.Status = StatusWaitingApproval
	run.approvalCh = ch
	run.mu.Unlock()
	r.emit(Event{Type: EventWaitingApproval, RunID: run.RunID, Step: step.Name, Approvers: step.Approvers})

	select {
	case decision := <-ch:
		out := map[string]any{"approved": decision.Approved, "approver": decision.Approver, "comment": decision.Comment}
		run.mu.Lock()
		run.approvalCh = nil
		run.Status = StatusRunning
		run.Data = mergeStepOutput(run.Data, out, r.spec.Reducers)
		merged := run.Data
		run.mu.Unlock()
		next := r.resolveNext(step, out, merged)
		return &StepResult{Status: "completed", Output: out, StartedAt: started, EndedAt: time.Now()}, next, nil
	case <-time.After(timeout):
		out := map[string]any{"timeout": true}
		run.mu.Lock()
		run.approvalCh = nil
		run.Status = StatusRunning
		run.Data = mergeStepOutput(run.Data, out, r.spec.Reducers)
		merged := run.Data
		run.mu.Unlock()
		next := r.resolveNext(step, out, merged)
		return &StepResult{Status: "completed", Output: out, StartedAt: started, EndedAt: time.Now()}, next, nil
	case <-ctx.Done():
		return &StepResult{Status: "waiting"}, "", nil
	}
}

func (r *Runner) dispatchParallel(ctx context.Context, run *RunState, step config.StepSpec) (map[string]any, error) {
	strategy := config.JoinAll
	if step.Join != nil && step.Join.Strategy != "" {
		strategy = step.Join.Strategy
	}

	type branchResult struct {
		name string
		out  string
		err  error
	}
	results := make(chan branchResult, len(step.Branches))

	run.mu.Lock()
	payload, _ := json.Marshal(run.Data)
	run.mu.Unlock()

	for _, branch := range step.Branches {
		branch := branch
		go func() {
			var out string
			var err error
			for _, agentName := range branch.Agents {
				out, err = r.agents.Execute(ctx, agentName, string(payload))
				if err != nil {
					break
				}
			}
			results <- branchResult{name: branch.Name, out: out, err: err}
		}()
	}

	need := len(step.Branches)
	switch strategy {
	case config.JoinAny:
		need = 1
	case config.JoinMajority:
		need = len(step.Branches)/2 + 1
	}

	collected := make(map[string]any, len(step.Branches))
	var firstErr error
	received := 0
	for received < len(step.Branches) {
		br := <-results
		received++
		if br.err != nil && firstErr == nil {
			firstErr = br.err
		}
		collected[br.name] = br.out
		if received >= need && strategy != config.JoinAll {
			break
		}
	}

	if strategy == config.JoinAll && firstErr != nil {
		return nil, firstErr
	}

	branches := make(map[string]any, len(step.Branches))
	for _, b := range step.Branches {
		if v, ok := collected[b.name]; ok {
			branches[b.name] = v
		}
	}
	return map[string]any{"branches": branches}, nil
}

// resolveNext implements the conditional next resolution of spec §4.6.
func (r *Runner) resolveNext(step config.StepSpec, lastOutput map[string]any, state map[string]any) string {
	if len(step.Next) == 0 {
		return ""
	}
	for _, target := range step.Next {
		if target.Condition == "" || expr.Eval(target.Condition, state, lastOutput) {
			return target.Target
		}
	}
	return ""
}

// mergeStepOutput folds a step's output into state per the configured
// reducers (spec §4.6).
func mergeStepOutput(state map[string]any, output map[string]any, reducers map[string]config.Reducer) map[string]any {
	if state == nil {
		state = map[string]any{}
	}
	for k, v := range output {
		reducer := config.ReducerReplace
		if reducers != nil {
			if r, ok := reducers[k]; ok {
				reducer = r
			}
		}
		state[k] = applyReducer(state[k], v, reducer)
	}
	return state
}

func applyReducer(existing, incoming any, reducer config.Reducer) any {
	switch reducer {
	case config.ReducerAppend:
		seq, _ := existing.([]any)
		if incomingSeq, ok := incoming.([]any); ok {
			return append(seq, incomingSeq...)
		}
		return append(seq, incoming)
	case config.ReducerMerge:
		dst, _ := existing.(map[string]any)
		if dst == nil {
			dst = map[string]any{}
		}
		if src, ok := incoming.(map[string]any); ok {
			for k, v := range src {
				dst[k] = v
			}
		}
		return dst
	case config.ReducerSum:
		return toFloat(existing) + toFloat(incoming)
	default: // Replace
		return incoming
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case nil:
		return 0
	default:
		return 0
	}
}

func mergeMaps(dst map[string]any, src map[string]any, _ config.Reducer) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
