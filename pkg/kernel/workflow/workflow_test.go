package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/aof-dev/aof/internal/backoff"
	"github.com/aof-dev/aof/internal/config"
)

type fakeAgents struct {
	replies map[string]string
}

func (f fakeAgents) Execute(ctx context.Context, name, input string) (string, error) {
	return f.replies[name], nil
}

func TestLinearWorkflowCompletes(t *testing.T) {
	spec := &config.WorkflowSpec{
		Entrypoint: "collect",
		Steps: []config.StepSpec{
			{Name: "collect", Type: config.StepAgent, Agent: "collector", Next: []config.ConditionalTarget{{Target: "done"}}},
			{Name: "done", Type: config.StepTerminal},
		},
	}
	r := New("w1", spec, fakeAgents{replies: map[string]string{"collector": "hello"}}, nil, nil, nil)
	run, err := r.Start(context.Background(), map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	snap := run.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %v, err = %s", snap.Status, snap.Err)
	}
	if snap.Data["response"] != "hello" {
		t.Errorf("response = %v", snap.Data["response"])
	}
}

func TestConditionalNextPicksMatchingBranch(t *testing.T) {
	spec := &config.WorkflowSpec{
		Entrypoint: "check",
		Steps: []config.StepSpec{
			{
				Name: "check", Type: config.StepAgent, Agent: "checker",
				Next: []config.ConditionalTarget{
					{Condition: `state.status == "bad"`, Target: "fail_path"},
					{Target: "ok_path"},
				},
			},
			{Name: "fail_path", Type: config.StepTerminal, Status: "failed"},
			{Name: "ok_path", Type: config.StepTerminal, Status: "completed"},
		},
	}
	r := New("w2", spec, fakeAgents{replies: map[string]string{"checker": `{"status":"bad"}`}}, nil, nil, nil)
	run, err := r.Start(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if run.Snapshot().Status != StatusFailed {
		t.Fatalf("status = %v, want failed", run.Snapshot().Status)
	}
}

func TestAppendReducerAccumulatesAcrossSteps(t *testing.T) {
	spec := &config.WorkflowSpec{
		Entrypoint: "a",
		Steps: []config.StepSpec{
			{Name: "a", Type: config.StepAgent, Agent: "x", Next: []config.ConditionalTarget{{Target: "b"}}},
			{Name: "b", Type: config.StepAgent, Agent: "x", Next: []config.ConditionalTarget{{Target: "done"}}},
			{Name: "done", Type: config.StepTerminal},
		},
		Reducers: map[string]config.Reducer{"response": config.ReducerAppend},
	}
	r := New("w3", spec, fakeAgents{replies: map[string]string{"x": "v"}}, nil, nil, nil)
	run, err := r.Start(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	seq, ok := run.Snapshot().Data["response"].([]any)
	if !ok || len(seq) != 2 {
		t.Fatalf("response = %v", run.Snapshot().Data["response"])
	}
}

func TestApprovalStepWaitsThenResumesOnDecision(t *testing.T) {
	spec := &config.WorkflowSpec{
		Entrypoint: "gate",
		Steps: []config.StepSpec{
			{
				Name: "gate", Type: config.StepApproval, Timeout: "1h",
				Next: []config.ConditionalTarget{
					{Condition: "approved", Target: "go"},
					{Condition: "rejected", Target: "stop"},
				},
			},
			{Name: "go", Type: config.StepTerminal, Status: "completed"},
			{Name: "stop", Type: config.StepTerminal, Status: "failed"},
		},
	}
	r := New("w4", spec, fakeAgents{}, nil, nil, nil)

	done := make(chan *RunState, 1)
	go func() {
		run, err := r.Start(context.Background(), nil)
		if err != nil {
			t.Error(err)
		}
		done <- run
	}()

	var run *RunState
	select {
	case run = <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Start should have returned once the approval step parked")
	}
	if run.Snapshot().Status != StatusWaitingApproval {
		t.Fatalf("status = %v, want waiting_approval", run.Snapshot().Status)
	}

	if err := r.Decide(context.Background(), run.RunID, ApprovalDecision{Step: "gate", Approved: true}); err != nil {
		t.Fatal(err)
	}
	if run.Snapshot().Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", run.Snapshot().Status)
	}
}

func TestApprovalStepTimesOutToRejectedPath(t *testing.T) {
	spec := &config.WorkflowSpec{
		Entrypoint: "gate",
		Steps: []config.StepSpec{
			{
				Name: "gate", Type: config.StepApproval, Timeout: "10ms",
				Next: []config.ConditionalTarget{
					{Condition: "timeout", Target: "stop"},
					{Condition: "approved", Target: "go"},
				},
			},
			{Name: "go", Type: config.StepTerminal, Status: "completed"},
			{Name: "stop", Type: config.StepTerminal, Status: "failed"},
		},
	}
	r := New("w5", spec, fakeAgents{}, nil, nil, nil)
	run, err := r.Start(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if run.Snapshot().Status != StatusFailed {
		t.Fatalf("status = %v, want failed after timeout", run.Snapshot().Status)
	}
}

func TestParallelStepJoinsAllBranches(t *testing.T) {
	spec := &config.WorkflowSpec{
		Entrypoint: "fanout",
		Steps: []config.StepSpec{
			{
				Name: "fanout", Type: config.StepParallel,
				Branches: []config.BranchSpec{
					{Name: "b1", Agents: []string{"a1"}},
					{Name: "b2", Agents: []string{"a2"}},
				},
				Join: &config.JoinSpec{Strategy: config.JoinAll},
				Next: []config.ConditionalTarget{{Target: "done"}},
			},
			{Name: "done", Type: config.StepTerminal},
		},
	}
	r := New("w6", spec, fakeAgents{replies: map[string]string{"a1": "x", "a2": "y"}}, nil, nil, nil)
	run, err := r.Start(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	branches, ok := run.Snapshot().Data["branches"].(map[string]any)
	if !ok || branches["b1"] != "x" || branches["b2"] != "y" {
		t.Fatalf("branches = %v", run.Snapshot().Data["branches"])
	}
}

func TestErrorHandlerJumpOnFailure(t *testing.T) {
	spec := &config.WorkflowSpec{
		Entrypoint: "validate",
		Steps: []config.StepSpec{
			{
				Name: "validate", Type: config.StepAgent, Agent: "producer",
				Validators: []config.ValidatorSpec{{Type: config.ValidatorFunction, Name: "must_fail"}},
				Next:       []config.ConditionalTarget{{Target: "done"}},
			},
			{Name: "done", Type: config.StepTerminal, Status: "completed"},
			{Name: "recover", Type: config.StepTerminal, Status: "failed"},
		},
		ErrorHandler: "recover",
	}
	validators := map[string]ValidatorFunc{
		"must_fail": func(state map[string]any) error { return errBoom },
	}
	r := New("w7", spec, fakeAgents{replies: map[string]string{"producer": "x"}}, validators, nil, nil)
	run, err := r.Start(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if run.Snapshot().Status != StatusFailed {
		t.Fatalf("status = %v, want failed via error_handler", run.Snapshot().Status)
	}
}

var errBoom = &testErr{"validation failed"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

// flakyAgents fails its first N calls to a given agent name, then
// succeeds, so a retry policy's attempt counting can be verified.
type flakyAgents struct {
	failures map[string]int
	replies  map[string]string
}

func (f *flakyAgents) Execute(ctx context.Context, name, input string) (string, error) {
	if f.failures[name] > 0 {
		f.failures[name]--
		return "", errBoom
	}
	return f.replies[name], nil
}

func TestRetryPolicyRecoversAfterTransientFailures(t *testing.T) {
	spec := &config.WorkflowSpec{
		Entrypoint: "flaky",
		Steps: []config.StepSpec{
			{Name: "flaky", Type: config.StepAgent, Agent: "producer", Next: []config.ConditionalTarget{{Target: "done"}}},
			{Name: "done", Type: config.StepTerminal},
		},
		Retry: &config.RetryPolicy{MaxAttempts: 3, Backoff: "aggressive"},
	}
	agents := &flakyAgents{failures: map[string]int{"producer": 2}, replies: map[string]string{"producer": "ok"}}
	r := New("w8", spec, agents, nil, nil, nil)
	run, err := r.Start(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if run.Snapshot().Status != StatusCompleted {
		t.Fatalf("status = %v, err = %s, want completed after retries", run.Snapshot().Status, run.Snapshot().Err)
	}
}

func TestRetryPolicyExhaustsAttemptsAndFails(t *testing.T) {
	spec := &config.WorkflowSpec{
		Entrypoint: "flaky",
		Steps: []config.StepSpec{
			{Name: "flaky", Type: config.StepAgent, Agent: "producer", Next: []config.ConditionalTarget{{Target: "done"}}},
			{Name: "done", Type: config.StepTerminal},
		},
		Retry: &config.RetryPolicy{MaxAttempts: 2, Backoff: "aggressive"},
	}
	agents := &flakyAgents{failures: map[string]int{"producer": 5}, replies: map[string]string{"producer": "ok"}}
	r := New("w9", spec, agents, nil, nil, nil)
	run, err := r.Start(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if run.Snapshot().Status != StatusFailed {
		t.Fatalf("status = %v, want failed once attempts are exhausted", run.Snapshot().Status)
	}
}

type recordingSink struct {
	events []Event
}

func (s *recordingSink) Emit(ev Event) {
	s.events = append(s.events, ev)
}

func TestLinearWorkflowEmitsStepAndRunEvents(t *testing.T) {
	spec := &config.WorkflowSpec{
		Entrypoint: "collect",
		Steps: []config.StepSpec{
			{Name: "collect", Type: config.StepAgent, Agent: "collector", Next: []config.ConditionalTarget{{Target: "done"}}},
			{Name: "done", Type: config.StepTerminal},
		},
	}
	var sink recordingSink
	r := New("w10", spec, fakeAgents{replies: map[string]string{"collector": "hello"}}, nil, nil, &sink)
	if _, err := r.Start(context.Background(), map[string]any{}); err != nil {
		t.Fatal(err)
	}

	var types []EventType
	for _, ev := range sink.events {
		types = append(types, ev.Type)
	}
	want := []EventType{
		EventStepStarted, EventStepCompleted,
		EventStepStarted, EventStepCompleted,
		EventRunCompleted,
	}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, types[i], want[i])
		}
	}
}

func TestApprovalStepEmitsWaitingApprovalWithApprovers(t *testing.T) {
	spec := &config.WorkflowSpec{
		Entrypoint: "gate",
		Steps: []config.StepSpec{
			{
				Name: "gate", Type: config.StepApproval, Timeout: "1h", Approvers: []string{"alice", "bob"},
				Next: []config.ConditionalTarget{
					{Condition: "approved", Target: "go"},
					{Condition: "rejected", Target: "stop"},
				},
			},
			{Name: "go", Type: config.StepTerminal, Status: "completed"},
			{Name: "stop", Type: config.StepTerminal, Status: "failed"},
		},
	}
	var sink recordingSink
	r := New("w11", spec, fakeAgents{}, nil, nil, &sink)

	done := make(chan *RunState, 1)
	go func() {
		run, _ := r.Start(context.Background(), nil)
		done <- run
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Start should have returned once the approval step parked")
	}

	var found *Event
	for i, ev := range sink.events {
		if ev.Type == EventWaitingApproval {
			found = &sink.events[i]
			break
		}
	}
	if found == nil {
		t.Fatal("expected a waiting_approval event")
	}
	if found.Step != "gate" {
		t.Errorf("Step = %q, want gate", found.Step)
	}
	if len(found.Approvers) != 2 || found.Approvers[0] != "alice" || found.Approvers[1] != "bob" {
		t.Errorf("Approvers = %v, want [alice bob]", found.Approvers)
	}
}

func TestBackoffPolicyForNames(t *testing.T) {
	if backoffPolicyFor("aggressive") != backoff.AggressivePolicy() {
		t.Error("aggressive name did not select AggressivePolicy")
	}
	if backoffPolicyFor("conservative") != backoff.ConservativePolicy() {
		t.Error("conservative name did not select ConservativePolicy")
	}
	if backoffPolicyFor("unknown") != backoff.DefaultPolicy() {
		t.Error("unrecognised name did not fall back to DefaultPolicy")
	}
}
