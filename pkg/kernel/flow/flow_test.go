package flow

import (
	"context"
	"testing"
	"time"

	"github.com/aof-dev/aof/internal/config"
)

type fakeAgents struct {
	replies map[string]string
	loaded  map[string]bool
}

func (f *fakeAgents) Execute(ctx context.Context, name, input string) (string, error) {
	return f.replies[name], nil
}

func (f *fakeAgents) Has(name string) bool {
	return f.loaded[name]
}

func newFakeAgents(replies map[string]string) *fakeAgents {
	loaded := make(map[string]bool, len(replies))
	for k := range replies {
		loaded[k] = true
	}
	return &fakeAgents{replies: replies, loaded: loaded}
}

func TestLinearFlowRunsAgentNode(t *testing.T) {
	spec := &config.FlowSpec{
		Nodes: []config.NodeSpec{
			{ID: "greet", Type: config.NodeAgent, Config: map[string]any{"agent": "greeter", "input": "hi"}},
			{ID: "sink", Type: config.NodeEnd},
		},
		Connections: []config.ConnectionSpec{
			{From: "trigger", To: "greet"},
			{From: "greet", To: "sink"},
		},
	}
	r := New("f1", spec, newFakeAgents(map[string]string{"greeter": "hello"}), nil, nil, nil, nil, nil)
	st, err := r.Start(context.Background(), "run-1", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	snap := st.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %v, err = %s", snap.Status, snap.Err)
	}
	res := snap.NodeResults["greet"]
	if res == nil || res.Status != NodeCompleted {
		t.Fatalf("greet result = %+v", res)
	}
	out := res.Output.(map[string]any)
	if out["output"] != "hello" {
		t.Errorf("output = %v", out["output"])
	}
}

func TestConditionalNodeGatesSuccessor(t *testing.T) {
	spec := &config.FlowSpec{
		Nodes: []config.NodeSpec{
			{ID: "check", Type: config.NodeConditional, Config: map[string]any{"condition": `state.variables.ready == "yes"`}},
			{ID: "go", Type: config.NodeEnd, Preconditions: []config.Precondition{{From: "check", Value: boolPtr(true)}}},
			{ID: "stop", Type: config.NodeEnd, Preconditions: []config.Precondition{{From: "check", Value: boolPtr(false)}}},
		},
		Connections: []config.ConnectionSpec{
			{From: "trigger", To: "check"},
			{From: "check", To: "go"},
			{From: "check", To: "stop"},
		},
	}
	r := New("f2", spec, newFakeAgents(nil), nil, nil, nil, nil, nil)
	st, err := r.Start(context.Background(), "run-2", map[string]any{"ready": "yes"})
	if err != nil {
		t.Fatal(err)
	}
	snap := st.Snapshot()
	if snap.NodeResults["go"].Status != NodeCompleted {
		t.Errorf("go status = %v", snap.NodeResults["go"].Status)
	}
	if snap.NodeResults["stop"].Status != NodeSkipped {
		t.Errorf("stop status = %v", snap.NodeResults["stop"].Status)
	}
}

func boolPtr(b bool) *bool { return &b }

func TestTransformNodeSetsVariables(t *testing.T) {
	spec := &config.FlowSpec{
		Nodes: []config.NodeSpec{
			{ID: "setup", Type: config.NodeTransform, Config: map[string]any{"script": "export STAGE=\"prod\"\n# comment\nexport COUNT=3"}},
			{ID: "sink", Type: config.NodeEnd},
		},
		Connections: []config.ConnectionSpec{
			{From: "trigger", To: "setup"},
			{From: "setup", To: "sink"},
		},
	}
	r := New("f3", spec, newFakeAgents(nil), nil, nil, nil, nil, nil)
	st, err := r.Start(context.Background(), "run-3", nil)
	if err != nil {
		t.Fatal(err)
	}
	snap := st.Snapshot()
	if snap.Variables["STAGE"] != "prod" || snap.Variables["COUNT"] != "3" {
		t.Errorf("variables = %v", snap.Variables)
	}
}

type waitingSlack struct{ sent chan string }

func (w *waitingSlack) Send(ctx context.Context, channel, message string) (string, error) {
	w.sent <- message
	return "ts-1", nil
}

func TestApprovalNodeParksFlowThenResumes(t *testing.T) {
	spec := &config.FlowSpec{
		Nodes: []config.NodeSpec{
			{ID: "gate", Type: config.NodeApproval},
			{ID: "done", Type: config.NodeEnd, Preconditions: []config.Precondition{{From: "gate"}}},
		},
		Connections: []config.ConnectionSpec{
			{From: "trigger", To: "gate"},
			{From: "gate", To: "done"},
		},
	}
	r := New("f4", spec, newFakeAgents(nil), nil, nil, nil, nil, nil)
	st, err := r.Start(context.Background(), "run-4", nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.Snapshot().Status != StatusWaiting {
		t.Fatalf("status = %v, want waiting", st.Snapshot().Status)
	}

	if err := r.Resume(context.Background(), "run-4", "", true); err != nil {
		t.Fatal(err)
	}
	if st.Snapshot().Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", st.Snapshot().Status)
	}
}

func TestVariableExpansionWithNodeOutputAndEnv(t *testing.T) {
	spec := &config.FlowSpec{
		Nodes: []config.NodeSpec{
			{ID: "greet", Type: config.NodeAgent, Config: map[string]any{"agent": "greeter", "input": "hi"}},
			{ID: "announce", Type: config.NodeSlack, Config: map[string]any{"channel": "${FLOW_CHANNEL}", "message": "said: ${greet.output}"}},
		},
		Connections: []config.ConnectionSpec{
			{From: "trigger", To: "greet"},
			{From: "greet", To: "announce"},
		},
	}
	t.Setenv("FLOW_CHANNEL", "#ops")
	sent := make(chan string, 1)
	r := New("f5", spec, newFakeAgents(map[string]string{"greeter": "hello"}), nil, &waitingSlack{sent: sent}, nil, nil, nil)
	st, err := r.Start(context.Background(), "run-5", nil)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-sent:
		if msg != "said: hello" {
			t.Errorf("message = %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("slack send never happened")
	}
	if st.Snapshot().Status != StatusCompleted {
		t.Fatalf("status = %v", st.Snapshot().Status)
	}
}
