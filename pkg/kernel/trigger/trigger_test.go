package trigger

import (
	"context"
	"regexp"
	"testing"
)

type fakePlatform struct {
	replies   []string
	reactions [][]string
	ran       []string
}

func (f *fakePlatform) Reply(ctx context.Context, channelID, threadID, text string) (string, error) {
	f.replies = append(f.replies, text)
	return "ts-1", nil
}

func (f *fakePlatform) AddReactions(ctx context.Context, channelID, messageTS string, reactions []string) error {
	f.reactions = append(f.reactions, reactions)
	return nil
}

func (f *fakePlatform) RunCommand(ctx context.Context, command string) (string, string, error) {
	f.ran = append(f.ran, command)
	return "done", "", nil
}

type fakeFlows struct{ ran []string }

func (f *fakeFlows) Run(ctx context.Context, name string, data map[string]any) error {
	f.ran = append(f.ran, name)
	return nil
}

type fakeAgents struct{ reply string }

func (f fakeAgents) Execute(ctx context.Context, name, input string) (string, error) {
	return f.reply, nil
}

func TestSlashCommandDispatchesToAgent(t *testing.T) {
	p := &fakePlatform{}
	h := New(Config{}, p, &fakeFlows{}, fakeAgents{reply: "pong"}, map[string]CommandBinding{
		"ping": {Target: "agent", Name: "ping-agent"},
	})
	err := h.Handle(context.Background(), Message{Platform: "slack", ChannelID: "C1", UserID: "U1", Text: "/ping"})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.replies) != 1 || p.replies[0] != "pong" {
		t.Errorf("replies = %v", p.replies)
	}
}

func TestFlowRouterBeatsSlashCommandAndDefaultAgent(t *testing.T) {
	p := &fakePlatform{}
	flows := &fakeFlows{}
	h := New(Config{DefaultAgent: "fallback"}, p, flows, fakeAgents{reply: "ignored"}, nil)
	h.RegisterFlow(FlowDescriptor{Name: "deploy-flow", Platform: "slack", Channels: []string{"C1"}})

	if err := h.Handle(context.Background(), Message{Platform: "slack", ChannelID: "C1", UserID: "U1", Text: "deploy please"}); err != nil {
		t.Fatal(err)
	}
	if len(flows.ran) != 1 || flows.ran[0] != "deploy-flow" {
		t.Fatalf("flows ran = %v", flows.ran)
	}
}

func TestFlowRouterTieBreaksByRegistrationOrder(t *testing.T) {
	p := &fakePlatform{}
	flows := &fakeFlows{}
	h := New(Config{}, p, flows, fakeAgents{}, nil)
	h.RegisterFlow(FlowDescriptor{Name: "first", Platform: "slack"})
	h.RegisterFlow(FlowDescriptor{Name: "second", Platform: "slack"})

	d, ok := h.matchFlow(Message{Platform: "slack", Text: "hello"})
	if !ok || d.Name != "first" {
		t.Fatalf("matched = %+v, ok = %v, want first", d, ok)
	}
}

func TestPatternMatchBeatsBaseScore(t *testing.T) {
	p := &fakePlatform{}
	flows := &fakeFlows{}
	h := New(Config{}, p, flows, fakeAgents{}, nil)
	h.RegisterFlow(FlowDescriptor{Name: "generic", Platform: "slack"})
	h.RegisterFlow(FlowDescriptor{Name: "incident", Platform: "slack", Patterns: []*regexp.Regexp{regexp.MustCompile(`(?i)incident`)}})

	d, ok := h.matchFlow(Message{Platform: "slack", Text: "we have an INCIDENT"})
	if !ok || d.Name != "incident" {
		t.Fatalf("matched = %+v, ok = %v, want incident", d, ok)
	}
}

func TestNaturalLanguageFallbackUsesDefaultAgent(t *testing.T) {
	p := &fakePlatform{}
	h := New(Config{DefaultAgent: "helper"}, p, &fakeFlows{}, fakeAgents{reply: "sure, done"}, nil)
	if err := h.Handle(context.Background(), Message{Platform: "slack", ChannelID: "C1", UserID: "U1", Text: "can you help"}); err != nil {
		t.Fatal(err)
	}
	if len(p.replies) != 1 || p.replies[0] != "sure, done" {
		t.Errorf("replies = %v", p.replies)
	}
}

func TestApprovalRequestPostsPromptAndReactions(t *testing.T) {
	p := &fakePlatform{}
	reply := `ok, running that.
requires_approval: true
command: "rm -rf /tmp/cache"`
	h := New(Config{DefaultAgent: "ops"}, p, &fakeFlows{}, fakeAgents{reply: reply}, nil)
	if err := h.Handle(context.Background(), Message{Platform: "slack", ChannelID: "C1", UserID: "U1", Text: "clear cache"}); err != nil {
		t.Fatal(err)
	}
	if len(p.reactions) != 1 {
		t.Fatalf("reactions posted = %v", p.reactions)
	}
	h.mu.Lock()
	_, pending := h.pending["ts-1"]
	h.mu.Unlock()
	if !pending {
		t.Fatal("expected a PendingApproval keyed by message ts")
	}
}

func TestApproveReactionRunsCommand(t *testing.T) {
	p := &fakePlatform{}
	h := New(Config{}, p, &fakeFlows{}, fakeAgents{}, nil)
	h.mu.Lock()
	h.pending["ts-1"] = PendingApproval{Command: "echo hi", ChannelID: "C1"}
	h.mu.Unlock()

	err := h.Handle(context.Background(), Message{Platform: "slack", EventType: "reaction_added", ReactionTS: "ts-1", Reaction: "white_check_mark", UserID: "U1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.ran) != 1 || p.ran[0] != "echo hi" {
		t.Errorf("ran = %v", p.ran)
	}
}

func TestDenyReactionDropsPendingWithoutRunning(t *testing.T) {
	p := &fakePlatform{}
	h := New(Config{}, p, &fakeFlows{}, fakeAgents{}, nil)
	h.mu.Lock()
	h.pending["ts-1"] = PendingApproval{Command: "echo hi", ChannelID: "C1"}
	h.mu.Unlock()

	err := h.Handle(context.Background(), Message{Platform: "slack", EventType: "reaction_added", ReactionTS: "ts-1", Reaction: "x", UserID: "U1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.ran) != 0 {
		t.Errorf("ran = %v, expected no command execution", p.ran)
	}
	h.mu.Lock()
	_, stillPending := h.pending["ts-1"]
	h.mu.Unlock()
	if stillPending {
		t.Error("pending entry should have been consumed")
	}
}

func TestUnauthorizedApproverReinsertsPending(t *testing.T) {
	p := &fakePlatform{}
	h := New(Config{CanApprove: func(string) bool { return false }}, p, &fakeFlows{}, fakeAgents{}, nil)
	h.mu.Lock()
	h.pending["ts-1"] = PendingApproval{Command: "echo hi", ChannelID: "C1"}
	h.mu.Unlock()

	err := h.Handle(context.Background(), Message{Platform: "slack", EventType: "reaction_added", ReactionTS: "ts-1", Reaction: "white_check_mark", UserID: "U1"})
	if err != nil {
		t.Fatal(err)
	}
	h.mu.Lock()
	_, stillPending := h.pending["ts-1"]
	h.mu.Unlock()
	if !stillPending {
		t.Error("pending entry should be re-inserted on unauthorized approval attempt")
	}
}

func TestPerUserConcurrentTaskCap(t *testing.T) {
	p := &fakePlatform{}
	h := New(Config{MaxPerUserTasks: 1, DefaultAgent: "slow"}, p, &fakeFlows{}, fakeAgents{reply: "ok"}, nil)
	release, ok := h.acquireSlot("U1")
	if !ok {
		t.Fatal("expected first slot to be acquired")
	}
	defer release()

	err := h.Handle(context.Background(), Message{Platform: "slack", ChannelID: "C1", UserID: "U1", Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.replies) != 1 || p.replies[0] == "ok" {
		t.Errorf("replies = %v, expected an overload message", p.replies)
	}
}
