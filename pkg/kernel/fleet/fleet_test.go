package fleet

import (
	"context"
	"testing"

	"github.com/aof-dev/aof/pkg/kernel/agent"
	"github.com/aof-dev/aof/pkg/kernel/consensus"
	"github.com/aof-dev/aof/pkg/kernel/model"
	"github.com/aof-dev/aof/pkg/kernel/registry"
)

type fixedModel struct{ text string }

func (m fixedModel) Invoke(ctx context.Context, messages []model.Message, tools []model.ToolDefinition, opts model.Options) (model.Completion, error) {
	return model.Completion{Text: m.text}, nil
}

func newRegistryWithAgents(t *testing.T, agents map[string]string) *registry.Registry {
	t.Helper()
	reg := registry.New(nil)
	for name, reply := range agents {
		ex := agent.New(agent.Config{Name: name}, fixedModel{text: reply}, nil, nil, nil)
		if err := reg.Load(name, ex); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func TestPeerFleetMajorityConsensus(t *testing.T) {
	reg := newRegistryWithAgents(t, map[string]string{
		"a1": "ok",
		"a2": "ok",
		"a3": "nope",
	})
	cfg := Config{
		Members: []Member{
			{AgentName: "a1"}, {AgentName: "a2"}, {AgentName: "a3"},
		},
		Mode:      Peer,
		Consensus: consensus.Config{Algorithm: consensus.Majority, MinVotes: 2},
	}
	f := New("three-way", cfg, reg, nil)
	if err := f.Start(); err != nil {
		t.Fatal(err)
	}
	f.SubmitTask("vote")
	task, err := f.ExecuteNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != TaskCompleted {
		t.Fatalf("task status = %v, error = %v", task.Status, task.Error)
	}
	if task.Result["response"] != "ok" {
		t.Errorf("response = %v, want ok", task.Result["response"])
	}
	if task.Result["votes"] != 2 {
		t.Errorf("votes = %v, want 2", task.Result["votes"])
	}
}

func TestPipelineFleetSequencesStages(t *testing.T) {
	reg := newRegistryWithAgents(t, map[string]string{
		"collect": "collected-data",
		"analyze": "final-report",
	})
	cfg := Config{
		Members: []Member{{AgentName: "collect"}, {AgentName: "analyze"}},
		Mode:    Pipeline,
	}
	f := New("pipe", cfg, reg, nil)
	if err := f.Start(); err != nil {
		t.Fatal(err)
	}
	f.SubmitTask("go")
	task, err := f.ExecuteNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if task.Result["output"] != "final-report" {
		t.Errorf("output = %v", task.Result["output"])
	}
}

func TestTieredFleetMergeAggregation(t *testing.T) {
	reg := newRegistryWithAgents(t, map[string]string{
		"collector1": `{"finding":"a"}`,
		"collector2": `{"finding":"b"}`,
		"reasoner":   "root cause identified",
	})
	cfg := Config{
		Members: []Member{
			{AgentName: "collector1", Tier: 1},
			{AgentName: "collector2", Tier: 1},
			{AgentName: "reasoner", Tier: 2},
		},
		Mode: Tiered,
		Tiers: []TierConfig{
			{Tier: 1, Consensus: consensus.Config{Algorithm: consensus.Majority, AllowPartial: true}, PassAllResults: true},
			{Tier: 2, Consensus: consensus.Config{Algorithm: consensus.FirstWins, AllowPartial: true}},
		},
		FinalAggregation: AggMerge,
	}
	f := New("rca", cfg, reg, nil)
	if err := f.Start(); err != nil {
		t.Fatal(err)
	}
	f.SubmitTask("diagnose outage")
	task, err := f.ExecuteNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if task.Result["tier_count"] != 2 {
		t.Errorf("tier_count = %v, want 2", task.Result["tier_count"])
	}
	tiers, ok := task.Result["tiers"].([]map[string]any)
	if !ok || len(tiers) != 2 {
		t.Fatalf("tiers = %v", task.Result["tiers"])
	}
}

func TestSwarmFleetIgnoresConfiguredDistributionForLeastLoaded(t *testing.T) {
	reg := newRegistryWithAgents(t, map[string]string{
		"worker1": "done1",
		"worker2": "done2",
	})
	cfg := Config{
		Members: []Member{
			{AgentName: "worker1"},
			{AgentName: "worker2"},
		},
		Mode: Swarm,
		// RoundRobin would alternate between workers; Swarm must force
		// LeastLoaded regardless, so every task lands on the least busy
		// worker instead.
		Distribution: RoundRobin,
	}
	f := New("swarm", cfg, reg, nil)
	if err := f.Start(); err != nil {
		t.Fatal(err)
	}

	f.SubmitTask("task1")
	first, err := f.ExecuteNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	f.SubmitTask("task2")
	second, err := f.ExecuteNext(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if first.AssignedTo == second.AssignedTo {
		t.Errorf("both tasks assigned to %q; least-loaded should have picked the other worker once the first became more loaded", first.AssignedTo)
	}
}
