// Package fleet implements the Fleet Coordinator (C5): the five
// coordination modes over agents borrowed by name from the Runtime
// Registry. Grounded on the teacher's internal/multiagent/orchestrator.go
// mutex-protected state-machine shape and internal/multiagent/router.go's
// distribution strategies, reworked around fleet coordination instead of
// handoff routing (see DESIGN.md).
package fleet

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aof-dev/aof/pkg/kernel/consensus"
	"github.com/aof-dev/aof/pkg/kernel/registry"
)

// Status is the FleetState status machine (spec §4.5).
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusShuttingDown Status = "shutting_down"
)

// InstanceStatus is a per-agent-instance lifecycle status.
type InstanceStatus string

const (
	InstanceStarting InstanceStatus = "starting"
	InstanceIdle     InstanceStatus = "idle"
	InstanceBusy     InstanceStatus = "busy"
	InstanceStopped  InstanceStatus = "stopped"
	InstanceFailed   InstanceStatus = "failed"
)

// CoordinationMode is one of the five coordination disciplines.
type CoordinationMode string

const (
	Hierarchical CoordinationMode = "hierarchical"
	Peer         CoordinationMode = "peer"
	Pipeline     CoordinationMode = "pipeline"
	Swarm        CoordinationMode = "swarm"
	Tiered       CoordinationMode = "tiered"
)

// Distribution selects how a hierarchical/swarm fleet picks a worker.
type Distribution string

const (
	RoundRobin  Distribution = "round_robin"
	LeastLoaded Distribution = "least_loaded"
	Random      Distribution = "random"
	SkillBased  Distribution = "skill_based"
	Sticky      Distribution = "sticky"
)

// Aggregation selects how a tiered fleet's final result is computed.
type Aggregation string

const (
	AggConsensus         Aggregation = "consensus"
	AggMerge             Aggregation = "merge"
	AggManagerSynthesis Aggregation = "manager_synthesis"
)

// Member is one configured agent slot in a fleet (spec §3 FleetAgent).
type Member struct {
	AgentName string
	Replicas  int
	Role      string
	Tier      int
	Weight    float64
	Labels    []string
}

// TierConfig configures one tier of a Tiered fleet.
type TierConfig struct {
	Tier           int
	Consensus      consensus.Config
	PassAllResults bool
}

// Config configures a Fleet's coordination behavior.
type Config struct {
	Members          []Member
	Mode             CoordinationMode
	ManagerName      string
	Distribution     Distribution
	Consensus        consensus.Config
	Tiers            []TierConfig
	FinalAggregation Aggregation
}

// Instance is one logical replica of a fleet member.
type Instance struct {
	ID             string
	AgentName      string
	Tier           int
	Weight         float64
	Labels         []string
	Status         InstanceStatus
	TasksProcessed int
}

// TaskStatus is a FleetTask's lifecycle status.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is one unit of work submitted to the fleet (spec §4.5 FleetTask).
type Task struct {
	ID          string
	Input       string
	Status      TaskStatus
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	AssignedTo  string
	Result      map[string]any
	Error       string
}

// Fleet owns FleetState: the status machine, instance table, and task
// queue, plus dispatch-by-mode execution over the Runtime Registry.
type Fleet struct {
	mu sync.Mutex

	name   string
	cfg    Config
	reg    *registry.Registry
	logger *slog.Logger

	status    Status
	instances []*Instance
	queue     []*Task
	completed []*Task

	rrCounter int
}

// New builds a Fleet bound to a shared Runtime Registry.
func New(name string, cfg Config, reg *registry.Registry, logger *slog.Logger) *Fleet {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fleet{
		name:   name,
		cfg:    cfg,
		reg:    reg,
		status: StatusInitializing,
		logger: logger.With("component", "fleet", "fleet", name),
	}
}

// Start creates replica instance-state entries for every configured
// member. It assumes each member's agent has already been loaded into
// the registry (spec §4.5: "loads each FleetAgent into the registry").
func (f *Fleet) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.cfg.Members {
		if !f.reg.Has(m.AgentName) {
			return fmt.Errorf("fleet %s: agent %q not loaded in registry", f.name, m.AgentName)
		}
		replicas := m.Replicas
		if replicas <= 0 {
			replicas = 1
		}
		for i := 0; i < replicas; i++ {
			f.instances = append(f.instances, &Instance{
				ID:        uuid.NewString(),
				AgentName: m.AgentName,
				Tier:      m.Tier,
				Weight:    m.Weight,
				Labels:    m.Labels,
				Status:    InstanceIdle,
			})
		}
	}
	f.status = StatusReady
	return nil
}

// Stop cancels queued tasks and marks every instance Stopped.
func (f *Fleet) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = nil
	for _, inst := range f.instances {
		inst.Status = InstanceStopped
	}
	f.status = StatusShuttingDown
}

// SubmitTask enqueues a new task and returns its id.
func (f *Fleet) SubmitTask(input string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &Task{ID: uuid.NewString(), Input: input, Status: TaskPending, CreatedAt: time.Now()}
	f.queue = append(f.queue, t)
	return t.ID
}

func (f *Fleet) dequeue() *Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil
	}
	t := f.queue[0]
	f.queue = f.queue[1:]
	return t
}

func (f *Fleet) finish(t *Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.CompletedAt = time.Now()
	f.completed = append(f.completed, t)
}

// instancesFor returns every instance for the named agent.
func (f *Fleet) instancesFor(agentName string) []*Instance {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Instance
	for _, inst := range f.instances {
		if inst.AgentName == agentName {
			out = append(out, inst)
		}
	}
	return out
}

// allWorkerInstances returns every instance whose agent is not the
// fleet's manager.
func (f *Fleet) allWorkerInstances() []*Instance {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Instance
	for _, inst := range f.instances {
		if inst.AgentName != f.cfg.ManagerName {
			out = append(out, inst)
		}
	}
	return out
}

func (f *Fleet) tierInstances(tier int) []*Instance {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Instance
	for _, inst := range f.instances {
		if inst.Tier == tier {
			out = append(out, inst)
		}
	}
	return out
}

// setBusy/setIdle flip one instance's status under the fleet lock,
// never held across agent execution (spec §5: "the lock is never held
// across agent execution").
func (f *Fleet) setBusy(inst *Instance) {
	f.mu.Lock()
	inst.Status = InstanceBusy
	f.mu.Unlock()
}

func (f *Fleet) setIdle(inst *Instance, ok bool) {
	f.mu.Lock()
	if ok {
		inst.Status = InstanceIdle
		inst.TasksProcessed++
	} else {
		inst.Status = InstanceFailed
	}
	f.mu.Unlock()
}

func (f *Fleet) runOn(ctx context.Context, inst *Instance, input string) (string, error) {
	f.setBusy(inst)
	text, err := f.reg.Execute(ctx, inst.AgentName, input)
	f.setIdle(inst, err == nil)
	return text, err
}

// pickWorker selects one worker instance per dist, the distribution
// strategy in force for this dispatch (spec §4.5).
func (f *Fleet) pickWorker(taskSkills []string, taskType string, dist Distribution) (*Instance, error) {
	workers := f.allWorkerInstances()
	if len(workers) == 0 {
		return nil, fmt.Errorf("fleet %s: no worker instances available", f.name)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })

	switch dist {
	case LeastLoaded:
		best := workers[0]
		for _, w := range workers[1:] {
			if w.TasksProcessed < best.TasksProcessed {
				best = w
			}
		}
		return best, nil
	case Random:
		return workers[rand.Intn(len(workers))], nil
	case SkillBased:
		for _, w := range workers {
			if hasAnyLabel(w.Labels, taskSkills) {
				return w, nil
			}
		}
		return workers[0], nil
	case Sticky:
		h := fnv.New32a()
		_, _ = h.Write([]byte(taskType))
		return workers[int(h.Sum32())%len(workers)], nil
	default: // RoundRobin
		f.mu.Lock()
		idx := f.rrCounter % len(workers)
		f.rrCounter++
		f.mu.Unlock()
		return workers[idx], nil
	}
}

func hasAnyLabel(labels, want []string) bool {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

// ExecuteNext dequeues one task and dispatches it by CoordinationMode.
func (f *Fleet) ExecuteNext(ctx context.Context) (*Task, error) {
	t := f.dequeue()
	if t == nil {
		return nil, nil
	}
	t.Status = TaskRunning
	t.StartedAt = time.Now()

	var err error
	switch f.cfg.Mode {
	case Hierarchical:
		err = f.dispatchHierarchical(ctx, t, true)
	case Swarm:
		err = f.dispatchHierarchical(ctx, t, false)
	case Peer:
		err = f.dispatchPeer(ctx, t)
	case Pipeline:
		err = f.dispatchPipeline(ctx, t)
	case Tiered:
		err = f.dispatchTiered(ctx, t)
	default:
		err = fmt.Errorf("fleet %s: unknown coordination mode %q", f.name, f.cfg.Mode)
	}

	if err != nil {
		t.Status = TaskFailed
		t.Error = err.Error()
	} else if t.Status != TaskFailed {
		t.Status = TaskCompleted
	}
	f.finish(t)
	return t, err
}

func (f *Fleet) dispatchHierarchical(ctx context.Context, t *Task, withManager bool) error {
	input := t.Input
	if withManager {
		mgrInstances := f.instancesFor(f.cfg.ManagerName)
		if len(mgrInstances) == 0 {
			return fmt.Errorf("fleet %s: manager %q has no instances", f.name, f.cfg.ManagerName)
		}
		prompt := fmt.Sprintf("Task: %s\nAvailable workers: %s", t.Input, workerNames(f.allWorkerInstances()))
		mgrText, err := f.runOn(ctx, mgrInstances[0], prompt)
		if err != nil {
			return fmt.Errorf("manager failed: %w", err)
		}
		if t.Result == nil {
			t.Result = map[string]any{}
		}
		t.Result["manager_response"] = mgrText
	}

	// Swarm mode (withManager false) has no manager ranking workers, so
	// spec §4.5 pins its distribution to LeastLoaded regardless of the
	// fleet's configured Distribution, which only governs Hierarchical.
	dist := f.cfg.Distribution
	if !withManager {
		dist = LeastLoaded
	}
	worker, err := f.pickWorker(nil, "default", dist)
	if err != nil {
		return err
	}
	t.AssignedTo = worker.AgentName
	workerText, err := f.runOn(ctx, worker, input)
	if err != nil {
		return fmt.Errorf("worker %q failed: %w", worker.AgentName, err)
	}
	if t.Result == nil {
		t.Result = map[string]any{}
	}
	t.Result["response"] = workerText
	return nil
}

func workerNames(instances []*Instance) string {
	seen := map[string]bool{}
	var names []string
	for _, i := range instances {
		if !seen[i.AgentName] {
			seen[i.AgentName] = true
			names = append(names, i.AgentName)
		}
	}
	sort.Strings(names)
	return fmt.Sprintf("%v", names)
}

func (f *Fleet) dispatchPeer(ctx context.Context, t *Task) error {
	results, err := f.runParallel(ctx, f.allWorkerInstances(), t.Input)
	if err != nil {
		return err
	}
	cr := consensus.Reduce(results, f.cfg.Consensus)
	if t.Result == nil {
		t.Result = map[string]any{}
	}
	if !cr.Reached {
		t.Status = TaskFailed
		t.Error = cr.ReviewReason
		return nil
	}
	t.Result["response"] = cr.Response
	t.Result["confidence"] = cr.Confidence
	t.Result["votes"] = cr.Votes
	t.Result["requires_review"] = cr.RequiresHumanReview
	return nil
}

func (f *Fleet) dispatchPipeline(ctx context.Context, t *Task) error {
	members := make([]Member, len(f.cfg.Members))
	copy(members, f.cfg.Members)

	current := t.Input
	var prevStage string
	for _, m := range members {
		instances := f.instancesFor(m.AgentName)
		if len(instances) == 0 {
			return fmt.Errorf("fleet %s: stage %q has no instances", f.name, m.AgentName)
		}
		stageInput := fmt.Sprintf("previous_stage: %s\ninput: %s", prevStage, current)
		out, err := f.runOn(ctx, instances[0], stageInput)
		if err != nil {
			return fmt.Errorf("pipeline stage %q failed: %w", m.AgentName, err)
		}
		prevStage = m.AgentName
		current = out
	}
	if t.Result == nil {
		t.Result = map[string]any{}
	}
	t.Result["output"] = current
	return nil
}

func (f *Fleet) dispatchTiered(ctx context.Context, t *Task) error {
	tiers := distinctTiers(f.cfg.Members)
	sort.Ints(tiers)
	if len(tiers) == 1 {
		f.logger.Warn("tiered fleet has only one tier; behaves like peer")
	}

	input := t.Input
	var tierResults []map[string]any
	var lastConsensus consensus.Result

	for _, tierNum := range tiers {
		instances := f.tierInstances(tierNum)
		results, err := f.runParallel(ctx, instances, input)
		if err != nil {
			return err
		}
		tierCfg := f.tierConfig(tierNum)
		cr := consensus.Reduce(results, tierCfg.Consensus)
		lastConsensus = cr

		tierResults = append(tierResults, map[string]any{
			"tier":       tierNum,
			"result":     cr.Response,
			"confidence": cr.Confidence,
			"votes":      cr.Votes,
		})

		if tierCfg.PassAllResults {
			input = fmt.Sprintf("original_input: %s\ntier_results: %v\nconsensus: %s", t.Input, results, cr.Response)
		} else {
			input = cr.Response
		}
	}

	if t.Result == nil {
		t.Result = map[string]any{}
	}
	t.Result["tier_count"] = len(tiers)

	switch f.cfg.FinalAggregation {
	case AggMerge:
		t.Result["tiers"] = tierResults
	case AggManagerSynthesis:
		mgrInstances := f.instancesFor(f.cfg.ManagerName)
		if len(mgrInstances) == 0 {
			t.Result["tiers"] = tierResults
		} else {
			synthesis, err := f.runOn(ctx, mgrInstances[0], fmt.Sprintf("task: %s\ntier_results: %v\ninstructions: synthesize a final answer", t.Input, tierResults))
			if err != nil {
				return fmt.Errorf("manager synthesis failed: %w", err)
			}
			t.Result["response"] = synthesis
		}
	default: // AggConsensus
		t.Result["response"] = lastConsensus.Response
		t.Result["confidence"] = lastConsensus.Confidence
	}
	return nil
}

func (f *Fleet) tierConfig(tier int) TierConfig {
	for _, tc := range f.cfg.Tiers {
		if tc.Tier == tier {
			return tc
		}
	}
	return TierConfig{Tier: tier, Consensus: f.cfg.Consensus}
}

func distinctTiers(members []Member) []int {
	seen := map[int]bool{}
	var out []int
	for _, m := range members {
		tier := m.Tier
		if tier <= 0 {
			tier = 1
		}
		if !seen[tier] {
			seen[tier] = true
			out = append(out, tier)
		}
	}
	return out
}

// runParallel executes input on every instance fully in parallel (spec
// §4.5/§5: peer and tier steps are fully parallel). Result order is not
// guaranteed; CompletedAt is stamped so the Consensus Engine's
// tie-breaks remain meaningful despite concurrent completion.
func (f *Fleet) runParallel(ctx context.Context, instances []*Instance, input string) ([]consensus.AgentResult, error) {
	results := make([]consensus.AgentResult, len(instances))
	var seq int64
	var seqMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, inst := range instances {
		i, inst := i, inst
		g.Go(func() error {
			text, err := f.runOn(gctx, inst, input)
			seqMu.Lock()
			seq++
			order := seq
			seqMu.Unlock()
			if err != nil {
				results[i] = consensus.AgentResult{AgentName: inst.AgentName, Tier: inst.Tier, Weight: inst.Weight, Response: "", CompletedAt: order}
				return nil
			}
			results[i] = consensus.AgentResult{AgentName: inst.AgentName, Tier: inst.Tier, Weight: inst.Weight, Response: text, CompletedAt: order}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Status returns the fleet's current FleetState status.
func (f *Fleet) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}
