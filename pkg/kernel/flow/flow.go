// Package flow implements the AgentFlow Executor (C7): an event-driven
// node graph traversed wave-by-wave (BFS over ready nodes), dispatching
// to agents and outbound platform collaborators. New code — neither
// example repo has an event-driven node graph with platform side
// effects; the wave-by-wave concurrency shape is grounded on
// internal/multiagent/swarm.go's dependency-wave fan-out
// (DependsOn/CanTrigger scheduling), and per-node event emission on
// internal/agent/event_emitter.go (see DESIGN.md).
package flow

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aof-dev/aof/internal/config"
	"github.com/aof-dev/aof/internal/expr"
)

// Status is a flow run's overall status (spec §4.7).
type Status string

const (
	StatusRunning   Status = "running"
	StatusWaiting   Status = "waiting"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// NodeStatus is one node's outcome within a run.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeSkipped   NodeStatus = "skipped"
	NodeFailed    NodeStatus = "failed"
	NodeWaiting   NodeStatus = "waiting"
)

// NodeResult records one node's dispatch outcome.
type NodeResult struct {
	Status    NodeStatus
	Output    any
	Reaction  string
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
}

// EventType tags a flow-run lifecycle notification.
type EventType string

const (
	EventNodeStarted   EventType = "node_started"
	EventNodeCompleted EventType = "node_completed"
	EventNodeSkipped   EventType = "node_skipped"
	EventNodeFailed    EventType = "node_failed"
	EventWaiting       EventType = "waiting"
)

// Event is one notification emitted during a flow run.
type Event struct {
	Type   EventType
	Node   string
	Reason string
}

// Sink receives flow events; nil is a valid no-op sink.
type Sink interface {
	Emit(Event)
}

// State is one in-flight or completed flow run, guarded by its own lock.
type State struct {
	mu sync.Mutex

	RunID       string
	FlowName    string
	Status      Status
	Variables   map[string]any
	NodeResults map[string]*NodeResult
	WaitingNode string
	Err         string
}

// Snapshot returns a shallow, lock-free copy for reading.
func (s *State) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	return cp
}

// AgentRunner executes a named agent and returns its final text output,
// satisfied by *registry.Registry in production.
type AgentRunner interface {
	Execute(ctx context.Context, name, input string) (string, error)
	Has(name string) bool
}

// AgentLoader builds and registers an agent from an Agent node's inline
// config when the registry doesn't already have it (spec §6's "load into
// the registry if missing" rule). May be nil if every flow in the
// deployment references already-loaded agents by name.
type AgentLoader func(ctx context.Context, name string, inlineConfig map[string]any) error

// SlackSender renders a message to a Slack channel.
type SlackSender interface {
	Send(ctx context.Context, channel, message string) (messageTS string, err error)
}

// DiscordSender renders a message to a Discord channel.
type DiscordSender interface {
	Send(ctx context.Context, channel, message string) error
}

// HTTPDoer performs an outbound HTTP node's request.
type HTTPDoer interface {
	Do(ctx context.Context, method, url string, body string) (status int, respBody string, err error)
}

// envMu serializes the process-wide environment mutation Agent nodes
// apply from a flow's Context block (spec §4.7/§9 pinned resolution).
var envMu sync.Mutex

// Runner drives one AgentFlow definition to completion.
type Runner struct {
	name    string
	spec    *config.FlowSpec
	agents  AgentRunner
	loader  AgentLoader
	slack   SlackSender
	discord DiscordSender
	http    HTTPDoer
	sink    Sink

	mu   sync.Mutex
	runs map[string]*State
}

// New builds a Runner for one AgentFlow definition. Any collaborator may
// be nil if the flow's nodes never reference that platform.
func New(name string, spec *config.FlowSpec, agents AgentRunner, loader AgentLoader, slack SlackSender, discord DiscordSender, http HTTPDoer, sink Sink) *Runner {
	return &Runner{name: name, spec: spec, agents: agents, loader: loader, slack: slack, discord: discord, http: http, sink: sink, runs: make(map[string]*State)}
}

func (r *Runner) emit(ev Event) {
	if r.sink != nil {
		r.sink.Emit(ev)
	}
}

func (r *Runner) nodeByID(id string) (config.NodeSpec, bool) {
	for _, n := range r.spec.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return config.NodeSpec{}, false
}

// Start creates a new run and drives it to completion or its first wait.
func (r *Runner) Start(ctx context.Context, runID string, triggerData map[string]any) (*State, error) {
	st := &State{
		RunID:       runID,
		FlowName:    r.name,
		Status:      StatusRunning,
		Variables:   map[string]any{"trigger": triggerData, "event": triggerData},
		NodeResults: make(map[string]*NodeResult),
	}
	r.mu.Lock()
	r.runs[runID] = st
	r.mu.Unlock()

	return st, r.drive(ctx, st, r.initialNodes())
}

// Get returns a run by id.
func (r *Runner) Get(runID string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[runID]
	return st, ok
}

// Resume delivers an external reaction/approval signal to a waiting run
// and continues the traversal from the waiting node's successors.
func (r *Runner) Resume(ctx context.Context, runID string, reaction string, approved bool) error {
	st, ok := r.Get(runID)
	if !ok {
		return fmt.Errorf("flow run %q not found", runID)
	}
	st.mu.Lock()
	node := st.WaitingNode
	if node == "" {
		st.mu.Unlock()
		return fmt.Errorf("flow run %q is not waiting", runID)
	}
	res := st.NodeResults[node]
	res.Status = NodeCompleted
	res.Reaction = reaction
	res.EndedAt = time.Now()
	if _, ok := res.Output.(map[string]any); !ok {
		res.Output = map[string]any{}
	}
	res.Output.(map[string]any)["approved"] = approved
	st.WaitingNode = ""
	st.Status = StatusRunning
	st.mu.Unlock()

	return r.drive(ctx, st, r.successorsOf(st, node))
}

// initialNodes returns the nodes directly connected from the synthetic
// "trigger" node, or the first declared node if none (spec §4.7).
func (r *Runner) initialNodes() []string {
	var ids []string
	for _, c := range r.spec.Connections {
		if c.From == "trigger" {
			ids = append(ids, c.To)
		}
	}
	if len(ids) == 0 && len(r.spec.Nodes) > 0 {
		ids = append(ids, r.spec.Nodes[0].ID)
	}
	return ids
}

func (r *Runner) successorsOf(st *State, nodeID string) []string {
	st.mu.Lock()
	vars := st.Variables
	results := st.NodeResults
	st.mu.Unlock()

	var out []string
	for _, c := range r.spec.Connections {
		if c.From != nodeID {
			continue
		}
		if c.When == "" {
			out = append(out, c.To)
			continue
		}
		var lastOutput map[string]any
		if res, ok := results[nodeID]; ok {
			if m, ok := res.Output.(map[string]any); ok {
				lastOutput = m
			}
		}
		if expr.Eval(c.When, map[string]any{"variables": vars}, lastOutput) {
			out = append(out, c.To)
		}
	}
	return out
}

// precondSatisfied implements the `{from, value?}` / `{from, reaction?}`
// gate of spec §4.7.
func (r *Runner) precondSatisfied(st *State, pre config.Precondition) bool {
	st.mu.Lock()
	res, ok := st.NodeResults[pre.From]
	st.mu.Unlock()
	if !ok || res.Status != NodeCompleted {
		return false
	}
	if pre.Reaction != "" {
		return res.Reaction == pre.Reaction
	}
	if pre.Value != nil {
		b, _ := res.Output.(bool)
		if m, ok := res.Output.(map[string]any); ok {
			b, _ = m["result"].(bool)
		}
		return b == *pre.Value
	}
	return true
}

// joinReady checks whether all (or, per strategy, enough) of a Join
// node's incoming branches have completed.
func (r *Runner) joinReady(st *State, node config.NodeSpec) bool {
	var incoming []string
	for _, c := range r.spec.Connections {
		if c.To == node.ID {
			incoming = append(incoming, c.From)
		}
	}
	if len(incoming) == 0 {
		return true
	}
	strategy := "all"
	if v, ok := node.Config["strategy"].(string); ok && v != "" {
		strategy = v
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	done := 0
	for _, from := range incoming {
		if res, ok := st.NodeResults[from]; ok && (res.Status == NodeCompleted || res.Status == NodeSkipped) {
			done++
		}
	}
	switch strategy {
	case "any":
		return done >= 1
	case "majority":
		return done >= len(incoming)/2+1
	default:
		return done >= len(incoming)
	}
}

// drive runs the BFS wave loop of spec §4.7 starting from frontier.
func (r *Runner) drive(ctx context.Context, st *State, frontier []string) error {
	deferred := map[string]bool{}

	for len(frontier) > 0 {
		st.mu.Lock()
		if st.Status != StatusRunning {
			st.mu.Unlock()
			return nil
		}
		st.mu.Unlock()

		ready := map[string]bool{}
		for _, id := range frontier {
			node, ok := r.nodeByID(id)
			if !ok {
				continue
			}
			if node.Type == config.NodeJoin && !r.joinReady(st, node) {
				deferred[id] = true
				continue
			}
			ready[id] = true
		}

		type outcome struct {
			id   string
			next []string
			err  error
			wait bool
		}
		results := make(chan outcome, len(ready))
		var wg sync.WaitGroup
		for id := range ready {
			id := id
			wg.Add(1)
			go func() {
				defer wg.Done()
				next, waiting, err := r.runNode(ctx, st, id)
				results <- outcome{id: id, next: next, err: err, wait: waiting}
			}()
		}
		wg.Wait()
		close(results)

		var nextFrontier []string
		seen := map[string]bool{}
		anyWaiting := false
		for o := range results {
			if o.wait {
				anyWaiting = true
				continue
			}
			if o.err != nil {
				st.mu.Lock()
				st.Status = StatusFailed
				st.Err = o.err.Error()
				st.mu.Unlock()
				return nil
			}
			for _, n := range o.next {
				if !seen[n] {
					seen[n] = true
					nextFrontier = append(nextFrontier, n)
				}
			}
		}
		if anyWaiting {
			return nil
		}

		for id := range deferred {
			node, ok := r.nodeByID(id)
			if ok && r.joinReady(st, node) && !seen[id] {
				seen[id] = true
				nextFrontier = append(nextFrontier, id)
				delete(deferred, id)
			}
		}

		frontier = nextFrontier
	}

	st.mu.Lock()
	if st.Status == StatusRunning {
		st.Status = StatusCompleted
	}
	st.mu.Unlock()
	return nil
}

// runNode evaluates preconditions and dispatches one node, returning its
// successor ids (or waiting=true if the node parked the flow).
func (r *Runner) runNode(ctx context.Context, st *State, nodeID string) ([]string, bool, error) {
	node, ok := r.nodeByID(nodeID)
	if !ok {
		return nil, false, fmt.Errorf("node not found: %s", nodeID)
	}

	for _, pre := range node.Preconditions {
		if !r.precondSatisfied(st, pre) {
			st.mu.Lock()
			st.NodeResults[nodeID] = &NodeResult{Status: NodeSkipped, StartedAt: time.Now(), EndedAt: time.Now()}
			st.mu.Unlock()
			r.emit(Event{Type: EventNodeSkipped, Node: nodeID})
			return nil, false, nil
		}
	}

	started := time.Now()
	r.emit(Event{Type: EventNodeStarted, Node: nodeID})

	output, waiting, reason, err := r.dispatch(ctx, st, node)
	if err != nil {
		st.mu.Lock()
		st.NodeResults[nodeID] = &NodeResult{Status: NodeFailed, Error: err.Error(), StartedAt: started, EndedAt: time.Now()}
		st.mu.Unlock()
		r.emit(Event{Type: EventNodeFailed, Node: nodeID, Reason: err.Error()})
		return nil, false, err
	}

	if waiting {
		st.mu.Lock()
		st.NodeResults[nodeID] = &NodeResult{Status: NodeWaiting, Output: output, StartedAt: started}
		st.Status = StatusWaiting
		st.WaitingNode = nodeID
		st.mu.Unlock()
		r.emit(Event{Type: EventWaiting, Node: nodeID, Reason: reason})
		return nil, true, nil
	}

	st.mu.Lock()
	st.NodeResults[nodeID] = &NodeResult{Status: NodeCompleted, Output: output, StartedAt: started, EndedAt: time.Now()}
	if node.Type == config.NodeConditional {
		b, _ := output.(map[string]any)["result"].(bool)
		st.Variables[nodeID+".result"] = b
	}
	st.mu.Unlock()
	r.emit(Event{Type: EventNodeCompleted, Node: nodeID})

	return r.successorsOf(st, nodeID), false, nil
}

func (r *Runner) dispatch(ctx context.Context, st *State, node config.NodeSpec) (output any, waiting bool, waitReason string, err error) {
	switch node.Type {
	case config.NodeTransform:
		return r.dispatchTransform(st, node)
	case config.NodeAgent:
		return r.dispatchAgent(ctx, st, node)
	case config.NodeConditional:
		return r.dispatchConditional(st, node)
	case config.NodeSlack:
		return r.dispatchSlack(ctx, st, node)
	case config.NodeDiscord:
		return r.dispatchDiscord(ctx, st, node)
	case config.NodeHTTP:
		return r.dispatchHTTP(ctx, st, node)
	case config.NodeWait:
		return r.dispatchWait(ctx, node)
	case config.NodeParallel:
		return map[string]any{"branches": node.Config["branches"]}, false, "", nil
	case config.NodeJoin:
		return map[string]any{"joined": true}, false, "", nil
	case config.NodeApproval:
		return map[string]any{}, true, "approval", nil
	case config.NodeEnd:
		return map[string]any{}, false, "", nil
	default:
		return nil, false, "", fmt.Errorf("unknown node type: %s", node.Type)
	}
}

var exportLine = regexp.MustCompile(`^\s*export\s+([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)

func (r *Runner) dispatchTransform(st *State, node config.NodeSpec) (any, bool, string, error) {
	script, _ := node.Config["script"].(string)
	st.mu.Lock()
	for _, line := range strings.Split(script, "\n") {
		m := exportLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		val := strings.Trim(strings.TrimSpace(m[2]), `"'`)
		st.Variables[m[1]] = val
	}
	st.mu.Unlock()
	return map[string]any{}, false, "", nil
}

func (r *Runner) dispatchAgent(ctx context.Context, st *State, node config.NodeSpec) (any, bool, string, error) {
	name, _ := node.Config["agent"].(string)
	if name == "" {
		name = node.ID
	}
	if !r.agents.Has(name) {
		if r.loader == nil {
			return nil, false, "", fmt.Errorf("agent %q not loaded and no loader configured", name)
		}
		inline, _ := node.Config["inline"].(map[string]any)
		if err := r.loader(ctx, name, inline); err != nil {
			return nil, false, "", err
		}
	}

	if flowCtx := r.spec.Context; flowCtx != nil {
		envMu.Lock()
		applyFlowContext(flowCtx)
		envMu.Unlock()
	}

	input, _ := node.Config["input"].(string)
	input = r.expand(st, input)

	out, err := r.agents.Execute(ctx, name, input)
	if err != nil {
		return nil, false, "", err
	}
	return map[string]any{"agent": name, "input": input, "output": out, "requires_approval": false}, false, "", nil
}

func applyFlowContext(c *config.FlowContext) {
	if c.Kubeconfig != "" {
		os.Setenv("KUBECONFIG", c.Kubeconfig)
	}
	if c.Namespace != "" {
		os.Setenv("K8S_NAMESPACE", c.Namespace)
		os.Setenv("K8S_CLUSTER", c.Namespace)
	}
	if c.WorkingDir != "" {
		os.Setenv("WORKING_DIR", c.WorkingDir)
	}
	for k, v := range c.Env {
		os.Setenv(k, v)
	}
}

func (r *Runner) dispatchConditional(st *State, node config.NodeSpec) (any, bool, string, error) {
	cond, _ := node.Config["condition"].(string)
	st.mu.Lock()
	vars := st.Variables
	st.mu.Unlock()
	result := expr.Eval(cond, map[string]any{"variables": vars}, nil)
	return map[string]any{"result": result}, false, "", nil
}

func (r *Runner) dispatchSlack(ctx context.Context, st *State, node config.NodeSpec) (any, bool, string, error) {
	if r.slack == nil {
		return nil, false, "", fmt.Errorf("no slack collaborator configured")
	}
	channel := r.expand(st, asString(node.Config["channel"]))
	message := r.expand(st, asString(node.Config["message"]))
	ts, err := r.slack.Send(ctx, channel, message)
	if err != nil {
		return nil, false, "", err
	}
	if wait, _ := node.Config["wait_for_reaction"].(bool); wait {
		return map[string]any{"message_ts": ts}, true, "reaction", nil
	}
	return map[string]any{"message_ts": ts}, false, "", nil
}

func (r *Runner) dispatchDiscord(ctx context.Context, st *State, node config.NodeSpec) (any, bool, string, error) {
	if r.discord == nil {
		return nil, false, "", fmt.Errorf("no discord collaborator configured")
	}
	channel := r.expand(st, asString(node.Config["channel"]))
	message := r.expand(st, asString(node.Config["message"]))
	if err := r.discord.Send(ctx, channel, message); err != nil {
		return nil, false, "", err
	}
	return map[string]any{}, false, "", nil
}

func (r *Runner) dispatchHTTP(ctx context.Context, st *State, node config.NodeSpec) (any, bool, string, error) {
	if r.http == nil {
		return nil, false, "", fmt.Errorf("no http collaborator configured")
	}
	method, _ := node.Config["method"].(string)
	if method == "" {
		method = "GET"
	}
	url := r.expand(st, asString(node.Config["url"]))
	body := r.expand(st, asString(node.Config["body"]))
	status, respBody, err := r.http.Do(ctx, method, url, body)
	if err != nil {
		return nil, false, "", err
	}
	return map[string]any{"status": status, "body": respBody}, false, "", nil
}

func (r *Runner) dispatchWait(ctx context.Context, node config.NodeSpec) (any, bool, string, error) {
	durStr, _ := node.Config["duration"].(string)
	d, err := config.ParseDuration(durStr)
	if err != nil {
		return nil, false, "", err
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
		return nil, false, "", ctx.Err()
	}
	return map[string]any{}, false, "", nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

var varRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expand implements spec §4.7's variable expansion: ${key} against
// state.variables, ${node_id.output} against a prior node's output, and
// an additional pass resolving all-uppercase names as process env vars.
func (r *Runner) expand(st *State, s string) string {
	st.mu.Lock()
	vars := st.Variables
	results := st.NodeResults
	st.mu.Unlock()

	return varRef.ReplaceAllStringFunc(s, func(m string) string {
		key := m[2 : len(m)-1]
		if dot := strings.LastIndex(key, ".output"); dot > 0 && dot == len(key)-len(".output") {
			nodeID := key[:dot]
			if res, ok := results[nodeID]; ok {
				return stringify(res.Output)
			}
			return ""
		}
		if v, ok := vars[key]; ok {
			return stringify(v)
		}
		if key == strings.ToUpper(key) {
			return os.Getenv(key)
		}
		return ""
	})
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case map[string]any:
		if out, ok := t["output"]; ok {
			return stringify(out)
		}
		return fmt.Sprintf("%v", t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
