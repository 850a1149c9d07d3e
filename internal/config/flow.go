package config

// NodeType is one of the eleven AgentFlow node kinds (spec §3).
type NodeType string

const (
	NodeTransform   NodeType = "transform"
	NodeAgent       NodeType = "agent"
	NodeConditional NodeType = "conditional"
	NodeSlack       NodeType = "slack"
	NodeDiscord     NodeType = "discord"
	NodeHTTP        NodeType = "http"
	NodeWait        NodeType = "wait"
	NodeParallel    NodeType = "parallel"
	NodeJoin        NodeType = "join"
	NodeApproval    NodeType = "approval"
	NodeEnd         NodeType = "end"
)

// Precondition gates a node's execution on an upstream node's result or
// reaction (spec §4.7).
type Precondition struct {
	From     string `yaml:"from"`
	Value    *bool  `yaml:"value,omitempty"`
	Reaction string `yaml:"reaction,omitempty"`
}

// NodeSpec is one node of an AgentFlow's graph.
type NodeSpec struct {
	ID            string         `yaml:"id"`
	Type          NodeType       `yaml:"type"`
	Config        map[string]any `yaml:"config,omitempty"`
	Preconditions []Precondition `yaml:"preconditions,omitempty"`
}

// ConnectionSpec is one edge of an AgentFlow's graph.
type ConnectionSpec struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	When string `yaml:"when,omitempty"`
}

// FlowContext carries process-wide environment to mutate before Agent
// node invocation (spec §4.7, §9 — serialised under a process mutex).
type FlowContext struct {
	Kubeconfig string            `yaml:"kubeconfig,omitempty"`
	Namespace  string            `yaml:"namespace,omitempty"`
	WorkingDir string            `yaml:"working_dir,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
}

// TriggerDescriptor names the trigger this flow is bound to.
type TriggerDescriptor struct {
	Trigger string `yaml:"trigger"`
}

// FlowSpec is the AgentFlow resource kind's spec payload.
type FlowSpec struct {
	Trigger     TriggerDescriptor `yaml:"trigger"`
	Nodes       []NodeSpec        `yaml:"nodes"`
	Connections []ConnectionSpec  `yaml:"connections"`
	Context     *FlowContext      `yaml:"context,omitempty"`
}

// Validate checks structural well-formedness at load time.
func (s *FlowSpec) Validate() error {
	if len(s.Nodes) == 0 {
		return newError("", "flow", "at least one node is required")
	}
	ids := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.ID == "" {
			return newError("", "flow", "node id is required")
		}
		ids[n.ID] = true
	}
	for _, c := range s.Connections {
		if !ids[c.From] {
			return newError("", "flow", "connection references unknown from-node: "+c.From)
		}
		if !ids[c.To] {
			return newError("", "flow", "connection references unknown to-node: "+c.To)
		}
	}
	return nil
}
