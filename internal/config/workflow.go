package config

// StepType is one of the six Workflow step kinds (spec §3).
type StepType string

const (
	StepAgent      StepType = "agent"
	StepApproval   StepType = "approval"
	StepValidation StepType = "validation"
	StepParallel   StepType = "parallel"
	StepJoin       StepType = "join"
	StepTerminal   StepType = "terminal"
)

// Reducer is a per-key state-merge rule (spec §4.6, GLOSSARY).
type Reducer string

const (
	ReducerAppend  Reducer = "append"
	ReducerMerge   Reducer = "merge"
	ReducerSum     Reducer = "sum"
	ReducerReplace Reducer = "replace"
)

// ValidatorType tags a Validation step's validator kind (spec §4.6.1).
type ValidatorType string

const (
	ValidatorFunction ValidatorType = "function"
	ValidatorLLM      ValidatorType = "llm"
	ValidatorScript   ValidatorType = "script"
)

// ValidatorSpec is one validator attached to a step.
type ValidatorSpec struct {
	Type    ValidatorType `yaml:"type"`
	Name    string        `yaml:"name,omitempty"`
	Agent   string        `yaml:"agent,omitempty"`
	Prompt  string        `yaml:"prompt,omitempty"`
	Command string        `yaml:"command,omitempty"`
}

// ConditionalTarget is one entry of an ordered `next` list: the first
// matching condition wins (spec §4.6).
type ConditionalTarget struct {
	Condition string `yaml:"condition,omitempty"`
	Target    string `yaml:"target"`
}

// JoinStrategy selects how many branches of a Parallel step must finish
// before the Join gate opens (spec §4.6).
type JoinStrategy string

const (
	JoinAll      JoinStrategy = "all"
	JoinAny      JoinStrategy = "any"
	JoinMajority JoinStrategy = "majority"
)

// BranchSpec is one ordered list of agent invocations within a Parallel
// step.
type BranchSpec struct {
	Name   string   `yaml:"name"`
	Agents []string `yaml:"agents"`
}

// JoinSpec configures a Parallel step's completion gate.
type JoinSpec struct {
	Strategy JoinStrategy `yaml:"strategy,omitempty"`
}

// StepSpec is one node of a Workflow's step graph.
type StepSpec struct {
	Name       string              `yaml:"name"`
	Type       StepType            `yaml:"type"`
	Agent      string              `yaml:"agent,omitempty"`
	Config     map[string]any      `yaml:"config,omitempty"`
	Branches   []BranchSpec        `yaml:"branches,omitempty"`
	Join       *JoinSpec           `yaml:"join,omitempty"`
	Next       []ConditionalTarget `yaml:"next,omitempty"`
	Timeout    string              `yaml:"timeout,omitempty"`
	Validators []ValidatorSpec     `yaml:"validators,omitempty"`
	Status     string              `yaml:"status,omitempty"`
	Approvers  []string            `yaml:"approvers,omitempty"`
	AutoApproveCondition string    `yaml:"auto_approve_condition,omitempty"`
}

// RetryPolicy configures per-step retry behavior for a workflow.
type RetryPolicy struct {
	MaxAttempts int    `yaml:"max_attempts,omitempty"`
	Backoff     string `yaml:"backoff,omitempty"`
}

// WorkflowSpec is the Workflow resource kind's spec payload.
type WorkflowSpec struct {
	Entrypoint   string             `yaml:"entrypoint"`
	Steps        []StepSpec         `yaml:"steps"`
	Reducers     map[string]Reducer `yaml:"reducers,omitempty"`
	ErrorHandler string             `yaml:"error_handler,omitempty"`
	Retry        *RetryPolicy       `yaml:"retry,omitempty"`
}

// Validate enforces the Workflow invariants of spec §3: the entrypoint
// exists, every next target exists, and parallel steps have at least
// one branch. Target existence is checked at load time (spec §9 Open
// Question resolution), not deferred to runtime.
func (s *WorkflowSpec) Validate() error {
	if s.Entrypoint == "" {
		return newError("", "workflow", "entrypoint is required")
	}
	names := make(map[string]bool, len(s.Steps))
	for _, st := range s.Steps {
		names[st.Name] = true
	}
	if !names[s.Entrypoint] {
		return newError("", "workflow", "entrypoint step not found: "+s.Entrypoint)
	}
	for _, st := range s.Steps {
		if st.Type == StepParallel && len(st.Branches) == 0 {
			return newError("", "workflow", "parallel step "+st.Name+" requires at least one branch")
		}
		for _, n := range st.Next {
			if n.Target != "" && !names[n.Target] {
				return newError("", "workflow", "step "+st.Name+" references unknown next target: "+n.Target)
			}
		}
	}
	if s.ErrorHandler != "" && !names[s.ErrorHandler] {
		return newError("", "workflow", "error_handler references unknown step: "+s.ErrorHandler)
	}
	return nil
}
