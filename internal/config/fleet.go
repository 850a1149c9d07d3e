package config

// CoordinationMode is one of the five Fleet coordination disciplines
// (spec §4.5).
type CoordinationMode string

const (
	CoordinationHierarchical CoordinationMode = "hierarchical"
	CoordinationPeer         CoordinationMode = "peer"
	CoordinationPipeline     CoordinationMode = "pipeline"
	CoordinationSwarm        CoordinationMode = "swarm"
	CoordinationTiered       CoordinationMode = "tiered"
)

// DistributionStrategy selects how a hierarchical/swarm fleet picks a
// worker for a task.
type DistributionStrategy string

const (
	DistributionRoundRobin  DistributionStrategy = "round_robin"
	DistributionLeastLoaded DistributionStrategy = "least_loaded"
	DistributionRandom      DistributionStrategy = "random"
	DistributionSkillBased  DistributionStrategy = "skill_based"
	DistributionSticky      DistributionStrategy = "sticky"
)

// AgentRole is a FleetAgent's role within the fleet.
type AgentRole string

const (
	RoleWorker     AgentRole = "worker"
	RoleManager    AgentRole = "manager"
	RoleSpecialist AgentRole = "specialist"
	RoleValidator  AgentRole = "validator"
)

// FleetAgentSpec is one member of a Fleet (spec §3).
type FleetAgentSpec struct {
	AgentName string     `yaml:"agent_name"`
	Replicas  int        `yaml:"replicas,omitempty"`
	Role      AgentRole  `yaml:"role,omitempty"`
	Tier      int        `yaml:"tier,omitempty"`
	Weight    float64    `yaml:"weight,omitempty"`
	ConfigRef string     `yaml:"config_ref,omitempty"`
	Inline    *AgentSpec `yaml:"inline,omitempty"`
	Labels    []string   `yaml:"labels,omitempty"`
}

// Defaults fills FleetAgentSpec defaults (replicas >= 1, tier >= 1,
// weight default 1.0).
func (a *FleetAgentSpec) Defaults() {
	if a.Replicas <= 0 {
		a.Replicas = 1
	}
	if a.Tier <= 0 {
		a.Tier = 1
	}
	if a.Weight <= 0 {
		a.Weight = 1.0
	}
	if a.Role == "" {
		a.Role = RoleWorker
	}
}

// FinalAggregation selects how a tiered fleet combines its last tier's
// results into the fleet's final output (spec §4.5).
type FinalAggregation string

const (
	AggregationConsensus        FinalAggregation = "consensus"
	AggregationMerge             FinalAggregation = "merge"
	AggregationManagerSynthesis FinalAggregation = "manager_synthesis"
)

// ConsensusAlgorithm selects a Consensus Engine algorithm (spec §4.4).
type ConsensusAlgorithm string

const (
	ConsensusMajority    ConsensusAlgorithm = "majority"
	ConsensusUnanimous   ConsensusAlgorithm = "unanimous"
	ConsensusWeighted    ConsensusAlgorithm = "weighted"
	ConsensusFirstWins   ConsensusAlgorithm = "first_wins"
	ConsensusHumanReview ConsensusAlgorithm = "human_review"
)

// ConsensusSpec configures the Consensus Engine for a peer/tier step.
type ConsensusSpec struct {
	Algorithm     ConsensusAlgorithm `yaml:"algorithm"`
	MinVotes      int                `yaml:"min_votes,omitempty"`
	TimeoutMs     int                `yaml:"timeout_ms,omitempty"`
	AllowPartial  bool               `yaml:"allow_partial,omitempty"`
	Weights       map[string]float64 `yaml:"weights,omitempty"`
	MinConfidence float64            `yaml:"min_confidence,omitempty"`
}

// TierSpec configures one tier of a tiered fleet.
type TierSpec struct {
	Tier            int            `yaml:"tier"`
	Consensus       *ConsensusSpec `yaml:"consensus,omitempty"`
	PassAllResults  bool           `yaml:"pass_all_results,omitempty"`
}

// CoordinationSpec is a Fleet's CoordinationConfig (spec §3).
type CoordinationSpec struct {
	Mode             CoordinationMode     `yaml:"mode"`
	ManagerName      string               `yaml:"manager_name,omitempty"`
	Distribution     DistributionStrategy `yaml:"distribution,omitempty"`
	Consensus        *ConsensusSpec       `yaml:"consensus,omitempty"`
	Tiers            []TierSpec           `yaml:"tiers,omitempty"`
	FinalAggregation FinalAggregation     `yaml:"final_aggregation,omitempty"`
}

// FleetSpec is the Fleet resource kind's spec payload.
type FleetSpec struct {
	Agents       []FleetAgentSpec  `yaml:"agents"`
	Coordination CoordinationSpec `yaml:"coordination"`
}

// Validate enforces the Fleet invariants of spec §3.
func (s *FleetSpec) Validate() error {
	if len(s.Agents) == 0 {
		return newError("", "fleet", "at least one agent is required")
	}
	seen := map[string]bool{}
	for i := range s.Agents {
		s.Agents[i].Defaults()
		a := s.Agents[i]
		if seen[a.AgentName] {
			return newError("", "fleet", "duplicate agent name: "+a.AgentName)
		}
		seen[a.AgentName] = true
		if a.ConfigRef == "" && a.Inline == nil {
			return newError("", "fleet", "agent "+a.AgentName+" requires config_ref or inline")
		}
	}
	switch s.Coordination.Mode {
	case CoordinationHierarchical:
		if s.Coordination.ManagerName == "" {
			return newError("", "fleet", "hierarchical mode requires manager_name")
		}
	case CoordinationTiered:
		if len(s.Coordination.Tiers) == 0 {
			return newError("", "fleet", "tiered mode requires at least one tier")
		}
	case CoordinationPeer, CoordinationPipeline, CoordinationSwarm:
	default:
		return newError("", "fleet", "unknown coordination mode: "+string(s.Coordination.Mode))
	}
	return nil
}
