package bootstrap

import (
	"github.com/aof-dev/aof/internal/config"
	"github.com/aof-dev/aof/pkg/kernel/consensus"
	"github.com/aof-dev/aof/pkg/kernel/fleet"
)

// BuildFleetConfig converts a parsed FleetSpec's CoordinationSpec into
// the fleet.Config the Fleet Coordinator (C5) runs on.
func BuildFleetConfig(spec *config.FleetSpec) fleet.Config {
	cfg := fleet.Config{
		Mode:        fleet.CoordinationMode(spec.Coordination.Mode),
		ManagerName: spec.Coordination.ManagerName,
		Distribution: fleet.Distribution(spec.Coordination.Distribution),
	}
	for _, a := range spec.Agents {
		cfg.Members = append(cfg.Members, fleet.Member{
			AgentName: a.AgentName,
			Replicas:  a.Replicas,
			Role:      string(a.Role),
			Tier:      a.Tier,
			Weight:    a.Weight,
			Labels:    a.Labels,
		})
	}
	if spec.Coordination.Consensus != nil {
		cfg.Consensus = buildConsensusConfig(spec.Coordination.Consensus)
	}
	for _, t := range spec.Coordination.Tiers {
		tc := fleet.TierConfig{Tier: t.Tier, PassAllResults: t.PassAllResults}
		if t.Consensus != nil {
			tc.Consensus = buildConsensusConfig(t.Consensus)
		}
		cfg.Tiers = append(cfg.Tiers, tc)
	}
	if spec.Coordination.FinalAggregation != "" {
		cfg.FinalAggregation = fleet.Aggregation(spec.Coordination.FinalAggregation)
	}
	return cfg
}

func buildConsensusConfig(spec *config.ConsensusSpec) consensus.Config {
	cfg := consensus.Config{
		Algorithm:    consensus.Algorithm(spec.Algorithm),
		MinVotes:     spec.MinVotes,
		TimeoutMs:    spec.TimeoutMs,
		AllowPartial: spec.AllowPartial,
		Weights:      spec.Weights,
	}
	if spec.MinConfidence > 0 {
		mc := spec.MinConfidence
		cfg.MinConfidence = &mc
	}
	return cfg
}
