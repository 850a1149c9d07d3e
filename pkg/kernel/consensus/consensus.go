// Package consensus implements the Consensus Engine (C4): reduces N
// agent responses to one result under a chosen voting algorithm.
// New code grounded on the shape of the teacher's
// internal/multiagent/supervisor.go result aggregation (collect N agent
// outputs, produce one decision); the vote/cluster/tie-break logic
// itself is original to spec §4.4's algorithm definitions (see
// DESIGN.md).
package consensus

import (
	"sort"
	"strings"
)

// Algorithm selects a consensus-reduction strategy (spec §4.4).
type Algorithm string

const (
	Majority    Algorithm = "majority"
	Unanimous   Algorithm = "unanimous"
	Weighted    Algorithm = "weighted"
	FirstWins   Algorithm = "first_wins"
	HumanReview Algorithm = "human_review"
)

// AgentResult is one agent's contribution to a consensus round.
type AgentResult struct {
	AgentName   string
	Tier        int
	Weight      float64
	Response    string
	Confidence  *float64
	CompletedAt int64 // monotonic ordering key; lower completes first
}

// Config parameterizes a consensus round (spec §4.4).
type Config struct {
	Algorithm     Algorithm
	MinVotes      int
	TimeoutMs     int
	AllowPartial  bool
	Weights       map[string]float64
	MinConfidence *float64
}

// Result is the reduced outcome of a consensus round.
type Result struct {
	Reached            bool
	Votes              int
	Confidence         float64
	Algorithm          Algorithm
	Response           string
	AllResults         []AgentResult
	RequiresHumanReview bool
	ReviewReason       string
}

type cluster struct {
	key        string
	members    []AgentResult
	weightSum  float64
	confidence float64
	firstDone  int64
}

// normalize collapses a response string to its equivalence key:
// case-insensitive, whitespace-collapsed (spec §4.4).
func normalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}

func buildClusters(results []AgentResult, weights map[string]float64) []*cluster {
	byKey := make(map[string]*cluster)
	var order []string
	for _, r := range results {
		key := normalize(r.Response)
		c, ok := byKey[key]
		if !ok {
			c = &cluster{key: key, firstDone: r.CompletedAt}
			byKey[key] = c
			order = append(order, key)
		}
		c.members = append(c.members, r)
		w := r.Weight
		if weights != nil {
			if override, ok := weights[r.AgentName]; ok {
				w = override
			}
		}
		if w == 0 {
			w = 1
		}
		c.weightSum += w
		if r.Confidence != nil {
			c.confidence += *r.Confidence
		} else {
			c.confidence += 1
		}
		if r.CompletedAt < c.firstDone {
			c.firstDone = r.CompletedAt
		}
	}
	clusters := make([]*cluster, 0, len(order))
	for _, k := range order {
		clusters = append(clusters, byKey[k])
	}
	return clusters
}

// winner applies the tie-break rules of spec §4.4: higher total
// confidence in cluster, then earlier first-completion time, then
// lexicographically smallest agent name.
func winner(clusters []*cluster, by func(*cluster) float64) *cluster {
	best := clusters[0]
	bestScore := by(best)
	for _, c := range clusters[1:] {
		score := by(c)
		switch {
		case score > bestScore:
			best, bestScore = c, score
		case score == bestScore:
			best = tieBreak(best, c)
			bestScore = by(best)
		}
	}
	return best
}

func tieBreak(a, b *cluster) *cluster {
	if a.confidence != b.confidence {
		if a.confidence > b.confidence {
			return a
		}
		return b
	}
	if a.firstDone != b.firstDone {
		if a.firstDone < b.firstDone {
			return a
		}
		return b
	}
	if lexSmallestAgent(a) <= lexSmallestAgent(b) {
		return a
	}
	return b
}

func lexSmallestAgent(c *cluster) string {
	names := make([]string, 0, len(c.members))
	for _, m := range c.members {
		names = append(names, m.AgentName)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func totalWeight(results []AgentResult, weights map[string]float64) float64 {
	var total float64
	for _, r := range results {
		w := r.Weight
		if weights != nil {
			if override, ok := weights[r.AgentName]; ok {
				w = override
			}
		}
		if w == 0 {
			w = 1
		}
		total += w
	}
	return total
}

// Reduce combines N AgentResults into one Result under cfg.Algorithm.
func Reduce(results []AgentResult, cfg Config) Result {
	res := Result{Algorithm: cfg.Algorithm, AllResults: results}

	n := len(results)
	minVotes := cfg.MinVotes
	if minVotes <= 0 {
		minVotes = n/2 + 1
	}

	if !cfg.AllowPartial && n < minVotes {
		res.ReviewReason = "insufficient_votes"
		return applyConfidenceGate(res, cfg)
	}

	if n == 0 {
		res.ReviewReason = "insufficient_votes"
		return applyConfidenceGate(res, cfg)
	}

	switch cfg.Algorithm {
	case HumanReview:
		res.RequiresHumanReview = true
		res.ReviewReason = "policy:human_review"
		return res

	case FirstWins:
		first := results[0]
		for _, r := range results[1:] {
			if r.CompletedAt < first.CompletedAt {
				first = r
			}
		}
		res.Reached = true
		res.Response = first.Response
		res.Votes = 1
		if first.Confidence != nil {
			res.Confidence = *first.Confidence
		} else {
			res.Confidence = 1.0
		}
		return applyConfidenceGate(res, cfg)

	case Unanimous:
		clusters := buildClusters(results, cfg.Weights)
		if len(clusters) == 1 {
			res.Reached = true
			res.Confidence = 1.0
			res.Response = clusters[0].members[0].Response
			res.Votes = len(clusters[0].members)
		} else {
			res.Confidence = 0
			res.ReviewReason = "not_unanimous"
		}
		return applyConfidenceGate(res, cfg)

	case Weighted:
		clusters := buildClusters(results, cfg.Weights)
		w := winner(clusters, func(c *cluster) float64 { return c.weightSum })
		total := totalWeight(results, cfg.Weights)
		res.Votes = len(w.members)
		res.Response = w.members[0].Response
		if total > 0 {
			res.Confidence = w.weightSum / total
		}
		res.Reached = w.weightSum > 0.5*total
		if !res.Reached {
			res.ReviewReason = "below_threshold"
		}
		return applyConfidenceGate(res, cfg)

	default: // Majority
		clusters := buildClusters(results, cfg.Weights)
		w := winner(clusters, func(c *cluster) float64 { return float64(len(c.members)) })
		res.Votes = len(w.members)
		res.Response = w.members[0].Response
		res.Confidence = float64(res.Votes) / float64(n)
		res.Reached = res.Votes*2 > n && res.Votes >= minVotes
		if !res.Reached {
			res.ReviewReason = "no_majority"
		}
		return applyConfidenceGate(res, cfg)
	}
}

func applyConfidenceGate(res Result, cfg Config) Result {
	if cfg.MinConfidence != nil && res.Confidence < *cfg.MinConfidence {
		res.RequiresHumanReview = true
		res.ReviewReason = "below_confidence"
	}
	return res
}
