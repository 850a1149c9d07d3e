package consensus

import "testing"

func ptr(f float64) *float64 { return &f }

func TestMajorityReached(t *testing.T) {
	results := []AgentResult{
		{AgentName: "a1", Response: "ok", CompletedAt: 1},
		{AgentName: "a2", Response: "ok", CompletedAt: 2},
		{AgentName: "a3", Response: "nope", CompletedAt: 3},
	}
	res := Reduce(results, Config{Algorithm: Majority, MinVotes: 2})
	if !res.Reached {
		t.Fatal("expected majority reached")
	}
	if res.Votes != 2 {
		t.Errorf("votes = %d, want 2", res.Votes)
	}
	if res.Response != "ok" {
		t.Errorf("response = %q, want ok", res.Response)
	}
	if res.Confidence != 2.0/3.0 {
		t.Errorf("confidence = %v, want 2/3", res.Confidence)
	}
}

func TestUnanimousFailsOnDisagreement(t *testing.T) {
	results := []AgentResult{
		{AgentName: "a1", Response: "ok"},
		{AgentName: "a2", Response: "nope"},
	}
	res := Reduce(results, Config{Algorithm: Unanimous, AllowPartial: true})
	if res.Reached {
		t.Fatal("expected unanimous to fail")
	}
	if res.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", res.Confidence)
	}
}

func TestWeightedReachedRule(t *testing.T) {
	results := []AgentResult{
		{AgentName: "a1", Response: "x", Weight: 3},
		{AgentName: "a2", Response: "y", Weight: 1},
	}
	res := Reduce(results, Config{Algorithm: Weighted, AllowPartial: true})
	if !res.Reached {
		t.Fatal("expected weighted consensus reached (3/4 > 0.5)")
	}
	if res.Response != "x" {
		t.Errorf("response = %q, want x", res.Response)
	}
}

func TestHumanReviewNeverReached(t *testing.T) {
	results := []AgentResult{{AgentName: "a1", Response: "x"}}
	res := Reduce(results, Config{Algorithm: HumanReview, AllowPartial: true})
	if res.Reached {
		t.Error("HumanReview must never report reached")
	}
	if !res.RequiresHumanReview || res.ReviewReason != "policy:human_review" {
		t.Errorf("result = %+v", res)
	}
}

func TestFirstWinsTakesEarliestCompletion(t *testing.T) {
	results := []AgentResult{
		{AgentName: "a2", Response: "second", CompletedAt: 5},
		{AgentName: "a1", Response: "first", CompletedAt: 1},
	}
	res := Reduce(results, Config{Algorithm: FirstWins, AllowPartial: true})
	if !res.Reached || res.Response != "first" {
		t.Errorf("result = %+v", res)
	}
}

func TestMinConfidenceForcesHumanReview(t *testing.T) {
	results := []AgentResult{
		{AgentName: "a1", Response: "ok", CompletedAt: 1},
		{AgentName: "a2", Response: "ok", CompletedAt: 2},
	}
	res := Reduce(results, Config{Algorithm: Majority, MinVotes: 2, MinConfidence: ptr(0.95)})
	if !res.RequiresHumanReview || res.ReviewReason != "below_confidence" {
		t.Errorf("result = %+v", res)
	}
}

func TestInsufficientVotesWithoutAllowPartial(t *testing.T) {
	results := []AgentResult{{AgentName: "a1", Response: "ok"}}
	res := Reduce(results, Config{Algorithm: Majority, MinVotes: 2, AllowPartial: false})
	if res.Reached {
		t.Error("expected reached=false under insufficient votes")
	}
	if res.ReviewReason != "insufficient_votes" {
		t.Errorf("reviewReason = %q", res.ReviewReason)
	}
}
