package expr

import "testing"

func TestEvalKeywords(t *testing.T) {
	out := map[string]any{"approved": true}
	if !Eval("approved", nil, out) {
		t.Error("expected approved=true")
	}
	if Eval("rejected", nil, out) {
		t.Error("expected rejected=false")
	}
}

func TestEvalTimeout(t *testing.T) {
	out := map[string]any{"timeout": true}
	if !Eval("timeout", nil, out) {
		t.Error("expected timeout=true")
	}
}

func TestEvalNumericComparison(t *testing.T) {
	state := map[string]any{"retries": map[string]any{"count": 3.0}}
	if !Eval("state.retries.count >= 3", state, nil) {
		t.Error("expected state.retries.count >= 3 to be true")
	}
	if Eval("state.retries.count > 3", state, nil) {
		t.Error("expected state.retries.count > 3 to be false")
	}
}

func TestEvalStringComparison(t *testing.T) {
	state := map[string]any{"status": "ready"}
	if !Eval(`state.status == "ready"`, state, nil) {
		t.Error("expected string equality to hold")
	}
}

func TestEvalUnknownPathIsFalse(t *testing.T) {
	if Eval("state.missing.path == 1", map[string]any{}, nil) {
		t.Error("unresolved path should evaluate false")
	}
}

func TestEvalUnrecognisedIsFalse(t *testing.T) {
	if Eval("garbage expression !!", nil, nil) {
		t.Error("unrecognised expression should evaluate false")
	}
}
