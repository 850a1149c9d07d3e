package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAgentFillsDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("TEST_API_KEY", "secret123")
	dir := t.TempDir()
	path := writeFile(t, dir, "agent.yaml", `
apiVersion: aof.dev/v1
kind: Agent
metadata:
  name: researcher
spec:
  model: "anthropic:claude-3-opus"
  system_prompt: "You are a researcher."
  tools:
    - search
  extras_key: "${TEST_API_KEY}"
`)
	name, spec, err := LoadAgent(path)
	if err != nil {
		t.Fatalf("LoadAgent error: %v", err)
	}
	if name != "researcher" {
		t.Errorf("name = %q", name)
	}
	if spec.MaxIterations != 10 || spec.MaxContextMessages != 10 {
		t.Errorf("defaults not applied: %+v", spec)
	}
	if len(spec.Tools) != 1 || spec.Tools[0].Name != "search" {
		t.Errorf("tools = %+v", spec.Tools)
	}
}

func TestLoadAgentRejectsBadTemperature(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", `
apiVersion: aof.dev/v1
kind: Agent
metadata:
  name: bad
spec:
  model: "anthropic:claude-3-opus"
  temperature: 5
`)
	if _, _, err := LoadAgent(path); err == nil {
		t.Error("expected validation error for out-of-range temperature")
	}
}

func TestLoadWorkflowValidatesStructureAtLoadTime(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "wf.yaml", `
apiVersion: aof.dev/v1
kind: Workflow
metadata:
  name: bad-wf
spec:
  entrypoint: start
  steps:
    - name: start
      type: terminal
      next:
        - target: missing
`)
	if _, _, err := LoadWorkflow(path); err == nil {
		t.Error("expected structural validation error for unresolved next target")
	}
}

func TestListResourceFilesFiltersByKind(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "apiVersion: aof.dev/v1\nkind: Agent\nmetadata:\n  name: a\nspec:\n  model: anthropic:x\n")
	writeFile(t, dir, "f.yaml", "apiVersion: aof.dev/v1\nkind: Fleet\nmetadata:\n  name: f\nspec:\n  agents: []\n  coordination:\n    mode: peer\n")
	matches, err := ListResourceFiles(dir, KindAgent)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Errorf("matches = %v, want 1 Agent file", matches)
	}
}
