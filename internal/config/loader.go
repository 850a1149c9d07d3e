package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadEnvelope reads one YAML resource file, expanding ${VAR} references
// against the process environment before parsing, matching the
// teacher's os.ExpandEnv-at-load-time behavior.
func LoadEnvelope(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Kind: "read", Reason: err.Error(), Cause: err}
	}
	return parseEnvelope(path, data)
}

func parseEnvelope(path string, data []byte) (*Envelope, error) {
	expanded := os.ExpandEnv(string(data))

	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	var env Envelope
	if err := decoder.Decode(&env); err != nil {
		return nil, &Error{Path: path, Kind: "parse", Reason: err.Error(), Cause: err}
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, &Error{Path: path, Kind: "parse", Reason: "expected a single YAML document"}
	}

	if env.APIVersion != "" && env.APIVersion != APIVersion {
		return nil, &Error{Path: path, Kind: "apiVersion", Reason: "unsupported apiVersion: " + env.APIVersion}
	}
	if env.Kind == "" {
		return nil, &Error{Path: path, Kind: "kind", Reason: "kind is required"}
	}
	if env.Metadata.Name == "" {
		return nil, &Error{Path: path, Kind: "metadata", Reason: "metadata.name is required"}
	}
	return &env, nil
}

// LoadAgent parses and validates an Agent resource file, filling spec
// defaults.
func LoadAgent(path string) (string, *AgentSpec, error) {
	env, err := LoadEnvelope(path)
	if err != nil {
		return "", nil, err
	}
	if env.Kind != KindAgent {
		return "", nil, &Error{Path: path, Kind: "kind", Reason: fmt.Sprintf("expected Agent, got %s", env.Kind)}
	}
	var spec AgentSpec
	if err := env.decodeSpec(&spec); err != nil {
		return "", nil, &Error{Path: path, Kind: "spec", Reason: err.Error(), Cause: err}
	}
	spec.Defaults()
	if err := spec.Validate(); err != nil {
		return "", nil, err
	}
	return env.Metadata.Name, &spec, nil
}

// LoadFleet parses and validates a Fleet resource file.
func LoadFleet(path string) (string, *FleetSpec, error) {
	env, err := LoadEnvelope(path)
	if err != nil {
		return "", nil, err
	}
	if env.Kind != KindFleet {
		return "", nil, &Error{Path: path, Kind: "kind", Reason: fmt.Sprintf("expected Fleet, got %s", env.Kind)}
	}
	var spec FleetSpec
	if err := env.decodeSpec(&spec); err != nil {
		return "", nil, &Error{Path: path, Kind: "spec", Reason: err.Error(), Cause: err}
	}
	if err := spec.Validate(); err != nil {
		return "", nil, err
	}
	return env.Metadata.Name, &spec, nil
}

// LoadWorkflow parses and validates a Workflow resource file.
func LoadWorkflow(path string) (string, *WorkflowSpec, error) {
	env, err := LoadEnvelope(path)
	if err != nil {
		return "", nil, err
	}
	if env.Kind != KindWorkflow {
		return "", nil, &Error{Path: path, Kind: "kind", Reason: fmt.Sprintf("expected Workflow, got %s", env.Kind)}
	}
	var spec WorkflowSpec
	if err := env.decodeSpec(&spec); err != nil {
		return "", nil, &Error{Path: path, Kind: "spec", Reason: err.Error(), Cause: err}
	}
	if err := spec.Validate(); err != nil {
		return "", nil, err
	}
	return env.Metadata.Name, &spec, nil
}

// LoadFlow parses and validates an AgentFlow resource file.
func LoadFlow(path string) (string, *FlowSpec, error) {
	env, err := LoadEnvelope(path)
	if err != nil {
		return "", nil, err
	}
	if env.Kind != KindFlow {
		return "", nil, &Error{Path: path, Kind: "kind", Reason: fmt.Sprintf("expected AgentFlow, got %s", env.Kind)}
	}
	var spec FlowSpec
	if err := env.decodeSpec(&spec); err != nil {
		return "", nil, &Error{Path: path, Kind: "spec", Reason: err.Error(), Cause: err}
	}
	if err := spec.Validate(); err != nil {
		return "", nil, err
	}
	return env.Metadata.Name, &spec, nil
}

// LoadTrigger parses and validates a Trigger resource file.
func LoadTrigger(path string) (string, *TriggerSpec, error) {
	env, err := LoadEnvelope(path)
	if err != nil {
		return "", nil, err
	}
	if env.Kind != KindTrigger {
		return "", nil, &Error{Path: path, Kind: "kind", Reason: fmt.Sprintf("expected Trigger, got %s", env.Kind)}
	}
	var spec TriggerSpec
	if err := env.decodeSpec(&spec); err != nil {
		return "", nil, &Error{Path: path, Kind: "spec", Reason: err.Error(), Cause: err}
	}
	if err := spec.Validate(); err != nil {
		return "", nil, err
	}
	return env.Metadata.Name, &spec, nil
}

// ListResourceFiles returns every *.yaml/*.yml file directly within dir
// whose envelope kind matches want, per the loadDirectory contract of
// spec §4.3 ("every *.yaml/*.yml whose kind is Agent").
func ListResourceFiles(dir string, want Kind) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Path: dir, Kind: "readdir", Reason: err.Error(), Cause: err}
	}
	var matches []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, name)
		env, err := LoadEnvelope(path)
		if err != nil {
			return nil, err
		}
		if env.Kind == want {
			matches = append(matches, path)
		}
	}
	return matches, nil
}
