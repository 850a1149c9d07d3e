// Package config loads the Kubernetes-style YAML envelope (spec §6)
// shared by every resource kind (Agent, Fleet, Workflow, AgentFlow,
// Trigger), grounded on the teacher's internal/config/loader.go
// raw-map decoding and ${VAR} expansion, reworked around the spec's
// envelope shape instead of the teacher's single monolithic Config.
package config

import (
	"gopkg.in/yaml.v3"
)

// Metadata is the envelope's identifying information.
type Metadata struct {
	Name        string            `yaml:"name"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
}

// Kind enumerates the recognised resource kinds.
type Kind string

const (
	KindAgent    Kind = "Agent"
	KindFleet    Kind = "Fleet"
	KindWorkflow Kind = "Workflow"
	KindFlow     Kind = "AgentFlow"
	KindTrigger  Kind = "Trigger"
)

// APIVersion is the envelope's stable apiVersion string.
const APIVersion = "aof.dev/v1"

// Envelope is the generic Kubernetes-style wrapper every resource file
// uses. Spec is decoded lazily into the kind-specific struct by the
// caller once Kind is known.
type Envelope struct {
	APIVersion string    `yaml:"apiVersion"`
	Kind       Kind      `yaml:"kind"`
	Metadata   Metadata  `yaml:"metadata"`
	Spec       yaml.Node `yaml:"spec"`
}

// decodeSpec unmarshals the envelope's spec node into out.
func (e *Envelope) decodeSpec(out any) error {
	if e.Spec.IsZero() {
		return nil
	}
	return e.Spec.Decode(out)
}
