package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

var reflector = &jsonschema.Reflector{FieldNameTag: "yaml"}

// JSONSchemaFor returns the JSON Schema for a resource kind's spec
// struct, used to validate inline tool/node `config` blobs and to
// render editor-assist schemas for `aof` config files.
func JSONSchemaFor(kind Kind) ([]byte, error) {
	var target any
	switch kind {
	case KindAgent:
		target = &AgentSpec{}
	case KindFleet:
		target = &FleetSpec{}
	case KindWorkflow:
		target = &WorkflowSpec{}
	case KindFlow:
		target = &FlowSpec{}
	case KindTrigger:
		target = &TriggerSpec{}
	default:
		return nil, newError("", "schema", "unknown kind: "+string(kind))
	}
	schema := reflector.Reflect(target)
	return json.MarshalIndent(schema, "", "  ")
}
