package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

// toolSchemas compiles each tool's advertised JSON Schema once per run
// so a model-supplied tool call's arguments can be checked before they
// ever reach the tool executor. A tool with no schema, or one whose
// schema fails to compile, is left unvalidated rather than blocking
// the whole agent — schema validation is a guard rail, not a gate.
type toolSchemas map[string]*jsonschema.Schema

func compileToolSchemas(defs []model.ToolDefinition, logger *slog.Logger) toolSchemas {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(toolSchemas, len(defs))
	for _, d := range defs {
		if len(d.Schema) == 0 {
			continue
		}
		compiler := jsonschema.NewCompiler()
		url := "tool://" + d.Name
		if err := compiler.AddResource(url, bytes.NewReader(d.Schema)); err != nil {
			logger.Warn("tool schema invalid, skipping validation", "tool", d.Name, "error", err)
			continue
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			logger.Warn("tool schema failed to compile, skipping validation", "tool", d.Name, "error", err)
			continue
		}
		out[d.Name] = schema
	}
	return out
}

// validate checks a tool call's arguments against its compiled schema,
// if one exists. A validation failure is reported the same way as any
// other ToolError (spec §7): not fatal to the agent, surfaced as the
// tool result's error text.
func (s toolSchemas) validate(name string, arguments json.RawMessage) error {
	schema, ok := s[name]
	if !ok {
		return nil
	}
	var v any
	if len(arguments) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(arguments, &v); err != nil {
		return fmt.Errorf("invalid JSON arguments: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("arguments do not match tool schema: %w", err)
	}
	return nil
}
