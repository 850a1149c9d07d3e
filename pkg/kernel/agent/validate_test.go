package agent

import (
	"encoding/json"
	"testing"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

var addSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"a": {"type": "number"}, "b": {"type": "number"}},
	"required": ["a", "b"]
}`)

func TestCompileToolSchemasSkipsToolsWithNoSchema(t *testing.T) {
	schemas := compileToolSchemas([]model.ToolDefinition{{Name: "noop"}}, nil)
	if err := schemas.validate("noop", json.RawMessage(`{"anything":true}`)); err != nil {
		t.Errorf("unscheduled tool should pass validation unconditionally: %v", err)
	}
}

func TestCompileToolSchemasSkipsInvalidSchemaWithoutFailing(t *testing.T) {
	schemas := compileToolSchemas([]model.ToolDefinition{{Name: "bad", Schema: json.RawMessage(`not json`)}}, nil)
	if err := schemas.validate("bad", json.RawMessage(`{}`)); err != nil {
		t.Errorf("a tool whose schema fails to compile must not block execution: %v", err)
	}
}

func TestValidateRejectsArgumentsMissingRequiredField(t *testing.T) {
	schemas := compileToolSchemas([]model.ToolDefinition{{Name: "add", Schema: addSchema}}, nil)
	if err := schemas.validate("add", json.RawMessage(`{"a":1}`)); err == nil {
		t.Error("expected validation error for missing required field b")
	}
}

func TestValidateAcceptsWellFormedArguments(t *testing.T) {
	schemas := compileToolSchemas([]model.ToolDefinition{{Name: "add", Schema: addSchema}}, nil)
	if err := schemas.validate("add", json.RawMessage(`{"a":1,"b":2}`)); err != nil {
		t.Errorf("expected valid arguments to pass: %v", err)
	}
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	schemas := compileToolSchemas([]model.ToolDefinition{{Name: "add", Schema: addSchema}}, nil)
	if err := schemas.validate("add", json.RawMessage(`{not json`)); err == nil {
		t.Error("expected error for malformed JSON arguments")
	}
}

func TestValidateTreatsEmptyArgumentsAsEmptyObject(t *testing.T) {
	schemas := compileToolSchemas([]model.ToolDefinition{{Name: "noop", Schema: json.RawMessage(`{"type":"object"}`)}}, nil)
	if err := schemas.validate("noop", nil); err != nil {
		t.Errorf("empty arguments against an object schema with no required fields should pass: %v", err)
	}
}
