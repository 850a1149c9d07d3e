package toolbridge

import (
	"testing"

	"github.com/aof-dev/aof/internal/mcp"
)

func TestAllowedPassesEverythingWithNoFilter(t *testing.T) {
	m := &MCP{filter: map[string][]string{}}
	if !m.allowed("srv", "anything") {
		t.Error("a server with no configured filter should allow every tool")
	}
}

func TestAllowedRestrictsToFilterList(t *testing.T) {
	m := &MCP{filter: map[string][]string{"srv": {"read_file"}}}
	if !m.allowed("srv", "read_file") {
		t.Error("read_file is in the filter and should be allowed")
	}
	if m.allowed("srv", "delete_file") {
		t.Error("delete_file is not in the filter and should be rejected")
	}
}

func TestAllowedIsPerServer(t *testing.T) {
	m := &MCP{filter: map[string][]string{"srv-a": {"only_a_tool"}}}
	if !m.allowed("srv-b", "anything") {
		t.Error("a server with no filter entry of its own should allow every tool, regardless of other servers' filters")
	}
}

func TestContentTextReturnsFirstNonEmptyText(t *testing.T) {
	content := []mcp.ToolResultContent{
		{Type: "text", Text: ""},
		{Type: "text", Text: "the answer"},
	}
	if got := contentText(content); got != "the answer" {
		t.Errorf("contentText() = %q, want %q", got, "the answer")
	}
}

func TestContentTextFallsBackWhenAllEmpty(t *testing.T) {
	if got := contentText(nil); got != "tool call failed" {
		t.Errorf("contentText(nil) = %q, want the fallback message", got)
	}
}
