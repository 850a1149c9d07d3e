// Package toolbridge adapts concrete tool collaborators — MCP servers
// and local system commands — onto the kernel's pkg/kernel/tool.Executor
// boundary (spec §4.1, §4.3's tool-executor selection rule). Grounded on
// internal/mcp's existing client/manager (kept from the teacher as-is)
// and internal/tools/exec's RunCommand shape (rewritten here free of the
// teacher's file-resolver coupling, see DESIGN.md).
package toolbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aof-dev/aof/internal/config"
	"github.com/aof-dev/aof/internal/mcp"
	"github.com/aof-dev/aof/pkg/kernel/model"
	"github.com/aof-dev/aof/pkg/kernel/tool"
)

// MCP adapts one or more MCP servers (an agent's McpServerSpec list) to
// tool.Executor. One MCP is built per agent, scoping its servers' tool
// catalogues to that agent alone.
type MCP struct {
	manager *mcp.Manager
	filter  map[string][]string // serverID -> allowed tool names, nil means all
}

// NewMCP connects to every server in specs and returns a tool.Executor
// fanning calls out across them. Servers that fail to connect are
// logged and skipped — spec §7 treats a tool-layer construction problem
// as non-fatal to the rest of the agent's tool catalogue.
func NewMCP(ctx context.Context, specs []config.McpServerSpec, logger *slog.Logger) (*MCP, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := &mcp.Config{Enabled: true}
	filter := make(map[string][]string, len(specs))
	for _, s := range specs {
		sc := &mcp.ServerConfig{
			ID:        s.Name,
			Name:      s.Name,
			Command:   s.Command,
			Args:      s.Args,
			Env:       s.Env,
			AutoStart: true,
		}
		switch s.Transport {
		case config.McpTransportStdio:
			sc.Transport = mcp.TransportStdio
		case config.McpTransportSSE, config.McpTransportHTTP:
			// internal/mcp's transport layer speaks plain HTTP for both
			// sse and http McpServerSpec transports; it negotiates
			// streaming internally per request.
			sc.Transport = mcp.TransportHTTP
			sc.URL = s.Endpoint
		default:
			return nil, fmt.Errorf("mcp server %s: unknown transport %q", s.Name, s.Transport)
		}
		cfg.Servers = append(cfg.Servers, sc)
		if len(s.ToolFilter) > 0 {
			filter[s.Name] = s.ToolFilter
		}
	}

	manager := mcp.NewManager(cfg, logger)
	if err := manager.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp: %w", err)
	}
	return &MCP{manager: manager, filter: filter}, nil
}

func (m *MCP) allowed(serverID, name string) bool {
	allow, ok := m.filter[serverID]
	if !ok {
		return true
	}
	for _, a := range allow {
		if a == name {
			return true
		}
	}
	return false
}

// ListTools merges every connected server's tool catalogue, dropping
// tools a server's tool_filter excludes.
func (m *MCP) ListTools(ctx context.Context) ([]model.ToolDefinition, error) {
	var out []model.ToolDefinition
	for serverID, tools := range m.manager.AllTools() {
		for _, t := range tools {
			if !m.allowed(serverID, t.Name) {
				continue
			}
			out = append(out, model.ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Schema:      t.InputSchema,
			})
		}
	}
	return out, nil
}

// Execute dispatches name to whichever connected server owns it.
func (m *MCP) Execute(ctx context.Context, name string, arguments json.RawMessage) (tool.Result, error) {
	serverID, _ := m.manager.FindTool(name)
	if serverID == "" {
		return tool.Result{OK: false, ErrorText: "unknown tool: " + name}, nil
	}

	var args map[string]any
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return tool.Result{OK: false, ErrorText: "invalid arguments: " + err.Error()}, nil
		}
	}

	res, err := m.manager.CallTool(ctx, serverID, name, args)
	if err != nil {
		return tool.Result{OK: false, ErrorText: err.Error()}, nil
	}
	if res.IsError {
		return tool.Result{OK: false, ErrorText: contentText(res.Content)}, nil
	}

	data, marshalErr := json.Marshal(res.Content)
	if marshalErr != nil {
		return tool.Result{OK: false, ErrorText: marshalErr.Error()}, nil
	}
	return tool.Result{OK: true, Data: data}, nil
}

// Close disconnects every MCP server this executor owns.
func (m *MCP) Close() error {
	return m.manager.Stop()
}

func contentText(content []mcp.ToolResultContent) string {
	for _, c := range content {
		if c.Text != "" {
			return c.Text
		}
	}
	return "tool call failed"
}
