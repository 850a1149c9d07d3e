// Package bootstrap wires parsed YAML resource specs (internal/config)
// into live kernel collaborators (pkg/kernel/*): it is the glue cmd/aof
// uses to turn a directory of resource files into a running Registry,
// Fleet, Workflow/Flow runners, and Trigger handlers. Grounded on the
// way the teacher's cmd/nexus commands build a *config.Config once and
// hand it to each subsystem's constructor.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aof-dev/aof/internal/config"
	"github.com/aof-dev/aof/internal/memorystore"
	"github.com/aof-dev/aof/internal/providers"
	"github.com/aof-dev/aof/internal/toolbridge"
	"github.com/aof-dev/aof/pkg/kernel/agent"
	"github.com/aof-dev/aof/pkg/kernel/memory"
	"github.com/aof-dev/aof/pkg/kernel/tool"
)

// BuildAgent constructs an *agent.Executor from a parsed AgentSpec,
// resolving its model provider, memory backend, and tool executor.
func BuildAgent(name string, spec *config.AgentSpec, creds providers.Credentials, logger *slog.Logger) (*agent.Executor, error) {
	m, err := providers.New(spec.Model, creds)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}

	mem, err := buildMemory(name, spec.Memory)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}

	tools, err := buildTools(context.Background(), spec, logger)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}

	cfg := agent.Config{
		Name:               name,
		SystemPrompt:       spec.SystemPrompt,
		MaxIterations:      spec.MaxIterations,
		MaxContextMessages: spec.MaxContextMessages,
		Temperature:        spec.Temperature,
		MaxTokens:          spec.MaxTokens,
	}
	return agent.New(cfg, m, tools, mem, logger), nil
}

// buildTools implements spec §4.3's tool-executor selection rule: if
// mcp_servers is non-empty, build a multi-MCP executor from those; else
// if tools names only known builtin tools, build the local
// system-command executor. An agent with no tools configured gets an
// empty registry rather than nil, so the tool loop's listTools call
// always succeeds.
func buildTools(ctx context.Context, spec *config.AgentSpec, logger *slog.Logger) (tool.Executor, error) {
	var executors []tool.Executor

	if len(spec.McpServers) > 0 {
		mcpExec, err := toolbridge.NewMCP(ctx, spec.McpServers, logger)
		if err != nil {
			return nil, fmt.Errorf("mcp servers: %w", err)
		}
		executors = append(executors, mcpExec)
	}

	for _, t := range spec.Tools {
		if t.Source == config.ToolSourceBuiltin && t.Enabled {
			timeout := time.Duration(t.TimeoutMs) * time.Millisecond
			executors = append(executors, toolbridge.NewExec(timeout))
			break
		}
	}

	switch len(executors) {
	case 0:
		return tool.NewRegistry(), nil
	case 1:
		return executors[0], nil
	default:
		return tool.NewMulti(executors...), nil
	}
}

// buildMemory resolves an agent's durable memory backend. key (the
// agent's resource name) scopes every backend's stored rows/keys so
// multiple agents can share one database or Redis instance without
// their histories colliding.
func buildMemory(key string, spec *config.MemorySpec) (memory.Memory, error) {
	if spec == nil {
		return nil, nil
	}
	switch spec.Backend {
	case "", config.MemoryBackendInMemory:
		max := spec.MaxMessages
		if max <= 0 {
			max = 100
		}
		return memory.NewInMemory(max), nil
	case config.MemoryBackendFile:
		return memorystore.NewFile(spec.Path, spec.MaxMessages), nil
	case config.MemoryBackendSQLite:
		return memorystore.NewSQLite(spec.Path, key)
	case config.MemoryBackendPostgres:
		return memorystore.NewPostgres(spec.URL, key)
	case config.MemoryBackendRedis:
		ns := key
		if spec.Namespace != "" {
			ns = spec.Namespace + ":" + key
		}
		return memorystore.NewRedis(spec.URL, ns), nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", spec.Backend)
	}
}
