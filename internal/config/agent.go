package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ToolSource distinguishes where a ToolSpec's implementation comes from.
type ToolSource string

const (
	ToolSourceBuiltin ToolSource = "builtin"
	ToolSourceMCP     ToolSource = "mcp"
)

// ToolSpec names one tool an agent may call. Config accepts either a
// bare string (the tool name, builtin, enabled) or a full object —
// an untagged alternative implemented as a tagged sum type with a
// shape-sniffing parser (spec §9).
type ToolSpec struct {
	Name      string         `yaml:"name"`
	Source    ToolSource     `yaml:"source"`
	McpServer string         `yaml:"mcp_server,omitempty"`
	Config    map[string]any `yaml:"config,omitempty"`
	Enabled   bool           `yaml:"enabled"`
	TimeoutMs int            `yaml:"timeout_ms,omitempty"`
}

// UnmarshalYAML implements the scalar-or-object tagged union for
// ToolSpec.
func (t *ToolSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.Name = node.Value
		t.Source = ToolSourceBuiltin
		t.Enabled = true
		return nil
	}
	type plain ToolSpec
	var p plain
	p.Source = ToolSourceBuiltin
	p.Enabled = true
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = ToolSpec(p)
	return nil
}

// McpTransport is the recognised MCP transport kinds (spec §6).
type McpTransport string

const (
	McpTransportStdio McpTransport = "stdio"
	McpTransportSSE   McpTransport = "sse"
	McpTransportHTTP  McpTransport = "http"
)

// McpServerSpec describes one MCP server an agent may draw tools from.
type McpServerSpec struct {
	Name          string            `yaml:"name"`
	Transport     McpTransport      `yaml:"transport"`
	Command       string            `yaml:"command,omitempty"`
	Args          []string          `yaml:"args,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`
	Endpoint      string            `yaml:"endpoint,omitempty"`
	InitOptions   map[string]any    `yaml:"init_options,omitempty"`
	ToolFilter    []string          `yaml:"tool_filter,omitempty"`
	AutoReconnect bool              `yaml:"auto_reconnect"`
}

// Validate checks the McpServerSpec's transport-specific invariants.
func (m McpServerSpec) Validate() error {
	switch m.Transport {
	case McpTransportStdio:
		if m.Command == "" {
			return newError("", "mcp_server", "stdio transport requires command")
		}
	case McpTransportSSE, McpTransportHTTP:
		if m.Endpoint == "" {
			return newError("", "mcp_server", fmt.Sprintf("%s transport requires endpoint", m.Transport))
		}
	default:
		return newError("", "mcp_server", "unknown transport: "+string(m.Transport))
	}
	return nil
}

// MemoryBackend enumerates the recognised Memory backend types (spec §3).
type MemoryBackend string

const (
	MemoryBackendInMemory MemoryBackend = "in-memory"
	MemoryBackendFile     MemoryBackend = "file"
	MemoryBackendRedis    MemoryBackend = "redis"
	MemoryBackendSQLite   MemoryBackend = "sqlite"
	MemoryBackendPostgres MemoryBackend = "postgres"
)

// MemorySpec configures an agent's Memory collaborator. Config accepts a
// bare string (the backend type) or a full object, same tagged-union
// treatment as ToolSpec.
type MemorySpec struct {
	Backend    MemoryBackend `yaml:"backend"`
	Path       string        `yaml:"path,omitempty"`
	URL        string        `yaml:"url,omitempty"`
	Namespace  string        `yaml:"namespace,omitempty"`
	TTLSeconds int           `yaml:"ttl_seconds,omitempty"`
	MaxMessages int          `yaml:"max_messages,omitempty"`
}

func (m *MemorySpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		m.Backend = MemoryBackend(node.Value)
		return nil
	}
	type plain MemorySpec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*m = MemorySpec(p)
	return nil
}

// Validate checks the backend-specific invariant that a file-typed
// memory carries a path (spec §3 AgentConfig invariant).
func (m MemorySpec) Validate() error {
	if m.Backend == MemoryBackendFile && m.Path == "" {
		return newError("", "memory", "file-typed memory requires path")
	}
	return nil
}

// AgentSpec is the Agent resource kind's spec payload.
type AgentSpec struct {
	Model              string           `yaml:"model"`
	Provider           string           `yaml:"provider,omitempty"`
	SystemPrompt       string           `yaml:"system_prompt,omitempty"`
	Tools              []ToolSpec       `yaml:"tools,omitempty"`
	McpServers         []McpServerSpec  `yaml:"mcp_servers,omitempty"`
	Memory             *MemorySpec      `yaml:"memory,omitempty"`
	MaxIterations      int              `yaml:"max_iterations,omitempty"`
	MaxContextMessages int              `yaml:"max_context_messages,omitempty"`
	Temperature        float64          `yaml:"temperature,omitempty"`
	MaxTokens          int              `yaml:"max_tokens,omitempty"`
	Extras             map[string]any   `yaml:",inline"`
}

// Validate enforces the AgentConfig invariants of spec §3.
func (s AgentSpec) Validate() error {
	if s.Model == "" {
		return newError("", "agent", "model is required")
	}
	if s.Temperature < 0 || s.Temperature > 1 {
		return newError("", "agent", "temperature must be within [0,1]")
	}
	for _, mcp := range s.McpServers {
		if err := mcp.Validate(); err != nil {
			return err
		}
	}
	if s.Memory != nil {
		if err := s.Memory.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Defaults fills spec-mandated defaults (spec §3: max-iterations 10,
// max-context-messages 10).
func (s *AgentSpec) Defaults() {
	if s.MaxIterations <= 0 {
		s.MaxIterations = 10
	}
	if s.MaxContextMessages <= 0 {
		s.MaxContextMessages = 10
	}
}
