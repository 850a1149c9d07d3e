package agent

import (
	"time"

	"github.com/aof-dev/aof/pkg/kernel/model"
	"github.com/aof-dev/aof/pkg/kernel/tool"
)

// Metadata accumulates execution-scoped counters for one run (spec §3
// AgentContext.execution-metadata).
type Metadata struct {
	InputTokens  int
	OutputTokens int
	WallTimeMs   int64
	ToolCalls    int
	Model        string
}

// Context is one agent execution: an append-only message log plus opaque
// state and accumulated results, per spec §3 AgentContext.
type Context struct {
	Input       string
	Messages    []model.Message
	State       map[string]any
	ToolResults []tool.Result
	Metadata    Metadata

	startedAt time.Time
}

// NewContext builds a fresh per-run context for the given input.
func NewContext(input string) *Context {
	return &Context{
		Input:     input,
		State:     make(map[string]any),
		startedAt: time.Now(),
	}
}

func (c *Context) appendMessage(msg model.Message) {
	c.Messages = append(c.Messages, msg)
}

func (c *Context) elapsedMs() int64 {
	return time.Since(c.startedAt).Milliseconds()
}
