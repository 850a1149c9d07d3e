package toolbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	execsafety "github.com/aof-dev/aof/internal/exec"
	"github.com/aof-dev/aof/pkg/kernel/model"
	"github.com/aof-dev/aof/pkg/kernel/tool"
)

// shellArgs is the single builtin "shell" tool's JSON argument shape.
type shellArgs struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// shellResult is the single builtin "shell" tool's JSON result shape.
type shellResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

const maxShellOutputBytes = 256 * 1024

// NewExec builds the builtin system-command tool.Executor: a single
// "shell" tool that runs an allowed executable with sanitised arguments,
// capturing stdout/stderr and exit code (spec §4.3's "known system
// tools" executor). Grounded on internal/tools/exec's RunCommand shape
// (timeout, captured output), rewritten directly over os/exec rather
// than carrying forward the teacher's file-resolver/process-registry
// machinery this kernel has no use for (spec's ToolExecutor boundary is
// execute-and-return, not a long-lived process table).
func NewExec(defaultTimeout time.Duration) tool.Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = 120 * time.Second
	}
	return &execExecutor{timeout: defaultTimeout}
}

type execExecutor struct {
	timeout time.Duration
}

func (e *execExecutor) ListTools(ctx context.Context) ([]model.ToolDefinition, error) {
	defs := []model.ToolDefinition{{
		Name:        "shell",
		Description: "Run an approved shell command and capture its output.",
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string"},
				"args": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["command"]
		}`),
	}}
	return append(defs, devopsToolDefinitions()...), nil
}

func (e *execExecutor) Execute(ctx context.Context, name string, arguments json.RawMessage) (tool.Result, error) {
	start := time.Now()
	if t, ok := devopsTools[name]; ok {
		return executeDevopsTool(ctx, t, arguments)
	}
	if name != "shell" {
		return tool.Result{OK: false, ErrorText: "unknown tool: " + name}, nil
	}

	var args shellArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return tool.Result{OK: false, ErrorText: "invalid arguments: " + err.Error()}, nil
	}

	command, err := execsafety.SanitizeExecutableValue(args.Command)
	if err != nil {
		return tool.Result{OK: false, ErrorText: err.Error()}, nil
	}
	cmdArgs, err := execsafety.SanitizeArguments(args.Args)
	if err != nil {
		return tool.Result{OK: false, ErrorText: err.Error()}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &stdout, max: maxShellOutputBytes}
	cmd.Stderr = &limitedWriter{buf: &stderr, max: maxShellOutputBytes}

	runErr := cmd.Run()
	duration := time.Since(start).Milliseconds()
	if cmd.ProcessState == nil {
		// The command never started (bad executable, missing file, etc.).
		return tool.Result{OK: false, ErrorText: fmt.Sprintf("shell: %v", runErr), DurationMs: duration}, nil
	}

	res := shellResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: cmd.ProcessState.ExitCode()}
	data, _ := json.Marshal(res)
	return tool.Result{OK: res.ExitCode == 0, Data: data, DurationMs: duration}, nil
}

// limitedWriter caps captured command output so a runaway process can't
// exhaust memory; it silently drops bytes past max rather than erroring,
// mirroring the teacher's capped-buffer behaviour.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	remaining := w.max - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}
