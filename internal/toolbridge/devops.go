package toolbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	execsafety "github.com/aof-dev/aof/internal/exec"
	"github.com/aof-dev/aof/pkg/kernel/model"
	"github.com/aof-dev/aof/pkg/kernel/tool"
)

// devopsArgs is the shared argument shape every DevOps CLI tool below
// takes: a single command string (the LLM builds the full subcommand
// line, e.g. "get pods -n production"), an optional working directory,
// and an optional per-call timeout override.
type devopsArgs struct {
	Command     string `json:"command"`
	WorkingDir  string `json:"working_dir,omitempty"`
	TimeoutSecs int    `json:"timeout_secs,omitempty"`
}

// devopsResult mirrors the teacher's shellResult shape plus the echoed
// command line, matching cli.rs's ToolResult::success payload.
type devopsResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	Success  bool   `json:"success"`
	Command  string `json:"command"`
}

// devopsTool describes one unified CLI tool: a single named tool that
// runs any subcommand of one binary, rather than one tool per
// operation (kubectl_get, kubectl_apply, ...). Grounded on
// crates/aof-tools/src/tools/cli.rs's KubectlTool/GitTool/DockerTool/
// TerraformTool/AwsTool/HelmTool, which share exactly this shape.
type devopsTool struct {
	binary         string
	description    string
	defaultTimeout time.Duration
}

var devopsTools = map[string]devopsTool{
	"kubectl": {
		binary:         "kubectl",
		description:    "Execute kubectl commands for Kubernetes operations. Supports all kubectl subcommands: get, apply, delete, logs, exec, describe, port-forward, etc.",
		defaultTimeout: 120 * time.Second,
	},
	"git": {
		binary:         "git",
		description:    "Execute git commands for version control operations. Supports all git subcommands: status, commit, push, pull, branch, checkout, merge, rebase, log, diff, etc.",
		defaultTimeout: 120 * time.Second,
	},
	"docker": {
		binary:         "docker",
		description:    "Execute docker commands for container operations. Supports all docker subcommands: ps, build, run, exec, logs, images, pull, push, compose, etc.",
		defaultTimeout: 300 * time.Second,
	},
	"terraform": {
		binary:         "terraform",
		description:    "Execute terraform commands for infrastructure as code. Supports all terraform subcommands: init, plan, apply, destroy, output, state, import, etc.",
		defaultTimeout: 600 * time.Second,
	},
	"aws": {
		binary:         "aws",
		description:    "Execute AWS CLI commands. Supports all AWS services: s3, ec2, ecs, lambda, logs, iam, rds, cloudformation, etc.",
		defaultTimeout: 120 * time.Second,
	},
	"helm": {
		binary:         "helm",
		description:    "Execute helm commands for Kubernetes package management. Supports all helm subcommands: install, upgrade, uninstall, list, repo, search, template, etc.",
		defaultTimeout: 300 * time.Second,
	},
}

func devopsToolDefinitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(devopsTools))
	for name, t := range devopsTools {
		defs = append(defs, model.ToolDefinition{
			Name:        name,
			Description: t.description,
			Schema: json.RawMessage(fmt.Sprintf(`{
				"type": "object",
				"properties": {
					"command": {"type": "string", "description": "The %s command to execute, without the %q prefix"},
					"working_dir": {"type": "string", "description": "Working directory for command execution (optional)"},
					"timeout_secs": {"type": "integer", "description": "Command timeout in seconds (optional)"}
				},
				"required": ["command"]
			}`, name, name)),
		})
	}
	return defs
}

// executeDevopsTool runs one DevOps CLI tool: it splits Command on
// whitespace (matching cli.rs's command.split_whitespace()), sanitises
// every resulting argument, and runs binary with them under
// WorkingDir/TimeoutSecs (or the tool's default).
func executeDevopsTool(ctx context.Context, t devopsTool, arguments json.RawMessage) (tool.Result, error) {
	start := time.Now()

	var args devopsArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return tool.Result{OK: false, ErrorText: "invalid arguments: " + err.Error()}, nil
	}
	fields := strings.Fields(args.Command)
	if len(fields) == 0 {
		return tool.Result{OK: false, ErrorText: "empty command provided"}, nil
	}

	cmdArgs, err := execsafety.SanitizeArguments(fields)
	if err != nil {
		return tool.Result{OK: false, ErrorText: err.Error()}, nil
	}

	timeout := t.defaultTimeout
	if args.TimeoutSecs > 0 {
		timeout = time.Duration(args.TimeoutSecs) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.binary, cmdArgs...)
	if args.WorkingDir != "" {
		cmd.Dir = args.WorkingDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &stdout, max: maxShellOutputBytes}
	cmd.Stderr = &limitedWriter{buf: &stderr, max: maxShellOutputBytes}

	runErr := cmd.Run()
	duration := time.Since(start).Milliseconds()
	if cmd.ProcessState == nil {
		return tool.Result{OK: false, ErrorText: fmt.Sprintf("%s: %v", t.binary, runErr), DurationMs: duration}, nil
	}

	res := devopsResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Success:  cmd.ProcessState.ExitCode() == 0,
		Command:  t.binary + " " + args.Command,
	}
	data, _ := json.Marshal(res)
	return tool.Result{OK: res.Success, Data: data, DurationMs: duration}, nil
}
