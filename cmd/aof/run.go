package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aof-dev/aof/internal/bootstrap"
	"github.com/aof-dev/aof/internal/config"
	"github.com/aof-dev/aof/pkg/kernel/fleet"
	"github.com/aof-dev/aof/pkg/kernel/workflow"
)

// buildRunCmd creates the "run" command group: one-shot invocation of
// a single agent, workflow, or fleet resource file (spec §6 CLI
// surface).
func buildRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single agent, workflow, or fleet to completion",
	}
	cmd.AddCommand(buildRunAgentCmd(), buildRunWorkflowCmd(), buildRunFleetCmd())
	return cmd
}

func buildRunAgentCmd() *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "agent <config.yaml>",
		Short: "Run a single Agent resource to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, args[0], input, output)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Input text for the agent")
	cmd.Flags().StringVar(&output, "output", "text", "Output format: text|json|yaml")
	return cmd
}

func runAgent(cmd *cobra.Command, path, input, output string) error {
	name, spec, err := config.LoadAgent(path)
	if err != nil {
		return err
	}
	exec, err := bootstrap.BuildAgent(name, spec, credentialsFromEnv(), slog.Default())
	if err != nil {
		return err
	}
	result, err := exec.Execute(cmd.Context(), input)
	if err != nil {
		return err
	}
	return writeResult(cmd, output, map[string]any{"agent": name, "output": result})
}

func buildRunWorkflowCmd() *cobra.Command {
	var inputJSON, agentsDir string
	cmd := &cobra.Command{
		Use:   "workflow <config.yaml>",
		Short: "Run a single Workflow resource to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], inputJSON, agentsDir)
		},
	}
	cmd.Flags().StringVar(&inputJSON, "input", "{}", "JSON input for the workflow's initial state")
	cmd.Flags().StringVar(&agentsDir, "agents-dir", ".", "Directory of Agent resource files referenced by this workflow")
	return cmd
}

func runWorkflow(cmd *cobra.Command, path, inputJSON, agentsDir string) error {
	name, spec, err := config.LoadWorkflow(path)
	if err != nil {
		return err
	}
	reg, err := bootstrap.LoadAgentsDir(agentsDir, credentialsFromEnv(), slog.Default())
	if err != nil {
		return err
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
		return fmt.Errorf("invalid --input JSON: %w", err)
	}

	runner := workflow.New(name, spec, reg, nil, nil, nil)
	run, err := runner.Start(cmd.Context(), input)
	if err != nil {
		return err
	}
	snap := run.Snapshot()
	return writeResult(cmd, "json", map[string]any{"run_id": snap.RunID, "status": snap.Status, "data": snap.Data})
}

func buildRunFleetCmd() *cobra.Command {
	var inputText, agentsDir string
	cmd := &cobra.Command{
		Use:   "fleet <config.yaml>",
		Short: "Submit one task to a Fleet and run it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFleet(cmd, args[0], inputText, agentsDir)
		},
	}
	cmd.Flags().StringVar(&inputText, "input", "", "Task input text")
	cmd.Flags().StringVar(&agentsDir, "agents-dir", ".", "Directory of Agent resource files referenced by this fleet")
	return cmd
}

func runFleet(cmd *cobra.Command, path, input, agentsDir string) error {
	name, spec, err := config.LoadFleet(path)
	if err != nil {
		return err
	}
	reg, err := bootstrap.LoadAgentsDir(agentsDir, credentialsFromEnv(), slog.Default())
	if err != nil {
		return err
	}

	f := fleet.New(name, bootstrap.BuildFleetConfig(spec), reg, slog.Default())
	if err := f.Start(); err != nil {
		return err
	}
	f.SubmitTask(input)
	task, err := f.ExecuteNext(cmd.Context())
	if err != nil {
		return err
	}
	return writeResult(cmd, "json", map[string]any{"task_id": task.ID, "status": task.Status, "result": task.Result, "error": task.Error})
}

func writeResult(cmd *cobra.Command, format string, data map[string]any) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "yaml":
		b, err := yaml.Marshal(data)
		if err != nil {
			return err
		}
		_, err = out.Write(b)
		return err
	default:
		if text, ok := data["output"]; ok {
			fmt.Fprintln(out, text)
			return nil
		}
		fmt.Fprintf(out, "%+v\n", data)
		return nil
	}
}
