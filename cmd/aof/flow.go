package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aof-dev/aof/internal/bootstrap"
	"github.com/aof-dev/aof/internal/config"
	"github.com/aof-dev/aof/pkg/kernel/flow"
)

// buildFlowCmd creates the "flow" command group: AgentFlow lifecycle
// management against a local flows directory (spec §6 CLI surface).
// There is no separate daemon to register flows with outside "serve",
// so "apply"/"get"/"delete" operate directly on the resource files in
// --flows-dir, and "run" executes one flow to completion in-process.
func buildFlowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Manage and run AgentFlow resources",
	}
	cmd.AddCommand(
		buildFlowApplyCmd(),
		buildFlowGetCmd(),
		buildFlowRunCmd(),
		buildFlowStatusCmd(),
		buildFlowLogsCmd(),
		buildFlowDeleteCmd(),
	)
	return cmd
}

func buildFlowApplyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Validate an AgentFlow resource file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("-f <file> is required")
			}
			name, spec, err := config.LoadFlow(file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "flow %q applied (%d nodes)\n", name, len(spec.Nodes))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "filename", "f", "", "Path to the AgentFlow resource file")
	return cmd
}

func buildFlowGetCmd() *cobra.Command {
	var flowsDir string
	cmd := &cobra.Command{
		Use:   "get [name]",
		Short: "Print one or all AgentFlow resources in --flows-dir",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := config.ListResourceFiles(flowsDir, config.KindFlow)
			if err != nil {
				return err
			}
			for _, f := range files {
				name, spec, err := config.LoadFlow(f)
				if err != nil {
					return err
				}
				if len(args) == 1 && args[0] != name {
					continue
				}
				b, err := yaml.Marshal(map[string]any{"name": name, "spec": spec})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flowsDir, "flows-dir", ".", "Directory of AgentFlow resource files")
	return cmd
}

func buildFlowRunCmd() *cobra.Command {
	var inputJSON, agentsDir, flowsDir string
	cmd := &cobra.Command{
		Use:   "run <name-or-file>",
		Short: "Run one AgentFlow to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlow(cmd, args[0], inputJSON, agentsDir, flowsDir)
		},
	}
	cmd.Flags().StringVar(&inputJSON, "input", "{}", "JSON input for the flow's trigger data")
	cmd.Flags().StringVar(&agentsDir, "agents-dir", ".", "Directory of Agent resource files referenced by this flow")
	cmd.Flags().StringVar(&flowsDir, "flows-dir", ".", "Directory to search when <name-or-file> is a resource name")
	return cmd
}

func runFlow(cmd *cobra.Command, nameOrFile, inputJSON, agentsDir, flowsDir string) error {
	path, err := resolveFlowFile(nameOrFile, flowsDir)
	if err != nil {
		return err
	}
	name, spec, err := config.LoadFlow(path)
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

	sink := &journalSink{}
	runner := flow.New(name, spec, reg, nil, nil, nil, nil, sink)
	runID := fmt.Sprintf("%s-cli", name)
	state, runErr := runner.Start(cmd.Context(), runID, input)

	rec := runRecord{RunID: runID, FlowName: name, Events: sink.events}
	if state != nil {
		snap := state.Snapshot()
		rec.Status = string(snap.Status)
		rec.Err = snap.Err
	}
	if runErr != nil && rec.Status == "" {
		rec.Status = string(flow.StatusFailed)
		rec.Err = runErr.Error()
	}
	if writeErr := writeRunRecord(rec); writeErr != nil {
		slog.Default().Warn("could not persist run record", "run_id", runID, "error", writeErr)
	}
	if runErr != nil {
		return runErr
	}
	return writeResult(cmd, "json", map[string]any{"run_id": rec.RunID, "status": rec.Status})
}

// journalSink buffers flow events for writeRunRecord; the CLI's "flow
// run" invocation is its own process lifetime, so this is the only
// place those events are visible to "flow status"/"flow logs".
type journalSink struct {
	events []flowEventEntry
}

func (s *journalSink) Emit(ev flow.Event) {
	s.events = append(s.events, flowEventEntry{Type: string(ev.Type), Node: ev.Node, Reason: ev.Reason})
}

func buildFlowStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Print the recorded status of a flow run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRunRecord(args[0])
			if err != nil {
				return fmt.Errorf("no recorded run %q: %w", args[0], err)
			}
			return writeResult(cmd, "json", map[string]any{"run_id": rec.RunID, "flow": rec.FlowName, "status": rec.Status, "error": rec.Err})
		},
	}
	return cmd
}

func buildFlowLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <run-id>",
		Short: "Print the recorded node events of a flow run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRunRecord(args[0])
			if err != nil {
				return fmt.Errorf("no recorded run %q: %w", args[0], err)
			}
			for _, ev := range rec.Events {
				if ev.Reason != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", ev.Type, ev.Node, ev.Reason)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ev.Type, ev.Node)
				}
			}
			return nil
		},
	}
	return cmd
}

func buildFlowDeleteCmd() *cobra.Command {
	var flowsDir string
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove an AgentFlow resource file from --flows-dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveFlowFile(args[0], flowsDir)
			if err != nil {
				return err
			}
			return os.Remove(path)
		},
	}
	cmd.Flags().StringVar(&flowsDir, "flows-dir", ".", "Directory of AgentFlow resource files")
	return cmd
}

// resolveFlowFile treats nameOrFile as a direct path if it exists on
// disk, otherwise searches flowsDir for the AgentFlow resource whose
// metadata.name matches.
func resolveFlowFile(nameOrFile, flowsDir string) (string, error) {
	if _, err := os.Stat(nameOrFile); err == nil {
		return nameOrFile, nil
	}
	files, err := config.ListResourceFiles(flowsDir, config.KindFlow)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		name, _, err := config.LoadFlow(f)
		if err != nil {
			return "", err
		}
		if name == nameOrFile {
			return f, nil
		}
	}
	return "", fmt.Errorf("no AgentFlow named %q in %s", nameOrFile, filepath.Clean(flowsDir))
}
