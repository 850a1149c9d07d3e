package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing, matching the teacher's
// buildRootCmd idiom.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aof",
		Short: "aof - agentic operations orchestrator",
		Long: `aof runs configured agents, workflows, fleets, and AgentFlows,
and serves platform webhooks that route into them.

Resource kinds: Agent, Fleet, Workflow, AgentFlow, Trigger — each a
Kubernetes-style YAML envelope (apiVersion, kind, metadata, spec).`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildFlowCmd(),
		buildServeCmd(),
	)

	return rootCmd
}
