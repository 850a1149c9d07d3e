// Command aof is the CLI entry point for the agentic-operations
// orchestrator: one-shot agent/workflow/fleet runs, AgentFlow lifecycle
// management, and the long-running server. Grounded on the teacher's
// cmd/nexus/main.go (buildRootCmd assembly, JSON slog bootstrap,
// SilenceUsage) and commands_serve.go (thin RunE -> runX() delegation).
package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/aof-dev/aof/internal/config"
	"github.com/aof-dev/aof/internal/observability"
)

func main() {
	obsLogger := observability.NewLogger(observability.LogConfig{
		Level:  os.Getenv("AOF_LOG_LEVEL"),
		Format: "json",
		Output: os.Stderr,
	})
	logger := obsLogger.Slog()
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error onto spec §6's CLI exit codes: 2 for a
// config/parse error, 1 for everything else.
func exitCodeFor(err error) int {
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}
