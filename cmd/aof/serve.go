package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aof-dev/aof/internal/bootstrap"
	"github.com/aof-dev/aof/internal/channels"
	"github.com/aof-dev/aof/internal/observability"
	"github.com/aof-dev/aof/internal/schedule"
	"github.com/aof-dev/aof/internal/server"
	"github.com/aof-dev/aof/pkg/kernel/flow"
	"github.com/aof-dev/aof/pkg/kernel/trigger"
)

// buildServeCmd creates the long-running "serve" command: loads every
// resource directory once at startup and hosts the webhook/health/
// workflow HTTP surface until signaled to stop (spec §4.9, §6).
// Grounded on the teacher's cmd/nexus/commands_serve.go runServe
// delegation and signal.NotifyContext shutdown.
func buildServeCmd() *cobra.Command {
	var (
		port        int
		host        string
		agentsDir   string
		flowsDir    string
		triggersDir string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the webhook, health, and workflow HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, host, port, agentsDir, flowsDir, triggersDir)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "Listen port")
	cmd.Flags().StringVar(&host, "host", "", "Listen host (default: all interfaces)")
	cmd.Flags().StringVar(&agentsDir, "agents-dir", "agents", "Directory of Agent resource files")
	cmd.Flags().StringVar(&flowsDir, "flows-dir", "flows", "Directory of AgentFlow resource files")
	cmd.Flags().StringVar(&triggersDir, "triggers-dir", "triggers", "Directory of Trigger resource files")
	return cmd
}

func runServe(cmd *cobra.Command, host string, port int, agentsDir, flowsDir, triggersDir string) error {
	logger := slog.Default()
	creds := credentialsFromEnv()

	agents, err := bootstrap.LoadAgentsDir(agentsDir, creds, logger)
	if err != nil {
		return err
	}
	workflows, err := bootstrap.LoadWorkflowsDir(flowsDir, agents, nil)
	if err != nil {
		return err
	}

	// Platform adapters register themselves only when their credentials
	// are present in the environment; a deployment with no channel
	// credentials configured still serves health checks and workflow
	// dispatch.
	platforms := platformsFromEnv()
	flows, err := bootstrap.LoadFlowsDir(flowsDir, agents, flowDepsFromPlatforms(platforms))
	if err != nil {
		return err
	}

	triggers, err := bootstrap.LoadTriggersDir(triggersDir, flowsDir, platforms, flows, agents, trigger.Config{})
	if err != nil {
		return err
	}

	sched := schedule.New(logger)
	scheduledCount, err := bootstrap.RegisterScheduledTriggers(triggersDir, triggers, sched)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sched.Stop(stopCtx); err != nil {
			logger.Warn("scheduler stop", "error", err)
		}
	}()

	addr := host
	if port != 0 {
		addr = fmt.Sprintf("%s:%d", host, port)
	}

	metrics := observability.NewMetrics()
	srv := server.New(server.Config{Addr: addr}, server.Deps{
		Triggers:  triggers,
		Workflows: workflows,
		Verifiers: verifiersFromPlatforms(platforms),
		Logger:    logger,
		Metrics:   metrics,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting server", "addr", addr, "workflows", len(workflows), "flows", len(flows), "triggers", len(triggers), "scheduled_jobs", scheduledCount)
	start := time.Now()
	err = srv.Run(ctx)
	logger.Info("server stopped", "uptime", time.Since(start))
	return err
}

// flowDepsFromPlatforms adapts the registered platform adapters into
// the narrower collaborator interfaces AgentFlow Slack/Discord/HTTP
// nodes dispatch through.
func flowDepsFromPlatforms(platforms map[string]trigger.Platform) bootstrap.FlowDeps {
	var deps bootstrap.FlowDeps
	if s, ok := platforms["slack"].(*channels.Slack); ok {
		deps.Slack = flow.SlackSender(s)
	}
	if d, ok := platforms["discord"].(*channels.Discord); ok {
		deps.Discord = flow.DiscordSender(d)
	}
	if h, ok := platforms["http"].(*channels.HTTP); ok {
		deps.HTTP = flow.HTTPDoer(h)
	}
	return deps
}

// verifiersFromPlatforms builds the per-platform signature-verification
// functions server.Deps.Verifiers dispatches through (spec §6).
func verifiersFromPlatforms(platforms map[string]trigger.Platform) map[string]func(*http.Request, []byte) error {
	verifiers := map[string]func(*http.Request, []byte) error{}
	if s, ok := platforms["slack"].(*channels.Slack); ok {
		verifiers["slack"] = func(r *http.Request, body []byte) error {
			return s.VerifySignature(r.Header.Get("X-Slack-Signature"), r.Header.Get("X-Slack-Request-Timestamp"), body)
		}
	}
	if t, ok := platforms["teams"].(*channels.Teams); ok {
		verifiers["teams"] = func(r *http.Request, body []byte) error {
			return t.VerifyBearer(r.Header.Get("Authorization"))
		}
	}
	if h, ok := platforms["http"].(*channels.HTTP); ok {
		verifiers["http"] = func(r *http.Request, body []byte) error {
			return h.VerifySignature(r.Header.Get("X-Hub-Signature-256"), body)
		}
	}
	if pd, ok := platforms["pagerduty"].(*channels.PagerDuty); ok {
		verifiers["pagerduty"] = func(r *http.Request, body []byte) error {
			return pd.VerifySignature(r.Header.Get("X-PagerDuty-Signature"), body)
		}
	}
	return verifiers
}
