package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync/atomic"

	"github.com/aof-dev/aof/internal/config"
	"github.com/aof-dev/aof/internal/providers"
	"github.com/aof-dev/aof/internal/schedule"
	"github.com/aof-dev/aof/pkg/kernel/flow"
	"github.com/aof-dev/aof/pkg/kernel/registry"
	"github.com/aof-dev/aof/pkg/kernel/trigger"
	"github.com/aof-dev/aof/pkg/kernel/workflow"
)

// LoadAgentsDir loads every Agent resource file in dir into a fresh
// Runtime Registry (spec §4.3: "every *.yaml/*.yml whose kind is
// Agent").
func LoadAgentsDir(dir string, creds providers.Credentials, logger *slog.Logger) (*registry.Registry, error) {
	reg := registry.New(logger)
	files, err := config.ListResourceFiles(dir, config.KindAgent)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		name, spec, err := config.LoadAgent(f)
		if err != nil {
			return nil, err
		}
		exec, err := BuildAgent(name, spec, creds, logger)
		if err != nil {
			return nil, err
		}
		if err := reg.Load(name, exec); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// LoadWorkflowsDir loads every Workflow resource file in dir into a
// Runner keyed by resource name. sink may be nil if nothing consumes
// workflow run events.
func LoadWorkflowsDir(dir string, agents workflow.AgentRunner, sink workflow.Sink) (map[string]*workflow.Runner, error) {
	files, err := config.ListResourceFiles(dir, config.KindWorkflow)
	if err != nil {
		return nil, err
	}
	runners := make(map[string]*workflow.Runner, len(files))
	for _, f := range files {
		name, spec, err := config.LoadWorkflow(f)
		if err != nil {
			return nil, err
		}
		runners[name] = workflow.New(name, spec, agents, nil, nil, sink)
	}
	return runners, nil
}

// FlowDeps bundles the outbound collaborators flow nodes may dispatch
// to; any field may be nil if no loaded flow uses that node type.
type FlowDeps struct {
	Loader  flow.AgentLoader
	Slack   flow.SlackSender
	Discord flow.DiscordSender
	HTTP    flow.HTTPDoer
	Sink    flow.Sink
}

// LoadFlowsDir loads every AgentFlow resource file in dir into a Runner
// keyed by resource name.
func LoadFlowsDir(dir string, agents flow.AgentRunner, deps FlowDeps) (map[string]*flow.Runner, error) {
	files, err := config.ListResourceFiles(dir, config.KindFlow)
	if err != nil {
		return nil, err
	}
	runners := make(map[string]*flow.Runner, len(files))
	for _, f := range files {
		name, spec, err := config.LoadFlow(f)
		if err != nil {
			return nil, err
		}
		runners[name] = flow.New(name, spec, agents, deps.Loader, deps.Slack, deps.Discord, deps.HTTP, deps.Sink)
	}
	return runners, nil
}

// LoadTriggersDir loads every Trigger resource file in dir, groups
// registered Flow resources under the trigger whose name they
// reference, and returns one trigger.Handler per platform (spec §4.8's
// FlowRouter scoping is platform-scoped, so triggers sharing a platform
// share a Handler).
func LoadTriggersDir(dir, flowsDir string, platforms map[string]trigger.Platform, flows map[string]*flow.Runner, agents trigger.AgentRunner, cfg trigger.Config) (map[string]*trigger.Handler, error) {
	triggerFiles, err := config.ListResourceFiles(dir, config.KindTrigger)
	if err != nil {
		return nil, err
	}
	triggersByName := make(map[string]*config.TriggerSpec, len(triggerFiles))
	handlers := make(map[string]*trigger.Handler, len(triggerFiles))
	for _, f := range triggerFiles {
		name, spec, err := config.LoadTrigger(f)
		if err != nil {
			return nil, err
		}
		triggersByName[name] = spec

		handler, ok := handlers[spec.Platform]
		if !ok {
			platform, ok := platforms[spec.Platform]
			if !ok {
				return nil, fmt.Errorf("trigger %s: no platform adapter registered for %q", name, spec.Platform)
			}
			bindings := make(map[string]trigger.CommandBinding, len(spec.Commands))
			for cmd, b := range spec.Commands {
				bindings[cmd] = trigger.CommandBinding{Target: string(b.Target), Name: b.Name, Description: b.Description}
			}
			cfg.DefaultAgent = spec.DefaultAgent
			handler = trigger.New(cfg, platform, &flowRunner{flows: flows}, agents, bindings)
			handlers[spec.Platform] = handler
		}
	}

	flowFiles, err := config.ListResourceFiles(flowsDir, config.KindFlow)
	if err != nil {
		return nil, err
	}
	order := 0
	for _, f := range flowFiles {
		name, spec, err := config.LoadFlow(f)
		if err != nil {
			return nil, err
		}
		boundTrigger, ok := triggersByName[spec.Trigger.Trigger]
		if !ok {
			continue
		}
		handler, ok := handlers[boundTrigger.Platform]
		if !ok {
			continue
		}
		var patterns []*regexp.Regexp
		for _, p := range boundTrigger.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("trigger pattern %q: %w", p, err)
			}
			patterns = append(patterns, re)
		}
		handler.RegisterFlow(trigger.FlowDescriptor{
			Name:     name,
			Platform: boundTrigger.Platform,
			Channels: boundTrigger.Channels,
			Users:    boundTrigger.Users,
			Patterns: patterns,
		})
		order++
	}

	return handlers, nil
}

// RegisterScheduledTriggers reads every Trigger resource in dir whose
// platform is "schedule" and registers a cron job for each on sched,
// dispatching into the "schedule" entry of handlers (built by
// LoadTriggersDir with a channels.NewSchedule adapter registered under
// that platform name). Returns the number of jobs registered.
func RegisterScheduledTriggers(dir string, handlers map[string]*trigger.Handler, sched *schedule.Scheduler) (int, error) {
	handler, ok := handlers["schedule"]
	if !ok {
		return 0, nil
	}
	files, err := config.ListResourceFiles(dir, config.KindTrigger)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, f := range files {
		name, spec, err := config.LoadTrigger(f)
		if err != nil {
			return 0, err
		}
		if spec.Platform != "schedule" {
			continue
		}
		_, err = sched.Register(schedule.Job{
			Name:    name,
			Cron:    spec.Schedule,
			Handler: handler,
			Message: trigger.Message{
				Platform:  "schedule",
				ChannelID: name,
				Text:      spec.ScheduleMessage,
			},
		})
		if err != nil {
			return 0, fmt.Errorf("trigger %s: %w", name, err)
		}
		count++
	}
	return count, nil
}

// flowRunner adapts a map of flow.Runner to trigger.FlowRunner, minting
// a run ID per invocation.
type flowRunner struct {
	flows map[string]*flow.Runner
	seq   int64
}

func (r *flowRunner) Run(ctx context.Context, name string, data map[string]any) error {
	runner, ok := r.flows[name]
	if !ok {
		return fmt.Errorf("flow %q is not registered", name)
	}
	runID := fmt.Sprintf("%s-%d", name, atomic.AddInt64(&r.seq, 1))
	_, err := runner.Start(ctx, runID, data)
	return err
}
