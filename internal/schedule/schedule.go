// Package schedule drives the "schedule" trigger platform: it parses
// cron expressions and feeds a synthetic trigger.Message into a
// Handler on each tick. Grounded on the teacher's own cron scheduler
// shape (job registration by name, start/stop lifecycle tied to the
// server's), rebuilt here on top of the same third-party cron parser
// the teacher used rather than a hand-rolled ticker loop.
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/aof-dev/aof/pkg/kernel/trigger"
)

// Handler is the subset of *trigger.Handler a scheduled job calls into.
type Handler interface {
	Handle(ctx context.Context, msg trigger.Message) error
}

// Job is one scheduled trigger: on every tick matching Cron, Message is
// handed to Handler.Handle as a synthetic inbound event.
type Job struct {
	Name    string
	Cron    string
	Handler Handler
	Message trigger.Message
}

// Scheduler wraps a cron.Cron instance, logging and swallowing any
// error a scheduled Handle call returns (a single bad tick must not
// bring down the rest of the schedule).
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New builds a Scheduler. Standard five-field cron syntax, no seconds
// field, matching robfig/cron/v3's default parser.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		logger: logger.With("component", "schedule.scheduler"),
	}
}

// Register parses job.Cron and adds it to the schedule. Returns the
// entry ID, or an error if the expression is invalid.
func (s *Scheduler) Register(job Job) (cron.EntryID, error) {
	if job.Handler == nil {
		return 0, fmt.Errorf("schedule: job %q has no handler", job.Name)
	}
	name := job.Name
	return s.cron.AddFunc(job.Cron, func() {
		ctx := context.Background()
		if err := job.Handler.Handle(ctx, job.Message); err != nil {
			s.logger.Error("scheduled trigger failed", "job", name, "error", err)
		}
	})
}

// Start begins running registered jobs in their own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule, waiting for any in-flight job to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
