package channels

import (
	"context"
	"log/slog"
)

// Schedule implements trigger.Platform for the synthetic "schedule"
// platform (spec §1's cron-driven trigger source): it has no outbound
// chat surface of its own, so Reply and AddReactions just log at debug
// level instead of posting anywhere. RunCommand still executes
// operator-approved commands the same way every other adapter does, so
// a scheduled trigger's agent can still request an approval-gated
// command even though nobody is present to click a reaction.
type Schedule struct {
	logger *slog.Logger
}

// NewSchedule builds the no-op Platform adapter a schedule-triggered
// Handler is constructed with.
func NewSchedule(logger *slog.Logger) *Schedule {
	if logger == nil {
		logger = slog.Default()
	}
	return &Schedule{logger: logger.With("component", "channels.schedule")}
}

// Reply logs the agent's output; a cron tick has no requester to reply
// to.
func (s *Schedule) Reply(ctx context.Context, channelID, threadID, text string) (string, error) {
	s.logger.Info("scheduled run output", "channel", channelID, "text", text)
	return "", nil
}

// AddReactions is a no-op: scheduled runs never post an approval prompt
// a human could react to.
func (s *Schedule) AddReactions(ctx context.Context, channelID, messageID string, reactions []string) error {
	return nil
}

// RunCommand executes an operator-approved shell command, identically
// to the chat platform adapters.
func (s *Schedule) RunCommand(ctx context.Context, command string) (string, string, error) {
	return runApprovedCommand(ctx, command)
}

// PlatformName identifies this adapter to the Trigger Handler.
func (s *Schedule) PlatformName() string { return "schedule" }
