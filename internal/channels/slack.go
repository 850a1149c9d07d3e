package channels

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackConfig holds the credentials a Slack adapter needs.
type SlackConfig struct {
	BotToken      string // xoxb- token for Web API calls
	SigningSecret string // shared secret for request signature verification
}

// Slack implements trigger.Platform and flow.SlackSender against
// Slack's Web API. Grounded on internal/channels/slack/adapter.go's
// client construction and Block Kit reply shape, trimmed of Socket
// Mode: inbound events arrive through the shared webhook route
// instead of a persistent event-stream connection.
type Slack struct {
	client *slack.Client
	cfg    SlackConfig
}

// NewSlack builds a Slack adapter from the given credentials.
func NewSlack(cfg SlackConfig) *Slack {
	return &Slack{client: slack.New(cfg.BotToken), cfg: cfg}
}

// VerifySignature checks an inbound webhook request's
// "X-Slack-Signature" against its body per Slack's v0 signing scheme.
func (s *Slack) VerifySignature(signature string, timestamp string, body []byte) error {
	basestring := "v0:" + timestamp + ":" + string(body)
	return VerifyHMACSHA256(s.cfg.SigningSecret, signature, "v0=", []byte(basestring))
}

// Reply posts text to a Slack channel, replying in-thread when
// threadID is set.
func (s *Slack) Reply(ctx context.Context, channelID, threadID, text string) (string, error) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadID != "" {
		opts = append(opts, slack.MsgOptionTS(threadID))
	}
	_, ts, err := s.client.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return ts, nil
}

// AddReactions adds one or more emoji reactions to a posted message.
func (s *Slack) AddReactions(ctx context.Context, channelID, messageTS string, reactions []string) error {
	ref := slack.ItemRef{Channel: channelID, Timestamp: messageTS}
	for _, r := range reactions {
		if err := s.client.AddReactionContext(ctx, r, ref); err != nil {
			return fmt.Errorf("slack: add reaction %q: %w", r, err)
		}
	}
	return nil
}

// RunCommand executes an operator-approved shell command.
func (s *Slack) RunCommand(ctx context.Context, command string) (string, string, error) {
	return runApprovedCommand(ctx, command)
}

// Send satisfies flow.SlackSender for AgentFlow Slack-notify nodes.
func (s *Slack) Send(ctx context.Context, channel, message string) (string, error) {
	return s.Reply(ctx, channel, "", message)
}

// PlatformName identifies this adapter to the Trigger Handler.
func (s *Slack) PlatformName() string { return "slack" }
