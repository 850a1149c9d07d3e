package channels

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// DiscordConfig holds the credentials a Discord adapter needs.
type DiscordConfig struct {
	BotToken      string // used as "Bot <token>" for REST calls
	PublicKey     string // Ed25519 public key for interaction verification (unused here; HMAC covers webhook signing per spec §6)
}

// Discord implements trigger.Platform and flow.DiscordSender against
// Discord's REST API via a discordgo.Session that is never Open()'d —
// grounded on internal/channels/discord/adapter.go's session
// construction, trimmed of its gateway event loop since inbound events
// arrive through the shared webhook route instead.
type Discord struct {
	session *discordgo.Session
}

// NewDiscord builds a Discord adapter from the given credentials.
func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	return &Discord{session: session}, nil
}

// Reply posts text to a Discord channel. Discord has no first-class
// thread-timestamp reply; threadID, when set, is itself a Discord
// thread/channel ID and is used as the post target.
func (d *Discord) Reply(ctx context.Context, channelID, threadID, text string) (string, error) {
	target := channelID
	if threadID != "" {
		target = threadID
	}
	msg, err := d.session.ChannelMessageSendComplex(target, &discordgo.MessageSend{Content: text}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: send message: %w", err)
	}
	return msg.ID, nil
}

// AddReactions adds one or more emoji reactions to a posted message.
func (d *Discord) AddReactions(ctx context.Context, channelID, messageID string, reactions []string) error {
	for _, r := range reactions {
		if err := d.session.MessageReactionAdd(channelID, messageID, r, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord: add reaction %q: %w", r, err)
		}
	}
	return nil
}

// RunCommand executes an operator-approved shell command.
func (d *Discord) RunCommand(ctx context.Context, command string) (string, string, error) {
	return runApprovedCommand(ctx, command)
}

// Send satisfies flow.DiscordSender for AgentFlow Discord-notify nodes.
func (d *Discord) Send(ctx context.Context, channel, message string) error {
	_, err := d.Reply(ctx, channel, "", message)
	return err
}

// PlatformName identifies this adapter to the Trigger Handler.
func (d *Discord) PlatformName() string { return "discord" }
