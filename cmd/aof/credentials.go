package main

import (
	"log/slog"
	"os"

	"github.com/aof-dev/aof/internal/channels"
	"github.com/aof-dev/aof/internal/providers"
	"github.com/aof-dev/aof/pkg/kernel/trigger"
)

// credentialsFromEnv resolves provider API keys from the process
// environment (spec §6: credentials are never stored in YAML).
func credentialsFromEnv() providers.Credentials {
	return providers.Credentials{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
		AWSRegion:       os.Getenv("AWS_REGION"),
	}
}

// platformsFromEnv registers a trigger.Platform adapter for every
// channel whose credentials are present in the environment (spec §6:
// credentials never live in Trigger YAML).
func platformsFromEnv() map[string]trigger.Platform {
	platforms := map[string]trigger.Platform{}
	platforms["schedule"] = channels.NewSchedule(slog.Default())

	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" {
		platforms["slack"] = channels.NewSlack(channels.SlackConfig{
			BotToken:      token,
			SigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		})
	}
	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" {
		if adapter, err := channels.NewDiscord(channels.DiscordConfig{BotToken: token}); err == nil {
			platforms["discord"] = adapter
		}
	}
	if tenant := os.Getenv("TEAMS_TENANT_ID"); tenant != "" {
		platforms["teams"] = channels.NewTeams(channels.TeamsConfig{
			TenantID:     tenant,
			ClientID:     os.Getenv("TEAMS_CLIENT_ID"),
			ClientSecret: os.Getenv("TEAMS_CLIENT_SECRET"),
			JWTSecret:    os.Getenv("TEAMS_JWT_SECRET"),
		})
	}
	if url := os.Getenv("HTTP_REPLY_URL"); url != "" {
		platforms["http"] = channels.NewHTTP(channels.HTTPConfig{
			ReplyURL: url,
			Secret:   os.Getenv("HTTP_WEBHOOK_SECRET"),
		})
	}
	if secret := os.Getenv("PAGERDUTY_WEBHOOK_SECRET"); secret != "" {
		platforms["pagerduty"] = channels.NewPagerDuty(channels.PagerDutyConfig{
			WebhookSecret: secret,
			APIToken:      os.Getenv("PAGERDUTY_API_TOKEN"),
			FromEmail:     os.Getenv("PAGERDUTY_FROM_EMAIL"),
			BotName:       os.Getenv("PAGERDUTY_BOT_NAME"),
		})
	}

	return platforms
}
