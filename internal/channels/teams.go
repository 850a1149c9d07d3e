package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/clientcredentials"
)

// TeamsConfig holds the credentials a Teams adapter needs.
type TeamsConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	JWTSecret    string // shared secret used to validate inbound Bearer tokens
}

// Teams implements trigger.Platform against the Microsoft Graph chat
// API, authenticating via OAuth2 client-credentials. Grounded on
// internal/channels/teams/adapter.go's authenticate()/Send() shape
// (graph.microsoft.com/v1.0 chat messages), trimmed of its
// chat-polling loop since inbound events arrive through the shared
// webhook route instead.
type Teams struct {
	cfg    TeamsConfig
	tokens *clientcredentials.Config
	http   *http.Client
}

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// NewTeams builds a Teams adapter from the given credentials.
func NewTeams(cfg TeamsConfig) *Teams {
	return &Teams{
		cfg: cfg,
		tokens: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		},
		http: http.DefaultClient,
	}
}

// VerifyBearer checks an inbound webhook's Authorization header.
func (t *Teams) VerifyBearer(authorizationHeader string) error {
	return VerifyJWTBearer(t.cfg.JWTSecret, authorizationHeader)
}

// Reply posts text to a Teams chat. channelID is the Graph chat ID;
// threadID is unused (Teams chat messages are unthreaded at the Graph
// API surface this adapter targets).
func (t *Teams) Reply(ctx context.Context, channelID, threadID, text string) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"body": map[string]string{"contentType": "text", "content": text},
	})
	url := fmt.Sprintf("%s/chats/%s/messages", graphBaseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.tokens.Client(ctx)
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("teams: send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("teams: send message: status %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("teams: decode response: %w", err)
	}
	return created.ID, nil
}

// AddReactions is a no-op: the Graph chat-message surface this adapter
// targets has no reaction-add endpoint comparable to Slack/Discord's.
func (t *Teams) AddReactions(ctx context.Context, channelID, messageID string, reactions []string) error {
	return nil
}

// RunCommand executes an operator-approved shell command.
func (t *Teams) RunCommand(ctx context.Context, command string) (string, string, error) {
	return runApprovedCommand(ctx, command)
}

// PlatformName identifies this adapter to the Trigger Handler.
func (t *Teams) PlatformName() string { return "teams" }
