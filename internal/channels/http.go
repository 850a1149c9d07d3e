package channels

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPConfig holds the credentials a generic HTTP webhook adapter
// needs.
type HTTPConfig struct {
	ReplyURL string // where Reply posts its text back to, e.g. a generic incident tool
	Secret   string // HMAC secret for inbound signature verification
}

// HTTP implements trigger.Platform for platforms with no dedicated SDK
// (generic incident/ops tools posting plain webhooks), and flow.HTTPDoer
// for AgentFlow HTTP-request nodes. Grounded on the PagerDuty/GitHub
// HMAC-SHA256 signing scheme spec §6 names alongside Slack.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTP builds a generic HTTP adapter from the given configuration.
func NewHTTP(cfg HTTPConfig) *HTTP {
	return &HTTP{cfg: cfg, client: http.DefaultClient}
}

// VerifySignature checks an inbound webhook's signature header
// (PagerDuty and GitHub both send "sha256=<hex>").
func (h *HTTP) VerifySignature(signature string, body []byte) error {
	return VerifyHMACSHA256(h.cfg.Secret, signature, "sha256=", body)
}

// Reply posts text as a JSON body to the configured ReplyURL.
// channelID/threadID are carried as query parameters so a receiving
// service can route the reply.
func (h *HTTP) Reply(ctx context.Context, channelID, threadID, text string) (string, error) {
	url := h.cfg.ReplyURL
	if channelID != "" {
		url += "?channel=" + channelID
		if threadID != "" {
			url += "&thread=" + threadID
		}
	}
	status, _, err := h.Do(ctx, http.MethodPost, url, text)
	if err != nil {
		return "", err
	}
	if status >= 300 {
		return "", fmt.Errorf("channels: reply post returned status %d", status)
	}
	return "", nil
}

// AddReactions is a no-op: a generic webhook target has no reaction
// concept.
func (h *HTTP) AddReactions(ctx context.Context, channelID, messageID string, reactions []string) error {
	return nil
}

// RunCommand executes an operator-approved shell command.
func (h *HTTP) RunCommand(ctx context.Context, command string) (string, string, error) {
	return runApprovedCommand(ctx, command)
}

// Do performs an outbound HTTP request for AgentFlow HTTP-request
// nodes (flow.HTTPDoer).
func (h *HTTP) Do(ctx context.Context, method, url string, body string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("channels: http request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("channels: read response: %w", err)
	}
	return resp.StatusCode, string(data), nil
}

// PlatformName identifies this adapter to the Trigger Handler.
func (h *HTTP) PlatformName() string { return "http" }
