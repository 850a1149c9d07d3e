package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PagerDutyConfig holds the credentials and filters a PagerDuty
// adapter needs. Grounded on crates/aof-triggers/src/platforms/
// pagerduty.rs's PagerDutyConfig.
type PagerDutyConfig struct {
	WebhookSecret string // V3 webhook signing secret
	APIToken      string // REST API token; required only for note/status actions
	FromEmail     string // "From" header required by the REST API
	BotName       string
}

// PagerDuty implements trigger.Platform against PagerDuty's V3
// Webhooks and REST Incidents API. Grounded on pagerduty.rs's
// PagerDutyPlatform: webhook signature verification plus
// add_incident_note/update_incident_status REST actions, trimmed of
// the event-type/service/team/priority/urgency filtering pagerduty.rs
// applies before dispatch (spec §4.8 routes every inbound event
// through the shared Trigger Handler, which has no equivalent
// per-platform filter stage).
type PagerDuty struct {
	cfg  PagerDutyConfig
	http *http.Client
}

const pagerDutyAPIBaseURL = "https://api.pagerduty.com"

// NewPagerDuty builds a PagerDuty adapter from the given credentials.
func NewPagerDuty(cfg PagerDutyConfig) *PagerDuty {
	if cfg.BotName == "" {
		cfg.BotName = "aofbot"
	}
	return &PagerDuty{cfg: cfg, http: &http.Client{Timeout: 30 * time.Second}}
}

// VerifySignature checks an inbound webhook's "X-PagerDuty-Signature"
// header against its raw body. PagerDuty's v1 scheme signs the whole
// body directly, unlike Slack's "v0:timestamp:body" basestring.
func (p *PagerDuty) VerifySignature(signature string, body []byte) error {
	return VerifyHMACSHA256(p.cfg.WebhookSecret, signature, "v1=", body)
}

// Reply adds a note to the PagerDuty incident identified by threadID
// (the Trigger Handler sets threadID to the incident ID when it
// normalizes a PagerDuty webhook, mirroring pagerduty.rs's
// parse_pagerduty_event). channelID (the PagerDuty service ID) is
// unused: notes attach to incidents, not services.
func (p *PagerDuty) Reply(ctx context.Context, channelID, threadID, text string) (string, error) {
	if threadID == "" {
		return "", fmt.Errorf("pagerduty: reply requires an incident id (threadID)")
	}
	if err := p.addIncidentNote(ctx, threadID, text); err != nil {
		return "", err
	}
	return threadID, nil
}

// AddReactions is a no-op: PagerDuty's incident API has no reaction
// concept comparable to Slack/Discord's.
func (p *PagerDuty) AddReactions(ctx context.Context, channelID, messageID string, reactions []string) error {
	return nil
}

// RunCommand executes an operator-approved shell command.
func (p *PagerDuty) RunCommand(ctx context.Context, command string) (string, string, error) {
	return runApprovedCommand(ctx, command)
}

// PlatformName identifies this adapter to the Trigger Handler.
func (p *PagerDuty) PlatformName() string { return "pagerduty" }

// addIncidentNote posts a note to an incident via the REST Incidents
// API. Grounded on pagerduty.rs's add_incident_note: "Token
// token={api_token}" auth plus a "From" header carrying the acting
// user's email, both required by the API regardless of note content.
func (p *PagerDuty) addIncidentNote(ctx context.Context, incidentID, note string) error {
	return p.incidentRequest(ctx, http.MethodPost, fmt.Sprintf("%s/incidents/%s/notes", pagerDutyAPIBaseURL, incidentID),
		map[string]any{"note": map[string]string{"content": note}})
}

// UpdateIncidentStatus transitions an incident to status
// ("acknowledged" or "resolved"). Grounded on pagerduty.rs's
// update_incident_status.
func (p *PagerDuty) UpdateIncidentStatus(ctx context.Context, incidentID, status string) error {
	return p.incidentRequest(ctx, http.MethodPut, fmt.Sprintf("%s/incidents/%s", pagerDutyAPIBaseURL, incidentID),
		map[string]any{"incident": map[string]string{"type": "incident_reference", "status": status}})
}

func (p *PagerDuty) incidentRequest(ctx context.Context, method, url string, payload map[string]any) error {
	if p.cfg.APIToken == "" {
		return fmt.Errorf("pagerduty: api token not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Token token=%s", p.cfg.APIToken))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("From", p.cfg.FromEmail)

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("pagerduty: api error: status %d", resp.StatusCode)
	}
	return nil
}
