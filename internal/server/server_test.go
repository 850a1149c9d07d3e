package server

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aof-dev/aof/internal/observability"
	"github.com/aof-dev/aof/pkg/kernel/trigger"
)

type noopPlatform struct{}

func (noopPlatform) Reply(ctx context.Context, channelID, threadID, text string) (string, error) {
	return "", nil
}
func (noopPlatform) AddReactions(ctx context.Context, channelID, messageID string, reactions []string) error {
	return nil
}
func (noopPlatform) RunCommand(ctx context.Context, command string) (string, string, error) {
	return "", "", nil
}

type noopFlows struct{}

func (noopFlows) Run(ctx context.Context, flowName string, data map[string]any) error { return nil }

type noopAgents struct{}

func (noopAgents) Execute(ctx context.Context, name, input string) (string, error) {
	return "ok", nil
}

// testMetrics is shared across this file's tests: observability.NewMetrics
// registers every series with Prometheus's default registry, so a second
// call in the same test binary would panic on a duplicate registration.
var testMetrics = observability.NewMetrics()

func TestHandleHealthReturnsOK(t *testing.T) {
	srv := New(Config{}, Deps{})
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleWebhookRejectsUnknownPlatform(t *testing.T) {
	srv := New(Config{}, Deps{Metrics: testMetrics})
	req := httptest.NewRequest("POST", "/webhook/ghost", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)
	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleWebhookDispatchesToRegisteredPlatform(t *testing.T) {
	handler := trigger.New(trigger.Config{}, noopPlatform{}, noopFlows{}, noopAgents{}, nil)
	srv := New(Config{}, Deps{Triggers: map[string]*trigger.Handler{"schedule": handler}})
	body := `{"Platform":"schedule","ChannelID":"c1","Text":"hi"}`
	req := httptest.NewRequest("POST", "/webhook/schedule", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s, want 200", rec.Code, rec.Body.String())
	}
}

func TestHandleWorkflowRejectsUnknownWorkflow(t *testing.T) {
	srv := New(Config{}, Deps{Metrics: testMetrics})
	req := httptest.NewRequest("POST", "/workflow/ghost", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)
	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
