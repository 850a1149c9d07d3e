package providers

import (
	"net/http"
	"testing"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

type statusErr struct{ status int }

func (e *statusErr) Error() string  { return "boom" }
func (e *statusErr) StatusCode() int { return e.status }

func TestNewDispatchesOnProviderPrefix(t *testing.T) {
	cases := []struct {
		identifier string
		want       string
	}{
		{"claude-sonnet-4-20250514", "*providers.Anthropic"},
		{"anthropic:claude-sonnet-4-20250514", "*providers.Anthropic"},
		{"openai:gpt-4o", "*providers.OpenAI"},
		{"google:gemini-2.0-flash", "*providers.Google"},
		{"bedrock:anthropic.claude-3-5-sonnet-20241022-v2:0", "*providers.Bedrock"},
	}
	for _, tc := range cases {
		m, err := New(tc.identifier, Credentials{})
		if err != nil {
			t.Fatalf("New(%q): %v", tc.identifier, err)
		}
		if got := typeName(m); got != tc.want {
			t.Errorf("New(%q) = %s, want %s", tc.identifier, got, tc.want)
		}
	}
}

func TestNewRejectsUnsupportedProvider(t *testing.T) {
	if _, err := New("azure:gpt-4", Credentials{}); err == nil {
		t.Fatal("expected an error for an unsupported provider family")
	}
}

func TestClassifyMapsRateLimitToRetryable(t *testing.T) {
	merr := classify("anthropic", &statusErr{status: http.StatusTooManyRequests})
	if merr.Kind != model.ErrorKindRateLimit || !merr.Retryable {
		t.Errorf("classify(429) = %+v", merr)
	}
}

func TestClassifyMapsBadRequestToNonRetryableInvalid(t *testing.T) {
	merr := classify("openai", &statusErr{status: http.StatusBadRequest})
	if merr.Kind != model.ErrorKindInvalid || merr.Retryable {
		t.Errorf("classify(400) = %+v", merr)
	}
}

func typeName(m model.Model) string {
	switch m.(type) {
	case *Anthropic:
		return "*providers.Anthropic"
	case *OpenAI:
		return "*providers.OpenAI"
	case *Google:
		return "*providers.Google"
	case *Bedrock:
		return "*providers.Bedrock"
	default:
		return "unknown"
	}
}
