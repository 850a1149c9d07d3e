package providers

import (
	"fmt"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

// Credentials carries the API keys/regions resolved from process
// environment (spec §6: credentials are never stored in YAML, only
// referenced by env var name).
type Credentials struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	AWSRegion       string
}

// New resolves a "provider:model" identifier (spec §6, default provider
// Anthropic when no prefix is given) into a concrete model.Model.
func New(identifier string, creds Credentials) (model.Model, error) {
	provider, name := model.ParseIdentifier(identifier)
	switch provider {
	case model.ProviderAnthropic:
		return NewAnthropic(creds.AnthropicAPIKey, name), nil
	case model.ProviderOpenAI:
		return NewOpenAI(creds.OpenAIAPIKey, name), nil
	case model.ProviderGoogle:
		return NewGoogle(creds.GoogleAPIKey, name), nil
	case model.ProviderBedrock:
		return NewBedrock(creds.AWSRegion, name), nil
	default:
		return nil, fmt.Errorf("providers: unsupported provider %q", provider)
	}
}
