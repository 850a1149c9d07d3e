package model

import "testing"

func TestParseIdentifier(t *testing.T) {
	cases := []struct {
		in       string
		provider Provider
		model    string
	}{
		{"anthropic:claude-3-opus", ProviderAnthropic, "claude-3-opus"},
		{"claude:claude-3-sonnet", ProviderAnthropic, "claude-3-sonnet"},
		{"openai:gpt-4o", ProviderOpenAI, "gpt-4o"},
		{"gpt:gpt-4o-mini", ProviderOpenAI, "gpt-4o-mini"},
		{"google:gemini-1.5-pro", ProviderGoogle, "gemini-1.5-pro"},
		{"bedrock:anthropic.claude-v2", ProviderBedrock, "anthropic.claude-v2"},
		{"azure:gpt-4", ProviderAzure, "gpt-4"},
		{"ollama:llama3", ProviderOllama, "llama3"},
		{"groq:mixtral", ProviderGroq, "mixtral"},
		{"weird:thing", ProviderCustom, "thing"},
		{"claude-3-opus", ProviderAnthropic, "claude-3-opus"},
	}
	for _, c := range cases {
		gotProvider, gotModel := ParseIdentifier(c.in)
		if gotProvider != c.provider || gotModel != c.model {
			t.Errorf("ParseIdentifier(%q) = (%q, %q), want (%q, %q)", c.in, gotProvider, gotModel, c.provider, c.model)
		}
	}
}

func TestCompletionIsFinal(t *testing.T) {
	if !(Completion{Text: "hi"}).IsFinal() {
		t.Error("text-only completion should be final")
	}
	if (Completion{ToolCalls: []ToolCall{{ID: "t1", Name: "x"}}}).IsFinal() {
		t.Error("completion with tool calls should not be final")
	}
}
