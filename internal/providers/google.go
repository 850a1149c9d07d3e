package providers

import (
	"context"
	"encoding/json"

	"google.golang.org/genai"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

const defaultGoogleModel = "gemini-2.0-flash"

// Google adapts the Gemini GenerateContent API to model.Model. Grounded
// on the teacher's GoogleProvider (internal/agent/providers/google.go)
// Content/Part conversion, trimmed to a single non-streaming call.
type Google struct {
	client       *genai.Client
	apiKey       string
	defaultModel string
}

func NewGoogle(apiKey, defaultModel string) *Google {
	if defaultModel == "" {
		defaultModel = defaultGoogleModel
	}
	client, _ := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	return &Google{client: client, apiKey: apiKey, defaultModel: defaultModel}
}

func (p *Google) Invoke(ctx context.Context, messages []model.Message, tools []model.ToolDefinition, opts model.Options) (model.Completion, error) {
	var contents []*genai.Content
	config := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		t := float32(opts.Temperature)
		config.Temperature = &t
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}

	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Text}}}
		case model.RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if m.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: m.Text})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(tc.Args, &args)
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args}})
			}
			contents = append(contents, content)
		case model.RoleTool:
			var response map[string]any
			_ = json.Unmarshal([]byte(m.Text), &response)
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{Name: m.ToolCallID, Response: response}}},
			})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Text}}})
		}
	}

	for _, t := range tools {
		var schema *genai.Schema
		_ = json.Unmarshal(t.Schema, &schema)
		config.Tools = append(config.Tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{Name: t.Name, Description: t.Description, Parameters: schema}},
		})
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.defaultModel, contents, config)
	if err != nil {
		return model.Completion{}, classify("google", err)
	}

	completion := model.Completion{}
	if resp.UsageMetadata != nil {
		completion.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return completion, nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			completion.Text += part.Text
		}
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			completion.ToolCalls = append(completion.ToolCalls, model.ToolCall{
				ID:   part.FunctionCall.Name,
				Name: part.FunctionCall.Name,
				Args: args,
			})
		}
	}
	return completion, nil
}
