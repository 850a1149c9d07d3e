package providers

import (
	"context"
	"encoding/json"

	"github.com/sashabaranov/go-openai"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

const defaultOpenAIModel = openai.GPT4o

// OpenAI adapts the Chat Completions API to model.Model. Grounded on the
// teacher's OpenAIProvider (internal/agent/providers/openai.go) message
// and tool conversion, trimmed to a single non-streaming call.
type OpenAI struct {
	client       *openai.Client
	defaultModel string
}

func NewOpenAI(apiKey, defaultModel string) *OpenAI {
	if defaultModel == "" {
		defaultModel = defaultOpenAIModel
	}
	return &OpenAI{client: openai.NewClient(apiKey), defaultModel: defaultModel}
}

func (p *OpenAI) Invoke(ctx context.Context, messages []model.Message, tools []model.ToolDefinition, opts model.Options) (model.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.defaultModel,
		Messages:    convertOpenAIMessages(messages),
		Temperature: float32(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Schema),
			},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return model.Completion{}, classify("openai", err)
	}
	if len(resp.Choices) == 0 {
		return model.Completion{}, &model.Error{Kind: model.ErrorKindProvider, Provider: "openai", Cause: errEmptyChoices}
	}

	choice := resp.Choices[0].Message
	completion := model.Completion{
		Text: choice.Content,
		Usage: model.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, model.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}
	return completion, nil
}

func convertOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Text})
		case model.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:       tc.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: tc.Name, Arguments: string(tc.Args)},
				})
			}
			result = append(result, msg)
		case model.RoleTool:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, Content: m.Text, ToolCallID: m.ToolCallID})
		default:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text})
		}
	}
	return result
}

var errEmptyChoices = &simpleErr{"openai: no completion choices returned"}

type simpleErr struct{ msg string }

func (e *simpleErr) Error() string { return e.msg }
