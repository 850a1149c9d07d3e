package providers

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// Anthropic adapts Anthropic's Messages API to model.Model. Grounded on
// the teacher's AnthropicProvider (internal/agent/providers/anthropic.go)
// message/tool conversion, trimmed to a single non-streaming call since
// the kernel's Model boundary has no streaming concept.
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
}

func NewAnthropic(apiKey, defaultModel string) *Anthropic {
	if defaultModel == "" {
		defaultModel = defaultAnthropicModel
	}
	return &Anthropic{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}
}

func (p *Anthropic) Invoke(ctx context.Context, messages []model.Message, tools []model.ToolDefinition, opts model.Options) (model.Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.defaultModel),
		MaxTokens: maxTokensOr(opts.MaxTokens, 4096),
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}

	var msgs []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Text})
		case model.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if m.Text != "" {
				content = append(content, anthropic.NewTextBlock(m.Text))
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				_ = json.Unmarshal(tc.Args, &input)
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			msgs = append(msgs, anthropic.NewAssistantMessage(content...))
		case model.RoleTool:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Text, false)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
	params.Messages = msgs

	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Schema) > 0 {
			if err := json.Unmarshal(t.Schema, &schema); err != nil {
				return model.Completion{}, classify("anthropic", err)
			}
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		toolParam.OfTool.Description = anthropic.String(t.Description)
		params.Tools = append(params.Tools, toolParam)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return model.Completion{}, classify("anthropic", err)
	}

	completion := model.Completion{
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			completion.Text += variant.Text
		case anthropic.ToolUseBlock:
			completion.ToolCalls = append(completion.ToolCalls, model.ToolCall{
				ID:   variant.ID,
				Name: variant.Name,
				Args: json.RawMessage(variant.Input),
			})
		}
	}
	return completion, nil
}

func maxTokensOr(requested, fallback int) int64 {
	if requested > 0 {
		return int64(requested)
	}
	return int64(fallback)
}
