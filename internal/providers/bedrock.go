package providers

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go/document"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

const defaultBedrockModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"

// Bedrock adapts the Bedrock Converse API to model.Model. Grounded on
// the teacher's BedrockProvider (internal/agent/providers/bedrock.go)
// message conversion, trimmed to the non-streaming Converse call.
type Bedrock struct {
	client       *bedrockruntime.Client
	defaultModel string
}

func NewBedrock(region, defaultModel string) *Bedrock {
	if defaultModel == "" {
		defaultModel = defaultBedrockModel
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, _ := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	return &Bedrock{client: bedrockruntime.NewFromConfig(cfg), defaultModel: defaultModel}
}

func (p *Bedrock) Invoke(ctx context.Context, messages []model.Message, tools []model.ToolDefinition, opts model.Options) (model.Completion, error) {
	req := &bedrockruntime.ConverseInput{
		ModelId: aws.String(p.defaultModel),
	}
	req.InferenceConfig = &types.InferenceConfiguration{}
	if opts.MaxTokens > 0 {
		maxTokens := int32(opts.MaxTokens)
		req.InferenceConfig.MaxTokens = &maxTokens
	}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		req.InferenceConfig.Temperature = &temp
	}

	var msgs []types.Message
	for _, m := range messages {
		switch m.Role {
		case model.RoleSystem:
			req.System = append(req.System, &types.SystemContentBlockMemberText{Value: m.Text})
		case model.RoleAssistant:
			var content []types.ContentBlock
			if m.Text != "" {
				content = append(content, &types.ContentBlockMemberText{Value: m.Text})
			}
			for _, tc := range m.ToolCalls {
				var input map[string]any
				_ = json.Unmarshal(tc.Args, &input)
				content = append(content, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{ToolUseId: aws.String(tc.ID), Name: aws.String(tc.Name), Input: toDocument(input)},
				})
			}
			msgs = append(msgs, types.Message{Role: types.ConversationRoleAssistant, Content: content})
		case model.RoleTool:
			msgs = append(msgs, types.Message{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberToolResult{
					Value: types.ToolResultBlock{
						ToolUseId: aws.String(m.ToolCallID),
						Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: m.Text}},
					},
				}},
			})
		default:
			msgs = append(msgs, types.Message{Role: types.ConversationRoleUser, Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Text}}})
		}
	}
	req.Messages = msgs

	for _, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Schema, &schema)
		req.ToolConfig = addBedrockTool(req.ToolConfig, t.Name, t.Description, schema)
	}

	resp, err := p.client.Converse(ctx, req)
	if err != nil {
		return model.Completion{}, classify("bedrock", err)
	}

	completion := model.Completion{}
	if resp.Usage != nil {
		completion.Usage = model.Usage{
			InputTokens:  int(aws.ToInt32(resp.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(resp.Usage.OutputTokens)),
		}
	}
	out, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return completion, nil
	}
	for _, block := range out.Value.Content {
		switch variant := block.(type) {
		case *types.ContentBlockMemberText:
			completion.Text += variant.Value
		case *types.ContentBlockMemberToolUse:
			args, _ := json.Marshal(variant.Value.Input)
			completion.ToolCalls = append(completion.ToolCalls, model.ToolCall{
				ID:   aws.ToString(variant.Value.ToolUseId),
				Name: aws.ToString(variant.Value.Name),
				Args: args,
			})
		}
	}
	return completion, nil
}

func addBedrockTool(cfg *types.ToolConfiguration, name, description string, schema map[string]any) *types.ToolConfiguration {
	if cfg == nil {
		cfg = &types.ToolConfiguration{}
	}
	cfg.Tools = append(cfg.Tools, &types.ToolMemberToolSpec{
		Value: types.ToolSpecification{
			Name:        aws.String(name),
			Description: aws.String(description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: toDocument(schema)},
		},
	})
	return cfg
}

// document converts a plain map into the smithy document.Interface the
// AWS SDK expects for freeform JSON (ToolUseBlock.Input, tool schemas).
func toDocument(v map[string]any) document.Interface {
	return document.NewLazyDocument(v)
}
