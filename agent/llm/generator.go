package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/trenchburger/attendant/agent/contract"
	openrouterx "github.com/trenchburger/attendant/pkg/openrouter"
)

// Generator runs the generation step against a tool-bound chat model.
type Generator struct {
	model        einomodel.ToolCallingChatModel
	systemPrompt string
}

var _ contractx.Generator = (*Generator)(nil)

func NewGenerator(
	ctx context.Context,
	builder openrouterx.LLMBuilder,
	systemPrompt string,
	tools []*schema.ToolInfo,
) (*Generator, error) {
	chatModel, err := builder.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create attendant model: %v", contractx.ErrModelInvoke, err)
	}
	if len(tools) > 0 {
		chatModel, err = chatModel.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("%w: bind attendant tools: %v", contractx.ErrModelInvoke, err)
		}
	}
	return &Generator{model: chatModel, systemPrompt: systemPrompt}, nil
}

// Complete invokes the model over the history and returns either a plain
// assistant reply or a tool request message.
func (g *Generator) Complete(ctx context.Context, history []contractx.Message) (contractx.Message, error) {
	input := make([]*schema.Message, 0, len(history)+1)
	input = append(input, schema.SystemMessage(g.systemPrompt))
	for _, m := range history {
		converted, err := toSchemaMessage(m)
		if err != nil {
			return contractx.Message{}, err
		}
		input = append(input, converted)
	}

	out, err := g.model.Generate(ctx, input)
	if err != nil {
		return contractx.Message{}, fmt.Errorf("%w: generate: %v", contractx.ErrModelInvoke, err)
	}
	if out == nil {
		return contractx.Message{}, fmt.Errorf("%w: empty generation response", contractx.ErrModelInvoke)
	}
	return fromSchemaMessage(out)
}

func toSchemaMessage(m contractx.Message) (*schema.Message, error) {
	switch m.Role {
	case contractx.RoleUser:
		return schema.UserMessage(m.Content), nil
	case contractx.RoleAssistant:
		calls, err := toSchemaToolCalls(m.ToolCalls)
		if err != nil {
			return nil, err
		}
		return &schema.Message{
			Role:      schema.Assistant,
			Content:   m.Content,
			ToolCalls: calls,
		}, nil
	case contractx.RoleToolResult:
		return &schema.Message{
			Role:       schema.Tool,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}, nil
	case contractx.RoleSummary:
		// The model sees summaries as prior assistant context.
		return &schema.Message{
			Role:    schema.Assistant,
			Content: m.Content,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown message role %q", contractx.ErrValidation, m.Role)
	}
}

func toSchemaToolCalls(calls []contractx.ToolCall) ([]schema.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]schema.ToolCall, 0, len(calls))
	for _, c := range calls {
		args := "{}"
		if len(c.Arguments) > 0 {
			raw, err := json.Marshal(c.Arguments)
			if err != nil {
				return nil, fmt.Errorf("%w: marshal args for tool=%s: %v", contractx.ErrValidation, c.Name, err)
			}
			args = string(raw)
		}
		out = append(out, schema.ToolCall{
			ID:   c.ID,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      c.Name,
				Arguments: args,
			},
		})
	}
	return out, nil
}

func fromSchemaMessage(msg *schema.Message) (contractx.Message, error) {
	calls, err := fromSchemaToolCalls(msg.ToolCalls)
	if err != nil {
		return contractx.Message{}, err
	}
	return contractx.AssistantMessage(msg.Content, calls), nil
}

func fromSchemaToolCalls(calls []schema.ToolCall) ([]contractx.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]contractx.ToolCall, 0, len(calls))
	for _, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrModelInvoke)
		}

		args := map[string]any{}
		rawArgs := strings.TrimSpace(call.Function.Arguments)
		if rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrModelInvoke, name, err)
			}
		}

		out = append(out, contractx.ToolCall{
			ID:        call.ID,
			Name:      name,
			Arguments: args,
		})
	}
	return out, nil
}
