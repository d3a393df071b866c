package llm

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/trenchburger/attendant/agent/contract"
	openrouterx "github.com/trenchburger/attendant/pkg/openrouter"
)

// Summarizer condenses conversation transcripts with a plain (tool-less)
// chat model.
type Summarizer struct {
	model        einomodel.ToolCallingChatModel
	systemPrompt string
}

var _ contractx.Summarizer = (*Summarizer)(nil)

func NewSummarizer(
	ctx context.Context,
	builder openrouterx.LLMBuilder,
	systemPrompt string,
) (*Summarizer, error) {
	chatModel, err := builder.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create summarizer model: %v", contractx.ErrModelInvoke, err)
	}
	return &Summarizer{model: chatModel, systemPrompt: systemPrompt}, nil
}

func (s *Summarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	out, err := s.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(s.systemPrompt),
		schema.UserMessage("Summarize the following conversation:\n\n" + transcript),
	})
	if err != nil {
		return "", fmt.Errorf("%w: summarize: %v", contractx.ErrModelInvoke, err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", fmt.Errorf("%w: empty summary", contractx.ErrModelInvoke)
	}
	return strings.TrimSpace(out.Content), nil
}
