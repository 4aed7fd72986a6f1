package llm

import (
	"context"
	"fmt"
	"strings"
)

// Echo is an offline Client for local development. It never touches the
// network and answers with a small runnable snippet that names the model.
type Echo struct{}

var _ Client = Echo{}

func (Echo) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, "echo", err)
	}

	text := fmt.Sprintf("```python\n# offline mode, %s was not called\nprint(%q)\n```", req.Model, lastLine(req.Prompt))
	prompt := int64(len(strings.Fields(req.Prompt)))
	completion := int64(len(strings.Fields(text)))

	return &Response{
		Text:  text,
		Model: req.Model,
		Usage: Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
