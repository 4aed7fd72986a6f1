package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// Ollama implements Client against a local or self-hosted Ollama server.
type Ollama struct {
	client *api.Client
}

var _ Client = (*Ollama)(nil)

// NewOllama creates a client for the server at rawURL (e.g. http://localhost:11434).
func NewOllama(rawURL string, timeout time.Duration) (*Ollama, error) {
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid url %q: %w", rawURL, err)
	}

	return &Ollama{
		client: api.NewClient(baseURL, &http.Client{Timeout: timeout}),
	}, nil
}

// Generate runs a non-streaming generation. The callback fires once with the
// complete response when Stream is false, but the text is accumulated anyway
// so a streaming server reply is handled the same way.
func (o *Ollama) Generate(ctx context.Context, req Request) (*Response, error) {
	var (
		text  strings.Builder
		usage Usage
		model = req.Model
	)

	err := o.client.Generate(ctx, &api.GenerateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: lo.ToPtr(false),
	}, func(resp api.GenerateResponse) error {
		text.WriteString(resp.Response)
		if resp.Done {
			model = lo.Ternary(resp.Model != "", resp.Model, model)
			usage.PromptTokens = int64(resp.PromptEvalCount)
			usage.CompletionTokens = int64(resp.EvalCount)
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		}
		return nil
	})
	if err != nil {
		return nil, classify(ctx, "ollama", err)
	}

	return &Response{Text: text.String(), Model: model, Usage: usage}, nil
}
