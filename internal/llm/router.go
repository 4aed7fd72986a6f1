package llm

import (
	"context"
	"strings"

	"github.com/sakif/codegen-playground/internal/apperror"
)

// OllamaPrefix marks model names served by the Ollama provider,
// e.g. "ollama/llama3.1:8b".
const OllamaPrefix = "ollama/"

// Router picks a provider from the model name. Names starting with
// OllamaPrefix go to the Ollama client with the prefix stripped; everything
// else goes to the default client.
type Router struct {
	Default Client
	Ollama  Client
}

var _ Client = (*Router)(nil)

func (r *Router) Generate(ctx context.Context, req Request) (*Response, error) {
	if name, ok := strings.CutPrefix(req.Model, OllamaPrefix); ok {
		if r.Ollama == nil {
			return nil, apperror.ValidationFailed("model", "model "+req.Model+" requires an Ollama server, none is configured")
		}
		req.Model = name
		return r.Ollama.Generate(ctx, req)
	}
	if r.Default == nil {
		return nil, apperror.ValidationFailed("model", "no default model provider is configured")
	}
	return r.Default.Generate(ctx, req)
}
