// Package llm is the boundary to the hosted text generation service.
//
// The rest of the application only sees the Client interface:
//
//	resp, err := client.Generate(ctx, llm.Request{Prompt: p, Model: "gpt-3.5-turbo"})
//
// Implementations return the model's raw text with no post-processing and no
// retry. Failures are reported as apperror.ErrUpstreamUnavailable or
// apperror.ErrUpstreamTimeout so handlers can map them to 502/504.
package llm

import (
	"context"
	"errors"
	"net"

	"github.com/sakif/codegen-playground/internal/apperror"
)

// Client generates text for a prompt using the named model.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request is a single, non-streaming generation call.
type Request struct {
	Prompt string
	Model  string
}

// Response carries the generated text and the provider's own token accounting.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Usage is the token accounting reported by the provider for one call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// classify maps a provider error onto the upstream error taxonomy.
// Deadline and network timeouts become UpstreamTimeout; everything else is
// UpstreamUnavailable. Cancellation by the caller is also reported as a
// timeout since the request never completed.
func classify(ctx context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return apperror.UpstreamTimeout(provider, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return apperror.UpstreamTimeout(provider, err)
	default:
		return apperror.UpstreamUnavailable(provider, err)
	}
}
