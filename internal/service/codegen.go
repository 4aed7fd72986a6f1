// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses forms, renders pages or JSON
//	Service (Business layer) → builds prompts, calls the model, updates stores
//	Repository (Data layer)  → keeps snippets and feedback
//
// The service never sees an *http.Request, so the same operations back the
// HTML pages, the JSON API and the `cost` CLI command.
//
// STATE:
// The two stores are owned by the CodegenService value rather than living in
// package-level variables, so every test (and every server instance) gets its
// own isolated state.
//
// READ-AFTER-WRITE:
// Every operation returns the full snippet list read after its own write.
// Callers must re-render from that list rather than keep an older copy.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/sakif/codegen-playground/internal/apperror"
	"github.com/sakif/codegen-playground/internal/executor"
	"github.com/sakif/codegen-playground/internal/llm"
	"github.com/sakif/codegen-playground/internal/markdown"
	"github.com/sakif/codegen-playground/internal/metrics"
	"github.com/sakif/codegen-playground/internal/model"
	"github.com/sakif/codegen-playground/internal/prompt"
	"github.com/sakif/codegen-playground/internal/repository"
)

const (
	DefaultModel   = "gpt-3.5-turbo"
	DefaultTimeout = 60 * time.Second
)

// otherLabel replaces any label value outside the known set, so clients
// cannot create new metric series.
const otherLabel = "other"

var ratingLabels = []string{"good", "neutral", "bad"}

// Options tunes a CodegenService. The zero value is usable.
type Options struct {
	// DefaultModel is used when a request leaves the model empty.
	DefaultModel string
	// Timeout bounds each call to the model.
	Timeout time.Duration
	// Runner executes snippets for Run. Nil disables Run.
	Runner executor.Runner
	// Models are the offered models. Only these (and DefaultModel) get their
	// own metric labels.
	Models []string
}

// CodegenService implements the playground operations.
type CodegenService struct {
	snippets repository.SnippetRepository
	feedback repository.FeedbackRepository
	llm      llm.Client
	runner   executor.Runner
	logger   *slog.Logger

	defaultModel string
	timeout      time.Duration
	knownModels  map[string]struct{}
}

// NewCodegenService wires the stores and the model client together.
func NewCodegenService(
	snippets repository.SnippetRepository,
	feedback repository.FeedbackRepository,
	client llm.Client,
	logger *slog.Logger,
	opts Options,
) *CodegenService {
	defaultModel := lo.Ternary(opts.DefaultModel != "", opts.DefaultModel, DefaultModel)
	known := lo.SliceToMap(append([]string{defaultModel}, opts.Models...), func(m string) (string, struct{}) {
		return m, struct{}{}
	})
	return &CodegenService{
		snippets:     snippets,
		feedback:     feedback,
		llm:          client,
		runner:       opts.Runner,
		logger:       logger,
		defaultModel: defaultModel,
		timeout:      lo.Ternary(opts.Timeout > 0, opts.Timeout, DefaultTimeout),
		knownModels:  known,
	}
}

// Generation is the result of Generate.
type Generation struct {
	Snippet  model.Snippet
	Snippets []model.Snippet
}

// Evaluation is the result of Evaluate.
type Evaluation struct {
	SnippetID   string
	CodeSnippet string
	Model       string
	Text        string
	Snippets    []model.Snippet
}

// FeedbackReceipt is the result of ProvideFeedback.
type FeedbackReceipt struct {
	Description string
	Snippets    []model.Snippet
}

// RunOutcome is the result of Run.
type RunOutcome struct {
	SnippetID string
	Result    *executor.Result
	Snippets  []model.Snippet
}

// RunEnabled reports whether snippets can be executed.
func (s *CodegenService) RunEnabled() bool {
	return s.runner != nil
}

// Home returns the current snippets, newest first.
func (s *CodegenService) Home(ctx context.Context) ([]model.Snippet, error) {
	return s.snapshot(ctx)
}

// Generate asks the model for code matching description and stores the
// answer as a new snippet. The model's text is stored as-is.
func (s *CodegenService) Generate(ctx context.Context, modelName, description string) (*Generation, error) {
	modelName = s.model(modelName)

	resp, err := s.call(ctx, prompt.CodeGeneration, description, modelName)
	if err != nil {
		return nil, err
	}

	snippet := &model.Snippet{
		Description: description,
		CodeSnippet: resp.Text,
		Model:       modelName,
	}
	if _, err := s.snippets.Add(ctx, snippet); err != nil {
		return nil, fmt.Errorf("storing snippet: %w", err)
	}

	s.logger.Info("snippet generated",
		slog.String("id", snippet.ID),
		slog.String("model", modelName),
		slog.Int64("tokens", resp.Usage.TotalTokens),
	)

	list, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &Generation{Snippet: *snippet, Snippets: list}, nil
}

// Evaluate asks the model to review codeSnippet. It has no side effects.
// snippetID is echoed back so the page can show which snippet was reviewed;
// it is not looked up.
func (s *CodegenService) Evaluate(ctx context.Context, snippetID, codeSnippet, modelName string) (*Evaluation, error) {
	modelName = s.model(modelName)

	resp, err := s.call(ctx, prompt.Evaluation, codeSnippet, modelName)
	if err != nil {
		return nil, err
	}

	list, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &Evaluation{
		SnippetID:   snippetID,
		CodeSnippet: codeSnippet,
		Model:       modelName,
		Text:        resp.Text,
		Snippets:    list,
	}, nil
}

// ProvideFeedback records entry. If the feedback file cannot be written the
// entry is still kept in memory and the apperror.ErrPersistence is returned.
func (s *CodegenService) ProvideFeedback(ctx context.Context, entry model.FeedbackEntry) (*FeedbackReceipt, error) {
	entry.ModelName = s.model(entry.ModelName)

	if err := s.feedback.Add(ctx, entry); err != nil {
		if errors.Is(err, apperror.ErrPersistence) {
			metrics.PersistenceFailures.Inc()
		}
		s.logger.Error("failed to save feedback",
			slog.String("model", entry.ModelName),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	metrics.FeedbackSubmitted.WithLabelValues(ratingLabel(entry.Rating)).Inc()

	s.logger.Info("feedback received",
		slog.String("model", entry.ModelName),
		slog.String("rating", entry.Rating),
	)

	list, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &FeedbackReceipt{Description: entry.Description, Snippets: list}, nil
}

// Delete removes every snippet with snippetID. An unknown id is a no-op.
func (s *CodegenService) Delete(ctx context.Context, snippetID string) ([]model.Snippet, error) {
	n, err := s.snippets.Remove(ctx, snippetID)
	if err != nil {
		return nil, fmt.Errorf("removing snippet: %w", err)
	}
	if n > 0 {
		s.logger.Info("snippet deleted", slog.String("id", snippetID), slog.Int("removed", n))
	}
	return s.snapshot(ctx)
}

// Run executes the code of a stored snippet in the sandbox. The code is the
// first fenced block of the model's answer, or the whole answer if it has none.
func (s *CodegenService) Run(ctx context.Context, snippetID string) (*RunOutcome, error) {
	if s.runner == nil {
		return nil, apperror.SandboxUnavailable()
	}

	snippet, err := s.snippets.Get(ctx, snippetID)
	if err != nil {
		return nil, err
	}

	program := executor.Program{
		Code:     markdown.ExtractCode(snippet.CodeSnippet),
		Language: markdown.Language(snippet.CodeSnippet),
	}
	res, err := s.runner.Run(ctx, program)
	if err != nil {
		metrics.SandboxRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("running snippet %s: %w", snippetID, err)
	}
	metrics.SandboxRuns.WithLabelValues(lo.Ternary(res.TimedOut, "timeout", "completed")).Inc()

	list, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &RunOutcome{SnippetID: snippetID, Result: res, Snippets: list}, nil
}

// EstimateCost makes one generation call for description and reports the
// tokens it used and what that would cost. Nothing is stored.
func (s *CodegenService) EstimateCost(ctx context.Context, modelName, description string) (*llm.CostReport, error) {
	modelName = s.model(modelName)

	p, err := prompt.Build(prompt.CodeGeneration, description)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return llm.EstimateCost(ctx, s.llm, p, modelName)
}

func (s *CodegenService) model(name string) string {
	return lo.Ternary(name != "", name, s.defaultModel)
}

func (s *CodegenService) modelLabel(name string) string {
	if _, ok := s.knownModels[name]; ok {
		return name
	}
	return otherLabel
}

func ratingLabel(rating string) string {
	return lo.Ternary(lo.Contains(ratingLabels, rating), rating, otherLabel)
}

// call builds the prompt and makes one bounded model call. No store lock is
// held here.
func (s *CodegenService) call(ctx context.Context, purpose prompt.Purpose, input, modelName string) (*llm.Response, error) {
	p, err := prompt.Build(purpose, input)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.llm.Generate(ctx, llm.Request{Prompt: p, Model: modelName})
	elapsed := time.Since(start)

	if err != nil {
		kind := "unavailable"
		if errors.Is(err, apperror.ErrUpstreamTimeout) {
			kind = "timeout"
		}
		metrics.UpstreamErrors.WithLabelValues(purpose.String(), kind).Inc()
		s.logger.Warn("model call failed",
			slog.String("purpose", purpose.String()),
			slog.String("model", modelName),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	label := s.modelLabel(modelName)
	metrics.UpstreamLatency.WithLabelValues(purpose.String(), label).Observe(elapsed.Seconds())
	metrics.Tokens.WithLabelValues(label, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.Tokens.WithLabelValues(label, "completion").Add(float64(resp.Usage.CompletionTokens))
	return resp, nil
}

// snapshot reads the store and returns it newest first for display.
func (s *CodegenService) snapshot(ctx context.Context) ([]model.Snippet, error) {
	list, err := s.snippets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	metrics.Snippets.Set(float64(len(list)))
	return lo.Reverse(list), nil
}
