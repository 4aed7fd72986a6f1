package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codegen-playground/internal/apperror"
	"github.com/sakif/codegen-playground/internal/executor"
	"github.com/sakif/codegen-playground/internal/handler"
	"github.com/sakif/codegen-playground/internal/llm"
	"github.com/sakif/codegen-playground/internal/model"
	"github.com/sakif/codegen-playground/internal/repository/jsonfile"
	"github.com/sakif/codegen-playground/internal/repository/memory"
	"github.com/sakif/codegen-playground/internal/service"
	"github.com/sakif/codegen-playground/web"
)

// scriptedLLM answers every call with text, or fails with err.
type scriptedLLM struct {
	text string
	err  error
}

func (s *scriptedLLM) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{
		Text:  s.text,
		Model: req.Model,
		Usage: llm.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}, nil
}

// MockRunner stands in for the Docker sandbox.
type MockRunner struct {
	Captured executor.Program
	Result   *executor.Result
}

func (m *MockRunner) Run(_ context.Context, p executor.Program) (*executor.Result, error) {
	m.Captured = p
	return m.Result, nil
}

type testEnv struct {
	router   http.Handler
	snippets *memory.SnippetStore
	feedback *jsonfile.FeedbackStore
	llm      *scriptedLLM
}

func newTestEnv(t *testing.T, runner executor.Runner) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	env := &testEnv{
		snippets: memory.NewSnippetStore(),
		feedback: jsonfile.NewFeedbackStore(filepath.Join(t.TempDir(), "feedback.json")),
		llm:      &scriptedLLM{text: "```python\ndef factorial(n):\n    return 1 if n < 2 else n * factorial(n - 1)\nprint(factorial(5))\n```"},
	}

	svc := service.NewCodegenService(env.snippets, env.feedback, env.llm, logger, service.Options{
		Timeout: 5 * time.Second,
		Runner:  runner,
	})
	pages, err := handler.NewPages(web.FS, logger)
	require.NoError(t, err)
	h := handler.NewCodegenHandler(svc, pages, []string{"gpt-3.5-turbo", "gpt-4o-mini"}, logger)

	r := chi.NewRouter()
	r.Get("/", h.HandleHome)
	r.Post("/generate", h.HandleGenerate)
	r.Post("/evaluate", h.HandleEvaluate)
	r.Post("/feedback", h.HandleFeedback)
	r.Post("/delete", h.HandleDelete)
	r.Post("/run", h.HandleRun)
	r.Route("/api", func(r chi.Router) {
		r.Get("/snippets", h.HandleHome)
		r.Post("/generate", h.HandleGenerate)
		r.Post("/evaluate", h.HandleEvaluate)
		r.Post("/feedback", h.HandleFeedback)
		r.Post("/delete", h.HandleDelete)
		r.Post("/run", h.HandleRun)
		r.Post("/estimate", h.HandleEstimate)
	})
	env.router = r
	return env
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) stored(t *testing.T) []model.Snippet {
	t.Helper()
	list, err := e.snippets.List(context.Background())
	require.NoError(t, err)
	return list
}

var (
	formPattern   = regexp.MustCompile(`(?s)<form method="post" action="([^"]+)"[^>]*>(.*?)</form>`)
	hiddenPattern = regexp.MustCompile(`<input type="hidden" name="([^"]+)" value="([^"]*)">`)
)

// hiddenFields returns the hidden inputs of the first form on the page that
// posts to action, the way a browser would submit them.
func hiddenFields(t *testing.T, page, action string) url.Values {
	t.Helper()
	for _, form := range formPattern.FindAllStringSubmatch(page, -1) {
		if form[1] != action {
			continue
		}
		values := url.Values{}
		for _, input := range hiddenPattern.FindAllStringSubmatch(form[2], -1) {
			values.Set(input[1], html.UnescapeString(input[2]))
		}
		return values
	}
	t.Fatalf("no form posting to %s", action)
	return nil
}

func decode[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

// =========================================================================
// HTML PAGES
// =========================================================================

func TestHome(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "Code Generation Web Interface")
	assert.Contains(t, rr.Body.String(), "gpt-4o-mini")
}

// TestPlaygroundFlow walks generate → evaluate → feedback → delete → delete
// through the browser form endpoints.
func TestPlaygroundFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	description := "Generate a function to calculate the factorial of a number"

	t.Run("generate", func(t *testing.T) {
		rr := env.postForm(t, "/generate", url.Values{"description": {description}, "model": {"gpt-3.5-turbo"}})
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), description)
		assert.Contains(t, rr.Body.String(), "def factorial")

		stored := env.stored(t)
		require.Len(t, stored, 1)
		assert.Equal(t, description, stored[0].Description)
		assert.NotEmpty(t, stored[0].CodeSnippet)
	})

	t.Run("evaluate", func(t *testing.T) {
		snippet := env.stored(t)[0]
		env.llm.text = "The function is **correct** for non-negative integers."

		rr := env.postForm(t, "/evaluate", url.Values{
			"snippet_id":   {snippet.ID},
			"code_snippet": {snippet.CodeSnippet},
			"model":        {"gpt-3.5-turbo"},
		})
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Code Evaluation:")
		assert.Contains(t, rr.Body.String(), "<strong>correct</strong>")
		assert.Len(t, env.stored(t), 1)
	})

	t.Run("feedback", func(t *testing.T) {
		snippet := env.stored(t)[0]
		rr := env.postForm(t, "/feedback", url.Values{
			"description":  {snippet.Description},
			"code_snippet": {snippet.CodeSnippet},
			"model":        {"gpt-3.5-turbo"},
			"feedback":     {"Great code snippet!"},
			"rating":       {"good"},
		})
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "Thank you for your feedback!")

		entries, err := env.feedback.List(context.Background())
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		last := entries[len(entries)-1]
		assert.Equal(t, "Great code snippet!", last.Feedback)
		assert.Equal(t, "good", last.Rating)
		assert.Equal(t, "gpt-3.5-turbo", last.ModelName)
	})

	t.Run("delete twice", func(t *testing.T) {
		id := env.stored(t)[0].ID

		rr := env.postForm(t, "/delete", url.Values{"snippet_id": {id}})
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, env.stored(t))

		rr = env.postForm(t, "/delete", url.Values{"snippet_id": {id}})
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, env.stored(t))
	})
}

// TestFeedbackAfterEvaluate submits each page's own hidden fields, so the
// feedback entry must still carry the description the snippet was made from.
func TestFeedbackAfterEvaluate(t *testing.T) {
	env := newTestEnv(t, nil)
	description := "Generate a function to calculate the factorial of a number"

	rr := env.postForm(t, "/generate", url.Values{"description": {description}, "model": {"gpt-4o-mini"}})
	require.Equal(t, http.StatusOK, rr.Code)

	evalForm := hiddenFields(t, rr.Body.String(), "/evaluate")
	assert.Equal(t, description, evalForm.Get("description"))

	env.llm.text = "Looks fine."
	rr = env.postForm(t, "/evaluate", evalForm)
	require.Equal(t, http.StatusOK, rr.Code)

	feedbackForm := hiddenFields(t, rr.Body.String(), "/feedback")
	feedbackForm.Set("feedback", "useful")
	feedbackForm.Set("rating", "good")
	rr = env.postForm(t, "/feedback", feedbackForm)
	require.Equal(t, http.StatusOK, rr.Code)

	entries, err := env.feedback.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, description, entries[0].Description)
	assert.Equal(t, env.stored(t)[0].CodeSnippet, entries[0].CodeSnippet)
	assert.Equal(t, "gpt-4o-mini", entries[0].ModelName)
}

func TestGenerate_MissingField(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.postForm(t, "/generate", url.Values{"model": {"gpt-3.5-turbo"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "description is required")
	assert.Empty(t, env.stored(t))
}

func TestGenerate_UpstreamFailurePage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.llm.err = apperror.UpstreamTimeout("openai", context.DeadlineExceeded)

	rr := env.postForm(t, "/generate", url.Values{"description": {"sort <a> list"}, "model": {"gpt-4o-mini"}})
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
	assert.Contains(t, rr.Body.String(), "openai did not respond in time")
	assert.Contains(t, rr.Body.String(), "Code Generation Web Interface")

	// The form comes back as submitted.
	assert.Contains(t, rr.Body.String(), ">sort &lt;a&gt; list</textarea>")
	assert.Contains(t, rr.Body.String(), `<option value="gpt-4o-mini" selected>`)
}

// =========================================================================
// JSON API
// =========================================================================

func TestAPI_Generate(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.postForm(t, "/api/generate", url.Values{"description": {"reverse a string"}, "model": {"gpt-4o-mini"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	body := decode[handler.GenerateResponse](t, rr.Body)
	assert.Equal(t, "reverse a string", body.Description)
	assert.Equal(t, "gpt-4o-mini", body.Model)
	assert.NotEmpty(t, body.CodeSnippet)
	require.Len(t, body.Snippets, 1)
	assert.Equal(t, body.SnippetID, body.Snippets[0].ID)
}

func TestAPI_GenerateJSONBody(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"description":"sum a list"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[handler.GenerateResponse](t, rr.Body)
	assert.Equal(t, "gpt-3.5-turbo", body.Model, "empty model falls back to the default")
}

func TestAPI_AcceptHeaderOnFormRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/delete", strings.NewReader("snippet_id=nope"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[handler.SnippetsResponse](t, rr.Body)
	assert.NotNil(t, body.Snippets)
	assert.Empty(t, body.Snippets)
}

func TestAPI_EvaluateAndFeedback(t *testing.T) {
	env := newTestEnv(t, nil)
	gen := decode[handler.GenerateResponse](t, env.postForm(t, "/api/generate", url.Values{"description": {"x"}}).Body)

	env.llm.text = "Looks fine."
	rr := env.postForm(t, "/api/evaluate", url.Values{
		"snippet_id":   {gen.SnippetID},
		"code_snippet": {gen.CodeSnippet},
		"model":        {"gpt-3.5-turbo"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	eval := decode[handler.EvaluateResponse](t, rr.Body)
	assert.Equal(t, "Looks fine.", eval.Evaluation)
	assert.Equal(t, gen.SnippetID, eval.SnippetID)
	assert.Len(t, eval.Snippets, 1)

	rr = env.postForm(t, "/api/feedback", url.Values{
		"description":  {"x"},
		"code_snippet": {gen.CodeSnippet},
		"model":        {"gpt-3.5-turbo"},
		"feedback":     {"meh"},
		"rating":       {"neutral"},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	fb := decode[handler.FeedbackResponse](t, rr.Body)
	assert.True(t, fb.FeedbackReceived)
	assert.Equal(t, "x", fb.Description)
}

func TestAPI_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"timeout", apperror.UpstreamTimeout("openai", context.DeadlineExceeded), http.StatusGatewayTimeout, "upstream_timeout"},
		{"unavailable", apperror.UpstreamUnavailable("openai", errors.New("429")), http.StatusBadGateway, "upstream_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.llm.err = tt.err

			rr := env.postForm(t, "/api/generate", url.Values{"description": {"x"}})
			assert.Equal(t, tt.status, rr.Code)
			body := decode[handler.ErrorResponse](t, rr.Body)
			assert.Equal(t, tt.kind, body.Error)
		})
	}
}

func TestAPI_FeedbackPersistenceFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	// Point the store at a directory that does not exist.
	env.feedback = jsonfile.NewFeedbackStore(filepath.Join(t.TempDir(), "missing", "feedback.json"))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewCodegenService(env.snippets, env.feedback, env.llm, logger, service.Options{})
	pages, err := handler.NewPages(web.FS, logger)
	require.NoError(t, err)
	h := handler.NewCodegenHandler(svc, pages, nil, logger)

	req := httptest.NewRequest(http.MethodPost, "/api/feedback",
		strings.NewReader(`{"description":"d","code_snippet":"c","model":"m","feedback":"f","rating":"good"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.HandleFeedback(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decode[handler.ErrorResponse](t, rr.Body)
	assert.Equal(t, "persistence_failure", body.Error)

	entries, _ := env.feedback.List(context.Background())
	assert.Len(t, entries, 1, "entry is kept in memory")
}

func TestAPI_Estimate(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.postForm(t, "/api/estimate", url.Values{"description": {"x"}, "model": {"gpt-4"}})
	require.Equal(t, http.StatusOK, rr.Code)

	report := decode[llm.CostReport](t, rr.Body)
	assert.EqualValues(t, 150, report.TotalTokens)
	assert.Equal(t, 1, report.SuccessfulRequests)
	// 100 * 0.03/1K + 50 * 0.06/1K
	assert.InDelta(t, 0.006, report.TotalCostUSD, 1e-9)
	assert.Empty(t, env.stored(t))
}

// =========================================================================
// RUN
// =========================================================================

func TestAPI_Run(t *testing.T) {
	runner := &MockRunner{Result: &executor.Result{Stdout: "120\n", Duration: 80 * time.Millisecond}}
	env := newTestEnv(t, runner)
	gen := decode[handler.GenerateResponse](t, env.postForm(t, "/api/generate", url.Values{"description": {"factorial"}}).Body)

	rr := env.postForm(t, "/api/run", url.Values{"snippet_id": {gen.SnippetID}})
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode[handler.RunResponse](t, rr.Body)
	assert.Equal(t, gen.SnippetID, body.SnippetID)
	assert.Equal(t, "120\n", body.Stdout)
	assert.Equal(t, 0, body.ExitCode)
	assert.Contains(t, runner.Captured.Code, "def factorial(n):")
	assert.NotContains(t, runner.Captured.Code, "```")
}

func TestRun_Page(t *testing.T) {
	runner := &MockRunner{Result: &executor.Result{Stdout: "120\n", ExitCode: 0}}
	env := newTestEnv(t, runner)
	env.postForm(t, "/generate", url.Values{"description": {"factorial"}})
	id := env.stored(t)[0].ID

	rr := env.postForm(t, "/run", url.Values{"snippet_id": {id}})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "120")
	assert.Contains(t, rr.Body.String(), "exit code 0")
}

func TestRun_Errors(t *testing.T) {
	t.Run("sandbox disabled", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rr := env.postForm(t, "/api/run", url.Values{"snippet_id": {"x"}})
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("unknown snippet", func(t *testing.T) {
		env := newTestEnv(t, &MockRunner{})
		rr := env.postForm(t, "/api/run", url.Values{"snippet_id": {"missing"}})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
