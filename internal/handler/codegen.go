package handler

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/sakif/codegen-playground/internal/apperror"
	"github.com/sakif/codegen-playground/internal/executor"
	"github.com/sakif/codegen-playground/internal/markdown"
	"github.com/sakif/codegen-playground/internal/model"
	"github.com/sakif/codegen-playground/internal/service"
)

// maxBodyBytes caps form and JSON bodies. Descriptions and snippets are
// small; anything near this size is a mistake or abuse.
const maxBodyBytes = 1 << 20

// Response bodies for the JSON surface. Every one carries the snippet list
// read after the operation's own write.
type (
	GenerateResponse struct {
		CodeSnippet string          `json:"code_snippet"`
		Description string          `json:"description"`
		Model       string          `json:"model"`
		SnippetID   string          `json:"snippet_id"`
		Snippets    []model.Snippet `json:"snippets"`
	}

	EvaluateResponse struct {
		Evaluation  string          `json:"evaluation"`
		SnippetID   string          `json:"snippet_id"`
		CodeSnippet string          `json:"code_snippet"`
		Model       string          `json:"model"`
		Snippets    []model.Snippet `json:"snippets"`
	}

	FeedbackResponse struct {
		Description      string          `json:"description"`
		FeedbackReceived bool            `json:"feedback_received"`
		Snippets         []model.Snippet `json:"snippets"`
	}

	SnippetsResponse struct {
		Snippets []model.Snippet `json:"snippets"`
	}

	RunResponse struct {
		SnippetID string `json:"snippet_id"`
		executor.Result
		Snippets []model.Snippet `json:"snippets"`
	}
)

// CodegenHandler serves the playground operations.
type CodegenHandler struct {
	svc    *service.CodegenService
	pages  *Pages
	models []string
	logger *slog.Logger
}

// NewCodegenHandler creates a handler. models populates the model picker; the
// first entry is preselected.
func NewCodegenHandler(svc *service.CodegenService, pages *Pages, models []string, logger *slog.Logger) *CodegenHandler {
	return &CodegenHandler{
		svc:    svc,
		pages:  pages,
		models: models,
		logger: logger,
	}
}

// HandleHome serves GET /.
func (h *CodegenHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	snippets, err := h.svc.Home(r.Context())
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, SnippetsResponse{Snippets: snippets})
		return
	}
	h.pages.Render(w, http.StatusOK, h.view(lo.FirstOrEmpty(h.models), snippets))
}

// HandleGenerate serves POST /generate. Fields: model, description.
func (h *CodegenHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r, "description")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}

	gen, err := h.svc.Generate(r.Context(), in.Get("model"), in.Get("description"))
	if err != nil {
		h.fail(w, r, err, in)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, GenerateResponse{
			CodeSnippet: gen.Snippet.CodeSnippet,
			Description: gen.Snippet.Description,
			Model:       gen.Snippet.Model,
			SnippetID:   gen.Snippet.ID,
			Snippets:    gen.Snippets,
		})
		return
	}

	view := h.view(gen.Snippet.Model, gen.Snippets)
	view.Description = gen.Snippet.Description
	view.CodeSnippet = gen.Snippet.CodeSnippet
	view.SnippetID = gen.Snippet.ID
	h.pages.Render(w, http.StatusOK, view)
}

// HandleEvaluate serves POST /evaluate. Fields: snippet_id, code_snippet, model,
// and optionally description, which is carried into the feedback form.
func (h *CodegenHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r, "snippet_id", "code_snippet")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}

	eval, err := h.svc.Evaluate(r.Context(), in.Get("snippet_id"), in.Get("code_snippet"), in.Get("model"))
	if err != nil {
		h.fail(w, r, err, in)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, EvaluateResponse{
			Evaluation:  eval.Text,
			SnippetID:   eval.SnippetID,
			CodeSnippet: eval.CodeSnippet,
			Model:       eval.Model,
			Snippets:    eval.Snippets,
		})
		return
	}

	view := h.view(eval.Model, eval.Snippets)
	view.Description = in.Get("description")
	view.SnippetID = eval.SnippetID
	view.CodeSnippet = eval.CodeSnippet
	view.HasEvaluation = true
	view.Evaluation = h.renderMarkdown(eval.Text)
	h.pages.Render(w, http.StatusOK, view)
}

// HandleFeedback serves POST /feedback.
// Fields: description, code_snippet, model, feedback, rating.
func (h *CodegenHandler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r, "description", "code_snippet", "feedback", "rating")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}

	receipt, err := h.svc.ProvideFeedback(r.Context(), model.FeedbackEntry{
		Description: in.Get("description"),
		CodeSnippet: in.Get("code_snippet"),
		ModelName:   in.Get("model"),
		Feedback:    in.Get("feedback"),
		Rating:      in.Get("rating"),
	})
	if err != nil {
		h.fail(w, r, err, in)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, FeedbackResponse{
			Description:      receipt.Description,
			FeedbackReceived: true,
			Snippets:         receipt.Snippets,
		})
		return
	}

	view := h.view(lo.FirstOrEmpty(h.models), receipt.Snippets)
	view.FeedbackReceived = true
	h.pages.Render(w, http.StatusOK, view)
}

// HandleDelete serves POST /delete. Fields: snippet_id.
// Deleting an unknown id succeeds and simply returns the unchanged list.
func (h *CodegenHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r, "snippet_id")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}

	snippets, err := h.svc.Delete(r.Context(), in.Get("snippet_id"))
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, SnippetsResponse{Snippets: snippets})
		return
	}
	h.pages.Render(w, http.StatusOK, h.view(lo.FirstOrEmpty(h.models), snippets))
}

// HandleRun serves POST /run. Fields: snippet_id.
func (h *CodegenHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r, "snippet_id")
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}

	out, err := h.svc.Run(r.Context(), in.Get("snippet_id"))
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, RunResponse{
			SnippetID: out.SnippetID,
			Result:    *out.Result,
			Snippets:  out.Snippets,
		})
		return
	}

	view := h.view(lo.FirstOrEmpty(h.models), out.Snippets)
	view.SnippetID = out.SnippetID
	view.Run = out.Result
	h.pages.Render(w, http.StatusOK, view)
}

// HandleEstimate serves POST /api/estimate. Fields: model, description.
// It makes one real model call and reports its token usage and price.
func (h *CodegenHandler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r, "description")
	if err != nil {
		writeError(w, err)
		return
	}

	report, err := h.svc.EstimateCost(r.Context(), in.Get("model"), in.Get("description"))
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// fail reports err in whichever format the client asked for. HTML clients get
// the page back with the current list, an error banner and the forms filled
// from in (nil when the input itself was rejected).
func (h *CodegenHandler) fail(w http.ResponseWriter, r *http.Request, err error, in url.Values) {
	h.logFailure(r, err)

	if wantsJSON(r) {
		writeError(w, err)
		return
	}

	status, _, msg := errorStatus(err)
	snippets, listErr := h.svc.Home(r.Context())
	if listErr != nil {
		snippets = nil
	}
	view := h.view(lo.Ternary(in.Get("model") != "", in.Get("model"), lo.FirstOrEmpty(h.models)), snippets)
	view.Description = in.Get("description")
	view.CodeSnippet = in.Get("code_snippet")
	view.SnippetID = in.Get("snippet_id")
	view.Error = msg
	h.pages.Render(w, status, view)
}

func (h *CodegenHandler) logFailure(r *http.Request, err error) {
	status, kind, _ := errorStatus(err)
	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", attrs...)
		return
	}
	h.logger.Warn("request rejected", attrs...)
}

func (h *CodegenHandler) view(selected string, snippets []model.Snippet) View {
	models := h.models
	if selected != "" && !lo.Contains(models, selected) {
		models = append([]string{selected}, models...)
	}
	return View{
		Models:        models,
		SelectedModel: selected,
		RunEnabled:    h.svc.RunEnabled(),
		Snippets:      snippets,
	}
}

// renderMarkdown shows model output as HTML. If goldmark fails the raw text
// is shown escaped inside <pre>.
func (h *CodegenHandler) renderMarkdown(text string) template.HTML {
	out, err := markdown.ToHTML(text)
	if err != nil {
		h.logger.Warn("failed to render evaluation", slog.String("error", err.Error()))
		return template.HTML("<pre>" + template.HTMLEscapeString(text) + "</pre>")
	}
	return out
}

// wantsJSON reports whether r should get a JSON response: every /api route
// does, and so does any request that asks for JSON explicitly.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// readInput returns the request fields, from a JSON object body or from a
// form body, and checks that every field in required is present. Present but
// empty is accepted: content is never validated here.
func readInput(w http.ResponseWriter, r *http.Request, required ...string) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var values url.Values
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, apperror.ValidationFailed("body", "request body must be a JSON object of strings")
		}
		values = url.Values{}
		for k, v := range body {
			values.Set(k, v)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, apperror.ValidationFailed("body", "request body is not a valid form")
		}
		values = r.PostForm
	}

	for _, field := range required {
		if !values.Has(field) {
			return nil, apperror.ValidationFailed(field, field+" is required")
		}
	}
	return values, nil
}
