// Package handler contains the HTTP handlers for the playground.
//
// Each operation is served twice from the same handler function: as a
// rendered page for the browser form posts (POST /generate) and as JSON for
// scripts (POST /api/generate, or any request sending Accept: application/json).
// Handlers only parse input, call the service and pick a renderer; they hold
// no business logic.
package handler

import (
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/sakif/codegen-playground/internal/executor"
	"github.com/sakif/codegen-playground/internal/model"
)

const pageTitle = "Code Generation Web Interface"

// View is everything the index template can show. Zero fields render nothing.
type View struct {
	Title         string
	Models        []string
	SelectedModel string
	RunEnabled    bool

	Description string
	CodeSnippet string
	SnippetID   string

	HasEvaluation bool
	Evaluation    template.HTML

	FeedbackReceived bool
	Run              *executor.Result

	Snippets []model.Snippet
	Error    string
}

// Pages renders the playground templates.
//
// Templates are parsed once at startup: base.html defines the page shell
// with a {{template "content" .}} placeholder that index.html fills in.
type Pages struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewPages parses templates/base.html and templates/index.html from fsys.
func NewPages(fsys fs.FS, logger *slog.Logger) (*Pages, error) {
	tmpl, err := template.ParseFS(fsys, "templates/base.html", "templates/index.html")
	if err != nil {
		return nil, err
	}
	return &Pages{templates: tmpl, logger: logger}, nil
}

// Render writes view with the given status.
//
// The template is executed into the ResponseWriter directly; a failure part
// way through can only be logged because the status line is already sent.
func (p *Pages) Render(w http.ResponseWriter, status int, view View) {
	if view.Title == "" {
		view.Title = pageTitle
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	if err := p.templates.ExecuteTemplate(w, "base", view); err != nil {
		p.logger.Error("failed to render template", slog.String("error", err.Error()))
	}
}
