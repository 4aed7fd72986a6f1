// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: every dependency is built here from the
// config and wired in one place.
//
//	config → stores (memory|sqlite, jsonfile) ─┐
//	config → llm client (openai|ollama|echo) ──┼→ CodegenService → CodegenHandler → routes
//	config → docker sandbox (optional) ────────┘
//
// Keeping this out of main.go lets tests build a complete server without
// starting a listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/codegen-playground/internal/config"
	"github.com/sakif/codegen-playground/internal/executor"
	"github.com/sakif/codegen-playground/internal/executor/docker"
	"github.com/sakif/codegen-playground/internal/handler"
	"github.com/sakif/codegen-playground/internal/llm"
	"github.com/sakif/codegen-playground/internal/middleware"
	"github.com/sakif/codegen-playground/internal/repository"
	"github.com/sakif/codegen-playground/internal/repository/jsonfile"
	"github.com/sakif/codegen-playground/internal/repository/memory"
	sqliteRepo "github.com/sakif/codegen-playground/internal/repository/sqlite"
	"github.com/sakif/codegen-playground/internal/service"
	"github.com/sakif/codegen-playground/web"
)

// Server owns the router and every resource that must be released on
// shutdown (the sqlite pool and the sandbox containers).
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	closers []io.Closer
}

// New builds the full dependency graph from cfg. A sandbox that cannot start
// is logged and skipped; everything else is fatal.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}

	snippets, err := s.snippetStore()
	if err != nil {
		return nil, err
	}
	feedback := jsonfile.NewFeedbackStore(cfg.FeedbackPath)

	client, err := NewLLMClient(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	svc := service.NewCodegenService(snippets, feedback, client, logger, service.Options{
		DefaultModel: cfg.DefaultModel,
		Timeout:      cfg.LLMTimeout,
		Runner:       s.sandbox(),
		Models:       cfg.ModelChoices(),
	})

	pages, err := handler.NewPages(web.FS, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	h := handler.NewCodegenHandler(svc, pages, cfg.ModelChoices(), logger)

	if err := s.setupRoutes(h); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// NewLLMClient picks the model provider(s) from cfg. Models prefixed with
// "ollama/" go to OLLAMA_URL; everything else goes to OpenAI (or to any
// OpenAI-compatible gateway at OPENAI_BASE_URL). LLM_OFFLINE swaps both for
// a canned offline client.
func NewLLMClient(cfg *config.Config) (llm.Client, error) {
	if cfg.LLMOffline {
		return llm.Echo{}, nil
	}

	router := &llm.Router{}
	if cfg.OpenAIAPIKey != "" {
		openai, err := llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.LLMTimeout,
		})
		if err != nil {
			return nil, err
		}
		router.Default = openai
	}
	if cfg.OllamaURL != "" {
		ollama, err := llm.NewOllama(cfg.OllamaURL, cfg.LLMTimeout)
		if err != nil {
			return nil, err
		}
		router.Ollama = ollama
	}
	if router.Default == nil && router.Ollama == nil {
		return nil, errors.New("no model provider configured: set OPENAI_API_KEY, OLLAMA_URL or LLM_OFFLINE")
	}
	return router, nil
}

func (s *Server) snippetStore() (repository.SnippetRepository, error) {
	if s.config.SnippetStore != config.StoreSQLite {
		return memory.NewSnippetStore(), nil
	}

	// os.MkdirAll is a no-op when the directory already exists.
	if dir := filepath.Dir(s.config.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	db, err := sqliteRepo.New(s.config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.closers = append(s.closers, db)
	return db, nil
}

// sandbox returns nil when code execution is disabled or Docker is missing;
// /run then answers 503.
func (s *Server) sandbox() executor.Runner {
	if !s.config.SandboxEnabled {
		return nil
	}

	cfg := docker.DefaultConfig()
	cfg.Image = s.config.SandboxImage
	cfg.Timeout = s.config.SandboxTimeout
	cfg.PoolSize = s.config.SandboxPoolSize

	sb, err := docker.New(context.Background(), cfg, s.logger)
	if err != nil {
		s.logger.Warn("sandbox unavailable, /run is disabled", slog.String("error", err.Error()))
		return nil
	}
	s.closers = append(s.closers, sb)
	return sb
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
//
//	GET  /              home page
//	POST /generate      generate a snippet (page)
//	POST /evaluate      evaluate code (page)
//	POST /feedback      record feedback (page)
//	POST /delete        delete a snippet (page)
//	POST /run           run a snippet in the sandbox (page)
//	GET  /api/snippets  list snippets (JSON)
//	POST /api/...       the same operations as JSON, plus /api/estimate
//	GET  /static/*      embedded CSS
//	GET  /metrics       Prometheus
//	GET  /healthz       liveness
//
// MIDDLEWARE ORDER MATTERS: RequestID must run before Logger so the id is in
// the log line, and Recoverer sits inside both so a panic is still logged
// and counted as a 500.
func (s *Server) setupRoutes(h *handler.CodegenHandler) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(chimiddleware.Recoverer)

	static, err := fs.Sub(web.FS, "static")
	if err != nil {
		return fmt.Errorf("opening static assets: %w", err)
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})

	s.router.Get("/", h.HandleHome)
	s.router.Post("/generate", h.HandleGenerate)
	s.router.Post("/evaluate", h.HandleEvaluate)
	s.router.Post("/feedback", h.HandleFeedback)
	s.router.Post("/delete", h.HandleDelete)
	s.router.Post("/run", h.HandleRun)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/snippets", h.HandleHome)
		r.Post("/generate", h.HandleGenerate)
		r.Post("/evaluate", h.HandleEvaluate)
		r.Post("/feedback", h.HandleFeedback)
		r.Post("/delete", h.HandleDelete)
		r.Post("/run", h.HandleRun)
		r.Post("/estimate", h.HandleEstimate)
	})

	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database and sandbox, in reverse order of creation.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and releases resources.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("failed to release resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// A generate request waits on the model, so the write deadline has to
		// cover the whole upstream timeout.
		WriteTimeout: s.config.LLMTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("snippet_store", s.config.SnippetStore),
			slog.String("feedback_path", s.config.FeedbackPath),
			slog.String("default_model", s.config.DefaultModel),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
