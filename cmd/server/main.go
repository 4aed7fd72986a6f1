// Package main is the entry point for the code generation playground.
//
// main only reads configuration, builds a logger and hands over to
// internal/server; all behaviour lives in the internal packages.
//
//	codegen-playground                 # same as `serve`
//	codegen-playground serve --port 9000
//	codegen-playground cost --model gpt-4o-mini --description "reverse a string"
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sakif/codegen-playground/internal/config"
	"github.com/sakif/codegen-playground/internal/repository/jsonfile"
	"github.com/sakif/codegen-playground/internal/repository/memory"
	"github.com/sakif/codegen-playground/internal/server"
	"github.com/sakif/codegen-playground/internal/service"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var envFile string

	root := &cobra.Command{
		Use:           "codegen-playground",
		Short:         "Web front-end that turns descriptions into code with an LLM",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(v, envFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flags.Int("port", 8080, "HTTP port (PORT)")
	flags.String("log-level", "info", "debug, info, warn or error (LOG_LEVEL)")
	flags.String("feedback-path", "feedback.json", "feedback JSON file (FEEDBACK_PATH)")
	flags.Bool("offline", false, "answer with a canned offline model (LLM_OFFLINE)")

	// Flags only win over the environment when they are set explicitly.
	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("feedback_path", flags.Lookup("feedback-path"))
	_ = v.BindPFlag("llm_offline", flags.Lookup("offline"))

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the web server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(v, envFile)
		},
	})
	root.AddCommand(newCostCmd(v, &envFile))

	return root
}

func serve(v *viper.Viper, envFile string) error {
	cfg, logger, err := setup(v, envFile)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func newCostCmd(v *viper.Viper, envFile *string) *cobra.Command {
	var modelName, description string

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Generate once for a description and print the token usage and price",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(v, *envFile)
			if err != nil {
				return err
			}

			client, err := server.NewLLMClient(cfg)
			if err != nil {
				return err
			}
			// Nothing is stored by EstimateCost; the stores only satisfy the constructor.
			svc := service.NewCodegenService(
				memory.NewSnippetStore(),
				jsonfile.NewFeedbackStore(cfg.FeedbackPath),
				client,
				logger,
				service.Options{DefaultModel: cfg.DefaultModel, Timeout: cfg.LLMTimeout, Models: cfg.ModelChoices()},
			)

			report, err := svc.EstimateCost(context.Background(), modelName, description)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringVar(&modelName, "model", "", "model to price (defaults to DEFAULT_MODEL)")
	cmd.Flags().StringVar(&description, "description", "", "what the generated code should do")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

// setup loads and validates the config and builds the slog logger.
func setup(v *viper.Viper, envFile string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v, envFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}
