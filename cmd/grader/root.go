package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-grader/internal/llm"
	"github.com/ahrav/go-grader/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
)

var version = "dev"

// completerFactory builds the model gateway; the returned func releases it.
type completerFactory func(cfg *configuration.Config) (llm.Completer, func(), error)

// app is the state shared by every subcommand.
type app struct {
	configPath   string
	cfg          *configuration.Config
	newCompleter completerFactory
}

func newApp() *app {
	return &app{newCompleter: gatewayCompleter}
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grader",
		Short: "Grade scanned exam answer sheets",
		Long: `grader transcribes a scanned answer sheet, aligns the answers with a
question set and scores every answer against a fixed rubric using a
generative model.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "grader.yaml", "Path to the YAML configuration file")
	debug := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if *debug {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
		cfg, err := configuration.Load(a.configPath)
		if err != nil {
			return fmt.Errorf("%w: %w", llmerrors.ErrConfiguration, err)
		}
		a.cfg = cfg
		return nil
	}

	cmd.AddCommand(newRunCommand(a))
	cmd.AddCommand(newScoreCommand(a))
	cmd.AddCommand(newExtractCommand(a))
	cmd.AddCommand(newQuestionsCommand(a))
	cmd.AddCommand(newAlignCommand(a))
	cmd.AddCommand(newWorkerCommand(a))
	cmd.AddCommand(newHistoryCommand(a))

	return cmd
}

// gatewayCompleter builds the production gateway.
func gatewayCompleter(cfg *configuration.Config) (llm.Completer, func(), error) {
	g, err := llm.NewGateway(cfg)
	if errors.Is(err, llmerrors.ErrModelUnavailable) {
		return nil, nil, fmt.Errorf("%w: set %s or %s: %w",
			llmerrors.ErrConfiguration, configuration.EnvGoogleAPIKey, configuration.EnvGeminiAPIKey, err)
	}
	if err != nil {
		return nil, nil, err
	}
	return g, func() {
		if err := g.Close(); err != nil {
			slog.Warn("closing gateway", "error", err)
		}
	}, nil
}
