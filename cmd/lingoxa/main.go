// Command lingoxa is the entry point for the Lingoxa English tutor.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/lingoxa/internal/app"
	"github.com/MrWong99/lingoxa/internal/config"
)

var version = "dev"

var (
	cfgPath string
	verbose bool

	// cfg is loaded once by initLogging before any subcommand runs.
	cfg *config.Config

	// logLevel is shared with the app so hot reloads can change verbosity.
	logLevel = new(slog.LevelVar)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lingoxa",
		Short: "Lingoxa - AI English tutor for Vietnamese learners",
		Long: `Lingoxa answers typed or spoken English with a tutor reply,
grammar corrections, pronunciation scores and, when it helps,
a Vietnamese explanation.

Run the HTTP API:        lingoxa serve
Practise in a terminal:  lingoxa chat --user alice
Check the backends:      lingoxa probe`,
		PersistentPreRunE: initLogging,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging regardless of server.log_level")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lingoxa %s\n", version)
		},
	})
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(probeCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// initLogging loads the configuration and installs the process logger.
func initLogging(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	loaded, err := config.Load(cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", cfgPath)
		}
		return err
	}
	cfg = loaded

	logLevel.Set(app.SlogLevel(cfg.Server.LogLevel))
	if verbose {
		logLevel.Set(slog.LevelDebug)
	}
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), logLevel))

	slog.Debug("configuration loaded",
		"config", cfgPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)
	return nil
}

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newApplication builds the providers named in cfg and wires the app.
func newApplication(ctx context.Context) (*app.App, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(logLevel))
	if err != nil {
		return nil, fmt.Errorf("initialise application: %w", err)
	}
	return application, nil
}
