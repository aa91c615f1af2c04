package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingoxa/internal/config"
	"github.com/MrWong99/lingoxa/internal/health"
	"github.com/MrWong99/lingoxa/internal/observe"
)

const defaultListenAddr = ":8080"

func serveCmd() *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tutor with health and metrics endpoints and config hot reload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd.OutOrStdout(), shutdownTimeout)
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight requests on shutdown")
	return cmd
}

func runServe(parent context.Context, out io.Writer, shutdownTimeout time.Duration) error {
	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	// Installed before the app so the default metrics bind to the exporter.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "lingoxa",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	application, err := newApplication(ctx)
	if err != nil {
		return err
	}

	printStartupSummary(out, cfg)

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(cfgPath, application.ApplyConfig)
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}

	// ── HTTP ──────────────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(application.Checkers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cmp.Or(cfg.Server.ListenAddr, defaultListenAddr),
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr, "tls", cfg.Server.TLS != nil)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		if err := watcher.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		// ── Graceful shutdown ─────────────────────────────────────────────────
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(
			srv.Shutdown(shutdownCtx),
			application.Shutdown(shutdownCtx),
		)
	})

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("goodbye")
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        Lingoxa startup summary        ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	for i, m := range cfg.Providers.LLM {
		kind := "LLM"
		if i > 0 {
			kind = "LLM fallback"
		}
		printProvider(w, kind, m.ModelID(), m.Model)
	}
	if len(cfg.Providers.LLM) == 0 {
		printProvider(w, "LLM", "", "")
	}
	printProvider(w, "STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	for i, v := range cfg.Providers.TTS {
		kind := "TTS"
		if i > 0 {
			kind = "TTS fallback"
		}
		printProvider(w, kind, v.Name, v.Model)
	}
	if len(cfg.Providers.TTS) == 0 {
		printProvider(w, "TTS", "", "")
	}
	printProvider(w, "Pronunciation", cfg.Providers.Pronunciation.Name, "")
	store := "memory"
	if cfg.Learners.PostgresDSN != "" {
		store = "postgres"
	}
	fmt.Fprintf(w, "║  Learner store   : %-19s ║\n", store)
	fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cmp.Or(cfg.Server.ListenAddr, defaultListenAddr))
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Fprintf(w, "║  %-13s   : %-19s ║\n", kind, value)
}
