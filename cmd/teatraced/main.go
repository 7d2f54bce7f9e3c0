// Command teatraced runs the tea chain-of-custody ledger server.
package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teatrace/internal/blob"
	"teatrace/internal/core"
	"teatrace/internal/httpapi"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "teatraced",
		Short:         "Tea batch chain-of-custody ledger server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}
	cmd.Flags().String("listen", ":8080", "listen address")
	cmd.Flags().String("log-level", "info", "zerolog level")
	cmd.Flags().String("metrics", "prometheus", "metrics backend (prometheus or expvar)")
	cmd.Flags().String("trace-log", "", "file receiving one JSON line per ledger operation span")
	_ = v.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	_ = v.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))
	_ = v.BindPFlag("metrics", cmd.Flags().Lookup("metrics"))
	_ = v.BindPFlag("trace_log", cmd.Flags().Lookup("trace-log"))
	v.SetEnvPrefix("TEATRACE")
	v.AutomaticEnv()
	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	level, err := zerolog.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("component", "teatraced").Logger()

	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenPersistentStore(engine)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	blobStore, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	logger.Info().Str("driver", string(blobStore.Driver())).Msg("provenance export enabled")

	opts := []core.ServiceOption{
		core.WithProvenanceExporter(core.NewProvenanceExporter(blobStore)),
	}

	var metricsHandler http.Handler
	metricsPath := "/metrics"
	switch backend := v.GetString("metrics"); backend {
	case "prometheus":
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		recorder, err := core.NewPrometheusMetricsRecorder(registry)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		opts = append(opts, core.WithMetricsRecorder(recorder))
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	case "expvar":
		opts = append(opts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")))
		metricsHandler = expvar.Handler()
		metricsPath = "/debug/vars"
	default:
		return fmt.Errorf("unknown metrics backend %q", backend)
	}

	if path := v.GetString("trace_log"); path != "" {
		traceFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace log: %w", err)
		}
		defer traceFile.Close()
		opts = append(opts, core.WithTracer(core.NewJSONTracer(traceFile)))
	}

	service := core.NewService(store, opts...)

	router := httpapi.NewServer(service, logger).Router()
	router.Handle(metricsPath, metricsHandler)

	srv := &http.Server{
		Addr:              v.GetString("listen"),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
