package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	httptransport "github.com/aegis-gate/aegis/internal/adapter/inbound/http"
	"github.com/aegis-gate/aegis/internal/adapter/outbound/policywatch"
	"github.com/aegis-gate/aegis/internal/config"
	"github.com/aegis-gate/aegis/internal/telemetry"
)

const shutdownGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway's HTTP transport",
	Long: `Load the policy document, wire every collaborator (audit ledger, tool
registry, approval verifier, sandbox runner, optional evaluator client), and
serve the six contractual endpoints until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.LoadSettings()
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}

		state, err := config.Build(settings)
		if err != nil {
			return fmt.Errorf("build state: %w", err)
		}
		defer state.Ledger.Close()

		watcher, err := policywatch.New(settings.PolicyPath, state.Logger)
		if err != nil {
			state.Logger.Warn("aegis: policy watcher disabled", "error", err)
		} else {
			defer watcher.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tp, err := telemetry.NewTracerProvider(ctx)
		if err != nil {
			state.Logger.Warn("aegis: tracing disabled", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					state.Logger.Warn("aegis: tracer shutdown failed", "error", err)
				}
			}()
		}

		mp, err := telemetry.NewMeterProvider(ctx)
		if err != nil {
			state.Logger.Warn("aegis: otel metrics disabled", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				if err := mp.Shutdown(shutdownCtx); err != nil {
					state.Logger.Warn("aegis: meter shutdown failed", "error", err)
				}
			}()
			err := telemetry.RegisterStateGauges(
				state.Coordinator.PreparedCount,
				func() int64 { return int64(state.Threats.Len()) },
			)
			if err != nil {
				state.Logger.Warn("aegis: registering state gauges failed", "error", err)
			}
		}

		if settings.MetricsAddr != "" {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.HandlerFor(state.MetricsRegistry, promhttp.HandlerOpts{}))
			metricsServer := &http.Server{Addr: settings.MetricsAddr, Handler: metricsMux}
			go func() {
				state.Logger.Info("aegis: metrics listening", "addr", settings.MetricsAddr)
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					state.Logger.Warn("aegis: metrics server stopped", "error", err)
				}
			}()
			defer metricsServer.Close()
		}

		mux := httptransport.NewMux(state)
		server := &http.Server{Addr: settings.Bind, Handler: mux}

		errCh := make(chan error, 1)
		go func() {
			state.Logger.Info("aegis: listening", "addr", settings.Bind)
			errCh <- server.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
