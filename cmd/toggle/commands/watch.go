package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	of "github.com/open-feature/go-sdk/openfeature"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	toggle "github.com/hyphen/toggle-openfeature-go"
)

const watchDomain = "toggle-watch"

var (
	watchFlags  []string
	interval    time.Duration
	metricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll flags and log provider events until interrupted",
	Long: `Initialize the provider for one targeting key, then read the given flags on
every tick. Reads of an expired bundle trigger a background refresh, so the
log shows PROVIDER_STALE, PROVIDER_READY and PROVIDER_CONFIGURATION_CHANGED
events as the cache turns over.

With --metrics-addr the provider's Prometheus metrics are served at /metrics.

Example:
  toggle watch --targeting-key user-123 --flag new-checkout --flag theme --cache-ttl 30s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		appLogger := logger.With("source", "watch")

		cfg, err := providerConfig()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		provider, err := toggle.New(cfg, toggle.WithLogger(logger), toggle.WithMetricsRegisterer(reg))
		if err != nil {
			return fmt.Errorf("failed to create provider: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := of.ShutdownWithContext(shutdownCtx); err != nil {
				appLogger.Error("shutdown error", "error", err)
			}
		}()

		if metricsAddr != "" {
			srv := serveMetrics(metricsAddr, reg, appLogger)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		of.SetEvaluationContext(of.NewEvaluationContext(targetingKey, contextAttributes(attributes)))

		client := of.NewClient(watchDomain)
		onEvent := func(details of.EventDetails) {
			appLogger.Info("provider event",
				"provider", details.ProviderName,
				"message", details.Message,
				"flags_changed", len(details.FlagChanges),
				"error_code", details.ErrorCode)
		}
		for _, t := range []of.EventType{of.ProviderReady, of.ProviderStale, of.ProviderConfigChange, of.ProviderError} {
			client.AddHandler(t, &onEvent)
		}

		initCtx, cancel := context.WithTimeout(ctx, initTimeout)
		defer cancel()
		if err := of.SetNamedProviderWithContextAndWait(initCtx, watchDomain, provider); err != nil {
			return fmt.Errorf("failed to initialize provider: %w", err)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			for _, flag := range watchFlags {
				details, _ := client.ObjectValueDetails(ctx, flag, nil, of.EvaluationContext{})
				appLogger.Info("flag",
					"flag", flag,
					"value", details.Value,
					"reason", details.Reason,
					"error_code", details.ErrorCode,
					"status", provider.Status())
			}

			select {
			case <-ctx.Done():
				appLogger.Info("stopping", "health", provider.Metrics())
				return nil
			case <-ticker.C:
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVarP(&targetingKey, "targeting-key", "k", "", "Targeting key of the subject")
	watchCmd.Flags().StringToStringVarP(&attributes, "attr", "a", nil, "Custom attribute as key=value (repeatable)")
	watchCmd.Flags().StringSliceVarP(&watchFlags, "flag", "f", nil, "Flag to read on every tick (repeatable)")
	watchCmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "Time between reads")
	watchCmd.Flags().DurationVar(&initTimeout, "init-timeout", 15*time.Second, "How long to wait for the first fetch")
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	_ = watchCmd.MarkFlagRequired("targeting-key")

	rootCmd.AddCommand(watchCmd)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
