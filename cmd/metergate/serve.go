package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/metergate/metergate/internal/api"
	"github.com/metergate/metergate/internal/config"
	"github.com/metergate/metergate/internal/credentials"
	"github.com/metergate/metergate/internal/metrics"
	"github.com/metergate/metergate/internal/upstream"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Metergate relay server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiKey, err := resolveAPIKey(ctx, cfg)
	if err != nil {
		return err
	}
	slog.Info("upstream credentials resolved")

	m := metrics.New()

	client := upstream.New(cfg.Upstream.BaseURL, apiKey, cfg.Upstream.Timeout)
	client.SetRetryPolicy(cfg.Upstream.MaxAttempts, cfg.Upstream.RetryBackoff)
	client.SetMetrics(m)

	router := api.NewRouter(api.RouterDeps{
		Upstream:       client,
		MetricsHandler: m.Handler(),
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}

// resolveAPIKey fetches the upstream key, building a Secrets Manager client
// only when the configuration points at a secret.
func resolveAPIKey(ctx context.Context, cfg *config.Config) (string, error) {
	var secrets credentials.SecretsAPI
	if cfg.Credentials.APIKey == "" && cfg.Credentials.SecretName != "" {
		var err error
		secrets, err = credentials.NewSecretsClient(ctx)
		if err != nil {
			return "", err
		}
	}
	return credentials.Resolve(ctx, cfg.Credentials, secrets)
}
