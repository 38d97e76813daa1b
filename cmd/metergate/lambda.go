package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/metergate/metergate/internal/api"
	"github.com/metergate/metergate/internal/config"
	"github.com/metergate/metergate/internal/event"
	"github.com/metergate/metergate/internal/upstream"
	"github.com/spf13/cobra"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run Metergate as an AWS Lambda handler",
	RunE:  runLambda,
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
}

func runLambda(cmd *cobra.Command, args []string) error {
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

	client := upstream.New(cfg.Upstream.BaseURL, apiKey, cfg.Upstream.Timeout)
	client.SetRetryPolicy(cfg.Upstream.MaxAttempts, cfg.Upstream.RetryBackoff)

	router := api.NewRouter(api.RouterDeps{Upstream: client})
	handler := event.NewHandler(client, router)

	awslambda.Start(func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		return handler.Invoke(ctx, raw)
	})
	return nil
}
