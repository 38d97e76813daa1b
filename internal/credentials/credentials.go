// Package credentials resolves the upstream API key once at startup. A
// resolution failure is fatal: the relay cannot serve any request without it.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/metergate/metergate/internal/config"
)

// SecretsAPI is the slice of the Secrets Manager client used here. It exists
// to allow testing without AWS.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewSecretsClient builds a Secrets Manager client from the ambient AWS
// configuration (environment, shared config, instance role).
func NewSecretsClient(ctx context.Context) (SecretsAPI, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}

// Resolve returns the upstream API key. A directly configured value wins;
// otherwise the named secret is fetched and its SecretString parsed as a JSON
// object holding the key under the configured field. The secrets client may be
// nil when a direct value is configured.
func Resolve(ctx context.Context, cfg config.CredentialsConfig, secrets SecretsAPI) (string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}

	if cfg.SecretName == "" || cfg.SecretKey == "" {
		return "", fmt.Errorf("no API key configured: set credentials.api_key, or credentials.secret_name and credentials.secret_key")
	}
	if secrets == nil {
		return "", fmt.Errorf("secret %q configured but no secrets client available", cfg.SecretName)
	}

	out, err := secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &cfg.SecretName,
	})
	if err != nil {
		return "", fmt.Errorf("retrieving secret %q: %w", cfg.SecretName, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no SecretString", cfg.SecretName)
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &fields); err != nil {
		return "", fmt.Errorf("parsing secret %q: %w", cfg.SecretName, err)
	}

	key, ok := fields[cfg.SecretKey]
	if !ok || key == "" {
		return "", fmt.Errorf("secret %q has no field %q", cfg.SecretName, cfg.SecretKey)
	}
	return key, nil
}
