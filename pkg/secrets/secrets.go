// Package secrets loads the manifest signing key from its configured source.
// The key is resolved once at startup and injected into the integrity
// signer; a missing key is a fatal configuration error.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"snapseal/pkg/models"
)

// Source types for the signing key
const (
	SourceEnv               = "env"
	SourceFile              = "file"
	SourceAWSSecretsManager = "awsSecretsManager"
)

// SigningKeySource describes where the signing key comes from
type SigningKeySource struct {
	Source string
	EnvVar string
	File   string
	AWS    AWSSecretSource
}

// AWSSecretSource configures an AWS Secrets Manager lookup. SecretKeyField
// optionally names a field inside a JSON secret payload.
type AWSSecretSource struct {
	Region         string
	Endpoint       string
	SecretID       string
	SecretKeyField string
}

// secretFetcher abstracts the AWS call for tests
type secretFetcher interface {
	FetchSecret(ctx context.Context, region, endpoint, secretID string) (string, error)
}

// Loader resolves signing keys from configured sources
type Loader struct {
	fetcher secretFetcher
}

// NewLoader creates a loader using the real AWS Secrets Manager fetcher
func NewLoader() *Loader {
	return &Loader{fetcher: NewAWSSecretsManagerFetcher()}
}

// NewLoaderWithFetcher creates a loader with an injected fetcher for tests
func NewLoaderWithFetcher(fetcher secretFetcher) *Loader {
	return &Loader{fetcher: fetcher}
}

// LoadSigningKey resolves the signing key bytes from the configured source.
// An empty resolved key is reported as ErrSigningKeyMissing.
func (l *Loader) LoadSigningKey(ctx context.Context, src SigningKeySource) ([]byte, error) {
	source := strings.TrimSpace(src.Source)
	if source == "" {
		source = SourceEnv
	}

	var key string
	switch source {
	case SourceEnv:
		envVar := src.EnvVar
		if envVar == "" {
			envVar = "SNAPSEAL_SIGNING_KEY"
		}
		key = os.Getenv(envVar)

	case SourceFile:
		if src.File == "" {
			return nil, fmt.Errorf("signing key file path is required: %w", models.ErrSigningKeyMissing)
		}
		data, err := os.ReadFile(src.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key file %s: %w", src.File, err)
		}
		key = string(data)

	case SourceAWSSecretsManager:
		payload, err := l.fetcher.FetchSecret(ctx, src.AWS.Region, src.AWS.Endpoint, src.AWS.SecretID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch signing key secret: %w", err)
		}
		key, err = extractFieldFromJSON(payload, src.AWS.SecretKeyField)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported signing key source %q", src.Source)
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, models.ErrSigningKeyMissing
	}
	return []byte(key), nil
}

// extractFieldFromJSON pulls a named string field out of a JSON secret
// payload. An empty field name returns the payload unchanged.
func extractFieldFromJSON(payload, field string) (string, error) {
	if field == "" {
		return payload, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return "", fmt.Errorf("failed to parse secret JSON: %w", err)
	}

	value, ok := parsed[field]
	if !ok {
		return "", fmt.Errorf("secret JSON does not contain field %q", field)
	}

	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("secret field %q is not a string value", field)
	}

	return strValue, nil
}
