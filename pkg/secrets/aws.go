package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

var _ secretFetcher = (*AWSSecretsManagerFetcher)(nil)

// AWSSecretsManagerFetcher retrieves secret payloads and caches clients per
// region/endpoint pair
type AWSSecretsManagerFetcher struct {
	mu      sync.Mutex
	clients map[string]*secretsmanager.Client
}

// NewAWSSecretsManagerFetcher creates an empty fetcher
func NewAWSSecretsManagerFetcher() *AWSSecretsManagerFetcher {
	return &AWSSecretsManagerFetcher{
		clients: make(map[string]*secretsmanager.Client),
	}
}

// FetchSecret retrieves the secret payload as a string
func (f *AWSSecretsManagerFetcher) FetchSecret(ctx context.Context, region, endpoint, secretID string) (string, error) {
	if secretID == "" {
		return "", fmt.Errorf("secret id is required")
	}
	if region == "" {
		return "", fmt.Errorf("region is required to read secret %s", secretID)
	}

	client, err := f.getClient(ctx, region, endpoint)
	if err != nil {
		return "", err
	}

	output, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch secret %s: %w", secretID, err)
	}

	if output.SecretString != nil {
		return *output.SecretString, nil
	}

	if len(output.SecretBinary) > 0 {
		return string(output.SecretBinary), nil
	}

	return "", fmt.Errorf("secret %s did not return string or binary payload", secretID)
}

func (f *AWSSecretsManagerFetcher) getClient(ctx context.Context, region, endpoint string) (*secretsmanager.Client, error) {
	key := region + "|" + endpoint

	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[key]; ok {
		return client, nil
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration for region %s: %w", region, err)
	}

	client := secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	f.clients[key] = client
	return client, nil
}
