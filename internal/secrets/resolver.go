// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"
)

// OpenAIKey is the key name of the chat-completion API key.
const OpenAIKey = "openai-api-key"

// ErrNotFound is returned when no source holds the requested key.
var ErrNotFound = errors.New("secret not found")

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider reads secrets stored as JSON maps in AWS Secrets Manager.
type AWSProvider struct {
	client SecretsManagerAPI
}

// NewAWSProvider creates a provider for the given region using the default
// credential chain.
func NewAWSProvider(ctx context.Context, region string) (*AWSProvider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &AWSProvider{client: secretsmanager.NewFromConfig(cfg)}, nil
}

// NewAWSProviderFromClient wraps an existing client.
func NewAWSProviderFromClient(client SecretsManagerAPI) *AWSProvider {
	return &AWSProvider{client: client}
}

// GetSecret fetches the secret id and decodes it as a map of key to value.
func (p *AWSProvider) GetSecret(ctx context.Context, id string) (map[string]string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching secret %s: %w", id, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", id)
	}
	var values map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		return nil, fmt.Errorf("decoding secret %s: %w", id, err)
	}
	return values, nil
}

// Resolver looks a key up in the environment, then in a secrets directory,
// then in one Secrets Manager secret. The remote secret is fetched at most
// once.
type Resolver struct {
	// Dir is the secrets directory. Empty skips the directory lookup.
	Dir string
	// SecretID names the Secrets Manager secret. Empty skips the remote lookup.
	SecretID string
	AWS      *AWSProvider
	Logger   *zap.Logger

	// lookupEnv is os.LookupEnv outside tests.
	lookupEnv func(string) (string, bool)

	once   sync.Once
	remote map[string]string
	rerr   error
}

// EnvName converts a key name to its environment variable:
// "openai-api-key" becomes "OPENAI_API_KEY".
func EnvName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// Get returns the value for key and the name of the source it came from.
func (r *Resolver) Get(ctx context.Context, key string) (string, string, error) {
	lookup := r.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvName(key)); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), "env", nil
	}

	if r.Dir != "" {
		values, err := Load(r.Dir)
		if err != nil {
			return "", "", err
		}
		if v, ok := values[key]; ok {
			return v, "dir", nil
		}
	}

	if r.SecretID != "" && r.AWS != nil {
		r.once.Do(func() {
			r.remote, r.rerr = r.AWS.GetSecret(ctx, r.SecretID)
		})
		if r.rerr != nil {
			r.logger().Warn("secrets manager lookup failed",
				zap.String("secret_id", r.SecretID), zap.Error(r.rerr))
		} else if v := strings.TrimSpace(r.remote[key]); v != "" {
			return v, "secretsmanager", nil
		}
	}

	return "", "", fmt.Errorf("%s: %w", key, ErrNotFound)
}

func (r *Resolver) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
