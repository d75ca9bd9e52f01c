// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSM struct {
	value string
	err   error
	calls int
}

func (f *fakeSM) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{Name: in.SecretId, SecretString: aws.String(f.value)}, nil
}

func noEnv(string) (string, bool) { return "", false }

func TestEnvName(t *testing.T) {
	assert.Equal(t, "OPENAI_API_KEY", EnvName(OpenAIKey))
}

func TestResolver_EnvWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, OpenAIKey, "from-dir")

	r := &Resolver{
		Dir: dir,
		lookupEnv: func(name string) (string, bool) {
			if name == "OPENAI_API_KEY" {
				return " from-env ", true
			}
			return "", false
		},
	}
	v, src, err := r.Get(context.Background(), OpenAIKey)
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)
	assert.Equal(t, "env", src)
}

func TestResolver_DirBeforeSecretsManager(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, OpenAIKey, "from-dir")
	sm := &fakeSM{value: `{"openai-api-key":"from-sm"}`}

	r := &Resolver{Dir: dir, SecretID: "report-engine", AWS: NewAWSProviderFromClient(sm), lookupEnv: noEnv}
	v, src, err := r.Get(context.Background(), OpenAIKey)
	require.NoError(t, err)
	assert.Equal(t, "from-dir", v)
	assert.Equal(t, "dir", src)
	assert.Zero(t, sm.calls)
}

func TestResolver_SecretsManagerFetchedOnce(t *testing.T) {
	sm := &fakeSM{value: `{"openai-api-key":"from-sm","other":"x"}`}
	r := &Resolver{SecretID: "report-engine", AWS: NewAWSProviderFromClient(sm), lookupEnv: noEnv}

	v, src, err := r.Get(context.Background(), OpenAIKey)
	require.NoError(t, err)
	assert.Equal(t, "from-sm", v)
	assert.Equal(t, "secretsmanager", src)

	v, _, err = r.Get(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
	assert.Equal(t, 1, sm.calls)
}

func TestResolver_NotFound(t *testing.T) {
	sm := &fakeSM{err: errors.New("access denied")}
	r := &Resolver{Dir: t.TempDir(), SecretID: "report-engine", AWS: NewAWSProviderFromClient(sm), lookupEnv: noEnv}

	_, _, err := r.Get(context.Background(), OpenAIKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAWSProvider_InvalidJSON(t *testing.T) {
	p := NewAWSProviderFromClient(&fakeSM{value: "not json"})
	_, err := p.GetSecret(context.Background(), "id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding secret id")
}
