// Package secrets loads provider API credentials from AWS Secrets Manager.
//
// Secret IDs in the service configuration are templates containing {env} and
// {region} placeholders; Expand substitutes them before the lookup. The
// secret payload is a JSON object with a required "current" key and an
// optional "previous" key kept during rotation.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Credentials is the parsed secret payload.
type Credentials struct {
	Current  string `json:"current"`
	Previous string `json:"previous,omitempty"`
}

// Source fetches credentials by (already expanded) secret ID.
type Source interface {
	Fetch(ctx context.Context, secretID string) (Credentials, error)
}

// Expand substitutes the {env} and {region} placeholders in a secret ID
// template.
func Expand(template, env, region string) string {
	s := strings.ReplaceAll(template, "{env}", env)
	return strings.ReplaceAll(s, "{region}", region)
}

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ManagerSource fetches credentials from AWS Secrets Manager.
type ManagerSource struct {
	client SecretsManagerAPI
}

// NewManagerSource wraps a Secrets Manager client.
func NewManagerSource(client SecretsManagerAPI) *ManagerSource {
	return &ManagerSource{client: client}
}

// Fetch retrieves and parses the secret. The returned error always names the
// underlying cause so that adapter AUTH errors can surface it.
func (s *ManagerSource) Fetch(ctx context.Context, secretID string) (Credentials, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("secrets: fetch %q: %w", secretID, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return Credentials{}, fmt.Errorf("secrets: %q has empty SecretString", secretID)
	}
	return Parse(secretID, *out.SecretString)
}

// Parse decodes a secret payload, requiring a nonempty "current" key.
func Parse(secretID, payload string) (Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal([]byte(payload), &creds); err != nil {
		return Credentials{}, fmt.Errorf("secrets: %q is not valid JSON: %w", secretID, err)
	}
	if creds.Current == "" {
		return Credentials{}, fmt.Errorf("secrets: %q is missing the required \"current\" key", secretID)
	}
	return creds, nil
}

// StaticSource returns fixed credentials for every fetch. Test helper.
type StaticSource struct {
	Creds Credentials
	Err   error

	mu    sync.Mutex
	calls int
	delay time.Duration
}

// WithDelay makes every fetch sleep, widening the single-flight window.
func (s *StaticSource) WithDelay(d time.Duration) *StaticSource {
	s.delay = d
	return s
}

func (s *StaticSource) Fetch(_ context.Context, _ string) (Credentials, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.Err != nil {
		return Credentials{}, s.Err
	}
	return s.Creds, nil
}

// Calls reports how many fetches were issued.
func (s *StaticSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
