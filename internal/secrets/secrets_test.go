package secrets

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"both placeholders", "gw/{env}/{region}/anthropic", "gw/prod/us-east-1/anthropic"},
		{"repeated placeholders", "{env}-{env}/{region}", "prod-prod/us-east-1"},
		{"no placeholders", "static-id", "static-id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expand(tt.template, "prod", "us-east-1"); got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Credentials
		wantErr string
	}{
		{
			name:    "current and previous",
			payload: `{"current":"sk-new","previous":"sk-old"}`,
			want:    Credentials{Current: "sk-new", Previous: "sk-old"},
		},
		{
			name:    "current only",
			payload: `{"current":"sk-new"}`,
			want:    Credentials{Current: "sk-new"},
		},
		{
			name:    "missing current",
			payload: `{"previous":"sk-old"}`,
			wantErr: "missing the required \"current\" key",
		},
		{
			name:    "not json",
			payload: `sk-raw-key`,
			wantErr: "not valid JSON",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse("id", tt.payload)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Parse() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

type fakeSecretsManager struct {
	value *string
	err   error
}

func (f *fakeSecretsManager) GetSecretValue(_ context.Context, _ *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestManagerSourceFetch(t *testing.T) {
	src := NewManagerSource(&fakeSecretsManager{value: aws.String(`{"current":"sk-1"}`)})
	creds, err := src.Fetch(context.Background(), "id")
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if creds.Current != "sk-1" {
		t.Fatalf("Fetch() current = %q, want sk-1", creds.Current)
	}
}

func TestManagerSourceEmptySecretString(t *testing.T) {
	src := NewManagerSource(&fakeSecretsManager{value: aws.String("")})
	if _, err := src.Fetch(context.Background(), "id"); err == nil || !strings.Contains(err.Error(), "empty SecretString") {
		t.Fatalf("Fetch() error = %v, want empty SecretString", err)
	}
}
