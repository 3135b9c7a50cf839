package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arcline-ai/model-gateway/internal/secrets"
)

type openaiWireRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens int `json:"max_tokens"`
}

func newOpenAITestAdapter(t *testing.T, handler http.HandlerFunc) *OpenAIAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base := NewBase("openai", "r1", testProviderConfig(), "id", &secrets.StaticSource{
		Creds: secrets.Credentials{Current: "sk-test"},
	})
	return NewOpenAI(base, server.URL)
}

func openaiOKHandler(t *testing.T, capture *openaiWireRequest) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want Bearer sk-test", got)
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-1",
			"model": "gpt-reported",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "hello"}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 3, "completion_tokens": 5, "total_tokens": 8},
		})
	}
}

func TestOpenAIGenerateHappyPath(t *testing.T) {
	var wire openaiWireRequest
	a := newOpenAITestAdapter(t, openaiOKHandler(t, &wire))

	success, err := a.Generate(context.Background(), Request{
		Prompt:  "hi",
		Context: RequestContext{Region: "r1"},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if success.Text != "hello" || success.Meta.Provider != "openai" || success.Meta.Region != "r1" {
		t.Fatalf("Generate() = %+v", success)
	}
	if success.Meta.Model != "gpt-reported" {
		t.Fatalf("meta.model = %q, want the vendor-reported model", success.Meta.Model)
	}
	if success.Tokens != (TokenUsage{Prompt: 3, Completion: 5, Total: 8}) {
		t.Fatalf("tokens = %+v", success.Tokens)
	}
	if wire.Model != "default-model" || wire.MaxTokens != DefaultMaxTokens {
		t.Fatalf("wire = %+v, want default model and max_tokens", wire)
	}
}

func TestOpenAISystemEntriesPassThroughInline(t *testing.T) {
	var wire openaiWireRequest
	a := newOpenAITestAdapter(t, openaiOKHandler(t, &wire))

	_, err := a.Generate(context.Background(), Request{
		Prompt:       "p",
		SystemPrompt: "R",
		Context: RequestContext{
			Region: "r1",
			History: []Message{
				{Role: RoleSystem, Content: "H"},
				{Role: RoleUser, Content: "u1"},
			},
		},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	wantRoles := []string{RoleSystem, RoleSystem, RoleUser, RoleUser}
	if len(wire.Messages) != len(wantRoles) {
		t.Fatalf("messages = %+v, want %d entries", wire.Messages, len(wantRoles))
	}
	for i, role := range wantRoles {
		if wire.Messages[i].Role != role {
			t.Errorf("messages[%d].role = %q, want %q", i, wire.Messages[i].Role, role)
		}
	}
	if wire.Messages[0].Content != "R" || wire.Messages[1].Content != "H" {
		t.Fatalf("messages = %+v, want resolved system first, inline history system second", wire.Messages)
	}
}

func TestOpenAIErrorMapping(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		message       string
		wantCode      ErrorCode
		wantRetryable bool
	}{
		{"auth", http.StatusUnauthorized, "Incorrect API key provided", CodeAuth, false},
		{"rate limit", http.StatusTooManyRequests, "Rate limit reached", CodeRateLimit, true},
		{"server error", http.StatusInternalServerError, "The server had an error", CodeUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newOpenAITestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": tt.message, "type": tt.name},
				})
			})

			_, err := a.Generate(context.Background(), Request{Prompt: "hi", Context: RequestContext{Region: "r1"}})
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("Generate() error = %v, want *Error", err)
			}
			if perr.Code != tt.wantCode || perr.Retryable != tt.wantRetryable {
				t.Fatalf("error = %+v, want code=%s retryable=%v", perr, tt.wantCode, tt.wantRetryable)
			}
		})
	}
}
