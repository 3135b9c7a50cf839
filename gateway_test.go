package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arcline-ai/model-gateway/internal/config"
	"github.com/arcline-ai/model-gateway/internal/requestlog"
	"github.com/arcline-ai/model-gateway/internal/secrets"
	"github.com/arcline-ai/model-gateway/providers"
)

func TestDefaultAdapterFactory(t *testing.T) {
	settings := &config.Settings{Environment: "dev", AWSRegion: "us-east-1"}
	source := &secrets.StaticSource{Creds: secrets.Credentials{Current: "k"}}
	factory := DefaultAdapterFactory(settings, source)

	pcfg := config.ProviderConfig{
		Active:       true,
		SecretID:     "gw/{env}/{region}/x",
		DefaultModel: "m",
		RateLimits:   config.RateLimits{TPM: 1000},
		Models:       map[string]config.ModelConfig{"m": {Active: true, Capabilities: []string{"chat"}}},
	}

	for _, name := range []string{"anthropic", "openai", "bedrock"} {
		a, err := factory(name, pcfg, "us-west-2")
		if err != nil {
			t.Fatalf("factory(%s) error: %v", name, err)
		}
		if a.Name() != name {
			t.Fatalf("factory(%s).Name() = %q", name, a.Name())
		}
	}

	if _, err := factory("mystery", pcfg, "us-west-2"); err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}

type recordingWriter struct {
	mu      sync.Mutex
	entries []requestlog.Entry
}

func (w *recordingWriter) Write(_ context.Context, e requestlog.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, e)
	return nil
}

func TestRequestLogHook(t *testing.T) {
	w := &recordingWriter{}
	hook := RequestLogHook(w)

	hook(context.Background(), Event{
		RequestID:   "r1",
		Provider:    "A",
		Model:       "m",
		Region:      "us-east-1",
		Disposition: DispositionSuccess,
		Attempts:    []Attempt{{Provider: "A", Model: "m", Disposition: DispositionSuccess}},
		Tokens:      providers.TokenUsage{Prompt: 3, Completion: 5, Total: 8},
		Latency:     1500 * time.Millisecond,
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(w.entries))
	}
	e := w.entries[0]
	if e.RequestID != "r1" || e.Provider != "A" || e.Disposition != "success" {
		t.Fatalf("entry = %+v", e)
	}
	if e.TotalTokens != 8 || e.LatencyMs != 1500 || e.Attempts != 1 {
		t.Fatalf("entry fields = %+v, want tokens/latency/attempts mapped", e)
	}
}
