package providers

import (
	"context"
	"sync"

	"github.com/arcline-ai/model-gateway/internal/config"
	"github.com/arcline-ai/model-gateway/internal/metrics"
	"github.com/arcline-ai/model-gateway/internal/ratelimit"
	"github.com/arcline-ai/model-gateway/internal/secrets"
)

// Base provides the shared adapter core: model selection against the
// provider config, capability checks, token-bucket admission, and
// single-flight credential loading. Concrete adapters embed it and add
// protocol translation.
type Base struct {
	name     string
	region   string
	cfg      config.ProviderConfig
	secretID string // already expanded ({env}/{region} substituted)
	source   secrets.Source
	bucket   *ratelimit.TokenBucket

	mu       sync.Mutex
	creds    *secrets.Credentials
	inflight chan struct{}
	fetchErr error
}

// NewBase constructs the shared core for one (provider, region) pair. The
// token bucket is sized from the provider's TPM limit.
func NewBase(name, region string, cfg config.ProviderConfig, secretID string, source secrets.Source) Base {
	return Base{
		name:     name,
		region:   region,
		cfg:      cfg,
		secretID: secretID,
		source:   source,
		bucket:   ratelimit.NewTokenBucket(cfg.RateLimits.TPM),
	}
}

// Name returns the provider name.
func (b *Base) Name() string { return b.name }

// Region returns the region this adapter instance is bound to.
func (b *Base) Region() string { return b.region }

// Bucket exposes the adapter's token bucket. Test hook.
func (b *Base) Bucket() *ratelimit.TokenBucket { return b.bucket }

// Preload installs credentials directly, bypassing the secret store. Used
// when a vendor client is injected (tests, embedding).
func (b *Base) Preload(creds secrets.Credentials) {
	b.mu.Lock()
	b.creds = &creds
	b.mu.Unlock()
}

// injectedCredentials marks an adapter with a pre-supplied vendor client as
// loaded; the placeholder value is never sent anywhere.
func injectedCredentials() secrets.Credentials {
	return secrets.Credentials{Current: "injected"}
}

// chooseModel resolves the model for req: the preferred model when it exists
// in this provider's catalog and is active, else the provider default. The
// second return is false when the resolved model is missing or inactive.
func (b *Base) chooseModel(req Request) (string, config.ModelConfig, bool) {
	id := b.cfg.DefaultModel
	if req.PreferredModel != "" {
		if m, ok := b.cfg.Models[req.PreferredModel]; ok && m.Active {
			id = req.PreferredModel
		}
	}
	m, ok := b.cfg.ActiveModel(id)
	return id, m, ok
}

// CanFulfill reports whether the resolved model is active, advertises every
// required capability, and supports function calling when tools are present.
func (b *Base) CanFulfill(req Request) bool {
	_, m, ok := b.chooseModel(req)
	if !ok {
		return false
	}
	for _, cap := range req.RequiredCapabilities {
		if !m.HasCapability(cap) {
			return false
		}
	}
	if len(req.Tools) > 0 && !m.SupportsFunctionCalling() {
		return false
	}
	return true
}

// admit runs local token-bucket admission for req.
func (b *Base) admit(req Request) *Error {
	if b.bucket.Consume(EstimateBucketTokens(req)) {
		return nil
	}
	metrics.BucketRejections.WithLabelValues(b.name).Inc()
	return RateLimitError(b.name)
}

// credentials returns the adapter's credentials, fetching them from the
// secret store on first use. At most one fetch is in flight per instance;
// concurrent callers await it and share its outcome. The latch is cleared on
// both success and failure so a failed load is retried on the next request.
func (b *Base) credentials(ctx context.Context) (secrets.Credentials, error) {
	b.mu.Lock()
	if b.creds != nil {
		c := *b.creds
		b.mu.Unlock()
		return c, nil
	}

	if b.inflight == nil {
		done := make(chan struct{})
		b.inflight = done
		b.mu.Unlock()

		creds, err := b.source.Fetch(ctx, b.secretID)

		b.mu.Lock()
		if err == nil {
			b.creds = &creds
		}
		b.fetchErr = err
		b.inflight = nil
		b.mu.Unlock()
		close(done)
		return creds, err
	}

	done := b.inflight
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		return secrets.Credentials{}, ctx.Err()
	case <-done:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.creds != nil {
		return *b.creds, nil
	}
	return secrets.Credentials{}, b.fetchErr
}

// conversation translates the request into vendor messages.
//
// When inlineSystem is false (vendors with a distinct top-level system
// parameter), system entries are filtered out of the messages and the
// resolved system prompt is returned separately: the request's systemPrompt
// wins, then the model's configured systemPrompt, then the earliest system
// entry found in history. When inlineSystem is true, history system entries
// pass through in place and the resolved prompt (request, then model) is
// prepended as a system message.
//
// The current prompt is always appended as a final user message.
func conversation(req Request, model config.ModelConfig, inlineSystem bool) (string, []Message) {
	resolved := req.SystemPrompt
	if resolved == "" {
		resolved = model.SystemPrompt
	}

	if inlineSystem {
		msgs := make([]Message, 0, len(req.Context.History)+2)
		if resolved != "" {
			msgs = append(msgs, Message{Role: RoleSystem, Content: resolved})
		}
		msgs = append(msgs, req.Context.History...)
		msgs = append(msgs, Message{Role: RoleUser, Content: req.Prompt})
		return "", msgs
	}

	system := resolved
	msgs := make([]Message, 0, len(req.Context.History)+1)
	for _, m := range req.Context.History {
		if m.Role == RoleSystem {
			if system == "" {
				system = m.Content
			}
			continue
		}
		msgs = append(msgs, m)
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: req.Prompt})
	return system, msgs
}
