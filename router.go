// Package gateway routes unified chat-completion requests across external
// model providers. The Router selects candidates from the versioned service
// configuration, gates them through the persisted circuit breaker, scores
// them on cost and health, and falls back between them strictly in order.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arcline-ai/model-gateway/internal/circuitbreaker"
	"github.com/arcline-ai/model-gateway/internal/config"
	"github.com/arcline-ai/model-gateway/internal/logging"
	"github.com/arcline-ai/model-gateway/internal/metrics"
	"github.com/arcline-ai/model-gateway/providers"
)

// Candidate dispositions recorded during the fallback loop. Error outcomes
// use the lowercase error code ("unknown", "auth", ...).
const (
	DispositionSuccess       = "success"
	DispositionCircuitOpen   = "circuit_open"
	DispositionCannotFulfill = "cannot_fulfill"
)

// Attempt is one candidate outcome within a routed request.
type Attempt struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Disposition string `json:"disposition"`
}

// Event summarizes a routed request for hooks (request logging, accounting).
type Event struct {
	RequestID        string
	Provider         string
	Model            string
	Region           string
	Disposition      string
	Attempts         []Attempt
	Tokens           providers.TokenUsage
	Latency          time.Duration
	EstimatedCostUSD float64
	ErrorDetail      string
}

// EventHookFunc is invoked asynchronously after every routed request.
type EventHookFunc func(ctx context.Context, ev Event)

// AdapterFactory constructs the adapter for a provider bound to a region.
// The provider config carries the secret ID template and rate limits.
type AdapterFactory func(name string, pcfg config.ProviderConfig, region string) (providers.Adapter, error)

// Router is the per-request routing engine. It is safe for concurrent use:
// requests share the config store, breaker, and memoized adapters but keep
// all per-request state local.
type Router struct {
	cfg     *config.Store
	breaker *circuitbreaker.Breaker
	factory AdapterFactory

	mu       sync.Mutex
	adapters map[string]providers.Adapter
	hooks    []EventHookFunc
}

// NewRouter wires a Router from its collaborators.
func NewRouter(cfg *config.Store, breaker *circuitbreaker.Breaker, factory AdapterFactory) *Router {
	return &Router{
		cfg:      cfg,
		breaker:  breaker,
		factory:  factory,
		adapters: make(map[string]providers.Adapter),
	}
}

// AddHook registers a hook invoked asynchronously on every routed request.
func (r *Router) AddHook(fn EventHookFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

type candidate struct {
	provider  string
	model     string
	pcfg      config.ProviderConfig
	mcfg      config.ModelConfig
	prefIndex int
	pinned    bool
	score     float64
}

// Route selects a provider for req and returns the first successful result.
// A non-nil error is always a *providers.Error.
func (r *Router) Route(ctx context.Context, req providers.Request) (*providers.Success, error) {
	start := time.Now()
	log := logging.FromContext(ctx)
	cfg := r.cfg.Get(ctx)

	candidates := r.buildCandidates(ctx, cfg, req)
	if len(candidates) == 0 {
		err := &providers.Error{
			Code:      providers.CodeTimeout,
			Status:    http.StatusServiceUnavailable,
			Retryable: true,
			Detail:    "No suitable active provider available",
		}
		r.publish(ctx, Event{
			RequestID:   req.Context.RequestID,
			Region:      req.Context.Region,
			Disposition: "no_candidates",
			Latency:     time.Since(start),
			ErrorDetail: err.Detail,
		})
		return nil, err
	}

	var attempts []Attempt
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}

		key := circuitbreaker.Key(c.provider, req.Context.Region)

		if !r.breaker.Allow(ctx, key) {
			attempts = r.record(attempts, c, DispositionCircuitOpen)
			log.Debug("candidate skipped, circuit open", "provider", c.provider, "key", key)
			continue
		}

		adapter, err := r.adapter(c, req.Context.Region)
		if err != nil {
			log.Error("adapter construction failed", "provider", c.provider, "error", err.Error())
			r.breaker.RecordFailure(ctx, key, 0)
			attempts = r.record(attempts, c, strings.ToLower(string(providers.CodeUnknown)))
			continue
		}

		if !adapter.CanFulfill(req) {
			attempts = r.record(attempts, c, DispositionCannotFulfill)
			continue
		}

		callStart := time.Now()
		success, genErr := safeGenerate(ctx, adapter, req)
		latency := time.Since(callStart)

		if genErr == nil {
			r.breaker.RecordSuccess(ctx, key, latency)
			attempts = r.record(attempts, c, DispositionSuccess)
			r.finishSuccess(ctx, req, c, success, attempts, time.Since(start))
			return success, nil
		}

		perr := asProviderError(c.provider, genErr)
		if perr.Qualifying() {
			r.breaker.RecordFailure(ctx, key, latency)
		}
		attempts = r.record(attempts, c, strings.ToLower(string(perr.Code)))
		log.Warn("candidate failed",
			"provider", c.provider, "model", c.model,
			"code", string(perr.Code), "retryable", perr.Retryable,
			"detail", perr.Detail)
	}

	err := allFailedError(attempts)
	r.publish(ctx, Event{
		RequestID:   req.Context.RequestID,
		Region:      req.Context.Region,
		Disposition: "all_failed",
		Attempts:    attempts,
		Latency:     time.Since(start),
		ErrorDetail: err.Detail,
	})
	metrics.RequestsTotal.WithLabelValues("", "", "error").Inc()
	return nil, err
}

func (r *Router) finishSuccess(ctx context.Context, req providers.Request, c candidate, success *providers.Success, attempts []Attempt, latency time.Duration) {
	cost := candidateCost(c.mcfg, req)

	metrics.RequestsTotal.WithLabelValues(c.provider, success.Meta.Model, "success").Inc()
	metrics.RequestDuration.WithLabelValues(c.provider, success.Meta.Model).Observe(latency.Seconds())
	metrics.TokensInput.WithLabelValues(c.provider, success.Meta.Model).Add(float64(success.Tokens.Prompt))
	metrics.TokensOutput.WithLabelValues(c.provider, success.Meta.Model).Add(float64(success.Tokens.Completion))
	metrics.EstimatedCostUSD.WithLabelValues(c.provider, success.Meta.Model).Add(cost)

	logging.FromContext(ctx).Info("request routed",
		"provider", c.provider,
		"model", success.Meta.Model,
		"region", req.Context.Region,
		"latency_ms", latency.Milliseconds(),
		"tokens_in", success.Tokens.Prompt,
		"tokens_out", success.Tokens.Completion,
		"attempts", len(attempts))

	r.publish(ctx, Event{
		RequestID:        req.Context.RequestID,
		Provider:         c.provider,
		Model:            success.Meta.Model,
		Region:           req.Context.Region,
		Disposition:      DispositionSuccess,
		Attempts:         attempts,
		Tokens:           success.Tokens,
		Latency:          latency,
		EstimatedCostUSD: cost,
	})
}

// buildCandidates produces the ordered candidate list: the pinned preferred
// provider first (when set and active), then every remaining active provider
// from the preference order, scored and sorted.
func (r *Router) buildCandidates(ctx context.Context, cfg *config.ServiceConfig, req providers.Request) []candidate {
	var out []candidate
	seen := make(map[string]bool)

	appendProvider := func(name string, prefIndex int, pinned bool) {
		if seen[name] {
			return
		}
		pcfg, ok := cfg.Providers[name]
		if !ok || !pcfg.Active {
			return
		}
		modelID := pcfg.DefaultModel
		if req.PreferredModel != "" {
			if m, ok := pcfg.Models[req.PreferredModel]; ok && m.Active {
				modelID = req.PreferredModel
			}
		}
		mcfg, ok := pcfg.ActiveModel(modelID)
		if !ok {
			return
		}
		seen[name] = true
		out = append(out, candidate{
			provider:  name,
			model:     modelID,
			pcfg:      pcfg,
			mcfg:      mcfg,
			prefIndex: prefIndex,
			pinned:    pinned,
		})
	}

	if req.PreferredProvider != "" {
		appendProvider(req.PreferredProvider, -1, true)
	}
	for i, name := range cfg.Routing.ProviderPreferenceOrder {
		appendProvider(name, i, false)
	}

	// Score the unpinned tail; the pinned provider keeps first position.
	for i := range out {
		if !out[i].pinned {
			out[i].score = r.scoreCandidate(ctx, out[i], req, cfg.Routing.Weights)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].pinned != out[j].pinned {
			return out[i].pinned
		}
		if out[i].score != out[j].score {
			return out[i].score < out[j].score
		}
		return out[i].prefIndex < out[j].prefIndex
	})
	return out
}

// scoreCandidate combines the four weighted signals; lower wins. Cost is the
// precise dollar estimate from configured per-token prices. Quality is
// derived from the model's capability count, latency and availability from
// the candidate's circuit record when one exists.
func (r *Router) scoreCandidate(ctx context.Context, c candidate, req providers.Request, w config.Weights) float64 {
	cost := candidateCost(c.mcfg, req)
	quality := 1.0 / (1.0 + float64(len(c.mcfg.Capabilities)))

	var latency, availability float64
	if st, ok := r.breaker.Snapshot(ctx, circuitbreaker.Key(c.provider, req.Context.Region)); ok {
		latency = st.AvgLatencyMs / 1000.0
		switch st.Status {
		case circuitbreaker.StatusHalfOpen:
			availability = 0.5
		case circuitbreaker.StatusOpen:
			availability = 1.0
		}
	}

	return w.Cost*cost + w.Quality*quality + w.Latency*latency + w.Availability*availability
}

// candidateCost estimates the request cost in USD for a model.
func candidateCost(m config.ModelConfig, req providers.Request) float64 {
	in := float64(providers.EstimateInputTokens(req))
	out := float64(providers.EstimateOutputTokens(req))
	return in/1e6*m.CostPerMillionInputTokens + out/1e6*m.CostPerMillionOutputTokens
}

// adapter returns the memoized adapter for (provider, region), constructing
// it on first use.
func (r *Router) adapter(c candidate, region string) (providers.Adapter, error) {
	key := c.provider + "#" + region
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.adapters[key]; ok {
		return a, nil
	}
	a, err := r.factory(c.provider, c.pcfg, region)
	if err != nil {
		return nil, err
	}
	r.adapters[key] = a
	return a, nil
}

func (r *Router) record(attempts []Attempt, c candidate, disposition string) []Attempt {
	metrics.CandidateDispositions.WithLabelValues(c.provider, disposition).Inc()
	return append(attempts, Attempt{Provider: c.provider, Model: c.model, Disposition: disposition})
}

func (r *Router) publish(ctx context.Context, ev Event) {
	r.mu.Lock()
	hooks := make([]EventHookFunc, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	for _, h := range hooks {
		fn := h
		go fn(ctx, ev)
	}
}

// safeGenerate shields the fallback loop from adapter panics, converting
// them into qualifying UNKNOWN errors.
func safeGenerate(ctx context.Context, adapter providers.Adapter, req providers.Request) (success *providers.Success, err error) {
	defer func() {
		if p := recover(); p != nil {
			success = nil
			err = &providers.Error{
				Code:      providers.CodeUnknown,
				Provider:  adapter.Name(),
				Detail:    fmt.Sprintf("adapter panic: %v", p),
				Status:    http.StatusInternalServerError,
				Retryable: true,
			}
		}
	}()
	return adapter.Generate(ctx, req)
}

// asProviderError normalizes any adapter error into a *providers.Error.
func asProviderError(provider string, err error) *providers.Error {
	var perr *providers.Error
	if errors.As(err, &perr) {
		return perr
	}
	return providers.Standardize(provider, 0, "", err)
}

// allFailedError builds the aggregate failure enumerating every attempted
// provider and its disposition.
func allFailedError(attempts []Attempt) *providers.Error {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, fmt.Sprintf("%s(%s)", a.Provider, a.Disposition))
	}
	return &providers.Error{
		Code:      providers.CodeTimeout,
		Status:    http.StatusServiceUnavailable,
		Retryable: true,
		Detail:    "All candidate providers failed: " + strings.Join(parts, ", "),
	}
}
