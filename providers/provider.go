// Package providers defines the adapter contract the router dispatches to,
// the unified request/result types, and the shared error taxonomy, together
// with the concrete vendor adapters (anthropic, openai, bedrock).
//
// An Adapter instance is bound to one (provider, region) pair. It owns a
// local token bucket sized from the provider's TPM limit and lazily loads
// its vendor credentials from the secret store on first use.
package providers

import (
	"context"
	"encoding/json"
	"time"
)

// Message role constants shared across vendors.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Adapter is the contract exposed to the router.
type Adapter interface {
	// Name returns the configured provider name (e.g. "anthropic").
	Name() string
	// CanFulfill reports whether the adapter's chosen model for req exists,
	// is active, and advertises every required capability (and function
	// calling, when tools are present).
	CanFulfill(req Request) bool
	// Generate performs admission control, credential loading, protocol
	// translation, the vendor call, and response normalization. A non-nil
	// error is always a *Error.
	Generate(ctx context.Context, req Request) (*Success, error)
}

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a function the model may call. The schema is opaque to the
// gateway; only the functionCallingSupport capability bit is consulted.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// RequestContext carries caller metadata through routing.
type RequestContext struct {
	Region    string    `json:"region"`
	RequestID string    `json:"requestId,omitempty"`
	History   []Message `json:"history,omitempty"`
}

// Request is the unified chat-completion request accepted by the router.
type Request struct {
	Prompt                string         `json:"prompt"`
	PreferredProvider     string         `json:"preferredProvider,omitempty"`
	PreferredModel        string         `json:"preferredModel,omitempty"`
	MaxTokens             *int           `json:"maxTokens,omitempty"`
	Temperature           *float64       `json:"temperature,omitempty"`
	RequiredCapabilities  []string       `json:"requiredCapabilities,omitempty"`
	Tools                 []Tool         `json:"tools,omitempty"`
	Streaming             bool           `json:"streaming,omitempty"`
	SystemPrompt          string         `json:"systemPrompt,omitempty"`
	EstimatedInputTokens  *int           `json:"estimatedInputTokens,omitempty"`
	EstimatedOutputTokens *int           `json:"estimatedOutputTokens,omitempty"`
	Context               RequestContext `json:"context"`
}

// TokenUsage carries token consumption for a completed request.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Meta describes which provider/model/region served a request.
type Meta struct {
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Region    string        `json:"region"`
	Latency   time.Duration `json:"latency"`
	Timestamp time.Time     `json:"timestamp"`
	Features  []string      `json:"features,omitempty"`
}

// Success is the normalized result of a vendor call.
type Success struct {
	Text   string     `json:"text"`
	Tokens TokenUsage `json:"tokens"`
	Meta   Meta       `json:"meta"`
}

// DefaultMaxTokens is used for the vendor call and bucket accounting when
// the request does not set MaxTokens.
const DefaultMaxTokens = 1024

// ResolvedMaxTokens returns the request's MaxTokens or the default.
func (r Request) ResolvedMaxTokens() int {
	if r.MaxTokens != nil {
		return *r.MaxTokens
	}
	return DefaultMaxTokens
}

// EstimateChars approximates a token count from a character count using the
// four-characters-per-token heuristic, rounding up.
func EstimateChars(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

// EstimateBucketTokens is the bucket-accounting estimate:
// ceil(promptLen/4) + ceil(historyLen/4) + (maxTokens ?? 1024).
func EstimateBucketTokens(r Request) int {
	historyLen := 0
	for _, m := range r.Context.History {
		historyLen += len(m.Content)
	}
	return EstimateChars(len(r.Prompt)) + EstimateChars(historyLen) + r.ResolvedMaxTokens()
}

// EstimateInputTokens is the routing-cost input estimate: the caller's
// estimate when present, else ceil(promptLen/4).
func EstimateInputTokens(r Request) int {
	if r.EstimatedInputTokens != nil {
		return *r.EstimatedInputTokens
	}
	return EstimateChars(len(r.Prompt))
}

// EstimateOutputTokens is the routing-cost output estimate: the caller's
// estimate, else MaxTokens, else 256.
func EstimateOutputTokens(r Request) int {
	if r.EstimatedOutputTokens != nil {
		return *r.EstimatedOutputTokens
	}
	if r.MaxTokens != nil {
		return *r.MaxTokens
	}
	return 256
}
