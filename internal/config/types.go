// Package config defines the versioned service configuration that drives
// routing — active providers, model catalogs, costs, routing weights, and the
// provider preference order — plus the DynamoDB-backed store that caches and
// validates it.
package config

import "time"

// ServiceConfig is the process-wide routing configuration. It is owned by
// Store and mutable only through Store.Update.
type ServiceConfig struct {
	ConfigVersion string                    `json:"configVersion" dynamodbav:"configVersion"`
	SchemaVersion string                    `json:"schemaVersion" dynamodbav:"schemaVersion"`
	UpdatedAt     time.Time                 `json:"updatedAt" dynamodbav:"updatedAt"`
	Providers     map[string]ProviderConfig `json:"providers" dynamodbav:"providers"`
	Routing       RoutingConfig             `json:"routing" dynamodbav:"routing"`
	FeatureFlags  map[string]bool           `json:"featureFlags,omitempty" dynamodbav:"featureFlags"`
}

// RoutingConfig holds the candidate ordering and scoring inputs.
type RoutingConfig struct {
	Weights                 Weights  `json:"weights" dynamodbav:"weights"`
	ProviderPreferenceOrder []string `json:"providerPreferenceOrder" dynamodbav:"providerPreferenceOrder"`
	DefaultModel            string   `json:"defaultModel,omitempty" dynamodbav:"defaultModel"`
}

// Weights are the four scoring weights. They must be nonnegative and sum to
// 1.0 within WeightTolerance.
type Weights struct {
	Cost         float64 `json:"cost" dynamodbav:"cost"`
	Quality      float64 `json:"quality" dynamodbav:"quality"`
	Latency      float64 `json:"latency" dynamodbav:"latency"`
	Availability float64 `json:"availability" dynamodbav:"availability"`
}

// WeightTolerance is the permitted deviation of the weight sum from 1.0.
const WeightTolerance = 0.001

// ProviderConfig describes one upstream vendor.
type ProviderConfig struct {
	Active       bool                   `json:"active" dynamodbav:"active"`
	SecretID     string                 `json:"secretId" dynamodbav:"secretId"`
	DefaultModel string                 `json:"defaultModel" dynamodbav:"defaultModel"`
	Models       map[string]ModelConfig `json:"models" dynamodbav:"models"`
	RateLimits   RateLimits             `json:"rateLimits" dynamodbav:"rateLimits"`
	Retry        *RetryConfig           `json:"retryConfig,omitempty" dynamodbav:"retryConfig"`
	APIVersion   string                 `json:"apiVersion,omitempty" dynamodbav:"apiVersion"`
}

// RateLimits holds the provider's requests-per-minute and tokens-per-minute
// limits. TPM sizes the adapter's local token bucket; RPM is carried in the
// config but not enforced by the gateway.
type RateLimits struct {
	RPM int `json:"rpm" dynamodbav:"rpm"`
	TPM int `json:"tpm" dynamodbav:"tpm"`
}

// RetryConfig holds vendor-level retry settings. It is carried in the config
// document but not read by the gateway: adapters make no vendor-level
// retries, and failures move on to the next routing candidate.
type RetryConfig struct {
	MaxAttempts int `json:"maxAttempts" dynamodbav:"maxAttempts"`
	BaseDelayMs int `json:"baseDelayMs" dynamodbav:"baseDelayMs"`
}

// ModelConfig describes one model a provider offers. The three *Support
// booleans are pointers so the validator can reject configs that omit them.
type ModelConfig struct {
	Name                       string   `json:"name" dynamodbav:"name"`
	Description                string   `json:"description,omitempty" dynamodbav:"description"`
	CostPerMillionInputTokens  float64  `json:"costPerMillionInputTokens" dynamodbav:"costPerMillionInputTokens"`
	CostPerMillionOutputTokens float64  `json:"costPerMillionOutputTokens" dynamodbav:"costPerMillionOutputTokens"`
	ContextWindow              int      `json:"contextWindow" dynamodbav:"contextWindow"`
	MaxOutputTokens            *int     `json:"maxOutputTokens,omitempty" dynamodbav:"maxOutputTokens"`
	Capabilities               []string `json:"capabilities" dynamodbav:"capabilities"`
	StreamingSupport           *bool    `json:"streamingSupport" dynamodbav:"streamingSupport"`
	FunctionCallingSupport     *bool    `json:"functionCallingSupport" dynamodbav:"functionCallingSupport"`
	VisionSupport              *bool    `json:"visionSupport" dynamodbav:"visionSupport"`
	Active                     bool     `json:"active" dynamodbav:"active"`
	SystemPrompt               string   `json:"systemPrompt,omitempty" dynamodbav:"systemPrompt"`
	RolloutPercentage          *float64 `json:"rolloutPercentage,omitempty" dynamodbav:"rolloutPercentage"`
}

// SupportsFunctionCalling reports the function-calling capability bit,
// treating an omitted value as false.
func (m ModelConfig) SupportsFunctionCalling() bool {
	return m.FunctionCallingSupport != nil && *m.FunctionCallingSupport
}

// HasCapability reports whether the model advertises the named capability.
func (m ModelConfig) HasCapability(cap string) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// ActiveModel resolves a model by ID and reports whether it exists and is
// active.
func (p ProviderConfig) ActiveModel(id string) (ModelConfig, bool) {
	m, ok := p.Models[id]
	if !ok || !m.Active {
		return ModelConfig{}, false
	}
	return m, true
}
