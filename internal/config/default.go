package config

import "time"

func boolp(b bool) *bool { return &b }

// Default returns the compiled-in bootstrap configuration. Store.Get serves
// it when no valid config has been loaded yet: the KV record is missing,
// unreadable, or fails validation. Once a valid config is cached, later
// refresh failures keep serving that cached config instead.
func Default() *ServiceConfig {
	return &ServiceConfig{
		ConfigVersion: "bootstrap-1",
		SchemaVersion: "1.0.0",
		UpdatedAt:     time.Unix(0, 0).UTC(),
		Providers: map[string]ProviderConfig{
			"anthropic": {
				Active:       true,
				SecretID:     "model-gateway/{env}/{region}/anthropic",
				DefaultModel: "claude-3-5-sonnet-20241022",
				RateLimits:   RateLimits{RPM: 300, TPM: 200000},
				APIVersion:   "2023-06-01",
				Models: map[string]ModelConfig{
					"claude-3-5-sonnet-20241022": {
						Name:                       "Claude 3.5 Sonnet",
						CostPerMillionInputTokens:  3.00,
						CostPerMillionOutputTokens: 15.00,
						ContextWindow:              200000,
						Capabilities:               []string{"chat", "code", "vision"},
						StreamingSupport:           boolp(true),
						FunctionCallingSupport:     boolp(true),
						VisionSupport:              boolp(true),
						Active:                     true,
					},
					"claude-3-haiku-20240307": {
						Name:                       "Claude 3 Haiku",
						CostPerMillionInputTokens:  0.25,
						CostPerMillionOutputTokens: 1.25,
						ContextWindow:              200000,
						Capabilities:               []string{"chat", "code"},
						StreamingSupport:           boolp(true),
						FunctionCallingSupport:     boolp(true),
						VisionSupport:              boolp(false),
						Active:                     true,
					},
				},
			},
			"openai": {
				Active:       true,
				SecretID:     "model-gateway/{env}/{region}/openai",
				DefaultModel: "gpt-4o-mini",
				RateLimits:   RateLimits{RPM: 500, TPM: 300000},
				Models: map[string]ModelConfig{
					"gpt-4o": {
						Name:                       "GPT-4o",
						CostPerMillionInputTokens:  2.50,
						CostPerMillionOutputTokens: 10.00,
						ContextWindow:              128000,
						Capabilities:               []string{"chat", "code", "vision"},
						StreamingSupport:           boolp(true),
						FunctionCallingSupport:     boolp(true),
						VisionSupport:              boolp(true),
						Active:                     true,
					},
					"gpt-4o-mini": {
						Name:                       "GPT-4o mini",
						CostPerMillionInputTokens:  0.15,
						CostPerMillionOutputTokens: 0.60,
						ContextWindow:              128000,
						Capabilities:               []string{"chat", "code"},
						StreamingSupport:           boolp(true),
						FunctionCallingSupport:     boolp(true),
						VisionSupport:              boolp(false),
						Active:                     true,
					},
				},
			},
			"bedrock": {
				Active:       true,
				SecretID:     "model-gateway/{env}/{region}/bedrock",
				DefaultModel: "anthropic.claude-3-haiku-20240307-v1:0",
				RateLimits:   RateLimits{RPM: 200, TPM: 100000},
				Models: map[string]ModelConfig{
					"anthropic.claude-3-haiku-20240307-v1:0": {
						Name:                       "Claude 3 Haiku (Bedrock)",
						CostPerMillionInputTokens:  0.25,
						CostPerMillionOutputTokens: 1.25,
						ContextWindow:              200000,
						Capabilities:               []string{"chat", "code"},
						StreamingSupport:           boolp(false),
						FunctionCallingSupport:     boolp(false),
						VisionSupport:              boolp(false),
						Active:                     true,
					},
				},
			},
		},
		Routing: RoutingConfig{
			Weights: Weights{Cost: 0.4, Quality: 0.3, Latency: 0.2, Availability: 0.1},
			ProviderPreferenceOrder: []string{"anthropic", "openai", "bedrock"},
		},
		FeatureFlags: map[string]bool{},
	}
}
