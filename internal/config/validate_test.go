package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *ServiceConfig {
	return &ServiceConfig{
		ConfigVersion: "1.2.3",
		SchemaVersion: "1.0.0",
		UpdatedAt:     time.Now().UTC(),
		Providers: map[string]ProviderConfig{
			"anthropic": {
				Active:       true,
				SecretID:     "gw/{env}/{region}/anthropic",
				DefaultModel: "m1",
				RateLimits:   RateLimits{RPM: 60, TPM: 60000},
				Models: map[string]ModelConfig{
					"m1": {
						Name:                       "m1",
						CostPerMillionInputTokens:  2,
						CostPerMillionOutputTokens: 3,
						ContextWindow:              100000,
						Capabilities:               []string{"chat"},
						StreamingSupport:           boolp(true),
						FunctionCallingSupport:     boolp(true),
						VisionSupport:              boolp(false),
						Active:                     true,
					},
				},
			},
		},
		Routing: RoutingConfig{
			Weights:                 Weights{Cost: 0.4, Quality: 0.3, Latency: 0.2, Availability: 0.1},
			ProviderPreferenceOrder: []string{"anthropic"},
		},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateBootstrapDefault(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("bootstrap config must validate, got %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *ServiceConfig)
		wantMsg string
	}{
		{
			name:    "weights off by too much",
			mutate:  func(c *ServiceConfig) { c.Routing.Weights.Cost = 0.6 },
			wantMsg: "sum to 1.0",
		},
		{
			name:    "empty preference order",
			mutate:  func(c *ServiceConfig) { c.Routing.ProviderPreferenceOrder = nil },
			wantMsg: "providerPreferenceOrder",
		},
		{
			name: "preference order names unknown provider",
			mutate: func(c *ServiceConfig) {
				c.Routing.ProviderPreferenceOrder = []string{"anthropic", "ghost"}
			},
			wantMsg: "unknown provider \"ghost\"",
		},
		{
			name: "secret id missing placeholders",
			mutate: func(c *ServiceConfig) {
				p := c.Providers["anthropic"]
				p.SecretID = "gw/prod/us-east-1/anthropic"
				c.Providers["anthropic"] = p
			},
			wantMsg: "{env} and {region}",
		},
		{
			name: "default model not in models",
			mutate: func(c *ServiceConfig) {
				p := c.Providers["anthropic"]
				p.DefaultModel = "missing"
				c.Providers["anthropic"] = p
			},
			wantMsg: "defaultModel",
		},
		{
			name: "zero context window",
			mutate: func(c *ServiceConfig) {
				m := c.Providers["anthropic"].Models["m1"]
				m.ContextWindow = 0
				c.Providers["anthropic"].Models["m1"] = m
			},
			wantMsg: "contextWindow",
		},
		{
			name: "empty capabilities",
			mutate: func(c *ServiceConfig) {
				m := c.Providers["anthropic"].Models["m1"]
				m.Capabilities = nil
				c.Providers["anthropic"].Models["m1"] = m
			},
			wantMsg: "capabilities",
		},
		{
			name: "omitted support boolean",
			mutate: func(c *ServiceConfig) {
				m := c.Providers["anthropic"].Models["m1"]
				m.VisionSupport = nil
				c.Providers["anthropic"].Models["m1"] = m
			},
			wantMsg: "visionSupport",
		},
		{
			name: "rollout on inactive model",
			mutate: func(c *ServiceConfig) {
				m := c.Providers["anthropic"].Models["m1"]
				pct := 25.0
				m.RolloutPercentage = &pct
				m.Active = false
				c.Providers["anthropic"].Models["m1"] = m
			},
			wantMsg: "requires active",
		},
		{
			name: "rollout out of range",
			mutate: func(c *ServiceConfig) {
				m := c.Providers["anthropic"].Models["m1"]
				pct := 150.0
				m.RolloutPercentage = &pct
				c.Providers["anthropic"].Models["m1"] = m
			},
			wantMsg: "[0,100]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("Validate() = %q, want message containing %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

// The routing-level defaultModel is carried for config parity but is not
// cross-validated against any provider's model catalog (the routing
// algorithm resolves models per provider). This pins that behavior so a
// future validator change doesn't silently start rejecting configs.
func TestValidateIgnoresRoutingDefaultModel(t *testing.T) {
	cfg := validConfig()
	cfg.Routing.DefaultModel = "not-in-any-catalog"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() = %v, want nil for an unresolved routing.defaultModel", err)
	}
}

func TestValidateCollectsEveryMessage(t *testing.T) {
	cfg := validConfig()
	cfg.Routing.Weights.Cost = 0.9
	p := cfg.Providers["anthropic"]
	p.SecretID = "no-placeholders"
	p.DefaultModel = "missing"
	cfg.Providers["anthropic"] = p

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	ie, ok := err.(*InvalidError)
	if !ok {
		t.Fatalf("Validate() returned %T, want *InvalidError", err)
	}
	if len(ie.Messages) < 3 {
		t.Fatalf("expected at least 3 messages, got %d: %v", len(ie.Messages), ie.Messages)
	}
}
