package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON string

var configSchema = jsonschema.MustCompileString("serviceconfig.json", schemaJSON)

// InvalidError reports every validation failure found in a ServiceConfig.
type InvalidError struct {
	Messages []string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid service config: %s", strings.Join(e.Messages, "; "))
}

// Validate checks cfg structurally against the embedded JSON Schema and then
// applies the cross-field rules the schema cannot express. All failures are
// collected into a single InvalidError; a nil return means the config is
// usable for routing.
func Validate(cfg *ServiceConfig) error {
	var msgs []string

	if err := validateShape(cfg); err != nil {
		msgs = append(msgs, flattenSchemaError(err)...)
	}
	msgs = append(msgs, validateRules(cfg)...)

	if len(msgs) > 0 {
		return &InvalidError{Messages: msgs}
	}
	return nil
}

// validateShape round-trips the config through JSON and runs the schema.
func validateShape(cfg *ServiceConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return configSchema.Validate(doc)
}

func flattenSchemaError(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return msgs
}

// validateRules applies the cross-field invariants.
func validateRules(cfg *ServiceConfig) []string {
	var msgs []string

	w := cfg.Routing.Weights
	sum := w.Cost + w.Quality + w.Latency + w.Availability
	if math.Abs(sum-1.0) > WeightTolerance {
		msgs = append(msgs, fmt.Sprintf("routing.weights must sum to 1.0 (got %.4f)", sum))
	}
	for _, v := range []struct {
		name  string
		value float64
	}{{"cost", w.Cost}, {"quality", w.Quality}, {"latency", w.Latency}, {"availability", w.Availability}} {
		if v.value < 0 {
			msgs = append(msgs, fmt.Sprintf("routing.weights.%s must be nonnegative", v.name))
		}
	}

	if len(cfg.Routing.ProviderPreferenceOrder) == 0 {
		msgs = append(msgs, "routing.providerPreferenceOrder must not be empty")
	}
	for _, name := range cfg.Routing.ProviderPreferenceOrder {
		if _, ok := cfg.Providers[name]; !ok {
			msgs = append(msgs, fmt.Sprintf("routing.providerPreferenceOrder names unknown provider %q", name))
		}
	}

	for name, p := range cfg.Providers {
		msgs = append(msgs, validateProvider(name, p)...)
	}

	return msgs
}

func validateProvider(name string, p ProviderConfig) []string {
	var msgs []string

	if !strings.Contains(p.SecretID, "{env}") || !strings.Contains(p.SecretID, "{region}") {
		msgs = append(msgs, fmt.Sprintf("providers.%s.secretId must contain {env} and {region} placeholders", name))
	}
	if _, ok := p.Models[p.DefaultModel]; !ok {
		msgs = append(msgs, fmt.Sprintf("providers.%s.defaultModel %q is not in models", name, p.DefaultModel))
	}
	if p.RateLimits.RPM < 0 || p.RateLimits.TPM < 0 {
		msgs = append(msgs, fmt.Sprintf("providers.%s.rateLimits must be nonnegative", name))
	}

	for id, m := range p.Models {
		prefix := fmt.Sprintf("providers.%s.models.%s", name, id)
		if m.CostPerMillionInputTokens < 0 || m.CostPerMillionOutputTokens < 0 {
			msgs = append(msgs, prefix+": token costs must be nonnegative")
		}
		if m.ContextWindow <= 0 {
			msgs = append(msgs, prefix+": contextWindow must be positive")
		}
		if len(m.Capabilities) == 0 {
			msgs = append(msgs, prefix+": capabilities must not be empty")
		}
		if m.StreamingSupport == nil || m.FunctionCallingSupport == nil || m.VisionSupport == nil {
			msgs = append(msgs, prefix+": streamingSupport, functionCallingSupport, and visionSupport must all be set explicitly")
		}
		if m.RolloutPercentage != nil {
			if *m.RolloutPercentage < 0 || *m.RolloutPercentage > 100 {
				msgs = append(msgs, prefix+": rolloutPercentage must be in [0,100]")
			}
			if *m.RolloutPercentage > 0 && !m.Active {
				msgs = append(msgs, prefix+": rolloutPercentage > 0 requires active = true")
			}
		}
	}

	return msgs
}
