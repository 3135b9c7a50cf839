package gateway

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/arcline-ai/model-gateway/internal/circuitbreaker"
	"github.com/arcline-ai/model-gateway/internal/config"
	"github.com/arcline-ai/model-gateway/internal/kv"
	"github.com/arcline-ai/model-gateway/internal/logging"
	"github.com/arcline-ai/model-gateway/internal/requestlog"
	"github.com/arcline-ai/model-gateway/internal/secrets"
	"github.com/arcline-ai/model-gateway/providers"
)

// Gateway bundles the composed routing core: the router plus the stores it
// was built from, so operational surfaces (CLI, admin endpoints) can reach
// them.
type Gateway struct {
	Router  *Router
	Config  *config.Store
	Breaker *circuitbreaker.Breaker
}

// New composes a production Gateway from process settings: AWS clients, the
// DynamoDB-backed config store and circuit breaker, the Secrets Manager
// source, and the default adapter factory.
func New(ctx context.Context, settings *config.Settings) (*Gateway, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(settings.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	store := kv.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), map[string]string{
		settings.ConfigTable: "configId",
		settings.HealthTable: "providerRegion",
	})
	source := secrets.NewManagerSource(secretsmanager.NewFromConfig(awsCfg))

	cfgStore := config.NewStore(store, settings.ConfigTable, settings.ActiveConfigID, settings.CacheTTL())
	breaker := circuitbreaker.New(store, settings.HealthTable, circuitbreaker.Options{
		FailureThreshold:         settings.Breaker.FailureThreshold,
		Cooldown:                 time.Duration(settings.Breaker.CooldownSeconds) * time.Second,
		HalfOpenSuccessThreshold: settings.Breaker.HalfOpenSuccessThreshold,
		RecordTTL:                time.Duration(settings.Breaker.RecordTTLSeconds) * time.Second,
	})

	router := NewRouter(cfgStore, breaker, DefaultAdapterFactory(settings, source))
	return &Gateway{Router: router, Config: cfgStore, Breaker: breaker}, nil
}

// DefaultAdapterFactory builds the production adapters. The secret ID
// template is expanded with the deployment environment and the request
// region before any lookup.
func DefaultAdapterFactory(settings *config.Settings, source secrets.Source) AdapterFactory {
	return func(name string, pcfg config.ProviderConfig, region string) (providers.Adapter, error) {
		secretID := secrets.Expand(pcfg.SecretID, settings.Environment, region)
		base := providers.NewBase(name, region, pcfg, secretID, source)
		switch name {
		case "anthropic":
			return providers.NewAnthropic(base, ""), nil
		case "openai":
			return providers.NewOpenAI(base, ""), nil
		case "bedrock":
			return providers.NewBedrock(base, settings.AWSRegion), nil
		}
		return nil, fmt.Errorf("no adapter registered for provider %q", name)
	}
}

// RequestLogHook returns an EventHookFunc that persists routing outcomes to
// the given writer. Write failures are logged and dropped; the audit log
// never affects request handling.
func RequestLogHook(w requestlog.Writer) EventHookFunc {
	return func(ctx context.Context, ev Event) {
		entry := requestlog.Entry{
			RequestID:        ev.RequestID,
			Provider:         ev.Provider,
			Model:            ev.Model,
			Region:           ev.Region,
			Disposition:      ev.Disposition,
			Attempts:         len(ev.Attempts),
			PromptTokens:     ev.Tokens.Prompt,
			CompletionTokens: ev.Tokens.Completion,
			TotalTokens:      ev.Tokens.Total,
			LatencyMs:        ev.Latency.Milliseconds(),
			ErrorDetail:      ev.ErrorDetail,
		}
		if err := w.Write(ctx, entry); err != nil {
			logging.FromContext(ctx).Warn("request log write failed", "error", err.Error())
		}
	}
}
