package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings are the process-level inputs: where the KV tables live, which
// config row is active, and which deployment environment the process serves.
// They are distinct from ServiceConfig, which is the routed-over document
// those tables hold.
type Settings struct {
	// Environment substitutes {env} in secret ID templates (e.g. "dev",
	// "prod").
	Environment string `yaml:"environment"`
	// AWSRegion is used for the AWS clients. Secret ID templates get {region}
	// from the request's routing region, not from this value.
	AWSRegion string `yaml:"awsRegion"`
	// DefaultRegion is the routing region assumed for requests that do not
	// carry one. Defaults to AWSRegion.
	DefaultRegion string `yaml:"defaultRegion"`

	ConfigTable    string `yaml:"configTable"`
	HealthTable    string `yaml:"healthTable"`
	ActiveConfigID string `yaml:"activeConfigId"`

	CacheTTLSeconds int `yaml:"cacheTtlSeconds"`

	Breaker BreakerSettings `yaml:"breaker"`

	// RequestLog selects the audit log backend: "sqlite" with a file DSN,
	// "postgres" with a connection string, or empty to disable.
	RequestLogDriver string `yaml:"requestLogDriver"`
	RequestLogDSN    string `yaml:"requestLogDsn"`

	ListenAddr string `yaml:"listenAddr"`
}

// BreakerSettings tunes the circuit breaker; zero values take the breaker's
// defaults.
type BreakerSettings struct {
	FailureThreshold         int `yaml:"failureThreshold"`
	CooldownSeconds          int `yaml:"cooldownSeconds"`
	HalfOpenSuccessThreshold int `yaml:"halfOpenSuccessThreshold"`
	RecordTTLSeconds         int `yaml:"recordTtlSeconds"`
}

// CacheTTL returns the config cache TTL as a duration.
func (s Settings) CacheTTL() time.Duration {
	if s.CacheTTLSeconds <= 0 {
		return DefaultCacheTTL
	}
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// LoadSettings reads a YAML settings file (optional; pass "" to start from
// defaults) and applies environment overrides.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{
		Environment:    "dev",
		AWSRegion:      "us-east-1",
		ConfigTable:    "ProviderConfig",
		HealthTable:    "ProviderHealth",
		ActiveConfigID: "active",
		ListenAddr:     ":8080",
	}

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec
		if err != nil {
			return nil, fmt.Errorf("reading settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parsing settings file: %w", err)
		}
	}

	applyEnv(s)

	if s.DefaultRegion == "" {
		s.DefaultRegion = s.AWSRegion
	}
	return s, nil
}

func applyEnv(s *Settings) {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setStr(&s.Environment, "GATEWAY_ENV")
	setStr(&s.AWSRegion, "AWS_REGION")
	setStr(&s.DefaultRegion, "GATEWAY_DEFAULT_REGION")
	setStr(&s.ConfigTable, "GATEWAY_CONFIG_TABLE")
	setStr(&s.HealthTable, "GATEWAY_HEALTH_TABLE")
	setStr(&s.ActiveConfigID, "GATEWAY_ACTIVE_CONFIG_ID")
	setInt(&s.CacheTTLSeconds, "GATEWAY_CACHE_TTL_SECONDS")
	setStr(&s.RequestLogDriver, "GATEWAY_REQUEST_LOG_DRIVER")
	setStr(&s.RequestLogDSN, "GATEWAY_REQUEST_LOG_DSN")
	setStr(&s.ListenAddr, "GATEWAY_LISTEN_ADDR")
}
