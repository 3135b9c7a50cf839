package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arcline-ai/model-gateway/internal/kv"
	"github.com/arcline-ai/model-gateway/internal/logging"
	"github.com/arcline-ai/model-gateway/internal/metrics"
)

// DefaultCacheTTL is how long a fetched config is served before the store
// re-reads the KV record.
const DefaultCacheTTL = 60 * time.Second

// record is the KV row: the ServiceConfig plus row metadata.
type record struct {
	ConfigID  string        `json:"configId" dynamodbav:"configId"`
	UpdatedAt time.Time     `json:"updatedAt" dynamodbav:"updatedAt"`
	Config    ServiceConfig `json:"config" dynamodbav:"config"`
}

// Store loads, caches, validates, and updates the active ServiceConfig.
//
// Get never fails: on any read or validation problem it serves the previous
// cached value, or the bootstrap default if nothing was ever loaded. The
// returned config must be treated as read-only; the cache is replaced
// wholesale, never mutated in place.
type Store struct {
	kv       kv.Store
	table    string
	configID string
	ttl      time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	cached  *ServiceConfig
	staleAt time.Time
}

// NewStore creates a Store reading the row configID from table. A ttl of
// zero or less falls back to DefaultCacheTTL.
func NewStore(store kv.Store, table, configID string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Store{
		kv:       store,
		table:    table,
		configID: configID,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock overrides the store's time source. Test hook.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Get returns the current config. Fresh cache hits are lock-cheap; a stale
// cache triggers a KV read that degrades to the retained value on any
// failure.
func (s *Store) Get(ctx context.Context) *ServiceConfig {
	s.mu.RLock()
	if s.cached != nil && s.now().Before(s.staleAt) {
		cfg := s.cached
		s.mu.RUnlock()
		return cfg
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have refreshed while we waited for the lock.
	if s.cached != nil && s.now().Before(s.staleAt) {
		return s.cached
	}

	log := logging.FromContext(ctx)
	if fresh := s.refresh(ctx, log); fresh != nil {
		metrics.ConfigRefreshes.WithLabelValues("ok").Inc()
		s.cached = fresh
	} else {
		metrics.ConfigRefreshes.WithLabelValues("degraded").Inc()
		if s.cached == nil {
			log.Warn("config store has no usable record, using bootstrap default",
				"table", s.table, "config_id", s.configID)
			s.cached = Default()
		}
	}
	// The deadline advances on failure too, so a broken KV store is retried
	// once per TTL window instead of on every request.
	s.staleAt = s.now().Add(s.ttl)
	return s.cached
}

// refresh reads and validates the KV record, returning nil on any problem.
func (s *Store) refresh(ctx context.Context, log *slog.Logger) *ServiceConfig {
	var rec record
	found, err := s.kv.Get(ctx, s.table, s.configID, &rec)
	if err != nil {
		log.Warn("config read failed, retaining previous config",
			"table", s.table, "config_id", s.configID, "error", err.Error())
		return nil
	}
	if !found {
		log.Warn("config record missing, retaining previous config",
			"table", s.table, "config_id", s.configID)
		return nil
	}
	cfg := rec.Config
	if err := Validate(&cfg); err != nil {
		log.Warn("stored config failed validation, retaining previous config",
			"config_id", s.configID, "error", err.Error())
		return nil
	}
	return &cfg
}

// Update validates cfg, stamps UpdatedAt, writes the KV record, and then
// atomically replaces the cache. Validation failures return an InvalidError
// listing every problem; KV write failures are propagated and leave the
// cache untouched.
func (s *Store) Update(ctx context.Context, cfg *ServiceConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	stamped := *cfg
	stamped.UpdatedAt = s.now().UTC()

	rec := record{ConfigID: s.configID, UpdatedAt: stamped.UpdatedAt, Config: stamped}
	if err := s.kv.Put(ctx, s.table, s.configID, rec); err != nil {
		return fmt.Errorf("config: write %q: %w", s.configID, err)
	}

	s.mu.Lock()
	s.cached = &stamped
	s.staleAt = s.now().Add(s.ttl)
	s.mu.Unlock()

	logging.FromContext(ctx).Info("config updated",
		"config_id", s.configID, "config_version", stamped.ConfigVersion)
	return nil
}
