// Package circuitbreaker implements the three-state circuit breaker that
// gates provider calls per (provider, region). State is persisted in the KV
// store so that stateless worker instances share one view of provider health;
// updates are last-writer-wins, which the state machine tolerates because
// transitions are monotonic within a decision window.
//
// State transitions:
//
//	CLOSED   → OPEN       when consecutive qualifying failures ≥ FailureThreshold
//	OPEN     → HALF_OPEN  on the first Allow after Cooldown elapses
//	HALF_OPEN → CLOSED    when half-open successes ≥ HalfOpenSuccessThreshold
//	HALF_OPEN → OPEN      on any failure
package circuitbreaker

import (
	"context"
	"time"

	"github.com/arcline-ai/model-gateway/internal/kv"
	"github.com/arcline-ai/model-gateway/internal/logging"
	"github.com/arcline-ai/model-gateway/internal/metrics"
)

// Status is the breaker state stored in the health record.
type Status string

const (
	StatusClosed   Status = "CLOSED"
	StatusOpen     Status = "OPEN"
	StatusHalfOpen Status = "HALF_OPEN"
)

// Key builds the composite health-record key for a provider and region.
func Key(provider, region string) string {
	return provider + "#" + region
}

// State is one health record, keyed by "{provider}#{region}".
type State struct {
	ProviderRegion           string     `json:"providerRegion" dynamodbav:"providerRegion"`
	Status                   Status     `json:"status" dynamodbav:"status"`
	ConsecutiveFailures      int        `json:"consecutiveFailures" dynamodbav:"consecutiveFailures"`
	TotalFailures            int        `json:"totalFailures" dynamodbav:"totalFailures"`
	TotalSuccesses           int        `json:"totalSuccesses" dynamodbav:"totalSuccesses"`
	CurrentHalfOpenSuccesses int        `json:"currentHalfOpenSuccesses" dynamodbav:"currentHalfOpenSuccesses"`
	LastStateChangeTimestamp time.Time  `json:"lastStateChangeTimestamp" dynamodbav:"lastStateChangeTimestamp"`
	OpenedTimestamp          *time.Time `json:"openedTimestamp,omitempty" dynamodbav:"openedTimestamp"`
	LastFailureTimestamp     *time.Time `json:"lastFailureTimestamp,omitempty" dynamodbav:"lastFailureTimestamp"`
	TotalLatencyMs           int64      `json:"totalLatencyMs" dynamodbav:"totalLatencyMs"`
	LastLatencyMs            int64      `json:"lastLatencyMs" dynamodbav:"lastLatencyMs"`
	AvgLatencyMs             float64    `json:"avgLatencyMs" dynamodbav:"avgLatencyMs"`
	// TTL is the epoch-seconds expiry honored by the KV store.
	TTL int64 `json:"ttl" dynamodbav:"ttl"`
}

// Options tune the state machine. Zero values take the defaults.
type Options struct {
	FailureThreshold         int           // default 3
	Cooldown                 time.Duration // default 30s
	HalfOpenSuccessThreshold int           // default 2
	RecordTTL                time.Duration // default 7 days
}

func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 30 * time.Second
	}
	if o.HalfOpenSuccessThreshold <= 0 {
		o.HalfOpenSuccessThreshold = 2
	}
	if o.RecordTTL <= 0 {
		o.RecordTTL = 7 * 24 * time.Hour
	}
	return o
}

// Breaker gates requests per health-record key. It holds no per-key state in
// memory: every decision reads the record, every outcome writes it back.
type Breaker struct {
	kv    kv.Store
	table string
	opts  Options
	now   func() time.Time
}

// New creates a Breaker persisting to table in store.
func New(store kv.Store, table string, opts Options) *Breaker {
	return &Breaker{
		kv:    store,
		table: table,
		opts:  opts.withDefaults(),
		now:   time.Now,
	}
}

// WithClock overrides the breaker's time source. Test hook.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Allow reports whether a request for key may proceed. An OPEN record whose
// cooldown has elapsed transitions to HALF_OPEN; the transition is persisted
// before the test request is admitted.
func (b *Breaker) Allow(ctx context.Context, key string) bool {
	st := b.load(ctx, key)

	if st.Status == StatusOpen {
		opened := st.LastStateChangeTimestamp
		if st.OpenedTimestamp != nil {
			opened = *st.OpenedTimestamp
		}
		if b.now().Sub(opened) < b.opts.Cooldown {
			return false
		}
		b.transition(st, StatusHalfOpen)
		st.ConsecutiveFailures = 0
		st.CurrentHalfOpenSuccesses = 0
		b.persist(ctx, st)
	}

	return true
}

// RecordSuccess records a successful call for key. latency of zero or less
// leaves the latency aggregates untouched.
func (b *Breaker) RecordSuccess(ctx context.Context, key string, latency time.Duration) {
	st := b.load(ctx, key)
	st.TotalSuccesses++
	b.observeLatency(st, latency)

	switch st.Status {
	case StatusClosed:
		st.ConsecutiveFailures = 0
	case StatusOpen:
		// A success against an OPEN circuit means another worker already let
		// a test request through; count it as a half-open success.
		logging.FromContext(ctx).Warn("success recorded while circuit open",
			"key", key, "anomaly", "open_success")
		fallthrough
	case StatusHalfOpen:
		st.CurrentHalfOpenSuccesses++
		if st.CurrentHalfOpenSuccesses >= b.opts.HalfOpenSuccessThreshold {
			b.transition(st, StatusClosed)
			st.ConsecutiveFailures = 0
			st.CurrentHalfOpenSuccesses = 0
		}
	}

	b.persist(ctx, st)
}

// RecordFailure records a qualifying failure for key.
func (b *Breaker) RecordFailure(ctx context.Context, key string, latency time.Duration) {
	st := b.load(ctx, key)
	now := b.now()
	st.TotalFailures++
	st.ConsecutiveFailures++
	st.LastFailureTimestamp = &now
	b.observeLatency(st, latency)

	switch st.Status {
	case StatusClosed:
		if st.ConsecutiveFailures >= b.opts.FailureThreshold {
			b.open(st)
		}
	case StatusHalfOpen:
		b.open(st)
	}

	b.persist(ctx, st)
}

// Snapshot returns the current record for key, if one exists. Used for
// scoring inputs and operational inspection; it never creates a record.
func (b *Breaker) Snapshot(ctx context.Context, key string) (*State, bool) {
	var st State
	found, err := b.kv.Get(ctx, b.table, key, &st)
	if err != nil || !found {
		return nil, false
	}
	return &st, true
}

// Reset overwrites key with a fresh CLOSED record.
func (b *Breaker) Reset(ctx context.Context, key string) error {
	st := b.defaultState(key)
	st.TTL = b.now().Add(b.opts.RecordTTL).Unix()
	metrics.SetCircuitState(key, string(st.Status))
	return b.kv.Put(ctx, b.table, key, st)
}

func (b *Breaker) open(st *State) {
	now := b.now()
	b.transition(st, StatusOpen)
	st.OpenedTimestamp = &now
	st.CurrentHalfOpenSuccesses = 0
}

func (b *Breaker) transition(st *State, to Status) {
	if st.Status != to {
		metrics.CircuitTransitions.WithLabelValues(st.ProviderRegion, string(st.Status), string(to)).Inc()
	}
	st.Status = to
	st.LastStateChangeTimestamp = b.now()
	metrics.SetCircuitState(st.ProviderRegion, string(to))
}

func (b *Breaker) observeLatency(st *State, latency time.Duration) {
	if latency <= 0 {
		return
	}
	ms := latency.Milliseconds()
	st.TotalLatencyMs += ms
	st.LastLatencyMs = ms
	if n := st.TotalSuccesses + st.TotalFailures; n > 0 {
		st.AvgLatencyMs = float64(st.TotalLatencyMs) / float64(n)
	}
}

func (b *Breaker) defaultState(key string) *State {
	return &State{
		ProviderRegion:           key,
		Status:                   StatusClosed,
		LastStateChangeTimestamp: b.now(),
	}
}

// load reads the record for key. A missing record is treated as CLOSED and
// written back so other workers see it; a read failure degrades to an
// in-memory CLOSED record (the breaker is an optimization, not a
// correctness barrier).
func (b *Breaker) load(ctx context.Context, key string) *State {
	var st State
	found, err := b.kv.Get(ctx, b.table, key, &st)
	if err != nil {
		logging.FromContext(ctx).Warn("circuit state read failed, assuming closed",
			"key", key, "error", err.Error())
		return b.defaultState(key)
	}
	if !found {
		st := b.defaultState(key)
		b.persist(ctx, st)
		return st
	}
	return &st
}

// persist writes the record back, refreshing its TTL. Failures are logged
// and swallowed.
func (b *Breaker) persist(ctx context.Context, st *State) {
	st.TTL = b.now().Add(b.opts.RecordTTL).Unix()
	if err := b.kv.Put(ctx, b.table, st.ProviderRegion, st); err != nil {
		logging.FromContext(ctx).Warn("circuit state write failed",
			"key", st.ProviderRegion, "error", err.Error())
	}
}
