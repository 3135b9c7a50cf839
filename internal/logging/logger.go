// Package logging configures the gateway's structured logger and carries
// per-request correlation metadata — the request ID and the routing region —
// through context so the router, stores, breaker, and adapters all log with
// the same fields.
package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// Logger is the process-wide structured logger. Prefer FromContext(ctx) so
// request correlation fields are attached automatically.
var Logger = slog.Default()

func init() {
	Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Getenv("GATEWAY_ENV"))
}

// Setup rebuilds the process logger. level accepts debug/info/warn/error
// (default info); format is "json" (default) or "text"; env, when nonempty,
// stamps every record with the deployment environment.
func Setup(level, format, env string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	if env != "" {
		logger = logger.With("env", env)
	}
	Logger = logger
	slog.SetDefault(logger)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// requestInfo is the correlation payload stored in context.
type requestInfo struct {
	id     string
	region string
}

type ctxKey struct{}

// WithRequest records the request ID and routing region in ctx. Either value
// may be empty; empty fields are omitted from log records.
func WithRequest(ctx context.Context, id, region string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestInfo{id: id, region: region})
}

// RequestIDFromContext returns the request ID recorded by WithRequest, or "".
func RequestIDFromContext(ctx context.Context) string {
	info, _ := ctx.Value(ctxKey{}).(requestInfo)
	return info.id
}

// FromContext returns Logger annotated with the request ID and region
// recorded in ctx, when present.
func FromContext(ctx context.Context) *slog.Logger {
	info, ok := ctx.Value(ctxKey{}).(requestInfo)
	if !ok {
		return Logger
	}
	log := Logger
	if info.id != "" {
		log = log.With("request_id", info.id)
	}
	if info.region != "" {
		log = log.With("region", info.region)
	}
	return log
}

// NewRequestID returns a random 16-byte hex request ID.
func NewRequestID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Middleware assigns every request an ID (reusing the caller's X-Request-ID
// when present), echoes it back in the response, and stores it in the
// request context together with the caller-declared routing region from
// X-Gateway-Region.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := WithRequest(r.Context(), id, r.Header.Get("X-Gateway-Region"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
