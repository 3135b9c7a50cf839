// Command gatewayd runs the model gateway HTTP server: a thin JSON surface
// over the routing core, plus health and Prometheus endpoints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gateway "github.com/arcline-ai/model-gateway"
	"github.com/arcline-ai/model-gateway/internal/config"
	"github.com/arcline-ai/model-gateway/internal/logging"
	"github.com/arcline-ai/model-gateway/internal/requestlog"
	"github.com/arcline-ai/model-gateway/internal/version"
	"github.com/arcline-ai/model-gateway/providers"
)

func main() {
	settings, err := config.LoadSettings(os.Getenv("GATEWAY_SETTINGS"))
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), settings.Environment)

	ctx := context.Background()
	gw, err := gateway.New(ctx, settings)
	if err != nil {
		log.Fatalf("Failed to build gateway: %v", err)
	}

	var logStore *requestlog.SQLStore
	switch settings.RequestLogDriver {
	case "":
		// request log disabled
	case "sqlite":
		logStore, err = requestlog.NewSQLite(settings.RequestLogDSN)
	case "postgres":
		logStore, err = requestlog.NewPostgres(settings.RequestLogDSN)
	default:
		log.Fatalf("Unknown request log driver %q", settings.RequestLogDriver)
	}
	if err != nil {
		log.Fatalf("Failed to open request log: %v", err)
	}
	if logStore != nil {
		defer func() { _ = logStore.Close() }()
		gw.Router.AddHook(gateway.RequestLogHook(logStore))
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware)

	r.Post("/v1/generate", generateHandler(gw, settings))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"build":  version.Current(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Logger.Info("gateway listening",
			"addr", settings.ListenAddr,
			"build", version.Current().String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Error("shutdown error", "error", err.Error())
	}
}

func generateHandler(gw *gateway.Gateway, settings *config.Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providers.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": map[string]any{"code": "CONTENT", "detail": "invalid JSON body: " + err.Error()},
			})
			return
		}
		if req.Prompt == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": map[string]any{"code": "CONTENT", "detail": "prompt is required"},
			})
			return
		}
		if req.Context.Region == "" {
			req.Context.Region = settings.DefaultRegion
		}
		if req.Context.RequestID == "" {
			if id := logging.RequestIDFromContext(r.Context()); id != "" {
				req.Context.RequestID = id
			} else {
				req.Context.RequestID = uuid.NewString()
			}
		}
		// Re-record correlation fields now that the ID and region are final.
		ctx := logging.WithRequest(r.Context(), req.Context.RequestID, req.Context.Region)

		success, err := gw.Router.Route(ctx, req)
		if err != nil {
			var perr *providers.Error
			if !errors.As(err, &perr) {
				perr = &providers.Error{Code: providers.CodeUnknown, Detail: err.Error(), Status: http.StatusInternalServerError}
			}
			status := perr.Status
			if status == 0 {
				status = http.StatusInternalServerError
			}
			writeJSON(w, status, map[string]any{"error": perr})
			return
		}
		writeJSON(w, http.StatusOK, success)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
