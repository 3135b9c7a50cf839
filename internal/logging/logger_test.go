package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestRoundTrip(t *testing.T) {
	ctx := WithRequest(context.Background(), "req-1", "us-east-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("RequestIDFromContext() = %q, want req-1", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("RequestIDFromContext(empty) = %q, want empty", got)
	}
}

func TestFromContextWithoutRequestInfo(t *testing.T) {
	if FromContext(context.Background()) != Logger {
		t.Fatal("FromContext without request info must return the base logger")
	}
}

func TestNewRequestID(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if len(a) != 32 {
		t.Fatalf("len(NewRequestID()) = %d, want 32 hex chars", len(a))
	}
	if a == b {
		t.Fatal("consecutive request IDs must differ")
	}
}

func TestMiddleware(t *testing.T) {
	var gotID, gotRegion string
	handler := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		info, _ := r.Context().Value(ctxKey{}).(requestInfo)
		gotID = info.id
		gotRegion = info.region
	}))

	t.Run("generates an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if gotID == "" {
			t.Fatal("middleware must assign a request ID")
		}
		if rec.Header().Get("X-Request-ID") != gotID {
			t.Fatal("assigned ID must be echoed in X-Request-ID")
		}
	})

	t.Run("honors caller headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "caller-id")
		req.Header.Set("X-Gateway-Region", "eu-west-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if gotID != "caller-id" || gotRegion != "eu-west-1" {
			t.Fatalf("context carries %q/%q, want caller-id/eu-west-1", gotID, gotRegion)
		}
	})
}
