package requestlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "requests.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWriteAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		{RequestID: "r1", Provider: "anthropic", Model: "m1", Region: "us-east-1", Disposition: "success", Attempts: 1, PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8, LatencyMs: 120},
		{RequestID: "r2", Provider: "openai", Model: "m2", Region: "us-east-1", Disposition: "unknown", Attempts: 2, ErrorDetail: "upstream exploded", LatencyMs: 900},
		{RequestID: "r3", Provider: "anthropic", Model: "m1", Region: "eu-west-1", Disposition: "success", Attempts: 1, TotalTokens: 4, LatencyMs: 80},
	}
	for _, e := range entries {
		if err := s.Write(ctx, e); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}

	all, err := s.List(ctx, Query{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if all.Total != 3 || len(all.Data) != 3 {
		t.Fatalf("List() total=%d len=%d, want 3/3", all.Total, len(all.Data))
	}

	byProvider, err := s.List(ctx, Query{Provider: "anthropic"})
	if err != nil {
		t.Fatalf("List(provider) error: %v", err)
	}
	if byProvider.Total != 2 {
		t.Fatalf("List(provider) total = %d, want 2", byProvider.Total)
	}

	byDisposition, err := s.List(ctx, Query{Disposition: "unknown"})
	if err != nil {
		t.Fatalf("List(disposition) error: %v", err)
	}
	if byDisposition.Total != 1 || byDisposition.Data[0].ErrorDetail != "upstream exploded" {
		t.Fatalf("List(disposition) = %+v, want the failed row", byDisposition)
	}
}

func TestWriteStampsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	if err := s.Write(ctx, Entry{RequestID: "r1", Disposition: "success"}); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	got, err := s.List(ctx, Query{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if got.Data[0].CreatedAt.Before(before) {
		t.Fatalf("CreatedAt = %v, want stamped at write time", got.Data[0].CreatedAt)
	}
}

func TestListPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		e := Entry{RequestID: "r", Disposition: "success", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Write(ctx, e); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}

	page, err := s.List(ctx, Query{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if page.Total != 5 || len(page.Data) != 2 {
		t.Fatalf("List() total=%d len=%d, want 5/2", page.Total, len(page.Data))
	}
}
