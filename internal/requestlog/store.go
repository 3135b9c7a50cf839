// Package requestlog persists one row per routed request — which provider
// served it (or which disposition ended it), token counts, and latency — to
// SQLite or Postgres. Rows are observability records, not billing meters.
package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Entry is one routing outcome.
type Entry struct {
	RequestID        string
	Provider         string
	Model            string
	Region           string
	Disposition      string // router event disposition: "success", "all_failed", or "no_candidates"
	Attempts         int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMs        int64
	ErrorDetail      string
	CreatedAt        time.Time
}

// Query filters List results.
type Query struct {
	Limit       int
	Offset      int
	Provider    string
	Model       string
	Region      string
	Disposition string
	Since       *time.Time
}

// ListResult is a paginated query response.
type ListResult struct {
	Data  []Entry
	Total int
}

// Writer persists routing outcomes.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// Reader loads routing outcomes from persistent storage.
type Reader interface {
	List(ctx context.Context, query Query) (ListResult, error)
}

// NoopWriter ignores all writes. Used when no request log is configured.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// SQLStore persists entries to SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// NewSQLite opens (or creates) a SQLite-backed store.
func NewSQLite(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "model-gateway-requests.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite request log: %w", err)
	}
	s := &SQLStore{db: db, dialect: "sqlite"}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgres opens a Postgres-backed store.
func NewPostgres(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres request log: %w", err)
	}
	s := &SQLStore{db: db, dialect: "postgres"}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s request log: %w", s.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS routing_outcomes (
	id INTEGER PRIMARY KEY,
	request_id TEXT,
	provider TEXT,
	model TEXT,
	region TEXT,
	disposition TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	error_detail TEXT,
	created_at TIMESTAMP NOT NULL
);`
	if s.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS routing_outcomes (
	id BIGSERIAL PRIMARY KEY,
	request_id TEXT,
	provider TEXT,
	model TEXT,
	region TEXT,
	disposition TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	latency_ms BIGINT NOT NULL,
	error_detail TEXT,
	created_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize request log schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO routing_outcomes(request_id, provider, model, region, disposition, attempts, prompt_tokens, completion_tokens, total_tokens, latency_ms, error_detail, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if s.dialect == "postgres" {
		query = bindPostgres(query)
	}

	_, err := s.db.ExecContext(ctx, query,
		entry.RequestID,
		entry.Provider,
		entry.Model,
		entry.Region,
		entry.Disposition,
		entry.Attempts,
		entry.PromptTokens,
		entry.CompletionTokens,
		entry.TotalTokens,
		entry.LatencyMs,
		entry.ErrorDetail,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write request log: %w", err)
	}
	return nil
}

// List returns paginated entries, newest first, with optional filters.
func (s *SQLStore) List(ctx context.Context, query Query) (ListResult, error) {
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	var where []string
	var args []any
	add := func(clause string, v any) {
		where = append(where, clause)
		args = append(args, v)
	}
	if query.Provider != "" {
		add("provider = ?", query.Provider)
	}
	if query.Model != "" {
		add("model = ?", query.Model)
	}
	if query.Region != "" {
		add("region = ?", query.Region)
	}
	if query.Disposition != "" {
		add("disposition = ?", query.Disposition)
	}
	if query.Since != nil {
		add("created_at >= ?", query.Since.UTC())
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM routing_outcomes" + whereSQL
	if s.dialect == "postgres" {
		countQuery = bindPostgres(countQuery)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count request logs: %w", err)
	}

	listQuery := "SELECT request_id, provider, model, region, disposition, attempts, prompt_tokens, completion_tokens, total_tokens, latency_ms, error_detail, created_at FROM routing_outcomes" +
		whereSQL + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	listArgs := append(args, query.Limit, query.Offset)
	if s.dialect == "postgres" {
		listQuery = bindPostgres(listQuery)
	}

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list request logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := ListResult{Total: total}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RequestID, &e.Provider, &e.Model, &e.Region, &e.Disposition,
			&e.Attempts, &e.PromptTokens, &e.CompletionTokens, &e.TotalTokens,
			&e.LatencyMs, &e.ErrorDetail, &e.CreatedAt); err != nil {
			return ListResult{}, fmt.Errorf("scan request log row: %w", err)
		}
		result.Data = append(result.Data, e)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("iterate request log rows: %w", err)
	}
	return result, nil
}

// bindPostgres rewrites ? placeholders to $1..$n.
func bindPostgres(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
