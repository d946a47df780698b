// Package datastore provides idempotent persistence of stream records and
// summaries: existence checks by primary key, transactional upsert, and
// published-list/search reads.
package datastore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Store holds the pgx connection pool backing the streams table.
type Store struct {
	pool *pgxpool.Pool
}

// Connect creates a pgx pool, pings it, and runs schema migrations
// idempotently, mirroring the teacher's ResumeDB bring-up sequence.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, errors.New("datastore URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET search_path TO public")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := &Store{pool: pool}
	if err := db.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("datastore connected", slog.String("addr", config.ConnConfig.Host))
	return db, nil
}

// Close releases the connection pool.
func (db *Store) Close() {
	db.pool.Close()
}

func (db *Store) runMigrations(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SET search_path TO public"); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := conn.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute %s: %w", entry.Name(), err)
		}
		slog.Info("migration applied", slog.String("file", entry.Name()))
	}
	return nil
}

// Exists reports whether a row for videoID is already present.
func (db *Store) Exists(ctx context.Context, videoID string) (bool, error) {
	var count int
	err := db.pool.QueryRow(ctx, "SELECT COUNT(*) FROM streams WHERE video_id = $1", videoID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("exists check: %w", err)
	}
	return count > 0, nil
}

// FilterNew returns the subset of candidateIDs not yet present in the store,
// preserving their input order.
func (db *Store) FilterNew(ctx context.Context, candidateIDs []string) ([]string, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}
	rows, err := db.pool.Query(ctx, "SELECT video_id FROM streams WHERE video_id = ANY($1)", candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("filter_new query: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("filter_new scan: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filter_new rows: %w", err)
	}

	out := make([]string, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if !existing[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// UpsertWithSummary inserts the full record including summary_md in a
// single transaction. On conflict by video_id, it updates only summary_md,
// timestamp_md, and the derived columns (house/search_vector, maintained by
// the backend itself) — it never touches is_published, the editorial gate.
//
// No write path reaches this function without a non-null SummaryMD: the
// orchestrator only calls it after a successful summarize step, so a row
// for a given video_id either doesn't exist yet or was written with a
// summary already — partial states are never persisted (§3, §8).
func (db *Store) UpsertWithSummary(ctx context.Context, s Stream) error {
	if s.SummaryMD == "" {
		return fmt.Errorf("upsert_with_summary: refusing to write %s with empty summary_md", s.VideoID)
	}
	_, err := db.pool.Exec(ctx, `
		INSERT INTO streams (video_id, title, view_count, stream_timestamp, duration, summary_md, timestamp_md)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (video_id) DO UPDATE
		SET summary_md = EXCLUDED.summary_md,
		    timestamp_md = EXCLUDED.timestamp_md
	`, s.VideoID, s.Title, s.ViewCount, s.StreamTimestamp, s.Duration, s.SummaryMD, s.TimestampMD)
	if err != nil {
		return fmt.Errorf("upsert_with_summary(%s): %w", s.VideoID, err)
	}
	return nil
}

// Get fetches a single stream record by video_id.
func (db *Store) Get(ctx context.Context, videoID string) (*Stream, error) {
	var s Stream
	err := db.pool.QueryRow(ctx, `
		SELECT video_id, title, view_count, stream_timestamp, duration,
		       coalesce(summary_md, ''), coalesce(timestamp_md, ''), is_published, house
		FROM streams WHERE video_id = $1
	`, videoID).Scan(&s.VideoID, &s.Title, &s.ViewCount, &s.StreamTimestamp, &s.Duration,
		&s.SummaryMD, &s.TimestampMD, &s.IsPublished, &s.House)
	if err != nil {
		return nil, fmt.Errorf("get(%s): %w", videoID, err)
	}
	return &s, nil
}

// ListPublished returns published streams ordered by stream_timestamp descending.
func (db *Store) ListPublished(ctx context.Context, limit, offset int) ([]Stream, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT video_id, title, view_count, stream_timestamp, duration,
		       coalesce(summary_md, ''), coalesce(timestamp_md, ''), is_published, house
		FROM streams
		WHERE is_published = TRUE
		ORDER BY stream_timestamp DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list_published query: %w", err)
	}
	defer rows.Close()
	return scanStreams(rows)
}

// SearchPublished tokenizes query against search_vector and returns matching
// published streams.
func (db *Store) SearchPublished(ctx context.Context, query string, limit, offset int) ([]Stream, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT video_id, title, view_count, stream_timestamp, duration,
		       coalesce(summary_md, ''), coalesce(timestamp_md, ''), is_published, house
		FROM streams
		WHERE is_published = TRUE AND search_vector @@ to_tsquery('english', $1)
		ORDER BY stream_timestamp DESC
		LIMIT $2 OFFSET $3
	`, toTSQuery(query), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search_published query: %w", err)
	}
	defer rows.Close()
	return scanStreams(rows)
}

func scanStreams(rows pgx.Rows) ([]Stream, error) {
	var out []Stream
	for rows.Next() {
		var s Stream
		if err := rows.Scan(&s.VideoID, &s.Title, &s.ViewCount, &s.StreamTimestamp, &s.Duration,
			&s.SummaryMD, &s.TimestampMD, &s.IsPublished, &s.House); err != nil {
			return nil, fmt.Errorf("scan stream: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// toTSQuery turns free text into an AND-joined tsquery, tolerating
// punctuation a naive to_tsquery call would choke on.
func toTSQuery(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		fields[i] = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, f)
	}
	var kept []string
	for _, f := range fields {
		if f != "" {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, " & ")
}
