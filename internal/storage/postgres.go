package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/elitevogue/newsbot/internal/news"
)

// PostgresStore implements SeenStore and StatsStore on PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// PublishedRow is one processed fingerprint with the time it was recorded.
type PublishedRow struct {
	Hash       string
	RecordedAt time.Time
}

// NewPostgresStore connects, pings and creates the tables if needed.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &PostgresStore{db: db, logger: logger}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger.Info("postgres store connected")
	return store, nil
}

func (p *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS published_items (
		hash VARCHAR(64) PRIMARY KEY,
		recorded_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_published_items_recorded_at ON published_items(recorded_at);

	CREATE TABLE IF NOT EXISTS stats_counters (
		key VARCHAR(200) PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

// LoadSeen returns every stored fingerprint. Query failures yield an empty set.
func (p *PostgresStore) LoadSeen(ctx context.Context) news.Set {
	seen := news.NewSet()

	rows, err := p.db.QueryContext(ctx, `SELECT hash FROM published_items`)
	if err != nil {
		p.logger.Warn("load published items failed, starting empty", "err", err)
		return seen
	}
	defer rows.Close()

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			p.logger.Warn("scan published item failed", "err", err)
			continue
		}
		seen.Add(h)
	}
	if err := rows.Err(); err != nil {
		p.logger.Warn("iterate published items failed, starting empty", "err", err)
		return news.NewSet()
	}
	return seen
}

// SaveSeen inserts the fingerprints that are not stored yet in one transaction.
// Rows are never removed: the set only grows.
func (p *PostgresStore) SaveSeen(ctx context.Context, seen news.Set) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO published_items (hash, recorded_at)
		VALUES ($1, NOW())
		ON CONFLICT (hash) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, h := range seen.Sorted() {
		if _, err := stmt.ExecContext(ctx, h); err != nil {
			return fmt.Errorf("insert %s: %w", h, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Increment bumps both counters with an upsert.
func (p *PostgresStore) Increment(ctx context.Context, source, category string) error {
	query := `
		INSERT INTO stats_counters (key, count) VALUES ($1, 1)
		ON CONFLICT (key) DO UPDATE SET count = stats_counters.count + 1
	`
	for _, key := range []string{SourceKey(source), CategoryKey(category)} {
		if _, err := p.db.ExecContext(ctx, query, key); err != nil {
			return fmt.Errorf("increment %s: %w", key, err)
		}
	}
	return nil
}

func (p *PostgresStore) LoadStats(ctx context.Context) map[string]int {
	counts := make(map[string]int)
	rows, err := p.db.QueryContext(ctx, `SELECT key, count FROM stats_counters`)
	if err != nil {
		p.logger.Warn("load stats failed", "err", err)
		return counts
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err == nil {
			counts[key] = n
		}
	}
	return counts
}

// Recent returns the most recently recorded fingerprints, for debugging.
func (p *PostgresStore) Recent(ctx context.Context, limit int) ([]PublishedRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT hash, recorded_at
		FROM published_items
		ORDER BY recorded_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PublishedRow
	for rows.Next() {
		var r PublishedRow
		if err := rows.Scan(&r.Hash, &r.RecordedAt); err != nil {
			p.logger.Warn("scan recent row failed", "err", err)
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
