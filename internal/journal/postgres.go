package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to url and applies the migrations. maxConns of zero
// keeps the pool default.
func OpenPostgres(ctx context.Context, url string, maxConns int) (*PostgresStore, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is required for PostgreSQL")
	}

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	scripts, err := migrations("postgres")
	if err != nil {
		pool.Close()
		return nil, err
	}
	for _, script := range scripts {
		if _, err := pool.Exec(ctx, script); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate journal: %w", err)
		}
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStore wraps an existing pool. The schema must already exist.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Record(ctx context.Context, entry *Entry) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO journal_entries (kind, app, count, payload, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		string(entry.Kind),
		entry.App,
		entry.Count,
		[]byte(entry.Payload),
		entry.RecordedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to record %s entry: %w", entry.Kind, err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, app, count, payload, recorded_at
		 FROM journal_entries ORDER BY id DESC LIMIT $1`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			kind    string
			payload []byte
		)
		if err := rows.Scan(&e.ID, &kind, &e.App, &e.Count, &payload, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.Payload = payload
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
