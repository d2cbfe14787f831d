// Package store keeps the durable state — three ordered int32->blob
// maps (jobs, users, contests) with single-key put/get, full range scan
// in key order, and read/write transactions — on top of PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/originjudge/oj/internal/apperr"
)

// Connect opens a pgx connection pool with conservative defaults.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Store is the durable table set: jobs, users, contests, each an
// int32-keyed table of an opaque JSON blob.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var schema = `
CREATE TABLE IF NOT EXISTS jobs (id INTEGER PRIMARY KEY, data JSONB NOT NULL);
CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY, data JSONB NOT NULL);
CREATE TABLE IF NOT EXISTS contests (id INTEGER PRIMARY KEY, data JSONB NOT NULL);
`

// Init creates the three tables if absent, and when flush is true,
// truncates all of them first (the --flush-data CLI flag). It then
// seeds users[0]="root" if no user with id 0 exists.
func (s *Store) Init(ctx context.Context, flush bool) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return apperr.New(apperr.External, "create tables: %s", err)
	}
	if flush {
		if _, err := s.pool.Exec(ctx, `TRUNCATE jobs, users, contests`); err != nil {
			return apperr.New(apperr.External, "truncate: %s", err)
		}
	}
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE id = 0`).Scan(&count); err != nil {
		return apperr.New(apperr.External, "check root user: %s", err)
	}
	if count == 0 {
		root, _ := json.Marshal(map[string]any{"id": 0, "name": "root"})
		if _, err := s.pool.Exec(ctx, `INSERT INTO users (id, data) VALUES (0, $1)`, root); err != nil {
			return apperr.New(apperr.External, "seed root user: %s", err)
		}
	}
	return nil
}

// table picks the underlying table name for a generic blob operation.
type table string

const (
	TableJobs     table = "jobs"
	TableUsers    table = "users"
	TableContests table = "contests"
)

// Put writes value (already JSON-encoded by the caller) under id, inside
// a read-write transaction, upserting on conflict.
func (s *Store) Put(ctx context.Context, t table, id int32, value []byte) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperr.New(apperr.External, "begin tx: %s", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO ` + string(t) + ` (id, data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`
	if _, err := tx.Exec(ctx, query, id, value); err != nil {
		return apperr.New(apperr.External, "put %s/%d: %s", t, id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.New(apperr.External, "commit: %s", err)
	}
	return nil
}

// Get reads one blob by id inside a read-only transaction.
func (s *Store) Get(ctx context.Context, t table, id int32) ([]byte, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, false, apperr.New(apperr.External, "begin tx: %s", err)
	}
	defer tx.Rollback(ctx)

	var data []byte
	err = tx.QueryRow(ctx, `SELECT data FROM `+string(t)+` WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperr.New(apperr.External, "get %s/%d: %s", t, id, err)
	}
	return data, true, nil
}

// Scan returns every blob in the table, ordered by id ascending.
func (s *Store) Scan(ctx context.Context, t table) ([][]byte, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM `+string(t)+` ORDER BY id ASC`)
	if err != nil {
		return nil, apperr.New(apperr.External, "scan %s: %s", t, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, apperr.New(apperr.External, "scan %s row: %s", t, err)
		}
		out = append(out, data)
	}
	return out, rows.Err()
}

// MaxID returns the largest key currently stored, or 0 for an empty
// table, so id allocation always starts at 1.
func (s *Store) MaxID(ctx context.Context, t table) (int32, error) {
	var max *int32
	err := s.pool.QueryRow(ctx, `SELECT max(id) FROM `+string(t)).Scan(&max)
	if err != nil {
		return 0, apperr.New(apperr.External, "max id %s: %s", t, err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}
