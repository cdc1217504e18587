// Package postgres records outcome messages in a PostgreSQL table.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/notify"
)

const (
	defaultMaxConns    = 4
	defaultMinConns    = 1
	defaultConnTimeout = 5 * time.Second
)

var createTable = `CREATE TABLE IF NOT EXISTS ` + notify.Table + ` (
	id         BIGSERIAL PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	level      TEXT NOT NULL,
	operation  TEXT NOT NULL,
	bucket     TEXT NOT NULL,
	path       TEXT NOT NULL DEFAULT '',
	text       TEXT NOT NULL
)`

// Journal implements notify.Sink and notify.Reader on top of pgxpool.
type Journal struct {
	pool *pgxpool.Pool
}

// New connects to cfg.DSN and creates the journal table if needed.
func New(ctx context.Context, cfg *notify.JournalConfig) (*Journal, error) {
	pool, err := buildPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTable); err != nil {
		pool.Close()
		return nil, mapError(err)
	}
	return &Journal{pool: pool}, nil
}

func (j *Journal) Notify(ctx context.Context, m notify.Message) error {
	_, err := j.pool.Exec(ctx,
		`INSERT INTO `+notify.Table+` (created_at, level, operation, bucket, path, text)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.Time, string(m.Level), m.Operation, m.Bucket, m.Path, m.Text,
	)
	return mapError(err)
}

// Recent returns up to limit messages, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]notify.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.pool.Query(ctx,
		`SELECT created_at, level, operation, bucket, path, text
		 FROM `+notify.Table+` ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []notify.Message{}
	for rows.Next() {
		var (
			m     notify.Message
			level string
		)
		if err := rows.Scan(&m.Time, &level, &m.Operation, &m.Bucket, &m.Path, &m.Text); err != nil {
			return nil, mapError(err)
		}
		m.Level = notify.Level(level)
		out = append(out, m)
	}
	return out, mapError(rows.Err())
}

// Close shuts down the connection pool.
func (j *Journal) Close() {
	if j.pool != nil {
		j.pool.Close()
	}
}

func buildPool(ctx context.Context, cfg *notify.JournalConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid postgres dsn", err)
	}

	poolCfg.MaxConns = withDefault(cfg.MaxConns, defaultMaxConns)
	poolCfg.MinConns = defaultMinConns
	poolCfg.MaxConnIdleTime = defaultConnTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, mapError(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, mapError(err)
	}
	return pool, nil
}

func withDefault(val, def int32) int32 {
	if val == 0 {
		return def
	}
	return val
}

func describe(op string) string {
	return fmt.Sprintf("journal %s failed", op)
}
