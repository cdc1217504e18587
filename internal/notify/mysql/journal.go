// Package mysql records outcome messages in a MySQL table.
package mysql

import (
	"context"
	"database/sql"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/notify"
)

const (
	defaultMaxOpenConns    = 4
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
)

var createTable = "CREATE TABLE IF NOT EXISTS " + notify.Table + ` (
	id         BIGINT AUTO_INCREMENT PRIMARY KEY,
	created_at DATETIME(6) NOT NULL,
	level      VARCHAR(16) NOT NULL,
	operation  VARCHAR(64) NOT NULL,
	bucket     VARCHAR(255) NOT NULL,
	path       TEXT NOT NULL,
	text       TEXT NOT NULL
)`

// Journal implements notify.Sink and notify.Reader on top of database/sql.
type Journal struct {
	db *sql.DB
}

// New opens cfg.DSN, verifies the connection and creates the journal table.
func New(ctx context.Context, cfg *notify.JournalConfig) (*Journal, error) {
	db, err := buildPool(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, mapError(err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, mapError(err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Notify(ctx context.Context, m notify.Message) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO "+notify.Table+" (created_at, level, operation, bucket, path, text) VALUES (?, ?, ?, ?, ?, ?)",
		m.Time.UTC(), string(m.Level), m.Operation, m.Bucket, m.Path, m.Text,
	)
	return mapError(err)
}

// Recent returns up to limit messages, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]notify.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		"SELECT created_at, level, operation, bucket, path, text FROM "+notify.Table+" ORDER BY id DESC LIMIT ?", limit)
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
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// buildPool configures a *sql.DB with pool settings. It does not connect.
func buildPool(cfg *notify.JournalConfig) (*sql.DB, error) {
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to open mysql", err)
	}

	maxOpen := int(cfg.MaxConns)
	if maxOpen == 0 {
		maxOpen = defaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(min(defaultMaxIdleConns, maxOpen))
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	return db, nil
}

// normalizeDSN forces parseTime so DATETIME columns scan into time.Time.
func normalizeDSN(dsn string) (string, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid mysql dsn", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}
