package mysql

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDSN_ForcesParseTime(t *testing.T) {
	dsn, err := normalizeDSN("user:pass@tcp(db:3306)/bucketvis")
	require.NoError(t, err)

	cfg, err := gomysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "bucketvis", cfg.DBName)
	assert.Equal(t, "db:3306", cfg.Addr)
}

func TestNormalizeDSN_Invalid(t *testing.T) {
	_, err := normalizeDSN("not a dsn")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestBuildPool_AppliesLimits(t *testing.T) {
	db, err := buildPool(&notify.JournalConfig{DSN: "u:p@tcp(127.0.0.1:1)/j", MaxConns: 7})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 7, db.Stats().MaxOpenConnections)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
		code string
	}{
		{"access denied", &gomysql.MySQLError{Number: errAccessDenied}, errs.ErrKindPermissionDenied, "1045"},
		{"no table", &gomysql.MySQLError{Number: errNoSuchTable}, errs.ErrKindQueryFailed, "1146"},
		{"refused", &gomysql.MySQLError{Number: errConnRefused}, errs.ErrKindConnectionFailed, "2003"},
		{"invalid conn", gomysql.ErrInvalidConn, errs.ErrKindConnectionFailed, ""},
		{"canceled", fmt.Errorf("exec: %w", context.Canceled), errs.ErrKindTimeout, ""},
		{"other", errors.New("boom"), errs.ErrKindUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.Equal(t, tt.code, errs.CodeOf(err))
		})
	}
}
