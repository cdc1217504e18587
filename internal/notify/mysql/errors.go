package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/bucketvis/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errAccessDenied      = 1045
	errUnknownDatabase   = 1049
	errNoSuchTable       = 1146
	errTableAccessDenied = 1142
	errConnRefused       = 2003
)

func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, "journal request timed out", err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, "journal entry not found", err)
	}
	if errors.Is(err, gomysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return errs.Wrap(errs.ErrKindConnectionFailed, "journal connection lost", err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		var kind errs.ErrKind
		switch mysqlErr.Number {
		case errAccessDenied, errTableAccessDenied:
			kind = errs.ErrKindPermissionDenied
		case errConnRefused, errUnknownDatabase:
			kind = errs.ErrKindConnectionFailed
		default:
			kind = errs.ErrKindQueryFailed
		}
		return errs.Wrap(kind, "journal query failed", err).
			WithCode(strconv.Itoa(int(mysqlErr.Number)))
	}

	return errs.Wrap(errs.ErrKindUnknown, "journal request failed", err)
}
