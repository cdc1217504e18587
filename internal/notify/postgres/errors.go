package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/notify"
)

// PostgreSQL SQLSTATE codes the journal cares about.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrConnectionFailure  = "08006"
	pgErrConnectionRejected = "08004"
	pgErrInvalidPassword    = "28P01"
	pgErrInsufficientPriv   = "42501"
	pgErrUndefinedTable     = "42P01"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, describe("request"), err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, "journal entry not found", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		var kind errs.ErrKind
		switch pgErr.Code {
		case pgErrUndefinedTable:
			return errs.Wrap(errs.ErrKindQueryFailed, "journal table "+notify.Table+" does not exist", err).WithCode(pgErr.Code)
		case pgErrConnectionFailure, pgErrConnectionRejected:
			kind = errs.ErrKindConnectionFailed
		case pgErrInvalidPassword, pgErrInsufficientPriv:
			kind = errs.ErrKindPermissionDenied
		default:
			kind = errs.ErrKindQueryFailed
		}
		return errs.Wrap(kind, describe("query"), err).WithCode(pgErr.Code)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errs.Wrap(errs.ErrKindConnectionFailed, describe("connect"), err)
	}

	return errs.Wrap(errs.ErrKindUnknown, describe("request"), err)
}
