package minio

import (
	"context"
	"errors"
	"net/http"

	"github.com/koustreak/bucketvis/internal/errs"
	minioErr "github.com/minio/minio-go/v7"
)

// staleCredentialCodes are answers meaning the signing credentials are no
// longer accepted.
var staleCredentialCodes = map[string]bool{
	"ExpiredToken":         true,
	"InvalidAccessKeyId":   true,
	"InvalidTokenId":       true,
	"TokenRefreshRequired": true,
}

// mapError translates a MinIO SDK error into a *errs.Error.
// S3 error codes take precedence over HTTP status codes; anything
// unrecognized keeps its backend code and message.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var resp minioErr.ErrorResponse
	if !errors.As(err, &resp) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}

	return errs.Wrap(kindOf(resp), msg, err).WithCode(resp.Code)
}

func kindOf(resp minioErr.ErrorResponse) errs.ErrKind {
	switch resp.Code {
	case minioErr.NoSuchBucketPolicy:
		return errs.ErrKindNoSuchBucketPolicy
	case "NoSuchKey":
		return errs.ErrKindObjectNotFound
	case "NoSuchBucket":
		return errs.ErrKindNotFound
	case "AccessDenied", "SignatureDoesNotMatch", "ExpiredToken", "InvalidAccessKeyId", "InvalidTokenId", "TokenRefreshRequired":
		return errs.ErrKindPermissionDenied
	case "OperationAborted", "ConditionalRequestConflict", "PreconditionFailed":
		return errs.ErrKindPolicyWriteConflict
	case "MalformedPolicy", "InvalidBucketName", "InvalidObjectName", "KeyTooLongError":
		return errs.ErrKindInvalidInput
	case "RequestTimeout", "SlowDown":
		return errs.ErrKindTimeout
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errs.ErrKindNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		return errs.ErrKindPermissionDenied
	case http.StatusConflict, http.StatusPreconditionFailed:
		return errs.ErrKindPolicyWriteConflict
	case http.StatusBadRequest:
		return errs.ErrKindInvalidInput
	}

	return errs.ErrKindUnknown
}
