// Package errs provides the unified error type used across bucketvis.
//
// Every subsystem (credential cache, storage driver, visibility service, …)
// wraps its native errors into *errs.Error before returning them to callers.
// Callers use the Is* predicates to handle errors without importing
// driver-specific packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindObjectNotFound, "failed to stat object", minioErr)
//
//	// In a handler, check the error kind:
//	if errs.IsAuthExchange(err) {
//	    http.Error(w, "session expired", http.StatusUnauthorized)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown             ErrKind = iota
	ErrKindNotFound                    // no bucket, no journal row
	ErrKindConnectionFailed            // cannot reach the backend
	ErrKindTimeout                     // context deadline / cancellation
	ErrKindQueryFailed                 // storage or journal operation error
	ErrKindInvalidInput                // bad arguments from the caller
	ErrKindPermissionDenied            // access denied by the backend
	ErrKindNotAuthenticated            // identity provider has no usable token
	ErrKindAuthExchange                // token → storage credential exchange failed
	ErrKindNoSuchBucketPolicy          // bucket has never had a policy set
	ErrKindPolicyWriteConflict         // backend rejected a policy write
	ErrKindObjectNotFound              // presign/stat targeted a missing object
	ErrKindToggleDisabled              // path is public through an ancestor
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindNotAuthenticated:
		return "not_authenticated"
	case ErrKindAuthExchange:
		return "auth_exchange"
	case ErrKindNoSuchBucketPolicy:
		return "no_such_bucket_policy"
	case ErrKindPolicyWriteConflict:
		return "policy_write_conflict"
	case ErrKindObjectNotFound:
		return "object_not_found"
	case ErrKindToggleDisabled:
		return "toggle_disabled"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all bucketvis subsystems.
// Drivers produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Code    string // backend-provided error code (e.g. "AccessDenied"), if any
	Cause   error  // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// WithCode returns e with the backend error code attached.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result
// (missing bucket, unknown journal entry, …).
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return kindOf(err) == ErrKindPermissionDenied
}

// IsNotAuthenticated reports whether the identity provider could not supply a token.
func IsNotAuthenticated(err error) bool {
	return kindOf(err) == ErrKindNotAuthenticated
}

// IsAuthExchange reports whether obtaining storage credentials failed.
func IsAuthExchange(err error) bool {
	return kindOf(err) == ErrKindAuthExchange
}

// IsNoSuchBucketPolicy reports whether the bucket has no policy document yet.
func IsNoSuchBucketPolicy(err error) bool {
	return kindOf(err) == ErrKindNoSuchBucketPolicy
}

// IsPolicyWriteConflict reports whether the backend rejected a policy write.
// Callers should re-resolve and retry manually.
func IsPolicyWriteConflict(err error) bool {
	return kindOf(err) == ErrKindPolicyWriteConflict
}

// IsObjectNotFound reports whether err targets a missing object.
func IsObjectNotFound(err error) bool {
	return kindOf(err) == ErrKindObjectNotFound
}

// IsToggleDisabled reports whether a visibility toggle was refused.
func IsToggleDisabled(err error) bool {
	return kindOf(err) == ErrKindToggleDisabled
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

// CodeOf returns the backend error code carried by err, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
