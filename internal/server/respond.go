package server

import (
	"encoding/json"
	"net/http"

	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/logger"
)

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func statusFor(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindNotAuthenticated:
		return http.StatusUnauthorized
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindNotFound, errs.ErrKindObjectNotFound:
		return http.StatusNotFound
	case errs.ErrKindPolicyWriteConflict, errs.ErrKindToggleDisabled:
		return http.StatusConflict
	case errs.ErrKindAuthExchange, errs.ErrKindConnectionFailed, errs.ErrKindQueryFailed, errs.ErrKindNoSuchBucketPolicy:
		return http.StatusBadGateway
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	code := statusFor(kind)
	if code >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, map[string]any{"kind": kind.String()})
	}
	respondJSON(w, code, errorResponse{
		Error:   kind.String(),
		Code:    errs.CodeOf(err),
		Message: err.Error(),
	})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
