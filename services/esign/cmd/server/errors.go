package main

import (
	"errors"
	"net/http"

	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/domain"
	"github.com/SOCR-470/hr-docs-pro-sub000/pkg/httpx"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTemplateNotFound),
		errors.Is(err, domain.ErrEmployeeNotFound),
		errors.Is(err, domain.ErrDocumentNotFound),
		errors.Is(err, domain.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrExpiredToken):
		return http.StatusGone
	case errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIdentityRejected):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrIdentityNotVerified):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrEmptySignature),
		errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Messages shown to unauthenticated signers. They never depend on which
// field failed or on storage errors.
var publicMessages = map[string]string{
	"DOCUMENT_UNAVAILABLE":     "document unavailable",
	"ALREADY_FINALIZED":        "document is no longer available for signing",
	"IDENTITY_REJECTED":        "identity could not be verified",
	"IDENTITY_NOT_VERIFIED":    "identity verification required",
	"EMPTY_SIGNATURE":          "signature is empty",
	"INVALID_SIGNATURE":        "signature could not be read",
	"RATE_LIMITED":             "too many attempts, try again later",
	"BAD_REQUEST":              "invalid request",
	"INVALID_STATE_TRANSITION": "document is no longer available for signing",
}

// unavailable reports errors shown to signers as one unavailable state.
func unavailable(err error) bool {
	return errors.Is(err, domain.ErrTokenNotFound) ||
		errors.Is(err, domain.ErrExpiredToken) ||
		errors.Is(err, domain.ErrDocumentNotFound) ||
		errors.Is(err, domain.ErrEmployeeNotFound) ||
		errors.Is(err, domain.ErrTemplateNotFound)
}

func (s *server) operatorError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := domain.ErrorCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "operator request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	httpx.WriteError(w, status, code, msg, nil)
}

// publicFailure builds the error object for unauthenticated callers.
func (s *server) publicFailure(w http.ResponseWriter, r *http.Request, err error) (int, map[string]any) {
	if unavailable(err) {
		s.logger.InfoContext(r.Context(), "document unavailable", "method", r.Method, "reason", domain.ErrorCode(err))
		return http.StatusNotFound, map[string]any{"code": "DOCUMENT_UNAVAILABLE", "message": publicMessages["DOCUMENT_UNAVAILABLE"], "details": nil}
	}
	status := statusFor(err)
	code := domain.ErrorCode(err)
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "public request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		return status, map[string]any{"code": "INTERNAL", "message": "internal error", "details": nil}
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	msg, ok := publicMessages[code]
	if !ok {
		msg = "request failed"
	}
	return status, map[string]any{"code": code, "message": msg, "details": nil}
}

func (s *server) publicError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := s.publicFailure(w, r, err)
	httpx.WriteJSON(w, status, map[string]any{"request_id": httpx.NewRequestID(), "error": body})
}
