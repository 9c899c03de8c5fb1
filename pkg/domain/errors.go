package domain

import "errors"

var (
	ErrTemplateNotFound       = errors.New("template not found")
	ErrEmployeeNotFound       = errors.New("employee not found")
	ErrDocumentNotFound       = errors.New("document not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrTokenNotFound          = errors.New("token not found")
	ErrExpiredToken           = errors.New("token expired")
	ErrAlreadyFinalized       = errors.New("document already finalized")
	ErrIdentityRejected       = errors.New("identity could not be verified")
	ErrIdentityNotVerified    = errors.New("identity not verified")
	ErrEmptySignature         = errors.New("signature is empty")
	ErrInvalidSignature       = errors.New("signature payload invalid")
	ErrRateLimited            = errors.New("too many attempts")
	ErrInvalidArgument        = errors.New("invalid argument")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrTemplateNotFound, "TEMPLATE_NOT_FOUND"},
	{ErrEmployeeNotFound, "EMPLOYEE_NOT_FOUND"},
	{ErrDocumentNotFound, "DOCUMENT_NOT_FOUND"},
	{ErrInvalidStateTransition, "INVALID_STATE_TRANSITION"},
	{ErrTokenNotFound, "TOKEN_NOT_FOUND"},
	{ErrExpiredToken, "EXPIRED_TOKEN"},
	{ErrAlreadyFinalized, "ALREADY_FINALIZED"},
	{ErrIdentityRejected, "IDENTITY_REJECTED"},
	{ErrIdentityNotVerified, "IDENTITY_NOT_VERIFIED"},
	{ErrEmptySignature, "EMPTY_SIGNATURE"},
	{ErrInvalidSignature, "INVALID_SIGNATURE"},
	{ErrRateLimited, "RATE_LIMITED"},
	{ErrInvalidArgument, "BAD_REQUEST"},
}

// ErrorCode maps a domain failure to its stable code. Anything else is INTERNAL.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "INTERNAL"
}

// IsExpected reports whether err belongs to the user-facing taxonomy.
func IsExpected(err error) bool {
	return ErrorCode(err) != "INTERNAL"
}
