package auth

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeLifetimeExceeded   = "SESSION_LIFETIME_EXCEEDED"
	TextCodeTokenMissing       = "TOKEN_MISSING"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeInternal           = "INTERNAL_ERROR"
	TextCodeAccountConflict    = "ACCOUNT_CONFLICT"
	TextCodeRoleNotFound       = "ROLE_NOT_FOUND"
	TextCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	TextCodeUnknownSubject     = "UNKNOWN_SUBJECT"
)

// ErrInvalidCredentials never tells apart unknown users from wrong passwords
var ErrInvalidCredentials = goerrors.New("Invalid Username or Password", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidCredentials)

// ErrTokenMalformed bad signature, wrong algorithm or missing claims
var ErrTokenMalformed = goerrors.New("Could not validate credentials", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenMalformed)

// ErrTokenExpired the access window has passed
var ErrTokenExpired = goerrors.New("Token has expired", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenExpired)

// ErrLifetimeExceeded the absolute session ceiling has passed, refresh will never succeed
var ErrLifetimeExceeded = goerrors.New("Maximum session lifetime exceeded. Please log in again.", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeLifetimeExceeded)

// ErrMissingToken request carried no session token
var ErrMissingToken = goerrors.New("Not authenticated", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenMissing)

// ErrUnknownSubject the session belongs to an account that no longer exists
var ErrUnknownSubject = goerrors.New("Could not validate credentials", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeUnknownSubject)

// ErrForbidden the session lacks a required role
var ErrForbidden = goerrors.New("Insufficient role", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeForbidden)

// ErrInternal is returned when the caller proved identity but we failed to record it
var ErrInternal = goerrors.New("Internal Server Error", goerrors.CategoryInternal).
	WithCode(goerrors.CodeInternal).
	WithTextCode(TextCodeInternal)

// ErrAccountConflict concurrent creation of the same username, safe to retry
var ErrAccountConflict = goerrors.New("account was modified concurrently, retry", goerrors.CategoryConflict).
	WithCode(goerrors.CodeConflict).
	WithTextCode(TextCodeAccountConflict)

// ErrRoleNotFound unknown role name
var ErrRoleNotFound = goerrors.New("role not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound).
	WithTextCode(TextCodeRoleNotFound)

// ErrTooManyRequests login throttle rejection
var ErrTooManyRequests = goerrors.New("Too many login attempts, try again later", goerrors.CategoryRateLimit).
	WithCode(http.StatusTooManyRequests).
	WithTextCode(TextCodeTooManyRequests)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNoEmptyString empty password
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword password does not match stored hash
var ErrMismatchedHashAndPassword = goerrors.New("mismatched hash and password", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsLifetimeExceededError reports absolute lifetime failures
func IsLifetimeExceededError(err error) bool {
	return hasTextCode(err, TextCodeLifetimeExceeded)
}

// IsAccountConflictError reports a retryable username conflict
func IsAccountConflictError(err error) bool {
	return hasTextCode(err, TextCodeAccountConflict)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}
