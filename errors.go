package auth

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	TextCodeSessionExpired     = "SESSION_EXPIRED"
	TextCodeSessionNotFound    = "SESSION_NOT_FOUND"
	TextCodeSessionConflict    = "SESSION_CONFLICT"
	TextCodeCSRFMismatch       = "CSRF_MISMATCH"
	TextCodePermissionDenied   = "PERMISSION_DENIED"
	TextCodeRoleMismatch       = "ROLE_MISMATCH"
	TextCodeLinkageConflict    = "LINKAGE_CONFLICT"
	TextCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	TextCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	TextCodeUsernameTaken      = "USERNAME_TAKEN"
	TextCodeSelfModification   = "SELF_MODIFICATION"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeUnknownUserType    = "UNKNOWN_USER_TYPE"
)

// ErrAuthenticationFailed covers unknown usernames, inactive accounts and
// wrong passwords alike so callers cannot tell them apart.
var ErrAuthenticationFailed = goerrors.New("invalid username or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

var ErrSessionExpired = goerrors.New("session expired, please log in again", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrSessionNotFound = goerrors.New("session not found", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionConflict is returned when a session update lost the race too
// many times in a row.
var ErrSessionConflict = goerrors.New("session was modified concurrently", goerrors.CategoryConflict).
	WithTextCode(TextCodeSessionConflict).
	WithCode(goerrors.CodeConflict)

var ErrCSRFMismatch = goerrors.New("invalid request token", goerrors.CategoryAuthz).
	WithTextCode(TextCodeCSRFMismatch).
	WithCode(goerrors.CodeForbidden)

var ErrPermissionDenied = goerrors.New("permission denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodePermissionDenied).
	WithCode(goerrors.CodeForbidden)

// ErrRoleMismatch is returned when a profile link is requested for an
// account that is not a faculty account.
var ErrRoleMismatch = goerrors.New("only faculty accounts can be linked to a staff profile", goerrors.CategoryValidation).
	WithTextCode(TextCodeRoleMismatch).
	WithCode(goerrors.CodeBadRequest)

var ErrLinkageConflict = goerrors.New("staff profile link conflicts with a concurrent change", goerrors.CategoryConflict).
	WithTextCode(TextCodeLinkageConflict).
	WithCode(goerrors.CodeConflict)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrUsernameTaken = goerrors.New("username already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(goerrors.CodeConflict)

// ErrSelfModification stops administrators from editing or deleting the
// account they are logged in with.
var ErrSelfModification = goerrors.New("you cannot modify your own account here", goerrors.CategoryValidation).
	WithTextCode(TextCodeSelfModification).
	WithCode(goerrors.CodeBadRequest)

var ErrNoEmptyString = goerrors.New("password can't be an empty string", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

var ErrUnknownUserType = goerrors.New("unknown user type", goerrors.CategoryValidation).
	WithTextCode(TextCodeUnknownUserType).
	WithCode(goerrors.CodeBadRequest)

// NewRateLimitedError reports a blocked login. The message is rounded up
// to whole minutes; the exact seconds travel in the retry_after metadata.
func NewRateLimitedError(retryAfterSeconds int) *goerrors.Error {
	if retryAfterSeconds < 0 {
		retryAfterSeconds = 0
	}
	minutes := (retryAfterSeconds + 59) / 60
	msg := fmt.Sprintf("Too many login attempts. Please try again in %d minute(s).", minutes)
	return goerrors.New(msg, goerrors.CategoryRateLimit).
		WithTextCode(TextCodeTooManyAttempts).
		WithCode(http.StatusTooManyRequests).
		WithMetadata(map[string]any{
			"retry_after": retryAfterSeconds,
		})
}

// NewStoreUnavailableError wraps a persistence failure. Callers must treat
// it as fatal to the request and never as an authorization decision.
func NewStoreUnavailableError(err error, operation string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "persistent store unavailable").
		WithTextCode(TextCodeStoreUnavailable).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{
			"operation": operation,
		})
}

// storeError wraps err unless it already carries a domain error.
func storeError(err error, operation string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return NewStoreUnavailableError(err, operation)
}

// HasTextCode reports whether err is a rich error carrying code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

func IsRateLimited(err error) bool {
	return HasTextCode(err, TextCodeTooManyAttempts)
}

func IsLinkageConflict(err error) bool {
	return HasTextCode(err, TextCodeLinkageConflict)
}

func IsStoreUnavailable(err error) bool {
	return HasTextCode(err, TextCodeStoreUnavailable)
}

func IsSessionExpired(err error) bool {
	return HasTextCode(err, TextCodeSessionExpired)
}

func IsSessionNotFound(err error) bool {
	return HasTextCode(err, TextCodeSessionNotFound)
}

// RetryAfter extracts the seconds remaining from a rate limited error.
func RetryAfter(err error) (int, bool) {
	if !IsRateLimited(err) {
		return 0, false
	}
	var richErr *goerrors.Error
	goerrors.As(err, &richErr)
	seconds, ok := richErr.Metadata["retry_after"].(int)
	return seconds, ok
}

// StatusCode picks the HTTP status for err, 500 when it carries none.
func StatusCode(err error) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code != 0 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}
