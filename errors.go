package cloak

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidSignature = "cloak_invalid_signature"
	TextCodeSignatureExpired = "cloak_signature_expired"
	TextCodeTokenReplayed    = "cloak_token_replayed"
	TextCodeUserNotFound     = "cloak_user_not_found"
	TextCodeNoUsersFound     = "cloak_no_users_found"
	TextCodeCloakForbidden   = "cloak_forbidden"
	TextCodeCloakSelf        = "cloak_self"
	TextCodeMissingTarget    = "cloak_missing_target"
	TextCodeUnauthenticated  = "cloak_unauthenticated"
	TextCodeEmptySubject     = "cloak_empty_subject"
	TextCodeSigningKey       = "cloak_signing_key_too_short"
	TextCodeNoSession        = "cloak_no_session"
)

// ErrInvalidSignature is returned when a login token fails verification.
var ErrInvalidSignature = errors.New("invalid token signature", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidSignature).
	WithCode(errors.CodeForbidden)

// ErrSignatureExpired is returned when a login token is older than the max age.
var ErrSignatureExpired = errors.New("token signature expired", errors.CategoryAuth).
	WithTextCode(TextCodeSignatureExpired).
	WithCode(errors.CodeForbidden)

// ErrTokenReplayed is returned when a single use token is presented twice.
var ErrTokenReplayed = errors.New("token already used", errors.CategoryAuth).
	WithTextCode(TextCodeTokenReplayed).
	WithCode(errors.CodeForbidden)

// ErrUserNotFound is returned when a directory lookup yields no principal.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrNoUsersFound is returned when the directory is empty.
var ErrNoUsersFound = errors.New("no users found", errors.CategoryNotFound).
	WithTextCode(TextCodeNoUsersFound).
	WithCode(errors.CodeNotFound)

// ErrCloakForbidden is returned when the policy denies a cloak request.
var ErrCloakForbidden = errors.New("You are not allowed to cloak as this user", errors.CategoryAuthz).
	WithTextCode(TextCodeCloakForbidden).
	WithCode(errors.CodeForbidden)

// ErrCloakSelf is returned when a principal tries to cloak as itself.
var ErrCloakSelf = errors.New("You can not cloak as yourself", errors.CategoryBadInput).
	WithTextCode(TextCodeCloakSelf).
	WithCode(errors.CodeBadRequest)

// ErrMissingTarget is returned when a cloak request does not name a user.
var ErrMissingTarget = errors.New("You need to pass a pk POST parameter, or include it in the URL", errors.CategoryBadInput).
	WithTextCode(TextCodeMissingTarget).
	WithCode(errors.CodeBadRequest)

// ErrUnauthenticated is returned when a route needs a logged in principal.
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

var ErrEmptySubject = errors.New("token subject is required", errors.CategoryBadInput).
	WithTextCode(TextCodeEmptySubject).
	WithCode(errors.CodeBadRequest)

var ErrSigningKeyTooShort = errors.New("signing key must be at least 16 bytes", errors.CategoryBadInput).
	WithTextCode(TextCodeSigningKey).
	WithCode(errors.CodeBadRequest)

// ErrNoSession is returned when a handler runs without the session
// middleware in front of it.
var ErrNoSession = errors.New("request session is not loaded", errors.CategoryInternal).
	WithTextCode(TextCodeNoSession).
	WithCode(errors.CodeInternal)

// IsError reports whether err carries the same text code as target.
func IsError(err error, target *errors.Error) bool {
	if err == nil || target == nil {
		return false
	}

	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}

	return richErr.TextCode == target.TextCode
}

// IsLoginRejected groups the failures that must look identical to the
// bearer of a login link.
func IsLoginRejected(err error) bool {
	return IsError(err, ErrInvalidSignature) ||
		IsError(err, ErrSignatureExpired) ||
		IsError(err, ErrTokenReplayed)
}
