package service

import "errors"

var (
	ErrMalformedToken        = errors.New("malformed token")
	ErrSignatureInvalid      = errors.New("token signature invalid")
	ErrExpired               = errors.New("token expired")
	ErrRevoked               = errors.New("token revoked")
	ErrScopeInsufficient     = errors.New("insufficient scope")
	ErrDependencyUnavailable = errors.New("token store unavailable")
	ErrCredentialMissing     = errors.New("credential missing")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidUser        = errors.New("invalid user")
)

// Stable machine-readable reasons returned to clients.
const (
	ReasonCredentialMissing     = "credential_missing"
	ReasonMalformedToken        = "token_malformed"
	ReasonSignatureInvalid      = "signature_invalid"
	ReasonExpired               = "token_expired"
	ReasonRevoked               = "token_revoked"
	ReasonScopeInsufficient     = "scope_insufficient"
	ReasonDependencyUnavailable = "dependency_unavailable"
	ReasonUnauthorized          = "unauthorized"
)

// Reason maps an error from the token path to its stable reason string.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrDependencyUnavailable):
		return ReasonDependencyUnavailable
	case errors.Is(err, ErrCredentialMissing):
		return ReasonCredentialMissing
	case errors.Is(err, ErrSignatureInvalid):
		return ReasonSignatureInvalid
	case errors.Is(err, ErrExpired):
		return ReasonExpired
	case errors.Is(err, ErrRevoked):
		return ReasonRevoked
	case errors.Is(err, ErrScopeInsufficient):
		return ReasonScopeInsufficient
	case errors.Is(err, ErrMalformedToken):
		return ReasonMalformedToken
	default:
		return ReasonUnauthorized
	}
}

// Refreshable reports whether a failed access token may be replaced using
// the refresh token. Forged and malformed tokens are terminal.
func Refreshable(err error) bool {
	return errors.Is(err, ErrExpired) || errors.Is(err, ErrRevoked)
}

// Forged reports errors that indicate a structurally invalid or forged credential.
func Forged(err error) bool {
	return errors.Is(err, ErrSignatureInvalid) || errors.Is(err, ErrMalformedToken)
}
