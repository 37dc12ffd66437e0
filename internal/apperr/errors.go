// Package apperr holds the sentinel errors shared by the registry, the
// registrar API and the resolver. Callers match them with errors.Is.
package apperr

import "errors"

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidTag    = errors.New("invalid tag")
	ErrConflict      = errors.New("conflict")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrUpstreamFetch = errors.New("upstream fetch failure")
	ErrDenied        = errors.New("navigation denied")
	ErrRateLimited   = errors.New("rate limited")
)

// Code returns the stable wire code for err, or "internal" when err does
// not wrap one of the sentinels.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTag):
		return "invalid_tag"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUpstreamFetch):
		return "upstream_fetch"
	case errors.Is(err, ErrDenied):
		return "denied"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}

// FromCode is the inverse of Code. It returns nil for unknown codes.
func FromCode(code string) error {
	switch code {
	case "invalid_tag":
		return ErrInvalidTag
	case "invalid_input":
		return ErrInvalidInput
	case "conflict":
		return ErrConflict
	case "not_found":
		return ErrNotFound
	case "unauthorized":
		return ErrUnauthorized
	case "upstream_fetch":
		return ErrUpstreamFetch
	case "denied":
		return ErrDenied
	case "rate_limited":
		return ErrRateLimited
	default:
		return nil
	}
}
