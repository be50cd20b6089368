package model

import "errors"

// Failure kinds shared by every engine. Each guard runs before any append, so
// a returned error means nothing was written.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not_found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid_argument")
	ErrWouldOrphan     = errors.New("would_orphan_scope")
	ErrRateLimited     = errors.New("rate_limited")
	ErrDenylisted      = errors.New("denylisted")
)

// ErrorCode maps a failure to its wire code. Unknown errors are server errors.
func ErrorCode(err error) string {
	for _, known := range []error{
		ErrUnauthenticated, ErrUnauthorized, ErrNotFound, ErrConflict,
		ErrInvalidArgument, ErrWouldOrphan, ErrRateLimited, ErrDenylisted,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "server_error"
}
