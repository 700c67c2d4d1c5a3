package search

import "errors"

// Error kinds surfaced to callers of the search core. Callers match them
// with errors.Is; the wrapped message carries the offending input.
var (
	ErrMissingParameter = errors.New("missing parameter")
	ErrInvalidField     = errors.New("invalid field")
	ErrInvalidValue     = errors.New("invalid value")
	ErrInvalidBound     = errors.New("invalid bound")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsInputError reports whether err was caused by caller input rather than
// the backing store.
func IsInputError(err error) bool {
	return errors.Is(err, ErrMissingParameter) ||
		errors.Is(err, ErrInvalidField) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrInvalidBound)
}
