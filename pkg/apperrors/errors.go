// Package apperrors defines the sentinel errors shared across the engine.
package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrOverAllocation      = errors.New("allocation exceeds total quantity")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInsufficientData    = errors.New("insufficient data to score")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Kind is a stable label for an error category. The health tracker aggregates
// error counts by kind, and the HTTP layer maps kinds to status codes.
type Kind string

const (
	KindNotFound            Kind = "not-found"
	KindValidation          Kind = "validation"
	KindInsufficientStock   Kind = "insufficient-stock"
	KindOverAllocation      Kind = "over-allocation"
	KindInvalidTransition   Kind = "invalid-transition"
	KindInsufficientData    Kind = "insufficient-data"
	KindUpstreamUnavailable Kind = "upstream-unavailable"
	KindUnknown             Kind = "unknown"
)

// KindOf classifies err against the sentinel errors above. Wrapped errors are
// matched with errors.Is, so call sites can annotate with fmt.Errorf("%w").
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrOverAllocation):
		return KindOverAllocation
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrInsufficientData):
		return KindInsufficientData
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstreamUnavailable
	default:
		return KindUnknown
	}
}
