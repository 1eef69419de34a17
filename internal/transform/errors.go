package transform

import "errors"

var (
	// ErrInvalidParameter is returned when transform parameters are outside
	// their valid ranges. Callers treat this as a configuration bug, not a
	// transient fault.
	ErrInvalidParameter = errors.New("invalid transform parameter")

	// ErrDomain is returned when an input value lies outside the transform's
	// domain (negative or non-finite).
	ErrDomain = errors.New("input outside transform domain")
)
