package tcx

import "errors"

var (
	// ErrStructure is returned when the document lacks a node the parser requires,
	// such as Activities/Activity.
	ErrStructure = errors.New("unexpected TCX structure")

	// ErrNotFound is returned when a query that must yield an element yields none.
	ErrNotFound = errors.New("element not found")

	// ErrInvalidValue is returned for text that cannot be coerced to the expected
	// type and for invalid arguments such as a non-positive averaging window.
	ErrInvalidValue = errors.New("invalid value")

	// ErrDomain is returned when the grade transform receives a finite ratio outside [-1, 1].
	ErrDomain = errors.New("value outside arcsine domain")
)
