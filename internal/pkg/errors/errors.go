package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBranchAnomaly marks a category branch that violates the
	// parent/child invariant and was repaired to the catch-all.
	ErrBranchAnomaly = errors.New("category branch anomaly")
)
