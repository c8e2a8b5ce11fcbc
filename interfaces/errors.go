package interfaces

import "errors"

var (
	// ErrEmptyUnderlying is returned when an underlying normalizes to nothing
	ErrEmptyUnderlying = errors.New("underlying is empty")
	// ErrNoContracts is returned when no option contract matches an underlying
	ErrNoContracts = errors.New("no option contracts matched")
	// ErrNotFound is returned when a stored record does not exist
	ErrNotFound = errors.New("not found")
)
