package domain

import "errors"

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrHomeLocationRequired is returned when an operation depends on a
	// configured home location and none is set.
	ErrHomeLocationRequired = errors.New("home location required")

	// ErrModelNotTrained is returned when statistical scoring is requested
	// but no trained model is configured.
	ErrModelNotTrained = errors.New("no trained model available")
)
