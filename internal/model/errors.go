package model

import "errors"

var (
	// ErrPriceUnavailable means no provider could supply a price this cycle.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrInsufficientHistory means there is not enough data to compute or train.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrInvalidConfiguration is returned by the mutation entry points.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrArtifactCorrupt means a model artifact is unreadable or inconsistent.
	ErrArtifactCorrupt = errors.New("model artifact corrupt")
)
