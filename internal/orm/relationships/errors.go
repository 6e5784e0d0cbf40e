package relationships

import "errors"

var (
	// ErrMaxDepthExceeded is returned when the maximum relationship depth is exceeded
	ErrMaxDepthExceeded = errors.New("maximum relationship depth exceeded")

	// ErrUnknownRelationship is returned when a relationship is not found
	ErrUnknownRelationship = errors.New("unknown relationship")

	// ErrUnresolvedTarget is returned when an association target was never resolved
	ErrUnresolvedTarget = errors.New("association target not resolved")

	// ErrInvalidKey is returned when a key value cannot be used for matching
	ErrInvalidKey = errors.New("invalid key value")
)
