package domain

import "errors"

var (
	// ErrDataUnavailable means surah text for a script could not be loaded
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrPersistence means a highlight store call failed
	ErrPersistence = errors.New("persistence failure")

	// ErrIndexMismatch means a highlight points past the words of its resolved ayah
	ErrIndexMismatch = errors.New("word index mismatch")

	// ErrPageNotFound means no page in the index contains the requested ayah
	ErrPageNotFound = errors.New("page not found")

	ErrInvalidRef           = errors.New("invalid ayah reference")
	ErrInvalidCategory      = errors.New("invalid category")
	ErrWholeAyahUnsupported = errors.New("category cannot highlight a whole ayah")
	ErrNotFound             = errors.New("not found")
)
