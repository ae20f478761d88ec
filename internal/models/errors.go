package models

import "errors"

// Custom errors
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateSnapshot = errors.New("snapshot already captured for race, entry and interval")
	ErrInvalidInterval   = errors.New("invalid interval label")
	ErrRaceClosed        = errors.New("race is finished or missed")
	ErrInvalidID         = errors.New("invalid ID format")
)
