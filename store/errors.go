package store

import "errors"

// Sentinel errors for persistence operations.
var (
	// ErrSave is returned when the atomic write could not complete. The
	// previously persisted record, if any, is left untouched.
	ErrSave = errors.New("save failed")
	// ErrCorrupt is returned when the persisted record exists but cannot
	// be parsed.
	ErrCorrupt = errors.New("corrupt session record")
)
