package models

import "errors"

// Store-level sentinels. Repositories translate driver errors into these so
// services never depend on pgx.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrStateChanged is returned when a conditional update matched no row
	// because the record left the expected state.
	ErrStateChanged = errors.New("record state changed")
)
