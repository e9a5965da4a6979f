// Package lsmerrors defines the sentinel errors shared across the store's
// layers. Callers should compare against these with errors.Is; lower
// layers wrap the underlying cause with fmt.Errorf("...: %w", err).
package lsmerrors

import "errors"

var (
	// ErrKeyNotFound is returned when a lookup finds no live value for a key.
	ErrKeyNotFound = errors.New("lsmkv: key not found")

	// ErrDuplicateKey is returned when an SSTable is built from input that
	// is not strictly increasing by key.
	ErrDuplicateKey = errors.New("lsmkv: duplicate or out-of-order key")

	// ErrCorruptFrame is returned when a command frame fails to decode:
	// a length mismatch, an unknown kind byte, or a value frame present
	// or absent contrary to what its kind requires.
	ErrCorruptFrame = errors.New("lsmkv: corrupt command frame")

	// ErrCorruptTable is returned when an SSTable's footer is missing,
	// too short, or carries the wrong magic number.
	ErrCorruptTable = errors.New("lsmkv: corrupt sstable")

	// ErrIllegalState is returned when an operation is attempted on a
	// closed DB, or Close is called more than once.
	ErrIllegalState = errors.New("lsmkv: illegal state")
)
