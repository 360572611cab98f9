package store

import "errors"

// Conditional write failures are reported with the engine's sentinel
// errors (engine.ErrConcurrentModification, engine.ErrItemNotFound,
// engine.ErrParentNotFound). The errors below are specific to DynamoDB.
var (
	// ErrBatchTooLarge is returned when a batch needs more actions than
	// one TransactWriteItems call accepts.
	ErrBatchTooLarge = errors.New("arbor: batch exceeds transaction limit")

	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("arbor: corrupt item record")
)
