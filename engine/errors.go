package engine

import (
	"errors"
	"fmt"
)

// Errors returned by Store implementations.
var (
	// ErrConcurrentModification is returned when a conditional write finds
	// a seq other than the expected one.
	ErrConcurrentModification = errors.New("arbor: item was modified concurrently")

	// ErrItemNotFound is returned when modifying or removing an item that
	// is not live.
	ErrItemNotFound = errors.New("arbor: item not found")

	// ErrParentNotFound is returned when a write references a parent that
	// is not live.
	ErrParentNotFound = errors.New("arbor: parent not found")

	// ErrUnsupportedMutation is returned for a Mutation of a kind that does
	// not write.
	ErrUnsupportedMutation = errors.New("arbor: unsupported mutation")
)

// Code classifies a failed request on the wire.
type Code int

// Wire error codes.
const (
	CodeUnknown Code = iota
	CodeInvalidSemantics
	CodeUnknownParent
	CodeStoreFailure
	CodeInvalidPacket
	CodeAuthFailed
)

var codeNames = map[Code]string{
	CodeUnknown:          "Unknown",
	CodeInvalidSemantics: "InvalidSemantics",
	CodeUnknownParent:    "UnknownParent",
	CodeStoreFailure:     "StoreFailure",
	CodeInvalidPacket:    "InvalidPacket",
	CodeAuthFailed:       "AuthFailed",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Reasons reported by the engine.
const (
	ReasonListNeedsItem = "at least one item required"
	ReasonUnknownParent = "cannot insert new item into unknown parent"
	ReasonUnsupported   = "unsupported operation"
	ReasonMissingID     = "item id required"
	ReasonDuplicateItem = "item listed more than once"
	ReasonUnknownItem   = "cannot change unknown item"
	ReasonCannotMove    = "modify cannot change the parent of an item"
	ReasonConflict      = "concurrent modification, retry"
)

// OpError is a request failure with a wire code and a reason for the
// client.
type OpError struct {
	Code   Code
	Reason string
	Err    error
}

// NewOpError returns an OpError without an underlying cause.
func NewOpError(code Code, reason string) *OpError {
	return &OpError{Code: code, Reason: reason}
}

func (e *OpError) Error() string {
	if e.Err != nil && e.Reason == "" {
		return e.Err.Error()
	}
	return e.Reason
}

func (e *OpError) Unwrap() error { return e.Err }

// CodeOf returns the wire code for err. Errors that carry no code are
// CodeUnknown.
func CodeOf(err error) Code {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Code
	}
	switch {
	case errors.Is(err, ErrParentNotFound):
		return CodeUnknownParent
	case errors.Is(err, ErrItemNotFound):
		return CodeInvalidSemantics
	default:
		return CodeUnknown
	}
}

// storeFailure wraps an error returned by a Store.
func storeFailure(err error) *OpError {
	return &OpError{Code: CodeStoreFailure, Reason: err.Error(), Err: err}
}
