package kv

import (
	"fmt"
	"math"
)

// --------------------------------------------------------------------------
// Status Codes
// --------------------------------------------------------------------------

// Status is the closed set of outcome codes returned by every backend
// operation. Call-level failures are communicated through a Status; per-item
// outcomes are communicated through sentinel sizes (see KeyNotFound,
// BufTooSmall and NoMoreKeys).
type Status uint8

const (
	StatusOK           Status = iota // Operation executed successfully.
	StatusInvalidType                // Unknown backend type.
	StatusInvalidConf                // Invalid configuration document.
	StatusInvalidArg                 // Invalid argument (size vector mismatch, zero-length key, ...).
	StatusNotFound                   // Key not found (single-key convenience paths).
	StatusSizeError                  // Provided buffer too small.
	StatusKeyExists                  // Key already exists (single-key NEW_ONLY).
	StatusNotSupported               // Operation not supported by the backend.
	StatusInvalidMode                // Mode contains bits the backend does not support.
	StatusCorruption                 // Data corruption detected.
	StatusIOError                    // I/O error from the underlying engine or snapshot files.
	StatusTimedOut                   // A WAIT operation timed out.
	StatusMigrated                   // Backend has been migrated and is terminal.
	StatusOther                      // Any other error.
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInvalidType:
		return "InvalidType"
	case StatusInvalidConf:
		return "InvalidConfig"
	case StatusInvalidArg:
		return "InvalidArgs"
	case StatusNotFound:
		return "NotFound"
	case StatusSizeError:
		return "BufferSize"
	case StatusKeyExists:
		return "KeyExists"
	case StatusNotSupported:
		return "OperationUnsupported"
	case StatusInvalidMode:
		return "ModeUnsupported"
	case StatusCorruption:
		return "Corruption"
	case StatusIOError:
		return "IOError"
	case StatusTimedOut:
		return "TimedOut"
	case StatusMigrated:
		return "Migrated"
	default:
		return "Other"
	}
}

// Err converts the status into an error for use at API boundaries
// (CLI, tooling). It returns nil for StatusOK.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return &StatusError{Code: s}
}

// StatusError wraps a non-OK Status as a Go error.
type StatusError struct {
	Code Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kv: operation failed with status %s", e.Code)
}

// --------------------------------------------------------------------------
// Sentinel Sizes
// --------------------------------------------------------------------------

// Sentinel values written into output size vectors to report per-item
// outcomes. They are taken from the top of the uint64 range so they can
// never collide with a legitimate key or value size.
const (
	// KeyNotFound marks a slot whose key was not present in the database.
	KeyNotFound uint64 = math.MaxUint64
	// BufTooSmall marks a slot whose output buffer could not hold the item.
	BufTooSmall uint64 = math.MaxUint64 - 1
	// NoMoreKeys marks the unused trailing slots of a listing.
	NoMoreKeys uint64 = math.MaxUint64 - 2
)
