package store

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// StoreFactory is a function type that creates a new local store.
// This is used to abstract the creation of the backend from the code using it.
type StoreFactory func() (LocalStore, error)

// LocalStore is the per-node storage of entries. At most one entry (the current
// winner) is stored per key.
//
// Implementations that advertise FeatureConflictResolution merge on Put, those
// that advertise FeatureVersionedDelete only delete when the request is at least as
// new as the stored entry. Raw backends without these features can be wrapped with
// NewMergingStore.
type LocalStore interface {
	// Put stores the entry. Merging implementations keep the winner of the stored
	// and the given entry, raw implementations overwrite.
	Put(entry Entry) (err error)
	// Get returns the stored entry for key, tombstones included.
	// The boolean return value indicates whether an entry was found.
	Get(key []byte) (entry Entry, loaded bool, err error)
	// Delete physically removes the entry for key. Versioned implementations only
	// remove the entry if its version is the same as or before the given version.
	Delete(key []byte, version Version) (err error)
	// GetAll returns a point-in-time copy of all stored entries, tombstones included.
	GetAll() (entries []Entry, err error)
	// SupportsFeature checks if the implementation supports all given features.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)
	// Info returns metadata about the store. All values may be estimates.
	Info() (info Info)
	// Close releases all resources held by the store.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple   Implementation = "maple"
	ImplOak     Implementation = "oak"
	ImplMerging Implementation = "merging"
)

// Feature represents store features as bit flags
type Feature uint64

const (
	FeatureConflictResolution Feature = 1 << iota // Put keeps the winner of stored and given entry
	FeatureVersionedDelete                        // Delete is gated by the given version
	FeaturePersistence                            // entries survive a restart
)

func (f Feature) String() string {
	switch f {
	case FeatureConflictResolution:
		return "ConflictResolution"
	case FeatureVersionedDelete:
		return "VersionedDelete"
	case FeaturePersistence:
		return "Persistence"
	default:
		return "Unknown"
	}
}

// Info describes the state of a local store.
type Info struct {
	Entries           int            `json:"entries"`
	Tombstones        int            `json:"tombstones"`
	SizeBytes         int            `json:"size_bytes"`
	Implementation    Implementation `json:"implementation"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata,omitempty"`
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInternal        = errors.New("internal error")
	ErrUnsupported     = errors.New("unsupported operation")
)

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is makes errors.Is match the sentinel belonging to the return code.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case RetCInvalidArgument, RetCInvalidOperation:
		return target == ErrInvalidArgument
	case RetCInternalError:
		return target == ErrInternal
	case RetCUnsupportedOperation:
		return target == ErrUnsupported
	default:
		return false
	}
}

// NewError creates a new StoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying store.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCInvalidArgument                     // 4: An argument failed validation.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}
