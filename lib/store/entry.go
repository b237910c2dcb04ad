package store

import (
	"bytes"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Version
// --------------------------------------------------------------------------

// Version is a totally ordered logical timestamp. By convention it holds
// milliseconds since the unix epoch of the node that created the entry.
type Version int64

// Ordering is the result of comparing two versions.
type Ordering int

const (
	Before     Ordering = iota // the receiver is older than the argument
	Same                       // both versions are equal
	After                      // the receiver is newer than the argument
	Concurrent                 // reserved, a scalar version can never produce it
)

func (o Ordering) String() string {
	switch o {
	case Before:
		return "Before"
	case Same:
		return "Same"
	case After:
		return "After"
	case Concurrent:
		return "Concurrent"
	default:
		return "Unknown"
	}
}

// Compare returns the position of v relative to other.
func (v Version) Compare(other Version) Ordering {
	switch {
	case v < other:
		return Before
	case v > other:
		return After
	default:
		return Same
	}
}

// VersionAt returns the version for the given wall clock time.
func VersionAt(t time.Time) Version {
	return Version(t.UnixMilli())
}

// --------------------------------------------------------------------------
// Entry
// --------------------------------------------------------------------------

// Entry is an immutable versioned record. A nil Value marks the entry as a
// tombstone. A MaxAgeInMs of zero means the entry has no max age.
//
// Entries must be treated as read-only once created, a logical update is
// always a new Entry with a newer Version.
type Entry struct {
	Key        []byte  `json:"key"`
	Value      []byte  `json:"value"`
	Version    Version `json:"version"`
	Timestamp  int64   `json:"timestamp"`
	MaxAgeInMs int64   `json:"maxAgeInMs,omitempty"`
}

// NewEntry validates the arguments and returns a live entry. The key and value
// are copied. An empty (or nil) value results in a live entry with an empty value,
// use NewTombstone to create a delete marker.
func NewEntry(key, value []byte, version Version, timestamp int64, maxAgeInMs int64) (Entry, error) {
	if len(key) == 0 {
		return Entry{}, NewError(RetCInvalidArgument, "key must not be empty")
	}
	if maxAgeInMs < 0 {
		return Entry{}, NewError(RetCInvalidArgument, fmt.Sprintf("max age must be positive, got %dms", maxAgeInMs))
	}

	v := make([]byte, len(value))
	copy(v, value)

	return Entry{
		Key:        cloneBytes(key),
		Value:      v,
		Version:    version,
		Timestamp:  timestamp,
		MaxAgeInMs: maxAgeInMs,
	}, nil
}

// NewTombstone returns a delete marker for key.
func NewTombstone(key []byte, version Version, timestamp int64) (Entry, error) {
	if len(key) == 0 {
		return Entry{}, NewError(RetCInvalidArgument, "key must not be empty")
	}
	return Entry{
		Key:       cloneBytes(key),
		Version:   version,
		Timestamp: timestamp,
	}, nil
}

// Validate checks the invariants of an entry received from an untrusted source.
func (e Entry) Validate() error {
	if len(e.Key) == 0 {
		return NewError(RetCInvalidArgument, "entry key must not be empty")
	}
	if e.MaxAgeInMs < 0 {
		return NewError(RetCInvalidArgument, fmt.Sprintf("entry max age must be positive, got %dms", e.MaxAgeInMs))
	}
	return nil
}

// IsTombstone reports whether the entry represents a delete.
func (e Entry) IsTombstone() bool {
	return e.Value == nil
}

// HasMaxAge reports whether the entry carries its own max age.
func (e Entry) HasMaxAge() bool {
	return e.MaxAgeInMs > 0
}

// Age returns how long ago the entry was created by its origin node.
func (e Entry) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-e.Timestamp) * time.Millisecond
}

// Expired reports whether the entry must no longer be visible to readers and
// may be removed by the garbage collector:
//   - a tombstone older than tombstoneMaxAge
//   - any entry with a max age that is older than that max age
func (e Entry) Expired(now time.Time, tombstoneMaxAge time.Duration) bool {
	age := e.Age(now)
	if e.IsTombstone() && age > tombstoneMaxAge {
		return true
	}
	return e.HasMaxAge() && age > time.Duration(e.MaxAgeInMs)*time.Millisecond
}

// Visible reports whether a reader should see the entry's value.
func (e Entry) Visible(now time.Time, tombstoneMaxAge time.Duration) bool {
	return !e.IsTombstone() && !e.Expired(now, tombstoneMaxAge)
}

// Equal reports whether all fields match, including the raw bytes and
// whether the value is absent.
func (e Entry) Equal(other Entry) bool {
	return e.Version == other.Version &&
		e.Timestamp == other.Timestamp &&
		e.MaxAgeInMs == other.MaxAgeInMs &&
		e.IsTombstone() == other.IsTombstone() &&
		bytes.Equal(e.Key, other.Key) &&
		bytes.Equal(e.Value, other.Value)
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	c := e
	c.Key = cloneBytes(e.Key)
	if e.Value != nil {
		c.Value = make([]byte, len(e.Value))
		copy(c.Value, e.Value)
	}
	return c
}

func (e Entry) String() string {
	if e.IsTombstone() {
		return fmt.Sprintf("Entry{Key: %q, Tombstone, Version: %d, Timestamp: %d}", e.Key, e.Version, e.Timestamp)
	}
	return fmt.Sprintf("Entry{Key: %q, Value: %d bytes, Version: %d, Timestamp: %d, MaxAgeInMs: %d}",
		e.Key, len(e.Value), e.Version, e.Timestamp, e.MaxAgeInMs)
}

func cloneBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
