package internal

import (
	"encoding/binary"

	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Row format
// --------------------------------------------------------------------------
//
// Every row of the pebble database holds exactly one entry. The row key is the
// raw entry key, the row value has the following layout (big endian):
//
//	| magic (1) | format (1) | flags (1) | version (8) | timestamp (8) | max age (8, optional) | value (rest, optional) |
//
// A missing value flag marks a tombstone, an empty value with the flag set is a
// live entry with an empty value.

const (
	Magic         byte = 0xD5
	FormatVersion byte = 1

	headerSize = 3 + 8 + 8
)

// Bit flags to indicate which optional fields are present
const (
	hasValue  byte = 1 << 0
	hasMaxAge byte = 1 << 1
)

// ErrCorrupt is returned for rows that cannot be decoded
var ErrCorrupt = errors.New("corrupt row")

// Encode serializes the entry without its key.
func Encode(e store.Entry) []byte {
	size := headerSize
	var flags byte
	if e.HasMaxAge() {
		flags |= hasMaxAge
		size += 8
	}
	if !e.IsTombstone() {
		flags |= hasValue
		size += len(e.Value)
	}

	buf := make([]byte, size)
	buf[0] = Magic
	buf[1] = FormatVersion
	buf[2] = flags
	binary.BigEndian.PutUint64(buf[3:11], uint64(e.Version))
	binary.BigEndian.PutUint64(buf[11:19], uint64(e.Timestamp))

	pos := headerSize
	if flags&hasMaxAge != 0 {
		binary.BigEndian.PutUint64(buf[pos:pos+8], uint64(e.MaxAgeInMs))
		pos += 8
	}
	if flags&hasValue != 0 {
		copy(buf[pos:], e.Value)
	}
	return buf
}

// Decode restores the entry stored under key. The returned entry does not share
// memory with key or data.
func Decode(key, data []byte) (store.Entry, error) {
	if len(data) < headerSize {
		return store.Entry{}, errors.Wrapf(ErrCorrupt, "row too short: %d bytes", len(data))
	}
	if data[0] != Magic {
		return store.Entry{}, errors.Wrapf(ErrCorrupt, "invalid magic byte 0x%02x", data[0])
	}
	if data[1] != FormatVersion {
		return store.Entry{}, errors.Wrapf(ErrCorrupt, "unsupported format version %d", data[1])
	}

	flags := data[2]
	if flags&^(hasValue|hasMaxAge) != 0 {
		return store.Entry{}, errors.Wrapf(ErrCorrupt, "unknown flags 0x%02x", flags)
	}

	e := store.Entry{
		Key:       append([]byte(nil), key...),
		Version:   store.Version(binary.BigEndian.Uint64(data[3:11])),
		Timestamp: int64(binary.BigEndian.Uint64(data[11:19])),
	}

	pos := headerSize
	if flags&hasMaxAge != 0 {
		if len(data) < pos+8 {
			return store.Entry{}, errors.Wrap(ErrCorrupt, "truncated max age")
		}
		e.MaxAgeInMs = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
		if e.MaxAgeInMs <= 0 {
			return store.Entry{}, errors.Wrapf(ErrCorrupt, "invalid max age %d", e.MaxAgeInMs)
		}
	}

	if flags&hasValue != 0 {
		e.Value = make([]byte, len(data)-pos)
		copy(e.Value, data[pos:])
	} else if pos != len(data) {
		return store.Entry{}, errors.Wrapf(ErrCorrupt, "%d trailing bytes after tombstone", len(data)-pos)
	}

	return e, nil
}
