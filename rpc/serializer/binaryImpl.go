package serializer

import (
	"encoding/binary"

	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/cockroachdb/errors"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IEntrySerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IEntrySerializer using a custom binary format:
//
//	| count (4) | entry | entry | ...
//
// with every entry encoded as
//
//	| flags (1) | key len (4) | key | version (8) | timestamp (8) | max age (8, optional) | value len (4, optional) | value (optional) |
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasValue  byte = 1 << 0
	hasMaxAge byte = 1 << 1
)

// fixed size of an entry without optional fields and key bytes
const entryHeaderSize = 1 + 4 + 8 + 8

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IEntrySerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(entries []store.Entry) ([]byte, error) {
	// Calculate total size needed
	totalSize := 4
	for _, e := range entries {
		totalSize += b.sizeBytes(e)
	}
	result := make([]byte, totalSize)

	binary.BigEndian.PutUint32(result[0:4], uint32(len(entries)))
	pos := 4

	for _, e := range entries {
		var flags byte
		flagsPos := pos
		pos++

		// Write key
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(e.Key)))
		pos += 4
		copy(result[pos:pos+len(e.Key)], e.Key)
		pos += len(e.Key)

		// Write version and timestamp
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(e.Version))
		pos += 8
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(e.Timestamp))
		pos += 8

		// Handle MaxAge
		if e.HasMaxAge() {
			flags |= hasMaxAge
			binary.BigEndian.PutUint64(result[pos:pos+8], uint64(e.MaxAgeInMs))
			pos += 8
		}

		// Handle Value (absent for tombstones)
		if !e.IsTombstone() {
			flags |= hasValue
			binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(e.Value)))
			pos += 4
			copy(result[pos:pos+len(e.Value)], e.Value)
			pos += len(e.Value)
		}

		// Set flags byte after knowing which fields are present
		result[flagsPos] = flags
	}

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte) ([]store.Entry, error) {
	if len(data) < 4 {
		return nil, errors.New("data too short for entry count")
	}
	count := int(binary.BigEndian.Uint32(data[0:4]))
	pos := 4

	// every entry needs at least entryHeaderSize bytes
	if count > (len(data)-pos)/entryHeaderSize {
		return nil, errors.Newf("data too short for %d entries", count)
	}

	entries := make([]store.Entry, 0, count)
	for i := 0; i < count; i++ {
		if pos+entryHeaderSize > len(data) {
			return nil, errors.Newf("data too short for header of entry %d", i)
		}

		flags := data[pos]
		pos++
		if flags&^(hasValue|hasMaxAge) != 0 {
			return nil, errors.Newf("unknown flags 0x%02x in entry %d", flags, i)
		}

		// Read key
		keyLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if keyLen < 0 || pos+keyLen+16 > len(data) {
			return nil, errors.Newf("data too short for key of entry %d", i)
		}
		e := store.Entry{Key: make([]byte, keyLen)}
		copy(e.Key, data[pos:pos+keyLen])
		pos += keyLen

		// Read version and timestamp
		e.Version = store.Version(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8
		e.Timestamp = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
		pos += 8

		// Read MaxAge if present
		if flags&hasMaxAge != 0 {
			if pos+8 > len(data) {
				return nil, errors.Newf("data too short for max age of entry %d", i)
			}
			e.MaxAgeInMs = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
			pos += 8
		}

		// Read Value if present - create an empty slice (not nil) if length is 0
		if flags&hasValue != 0 {
			if pos+4 > len(data) {
				return nil, errors.Newf("data too short for value length of entry %d", i)
			}
			valueLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
			pos += 4
			if valueLen < 0 || pos+valueLen > len(data) {
				return nil, errors.Newf("data too short for value of entry %d", i)
			}
			e.Value = make([]byte, valueLen)
			copy(e.Value, data[pos:pos+valueLen])
			pos += valueLen
		}

		entries = append(entries, e)
	}

	if pos != len(data) {
		return nil, errors.Newf("%d trailing bytes after %d entries", len(data)-pos, count)
	}
	return entries, nil
}

func (b binarySerializerImpl) ContentType() string {
	return ContentTypeBinary
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// sizeBytes calculates the number of bytes needed to serialize an entry
func (b binarySerializerImpl) sizeBytes(e store.Entry) int {
	size := entryHeaderSize + len(e.Key)
	if e.HasMaxAge() {
		size += 8
	}
	if !e.IsTombstone() {
		size += 4 + len(e.Value)
	}
	return size
}
