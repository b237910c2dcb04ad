package serializer

import (
	"bytes"
	"encoding/gob"

	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/cockroachdb/errors"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format
func NewGOBSerializer() IEntrySerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl implements the IEntrySerializer interface using gob encoding
type gobSerializerImpl struct {
}

// gobEntry carries an explicit value flag, gob does not distinguish nil and empty slices
type gobEntry struct {
	Key        []byte
	HasValue   bool
	Value      []byte
	Version    int64
	Timestamp  int64
	MaxAgeInMs int64
}

// gobBatch wraps the entries, so an empty batch is a valid gob value
type gobBatch struct {
	Entries []gobEntry
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IEntrySerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(entries []store.Entry) ([]byte, error) {
	wire := make([]gobEntry, len(entries))
	for i, e := range entries {
		wire[i] = gobEntry{
			Key:        e.Key,
			HasValue:   !e.IsTombstone(),
			Value:      e.Value,
			Version:    int64(e.Version),
			Timestamp:  e.Timestamp,
			MaxAgeInMs: e.MaxAgeInMs,
		}
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(gobBatch{Entries: wire}); err != nil {
		return nil, errors.Wrap(err, "encode gob entries")
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte) ([]store.Entry, error) {
	var batch gobBatch
	dec := gob.NewDecoder(bytes.NewBuffer(b))
	if err := dec.Decode(&batch); err != nil {
		return nil, errors.Wrap(err, "decode gob entries")
	}
	wire := batch.Entries

	entries := make([]store.Entry, len(wire))
	for i, w := range wire {
		entries[i] = store.Entry{
			Key:        w.Key,
			Version:    store.Version(w.Version),
			Timestamp:  w.Timestamp,
			MaxAgeInMs: w.MaxAgeInMs,
		}
		if w.HasValue {
			entries[i].Value = w.Value
			if entries[i].Value == nil {
				entries[i].Value = []byte{}
			}
		}
	}
	return entries, nil
}

func (g gobSerializerImpl) ContentType() string {
	return ContentTypeGOB
}
