package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/cockroachdb/errors"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IEntrySerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IEntrySerializer interface using json encoding
type jsonSerializerImpl struct {
}

// jsonEntry is the json representation of an entry. Keys and values are base64
// encoded, a tombstone has a null value.
type jsonEntry struct {
	Key        []byte  `json:"key"`
	Value      *[]byte `json:"value"`
	Version    int64   `json:"version"`
	Timestamp  int64   `json:"timestamp"`
	MaxAgeInMs int64   `json:"maxAgeInMs,omitempty"`
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IEntrySerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(entries []store.Entry) ([]byte, error) {
	wire := make([]jsonEntry, len(entries))
	for i, e := range entries {
		wire[i] = jsonEntry{
			Key:        e.Key,
			Version:    int64(e.Version),
			Timestamp:  e.Timestamp,
			MaxAgeInMs: e.MaxAgeInMs,
		}
		if !e.IsTombstone() {
			value := e.Value
			wire[i].Value = &value
		}
	}
	return json.Marshal(wire)
}

func (j jsonSerializerImpl) Deserialize(b []byte) ([]store.Entry, error) {
	var wire []jsonEntry
	if err := json.Unmarshal(b, &wire); err != nil {
		return nil, errors.Wrap(err, "decode json entries")
	}

	entries := make([]store.Entry, len(wire))
	for i, w := range wire {
		entries[i] = store.Entry{
			Key:        w.Key,
			Version:    store.Version(w.Version),
			Timestamp:  w.Timestamp,
			MaxAgeInMs: w.MaxAgeInMs,
		}
		if w.Value != nil {
			entries[i].Value = *w.Value
			if entries[i].Value == nil {
				entries[i].Value = []byte{}
			}
		}
	}
	return entries, nil
}

func (j jsonSerializerImpl) ContentType() string {
	return ContentTypeJSON
}
