package serializer

import (
	"testing"

	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/cockroachdb/errors"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IEntrySerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testBatches creates a set of entry batches covering all optional fields
func testBatches() map[string][]store.Entry {
	return map[string][]store.Entry{
		"empty": {},
		"single value": {
			{Key: []byte("node-1"), Value: []byte(`{"type":"web"}`), Version: 1700000000000, Timestamp: 1700000000000},
		},
		"mixed": {
			{Key: []byte("node-1"), Value: []byte(`{"type":"db"}`), Version: 5, Timestamp: 5, MaxAgeInMs: 30000},
			{Key: []byte("node-2"), Version: 6, Timestamp: 6},
			{Key: []byte("node-3"), Value: []byte{}, Version: 7, Timestamp: 7},
			{Key: []byte{0x00, 0xff, 0x10}, Value: []byte{0x00, 0x01}, Version: -1, Timestamp: 0},
		},
	}
}

// TestSerializerRoundTrip tests that batches survive a round trip, tombstones and
// empty values included
func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for batchName, batch := range testBatches() {
				t.Run(batchName, func(t *testing.T) {
					data, err := serializer.Serialize(batch)
					if err != nil {
						t.Fatalf("Failed to serialize: %v", err)
					}

					result, err := serializer.Deserialize(data)
					if err != nil {
						t.Fatalf("Failed to deserialize: %v", err)
					}

					if len(result) != len(batch) {
						t.Fatalf("Expected %d entries, got %d", len(batch), len(result))
					}
					for i := range batch {
						if !result[i].Equal(batch[i]) {
							t.Errorf("Entry %d: expected %s, got %s", i, batch[i], result[i])
						}
						if result[i].IsTombstone() != batch[i].IsTombstone() {
							t.Errorf("Entry %d: tombstone flag changed", i)
						}
					}
				})
			}
		})
	}
}

func TestDeserializeInvalid(t *testing.T) {
	tests := map[string][]byte{
		"empty":   {},
		"garbage": []byte("this is not a batch"),
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			for caseName, data := range tests {
				if _, err := serializer.Deserialize(data); err == nil {
					t.Errorf("%s: expected error", caseName)
				}
			}
		})
	}
}

func TestBinaryRejectsMalformedData(t *testing.T) {
	s := NewBinarySerializer()
	data, _ := s.Serialize(testBatches()["mixed"])

	tests := map[string][]byte{
		"truncated":      data[:len(data)-3],
		"trailing bytes": append(append([]byte(nil), data...), 0x00),
		"huge count":     {0xff, 0xff, 0xff, 0xff, 0x00},
	}

	for name, malformed := range tests {
		if _, err := s.Deserialize(malformed); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"json", "GOB", "binary"} {
		s, err := FromName(name)
		if err != nil {
			t.Fatalf("FromName(%q) failed: %v", name, err)
		}
		byType, err := FromContentType(s.ContentType() + "; charset=utf-8")
		if err != nil {
			t.Fatalf("FromContentType(%q) failed: %v", s.ContentType(), err)
		}
		if byType.ContentType() != s.ContentType() {
			t.Errorf("Expected %s, got %s", s.ContentType(), byType.ContentType())
		}
	}

	if _, err := FromName("xml"); !errors.Is(err, ErrUnknownSerializer) {
		t.Errorf("Expected ErrUnknownSerializer, got %v", err)
	}
	if _, err := FromContentType("text/plain"); !errors.Is(err, ErrUnknownSerializer) {
		t.Errorf("Expected ErrUnknownSerializer, got %v", err)
	}
}
