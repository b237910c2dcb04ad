package serializer

import (
	"mime"
	"strings"

	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/cockroachdb/errors"
)

// IEntrySerializer is the interface for all entry batch serializers.
// Implementations must keep tombstones (nil value) and empty values apart and
// must preserve an absent max age.
type IEntrySerializer interface {
	// Serialize serializes a batch of entries into a byte array
	Serialize(entries []store.Entry) ([]byte, error)
	// Deserialize deserializes a byte array into a batch of entries
	Deserialize(b []byte) ([]store.Entry, error)
	// ContentType is the media type used on the wire
	ContentType() string
}

const (
	ContentTypeJSON   = "application/json"
	ContentTypeGOB    = "application/x-gob"
	ContentTypeBinary = "application/x-dsd-entries"
)

// ErrUnknownSerializer is returned for unknown serializer names or content types
var ErrUnknownSerializer = errors.New("unknown serializer")

// FromName returns the serializer with the given name (json, gob or binary)
func FromName(name string) (IEntrySerializer, error) {
	switch strings.ToLower(name) {
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "binary":
		return NewBinarySerializer(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownSerializer, "%q (must be one of json, gob, binary)", name)
	}
}

// FromContentType returns the serializer for a Content-Type or Accept header value.
// Parameters such as charset are ignored.
func FromContentType(contentType string) (IEntrySerializer, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, errors.Wrapf(ErrUnknownSerializer, "content type %q", contentType)
	}
	switch mediaType {
	case ContentTypeJSON:
		return NewJSONSerializer(), nil
	case ContentTypeGOB:
		return NewGOBSerializer(), nil
	case ContentTypeBinary:
		return NewBinarySerializer(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownSerializer, "content type %q", contentType)
	}
}
