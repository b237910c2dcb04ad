// Package serializer provides the wire encodings of the store-sync protocol. A
// message is a batch of entries, pushed by POST and returned by GET.
//
// The package focuses on:
//   - Providing a consistent interface for different serialization formats
//   - Keeping tombstones (absent value) and empty values apart in every format
//   - Preserving absent max ages
//
// Key Components:
//
//   - IEntrySerializer: Core interface that all serializer implementations must satisfy.
//     ContentType names the media type used on the wire, FromContentType picks the
//     serializer for an incoming request.
//
//   - binarySerializerImpl: Custom binary format. Uses a flag-based approach to encode
//     only present fields, resulting in compact serialized data with minimal overhead.
//
//   - gobSerializerImpl: Implementation using Go's built-in gob encoding. Carries an
//     explicit value flag, because gob does not distinguish nil and empty slices.
//
//   - jsonSerializerImpl: Implementation using JSON encoding, useful for debugging
//     or interoperability with other systems. Keys and values are base64 encoded,
//     tombstones have a null value.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(entries)
//	// ... send data with Content-Type s.ContentType() ...
//	received, err := s.Deserialize(data)
package serializer
