// Package store defines the versioned entry model and the local storage
// abstraction every node of the replicated store runs.
//
// The package focuses on:
//   - The Entry model: immutable records carrying a key, an optional value (a nil
//     value is a tombstone), a scalar Version, a creation timestamp and an optional
//     per-entry max age
//   - Conflict resolution: the pure last-writer-wins rule deciding which of two
//     entries for the same key survives
//   - A unified interface (LocalStore) for per-node storage with feature discovery
//
// Key Components:
//
//   - Version and Ordering: a totally ordered logical timestamp compared
//     numerically. Concurrent is reserved and never produced, a scalar counter has
//     no way to detect concurrency.
//
//   - Entry: the unit of replication. Deletes are written as tombstones so they
//     travel through the same conflict resolution as normal writes. Expired
//     reports whether readers must ignore an entry and the garbage collector may
//     reclaim it.
//
//   - ConflictResolver / LastWriterWins: picks the entry with the newer version, on
//     a tie the first argument wins.
//
//   - LocalStore: Put, Get, Delete, GetAll plus SupportsFeature, Info and Close.
//     Backends advertise whether they merge on Put (FeatureConflictResolution),
//     gate deletes by version (FeatureVersionedDelete) and persist entries
//     (FeaturePersistence).
//
//   - NewMergingStore: wraps a raw backend with striped per-key locks so it offers
//     the merge semantics the distributed store depends on.
//
//   - Error System: a typed error with return codes. Validation failures match
//     ErrInvalidArgument with errors.Is.
//
// Implementations:
//
//   - maple (github.com/ValentinKolb/dSD/lib/store/engines/maple): sharded
//     in-memory store merging with a lock-free compare-and-swap retry loop.
//
//   - oak (github.com/ValentinKolb/dSD/lib/store/engines/oak): persistent store on
//     a pebble LSM, one encoded entry per key, without conflict resolution.
//
// The testing package (github.com/ValentinKolb/dSD/lib/store/testing) provides a
// conformance suite and benchmarks for LocalStore implementations.
package store
