// Package maple implements an in-memory store.LocalStore with built-in conflict
// resolution and version gated deletes.
//
// The package focuses on:
//   - Concurrent access without locks through sharding and compare-and-swap
//   - Merging every write with the stored entry using a store.ConflictResolver
//   - Cheap snapshots for anti-entropy (GetAll)
//
// Key Components:
//
//   - mapleImpl: The central structure implementing store.LocalStore. It owns a fixed
//     number of shards and the resolver used on every Put.
//
//   - Shard: An xsync.MapOf holding a subset of the key space. Keys are spread across
//     shards in a two-step process:
//     1. The key is hashed to a 64-bit integer with the HashBytes function and a
//     store specific seed
//     2. The integer is right-shifted by 7 bits and taken modulo the shard count
//
// Internal Mechanisms:
//
//   - Optimistic merge: Put loads the current entry, resolves it against the new
//     one and swaps the winner in only if the stored entry did not change in the
//     meantime. Lost races are retried, the number of retries is reported in Info.
//     Equal versions keep the stored entry.
//
//   - Versioned delete: Delete removes an entry atomically inside a single Compute
//     call, only if the stored version is not newer than the requested one.
//
// Thread-safety: All exported operations are safe for concurrent use. Entries are
// copied on the way in and on the way out, so callers can never change stored bytes.
//
// Usage Example:
//
//	s := maple.NewMapleStore(nil)
//	e, _ := store.NewEntry([]byte("web"), []byte("10.0.0.1:80"), 1, time.Now().UnixMilli(), 0)
//	_ = s.Put(e)
//	got, ok, _ := s.Get([]byte("web"))
package maple
