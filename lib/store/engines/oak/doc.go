// Package oak implements a persistent store.LocalStore on top of the pebble LSM
// engine.
//
// Every entry is stored as one row: the row key is the raw entry key and the
// row value is the entry encoded by the internal package, tombstone and max age
// metadata included. The engine is intentionally raw:
//
//   - Put overwrites without conflict resolution
//   - Delete removes the row without a version check
//
// Wrap it with store.NewMergingStore when it is used behind the distributed
// store, the wrapper adds last-writer-wins merging and version gated deletes.
//
// Rows that can not be decoded are logged, physically deleted and reported as
// absent. A healthy value reaches the node again through replication.
//
// Usage Example:
//
//	raw, err := oak.NewOakStore("data/services", nil)
//	if err != nil {
//		return err
//	}
//	s := store.NewMergingStore(raw, store.LastWriterWins)
//	defer s.Close()
package oak
