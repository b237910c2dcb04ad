// Package dstore implements the distributed store, the façade application code
// uses to read and write a replicated, eventually consistent key-value store.
//
// Writes are stamped with a fresh version (the current time in milliseconds,
// strictly increasing per store and newer than every applied version), merged
// into the local store and handed to a RemoteStore that replicates them
// asynchronously. Deletes are writes of a tombstone, so they travel through the
// same conflict resolution as values.
//
// Reads only consult the local store and hide tombstones as well as entries
// with a max age that are older than that max age.
//
// A background GC sweep physically removes expired entries (tombstones older
// than the tombstone max age and entries past their own max age). It runs once
// on Start and then every GC interval.
//
// Replicated entries (received by push or pulled by anti-entropy) enter through
// Apply, which skips entries that are already expired.
//
// Usage Example:
//
//	s, err := dstore.New("services", maple.NewMapleStore(nil), remoteStore, dstore.Options{})
//	if err != nil {
//		return err
//	}
//	s.Start(ctx)
//	defer s.Stop()
//
//	_ = s.PutWithMaxAge([]byte("node-1"), []byte(`{"type":"web"}`), 30*time.Second)
//	value, ok, _ := s.Get([]byte("node-1"))
package dstore
