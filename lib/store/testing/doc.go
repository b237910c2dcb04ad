// Package testing provides standardised tests and benchmarks for
// store implementations that satisfy the store.LocalStore interface.
//
// The package contains:
//   - RunLocalStoreTests: a conformance suite covering round trips, merging,
//     versioned deletes, tombstones, snapshots, copies and concurrent writers
//   - RunLocalStoreBenchmarks: throughput tests for the common operations
//
// Tests that rely on merge semantics are skipped for stores that do not advertise
// store.FeatureConflictResolution or store.FeatureVersionedDelete, so raw backends
// can run the suite unwrapped and again wrapped with store.NewMergingStore.
//
// Example usage:
//
//	factory := func() (store.LocalStore, error) {
//		return NewMyStore(), nil
//	}
//
//	storetesting.RunLocalStoreTests(t, "MyStore", factory)
//	storetesting.RunLocalStoreBenchmarks(b, "MyStore", factory)
package testing
