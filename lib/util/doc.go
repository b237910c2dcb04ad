// Package util provides small helpers shared by the store engines and the
// replication layer.
//
// The package contains:
//   - functions: seeded FNV-1a hashing for raw and string keys and slot selection
//     used for shard picking in the in-memory engine and lock striping in the
//     merging store
//   - statistics: a SizeHistogram and distribution statistics used to estimate
//     store sizes and shard balance without full scans
package util
