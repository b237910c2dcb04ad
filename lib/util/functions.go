package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for internal hash distribution
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// fall back to the current time, only if the system source fails
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// UintKey is a hashed key used to pick shards and lock stripes
type UintKey uint64

const (
	offset64 = 14695981039346656037
	prime64  = 1099511628211
)

// HashBytes generates a hash value for a raw key with a seed
// This function uses the FNV-1a hash algorithm, which is fast and has good distribution
func HashBytes(b []byte, seed uint64) UintKey {
	hash := uint64(offset64) ^ seed
	for _, c := range b {
		hash ^= uint64(c)
		hash *= prime64
	}
	return UintKey(hash)
}

// Slot maps a hashed key onto one of n buckets (shards, lock stripes, ...).
//
// Thread-safety: This function is pure and can be called concurrently.
func Slot(key UintKey, n int) int {
	// shift right by 7 bits to use higher-quality bits for distribution
	return int((uint64(key) >> 7) % uint64(n))
}
