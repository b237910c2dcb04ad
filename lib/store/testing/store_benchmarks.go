package testing

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dSD/lib/store"
)

// RunLocalStoreBenchmarks runs all benchmarks for a LocalStore implementation
func RunLocalStoreBenchmarks(b *testing.B, name string, factory store.StoreFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Put", func(b *testing.B) {
			benchmarkPut(b, newStore(b, factory))
		})

		b.Run("PutExisting", func(b *testing.B) {
			benchmarkPutExisting(b, newStore(b, factory))
		})

		b.Run("PutLargeValue", func(b *testing.B) {
			benchmarkPutLargeValue(b, newStore(b, factory))
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, newStore(b, factory))
		})

		b.Run("Delete", func(b *testing.B) {
			benchmarkDelete(b, newStore(b, factory))
		})

		b.Run("GetAll", func(b *testing.B) {
			benchmarkGetAll(b, newStore(b, factory))
		})

		b.Run("MixedUsage", func(b *testing.B) {
			benchmarkMixedUsage(b, newStore(b, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// global version counter shared by all parallel benchmark goroutines
var benchVersion atomic.Int64

func benchEntry(key string, value []byte) store.Entry {
	v := store.Version(benchVersion.Add(1))
	e, _ := store.NewEntry([]byte(key), value, v, int64(v), 0)
	return e
}

func fill(b *testing.B, s store.LocalStore, n int) {
	for i := 0; i < n; i++ {
		if err := s.Put(benchEntry(fmt.Sprintf("test-key-%d", i), []byte(fmt.Sprintf("test-value-%d", i)))); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for Put operation
func benchmarkPut(b *testing.B, s store.LocalStore) {
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := rand.Int()
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter)
			_ = s.Put(benchEntry(key, []byte("test-value")))
			counter++
		}
	})
}

// Benchmark for Put operation with existing keys (merge path)
func benchmarkPutExisting(b *testing.B, s store.LocalStore) {
	const numKeys = 1000
	fill(b, s, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", counter%numKeys)
			_ = s.Put(benchEntry(key, []byte("updated-value")))
			counter++
		}
	})
}

// Benchmark for Put operation with large values
func benchmarkPutLargeValue(b *testing.B, s store.LocalStore) {
	value := make([]byte, 64*1024)
	for i := range value {
		value[i] = byte(i % 256)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := rand.Int()
		for pb.Next() {
			_ = s.Put(benchEntry(fmt.Sprintf("large-key-%d", counter), value))
			counter++
		}
	})
}

// Benchmark for Get operation
func benchmarkGet(b *testing.B, s store.LocalStore) {
	const numKeys = 1000
	fill(b, s, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_, _, _ = s.Get([]byte(fmt.Sprintf("test-key-%d", counter%numKeys)))
			counter++
		}
	})
}

// Benchmark for Delete operation
func benchmarkDelete(b *testing.B, s store.LocalStore) {
	fill(b, s, b.N)
	latest := store.Version(benchVersion.Load())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Delete([]byte(fmt.Sprintf("test-key-%d", i)), latest)
	}
}

// Benchmark for GetAll on a store with a typical service registry size
func benchmarkGetAll(b *testing.B, s store.LocalStore) {
	fill(b, s, 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.GetAll(); err != nil {
			b.Fatal(err)
		}
	}
}

// Benchmark for mixed operations (80% reads, 15% writes, 5% deletes)
func benchmarkMixedUsage(b *testing.B, s store.LocalStore) {
	const numKeys = 1000
	fill(b, s, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := fmt.Sprintf("test-key-%d", r.Intn(numKeys))
			switch op := r.Intn(100); {
			case op < 80:
				_, _, _ = s.Get([]byte(key))
			case op < 95:
				_ = s.Put(benchEntry(key, []byte("mixed-value")))
			default:
				_ = s.Delete([]byte(key), store.Version(benchVersion.Load()))
			}
		}
	})
}
