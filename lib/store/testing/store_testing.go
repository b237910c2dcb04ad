package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/cockroachdb/errors"
)

// RunLocalStoreTests runs a comprehensive test suite for a LocalStore implementation.
// Tests that depend on merge semantics are skipped for stores that do not
// advertise the matching feature.
func RunLocalStoreTests(t *testing.T, name string, factory store.StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, newStore(t, factory))
		})

		t.Run("Overwrite", func(t *testing.T) {
			testOverwrite(t, newStore(t, factory))
		})

		t.Run("Idempotent", func(t *testing.T) {
			testIdempotent(t, newStore(t, factory))
		})

		t.Run("LastWriterWins", func(t *testing.T) {
			testLastWriterWins(t, newStore(t, factory))
		})

		t.Run("ConcurrentWriters", func(t *testing.T) {
			testConcurrentWriters(t, newStore(t, factory))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, newStore(t, factory))
		})

		t.Run("VersionedDelete", func(t *testing.T) {
			testVersionedDelete(t, newStore(t, factory))
		})

		t.Run("Tombstones", func(t *testing.T) {
			testTombstones(t, newStore(t, factory))
		})

		t.Run("GetAll", func(t *testing.T) {
			testGetAll(t, newStore(t, factory))
		})

		t.Run("Copies", func(t *testing.T) {
			testCopies(t, newStore(t, factory))
		})

		t.Run("InvalidEntries", func(t *testing.T) {
			testInvalidEntries(t, newStore(t, factory))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, newStore(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// newStore creates a store from the factory and closes it when the test ends
func newStore(t testing.TB, factory store.StoreFactory) store.LocalStore {
	t.Helper()
	s, err := factory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// Checks if the store supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, s store.LocalStore, feature store.Feature) {
	if !s.SupportsFeature(feature) {
		t.Skipf("store does not support %s", feature)
	}
}

func entry(t testing.TB, key, value string, version store.Version) store.Entry {
	t.Helper()
	e, err := store.NewEntry([]byte(key), []byte(value), version, int64(version), 0)
	if err != nil {
		t.Fatalf("Failed to create entry: %v", err)
	}
	return e
}

func mustPut(t testing.TB, s store.LocalStore, e store.Entry) {
	t.Helper()
	if err := s.Put(e); err != nil {
		t.Fatalf("Put(%s) failed: %v", e, err)
	}
}

func mustGet(t testing.TB, s store.LocalStore, key string) (store.Entry, bool) {
	t.Helper()
	e, ok, err := s.Get([]byte(key))
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return e, ok
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, s store.LocalStore) {
	e := entry(t, "test-key", "test-value", 1)
	mustPut(t, s, e)

	got, ok := mustGet(t, s, "test-key")
	if !ok {
		t.Fatalf("Expected key %s to exist after Put", e.Key)
	}
	if !got.Equal(e) {
		t.Errorf("Expected %s, got %s", e, got)
	}

	if _, ok = mustGet(t, s, "nonexistent-key"); ok {
		t.Errorf("Expected nonexistent key to return loaded=false")
	}

	// an empty value is a live entry, not a tombstone
	empty := entry(t, "empty", "", 1)
	mustPut(t, s, empty)
	got, ok = mustGet(t, s, "empty")
	if !ok || got.IsTombstone() || len(got.Value) != 0 {
		t.Errorf("Expected live entry with empty value, got %s (loaded=%v)", got, ok)
	}

	// max age survives a round trip
	withMaxAge, err := store.NewEntry([]byte("heartbeat"), []byte("v"), 3, 3, 1500)
	if err != nil {
		t.Fatal(err)
	}
	mustPut(t, s, withMaxAge)
	got, _ = mustGet(t, s, "heartbeat")
	if got.MaxAgeInMs != 1500 {
		t.Errorf("Expected max age 1500, got %d", got.MaxAgeInMs)
	}
}

func testOverwrite(t *testing.T, s store.LocalStore) {
	mustPut(t, s, entry(t, "key", "value-1", 1))
	mustPut(t, s, entry(t, "key", "value-2", 2))

	got, ok := mustGet(t, s, "key")
	if !ok {
		t.Fatal("Expected key to exist")
	}
	if !bytes.Equal(got.Value, []byte("value-2")) || got.Version != 2 {
		t.Errorf("Expected value-2@2, got %s", got)
	}
}

func testIdempotent(t *testing.T, s store.LocalStore) {
	e := entry(t, "key", "value", 7)
	mustPut(t, s, e)
	mustPut(t, s, e)

	all, err := s.GetAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(all))
	}
	if !all[0].Equal(e) {
		t.Errorf("Expected %s, got %s", e, all[0])
	}
}

func testLastWriterWins(t *testing.T, s store.LocalStore) {
	requireFeature(t, s, store.FeatureConflictResolution)

	tests := []struct {
		name   string
		writes []store.Entry
		want   store.Entry
	}{
		{
			name:   "newer after older",
			writes: []store.Entry{entry(t, "node-1", `{"type":"web"}`, 1000), entry(t, "node-1", `{"type":"db"}`, 1005)},
			want:   entry(t, "node-1", `{"type":"db"}`, 1005),
		},
		{
			name:   "older after newer",
			writes: []store.Entry{entry(t, "node-1", `{"type":"db"}`, 1005), entry(t, "node-1", `{"type":"web"}`, 1000)},
			want:   entry(t, "node-1", `{"type":"db"}`, 1005),
		},
		{
			name:   "tie keeps stored",
			writes: []store.Entry{entry(t, "node-1", "first", 1000), entry(t, "node-1", "second", 1000)},
			want:   entry(t, "node-1", "first", 1000),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = s.Delete([]byte("node-1"), 1<<62)
			for _, w := range tt.writes {
				mustPut(t, s, w)
			}
			got, ok := mustGet(t, s, "node-1")
			if !ok || !got.Equal(tt.want) {
				t.Errorf("Expected %s, got %s (loaded=%v)", tt.want, got, ok)
			}
		})
	}

	// an older tombstone must not hide a newer value
	mustPut(t, s, entry(t, "svc", "alive", 20))
	tomb, _ := store.NewTombstone([]byte("svc"), 10, 10)
	mustPut(t, s, tomb)
	if got, _ := mustGet(t, s, "svc"); got.IsTombstone() {
		t.Errorf("Older tombstone replaced newer value")
	}
}

func testConcurrentWriters(t *testing.T, s store.LocalStore) {
	requireFeature(t, s, store.FeatureConflictResolution)

	const (
		writers = 8
		writes  = 200
	)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				// interleave versions across writers so every writer races on the same key
				version := store.Version(i*writers + w + 1)
				e, _ := store.NewEntry([]byte("hot-key"), []byte(fmt.Sprintf("w%d-%d", w, i)), version, int64(version), 0)
				if err := s.Put(e); err != nil {
					t.Errorf("Put failed: %v", err)
					return
				}
				key := fmt.Sprintf("key-%d-%d", w, i)
				if err := s.Put(entry(t, key, "v", 1)); err != nil {
					t.Errorf("Put failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	got, ok := mustGet(t, s, "hot-key")
	if !ok {
		t.Fatal("Expected hot-key to exist")
	}
	if want := store.Version(writers * writes); got.Version != want {
		t.Errorf("Expected highest version %d to win, got %d", want, got.Version)
	}

	all, err := s.GetAll()
	if err != nil {
		t.Fatal(err)
	}
	if want := writers*writes + 1; len(all) != want {
		t.Errorf("Expected %d entries, got %d", want, len(all))
	}
}

func testDelete(t *testing.T, s store.LocalStore) {
	mustPut(t, s, entry(t, "key", "value", 5))

	if err := s.Delete([]byte("key"), 5); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := mustGet(t, s, "key"); ok {
		t.Errorf("Expected key to be deleted")
	}

	if err := s.Delete([]byte("nonexistent-key"), 1); err != nil {
		t.Errorf("Delete of missing key should not fail: %v", err)
	}
}

func testVersionedDelete(t *testing.T, s store.LocalStore) {
	requireFeature(t, s, store.FeatureVersionedDelete)

	mustPut(t, s, entry(t, "key", "value", 5))

	// an older delete must not erase a newer state
	if err := s.Delete([]byte("key"), 4); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := mustGet(t, s, "key"); !ok {
		t.Fatalf("Delete with older version removed the entry")
	}

	if err := s.Delete([]byte("key"), 6); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := mustGet(t, s, "key"); ok {
		t.Errorf("Delete with newer version did not remove the entry")
	}
}

func testTombstones(t *testing.T, s store.LocalStore) {
	tomb, err := store.NewTombstone([]byte("deleted"), 9, 9)
	if err != nil {
		t.Fatal(err)
	}
	mustPut(t, s, tomb)

	got, ok := mustGet(t, s, "deleted")
	if !ok {
		t.Fatal("Expected tombstone to be stored")
	}
	if !got.IsTombstone() || !got.Equal(tomb) {
		t.Errorf("Expected %s, got %s", tomb, got)
	}

	all, err := s.GetAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || !all[0].IsTombstone() {
		t.Errorf("Expected GetAll to return the tombstone, got %v", all)
	}

	// a newer live entry replaces the tombstone
	mustPut(t, s, entry(t, "deleted", "back", 10))
	if got, _ = mustGet(t, s, "deleted"); got.IsTombstone() {
		t.Errorf("Expected newer value to replace tombstone")
	}
}

func testGetAll(t *testing.T, s store.LocalStore) {
	const n = 100
	for i := 0; i < n; i++ {
		mustPut(t, s, entry(t, fmt.Sprintf("key-%03d", i), fmt.Sprintf("value-%d", i), store.Version(i+1)))
	}

	all, err := s.GetAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != n {
		t.Fatalf("Expected %d entries, got %d", n, len(all))
	}

	seen := make(map[string]bool, n)
	for _, e := range all {
		var i int
		if _, err := fmt.Sscanf(string(e.Key), "key-%03d", &i); err != nil {
			t.Fatalf("Unexpected key %q", e.Key)
		}
		if want := fmt.Sprintf("value-%d", i); string(e.Value) != want {
			t.Errorf("Expected %s for %s, got %s", want, e.Key, e.Value)
		}
		seen[string(e.Key)] = true
	}
	if len(seen) != n {
		t.Errorf("Expected %d distinct keys, got %d", n, len(seen))
	}

	// the snapshot is not affected by later writes
	mustPut(t, s, entry(t, "late", "v", 1))
	if len(all) != n {
		t.Errorf("Snapshot changed after write")
	}
}

func testCopies(t *testing.T, s store.LocalStore) {
	e := entry(t, "key", "value", 1)
	mustPut(t, s, e)

	// changing the input after Put must not change the stored entry
	e.Value[0] = 'X'
	got, _ := mustGet(t, s, "key")
	if !bytes.Equal(got.Value, []byte("value")) {
		t.Errorf("Put should copy the value, got %s", got.Value)
	}

	// changing a returned entry must not change the stored entry
	got.Value[0] = 'Y'
	again, _ := mustGet(t, s, "key")
	if !bytes.Equal(again.Value, []byte("value")) {
		t.Errorf("Get should return a copy, got %s", again.Value)
	}
}

func testInvalidEntries(t *testing.T, s store.LocalStore) {
	tests := []struct {
		name  string
		entry store.Entry
	}{
		{"empty key", store.Entry{Value: []byte("v"), Version: 1}},
		{"negative max age", store.Entry{Key: []byte("k"), Value: []byte("v"), Version: 1, MaxAgeInMs: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Put(tt.entry)
			if !errors.Is(err, store.ErrInvalidArgument) {
				t.Errorf("Expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func testInfo(t *testing.T, s store.LocalStore) {
	for i := 0; i < 10; i++ {
		mustPut(t, s, entry(t, fmt.Sprintf("key-%d", i), "value", 1))
	}
	tomb, _ := store.NewTombstone([]byte("gone"), 1, 1)
	mustPut(t, s, tomb)

	info := s.Info()
	if info.Entries != 11 {
		t.Errorf("Expected 11 entries, got %d", info.Entries)
	}
	if info.Tombstones != 1 {
		t.Errorf("Expected 1 tombstone, got %d", info.Tombstones)
	}
	if info.Implementation == "" {
		t.Errorf("Expected implementation name")
	}
}
