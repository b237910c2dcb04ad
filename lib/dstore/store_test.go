package dstore

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/ValentinKolb/dSD/lib/store/engines/maple"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRemote struct {
	mu      sync.Mutex
	entries []store.Entry
	started bool
	stopped bool
}

func (r *fakeRemote) Start(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
}

func (r *fakeRemote) Put(e store.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *fakeRemote) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
}

func (r *fakeRemote) received() []store.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.Entry(nil), r.entries...)
}

func newTestStore(t *testing.T, remote RemoteStore) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	s, err := New("test", maple.NewMapleStore(nil), remote, Options{
		TombstoneMaxAge: time.Hour,
		GCInterval:      time.Hour,
		Now:             clock.Now,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, clock
}

func rawEntries(t *testing.T, s *Store) []store.Entry {
	t.Helper()
	all, err := s.Local().GetAll()
	if err != nil {
		t.Fatal(err)
	}
	return all
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestNewValidates(t *testing.T) {
	tests := []struct {
		name  string
		sname string
		local store.LocalStore
		opts  Options
	}{
		{"empty name", "", maple.NewMapleStore(nil), Options{}},
		{"nil local", "s", nil, Options{}},
		{"negative gc interval", "s", maple.NewMapleStore(nil), Options{GCInterval: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.sname, tt.local, nil, tt.opts); !errors.Is(err, store.ErrInvalidArgument) {
				t.Errorf("Expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}

func TestPutGet(t *testing.T) {
	remote := &fakeRemote{}
	s, _ := newTestStore(t, remote)

	if err := s.Put([]byte("web-1"), []byte(`{"type":"web"}`)); err != nil {
		t.Fatal(err)
	}

	value, ok, err := s.Get([]byte("web-1"))
	if err != nil || !ok || string(value) != `{"type":"web"}` {
		t.Errorf("Expected web value, got %q (loaded=%v err=%v)", value, ok, err)
	}

	if _, ok, _ := s.Get([]byte("missing")); ok {
		t.Errorf("Expected missing key to be absent")
	}

	if got := remote.received(); len(got) != 1 || string(got[0].Key) != "web-1" {
		t.Errorf("Expected write to be forwarded to the remote store, got %v", got)
	}
}

func TestValidation(t *testing.T) {
	remote := &fakeRemote{}
	s, _ := newTestStore(t, remote)

	tests := []struct {
		name string
		op   func() error
	}{
		{"empty key", func() error { return s.Put(nil, []byte("v")) }},
		{"nil value", func() error { return s.Put([]byte("k"), nil) }},
		{"zero max age", func() error { return s.PutWithMaxAge([]byte("k"), []byte("v"), 0) }},
		{"sub millisecond max age", func() error { return s.PutWithMaxAge([]byte("k"), []byte("v"), time.Microsecond) }},
		{"delete empty key", func() error { return s.Delete(nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, store.ErrInvalidArgument) {
				t.Errorf("Expected ErrInvalidArgument, got %v", err)
			}
		})
	}

	if got := remote.received(); len(got) != 0 {
		t.Errorf("Invalid writes must not be forwarded, got %v", got)
	}
}

func TestDeleteAndTombstoneExpiry(t *testing.T) {
	s, clock := newTestStore(t, nil)

	_ = s.Put([]byte("node-1"), []byte(`{"type":"web"}`))
	clock.Advance(time.Millisecond)
	if err := s.Delete([]byte("node-1")); err != nil {
		t.Fatal(err)
	}

	// deleted immediately
	if _, ok, _ := s.Get([]byte("node-1")); ok {
		t.Errorf("Expected deleted key to be absent")
	}
	if all, _ := s.GetAll(); len(all) != 0 {
		t.Errorf("Expected GetAll to exclude the deleted key, got %v", all)
	}

	// the tombstone is still stored until it expires
	if raw := rawEntries(t, s); len(raw) != 1 || !raw[0].IsTombstone() {
		t.Fatalf("Expected stored tombstone, got %v", raw)
	}

	clock.Advance(30 * time.Minute)
	if removed, _ := s.RunGC(); removed != 0 {
		t.Errorf("GC removed a fresh tombstone")
	}

	clock.Advance(31 * time.Minute)
	removed, err := s.RunGC()
	if err != nil || removed != 1 {
		t.Errorf("Expected GC to remove 1 entry, got %d (%v)", removed, err)
	}
	if raw := rawEntries(t, s); len(raw) != 0 {
		t.Errorf("Expected local store to be empty after GC, got %v", raw)
	}
}

func TestHeartbeatExpiry(t *testing.T) {
	s, clock := newTestStore(t, nil)

	if err := s.PutWithMaxAge([]byte("node-1"), []byte("alive"), 30*time.Second); err != nil {
		t.Fatal(err)
	}
	_ = s.Put([]byte("static"), []byte("forever"))

	clock.Advance(30 * time.Second)
	if _, ok, _ := s.Get([]byte("node-1")); !ok {
		t.Errorf("Expected entry to be visible within its max age")
	}

	// excluded by the read filter without GC
	clock.Advance(time.Millisecond)
	if _, ok, _ := s.Get([]byte("node-1")); ok {
		t.Errorf("Expected entry to expire after its max age")
	}
	all, _ := s.GetAll()
	if len(all) != 1 || string(all[0].Key) != "static" {
		t.Errorf("Expected only the static entry, got %v", all)
	}
	if raw := rawEntries(t, s); len(raw) != 2 {
		t.Errorf("Expected expired entry to be stored until GC, got %d entries", len(raw))
	}

	// a refresh makes it visible again
	_ = s.PutWithMaxAge([]byte("node-1"), []byte("alive"), 30*time.Second)
	if _, ok, _ := s.Get([]byte("node-1")); !ok {
		t.Errorf("Expected refreshed entry to be visible")
	}
}

func TestMonotonicVersions(t *testing.T) {
	remote := &fakeRemote{}
	s, clock := newTestStore(t, remote)

	// the clock stalls and then goes backwards
	_ = s.Put([]byte("k"), []byte("1"))
	_ = s.Put([]byte("k"), []byte("2"))
	clock.Advance(-time.Second)
	_ = s.Put([]byte("k"), []byte("3"))

	got := remote.received()
	for i := 1; i < len(got); i++ {
		if got[i].Version.Compare(got[i-1].Version) != store.After {
			t.Errorf("Version %d is not after %d", got[i].Version, got[i-1].Version)
		}
	}

	value, _, _ := s.Get([]byte("k"))
	if string(value) != "3" {
		t.Errorf("Expected last write to win, got %q", value)
	}
}

func TestApply(t *testing.T) {
	s, clock := newTestStore(t, nil)
	now := clock.Now().UnixMilli()

	// two writers race on the same key
	web, _ := store.NewEntry([]byte("node-1"), []byte(`{"type":"web"}`), store.Version(now), now, 0)
	db, _ := store.NewEntry([]byte("node-1"), []byte(`{"type":"db"}`), store.Version(now+5), now+5, 0)
	oldTomb, _ := store.NewTombstone([]byte("gone"), store.Version(now-2*time.Hour.Milliseconds()), now-2*time.Hour.Milliseconds())

	applied, err := s.Apply(db, web, oldTomb)
	if err != nil {
		t.Fatal(err)
	}
	if applied != 2 {
		t.Errorf("Expected 2 applied entries (expired tombstone skipped), got %d", applied)
	}

	value, ok, _ := s.Get([]byte("node-1"))
	if !ok || string(value) != `{"type":"db"}` {
		t.Errorf("Expected the later version to win, got %q", value)
	}
	if _, ok, _ := s.Local().Get([]byte("gone")); ok {
		t.Errorf("Expired tombstone must not be stored")
	}

	// applying the same entries again changes nothing
	before := rawEntries(t, s)
	_, _ = s.Apply(db, web)
	if after := rawEntries(t, s); len(after) != len(before) || !after[0].Equal(before[0]) {
		t.Errorf("Apply is not idempotent: %v -> %v", before, after)
	}

	if _, err := s.Apply(store.Entry{Value: []byte("v")}); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for entry without key, got %v", err)
	}
}

func TestReplicatedTombstoneHidesValue(t *testing.T) {
	s, clock := newTestStore(t, nil)

	_ = s.Put([]byte("node-1"), []byte("alive"))
	now := clock.Now().UnixMilli()
	tomb, _ := store.NewTombstone([]byte("node-1"), store.Version(now+10), now+10)
	_, _ = s.Apply(tomb)

	if _, ok, _ := s.Get([]byte("node-1")); ok {
		t.Errorf("Expected replicated tombstone to hide the value")
	}
}

func TestLocalWriteAfterSkewedPeer(t *testing.T) {
	remote := &fakeRemote{}
	s, clock := newTestStore(t, remote)

	// the peer's clock is a minute ahead
	ahead := clock.Now().Add(time.Minute).UnixMilli()
	put, _ := store.NewEntry([]byte("node-1"), []byte("alive"), store.Version(ahead), ahead, 0)
	if _, err := s.Apply(put); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete([]byte("node-1")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get([]byte("node-1")); ok {
		t.Errorf("Expected local delete to win over the skewed peer")
	}
	if got := remote.received(); len(got) != 1 || got[0].Version <= store.Version(ahead) {
		t.Errorf("Expected tombstone newer than %d, got %v", ahead, got)
	}
}

func TestVersionClockSaturates(t *testing.T) {
	s, clock := newTestStore(t, &fakeRemote{})

	now := clock.Now().UnixMilli()
	put, _ := store.NewEntry([]byte("node-1"), []byte("alive"), store.Version(math.MaxInt64), now, 0)
	if _, err := s.Apply(put); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if v, _ := s.stamp(); v != store.Version(math.MaxInt64) {
			t.Fatalf("Expected stamp to stay at %d, got %d", int64(math.MaxInt64), v)
		}
	}
}

func TestStartStop(t *testing.T) {
	remote := &fakeRemote{}
	s, clock := newTestStore(t, remote)

	// an expired tombstone is removed by the initial GC run
	past := clock.Now().Add(-2 * time.Hour).UnixMilli()
	tomb, _ := store.NewTombstone([]byte("old"), store.Version(past), past)
	if err := s.Local().Put(tomb); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	s.Start(context.Background())

	deadline := time.After(5 * time.Second)
	for len(rawEntries(t, s)) != 0 {
		select {
		case <-deadline:
			t.Fatal("Timeout waiting for initial GC")
		case <-time.After(5 * time.Millisecond):
		}
	}

	s.Stop()
	s.Stop()

	remote.mu.Lock()
	defer remote.mu.Unlock()
	if !remote.started || !remote.stopped {
		t.Errorf("Expected remote store to be started and stopped, got started=%v stopped=%v", remote.started, remote.stopped)
	}
}
