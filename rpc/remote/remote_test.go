package remote

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dSD/lib/peers"
	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
)

// recordingPusher records all pushed entries per peer. Pushes to peers in fail are rejected.
type recordingPusher struct {
	mu       sync.Mutex
	received map[string][]store.Entry
	calls    map[string]int
	fail     map[string]bool
}

func newRecordingPusher(failing ...string) *recordingPusher {
	p := &recordingPusher{
		received: make(map[string][]store.Entry),
		calls:    make(map[string]int),
		fail:     make(map[string]bool),
	}
	for _, id := range failing {
		p.fail[id] = true
	}
	return p
}

func (p *recordingPusher) PushEntries(_ context.Context, peer peers.Peer, _ string, entries []store.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[peer.ID]++
	if p.fail[peer.ID] {
		return errors.Newf("%s is unreachable", peer.ID)
	}
	p.received[peer.ID] = append(p.received[peer.ID], entries...)
	return nil
}

func (p *recordingPusher) count(id string) (entries int, calls int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.received[id]), p.calls[id]
}

// failingDirectory fails every lookup
type failingDirectory struct{}

func (failingDirectory) SelectAllPeers(context.Context) ([]peers.Peer, error) {
	return nil, errors.New("directory unavailable")
}

func testEntry(t *testing.T, i int) store.Entry {
	t.Helper()
	e, err := store.NewEntry([]byte(fmt.Sprintf("key-%d", i)), []byte("value"), store.Version(i+1), time.Now().UnixMilli(), 0)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

var cluster = []peers.Peer{
	{ID: "self", Address: "http://self"},
	{ID: "a", Address: "http://a"},
	{ID: "b", Address: "http://b"},
}

func TestFanout(t *testing.T) {
	pusher := newRecordingPusher("b")
	storeName := "fanout-" + t.Name()
	r := NewHttpRemoteStore(storeName, "self", peers.NewStaticDirectory(cluster...), pusher, Options{
		MaxBatchSize: 10,
		QueueSize:    100,
	})

	r.Start(context.Background())
	if got := r.Peers(); len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("Expected peers a and b, got %v", got)
	}

	for i := 0; i < 25; i++ {
		r.Put(testEntry(t, i))
	}
	r.Stop()

	if n, _ := pusher.count("a"); n != 25 {
		t.Errorf("Expected 25 entries for healthy peer, got %d", n)
	}
	if n, _ := pusher.count("self"); n != 0 {
		t.Errorf("Expected no pushes to self, got %d", n)
	}
	if _, calls := pusher.count("b"); calls == 0 {
		t.Errorf("Expected push attempts to failing peer")
	}

	_, calls := pusher.count("b")
	failures := metrics.GetOrCreateCounter(fmt.Sprintf(`dsd_sync_push_failures_total{store=%q}`, storeName)).Get()
	if failures != uint64(calls) {
		t.Errorf("Expected one failure per batch (%d), got %d", calls, failures)
	}
}

func TestReconcile(t *testing.T) {
	pusher := newRecordingPusher()
	r := NewHttpRemoteStore("reconcile", "self", peers.NewStaticDirectory(), pusher, Options{})
	defer r.Stop()

	r.Reconcile(cluster)
	if got := len(r.Peers()); got != 2 {
		t.Fatalf("Expected 2 peers, got %d", got)
	}

	// b leaves, c joins, a moves to a new address
	r.Reconcile([]peers.Peer{
		{ID: "a", Address: "http://a-new"},
		{ID: "c", Address: "http://c"},
	})
	got := r.Peers()
	if len(got) != 2 || got[0] != (peers.Peer{ID: "a", Address: "http://a-new"}) || got[1].ID != "c" {
		t.Fatalf("Unexpected peers after reconcile: %v", got)
	}

	r.Reconcile(nil)
	if got := len(r.Peers()); got != 0 {
		t.Errorf("Expected no peers, got %d", got)
	}
}

func TestRemovedPeerIsFlushed(t *testing.T) {
	pusher := newRecordingPusher()
	r := NewHttpRemoteStore("flush", "self", peers.NewStaticDirectory(), pusher, Options{})
	defer r.Stop()

	r.Reconcile(cluster)
	for i := 0; i < 10; i++ {
		r.Put(testEntry(t, i))
	}
	r.Reconcile(cluster[:2])

	if n, _ := pusher.count("b"); n != 10 {
		t.Errorf("Expected queued entries to be pushed before removal, got %d", n)
	}
}

func TestPeersAreRefreshed(t *testing.T) {
	dir := peers.NewStaticDirectory(cluster[0])
	r := NewHttpRemoteStore("refresh", "self", dir, newRecordingPusher(), Options{RefreshInterval: 10 * time.Millisecond})
	r.Start(context.Background())
	defer r.Stop()

	if got := len(r.Peers()); got != 0 {
		t.Fatalf("Expected no peers, got %d", got)
	}

	dir.Set(cluster...)
	deadline := time.Now().Add(5 * time.Second)
	for len(r.Peers()) != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Peers were not refreshed, got %v", r.Peers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDirectoryFailureKeepsPeers(t *testing.T) {
	r := NewHttpRemoteStore("directory", "self", failingDirectory{}, newRecordingPusher(), Options{})
	defer r.Stop()

	r.Reconcile(cluster)
	r.refresh(context.Background())
	if got := len(r.Peers()); got != 2 {
		t.Errorf("Expected peers to be kept, got %d", got)
	}
}

func TestLifecycle(t *testing.T) {
	pusher := newRecordingPusher()
	r := NewHttpRemoteStore("lifecycle", "self", peers.NewStaticDirectory(cluster...), pusher, Options{})

	// no peers known yet
	r.Put(testEntry(t, 0))

	r.Start(context.Background())
	r.Start(context.Background())
	r.Stop()
	r.Stop()

	if got := len(r.Peers()); got != 0 {
		t.Errorf("Expected all queues to be stopped, got %d", got)
	}

	// after stop
	r.Put(testEntry(t, 1))
	r.Reconcile(cluster)
	if got := len(r.Peers()); got != 0 {
		t.Errorf("Expected reconcile to be ignored after stop, got %d peers", got)
	}
}

func TestStats(t *testing.T) {
	r := NewHttpRemoteStore("stats", "self", peers.NewStaticDirectory(), newRecordingPusher(), Options{})
	defer r.Stop()

	r.Reconcile(cluster)
	stats := r.Stats()
	if len(stats) != 2 || stats[0].Name != "stats->a" || stats[1].Name != "stats->b" {
		t.Errorf("Unexpected stats %v", stats)
	}
}
