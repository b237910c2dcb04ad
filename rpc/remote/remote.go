package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dSD/lib/batch"
	"github.com/ValentinKolb/dSD/lib/peers"
	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	gometrics "github.com/rcrowley/go-metrics"
)

var Logger = logger.GetLogger("remote")

const DefaultRefreshInterval = 5 * time.Second

// Pusher delivers a batch of entries to a store of a peer
type Pusher interface {
	PushEntries(ctx context.Context, peer peers.Peer, storeName string, entries []store.Entry) error
}

// Options configures a HttpRemoteStore
type Options struct {
	MaxBatchSize    int           // Max entries per push (0 = batch.DefaultOptions)
	QueueSize       int           // Max entries queued per peer (0 = batch.DefaultOptions)
	RefreshInterval time.Duration // Interval of peer set refreshes (0 = DefaultRefreshInterval)
}

const (
	stateNew int32 = iota
	stateRunning
	stateStopped
)

// peerQueue is the outbound queue of a single peer
type peerQueue struct {
	peer      peers.Peer
	processor *batch.Processor[store.Entry]
}

// --------------------------------------------------------------------------
// HttpRemoteStore
// --------------------------------------------------------------------------

// HttpRemoteStore forwards local writes of one store to all other nodes. Every
// peer has its own batch processor, so a slow or unreachable peer only fills (and
// eventually overflows) its own queue. Failed pushes are logged and dropped, the
// replicator repairs what push replication lost.
//
// The peer set is taken from the directory on Start and then refreshed every
// refresh interval. Queues of departed peers are stopped, which flushes them one
// last time.
//
// Thread-safety: All methods are safe for concurrent use.
type HttpRemoteStore struct {
	storeName string
	selfID    string
	directory peers.Directory
	pusher    Pusher
	opts      Options

	queues      *xsync.MapOf[string, *peerQueue]
	reconcileMu sync.Mutex

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pushFailures *metrics.Counter
}

// NewHttpRemoteStore creates a remote store for storeName. Peers with selfID are never pushed to.
func NewHttpRemoteStore(storeName, selfID string, directory peers.Directory, pusher Pusher, opts Options) *HttpRemoteStore {
	defaults := batch.DefaultOptions()
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = defaults.MaxBatchSize
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaults.QueueSize
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}

	return &HttpRemoteStore{
		storeName:    storeName,
		selfID:       selfID,
		directory:    directory,
		pusher:       pusher,
		opts:         opts,
		queues:       xsync.NewMapOf[string, *peerQueue](),
		pushFailures: metrics.GetOrCreateCounter(fmt.Sprintf(`dsd_sync_push_failures_total{store=%q}`, storeName)),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see dstore.RemoteStore)
// --------------------------------------------------------------------------

// Start reconciles the peer set right away and then every refresh interval.
// Calling Start more than once has no effect.
func (r *HttpRemoteStore) Start(ctx context.Context) {
	if !r.state.CompareAndSwap(stateNew, stateRunning) {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)

	r.refresh(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.opts.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.refresh(ctx)
			}
		}
	}()
}

// Put enqueues the entry for every known peer. It never blocks.
func (r *HttpRemoteStore) Put(entry store.Entry) {
	r.queues.Range(func(id string, q *peerQueue) bool {
		if err := q.processor.Put(entry); err != nil {
			// the queue was removed concurrently
			Logger.Debugf("Dropping %s for %s: %v", entry, id, err)
		}
		return true
	})
}

// Stop ends the refresh loop and stops all peer queues. Queued entries are
// pushed one last time before Stop returns. Stop is idempotent.
func (r *HttpRemoteStore) Stop() {
	if !r.state.CompareAndSwap(stateRunning, stateStopped) {
		r.state.CompareAndSwap(stateNew, stateStopped)
		return
	}
	r.cancel()
	r.wg.Wait()
	r.reconcile(nil)
}

// --------------------------------------------------------------------------
// Peer management
// --------------------------------------------------------------------------

// refresh fetches the peer set from the directory. On failure the current set is kept.
func (r *HttpRemoteStore) refresh(ctx context.Context) {
	current, err := r.directory.SelectAllPeers(ctx)
	if err != nil {
		if ctx.Err() == nil {
			Logger.Warningf("Failed to refresh peers of store %s, keeping %d peers: %v", r.storeName, r.queues.Size(), err)
		}
		return
	}
	r.Reconcile(current)
}

// Reconcile makes the set of peer queues match the given peers. New peers get a
// queue, queues of peers that are gone (or moved to another address) are stopped.
// The local node is skipped. Reconcile has no effect after Stop.
func (r *HttpRemoteStore) Reconcile(current []peers.Peer) {
	if r.state.Load() == stateStopped {
		return
	}
	r.reconcile(current)
}

func (r *HttpRemoteStore) reconcile(current []peers.Peer) {
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()

	desired := make(map[string]peers.Peer, len(current))
	for _, p := range peers.Without(current, r.selfID) {
		desired[p.ID] = p
	}

	var removed []*peerQueue
	r.queues.Range(func(id string, q *peerQueue) bool {
		if p, ok := desired[id]; !ok || p.Address != q.peer.Address {
			removed = append(removed, q)
		}
		return true
	})
	for _, q := range removed {
		r.queues.Delete(q.peer.ID)
		q.processor.Stop()
		Logger.Infof("Removed peer %s from store %s", q.peer, r.storeName)
	}

	for id, p := range desired {
		if _, ok := r.queues.Load(id); ok {
			continue
		}
		q, err := r.newPeerQueue(p)
		if err != nil {
			Logger.Errorf("Failed to create queue for peer %s: %v", p, err)
			continue
		}
		q.processor.Start()
		r.queues.Store(id, q)
		Logger.Infof("Added peer %s to store %s", p, r.storeName)
	}
}

func (r *HttpRemoteStore) newPeerQueue(peer peers.Peer) (*peerQueue, error) {
	name := fmt.Sprintf("%s->%s", r.storeName, peer.ID)
	handler := func(entries []store.Entry) error {
		// not bound to the lifecycle context, the final flush in Stop must still be
		// delivered. The transport timeout bounds every push.
		if err := r.pusher.PushEntries(context.Background(), peer, r.storeName, entries); err != nil {
			r.pushFailures.Inc()
			Logger.Warningf("Push of %d entries to %s failed: %v", len(entries), peer, err)
			return err
		}
		return nil
	}

	p, err := batch.New[store.Entry](name, handler, batch.Options{
		MaxBatchSize: r.opts.MaxBatchSize,
		QueueSize:    r.opts.QueueSize,
	})
	if err != nil {
		return nil, err
	}
	return &peerQueue{peer: peer, processor: p}, nil
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// Peers returns the peers that currently have a queue, sorted by ID
func (r *HttpRemoteStore) Peers() []peers.Peer {
	var result []peers.Peer
	r.queues.Range(func(_ string, q *peerQueue) bool {
		result = append(result, q.peer)
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Stats returns the counters of all peer queues, sorted by name
func (r *HttpRemoteStore) Stats() []batch.Stats {
	var result []batch.Stats
	r.queues.Range(func(_ string, q *peerQueue) bool {
		result = append(result, q.processor.Stats())
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Registries returns the metric registries of all peer queues, keyed by peer ID
func (r *HttpRemoteStore) Registries() map[string]gometrics.Registry {
	result := make(map[string]gometrics.Registry, r.queues.Size())
	r.queues.Range(func(id string, q *peerQueue) bool {
		result[id] = q.processor.Registry()
		return true
	})
	return result
}
