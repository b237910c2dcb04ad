package replicator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dSD/lib/peers"
	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("replicator")

const (
	DefaultInterval    = time.Minute
	DefaultParallelism = 4
)

// Applier merges replicated entries into a store (implemented by dstore.Store)
type Applier interface {
	Apply(entries ...store.Entry) (int, error)
}

// Fetcher fetches all visible entries of a store of a peer (implemented by client.SyncClient)
type Fetcher interface {
	FetchEntries(ctx context.Context, peer peers.Peer, storeName string) ([]store.Entry, error)
}

// Options configures a Replicator
type Options struct {
	Interval    time.Duration    // Delay between two cycles (0 = DefaultInterval)
	Parallelism int              // Max peers pulled at the same time (0 = DefaultParallelism)
	Now         func() time.Time // Time source (nil = time.Now)
}

const (
	stateNew int32 = iota
	stateRunning
	stateStopped
)

// --------------------------------------------------------------------------
// Replicator
// --------------------------------------------------------------------------

// Replicator periodically pulls the full state of a store from every peer and
// merges it into the local store. It heals every divergence push replication
// leaves behind: dropped batches, peers that were down and peers that just joined.
//
// A peer that can not be reached or answers garbage is skipped for the cycle,
// it never aborts the cycle for the other peers.
//
// Thread-safety: All methods are safe for concurrent use. Cycles started by
// Start never overlap.
type Replicator struct {
	target    Applier
	storeName string
	selfID    string
	directory peers.Directory
	fetcher   Fetcher
	opts      Options

	lastReplication atomic.Int64 // unix ms of the last completed cycle, 0 = never

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cycles       *metrics.Counter
	peerFailures *metrics.Counter
}

// New creates a replicator pulling storeName into target
func New(target Applier, storeName, selfID string, directory peers.Directory, fetcher Fetcher, opts Options) *Replicator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Replicator{
		target:       target,
		storeName:    storeName,
		selfID:       selfID,
		directory:    directory,
		fetcher:      fetcher,
		opts:         opts,
		cycles:       metrics.GetOrCreateCounter(fmt.Sprintf(`dsd_replication_cycles_total{store=%q}`, storeName)),
		peerFailures: metrics.GetOrCreateCounter(fmt.Sprintf(`dsd_replication_peer_failures_total{store=%q}`, storeName)),
	}
}

// RunOnce runs a single cycle: every peer except the local node is fetched (at
// most Parallelism at a time) and the result is applied. It returns the number
// of entries passed to the target. Only a failing directory fails the cycle.
func (r *Replicator) RunOnce(ctx context.Context) (int, error) {
	all, err := r.directory.SelectAllPeers(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "select peers of store %s", r.storeName)
	}

	var applied atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)

	for _, peer := range peers.Without(all, r.selfID) {
		peer := peer // per-iteration copy (go1.21 loop semantics)
		g.Go(func() error {
			n, err := r.pull(gctx, peer)
			if err != nil {
				// skip the peer, the next cycle tries again
				r.peerFailures.Inc()
				Logger.Warningf("Replication of %s from %s failed: %v", r.storeName, peer, err)
				return nil
			}
			applied.Add(int64(n))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return int(applied.Load()), err
	}

	r.cycles.Inc()
	r.lastReplication.Store(r.opts.Now().UnixMilli())
	return int(applied.Load()), nil
}

// pull fetches the entries of one peer and applies them
func (r *Replicator) pull(ctx context.Context, peer peers.Peer) (int, error) {
	entries, err := r.fetcher.FetchEntries(ctx, peer, r.storeName)
	if err != nil {
		return 0, err
	}
	n, err := r.target.Apply(entries...)
	if err != nil {
		return n, errors.Wrapf(err, "apply %d entries", len(entries))
	}
	Logger.Debugf("Merged %d of %d entries of %s from %s", n, len(entries), r.storeName, peer)
	return n, nil
}

// runCycle runs one cycle, failures are logged and never stop the schedule
func (r *Replicator) runCycle(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			Logger.Errorf("Replication of %s panicked: %v", r.storeName, rec)
		}
	}()

	start := time.Now()
	n, err := r.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			Logger.Errorf("Replication of %s failed: %v", r.storeName, err)
		}
		return
	}
	Logger.Debugf("Replication of %s merged %d entries in %s", r.storeName, n, time.Since(start))
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start runs a cycle right away and then waits Interval after each completed
// cycle. Calling Start more than once has no effect.
func (r *Replicator) Start(ctx context.Context) {
	if !r.state.CompareAndSwap(stateNew, stateRunning) {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				r.runCycle(ctx)
				timer.Reset(r.opts.Interval)
			}
		}
	}()
}

// Stop cancels a running cycle and waits until the loop has exited. Stop is idempotent.
func (r *Replicator) Stop() {
	if !r.state.CompareAndSwap(stateRunning, stateStopped) {
		r.state.CompareAndSwap(stateNew, stateStopped)
		return
	}
	r.cancel()
	r.wg.Wait()
}

// LastReplication returns the time the last cycle completed, zero if none has yet
func (r *Replicator) LastReplication() time.Time {
	ms := r.lastReplication.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// StoreName returns the name of the replicated store
func (r *Replicator) StoreName() string {
	return r.storeName
}
