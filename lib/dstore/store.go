package dstore

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("dstore")

const (
	DefaultTombstoneMaxAge = 24 * time.Hour
	DefaultGCInterval      = time.Hour
)

// RemoteStore forwards local writes to the other nodes. Put must never block
// on network I/O and must not report delivery failures.
type RemoteStore interface {
	Start(ctx context.Context)
	Put(entry store.Entry)
	Stop()
}

// Options configures a Store
type Options struct {
	TombstoneMaxAge time.Duration    // How long a tombstone is kept (0 = DefaultTombstoneMaxAge)
	GCInterval      time.Duration    // Interval of the GC sweep (0 = DefaultGCInterval)
	Now             func() time.Time // Time source (nil = time.Now)
}

const (
	stateNew int32 = iota
	stateRunning
	stateStopped
)

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// Store is the entry point for application code. It stamps writes with a fresh
// version, applies them to the local store, forwards them to the remote store,
// hides tombstones and expired entries from readers and periodically removes
// expired entries.
//
// Thread-safety: All methods are safe for concurrent use. Reads and writes only
// touch the local store and never block on the network.
type Store struct {
	name   string
	local  store.LocalStore
	remote RemoteStore
	opts   Options

	lastVersion atomic.Int64

	state  atomic.Int32
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writes    *metrics.Counter
	gcRemoved *metrics.Counter
}

// New creates a store. Local stores without merge semantics are wrapped with
// store.NewMergingStore. The remote store may be nil for a single node.
func New(name string, local store.LocalStore, remote RemoteStore, opts Options) (*Store, error) {
	if name == "" {
		return nil, store.NewError(store.RetCInvalidArgument, "store name must not be empty")
	}
	if local == nil {
		return nil, store.NewError(store.RetCInvalidArgument, "local store must not be nil")
	}
	if opts.TombstoneMaxAge < 0 || opts.GCInterval < 0 {
		return nil, store.NewError(store.RetCInvalidArgument,
			fmt.Sprintf("durations must be positive, got tombstone max age %s and gc interval %s", opts.TombstoneMaxAge, opts.GCInterval))
	}
	if opts.TombstoneMaxAge == 0 {
		opts.TombstoneMaxAge = DefaultTombstoneMaxAge
	}
	if opts.GCInterval == 0 {
		opts.GCInterval = DefaultGCInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Store{
		name:      name,
		local:     store.NewMergingStore(local, store.LastWriterWins),
		remote:    remote,
		opts:      opts,
		writes:    metrics.GetOrCreateCounter(fmt.Sprintf(`dsd_store_writes_total{store=%q}`, name)),
		gcRemoved: metrics.GetOrCreateCounter(fmt.Sprintf(`dsd_gc_removed_total{store=%q}`, name)),
	}, nil
}

// Name returns the name of the store
func (s *Store) Name() string {
	return s.name
}

// Local returns the local store holding the raw entries, tombstones included
func (s *Store) Local() store.LocalStore {
	return s.local
}

// TombstoneMaxAge returns how long tombstones are kept
func (s *Store) TombstoneMaxAge() time.Duration {
	return s.opts.TombstoneMaxAge
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Put stores value under key
func (s *Store) Put(key, value []byte) error {
	return s.put(key, value, 0)
}

// PutWithMaxAge stores value under key. Readers stop seeing the entry once it
// is older than maxAge, unless it is refreshed by another put.
func (s *Store) PutWithMaxAge(key, value []byte, maxAge time.Duration) error {
	if maxAge.Milliseconds() <= 0 {
		return store.NewError(store.RetCInvalidArgument, fmt.Sprintf("max age must be at least 1ms, got %s", maxAge))
	}
	return s.put(key, value, maxAge.Milliseconds())
}

func (s *Store) put(key, value []byte, maxAgeInMs int64) error {
	if value == nil {
		return store.NewError(store.RetCInvalidArgument, "value must not be nil, use Delete to remove a key")
	}
	version, now := s.stamp()
	e, err := store.NewEntry(key, value, version, now, maxAgeInMs)
	if err != nil {
		return err
	}
	return s.write(e)
}

// Delete writes a tombstone for key. The tombstone replicates like any other
// write and hides older values on every node.
func (s *Store) Delete(key []byte) error {
	version, now := s.stamp()
	e, err := store.NewTombstone(key, version, now)
	if err != nil {
		return err
	}
	return s.write(e)
}

func (s *Store) write(e store.Entry) error {
	if err := s.local.Put(e); err != nil {
		return err
	}
	s.writes.Inc()
	if s.remote != nil {
		s.remote.Put(e)
	}
	return nil
}

// stamp returns the version and timestamp for a new local write. Versions are
// the current time in milliseconds, but strictly increase across writes of this
// store even if the clock stalls or goes backwards, and are newer than every
// version applied from a peer. The clock saturates at math.MaxInt64, from there
// on stamps tie with the newest stored version instead of wrapping around.
func (s *Store) stamp() (store.Version, int64) {
	now := s.opts.Now().UnixMilli()
	for {
		last := s.lastVersion.Load()
		next := now
		if last == math.MaxInt64 {
			next = last
		} else if last >= now {
			next = last + 1
		}
		if s.lastVersion.CompareAndSwap(last, next) {
			return store.Version(next), now
		}
	}
}

// observe advances the version clock to a version received from a peer, so a
// local write following a replicated one is never lost to a clock skew.
func (s *Store) observe(version store.Version) {
	for {
		last := s.lastVersion.Load()
		if int64(version) <= last || s.lastVersion.CompareAndSwap(last, int64(version)) {
			return
		}
	}
}

// Apply merges replicated entries into the local store through the same conflict
// resolution as local writes. Expired entries are skipped. It returns the number
// of entries passed to the local store.
func (s *Store) Apply(entries ...store.Entry) (int, error) {
	now := s.opts.Now()
	applied := 0
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return applied, err
		}
		if e.Expired(now, s.opts.TombstoneMaxAge) {
			continue
		}
		if err := s.local.Put(e); err != nil {
			return applied, err
		}
		s.observe(e.Version)
		applied++
	}
	return applied, nil
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns the value for key if it exists, is not deleted and not expired.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	e, ok, err := s.local.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	if !e.Visible(s.opts.Now(), s.opts.TombstoneMaxAge) {
		return nil, false, nil
	}
	return e.Value, true, nil
}

// GetAll returns all entries that are neither deleted nor expired
func (s *Store) GetAll() ([]store.Entry, error) {
	all, err := s.local.GetAll()
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	visible := all[:0]
	for _, e := range all {
		if e.Visible(now, s.opts.TombstoneMaxAge) {
			visible = append(visible, e)
		}
	}
	return visible, nil
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// RunGC removes every expired entry from the local store and returns how many
// entries were removed. Deletes are gated by the version of the expired entry,
// so a newer entry written during the sweep is kept.
func (s *Store) RunGC() (int, error) {
	all, err := s.local.GetAll()
	if err != nil {
		return 0, errors.Wrapf(err, "gc of store %s", s.name)
	}

	now := s.opts.Now()
	removed := 0
	for _, e := range all {
		if !e.Expired(now, s.opts.TombstoneMaxAge) {
			continue
		}
		if err := s.local.Delete(e.Key, e.Version); err != nil {
			return removed, errors.Wrapf(err, "gc of store %s", s.name)
		}
		removed++
	}

	s.gcRemoved.Add(removed)
	return removed, nil
}

// runGC runs one GC cycle, failures are logged and never stop the schedule
func (s *Store) runGC() {
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("gc of store %s panicked: %v", s.name, r)
		}
	}()

	start := time.Now()
	removed, err := s.RunGC()
	if err != nil {
		Logger.Errorf("gc of store %s failed after removing %d entries: %v", s.name, removed, err)
		return
	}
	Logger.Debugf("gc of store %s removed %d entries in %s", s.name, removed, time.Since(start))
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start runs the GC once and then every GC interval, and starts the remote store.
// Calling Start more than once has no effect.
func (s *Store) Start(ctx context.Context) {
	if !s.state.CompareAndSwap(stateNew, stateRunning) {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.opts.GCInterval)
		defer ticker.Stop()

		s.runGC()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runGC()
			}
		}
	}()

	if s.remote != nil {
		s.remote.Start(ctx)
	}
}

// Stop cancels the GC and stops the remote store, which flushes pending
// replication batches. The local store stays open. Stop is idempotent.
func (s *Store) Stop() {
	if !s.state.CompareAndSwap(stateRunning, stateStopped) {
		s.state.CompareAndSwap(stateNew, stateStopped)
		return
	}
	s.cancel()
	s.wg.Wait()
	if s.remote != nil {
		s.remote.Stop()
	}
}
