package maple

import (
	"runtime"
	"sync/atomic"

	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/ValentinKolb/dSD/lib/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// entryOverhead estimates the fixed bytes per entry (version, timestamp, max age, map slot)
const entryOverhead = 48

// --------------------------------------------------------------------------
// Core Maple store structure
// --------------------------------------------------------------------------

// mapleImpl is an in-memory store with sharded data
type mapleImpl struct {
	seed     uint64
	shards   []*xsync.MapOf[string, store.Entry]
	resolver store.ConflictResolver

	// number of failed compare-and-swap attempts, for Info()
	casRetries atomic.Uint64
}

// Options configures the mapleImpl behavior during initialization
type Options struct {
	NumShards int                    // Number of shards (0 = number of CPUs)
	Resolver  store.ConflictResolver // Conflict resolution (nil = store.LastWriterWins)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *Options {
	return &Options{
		NumShards: runtime.NumCPU(),
		Resolver:  store.LastWriterWins,
	}
}

// NewMapleStore creates a new in-memory store with the specified options (optional)
func NewMapleStore(opts *Options) store.LocalStore {
	if opts == nil {
		opts = DefaultOptions()
	}
	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = store.LastWriterWins
	}

	shards := make([]*xsync.MapOf[string, store.Entry], numShards)
	for i := range shards {
		shards[i] = xsync.NewMapOf[string, store.Entry]()
	}

	return &mapleImpl{
		seed:     util.GenerateSeed(),
		shards:   shards,
		resolver: resolver,
	}
}

// shard returns the shard responsible for key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) shard(key []byte) *xsync.MapOf[string, store.Entry] {
	return maple.shards[util.Slot(util.HashBytes(key, maple.seed), len(maple.shards))]
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Put merges the entry into the store using an optimistic compare-and-swap loop:
//
//  1. load the current entry for the key
//  2. if there is none, try to insert; if another writer was faster, retry
//  3. resolve the conflict between current and new entry; if the current entry
//     wins there is nothing to do
//  4. replace the entry only if the stored entry is still the one loaded in 1,
//     otherwise retry from the start
//
// Thread-safety: This method is thread-safe and never blocks on other writers.
func (maple *mapleImpl) Put(entry store.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	// copy the entry to prevent the caller from changing stored bytes
	entry = entry.Clone()
	key := string(entry.Key)
	shard := maple.shard(entry.Key)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			maple.casRetries.Add(1)
			runtime.Gosched()
		}

		current, loaded := shard.Load(key)
		if !loaded {
			if _, loaded = shard.LoadOrStore(key, entry); !loaded {
				return nil
			}
			continue
		}

		winner := maple.resolver.Resolve(current, entry)
		if winner.Equal(current) {
			return nil
		}

		if compareAndSwap(shard, key, current, winner) {
			return nil
		}
	}
}

// compareAndSwap replaces the entry for key with new if the stored entry still equals old.
func compareAndSwap(shard *xsync.MapOf[string, store.Entry], key string, old, new store.Entry) bool {
	swapped := false
	shard.Compute(key, func(stored store.Entry, loaded bool) (store.Entry, bool) {
		if !loaded {
			return stored, true // set delete to true because else the value will be created
		}
		if !stored.Equal(old) {
			return stored, false
		}
		swapped = true
		return new, false
	})
	return swapped
}

// Delete removes the entry for key if its version is the same as or before the given version.
// An older delete request never erases a newer state.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Delete(key []byte, version store.Version) error {
	maple.shard(key).Compute(string(key), func(stored store.Entry, loaded bool) (store.Entry, bool) {
		if !loaded {
			return stored, true
		}
		if stored.Version.Compare(version) == store.After {
			return stored, false
		}
		return store.Entry{}, true
	})
	return nil
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns a copy of the stored entry for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key []byte) (store.Entry, bool, error) {
	e, ok := maple.shard(key).Load(string(key))
	if !ok {
		return store.Entry{}, false, nil
	}
	return e.Clone(), true, nil
}

// GetAll returns copies of all stored entries. Each shard is read without a
// global lock, so there is no isolation across shards.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) GetAll() ([]store.Entry, error) {
	var entries []store.Entry
	for _, shard := range maple.shards {
		shard.Range(func(_ string, e store.Entry) bool {
			entries = append(entries, e.Clone())
			return true
		})
	}
	return entries, nil
}

// --------------------------------------------------------------------------
// Features and Metadata
// --------------------------------------------------------------------------

func (maple *mapleImpl) SupportsFeature(feature store.Feature) bool {
	supported := store.FeatureConflictResolution | store.FeatureVersionedDelete
	return supported&feature == feature
}

// Info returns statistics about the store
func (maple *mapleImpl) Info() store.Info {
	histogram := util.NewSizeHistogram()
	shardSizes := make([]float64, len(maple.shards))
	tombstones := 0

	for i, shard := range maple.shards {
		shard.Range(func(_ string, e store.Entry) bool {
			histogram.AddSample(len(e.Key) + len(e.Value))
			if e.IsTombstone() {
				tombstones++
			}
			return true
		})
		shardSizes[i] = float64(shard.Size())
	}

	entries := int(histogram.Count())
	meta := &struct {
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		CASRetries        uint64                 `json:"cas_retries"`
		Info              string                 `json:"info"`
	}{
		ShardCount:        len(maple.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		CASRetries:        maple.casRetries.Load(),
		Info:              "SizeBytes is an estimate.",
	}

	return store.Info{
		Entries:           entries,
		Tombstones:        tombstones,
		SizeBytes:         entries * histogram.EstimateEntrySize(entryOverhead),
		Implementation:    store.ImplMaple,
		SupportedFeatures: store.SupportedFeatures(maple),
		Metadata:          meta,
	}
}

// Close drops all entries.
func (maple *mapleImpl) Close() error {
	for _, shard := range maple.shards {
		shard.Clear()
	}
	return nil
}
