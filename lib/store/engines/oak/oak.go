package oak

import (
	"sync/atomic"

	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/ValentinKolb/dSD/lib/store/engines/oak/internal"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

// --------------------------------------------------------------------------
// Core Oak store structure
// --------------------------------------------------------------------------

// oakImpl is a persistent store with one pebble row per entry.
// It neither resolves conflicts nor gates deletes by version, wrap it with
// store.NewMergingStore where merge semantics are required.
type oakImpl struct {
	dir       string
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	closed    atomic.Bool
}

// Options configures the oakImpl behavior during initialization
type Options struct {
	FS   vfs.FS // File system to use (nil = vfs.Default)
	Sync bool   // Sync the write ahead log on every write
}

// DefaultOptions returns the default oakImpl options
func DefaultOptions() *Options {
	return &Options{
		FS:   vfs.Default,
		Sync: true,
	}
}

// NewOakStore opens (or creates) a persistent store in dir with the specified options (optional)
func NewOakStore(dir string, opts *Options) (store.LocalStore, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	fs := opts.FS
	if fs == nil {
		fs = vfs.Default
	}

	db, err := pebble.Open(dir, &pebble.Options{
		FS:     fs,
		Logger: pebbleLogger{},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble database in %q", dir)
	}

	writeOpts := pebble.NoSync
	if opts.Sync {
		writeOpts = pebble.Sync
	}

	return &oakImpl{
		dir:       dir,
		db:        db,
		writeOpts: writeOpts,
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.LocalStore)
// --------------------------------------------------------------------------

func (oak *oakImpl) Put(entry store.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if err := oak.db.Set(entry.Key, internal.Encode(entry), oak.writeOpts); err != nil {
		return errors.Wrapf(err, "put %q", entry.Key)
	}
	return nil
}

func (oak *oakImpl) Get(key []byte) (store.Entry, bool, error) {
	raw, closer, err := oak.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return store.Entry{}, false, nil
	}
	if err != nil {
		return store.Entry{}, false, errors.Wrapf(err, "get %q", key)
	}

	// Decode copies, so the pebble buffer can be released right after
	e, decodeErr := internal.Decode(key, raw)
	_ = closer.Close()

	if decodeErr != nil {
		oak.heal(key, decodeErr)
		return store.Entry{}, false, nil
	}
	return e, true, nil
}

// Delete removes the row for key. The version is ignored.
func (oak *oakImpl) Delete(key []byte, _ store.Version) error {
	if err := oak.db.Delete(key, oak.writeOpts); err != nil {
		return errors.Wrapf(err, "delete %q", key)
	}
	return nil
}

func (oak *oakImpl) GetAll() ([]store.Entry, error) {
	var entries []store.Entry
	corrupt, err := oak.scan(func(e store.Entry) {
		entries = append(entries, e)
	})
	if err != nil {
		return nil, err
	}
	for _, c := range corrupt {
		oak.heal(c.key, c.err)
	}
	return entries, nil
}

func (oak *oakImpl) SupportsFeature(feature store.Feature) bool {
	return store.FeaturePersistence&feature == feature
}

// Info returns statistics about the store. Entries and tombstones are counted
// with a full scan, the size is the disk usage reported by pebble.
func (oak *oakImpl) Info() store.Info {
	info := store.Info{
		Implementation:    store.ImplOak,
		SupportedFeatures: store.SupportedFeatures(oak),
	}

	if _, err := oak.scan(func(e store.Entry) {
		info.Entries++
		if e.IsTombstone() {
			info.Tombstones++
		}
	}); err != nil {
		Logger.Warningf("oak info scan of %s failed: %v", oak.dir, err)
	}

	m := oak.db.Metrics()
	info.SizeBytes = int(m.DiskSpaceUsage())
	info.Metadata = &struct {
		Dir         string `json:"dir"`
		Sync        bool   `json:"sync"`
		Flushes     int64  `json:"flushes"`
		Compactions int64  `json:"compactions"`
	}{
		Dir:         oak.dir,
		Sync:        oak.writeOpts == pebble.Sync,
		Flushes:     m.Flush.Count,
		Compactions: m.Compact.Count,
	}
	return info
}

func (oak *oakImpl) Close() error {
	if !oak.closed.CompareAndSwap(false, true) {
		return nil
	}
	return oak.db.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

type corruptRow struct {
	key []byte
	err error
}

// scan decodes every row in key order and calls fn for each valid entry.
// Rows that fail to decode are returned instead.
func (oak *oakImpl) scan(fn func(store.Entry)) ([]corruptRow, error) {
	iter, err := oak.db.NewIter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create iterator")
	}
	defer func() { _ = iter.Close() }()

	var corrupt []corruptRow
	for iter.First(); iter.Valid(); iter.Next() {
		raw, err := iter.ValueAndErr()
		if err != nil {
			return nil, errors.Wrapf(err, "read value of %q", iter.Key())
		}
		e, err := internal.Decode(iter.Key(), raw)
		if err != nil {
			corrupt = append(corrupt, corruptRow{key: append([]byte(nil), iter.Key()...), err: err})
			continue
		}
		fn(e)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterate")
	}
	return corrupt, nil
}

// heal removes a row that cannot be decoded. A healthy copy is expected to
// arrive again through replication.
func (oak *oakImpl) heal(key []byte, cause error) {
	Logger.Errorf("removing corrupt row %q from %s: %v", key, oak.dir, cause)
	if err := oak.db.Delete(key, oak.writeOpts); err != nil {
		Logger.Errorf("failed to remove corrupt row %q: %v", key, err)
	}
}

// pebbleLogger routes pebble's log output through the store logger
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

func (pebbleLogger) Errorf(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	Logger.Panicf(format, args...)
}
