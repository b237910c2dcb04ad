package store

import (
	"sync"

	"github.com/ValentinKolb/dSD/lib/util"
)

const defaultStripes = 64

// mergingStore adds conflict resolution and version gated deletes on top of a
// raw backend. Get-resolve-put sequences for the same key are serialized through
// a fixed set of lock stripes, different keys rarely contend.
type mergingStore struct {
	inner    LocalStore
	resolver ConflictResolver
	seed     uint64
	stripes  []sync.Mutex
}

// NewMergingStore wraps a backend that overwrites on Put and deletes
// unconditionally, so it can be used wherever merge semantics are required.
// Backends that already support both features are returned unchanged.
func NewMergingStore(inner LocalStore, resolver ConflictResolver) LocalStore {
	if inner.SupportsFeature(FeatureConflictResolution | FeatureVersionedDelete) {
		return inner
	}
	if resolver == nil {
		resolver = LastWriterWins
	}
	return &mergingStore{
		inner:    inner,
		resolver: resolver,
		seed:     util.GenerateSeed(),
		stripes:  make([]sync.Mutex, defaultStripes),
	}
}

func (m *mergingStore) lock(key []byte) func() {
	mu := &m.stripes[util.Slot(util.HashBytes(key, m.seed), len(m.stripes))]
	mu.Lock()
	return mu.Unlock
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.LocalStore)
// --------------------------------------------------------------------------

func (m *mergingStore) Put(entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	defer m.lock(entry.Key)()

	current, ok, err := m.inner.Get(entry.Key)
	if err != nil {
		return err
	}
	if !ok {
		return m.inner.Put(entry)
	}

	winner := m.resolver.Resolve(current, entry)
	if winner.Equal(current) {
		return nil
	}
	return m.inner.Put(winner)
}

func (m *mergingStore) Get(key []byte) (Entry, bool, error) {
	return m.inner.Get(key)
}

func (m *mergingStore) Delete(key []byte, version Version) error {
	defer m.lock(key)()

	current, ok, err := m.inner.Get(key)
	if err != nil || !ok {
		return err
	}
	if current.Version.Compare(version) == After {
		return nil
	}
	return m.inner.Delete(key, version)
}

func (m *mergingStore) GetAll() ([]Entry, error) {
	return m.inner.GetAll()
}

func (m *mergingStore) SupportsFeature(feature Feature) bool {
	supported := FeatureConflictResolution | FeatureVersionedDelete
	if m.inner.SupportsFeature(FeaturePersistence) {
		supported |= FeaturePersistence
	}
	return supported&feature == feature
}

func (m *mergingStore) Info() Info {
	info := m.inner.Info()
	info.Metadata = struct {
		Backend  Implementation `json:"backend"`
		Stripes  int            `json:"stripes"`
		Metadata interface{}    `json:"metadata,omitempty"`
	}{info.Implementation, len(m.stripes), info.Metadata}
	info.Implementation = ImplMerging
	info.SupportedFeatures = SupportedFeatures(m)
	return info
}

func (m *mergingStore) Close() error {
	return m.inner.Close()
}

// SupportedFeatures expands the feature bit set advertised by s into a list.
func SupportedFeatures(s LocalStore) []Feature {
	var features []Feature
	for _, f := range []Feature{FeatureConflictResolution, FeatureVersionedDelete, FeaturePersistence} {
		if s.SupportsFeature(f) {
			features = append(features, f)
		}
	}
	return features
}
