package peers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Peer is another node participating in replication
type Peer struct {
	ID      string `json:"id"`
	Address string `json:"address"` // base URL of the peer, e.g. http://10.0.0.2:8080
}

func (p Peer) String() string {
	return fmt.Sprintf("%s@%s", p.ID, p.Address)
}

// Directory yields the current peer set. The result may be empty and may change
// between calls.
type Directory interface {
	SelectAllPeers(ctx context.Context) ([]Peer, error)
}

// --------------------------------------------------------------------------
// Static directory
// --------------------------------------------------------------------------

// StaticDirectory is a Directory with a fixed peer list that can be replaced.
//
// Thread-safety: All methods are safe for concurrent use.
type StaticDirectory struct {
	mu    sync.RWMutex
	peers []Peer
}

// NewStaticDirectory returns a directory holding the given peers
func NewStaticDirectory(peers ...Peer) *StaticDirectory {
	d := &StaticDirectory{}
	d.Set(peers...)
	return d
}

// SelectAllPeers returns a copy of the current peer list
func (d *StaticDirectory) SelectAllPeers(ctx context.Context) ([]Peer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Peer(nil), d.peers...), nil
}

// Set replaces the peer list
func (d *StaticDirectory) Set(peers ...Peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers = append([]Peer(nil), peers...)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// Without returns the peers whose ID is not selfID
func Without(peers []Peer, selfID string) []Peer {
	filtered := make([]Peer, 0, len(peers))
	for _, p := range peers {
		if p.ID != selfID {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// ParsePeers parses a comma separated list of id=url pairs,
// e.g. "node-2=http://10.0.0.2:8080,node-3=http://10.0.0.3:8080".
// Whitespace around items is ignored, an empty string yields no peers.
func ParsePeers(s string) ([]Peer, error) {
	var peers []Peer
	seen := make(map[string]bool)

	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		id, address, ok := strings.Cut(item, "=")
		id, address = strings.TrimSpace(id), strings.TrimRight(strings.TrimSpace(address), "/")
		if !ok || id == "" || address == "" {
			return nil, errors.Newf("invalid peer %q: expected id=url", item)
		}
		if seen[id] {
			return nil, errors.Newf("duplicate peer id %q", id)
		}

		u, err := url.Parse(address)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, errors.Newf("invalid peer address %q for %s", address, id)
		}

		seen[id] = true
		peers = append(peers, Peer{ID: id, Address: address})
	}

	return peers, nil
}
