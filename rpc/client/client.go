package client

import (
	"context"

	"github.com/ValentinKolb/dSD/lib/peers"
	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/ValentinKolb/dSD/rpc/serializer"
	"github.com/ValentinKolb/dSD/rpc/transport"
	"github.com/cockroachdb/errors"
)

// SyncClient speaks the store-sync protocol with other nodes. It serializes entry
// batches with the configured serializer and sends them with the client transport.
//
// Thread-safety: SyncClient is safe for concurrent use if the transport is.
type SyncClient struct {
	transport  transport.IRPCClientTransport
	serializer serializer.IEntrySerializer
}

// NewSyncClient creates a client using the given transport and serializer
func NewSyncClient(transport transport.IRPCClientTransport, serializer serializer.IEntrySerializer) *SyncClient {
	return &SyncClient{
		transport:  transport,
		serializer: serializer,
	}
}

// PushEntries sends a batch of entries to a store of a peer (POST /store-sync/{store})
func (c *SyncClient) PushEntries(ctx context.Context, peer peers.Peer, storeName string, entries []store.Entry) error {
	body, err := c.serializer.Serialize(entries)
	if err != nil {
		return errors.Wrapf(err, "serialize %d entries for %s", len(entries), peer.ID)
	}

	if err := c.transport.Push(ctx, peer.Address, storeName, body, c.serializer.ContentType()); err != nil {
		return errors.Wrapf(err, "push %d entries of %s to %s", len(entries), storeName, peer)
	}
	return nil
}

// FetchEntries fetches all visible entries of a store of a peer (GET /store-sync/{store})
func (c *SyncClient) FetchEntries(ctx context.Context, peer peers.Peer, storeName string) ([]store.Entry, error) {
	body, contentType, err := c.transport.Pull(ctx, peer.Address, storeName, c.serializer.ContentType())
	if err != nil {
		return nil, errors.Wrapf(err, "pull %s from %s", storeName, peer)
	}

	entries, err := responseSerializer(contentType, c.serializer).Deserialize(body)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s from %s", storeName, peer)
	}
	return entries, nil
}

// Close releases the resources of the transport
func (c *SyncClient) Close() error {
	return c.transport.Close()
}
