// Package transport defines the interfaces of the store-sync protocol used for
// push replication and pull anti-entropy between nodes:
//
//	POST /store-sync/{store}   apply a batch of entries, 204 on success
//	GET  /store-sync/{store}   all non-expired, non-tombstone entries, 200
//
// Key Components:
//
//   - IRPCServerTransport: Receives requests and routes them to a SyncHandler.
//
//   - IRPCClientTransport: Sends push and pull requests to peers.
//
//   - SyncHandler: Implemented by the server, it connects the transport to the
//     stores of the node.
//
//   - ErrStoreNotFound, ErrBadRequest: Errors mapped to 404 and 400 responses.
//
// The http subpackage provides the only implementation.
package transport
