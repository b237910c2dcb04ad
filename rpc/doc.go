// Package rpc contains the network side of dSD: the store-sync protocol between
// nodes and the node that runs it.
//
// The package is organized into several subpackages:
//
//   - common: Server and client configuration, protocol constants and logging.
//
//   - transport: The store-sync transport interfaces and their HTTP
//     implementation (chi router on the server side).
//
//   - serializer: Entry batch serialization (JSON, GOB, Binary). Peers negotiate
//     the format with Content-Type and Accept headers.
//
//   - client: SyncClient pushing entry batches to and fetching full states from peers.
//
//   - remote: HttpRemoteStore, the push fanout with one batch processor per peer.
//
//   - replicator: Periodic pull based anti-entropy.
//
//   - server: A node serving a set of stores, wiring all of the above.
package rpc
