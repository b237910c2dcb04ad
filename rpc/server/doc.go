// Package server implements a node of the replicated service-discovery store.
//
// For every configured store the server runs:
//
//   - a local store: maple (in-memory) or oak (pebble under <data-dir>/<store>)
//     wrapped for merge semantics
//   - an HttpRemoteStore pushing local writes to all peers in batches
//   - a dstore.Store stamping versions, filtering reads and collecting garbage
//   - a Replicator pulling the full state of every peer at a fixed interval
//
// All stores share one peer directory and one SyncClient. The store-sync protocol
// is served through a transport.IRPCServerTransport, storeSyncAdapter translates
// its requests into Apply and GetAll calls and renders /health and /metrics.
//
// Usage Example:
//
//	config := common.DefaultServerConfig()
//	config.NodeID = "node-1"
//	config.Peers, _ = peers.ParsePeers("node-2=http://10.0.0.2:8080")
//
//	s, err := server.NewRPCServer(
//	  config,
//	  http.NewHttpServerTransport(false),
//	  serializer.NewBinarySerializer(),
//	)
//	if err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
//	// blocks until SIGINT or SIGTERM
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Pushed batches are decoded with the serializer named by their Content-Type,
// pulls are answered with the serializer named in the Accept header. The
// configured serializer is used if a request names none.
package server
