// Package client implements the client side of the store-sync protocol.
//
// SyncClient pushes batches of entries to the stores of other nodes and fetches
// their full state. It is used by the remote store (push fanout), the replicator
// (anti-entropy pulls) and the command line tools.
//
// Usage Example:
//
//	c := client.NewSyncClient(
//		http.NewHttpClientTransport(5*time.Second),
//		serializer.NewBinarySerializer(),
//	)
//	defer c.Close()
//
//	peer := peers.Peer{ID: "node-2", Address: "http://10.0.0.2:8080"}
//	entries, err := c.FetchEntries(ctx, peer, "services")
//
// Responses are decoded with the serializer matching their Content-Type, so nodes
// configured with different serializers can still replicate.
package client
