// Package peers describes the other nodes of the cluster.
//
// Peer discovery is an external concern. The replication components only
// depend on the Directory interface and call SelectAllPeers on every refresh or
// replication cycle, so any source (static configuration, DNS, a registry) can
// be plugged in. StaticDirectory serves the peers given on the command line.
package peers
