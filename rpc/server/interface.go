package server

import (
	"time"

	"github.com/ValentinKolb/dSD/lib/batch"
	"github.com/ValentinKolb/dSD/lib/peers"
	"github.com/ValentinKolb/dSD/lib/store"
)

// Health is the node status served by GET /health
type Health struct {
	NodeID string        `json:"node_id"`
	Uptime string        `json:"uptime"`
	Peers  []peers.Peer  `json:"peers"`
	Stores []StoreStatus `json:"stores"`
}

// StoreStatus describes a single store of the node
type StoreStatus struct {
	Name            string        `json:"name"`
	Local           store.Info    `json:"local"`
	Queues          []batch.Stats `json:"queues"`
	LastReplication *time.Time    `json:"last_replication,omitempty"`
}
