package common

import "fmt"

// --------------------------------------------------------------------------
// Store-sync protocol
// --------------------------------------------------------------------------

// SyncPathPrefix is the path of the store-sync endpoints, the store name is appended
const SyncPathPrefix = "/store-sync/"

// SyncPath returns the store-sync path of a store
func SyncPath(store string) string {
	return SyncPathPrefix + store
}

// MessageType names the store-sync operations in logs and metrics.
type MessageType uint8

const (
	MsgTPush MessageType = iota // POST /store-sync/{store}: apply a batch of entries
	MsgTPull                    // GET  /store-sync/{store}: return all visible entries
)

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTPush:
		return "push"
	case MsgTPull:
		return "pull"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}
