package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dSD/lib/peers"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// StoreEngine selects the local store implementation
type StoreEngine string

const (
	EngineMemory StoreEngine = "memory" // maple, in-memory
	EngineDisk   StoreEngine = "disk"   // oak, pebble on disk
)

// ServerConfig holds all configuration parameters of a node.
type ServerConfig struct {
	// Node identity and cluster
	NodeID string
	Peers  []peers.Peer

	// Stores served by this node
	Stores  []string
	Engine  StoreEngine
	DataDir string

	// Distributed store parameters
	TombstoneMaxAge time.Duration
	GCInterval      time.Duration

	// Replication parameters
	MaxBatchSize         int
	QueueSize            int
	RemoteUpdateInterval time.Duration
	ReplicationInterval  time.Duration

	// timeout of outgoing store-sync requests
	TimeoutSecond int64

	// HTTP api settings
	Endpoint string

	// Logging configuration
	LogLevel string
}

// DefaultServerConfig returns a config with the default values of all options
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Stores:               []string{"services"},
		Engine:               EngineMemory,
		DataDir:              "data",
		TombstoneMaxAge:      24 * time.Hour,
		GCInterval:           time.Hour,
		MaxBatchSize:         1000,
		QueueSize:            1000,
		RemoteUpdateInterval: 5 * time.Second,
		ReplicationInterval:  time.Minute,
		TimeoutSecond:        5,
		Endpoint:             "0.0.0.0:8080",
		LogLevel:             "info",
	}
}

// Timeout returns the timeout of outgoing requests
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// Validate checks the configuration for invalid values
func (c *ServerConfig) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, errors.Newf(format, args...))
		}
	}

	check(c.NodeID != "", "node id must not be empty")
	check(len(c.Stores) > 0, "at least one store is required")
	for _, name := range c.Stores {
		check(name != "" && !strings.ContainsAny(name, "/ "), "invalid store name %q", name)
	}
	check(c.Engine == EngineMemory || c.Engine == EngineDisk, "engine must be %s or %s, got %q", EngineMemory, EngineDisk, c.Engine)
	check(c.Engine != EngineDisk || c.DataDir != "", "data dir is required for engine %s", EngineDisk)
	check(c.TombstoneMaxAge > 0, "tombstone max age must be positive, got %s", c.TombstoneMaxAge)
	check(c.GCInterval > 0, "gc interval must be positive, got %s", c.GCInterval)
	check(c.MaxBatchSize > 0, "max batch size must be positive, got %d", c.MaxBatchSize)
	check(c.QueueSize > 0, "queue size must be positive, got %d", c.QueueSize)
	check(c.RemoteUpdateInterval > 0, "remote update interval must be positive, got %s", c.RemoteUpdateInterval)
	check(c.ReplicationInterval > 0, "replication interval must be positive, got %s", c.ReplicationInterval)
	check(c.TimeoutSecond > 0, "timeout must be positive, got %d", c.TimeoutSecond)
	check(c.Endpoint != "", "endpoint must not be empty")
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Node Identity
	addSection("Node Identity")
	addField("Node ID", c.NodeID)

	// Stores
	addSection("Stores")
	addField("Names", strings.Join(c.Stores, ", "))
	addField("Engine", string(c.Engine))
	if c.Engine == EngineDisk {
		addField("Data Directory", c.DataDir)
	}
	addField("Tombstone Max Age", c.TombstoneMaxAge.String())
	addField("GC Interval", c.GCInterval.String())

	// Replication
	addSection("Replication")
	addField("Max Batch Size", fmt.Sprintf("%d", c.MaxBatchSize))
	addField("Queue Size", fmt.Sprintf("%d", c.QueueSize))
	addField("Remote Update", c.RemoteUpdateInterval.String())
	addField("Anti-Entropy", c.ReplicationInterval.String())

	// Peers
	addSection("Peers")
	if len(c.Peers) == 0 {
		sb.WriteString("  none (single node)\n")
	}
	for _, p := range c.Peers {
		addField(p.ID, p.Address)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig configures the command line client
type ClientConfig struct {
	Endpoint      string
	TimeoutSecond int
	Store         string
}

// Timeout returns the request timeout
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	sb.WriteString("\nCLIENT CONFIGURATION\n")
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Endpoint", c.Endpoint))
	sb.WriteString(fmt.Sprintf("  %-22s: %d sec\n", "Timeout", c.TimeoutSecond))
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Store", c.Store))

	return sb.String()
}
