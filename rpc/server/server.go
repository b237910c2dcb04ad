package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/dSD/lib/dstore"
	"github.com/ValentinKolb/dSD/lib/peers"
	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/ValentinKolb/dSD/lib/store/engines/maple"
	"github.com/ValentinKolb/dSD/lib/store/engines/oak"
	"github.com/ValentinKolb/dSD/rpc/client"
	"github.com/ValentinKolb/dSD/rpc/common"
	"github.com/ValentinKolb/dSD/rpc/remote"
	"github.com/ValentinKolb/dSD/rpc/replicator"
	"github.com/ValentinKolb/dSD/rpc/serializer"
	"github.com/ValentinKolb/dSD/rpc/transport"
	transportHttp "github.com/ValentinKolb/dSD/rpc/transport/http"
	"github.com/cockroachdb/errors"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverStore bundles everything the node runs for one store
type serverStore struct {
	Store      *dstore.Store
	Remote     *remote.HttpRemoteStore
	Replicator *replicator.Replicator
}

// NewRPCServer creates a node serving all stores of the config.
// It takes a config, transport and serializer as parameters.
//
// Usage:
//
//	s, err := server.NewRPCServer(
//		config,
//		http.NewHttpServerTransport(false),
//		serializer.NewBinarySerializer(),
//	)
//	if err != nil {
//		panic(err)
//	}
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IEntrySerializer,
) (*RPCServer, error) {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server config")
	}

	// Init logger
	common.InitLoggers(config)

	s := &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		stores:     xsync.NewMapOf[string, *serverStore](),
		directory:  peers.NewStaticDirectory(config.Peers...),
		client:     client.NewSyncClient(transportHttp.NewHttpClientTransport(config.Timeout()), serializer),
		started:    time.Now(),
	}

	if err := s.init(); err != nil {
		_ = s.Close()
		return nil, err
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", config.String())
	return s, nil
}

// RPCServer is a node of the replicated store. It runs a distributed store, a
// remote store and a replicator per configured store and serves the store-sync
// protocol for all of them.
//
// Thread Safety: All methods are safe for concurrent use, Serve must only be
// called once.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IEntrySerializer
	stores     *xsync.MapOf[string, *serverStore]
	directory  *peers.StaticDirectory
	client     *client.SyncClient
	started    time.Time

	stopOnce  sync.Once
	closeOnce sync.Once
}

func (s *RPCServer) init() error {
	for _, name := range s.config.Stores {
		if _, ok := s.stores.Load(name); ok {
			return errors.Newf("store %s is configured twice", name)
		}

		local, err := s.createLocalStore(name)
		if err != nil {
			return errors.Wrapf(err, "create local store %s", name)
		}

		rs := remote.NewHttpRemoteStore(name, s.config.NodeID, s.directory, s.client, remote.Options{
			MaxBatchSize:    s.config.MaxBatchSize,
			QueueSize:       s.config.QueueSize,
			RefreshInterval: s.config.RemoteUpdateInterval,
		})

		ds, err := dstore.New(name, local, rs, dstore.Options{
			TombstoneMaxAge: s.config.TombstoneMaxAge,
			GCInterval:      s.config.GCInterval,
		})
		if err != nil {
			_ = local.Close()
			return errors.Wrapf(err, "create store %s", name)
		}

		s.stores.Store(name, &serverStore{
			Store:  ds,
			Remote: rs,
			Replicator: replicator.New(ds, name, s.config.NodeID, s.directory, s.client, replicator.Options{
				Interval: s.config.ReplicationInterval,
			}),
		})
		Logger.Infof("Created store %s (engine %s)", name, s.config.Engine)
	}

	s.transport.RegisterHandler(&storeSyncAdapter{server: s})
	return nil
}

// createLocalStore creates the engine configured for the node
func (s *RPCServer) createLocalStore(name string) (store.LocalStore, error) {
	switch s.config.Engine {
	case common.EngineDisk:
		local, err := oak.NewOakStore(filepath.Join(s.config.DataDir, name), oak.DefaultOptions())
		if err != nil {
			return nil, err
		}
		return store.NewMergingStore(local, store.LastWriterWins), nil
	default:
		return maple.NewMapleStore(maple.DefaultOptions()), nil
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start starts GC, push replication and anti-entropy of all stores
func (s *RPCServer) Start(ctx context.Context) {
	s.stores.Range(func(name string, ss *serverStore) bool {
		ss.Store.Start(ctx)
		ss.Replicator.Start(ctx)
		Logger.Infof("Started store %s", name)
		return true
	})
}

// Stop stops all background loops. Pending push batches are delivered before
// Stop returns. Stop is idempotent.
func (s *RPCServer) Stop() {
	s.stopOnce.Do(func() {
		s.stores.Range(func(name string, ss *serverStore) bool {
			ss.Replicator.Stop()
			ss.Store.Stop()
			Logger.Infof("Stopped store %s", name)
			return true
		})
	})
}

// Close releases the local stores and the client transport. It must be called after Stop.
func (s *RPCServer) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.stores.Range(func(name string, ss *serverStore) bool {
			if err := ss.Store.Local().Close(); err != nil {
				errs = append(errs, errors.Wrapf(err, "close store %s", name))
			}
			return true
		})
		if err := s.client.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// Serve starts the node and serves requests until SIGINT or SIGTERM is received.
// Afterward all loops are stopped and the local stores are closed.
func (s *RPCServer) Serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.Start(ctx)
	listenErr := s.transport.Listen(ctx, s.config)
	if listenErr != nil {
		Logger.Errorf("Transport failed: %v", listenErr)
	}

	s.Stop()
	return errors.Join(listenErr, s.Close())
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Handler returns the http.Handler of the transport, it serves all routes
func (s *RPCServer) Handler() http.Handler {
	return s.transport.Handler()
}

// Store returns the distributed store with the given name
func (s *RPCServer) Store(name string) (*dstore.Store, bool) {
	ss, ok := s.stores.Load(name)
	if !ok {
		return nil, false
	}
	return ss.Store, true
}

// Directory returns the peer directory. Replacing its peers takes effect with the
// next refresh of the remote stores and the next replication cycle.
func (s *RPCServer) Directory() *peers.StaticDirectory {
	return s.directory
}

// Replicator returns the replicator of the store with the given name
func (s *RPCServer) Replicator(name string) (*replicator.Replicator, bool) {
	ss, ok := s.stores.Load(name)
	if !ok {
		return nil, false
	}
	return ss.Replicator, true
}
