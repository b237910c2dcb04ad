package transport

import (
	"context"
	"io"
	"net/http"

	"github.com/ValentinKolb/dSD/rpc/common"
	"github.com/cockroachdb/errors"
)

var (
	// ErrStoreNotFound is returned for requests to stores the node does not serve (404)
	ErrStoreNotFound = errors.New("store not found")
	// ErrBadRequest is returned for bodies that can not be decoded or contain invalid entries (400)
	ErrBadRequest = errors.New("bad request")
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// SyncHandler serves the store-sync requests received by a server transport.
type SyncHandler interface {
	// Push applies a pushed batch of serialized entries to a store
	Push(store string, body []byte, contentType string) error
	// Pull returns all visible entries of a store, serialized for the accepted content type
	// (the configured serializer is used if accept names no known serializer)
	Pull(store string, accept string) (body []byte, contentType string, err error)
	// Health returns the node status rendered as JSON by GET /health
	Health() any
	// WriteMetrics writes node specific metrics in prometheus text format
	WriteMetrics(w io.Writer)
}

// IRPCServerTransport is the interface for the server side of the store-sync protocol
type IRPCServerTransport interface {
	// RegisterHandler registers the handler for all requests.
	// It must be called before Handler or Listen.
	RegisterHandler(handler SyncHandler)
	// Handler returns the http.Handler serving all routes
	Handler() http.Handler
	// Listen serves requests on config.Endpoint until ctx is cancelled
	Listen(ctx context.Context, config common.ServerConfig) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the client side of the store-sync protocol.
// baseURL is the address of a peer, e.g. http://10.0.0.2:8080
type IRPCClientTransport interface {
	// Push sends a serialized batch of entries to a store of a peer
	Push(ctx context.Context, baseURL, store string, body []byte, contentType string) error
	// Pull fetches all visible entries of a store of a peer
	Pull(ctx context.Context, baseURL, store string, accept string) (body []byte, contentType string, err error)
	// Close releases idle connections
	Close() error
}
