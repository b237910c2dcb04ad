package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ValentinKolb/dSD/rpc/common"
	"github.com/ValentinKolb/dSD/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/http")

const (
	// maxBodyBytes limits the size of pushed batches
	maxBodyBytes = 64 << 20

	shutdownTimeout = 10 * time.Second
)

// NewHttpServerTransport creates a server transport. Requests are logged at debug level if debug is set.
func NewHttpServerTransport(debug bool) transport.IRPCServerTransport {
	return &httpServerTransport{debug: debug}
}

type httpServerTransport struct {
	handler transport.SyncHandler
	debug   bool

	once   sync.Once
	router http.Handler
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.SyncHandler) {
	t.handler = handler
}

func (t *httpServerTransport) Handler() http.Handler {
	t.once.Do(func() {
		r := chi.NewRouter()
		if t.debug {
			r.Use(loggerMiddleware)
		}

		r.Post(common.SyncPathPrefix+"{store}", t.handlePush)
		r.Get(common.SyncPathPrefix+"{store}", t.handlePull)
		r.Get("/metrics", t.handleMetrics)
		r.Get("/health", t.handleHealth)

		t.router = r
	})
	return t.router
}

func (t *httpServerTransport) Listen(ctx context.Context, config common.ServerConfig) error {
	if t.handler == nil {
		return errors.New("no handler registered")
	}

	srv := &http.Server{
		Addr:              config.Endpoint,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		Logger.Infof("Starting HTTP server on %s", config.Endpoint)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "listen on %s", config.Endpoint)
	case <-ctx.Done():
	}

	Logger.Infof("Shutting down HTTP server on %s", config.Endpoint)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

// handlePush applies the request body to the store and answers 204
func (t *httpServerTransport) handlePush(w http.ResponseWriter, r *http.Request) {
	store := chi.URLParam(r, "store")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	defer r.Body.Close()
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if err := t.handler.Push(store, body, r.Header.Get("Content-Type")); err != nil {
		writeError(w, store, common.MsgTPush, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePull writes all visible entries of the store
func (t *httpServerTransport) handlePull(w http.ResponseWriter, r *http.Request) {
	store := chi.URLParam(r, "store")

	body, contentType, err := t.handler.Pull(store, r.Header.Get("Accept"))
	if err != nil {
		writeError(w, store, common.MsgTPull, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err = w.Write(body); err != nil {
		Logger.Warningf("Failed to write pull response for %s: %v", store, err)
	}
}

// handleMetrics writes the process wide metrics followed by the node metrics
func (t *httpServerTransport) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
	t.handler.WriteMetrics(w)
}

// handleHealth writes the node status as JSON
func (t *httpServerTransport) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(t.handler.Health()); err != nil {
		Logger.Warningf("Failed to write health response: %v", err)
	}
}

// writeError maps handler errors to status codes
func writeError(w http.ResponseWriter, store string, op common.MessageType, err error) {
	switch {
	case errors.Is(err, transport.ErrStoreNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, transport.ErrBadRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		Logger.Errorf("%s of store %s failed: %v", op, store, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware is a middleware that logs HTTP requests
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create custom response writer to capture status code
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		// Process request
		next.ServeHTTP(rw, r)

		// Log the request
		duration := time.Since(start)
		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, duration)
	})
}
