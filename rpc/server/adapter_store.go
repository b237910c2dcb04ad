package server

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/ValentinKolb/dSD/rpc/common"
	"github.com/ValentinKolb/dSD/rpc/serializer"
	"github.com/ValentinKolb/dSD/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	gometrics "github.com/rcrowley/go-metrics"
)

// storeSyncAdapter translates store-sync requests into calls of the distributed
// stores of a server (implements transport.SyncHandler)
type storeSyncAdapter struct {
	server *RPCServer
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.SyncHandler)
// --------------------------------------------------------------------------

func (a *storeSyncAdapter) Push(name string, body []byte, contentType string) error {
	ss, err := a.lookup(name)
	if err != nil {
		return err
	}
	requestCounter(name, common.MsgTPush).Inc()

	s := a.server.serializer
	if contentType != "" {
		if s, err = serializer.FromContentType(contentType); err != nil {
			return errors.Mark(err, transport.ErrBadRequest)
		}
	}

	entries, err := s.Deserialize(body)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "decode entries"), transport.ErrBadRequest)
	}

	applied, err := ss.Store.Apply(entries...)
	if err != nil {
		if errors.Is(err, store.ErrInvalidArgument) {
			return errors.Mark(err, transport.ErrBadRequest)
		}
		return err
	}

	Logger.Debugf("Applied %d of %d pushed entries to %s", applied, len(entries), name)
	return nil
}

func (a *storeSyncAdapter) Pull(name string, accept string) ([]byte, string, error) {
	ss, err := a.lookup(name)
	if err != nil {
		return nil, "", err
	}
	requestCounter(name, common.MsgTPull).Inc()

	entries, err := ss.Store.GetAll()
	if err != nil {
		return nil, "", err
	}

	s := a.negotiate(accept)
	body, err := s.Serialize(entries)
	if err != nil {
		return nil, "", errors.Wrapf(err, "serialize %d entries of %s", len(entries), name)
	}
	return body, s.ContentType(), nil
}

func (a *storeSyncAdapter) Health() any {
	h := Health{
		NodeID: a.server.config.NodeID,
		Uptime: time.Since(a.server.started).Round(time.Second).String(),
		Peers:  a.server.config.Peers,
	}

	a.server.stores.Range(func(name string, ss *serverStore) bool {
		status := StoreStatus{
			Name:   name,
			Local:  ss.Store.Local().Info(),
			Queues: ss.Remote.Stats(),
		}
		if last := ss.Replicator.LastReplication(); !last.IsZero() {
			status.LastReplication = &last
		}
		h.Stores = append(h.Stores, status)
		return true
	})
	sort.Slice(h.Stores, func(i, j int) bool { return h.Stores[i].Name < h.Stores[j].Name })

	return h
}

// WriteMetrics writes the per store gauges and the counters of every peer queue
func (a *storeSyncAdapter) WriteMetrics(w io.Writer) {
	a.server.stores.Range(func(name string, ss *serverStore) bool {
		info := ss.Store.Local().Info()
		_, _ = fmt.Fprintf(w, "dsd_store_entries{store=%q} %d\n", name, info.Entries)
		_, _ = fmt.Fprintf(w, "dsd_store_tombstones{store=%q} %d\n", name, info.Tombstones)
		_, _ = fmt.Fprintf(w, "dsd_store_size_bytes{store=%q} %d\n", name, info.SizeBytes)
		if last := ss.Replicator.LastReplication(); !last.IsZero() {
			_, _ = fmt.Fprintf(w, "dsd_replication_last_timestamp_seconds{store=%q} %d\n", name, last.Unix())
		}

		for peerID, registry := range ss.Remote.Registries() {
			registry.Each(func(metric string, i interface{}) {
				var value int64
				switch m := i.(type) {
				case gometrics.Counter:
					value = m.Count()
				case gometrics.Gauge:
					value = m.Value()
				default:
					return
				}
				_, _ = fmt.Fprintf(w, "dsd_push_queue_%s{store=%q,peer=%q} %d\n", metric, name, peerID, value)
			})
		}
		return true
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (a *storeSyncAdapter) lookup(name string) (*serverStore, error) {
	ss, ok := a.server.stores.Load(name)
	if !ok {
		return nil, errors.Wrapf(transport.ErrStoreNotFound, "%q", name)
	}
	return ss, nil
}

// negotiate picks the first serializer named in an Accept header, the configured
// serializer if there is none
func (a *storeSyncAdapter) negotiate(accept string) serializer.IEntrySerializer {
	for _, mediaRange := range strings.Split(accept, ",") {
		if s, err := serializer.FromContentType(strings.TrimSpace(mediaRange)); err == nil {
			return s
		}
	}
	return a.server.serializer
}

// requestCounter returns the counter of store-sync requests. Only called for
// known stores, so the number of series is bounded.
func requestCounter(name string, op common.MessageType) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dsd_sync_requests_total{store=%q,op=%q}`, name, op))
}
