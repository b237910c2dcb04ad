package client

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dSD/lib/peers"
	"github.com/ValentinKolb/dSD/lib/store"
	"github.com/ValentinKolb/dSD/rpc/serializer"
	"github.com/ValentinKolb/dSD/rpc/transport"
	transportHttp "github.com/ValentinKolb/dSD/rpc/transport/http"
	"github.com/cockroachdb/errors"
)

// memoryHandler keeps pushed entries of the store "services" and answers pulls
// with a fixed serializer
type memoryHandler struct {
	mu      sync.Mutex
	entries []store.Entry
	answer  serializer.IEntrySerializer
}

func (h *memoryHandler) Push(name string, body []byte, contentType string) error {
	if name != "services" {
		return transport.ErrStoreNotFound
	}
	s, err := serializer.FromContentType(contentType)
	if err != nil {
		return errors.Mark(err, transport.ErrBadRequest)
	}
	entries, err := s.Deserialize(body)
	if err != nil {
		return errors.Mark(err, transport.ErrBadRequest)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entries...)
	return nil
}

func (h *memoryHandler) Pull(name string, _ string) ([]byte, string, error) {
	if name != "services" {
		return nil, "", transport.ErrStoreNotFound
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	body, err := h.answer.Serialize(h.entries)
	return body, h.answer.ContentType(), err
}

func (h *memoryHandler) Health() any            { return nil }
func (h *memoryHandler) WriteMetrics(io.Writer) {}

func newPeer(t *testing.T, h transport.SyncHandler) peers.Peer {
	t.Helper()
	tr := transportHttp.NewHttpServerTransport(false)
	tr.RegisterHandler(h)
	srv := httptest.NewServer(tr.Handler())
	t.Cleanup(srv.Close)
	return peers.Peer{ID: "node-2", Address: srv.URL}
}

func mustEntry(t *testing.T, key string, value []byte, version store.Version) store.Entry {
	t.Helper()
	var e store.Entry
	var err error
	if value == nil {
		e, err = store.NewTombstone([]byte(key), version, time.Now().UnixMilli())
	} else {
		e, err = store.NewEntry([]byte(key), value, version, time.Now().UnixMilli(), 0)
	}
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestPushAndFetch(t *testing.T) {
	serializers := []serializer.IEntrySerializer{
		serializer.NewJSONSerializer(),
		serializer.NewGOBSerializer(),
		serializer.NewBinarySerializer(),
	}

	for _, s := range serializers {
		t.Run(s.ContentType(), func(t *testing.T) {
			h := &memoryHandler{answer: s}
			peer := newPeer(t, h)
			c := NewSyncClient(transportHttp.NewHttpClientTransport(5*time.Second), s)
			defer c.Close()

			batch := []store.Entry{
				mustEntry(t, "web", []byte("10.0.0.1:80"), 1),
				mustEntry(t, "db", nil, 2),
				mustEntry(t, "empty", []byte{}, 3),
			}
			if err := c.PushEntries(context.Background(), peer, "services", batch); err != nil {
				t.Fatalf("PushEntries failed: %v", err)
			}

			got, err := c.FetchEntries(context.Background(), peer, "services")
			if err != nil {
				t.Fatalf("FetchEntries failed: %v", err)
			}
			if len(got) != len(batch) {
				t.Fatalf("Expected %d entries, got %d", len(batch), len(got))
			}
			for i := range batch {
				if !got[i].Equal(batch[i]) {
					t.Errorf("Entry %d: expected %v, got %v", i, batch[i], got[i])
				}
			}
		})
	}
}

func TestFetchDecodesByContentType(t *testing.T) {
	h := &memoryHandler{answer: serializer.NewJSONSerializer()}
	h.entries = []store.Entry{mustEntry(t, "web", []byte("a"), 7)}
	peer := newPeer(t, h)

	c := NewSyncClient(transportHttp.NewHttpClientTransport(5*time.Second), serializer.NewBinarySerializer())
	got, err := c.FetchEntries(context.Background(), peer, "services")
	if err != nil {
		t.Fatalf("FetchEntries failed: %v", err)
	}
	if len(got) != 1 || got[0].Version != 7 {
		t.Errorf("Unexpected entries %v", got)
	}
}

func TestErrors(t *testing.T) {
	peer := newPeer(t, &memoryHandler{answer: serializer.NewJSONSerializer()})
	c := NewSyncClient(transportHttp.NewHttpClientTransport(5*time.Second), serializer.NewJSONSerializer())

	_, err := c.FetchEntries(context.Background(), peer, "unknown")
	if !errors.Is(err, transport.ErrStoreNotFound) {
		t.Errorf("Expected ErrStoreNotFound, got %v", err)
	}

	err = c.PushEntries(context.Background(), peer, "unknown", nil)
	if !errors.Is(err, transport.ErrStoreNotFound) {
		t.Errorf("Expected ErrStoreNotFound, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.FetchEntries(ctx, peer, "services"); err == nil {
		t.Errorf("Expected error for cancelled context")
	}
}

func TestResponseSerializer(t *testing.T) {
	fallback := serializer.NewBinarySerializer()

	tests := []struct {
		contentType string
		want        string
	}{
		{"", serializer.ContentTypeBinary},
		{serializer.ContentTypeBinary, serializer.ContentTypeBinary},
		{"application/json; charset=utf-8", serializer.ContentTypeJSON},
		{serializer.ContentTypeGOB, serializer.ContentTypeGOB},
		{"text/plain", serializer.ContentTypeBinary},
	}
	for _, tt := range tests {
		if got := responseSerializer(tt.contentType, fallback).ContentType(); got != tt.want {
			t.Errorf("responseSerializer(%q) = %s, want %s", tt.contentType, got, tt.want)
		}
	}
}
