package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dSD/rpc/transport"
	"github.com/cockroachdb/errors"
)

// fakeHandler records pushes and serves a fixed pull response for the store "services"
type fakeHandler struct {
	mu     sync.Mutex
	pushed [][]byte
	types  []string
	fail   error
}

func (h *fakeHandler) Push(store string, body []byte, contentType string) error {
	if store != "services" {
		return errors.Wrapf(transport.ErrStoreNotFound, "%s", store)
	}
	if h.fail != nil {
		return h.fail
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushed = append(h.pushed, body)
	h.types = append(h.types, contentType)
	return nil
}

func (h *fakeHandler) Pull(store string, accept string) ([]byte, string, error) {
	if store != "services" {
		return nil, "", errors.Wrapf(transport.ErrStoreNotFound, "%s", store)
	}
	return []byte("entries for " + accept), accept, nil
}

func (h *fakeHandler) Health() any {
	return map[string]string{"node": "node-1"}
}

func (h *fakeHandler) WriteMetrics(w io.Writer) {
	_, _ = fmt.Fprintln(w, `dsd_test_metric{store="services"} 1`)
}

func newTestServer(t *testing.T, h transport.SyncHandler) *httptest.Server {
	t.Helper()
	tr := NewHttpServerTransport(true)
	tr.RegisterHandler(h)
	srv := httptest.NewServer(tr.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestPushPull(t *testing.T) {
	h := &fakeHandler{}
	srv := newTestServer(t, h)
	client := NewHttpClientTransport(5 * time.Second)
	defer client.Close()
	ctx := context.Background()

	if err := client.Push(ctx, srv.URL+"/", "services", []byte("batch"), "application/json"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	h.mu.Lock()
	if len(h.pushed) != 1 || string(h.pushed[0]) != "batch" || h.types[0] != "application/json" {
		t.Errorf("Unexpected push %q (%v)", h.pushed, h.types)
	}
	h.mu.Unlock()

	body, contentType, err := client.Pull(ctx, srv.URL, "services", "application/x-gob")
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if string(body) != "entries for application/x-gob" || contentType != "application/x-gob" {
		t.Errorf("Unexpected pull response %q (%s)", body, contentType)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		store    string
		fail     error
		wantCode int
		wantIs   error
	}{
		{"unknown store", "other", nil, http.StatusNotFound, transport.ErrStoreNotFound},
		{"bad request", "services", errors.Wrap(transport.ErrBadRequest, "decode"), http.StatusBadRequest, transport.ErrBadRequest},
		{"internal", "services", errors.New("disk full"), http.StatusInternalServerError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeHandler{fail: tt.fail})
			client := NewHttpClientTransport(5 * time.Second)

			err := client.Push(context.Background(), srv.URL, tt.store, []byte("x"), "application/json")
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("Expected *StatusError, got %v", err)
			}
			if statusErr.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, statusErr.Code)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("Expected %v to match %v", err, tt.wantIs)
			}
		})
	}
}

func TestUnreachablePeer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	client := NewHttpClientTransport(time.Second)
	if err := client.Push(context.Background(), addr, "services", nil, "application/json"); err == nil {
		t.Errorf("Expected error for unreachable peer")
	}
	if _, _, err := client.Pull(context.Background(), addr, "services", "application/json"); err == nil {
		t.Errorf("Expected error for unreachable peer")
	}
}

func TestTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	client := NewHttpClientTransport(50 * time.Millisecond)
	start := time.Now()
	if _, _, err := client.Pull(context.Background(), srv.URL, "services", "application/json"); err == nil {
		t.Errorf("Expected timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("Timeout was not applied")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, &fakeHandler{})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"node":"node-1"`) {
		t.Errorf("Unexpected health response %d: %s", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "dsd_test_metric") {
		t.Errorf("Expected node metrics in response:\n%s", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &fakeHandler{})

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/store-sync/services", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestSyncURL(t *testing.T) {
	got, err := syncURL("http://10.0.0.2:8080/", "services")
	if err != nil || got != "http://10.0.0.2:8080/store-sync/services" {
		t.Errorf("Unexpected url %s (%v)", got, err)
	}
}
