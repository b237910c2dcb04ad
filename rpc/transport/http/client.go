package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ValentinKolb/dSD/rpc/common"
	"github.com/ValentinKolb/dSD/rpc/transport"
	"github.com/cockroachdb/errors"
)

// maxErrorBody limits how much of an error response is kept
const maxErrorBody = 512

// StatusError is returned for responses with an unexpected status code
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http error: %s", e.Status)
	}
	return fmt.Sprintf("http error: %s: %s", e.Status, e.Body)
}

// Is makes errors.Is match the transport errors belonging to the status code
func (e *StatusError) Is(target error) bool {
	switch e.Code {
	case http.StatusNotFound:
		return target == transport.ErrStoreNotFound
	case http.StatusBadRequest:
		return target == transport.ErrBadRequest
	default:
		return false
	}
}

// NewHttpClientTransport creates a client transport. Every request is bounded by timeout.
func NewHttpClientTransport(timeout time.Duration) transport.IRPCClientTransport {
	return &httpClientTransport{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type httpClientTransport struct {
	client *http.Client
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Push(ctx context.Context, baseURL, store string, body []byte, contentType string) error {
	requestURL, err := syncURL(baseURL, store)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "create push request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "push to %s", requestURL)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

func (t *httpClientTransport) Pull(ctx context.Context, baseURL, store string, accept string) ([]byte, string, error) {
	requestURL, err := syncURL(baseURL, store)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "create pull request")
	}
	req.Header.Set("Accept", accept)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, "", errors.Wrapf(err, "pull from %s", requestURL)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, "", statusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrapf(err, "read pull response from %s", requestURL)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (t *httpClientTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// syncURL joins the peer address and the store-sync path of store
func syncURL(baseURL, store string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", errors.Wrapf(err, "invalid peer address %q", baseURL)
	}
	u.Path += common.SyncPath(store)
	return u.String(), nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Code:   resp.StatusCode,
		Status: resp.Status,
		Body:   strings.TrimSpace(string(body)),
	}
}

func closeBody(resp *http.Response) {
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		Logger.Warningf("Failed to close response body: %v", err)
	}
}
