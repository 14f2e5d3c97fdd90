// ABOUTME: Tests for the worker control-plane client.
// ABOUTME: Covers token injection, timeout translation, and transport failures.

package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garapadev/garapasystem-sub001/internal/session"
)

// fakeControlServer records control requests and plays back canned responses.
type fakeControlServer struct {
	mu       sync.Mutex
	requests map[string][]controlRequest // path -> bodies
	response controlResponse
	status   int
	delay    time.Duration
}

func newFakeControlServer() *fakeControlServer {
	return &fakeControlServer{
		requests: make(map[string][]controlRequest),
		response: controlResponse{Status: "connecting"},
		status:   http.StatusOK,
	}
}

func (f *fakeControlServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.requests[r.URL.Path] = append(f.requests[r.URL.Path], req)
	delay := f.delay
	status := f.status
	resp := f.response
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeControlServer) requestsFor(path string) []controlRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]controlRequest(nil), f.requests[path]...)
}

func newTestClient(baseURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL:       baseURL,
		AdminToken:    "admin-secret",
		StartTimeout:  time.Second,
		StatusTimeout: 200 * time.Millisecond,
		StopTimeout:   200 * time.Millisecond,
	}, slog.Default())
}

func TestClientStartSession(t *testing.T) {
	fake := newFakeControlServer()
	fake.response = controlResponse{Status: "qrcode", QRCode: "ABC123"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client := newTestClient(srv.URL)

	report, err := client.StartSession(context.Background(), "s1", "k1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusQrRequired, report.Status)
	assert.Equal(t, "ABC123", report.QRCode)

	reqs := fake.requestsFor("/start")
	require.Len(t, reqs, 1)
	assert.Equal(t, "s1", reqs[0].Session)
	assert.Equal(t, "k1", reqs[0].SessionKey)
	assert.Equal(t, "admin-secret", reqs[0].Token, "client must inject its own configured token")
}

func TestClientQueryStatus(t *testing.T) {
	fake := newFakeControlServer()
	fake.response = controlResponse{Status: "connected"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	report, err := newTestClient(srv.URL).QueryStatus(context.Background(), "s1", "k1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusConnected, report.Status)
	assert.Empty(t, report.QRCode)
	assert.Len(t, fake.requestsFor("/status"), 1)
}

func TestClientStopSession(t *testing.T) {
	fake := newFakeControlServer()
	fake.response = controlResponse{Status: "disconnected"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	err := newTestClient(srv.URL).StopSession(context.Background(), "s1", "k1")
	require.NoError(t, err)
	assert.Len(t, fake.requestsFor("/disconnect"), 1)
}

func TestClientTimeout(t *testing.T) {
	fake := newFakeControlServer()
	fake.delay = time.Second // well past the 200ms status timeout
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := newTestClient(srv.URL).QueryStatus(context.Background(), "s1", "k1")
	assert.ErrorIs(t, err, ErrWorkerTimeout)
}

func TestClientTransportFailure(t *testing.T) {
	srv := httptest.NewServer(newFakeControlServer())
	url := srv.URL
	srv.Close() // connection refused from here on

	_, err := newTestClient(url).StartSession(context.Background(), "s1", "k1")
	assert.ErrorIs(t, err, ErrWorkerUnavailable)
}

func TestClientRejectedCall(t *testing.T) {
	fake := newFakeControlServer()
	fake.status = http.StatusUnauthorized
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := newTestClient(srv.URL).StartSession(context.Background(), "s1", "k1")
	assert.ErrorIs(t, err, ErrWorkerUnavailable)
}

func TestClientUnknownStatus(t *testing.T) {
	fake := newFakeControlServer()
	fake.response = controlResponse{Status: "exploded"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := newTestClient(srv.URL).QueryStatus(context.Background(), "s1", "k1")
	assert.ErrorIs(t, err, ErrWorkerUnavailable)
}
