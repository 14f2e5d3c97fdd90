// ABOUTME: Request/response client for the worker's control endpoints.
// ABOUTME: Each call carries its own bounded timeout and injects the configured admin token.

package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/garapadev/garapasystem-sub001/internal/session"
)

// ClientConfig holds the worker control-plane address, credential, and
// per-operation timeouts.
type ClientConfig struct {
	BaseURL       string
	AdminToken    string
	StartTimeout  time.Duration
	StatusTimeout time.Duration
	StopTimeout   time.Duration
}

// Client issues control-plane calls to the worker. Every call authenticates
// with the gateway's own configured token; externally supplied tokens are
// never forwarded, so the worker boundary cannot bypass the gateway's token
// check.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a control-plane client for the worker at cfg.BaseURL.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{},
		logger: logger.With("component", "worker-client"),
	}
}

// StatusReport is the worker's immediately-known view of a session.
type StatusReport struct {
	Status session.Status
	QRCode string
}

// controlRequest is the JSON body sent on every control call.
type controlRequest struct {
	Session    string `json:"session"`
	SessionKey string `json:"sessionKey"`
	Token      string `json:"token"`
}

// controlResponse is the JSON body returned by the worker.
type controlResponse struct {
	Status string `json:"status"`
	QRCode string `json:"qrCode,omitempty"`
}

// StartSession asks the worker to begin establishing a connection for the
// session. Returns the worker's immediately-known status and, if already
// available, a QR payload.
func (c *Client) StartSession(ctx context.Context, id, sessionKey string) (*StatusReport, error) {
	return c.post(ctx, "/start", id, sessionKey, c.cfg.StartTimeout)
}

// QueryStatus requests the current status and QR payload for the session.
// Used to reconcile local state after start and on explicit status checks.
func (c *Client) QueryStatus(ctx context.Context, id, sessionKey string) (*StatusReport, error) {
	return c.post(ctx, "/status", id, sessionKey, c.cfg.StatusTimeout)
}

// StopSession requests termination of the session on the worker side.
// Failure here must not block local cleanup; callers treat it as best-effort.
func (c *Client) StopSession(ctx context.Context, id, sessionKey string) error {
	_, err := c.post(ctx, "/disconnect", id, sessionKey, c.cfg.StopTimeout)
	return err
}

// post performs one control-plane exchange with a bounded wait and
// structured error translation. Deadline expiry surfaces as ErrWorkerTimeout,
// any other transport failure or non-2xx response as ErrWorkerUnavailable.
func (c *Client) post(ctx context.Context, path, id, sessionKey string, timeout time.Duration) (*StatusReport, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(controlRequest{
		Session:    id,
		SessionKey: sessionKey,
		Token:      c.cfg.AdminToken,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding control request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building control request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.translateTransportError(path, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("worker control call rejected",
			"path", path,
			"session", id,
			"status_code", resp.StatusCode,
		)
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrWorkerUnavailable, path, resp.StatusCode)
	}

	var cr controlResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("%w: decoding %s response: %v", ErrWorkerUnavailable, path, err)
	}

	status, err := session.ParseStatus(cr.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
	}

	return &StatusReport{Status: status, QRCode: cr.QRCode}, nil
}

// translateTransportError maps a transport failure to the error taxonomy.
func (c *Client) translateTransportError(path, id string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		c.logger.Warn("worker control call timed out", "path", path, "session", id)
		return fmt.Errorf("%w: %s: %v", ErrWorkerTimeout, path, err)
	}
	c.logger.Warn("worker control call failed", "path", path, "session", id, "error", err)
	return fmt.Errorf("%w: %s: %v", ErrWorkerUnavailable, path, err)
}
