// ABOUTME: Session lifecycle manager: start, status reconciliation, and close.
// ABOUTME: Owns the sequencing of worker control calls and event channel setup.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garapadev/garapasystem-sub001/internal/auth"
	"github.com/garapadev/garapasystem-sub001/internal/session"
	"github.com/garapadev/garapasystem-sub001/internal/worker"
)

// defaultSettleDelay is the brief wait between asking the worker to start a
// session and querying its status, giving the worker a chance to produce an
// immediately-available QR code.
const defaultSettleDelay = 500 * time.Millisecond

// ControlClient is the subset of the worker control-plane client the
// manager uses. Satisfied by *worker.Client; test code injects fakes.
type ControlClient interface {
	StartSession(ctx context.Context, id, sessionKey string) (*worker.StatusReport, error)
	QueryStatus(ctx context.Context, id, sessionKey string) (*worker.StatusReport, error)
	StopSession(ctx context.Context, id, sessionKey string) error
}

// ChannelDialer establishes the event channel for a session.
type ChannelDialer func(ctx context.Context, sessionID string, handler worker.EventHandler) (*worker.Channel, error)

// ManagerParams carries the dependencies for NewManager.
type ManagerParams struct {
	Verifier    auth.TokenVerifier
	Registry    *session.Registry
	Channels    *worker.ChannelRegistry
	Client      ControlClient
	Dialer      ChannelDialer
	Broadcaster *Broadcaster
	Dedupe      MessageDeduper
	Logger      *slog.Logger

	// MaxSessions caps concurrent sessions; 0 means unlimited.
	MaxSessions int

	// SettleDelay overrides the post-start settle wait; 0 uses the default.
	SettleDelay time.Duration
}

// MessageDeduper suppresses redelivered inbound messages.
type MessageDeduper interface {
	CheckAndMark(messageID string) bool
}

// Manager drives the per-session state machine. HTTP-triggered operations
// and worker push events both funnel their registry mutations through the
// atomic update contract, so the two sides cannot interleave partial writes
// on the same session.
type Manager struct {
	verifier    auth.TokenVerifier
	registry    *session.Registry
	channels    *worker.ChannelRegistry
	client      ControlClient
	dial        ChannelDialer
	broadcaster *Broadcaster
	dedupe      MessageDeduper
	logger      *slog.Logger
	maxSessions int
	settleDelay time.Duration
}

// NewManager creates a session lifecycle manager.
func NewManager(p ManagerParams) *Manager {
	settle := p.SettleDelay
	if settle == 0 {
		settle = defaultSettleDelay
	}
	return &Manager{
		verifier:    p.Verifier,
		registry:    p.Registry,
		channels:    p.Channels,
		client:      p.Client,
		dial:        p.Dialer,
		broadcaster: p.Broadcaster,
		dedupe:      p.Dedupe,
		logger:      p.Logger.With("component", "session-manager"),
		maxSessions: p.MaxSessions,
		settleDelay: settle,
	}
}

// Start begins establishing a session. Idempotent: if a session for the id
// already exists, its current state is returned unchanged and no new worker
// request is issued, so a retrying caller is safe.
//
// A worker control failure does not roll back the registry entry; the
// session stays in Connecting so a later GetStatus can retry reconciliation,
// because the worker may still complete the connection asynchronously.
func (m *Manager) Start(ctx context.Context, id, sessionKey, token string) (session.Session, error) {
	if err := m.verifier.Verify(token); err != nil {
		return session.Session{}, err
	}
	if id == "" || sessionKey == "" {
		return session.Session{}, fmt.Errorf("%w: session and sessionKey are required", ErrInvalidParameters)
	}

	// Check-and-create in one registry lock acquisition: two racing
	// starts for the same id must not both reach the worker, and racing
	// starts for distinct ids must not overshoot the session cap.
	existing, created, err := m.registry.GetOrCreate(id, m.maxSessions, func(s *session.Session) {
		s.SessionKey = sessionKey
		s.Status = session.StatusConnecting
		s.LastActivity = time.Now()
	})
	if err != nil {
		return session.Session{}, err
	}
	if !created {
		m.logger.Debug("start is idempotent, returning existing session",
			"session", id, "status", existing.Status.String())
		return existing, nil
	}
	m.logger.Info("session starting", "session", id)

	report, err := m.client.StartSession(ctx, id, sessionKey)
	if err != nil {
		m.logger.Warn("worker start failed, session stays in connecting",
			"session", id, "error", err)
		return session.Session{}, err
	}
	m.applyReport(id, report)

	// Give the worker a moment to produce a QR code, then pick it up.
	time.Sleep(m.settleDelay)
	if report, err := m.client.QueryStatus(ctx, id, sessionKey); err == nil {
		m.applyReport(id, report)
	} else {
		m.logger.Debug("post-start status query failed", "session", id, "error", err)
	}

	m.establishChannel(ctx, id)

	current, _ := m.registry.Get(id)
	return current, nil
}

// GetStatus returns the session state after a best-effort live
// reconciliation against the worker, so a polling caller observes
// worker-side progress even before any push event arrives. Reconciliation
// failures are swallowed; the last-known local state is returned.
func (m *Manager) GetStatus(ctx context.Context, id, token string) (session.Session, error) {
	if err := m.verifier.Verify(token); err != nil {
		return session.Session{}, err
	}

	s, ok := m.registry.Get(id)
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}

	m.reconcile(ctx, s)

	current, ok := m.registry.Get(id)
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}
	return current, nil
}

// GetQRCode returns the session state including any pending QR payload.
// Read-only; no worker round-trip.
func (m *Manager) GetQRCode(id, token string) (session.Session, error) {
	if err := m.verifier.Verify(token); err != nil {
		return session.Session{}, err
	}

	s, ok := m.registry.Get(id)
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}
	return s, nil
}

// Close terminates a session. The worker stop is best-effort: a failure is
// logged and local cleanup proceeds regardless, so local state never leaks
// resources because a remote peer is unreachable.
func (m *Manager) Close(ctx context.Context, id, token string) (session.Session, error) {
	if err := m.verifier.Verify(token); err != nil {
		return session.Session{}, err
	}

	s, ok := m.registry.Get(id)
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}

	if err := m.client.StopSession(ctx, id, s.SessionKey); err != nil {
		m.logger.Warn("worker stop failed, proceeding with local cleanup",
			"session", id, "error", err)
	}

	m.channels.Unbind(id)
	m.registry.Remove(id)
	m.logger.Info("session closed", "session", id)

	s.Status = session.StatusDisconnected
	s.QRCode = ""
	return s, nil
}

// Sessions returns the current state of every registered session.
func (m *Manager) Sessions(token string) ([]session.Session, error) {
	if err := m.verifier.Verify(token); err != nil {
		return nil, err
	}
	return m.registry.List(), nil
}

// Subscribe registers a local subscriber for messages received on the
// session. The subscription ends when ctx is cancelled.
func (m *Manager) Subscribe(ctx context.Context, sessionID string) (<-chan *worker.InboundMessage, string) {
	return m.broadcaster.Subscribe(ctx, sessionID)
}

// reconcile folds the worker's reported status into the local record and,
// if the session should be carrying a channel but none is bound, attempts
// to re-establish one. All failures are swallowed: reconciliation is
// best-effort by design.
func (m *Manager) reconcile(ctx context.Context, s session.Session) {
	report, err := m.client.QueryStatus(ctx, s.ID, s.SessionKey)
	if err != nil {
		m.logger.Debug("status reconciliation failed, keeping local state",
			"session", s.ID, "error", err)
		return
	}
	m.applyReport(s.ID, report)

	if report.Status != session.StatusDisconnected && !m.channels.IsBound(s.ID) {
		m.establishChannel(ctx, s.ID)
	}
}

// applyReport merges a worker status report into the registry under the
// atomic update contract.
func (m *Manager) applyReport(id string, report *worker.StatusReport) {
	m.registry.Update(id, func(s *session.Session) {
		s.Status = report.Status
		if report.Status == session.StatusQrRequired {
			s.QRCode = report.QRCode
			s.PhoneNumber = ""
		} else {
			s.QRCode = ""
		}
	})
}

// establishChannel dials and binds the event channel for a session.
// Failure is non-fatal: the session remains valid in its current status,
// degraded to control-plane-only until a future reconnection succeeds.
func (m *Manager) establishChannel(ctx context.Context, id string) {
	ch, err := m.dial(ctx, id, m)
	if err != nil {
		if !errors.Is(err, worker.ErrChannelEstablishFailed) {
			err = fmt.Errorf("%w: %v", worker.ErrChannelEstablishFailed, err)
		}
		m.logger.Warn("continuing control-plane only", "session", id, "error", err)
		return
	}

	if err := m.channels.Bind(ch); err != nil {
		// Lost a bind race; the existing channel wins.
		ch.Close()
		m.logger.Debug("channel already bound", "session", id)
	}
}

// RunReconciler periodically reconciles sessions that have gone stale: no
// caller polling and no worker push within the idle threshold. Blocks until
// ctx is cancelled; does nothing when the sweep is disabled.
func (m *Manager) RunReconciler(ctx context.Context, interval, idleAfter time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range m.registry.List() {
				if time.Since(s.UpdatedAt) >= idleAfter {
					m.reconcile(ctx, s)
				}
			}
		}
	}
}
