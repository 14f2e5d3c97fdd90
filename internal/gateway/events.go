// ABOUTME: Applies inbound worker events to the session registry.
// ABOUTME: Manager implements worker.EventHandler; events arrive serialized per channel.

package gateway

import (
	"time"

	"github.com/garapadev/garapasystem-sub001/internal/session"
	"github.com/garapadev/garapasystem-sub001/internal/worker"
)

// HandleEvent applies one inbound worker event to the owning session.
// Each channel's read loop delivers events for its session one at a time,
// and every mutation goes through the registry's atomic update contract,
// so an event cannot interleave with an HTTP-triggered write on the same
// key. Events for sessions no longer registered are dropped.
func (m *Manager) HandleEvent(sessionID string, evt worker.Event) {
	switch evt.Type {
	case worker.EventQRIssued:
		_, ok := m.registry.Update(sessionID, func(s *session.Session) {
			s.Status = session.StatusQrRequired
			s.QRCode = evt.QRCode
			s.PhoneNumber = ""
			s.LastActivity = time.Now()
		})
		if ok {
			m.logger.Info("qr code issued", "session", sessionID)
		}

	case worker.EventConnected:
		_, ok := m.registry.Update(sessionID, func(s *session.Session) {
			s.Status = session.StatusConnected
			s.PhoneNumber = evt.PhoneNumber
			s.QRCode = ""
			s.LastActivity = time.Now()
		})
		if ok {
			m.logger.Info("session connected",
				"session", sessionID, "phone_number", evt.PhoneNumber)
		}

	case worker.EventDisconnected:
		m.registry.Update(sessionID, func(s *session.Session) {
			s.Status = session.StatusDisconnected
			s.QRCode = ""
		})
		m.channels.Unbind(sessionID)
		m.logger.Info("session disconnected by worker", "session", sessionID)

	case worker.EventMessageReceived:
		m.handleMessageReceived(sessionID, evt.Message)
	}
}

// handleMessageReceived bumps session activity and fans the message out to
// local subscribers. The worker may replay frames after a channel
// reconnect, so redeliveries are suppressed by message id.
func (m *Manager) handleMessageReceived(sessionID string, msg *worker.InboundMessage) {
	if msg == nil {
		return
	}
	if m.dedupe.CheckAndMark(msg.MessageID) {
		m.logger.Debug("dropping redelivered message",
			"session", sessionID, "message_id", msg.MessageID)
		return
	}

	_, ok := m.registry.Update(sessionID, func(s *session.Session) {
		s.LastActivity = time.Now()
	})
	if !ok {
		return
	}

	m.broadcaster.Publish(sessionID, msg)
}

// HandleClosed reacts to an event channel ending, peer-initiated or on
// error. The session is forced to disconnected but its record is retained,
// so a status query after an unexpected drop still returns the last known
// state rather than not-found. The unbind is conditioned on channel
// identity: a deliberate close unbinds before the read loop ends, and a
// stale channel's late notification after a re-dial must not tear down the
// replacement, so both paths fall through the identity check as no-ops.
func (m *Manager) HandleClosed(sessionID string, ch *worker.Channel) {
	if !m.channels.UnbindIf(sessionID, ch) {
		return
	}

	m.registry.Update(sessionID, func(s *session.Session) {
		s.Status = session.StatusDisconnected
		s.QRCode = ""
	})
	m.logger.Warn("event channel dropped, session marked disconnected", "session", sessionID)
}
