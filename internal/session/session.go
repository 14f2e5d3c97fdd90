// ABOUTME: Session model and connection status enum for the messaging gateway.
// ABOUTME: A Session tracks one logical WhatsApp identity keyed by caller-assigned id.

package session

import (
	"fmt"
	"time"
)

// Status represents the connection state of a messaging session.
type Status int

const (
	// StatusDisconnected is the initial and terminal state. Absence from
	// the registry is equivalent to this state.
	StatusDisconnected Status = iota

	// StatusConnecting means the worker has been asked to establish a
	// connection but has not yet reported a result.
	StatusConnecting

	// StatusQrRequired means an out-of-band pairing code must be scanned
	// to complete authentication.
	StatusQrRequired

	// StatusConnected means the worker holds an authenticated connection.
	StatusConnected

	// StatusInChat means the session is connected and actively exchanging
	// messages.
	StatusInChat
)

// String returns the wire form of the status.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusQrRequired:
		return "qr_required"
	case StatusConnected:
		return "connected"
	case StatusInChat:
		return "in_chat"
	default:
		return "unknown"
	}
}

// IsConnected reports whether the session can carry outbound messages.
func (s Status) IsConnected() bool {
	return s == StatusConnected || s == StatusInChat
}

// ParseStatus converts a worker-reported status string into a Status.
// Accepts the aliases older worker builds emit for the QR state.
func ParseStatus(raw string) (Status, error) {
	switch raw {
	case "disconnected":
		return StatusDisconnected, nil
	case "connecting":
		return StatusConnecting, nil
	case "qr_required", "qrcode", "qr":
		return StatusQrRequired, nil
	case "connected":
		return StatusConnected, nil
	case "in_chat", "inchat":
		return StatusInChat, nil
	default:
		return StatusDisconnected, fmt.Errorf("unknown session status %q", raw)
	}
}

// Session is one logical messaging identity tracked by the gateway.
// The registry owns Session records exclusively; event channels are looked
// up by the same id through a separate channel registry, so a Session never
// holds a reference to its channel.
type Session struct {
	ID         string
	SessionKey string
	Status     Status

	// PhoneNumber is populated once the worker reports connected.
	PhoneNumber string

	// QRCode is populated only while Status == StatusQrRequired and is
	// cleared on any transition out of that state.
	QRCode string

	LastActivity time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
