// ABOUTME: Wire frames exchanged with the worker over the event channel.
// ABOUTME: JSON-tagged union keyed by the "type" field, decoded into Event values.

package worker

import (
	"fmt"
	"time"
)

// Frame type discriminators on the data plane.
const (
	FrameSendMessage     = "sendMessage"
	FrameQRCode          = "qrCode"
	FrameConnected       = "connected"
	FrameDisconnected    = "disconnected"
	FrameMessageReceived = "messageReceived"
)

// Frame is the JSON envelope for all data-plane traffic. Only the fields
// relevant to a given Type are populated.
type Frame struct {
	Type        string `json:"type"`
	MessageID   string `json:"messageId,omitempty"`
	ChatID      string `json:"chatId,omitempty"`
	MessageType string `json:"messageType,omitempty"`
	Content     string `json:"content,omitempty"`
	MediaURL    string `json:"mediaUrl,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"` // unix milliseconds
	QRCode      string `json:"qrCode,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// SendMessageFrame builds an outbound send command frame.
func SendMessageFrame(messageID, chatID, messageType, content, mediaURL string, ts time.Time) Frame {
	return Frame{
		Type:        FrameSendMessage,
		MessageID:   messageID,
		ChatID:      chatID,
		MessageType: messageType,
		Content:     content,
		MediaURL:    mediaURL,
		Timestamp:   ts.UnixMilli(),
	}
}

// EventType indicates the kind of inbound push event.
type EventType int

const (
	EventQRIssued EventType = iota
	EventConnected
	EventDisconnected
	EventMessageReceived
)

// InboundMessage is a message received by the worker and pushed to the
// gateway. Persistence of received messages belongs to the business layer;
// the gateway only updates session activity and fans the message out to
// local subscribers.
type InboundMessage struct {
	MessageID   string
	ChatID      string
	MessageType string
	Content     string
	MediaURL    string
	Timestamp   time.Time
}

// Event is an inbound worker event decoded from a frame.
type Event struct {
	Type        EventType
	QRCode      string          // for EventQRIssued
	PhoneNumber string          // for EventConnected
	Message     *InboundMessage // for EventMessageReceived
}

// decodeEvent converts an inbound frame into an Event.
// Returns an error for unknown or outbound frame types.
func decodeEvent(f Frame) (Event, error) {
	switch f.Type {
	case FrameQRCode:
		return Event{Type: EventQRIssued, QRCode: f.QRCode}, nil
	case FrameConnected:
		return Event{Type: EventConnected, PhoneNumber: f.PhoneNumber}, nil
	case FrameDisconnected:
		return Event{Type: EventDisconnected}, nil
	case FrameMessageReceived:
		return Event{
			Type: EventMessageReceived,
			Message: &InboundMessage{
				MessageID:   f.MessageID,
				ChatID:      f.ChatID,
				MessageType: f.MessageType,
				Content:     f.Content,
				MediaURL:    f.MediaURL,
				Timestamp:   time.UnixMilli(f.Timestamp),
			},
		}, nil
	default:
		return Event{}, fmt.Errorf("unknown inbound frame type %q", f.Type)
	}
}
