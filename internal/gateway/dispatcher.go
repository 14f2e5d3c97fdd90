// ABOUTME: Message dispatcher: validates, serializes sends onto the event channel.
// ABOUTME: Applies the configured inter-message delay; never retries or queues.

package gateway

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/garapadev/garapasystem-sub001/internal/auth"
	"github.com/garapadev/garapasystem-sub001/internal/session"
	"github.com/garapadev/garapasystem-sub001/internal/worker"
)

// Message type names on the wire.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeAudio    = "audio"
	MessageTypeVideo    = "video"
	MessageTypeDocument = "document"
)

// SendResult is the acknowledgment returned by a send operation. Status
// "sent" means handed to the worker, not delivered; delivery and read
// status arrive later via inbound events and are not joined back to this
// call.
type SendResult struct {
	MessageID string
	ChatID    string
	Timestamp time.Time
	Status    string
}

// DispatcherParams carries the dependencies for NewDispatcher.
type DispatcherParams struct {
	Verifier auth.TokenVerifier
	Registry *session.Registry
	Channels *worker.ChannelRegistry
	Logger   *slog.Logger

	// MessageDelay is the fixed pause applied after every send to respect
	// the worker's outbound rate limits. A throttle, not a timeout: it
	// always completes and never fails the call.
	MessageDelay time.Duration

	// AllowedMediaTypes lists the message types the media operations accept.
	AllowedMediaTypes []string
}

// Dispatcher validates outbound message requests against session state and
// serializes them onto the session's event channel. Retries, if any, are
// the caller's responsibility.
type Dispatcher struct {
	verifier     auth.TokenVerifier
	registry     *session.Registry
	channels     *worker.ChannelRegistry
	logger       *slog.Logger
	delay        time.Duration
	allowedMedia map[string]bool
}

// NewDispatcher creates a message dispatcher.
func NewDispatcher(p DispatcherParams) *Dispatcher {
	allowed := make(map[string]bool, len(p.AllowedMediaTypes))
	for _, t := range p.AllowedMediaTypes {
		allowed[t] = true
	}
	return &Dispatcher{
		verifier:     p.Verifier,
		registry:     p.Registry,
		channels:     p.Channels,
		logger:       p.Logger.With("component", "dispatcher"),
		delay:        p.MessageDelay,
		allowedMedia: allowed,
	}
}

// SendText dispatches a text message to a chat on the session.
func (d *Dispatcher) SendText(sessionID, token, chatID, content string) (*SendResult, error) {
	if err := d.verifier.Verify(token); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidParameters)
	}
	return d.send(sessionID, chatID, MessageTypeText, content, "")
}

// SendImage dispatches an image by URL with an optional caption.
func (d *Dispatcher) SendImage(sessionID, token, chatID, mediaURL, caption string) (*SendResult, error) {
	return d.sendMedia(sessionID, token, chatID, MessageTypeImage, mediaURL, caption)
}

// SendAudio dispatches an audio clip by URL.
func (d *Dispatcher) SendAudio(sessionID, token, chatID, mediaURL string) (*SendResult, error) {
	return d.sendMedia(sessionID, token, chatID, MessageTypeAudio, mediaURL, "")
}

// SendVideo dispatches a video by URL with an optional caption.
func (d *Dispatcher) SendVideo(sessionID, token, chatID, mediaURL, caption string) (*SendResult, error) {
	return d.sendMedia(sessionID, token, chatID, MessageTypeVideo, mediaURL, caption)
}

// SendDocument dispatches a document by URL with an optional caption.
func (d *Dispatcher) SendDocument(sessionID, token, chatID, mediaURL, caption string) (*SendResult, error) {
	return d.sendMedia(sessionID, token, chatID, MessageTypeDocument, mediaURL, caption)
}

// sendMedia verifies the token, validates the media type against
// configuration, and delegates. The token gate comes before any payload
// check so an unauthorized caller learns nothing about validation rules.
func (d *Dispatcher) sendMedia(sessionID, token, chatID, messageType, mediaURL, caption string) (*SendResult, error) {
	if err := d.verifier.Verify(token); err != nil {
		return nil, err
	}
	if mediaURL == "" {
		return nil, fmt.Errorf("%w: mediaUrl is required", ErrInvalidParameters)
	}
	if !d.allowedMedia[messageType] {
		return nil, fmt.Errorf("%w: media type %q not allowed", ErrInvalidParameters, messageType)
	}
	return d.send(sessionID, chatID, messageType, caption, mediaURL)
}

// send is the common dispatch path after the token gate: session state,
// channel binding, serialize, pace, acknowledge.
func (d *Dispatcher) send(sessionID, chatID, messageType, content, mediaURL string) (*SendResult, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chatId is required", ErrInvalidParameters)
	}

	s, ok := d.registry.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !s.Status.IsConnected() {
		return nil, ErrSessionNotConnected
	}
	if !d.channels.IsBound(sessionID) {
		return nil, worker.ErrChannelNotFound
	}

	messageID := uuid.New().String()
	ts := time.Now()

	frame := worker.SendMessageFrame(messageID, chatID, messageType, content, mediaURL, ts)
	if err := d.channels.Send(sessionID, frame); err != nil {
		d.logger.Warn("send failed",
			"session", sessionID,
			"message_id", messageID,
			"error", err,
		)
		return nil, err
	}

	d.registry.Update(sessionID, func(s *session.Session) {
		s.LastActivity = ts
	})

	d.logger.Debug("message dispatched",
		"session", sessionID,
		"message_id", messageID,
		"chat_id", chatID,
		"type", messageType,
	)

	// Fixed pacing against the worker's outbound rate limits. Deliberately
	// not cancellable.
	time.Sleep(d.delay)

	return &SendResult{
		MessageID: messageID,
		ChatID:    chatID,
		Timestamp: ts,
		Status:    "sent",
	}, nil
}
