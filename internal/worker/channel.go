// ABOUTME: Persistent full-duplex event channel to the worker, one per active session.
// ABOUTME: Receives push events, accepts outbound send commands, reports closure once.

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// channelWriteTimeout bounds a single outbound frame write.
	channelWriteTimeout = 10 * time.Second

	// dialRetryDelay is the pause between event channel dial attempts.
	dialRetryDelay = 500 * time.Millisecond
)

// EventHandler receives inbound events and closure notifications from a
// channel's read loop. Events for one session are delivered in the order
// the channel delivers them; HandleClosed is invoked exactly once when the
// channel ends, whether peer-initiated or on error. The closing channel is
// passed along so handlers can distinguish a stale channel's late
// notification from the currently bound one.
type EventHandler interface {
	HandleEvent(sessionID string, evt Event)
	HandleClosed(sessionID string, ch *Channel)
}

// DialConfig holds the settings for establishing event channels.
type DialConfig struct {
	// WSURL is the worker's event channel root; the session id is appended
	// as a path segment to address the correct logical stream.
	WSURL string

	// AdminToken is sent on the dial request so the worker can reject
	// unauthorized channels.
	AdminToken string

	// MaxRetries is the dial retry budget before giving up with
	// ErrChannelEstablishFailed.
	MaxRetries int
}

// Channel is one bound event channel for a session.
type Channel struct {
	sessionID string
	conn      *websocket.Conn
	handler   EventHandler
	logger    *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial establishes the event channel for a session and starts its read
// loop. Dialing is retried up to cfg.MaxRetries times; total failure
// surfaces as ErrChannelEstablishFailed, which is non-fatal to session
// start.
func Dial(ctx context.Context, cfg DialConfig, sessionID string, handler EventHandler, logger *slog.Logger) (*Channel, error) {
	url := cfg.WSURL + "/" + sessionID
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.AdminToken)

	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var conn *websocket.Conn
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrChannelEstablishFailed, ctx.Err())
			case <-time.After(dialRetryDelay):
			}
		}

		conn, _, err = websocket.DefaultDialer.DialContext(ctx, url, header) //nolint:bodyclose // resp body is managed by the dialer
		if err == nil {
			break
		}
		logger.Warn("event channel dial failed",
			"session", sessionID,
			"attempt", i+1,
			"error", err,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelEstablishFailed, err)
	}

	ch := &Channel{
		sessionID: sessionID,
		conn:      conn,
		handler:   handler,
		logger:    logger.With("component", "event-channel", "session", sessionID),
	}

	go ch.readLoop()

	ch.logger.Debug("event channel established")
	return ch, nil
}

// SessionID returns the session this channel is bound to.
func (c *Channel) SessionID() string {
	return c.sessionID
}

// Send serializes an outbound frame onto the channel. A write mutex keeps
// concurrent dispatchers from interleaving frames on the wire.
func (c *Channel) Send(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(channelWriteTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Close tears the channel down. Safe to call multiple times; the read loop
// reports closure to the handler.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// readLoop decodes inbound frames and hands them to the handler in delivery
// order. Ends on the first read error, closing the connection and notifying
// the handler.
func (c *Channel) readLoop() {
	defer func() {
		c.Close()
		c.handler.HandleClosed(c.sessionID, c)
	}()

	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("event channel read error", "error", err)
			} else {
				c.logger.Debug("event channel closed", "error", err)
			}
			return
		}

		evt, err := decodeEvent(f)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", "type", f.Type, "error", err)
			continue
		}

		c.handler.HandleEvent(c.sessionID, evt)
	}
}
