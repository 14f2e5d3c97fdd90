// ABOUTME: In-memory fan-out of received messages to local subscribers.
// ABOUTME: Persistence of received messages belongs to the business layer, not here.

package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/garapadev/garapasystem-sub001/internal/worker"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Broadcaster provides in-memory pub/sub for messages received from the
// worker. Subscribers register for a session id and receive messages as
// inbound events are applied.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *worker.InboundMessage // sessionID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *worker.InboundMessage),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for messages on the given session id.
// Returns a channel that receives messages and a subscription ID for later
// unsubscription. The subscription is cleaned up automatically when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan *worker.InboundMessage, string) {
	subID := uuid.New().String()
	ch := make(chan *worker.InboundMessage, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[sessionID]; !ok {
		b.subscribers[sessionID] = make(map[string]chan *worker.InboundMessage)
	}
	b.subscribers[sessionID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "session", sessionID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sessionID, subID)
	}()

	return ch, subID
}

// Publish sends a message to all subscribers of the given session id.
// Non-blocking: messages are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(sessionID string, msg *worker.InboundMessage) {
	b.mu.RLock()
	subs, ok := b.subscribers[sessionID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding it during sends
	targets := make([]chan *worker.InboundMessage, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- msg:
		default:
			b.logger.Debug("dropped message for slow subscriber",
				"session", sessionID, "message_id", msg.MessageID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(sessionID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sessionID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("subscriber removed", "session", sessionID, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sessionID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("broadcaster closed")
}
