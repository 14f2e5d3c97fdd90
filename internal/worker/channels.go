// ABOUTME: Registry binding event channels to session ids, at most one per id.
// ABOUTME: Sessions never hold channel references; lookups go through this table.

package worker

import (
	"log/slog"
	"sync"
)

// ChannelRegistry is the channel-binding table. Exactly one channel may be
// bound to a given session id at a time; all access goes through the
// bind/unbind contract because the lifecycle manager and channel read loops
// race on the same keys.
type ChannelRegistry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	logger   *slog.Logger
}

// NewChannelRegistry creates an empty channel registry.
func NewChannelRegistry(logger *slog.Logger) *ChannelRegistry {
	return &ChannelRegistry{
		channels: make(map[string]*Channel),
		logger:   logger.With("component", "channel-registry"),
	}
}

// Bind registers a channel under its session id.
// Returns ErrChannelAlreadyBound if one exists.
func (r *ChannelRegistry) Bind(ch *Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[ch.SessionID()]; exists {
		return ErrChannelAlreadyBound
	}

	r.channels[ch.SessionID()] = ch
	r.logger.Info("event channel bound",
		"session", ch.SessionID(),
		"total_channels", len(r.channels),
	)
	return nil
}

// Get retrieves the channel bound to a session id.
func (r *ChannelRegistry) Get(sessionID string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[sessionID]
	return ch, ok
}

// IsBound reports whether a channel is bound for the session id.
func (r *ChannelRegistry) IsBound(sessionID string) bool {
	_, ok := r.Get(sessionID)
	return ok
}

// Unbind removes and closes the channel bound to a session id, if any.
func (r *ChannelRegistry) Unbind(sessionID string) {
	r.mu.Lock()
	ch, exists := r.channels[sessionID]
	if exists {
		delete(r.channels, sessionID)
	}
	total := len(r.channels)
	r.mu.Unlock()

	if exists {
		ch.Close()
		r.logger.Info("event channel unbound",
			"session", sessionID,
			"total_channels", total,
		)
	}
}

// UnbindIf removes and closes the binding for the session id only if ch is
// the channel currently bound. A stale channel's late closure notification
// must not tear down a freshly established replacement. Reports whether
// the binding was removed.
func (r *ChannelRegistry) UnbindIf(sessionID string, ch *Channel) bool {
	r.mu.Lock()
	bound, exists := r.channels[sessionID]
	if !exists || bound != ch {
		r.mu.Unlock()
		return false
	}
	delete(r.channels, sessionID)
	total := len(r.channels)
	r.mu.Unlock()

	ch.Close()
	r.logger.Info("event channel unbound",
		"session", sessionID,
		"total_channels", total,
	)
	return true
}

// Send serializes a frame onto the channel bound to the session id.
// Fails with ErrChannelNotFound if no channel is bound.
func (r *ChannelRegistry) Send(sessionID string, f Frame) error {
	ch, ok := r.Get(sessionID)
	if !ok {
		return ErrChannelNotFound
	}
	return ch.Send(f)
}

// Len returns the number of bound channels.
func (r *ChannelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// CloseAll closes and removes every bound channel. Used on shutdown.
func (r *ChannelRegistry) CloseAll() {
	r.mu.Lock()
	channels := make([]*Channel, 0, len(r.channels))
	for id, ch := range r.channels {
		channels = append(channels, ch)
		delete(r.channels, id)
	}
	r.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
}
