// ABOUTME: Gateway-level sentinel errors surfaced to callers of the public operations.
// ABOUTME: Worker and auth errors complete the taxonomy; see their packages.

package gateway

import (
	"errors"

	"github.com/garapadev/garapasystem-sub001/internal/session"
)

var (
	// ErrSessionNotFound indicates no session with the given id is
	// registered.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionNotConnected indicates a send was attempted against a
	// session that is not connected. Messages are never queued for a
	// disconnected session; the caller must retry start and re-send.
	ErrSessionNotConnected = errors.New("session not connected")

	// ErrSessionLimit indicates the configured maximum number of
	// concurrent sessions has been reached. The registry enforces the cap
	// under its lock; this aliases its sentinel so callers match either.
	ErrSessionLimit = session.ErrLimitReached

	// ErrInvalidParameters indicates a malformed or incomplete request.
	ErrInvalidParameters = errors.New("invalid parameters")
)
