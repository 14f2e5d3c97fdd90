// ABOUTME: Sentinel errors for worker control-plane and data-plane failures.
// ABOUTME: Callers distinguish timeout from transport failure via errors.Is.

package worker

import "errors"

var (
	// ErrWorkerUnavailable indicates a control-plane call failed at the
	// transport level or the worker answered with a non-success status.
	ErrWorkerUnavailable = errors.New("worker unavailable")

	// ErrWorkerTimeout indicates a control-plane call exceeded its bounded
	// wait and was aborted.
	ErrWorkerTimeout = errors.New("worker timeout")

	// ErrChannelEstablishFailed indicates the event channel could not be
	// dialed within the retry budget. Non-fatal to session start: the
	// session stays valid, degraded to control-plane-only.
	ErrChannelEstablishFailed = errors.New("event channel establish failed")

	// ErrChannelAlreadyBound indicates a channel is already bound for the
	// session id.
	ErrChannelAlreadyBound = errors.New("channel already bound for session")

	// ErrChannelNotFound indicates no event channel is bound for the
	// session id.
	ErrChannelNotFound = errors.New("no channel bound for session")
)
