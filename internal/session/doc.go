// Package session defines the gateway's session model and the in-memory
// registry that owns it.
//
// A Session is one logical WhatsApp identity, keyed by the caller-assigned
// id. The Registry is the single source of truth for session state; the
// lifecycle manager (HTTP-triggered) and the worker event channel
// (push-triggered) race on the same keys, so all writes go through the
// atomic Upsert contract. Mutations to a single session are serialized;
// there is no ordering guarantee across different sessions.
//
// State machine:
//
//	(absent) --start--> connecting --qr event--> qr_required --connected event--> connected
//	any non-disconnected --disconnected event / channel drop--> disconnected (record retained)
//	connected/in_chat --close--> disconnected (record removed)
package session
