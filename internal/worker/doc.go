// Package worker talks to the external messaging worker process.
//
// The worker is the process that actually speaks the WhatsApp protocol; the
// gateway is a control/bridge layer in front of it. Two transports are used:
//
//   - Control plane: short-lived request/response HTTP calls (/start,
//     /status, /disconnect), each with its own bounded timeout. See Client.
//   - Data plane: one persistent full-duplex websocket per active session,
//     carrying outbound send commands and inbound push events (QR issued,
//     connected, disconnected, message received). See Channel.
//
// The ChannelRegistry enforces that at most one data-plane channel is bound
// to a given session id at a time.
package worker
