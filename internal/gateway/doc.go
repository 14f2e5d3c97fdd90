// Package gateway orchestrates the WhatsApp session gateway components.
//
// # Overview
//
// The gateway package is the central coordinator of the wagateway server.
// It owns the session registry, the worker control client, the per-session
// event channels, and the HTTP API the business application talks to.
//
// # Components
//
//   - gateway.go: Gateway struct, wiring, Run/Shutdown
//   - manager.go: session lifecycle (start, status, qr, close, reconcile)
//   - dispatcher.go: outbound message validation and pacing
//   - events.go: worker event application (qrCode, connected, disconnected,
//     messageReceived)
//   - broadcaster.go: inbound message fanout to local subscribers
//   - api.go: HTTP handlers and the uniform response envelope
//
// # HTTP API
//
// Session operations (POST, JSON body {session, sessionKey, token}):
//
//   - POST /api/sessions/start - Start or resume a session
//   - POST /api/sessions/status - Query and reconcile session state
//   - POST /api/sessions/qrcode - Read the cached pairing QR code
//   - POST /api/sessions/close - Disconnect and remove a session
//   - GET /api/sessions?token= - List known sessions
//
// Message operations (POST, body adds {chatId, content?, mediaUrl?}):
//
//   - POST /api/messages/text
//   - POST /api/messages/image
//   - POST /api/messages/audio
//   - POST /api/messages/video
//   - POST /api/messages/document
//
// Plus GET /health (liveness) and GET /health/ready (counters).
//
// Every operation returns {success, message, data?, error?}; anticipated
// faults map to HTTP statuses in errorStatus.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Graceful shutdown:
//
//	cancel()
//	gw.Shutdown(shutdownCtx)
package gateway
