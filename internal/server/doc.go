// Package server wires the chatseam HTTP surface.
//
// # Overview
//
// The Server owns the core objects (correlation table, subscription
// registry, relay), mounts the Messenger webhook, and exposes the widget
// endpoints:
//
//   - GET  /webhook      Meta verify handshake
//   - POST /webhook      page event deliveries
//   - GET  /api/stream   SSE live updates for one session
//   - GET  /api/ws       websocket live updates for one session
//   - POST /api/send     widget -> Messenger send
//   - GET  /api/stats    linked-session and subscriber counts
//   - GET  /health       liveness
//   - GET  /health/ready readiness
//
// # Listeners
//
// The server binds a plain TCP listener, or joins a tailnet via tsnet.
// With funnel enabled the webhook is served over public HTTPS on :443,
// which is what Meta requires of a webhook URL.
package server
