// Package session holds the in-memory core of chatseam: the correlation
// table, the subscription registry, and the relay between them.
//
// # Overview
//
// A website visitor's chat widget is identified by an opaque,
// client-generated session ID that survives reconnects. The Messenger
// platform identifies the same human by a page-scoped PSID that only
// becomes known after the visitor taps "Continue in Messenger" and the
// referral webhook fires. This package bridges the two worlds:
//
//   - Links: session ID <-> PSID, written exactly once per session by the
//     hand-off referral, read on every inbound and outbound message.
//   - Registry: session ID -> set of live Subscriber streams, one per open
//     browser tab. Tabs come and go; the set may be empty.
//   - Relay: given a PSID and text, finds the owning session and writes
//     one Event to every live stream; given a session, resolves the PSID
//     for an outbound send.
//
// # Lifecycle
//
// All three objects are constructed once at process start and injected
// into the HTTP adapters. Nothing is persisted: after a restart the
// visitor re-links by sending another message from Messenger, and each
// open tab re-subscribes when its stream reconnects.
//
// # Failure model
//
// Nothing in this package is fatal. A message for an unknown PSID is
// dropped (ErrUnknownRecipient), a replayed hand-off is ignored
// (ErrAlreadyLinked), a send before hand-off is rejected (ErrUnlinked),
// and a stream that stops accepting writes is retired without disturbing
// its siblings.
package session
