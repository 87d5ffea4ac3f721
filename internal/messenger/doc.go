// Package messenger implements the Messenger platform adapters.
//
// # Overview
//
// The Webhook handler is the inbound adapter: it answers Meta's
// verify-token handshake, checks payload signatures, and turns page
// webhook events into correlation-table links and relay deliveries. The
// Client is the outbound adapter: it posts text messages to the Graph API
// send endpoint on behalf of a linked session.
//
// # Webhook contract
//
// Meta redelivers a webhook until it receives a 200, so the handler ACKs
// every well-formed page payload even when individual events are dropped
// (unknown recipient, duplicate hand-off, replayed mid). Only transport
// level problems (bad JSON, bad signature, wrong object) are rejected.
package messenger
