// Package dedupe provides a TTL cache over Messenger message IDs so that
// webhook redeliveries do not relay the same message twice.
package dedupe
