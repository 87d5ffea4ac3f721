// ABOUTME: Correlation table mapping widget sessions to Messenger PSIDs
// ABOUTME: Populated once per session by the hand-off referral, bidirectional O(1) lookup

package session

import (
	"errors"
	"sync"
)

// ErrAlreadyLinked means the session or the recipient is already bound to
// a different partner. The platform replays referral events, so the first
// link wins; later conflicting links are reported, never applied.
var ErrAlreadyLinked = errors.New("session already linked")

// Links is the correlation table between widget session IDs and Messenger
// recipient IDs (PSIDs). Entries are immutable for the process lifetime.
// The reverse index is maintained eagerly because inbound platform events
// carry only the PSID and arrive on every message.
type Links struct {
	mu          sync.RWMutex
	recipientBy map[string]string // session -> PSID
	sessionBy   map[string]string // PSID -> session
}

// NewLinks creates an empty correlation table.
func NewLinks() *Links {
	return &Links{
		recipientBy: make(map[string]string),
		sessionBy:   make(map[string]string),
	}
}

// Link records the session<->recipient pair. Linking the identical pair
// again is a no-op. If either side is already bound to a different
// partner the table is left unchanged and ErrAlreadyLinked is returned.
func (l *Links) Link(session, recipient string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.recipientBy[session]; ok {
		if cur == recipient {
			return nil
		}
		return ErrAlreadyLinked
	}
	if _, ok := l.sessionBy[recipient]; ok {
		return ErrAlreadyLinked
	}

	l.recipientBy[session] = recipient
	l.sessionBy[recipient] = session
	return nil
}

// RecipientFor returns the PSID linked to a session, if any.
func (l *Links) RecipientFor(session string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	recipient, ok := l.recipientBy[session]
	return recipient, ok
}

// SessionFor returns the session linked to a PSID, if any.
func (l *Links) SessionFor(recipient string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	session, ok := l.sessionBy[recipient]
	return session, ok
}

// Len reports the number of linked sessions.
func (l *Links) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.recipientBy)
}
