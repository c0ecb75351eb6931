// Package session holds the per-process sync identity: a client id and
// the last version observed from the remote. It exists as an explicit
// value (rather than package state) so one process can run independent
// sessions side by side, which the tests rely on.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Session identifies one logical connection to the remote authority.
//
// ClientID is generated once per session and never persisted; a restart
// is a new client as far as the remote is concerned. The version counter
// is advisory: it is updated exclusively from inbound messages, echoed on
// outbound messages, and never used to reject or reorder anything.
type Session struct {
	clientID string

	mu       sync.Mutex
	lastSeen int64
}

// New creates a session with a fresh random client id.
func New() *Session {
	return &Session{clientID: uuid.NewString()}
}

// NewWithID creates a session with a caller-chosen client id.
func NewWithID(id string) *Session {
	return &Session{clientID: id}
}

// ClientID returns the stable id for this session.
func (s *Session) ClientID() string {
	return s.clientID
}

// LastSeenVersion returns the highest version observed so far.
func (s *Session) LastSeenVersion() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Observe records a version from an inbound message. The counter is
// monotonically non-decreasing, so older versions are ignored.
func (s *Session) Observe(version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version > s.lastSeen {
		s.lastSeen = version
	}
}
