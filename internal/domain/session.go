package domain

import (
	"fmt"
	"sync"
	"time"
)

// SessionState tracks where a connection is in its lifecycle. State guards
// which operations a session may perform.
type SessionState int

const (
	// StatePending is the initial state before the connection is gated.
	StatePending SessionState = iota
	// StateConnected means the connection presented a valid user identity.
	StateConnected
	// StateJoined means the session is a member of a stream room.
	StateJoined
	// StateClosed means the session's stream ended or the transport closed.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session represents a client's WebSocket session.
type Session struct {
	ID            string
	UserID        int64
	Username      string
	StreamID      string
	IsHost        bool
	IsParticipant bool
	State         SessionState
	CreatedAt     time.Time
	LastActiveAt  time.Time
	mu            sync.RWMutex
}

// NewSession creates a new session with the given connection ID.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		State:        StatePending,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Authenticate records the resolved user identity after the connection gate
// admitted the session. An empty username falls back to "User{id}".
func (s *Session) Authenticate(userID int64, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if username == "" {
		username = fmt.Sprintf("User%d", userID)
	}
	s.UserID = userID
	s.Username = username
	s.State = StateConnected
	s.LastActiveAt = time.Now()
}

// IsAuthenticated reports whether the session passed the connection gate.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State == StateConnected || s.State == StateJoined
}

// JoinStream records the stream the session joined and its role in it.
func (s *Session) JoinStream(streamID string, host, participant bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StreamID = streamID
	s.IsHost = host
	s.IsParticipant = participant
	s.State = StateJoined
	s.LastActiveAt = time.Now()
}

// LeaveStream clears the joined stream from the session.
func (s *Session) LeaveStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StreamID = ""
	s.IsHost = false
	s.IsParticipant = false
	if s.State == StateJoined {
		s.State = StateConnected
	}
	s.LastActiveAt = time.Now()
}

// Close marks the session terminated. Terminal; no transition out.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = StateClosed
}

// CurrentStream returns the stream the session has joined, or "".
func (s *Session) CurrentStream() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.StreamID
}

// GetUserID returns the authenticated user id.
func (s *Session) GetUserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID
}

// GetUsername returns the display name attached at connect time.
func (s *Session) GetUsername() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Username
}

// Hosting reports whether the session is the host of its joined stream.
func (s *Session) Hosting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State == StateJoined && s.IsHost
}

// Participating reports whether the session may exchange signaling, i.e. it is
// the host or a verified participant of its joined stream.
func (s *Session) Participating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State == StateJoined && (s.IsHost || s.IsParticipant)
}

// GetState returns the current lifecycle state.
func (s *Session) GetState() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// UpdateActivity updates the last active timestamp.
func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
