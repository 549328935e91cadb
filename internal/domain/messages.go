package domain

import "encoding/json"

// WebSocket message types from client.
const (
	MsgTypeConnect    = "connect"
	MsgTypeJoinStream = "join-stream"
	MsgTypeSignal     = "signal"
	MsgTypeEndStream  = "end-stream"
	MsgTypePing       = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeConnected   = "connected"
	MsgTypeRoomMembers = "room-members"
	MsgTypeUserJoined  = "user-joined"
	MsgTypeViewerCount = "viewer-count"
	MsgTypeStreamEnded = "stream-ended"
	MsgTypeUserLeft    = "user-left"
	MsgTypeError       = "error"
	MsgTypePong        = "pong"
)

// Signal payload types relayed between peers.
const (
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalICECandidate = "ice-candidate"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

// ConnectMessage must be the first message on a new connection.
type ConnectMessage struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
	Token  string `json:"token,omitempty"`
}

// JoinStreamMessage is sent by a gated session to join a live stream.
type JoinStreamMessage struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id"`
	PeerID   string `json:"peer_id,omitempty"`
}

// SignalMessage carries a WebRTC handshake payload between two sessions in
// the same room. The payload is opaque to the server; From is always set by
// the relay, never trusted from the client.
type SignalMessage struct {
	Type       string          `json:"type"`
	To         string          `json:"to"`
	From       string          `json:"from,omitempty"`
	SignalType string          `json:"signal_type"`
	Payload    json.RawMessage `json:"payload"`
}

// EndStreamMessage is sent by the host to terminate its stream. It carries no
// payload; the server uses the session's recorded stream and host state.
type EndStreamMessage struct {
	Type string `json:"type"`
}

// Server -> Client messages

// ConnectedMessage acknowledges a successful connect and tells the client its
// session id, which peers will use to address signaling to it.
type ConnectedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
}

// RoomMember describes one existing member of a room.
type RoomMember struct {
	SessionID string `json:"session_id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	IsHost    bool   `json:"is_host"`
	PeerID    string `json:"peer_id,omitempty"`
}

// RoomMembersMessage is the private reply to a joiner carrying the current
// roster of other room members.
type RoomMembersMessage struct {
	Type     string       `json:"type"`
	StreamID string       `json:"stream_id"`
	Members  []RoomMember `json:"members"`
}

// UserJoinedMessage notifies existing members that a session joined.
type UserJoinedMessage struct {
	Type          string `json:"type"`
	StreamID      string `json:"stream_id"`
	SessionID     string `json:"session_id"`
	UserID        int64  `json:"user_id"`
	Username      string `json:"username"`
	IsHost        bool   `json:"is_host"`
	IsParticipant bool   `json:"is_participant"`
	PeerID        string `json:"peer_id,omitempty"`
}

// ViewerCountMessage is broadcast to a room after every join or leave.
type ViewerCountMessage struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id"`
	Count    int    `json:"count"`
}

// StreamEndedMessage tells the room the host terminated the stream.
type StreamEndedMessage struct {
	Type     string `json:"type"`
	StreamID string `json:"stream_id"`
}

// UserLeftMessage notifies remaining members that a session disconnected.
type UserLeftMessage struct {
	Type      string `json:"type"`
	StreamID  string `json:"stream_id"`
	UserID    int64  `json:"user_id"`
	SessionID string `json:"session_id"`
}

// ErrorMessage is sent when an operation is rejected.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// NewErrorMessage creates a new error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
