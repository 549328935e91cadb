package kafka

import "context"

// StreamEvent represents a stream lifecycle change consumed by downstream
// services (notifications, analytics).
type StreamEvent struct {
	Type      string `json:"type"` // "stream_ended"
	StreamID  string `json:"stream_id"`
	HostID    int64  `json:"host_id"`
	Reason    string `json:"reason,omitempty"` // "explicit"
	Timestamp int64  `json:"timestamp"`
}

// Event types
const (
	EventStreamEnded = "stream_ended"
)

// End reasons
const (
	ReasonExplicit = "explicit"
)

// StreamEventProducer defines the interface for producing stream lifecycle events.
type StreamEventProducer interface {
	ProduceStreamEnded(ctx context.Context, streamID string, hostID int64, reason string) error
	Close() error
}
