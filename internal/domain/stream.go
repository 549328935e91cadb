package domain

import "time"

// Stream represents a live-stream record. The record is owned by the wider
// application; this service reads it at join time and writes viewer count and
// liveness. It outlives any in-memory room state: a stream can stay live
// while its room is momentarily empty.
type Stream struct {
	ID          string     `json:"id"` // external stream token
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title,omitempty"`
	IsLive      bool       `json:"is_live"`
	ViewerCount int        `json:"viewer_count"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// StreamInfo is the read-only HTTP representation of a live stream.
type StreamInfo struct {
	ID          string `json:"id"`
	ViewerCount int    `json:"viewer_count"`
	IsLive      bool   `json:"is_live"`
}
