package service

import (
	"context"

	"github.com/iroosevelt/nerderland-live/internal/domain"
	"github.com/iroosevelt/nerderland-live/internal/hub"
)

// SignalService coordinates the realtime signaling operations: gating new
// connections, room membership, peer-to-peer relay and stream lifecycle.
type SignalService interface {
	// HandleConnect gates a new connection against the user store. Must
	// succeed before any other operation is accepted.
	HandleConnect(ctx context.Context, c *hub.Client, userID int64, token string) error

	// HandleJoinStream adds a gated session to a live stream's room.
	HandleJoinStream(ctx context.Context, c *hub.Client, streamID, peerID string) error

	// HandleSignal relays an opaque WebRTC payload to a session in the same
	// room. Misses are dropped silently.
	HandleSignal(ctx context.Context, c *hub.Client, msg *domain.SignalMessage) error

	// HandleEndStream terminates the invoking session's stream. A silent
	// no-op unless the session is the stream's host.
	HandleEndStream(ctx context.Context, c *hub.Client) error

	// HandleDisconnect cleans up after a transport-level disconnect.
	HandleDisconnect(ctx context.Context, c *hub.Client) error

	// ViewerCount returns the current viewer count for a stream.
	ViewerCount(ctx context.Context, streamID string) (int, error)

	// LiveStreams returns the ids of streams with an active room.
	LiveStreams(ctx context.Context) ([]string, error)
}
