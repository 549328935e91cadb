package repository

import (
	"context"
	"errors"
	"time"

	"github.com/iroosevelt/nerderland-live/internal/domain"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrStreamNotFound = errors.New("stream not found")
)

// UserRepository reads user identities. Users are owned by the web app; this
// service only resolves ids at connect time.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// StreamRepository reads and updates stream records.
type StreamRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Stream, error)
	// SetViewerCount writes the current viewer count. Last-writer-wins; the
	// count is an approximate, frequently-recomputed metric.
	SetViewerCount(ctx context.Context, id string, count int) error
	// End marks the stream not live, zeroes its viewer count and stamps the
	// end time.
	End(ctx context.Context, id string, endedAt time.Time) error
}

// ParticipantRepository checks whether a user was granted participant status
// for a stream, distinct from a general viewer.
type ParticipantRepository interface {
	Exists(ctx context.Context, streamID string, userID int64) (bool, error)
}
