package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iroosevelt/nerderland-live/internal/domain"
	"github.com/iroosevelt/nerderland-live/internal/hub"
	streamkafka "github.com/iroosevelt/nerderland-live/internal/kafka"
	"github.com/iroosevelt/nerderland-live/internal/presence"
	"github.com/iroosevelt/nerderland-live/internal/repository"
	pkglog "github.com/iroosevelt/nerderland-live/pkg/log"
)

type signalService struct {
	hub          *hub.Hub
	users        repository.UserRepository
	streams      repository.StreamRepository
	participants repository.ParticipantRepository
	presence     presence.Store
	producer     streamkafka.StreamEventProducer
	jwtSecret    string
}

// NewSignalService creates a new SignalService instance. presence and
// producer may be nil; the realtime path runs without them.
func NewSignalService(
	h *hub.Hub,
	users repository.UserRepository,
	streams repository.StreamRepository,
	participants repository.ParticipantRepository,
	presenceStore presence.Store,
	producer streamkafka.StreamEventProducer,
	jwtSecret string,
) SignalService {
	return &signalService{
		hub:          h,
		users:        users,
		streams:      streams,
		participants: participants,
		presence:     presenceStore,
		producer:     producer,
		jwtSecret:    jwtSecret,
	}
}

func (s *signalService) HandleConnect(ctx context.Context, c *hub.Client, userID int64, token string) error {
	l := pkglog.Ctx(ctx)

	if c.Session.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "already connected"))
	}

	if userID == 0 {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "authentication required"))
	}

	if s.jwtSecret != "" && token != "" {
		if err := s.verifyToken(token, userID); err != nil {
			l.Warn().Err(err).Int64(pkglog.FieldUserID, userID).Msg("connect token rejected")
			return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "authentication failed"))
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "user not found"))
		}
		l.Error().Err(err).Int64(pkglog.FieldUserID, userID).Msg("user lookup failed")
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "authentication failed"))
	}

	c.Session.Authenticate(user.ID, user.DisplayName())

	return c.SendMessage(&domain.ConnectedMessage{
		Type:      domain.MsgTypeConnected,
		SessionID: c.ID,
		UserID:    user.ID,
		Username:  c.Session.GetUsername(),
	})
}

// verifyToken checks the optional connect token: it must parse with the
// configured secret and its subject must match the presented user id.
func (s *signalService) verifyToken(token string, userID int64) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return err
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return err
	}
	claimed, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid subject claim: %w", err)
	}
	if claimed != userID {
		return fmt.Errorf("token subject %d does not match user id %d", claimed, userID)
	}
	return nil
}

func (s *signalService) HandleJoinStream(ctx context.Context, c *hub.Client, streamID, peerID string) error {
	l := pkglog.Ctx(ctx)

	if !c.Session.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "authentication required"))
	}
	if streamID == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "stream_id is required"))
	}

	stream, err := s.streams.GetByID(ctx, streamID)
	if err != nil {
		if errors.Is(err, repository.ErrStreamNotFound) {
			return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotFound, "stream not found or not live"))
		}
		l.Error().Err(err).Str(pkglog.FieldStreamID, streamID).Msg("stream lookup failed")
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "failed to get stream"))
	}
	if !stream.IsLive {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotFound, "stream not found or not live"))
	}

	// A session switching streams leaves its old room first, with the same
	// bookkeeping a disconnect would do. Two sessions of the same user are
	// deliberately NOT deduplicated; each counts as a member.
	if current := c.Session.CurrentStream(); current != "" && current != streamID {
		s.removeFromRoom(ctx, c, current)
	}

	host := stream.UserID == c.Session.GetUserID()
	participant := host
	if !participant {
		participant, err = s.participants.Exists(ctx, streamID, c.Session.GetUserID())
		if err != nil {
			// Degrade to plain viewer rather than failing the join.
			l.Error().Err(err).Str(pkglog.FieldStreamID, streamID).Msg("participant lookup failed")
			participant = false
		}
	}

	c.Session.JoinStream(streamID, host, participant)
	s.hub.JoinRoom(c, streamID)

	// Plain viewers never get a peer directory entry; they can observe
	// broadcasts but cannot be signaling targets.
	if peerID != "" && participant {
		s.hub.SetPeer(c.ID, peerID)
	}

	joined := &domain.UserJoinedMessage{
		Type:          domain.MsgTypeUserJoined,
		StreamID:      streamID,
		SessionID:     c.ID,
		UserID:        c.Session.GetUserID(),
		Username:      c.Session.GetUsername(),
		IsHost:        host,
		IsParticipant: participant,
	}
	if registered, ok := s.hub.Peer(c.ID); ok {
		joined.PeerID = registered
	}
	s.hub.BroadcastToRoom(streamID, joined, c.ID)

	// Private roster reply so the joiner can establish connections to each
	// existing member.
	others := s.hub.RoomMembers(streamID, c.ID)
	members := make([]domain.RoomMember, 0, len(others))
	for _, other := range others {
		member := domain.RoomMember{
			SessionID: other.ID,
			UserID:    other.Session.GetUserID(),
			Username:  other.Session.GetUsername(),
			IsHost:    other.Session.Hosting(),
		}
		if pid, ok := s.hub.Peer(other.ID); ok {
			member.PeerID = pid
		}
		members = append(members, member)
	}
	c.SendMessage(&domain.RoomMembersMessage{
		Type:     domain.MsgTypeRoomMembers,
		StreamID: streamID,
		Members:  members,
	})

	s.publishViewerCount(ctx, streamID)

	l.Info().
		Str(pkglog.FieldSessionID, c.ID).
		Str(pkglog.FieldStreamID, streamID).
		Int64(pkglog.FieldUserID, c.Session.GetUserID()).
		Bool("host", host).
		Msg("session joined stream")
	return nil
}

func (s *signalService) HandleSignal(ctx context.Context, c *hub.Client, msg *domain.SignalMessage) error {
	// Relay misses are silent by design: best-effort delivery, no error to
	// the sender.
	streamID := c.Session.CurrentStream()
	if streamID == "" || msg.To == "" {
		return nil
	}
	if !s.hub.InRoom(streamID, c.ID) || !s.hub.InRoom(streamID, msg.To) {
		return nil
	}

	target, ok := s.hub.Client(msg.To)
	if !ok || target.Session.CurrentStream() != streamID {
		return nil
	}

	// Overwrite the origin; the client-supplied From is never trusted.
	msg.From = c.ID
	return target.SendMessage(msg)
}

func (s *signalService) HandleEndStream(ctx context.Context, c *hub.Client) error {
	l := pkglog.Ctx(ctx)

	// Gated client-side; the server is the second line of defense. Non-host
	// or not-joined invocations are silent no-ops, not errors.
	if !c.Session.Hosting() {
		return nil
	}
	streamID := c.Session.CurrentStream()
	hostID := c.Session.GetUserID()

	if err := s.streams.End(ctx, streamID, time.Now()); err != nil {
		// The realtime teardown still proceeds; persistence is best effort.
		l.Error().Err(err).Str(pkglog.FieldStreamID, streamID).Msg("failed to persist stream end")
	}

	if s.presence != nil {
		if err := s.presence.ClearStream(ctx, streamID); err != nil {
			l.Error().Err(err).Str(pkglog.FieldStreamID, streamID).Msg("failed to clear presence state")
		}
	}

	if s.producer != nil {
		if err := s.producer.ProduceStreamEnded(ctx, streamID, hostID, streamkafka.ReasonExplicit); err != nil {
			l.Error().Err(err).Str(pkglog.FieldStreamID, streamID).Msg("failed to produce stream_ended event")
		}
	}

	// Tear the room down and tell every member directly, host included,
	// so delivery is not racing the room removal.
	ended := &domain.StreamEndedMessage{
		Type:     domain.MsgTypeStreamEnded,
		StreamID: streamID,
	}
	for _, member := range s.hub.RemoveRoom(streamID) {
		member.SendMessage(ended)
		s.hub.RemovePeer(member.ID)
		member.Session.LeaveStream()
	}

	l.Info().
		Str(pkglog.FieldStreamID, streamID).
		Int64(pkglog.FieldUserID, hostID).
		Msg("stream ended by host")
	return nil
}

func (s *signalService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	streamID := c.Session.CurrentStream()
	if streamID != "" {
		s.removeFromRoom(ctx, c, streamID)
	}
	s.hub.RemovePeer(c.ID)
	c.Session.Close()
	return nil
}

// removeFromRoom takes a session out of a room with full bookkeeping:
// user-left broadcast, viewer-count recompute and persistence, peer entry
// removal. Safe when the room was already torn down by a concurrent
// end-stream.
func (s *signalService) removeFromRoom(ctx context.Context, c *hub.Client, streamID string) {
	l := pkglog.Ctx(ctx)

	if !s.hub.InRoom(streamID, c.ID) {
		c.Session.LeaveStream()
		return
	}

	s.hub.LeaveRoom(c, streamID)
	s.hub.RemovePeer(c.ID)

	s.hub.BroadcastToRoom(streamID, &domain.UserLeftMessage{
		Type:      domain.MsgTypeUserLeft,
		StreamID:  streamID,
		UserID:    c.Session.GetUserID(),
		SessionID: c.ID,
	}, c.ID)

	s.publishViewerCount(ctx, streamID)
	c.Session.LeaveStream()

	l.Info().
		Str(pkglog.FieldSessionID, c.ID).
		Str(pkglog.FieldStreamID, streamID).
		Msg("session left stream")
}

// publishViewerCount recomputes the room's member count, broadcasts it to
// the whole room and persists it. Store failures are logged, never surfaced;
// the live experience outranks persistence consistency here.
func (s *signalService) publishViewerCount(ctx context.Context, streamID string) {
	l := pkglog.Ctx(ctx)
	count := s.hub.RoomSize(streamID)

	s.hub.BroadcastToRoom(streamID, &domain.ViewerCountMessage{
		Type:     domain.MsgTypeViewerCount,
		StreamID: streamID,
		Count:    count,
	}, "")

	if err := s.streams.SetViewerCount(ctx, streamID, count); err != nil {
		l.Error().Err(err).Str(pkglog.FieldStreamID, streamID).Int(pkglog.FieldViewers, count).
			Msg("failed to persist viewer count")
	}

	if s.presence != nil {
		if err := s.presence.SetViewerCount(ctx, streamID, count); err != nil {
			l.Error().Err(err).Str(pkglog.FieldStreamID, streamID).Int(pkglog.FieldViewers, count).
				Msg("failed to mirror viewer count to redis")
		}
	}
}

func (s *signalService) ViewerCount(ctx context.Context, streamID string) (int, error) {
	if s.presence != nil {
		if count, err := s.presence.GetViewerCount(ctx, streamID); err == nil {
			return count, nil
		}
	}
	stream, err := s.streams.GetByID(ctx, streamID)
	if err != nil {
		return 0, err
	}
	return stream.ViewerCount, nil
}

func (s *signalService) LiveStreams(ctx context.Context) ([]string, error) {
	if s.presence == nil {
		return nil, nil
	}
	return s.presence.LiveStreams(ctx)
}
