package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iroosevelt/nerderland-live/internal/config"
	"github.com/iroosevelt/nerderland-live/internal/domain"
	"github.com/iroosevelt/nerderland-live/internal/hub"
	streamkafka "github.com/iroosevelt/nerderland-live/internal/kafka"
	"github.com/iroosevelt/nerderland-live/internal/presence"
	"github.com/iroosevelt/nerderland-live/internal/repository"
)

// In-memory fakes for the external collaborators.

type fakeUserRepo struct {
	users map[int64]*domain.User
	err   error
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

type fakeStreamRepo struct {
	mu      sync.Mutex
	streams map[string]*domain.Stream
	counts  map[string][]int
	endErr  error
}

func newFakeStreamRepo() *fakeStreamRepo {
	return &fakeStreamRepo{
		streams: make(map[string]*domain.Stream),
		counts:  make(map[string][]int),
	}
}

func (f *fakeStreamRepo) GetByID(_ context.Context, id string) (*domain.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[id]
	if !ok {
		return nil, repository.ErrStreamNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStreamRepo) SetViewerCount(_ context.Context, id string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[id]
	if !ok {
		return repository.ErrStreamNotFound
	}
	s.ViewerCount = count
	f.counts[id] = append(f.counts[id], count)
	return nil
}

func (f *fakeStreamRepo) End(_ context.Context, id string, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.endErr != nil {
		return f.endErr
	}
	s, ok := f.streams[id]
	if !ok || !s.IsLive {
		return repository.ErrStreamNotFound
	}
	s.IsLive = false
	s.ViewerCount = 0
	s.EndedAt = &endedAt
	return nil
}

func (f *fakeStreamRepo) stream(id string) domain.Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.streams[id]
}

func (f *fakeStreamRepo) persistedCounts(id string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.counts[id]...)
}

type fakeParticipantRepo struct {
	grants map[string]bool
	err    error
}

func grantKey(streamID string, userID int64) string {
	return fmt.Sprintf("%s/%d", streamID, userID)
}

func (f *fakeParticipantRepo) Exists(_ context.Context, streamID string, userID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.grants[grantKey(streamID, userID)], nil
}

type fakePresence struct {
	mu      sync.Mutex
	counts  map[string]int
	cleared []string
}

func newFakePresence() *fakePresence {
	return &fakePresence{counts: make(map[string]int)}
}

func (f *fakePresence) SetViewerCount(_ context.Context, streamID string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[streamID] = count
	return nil
}

func (f *fakePresence) GetViewerCount(_ context.Context, streamID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count, ok := f.counts[streamID]
	if !ok {
		return 0, presence.ErrNotTracked
	}
	return count, nil
}

func (f *fakePresence) ClearStream(_ context.Context, streamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, streamID)
	f.cleared = append(f.cleared, streamID)
	return nil
}

func (f *fakePresence) LiveStreams(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.counts))
	for id := range f.counts {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakePresence) Close() error { return nil }

type fakeProducer struct {
	mu     sync.Mutex
	events []streamkafka.StreamEvent
}

func (f *fakeProducer) ProduceStreamEnded(_ context.Context, streamID string, hostID int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, streamkafka.StreamEvent{
		Type:     streamkafka.EventStreamEnded,
		StreamID: streamID,
		HostID:   hostID,
		Reason:   reason,
	})
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func (f *fakeProducer) produced() []streamkafka.StreamEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]streamkafka.StreamEvent(nil), f.events...)
}

// Test harness

type testEnv struct {
	hub          *hub.Hub
	svc          SignalService
	users        *fakeUserRepo
	streams      *fakeStreamRepo
	participants *fakeParticipantRepo
	presence     *fakePresence
	producer     *fakeProducer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := &fakeUserRepo{users: map[int64]*domain.User{
		1: {ID: 1, Username: "ada"},
		2: {ID: 2, Username: "grace"},
		3: {ID: 3, Username: "linus"},
		4: {ID: 4}, // no username set
	}}
	streams := newFakeStreamRepo()
	streams.streams["abc123"] = &domain.Stream{ID: "abc123", UserID: 1, IsLive: true}
	streams.streams["xyz789"] = &domain.Stream{ID: "xyz789", UserID: 2, IsLive: true}
	streams.streams["dead01"] = &domain.Stream{ID: "dead01", UserID: 1, IsLive: false}
	participants := &fakeParticipantRepo{grants: make(map[string]bool)}
	presence := newFakePresence()
	producer := &fakeProducer{}

	h := hub.NewHub(config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 65536,
	})
	go h.Run()

	svc := NewSignalService(h, users, streams, participants, presence, producer, "")
	return &testEnv{
		hub:          h,
		svc:          svc,
		users:        users,
		streams:      streams,
		participants: participants,
		presence:     presence,
		producer:     producer,
	}
}

func (e *testEnv) newClient(id string) *hub.Client {
	c := &hub.Client{
		ID:      id,
		Hub:     e.hub,
		Send:    make(chan []byte, 256),
		Session: domain.NewSession(id),
	}
	e.hub.Register(c)
	return c
}

func (e *testEnv) connect(t *testing.T, c *hub.Client, userID int64) {
	t.Helper()
	require.NoError(t, e.svc.HandleConnect(context.Background(), c, userID, ""))
	msg := recv(t, c)
	require.Equal(t, domain.MsgTypeConnected, msg["type"])
}

func recv(t *testing.T, c *hub.Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func assertSilent(t *testing.T, c *hub.Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

// Connection gate

func TestConnectMissingUserID(t *testing.T) {
	e := newTestEnv(t)
	c := e.newClient("a")

	require.NoError(t, e.svc.HandleConnect(context.Background(), c, 0, ""))
	msg := recv(t, c)
	assert.Equal(t, domain.MsgTypeError, msg["type"])
	assert.Equal(t, "authentication required", msg["message"])
	assert.False(t, c.Session.IsAuthenticated())
}

func TestConnectUnknownUser(t *testing.T) {
	e := newTestEnv(t)
	c := e.newClient("a")

	require.NoError(t, e.svc.HandleConnect(context.Background(), c, 999, ""))
	msg := recv(t, c)
	assert.Equal(t, domain.MsgTypeError, msg["type"])
	assert.Equal(t, "user not found", msg["message"])
	assert.False(t, c.Session.IsAuthenticated())
}

func TestConnectStoreFailure(t *testing.T) {
	e := newTestEnv(t)
	e.users.err = fmt.Errorf("connection refused")
	c := e.newClient("a")

	require.NoError(t, e.svc.HandleConnect(context.Background(), c, 1, ""))
	msg := recv(t, c)
	assert.Equal(t, domain.MsgTypeError, msg["type"])
	assert.Equal(t, "authentication failed", msg["message"])
}

func TestConnectSuccess(t *testing.T) {
	e := newTestEnv(t)
	c := e.newClient("a")

	require.NoError(t, e.svc.HandleConnect(context.Background(), c, 1, ""))
	msg := recv(t, c)
	assert.Equal(t, domain.MsgTypeConnected, msg["type"])
	assert.Equal(t, "a", msg["session_id"])
	assert.Equal(t, "ada", msg["username"])
	assert.True(t, c.Session.IsAuthenticated())

	// A second connect on the same session is rejected.
	require.NoError(t, e.svc.HandleConnect(context.Background(), c, 2, ""))
	msg = recv(t, c)
	assert.Equal(t, domain.MsgTypeError, msg["type"])
}

func TestConnectSynthesizesDisplayName(t *testing.T) {
	e := newTestEnv(t)
	c := e.newClient("a")

	require.NoError(t, e.svc.HandleConnect(context.Background(), c, 4, ""))
	msg := recv(t, c)
	assert.Equal(t, "User4", msg["username"])
}

func TestConnectTokenVerification(t *testing.T) {
	e := newTestEnv(t)
	secret := "test-secret"
	e.svc = NewSignalService(e.hub, e.users, e.streams, e.participants, e.presence, e.producer, secret)

	sign := func(sub string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}

	// Subject mismatch is rejected.
	c := e.newClient("a")
	require.NoError(t, e.svc.HandleConnect(context.Background(), c, 1, sign("2")))
	msg := recv(t, c)
	assert.Equal(t, domain.MsgTypeError, msg["type"])
	assert.Equal(t, "authentication failed", msg["message"])

	// Matching subject is admitted.
	require.NoError(t, e.svc.HandleConnect(context.Background(), c, 1, sign("1")))
	msg = recv(t, c)
	assert.Equal(t, domain.MsgTypeConnected, msg["type"])
}

// Join

func TestJoinRequiresGate(t *testing.T) {
	e := newTestEnv(t)
	c := e.newClient("a")

	require.NoError(t, e.svc.HandleJoinStream(context.Background(), c, "abc123", ""))
	msg := recv(t, c)
	assert.Equal(t, domain.MsgTypeError, msg["type"])
	assert.Equal(t, "authentication required", msg["message"])
	assert.Equal(t, 0, e.hub.RoomSize("abc123"))
}

func TestJoinUnknownStream(t *testing.T) {
	e := newTestEnv(t)
	c := e.newClient("a")
	e.connect(t, c, 1)

	require.NoError(t, e.svc.HandleJoinStream(context.Background(), c, "nope", ""))
	msg := recv(t, c)
	assert.Equal(t, domain.MsgTypeError, msg["type"])
	assert.Equal(t, "stream not found or not live", msg["message"])
	assert.Empty(t, c.Session.CurrentStream())
}

func TestJoinEndedStream(t *testing.T) {
	e := newTestEnv(t)
	c := e.newClient("a")
	e.connect(t, c, 1)

	require.NoError(t, e.svc.HandleJoinStream(context.Background(), c, "dead01", "p1"))
	msg := recv(t, c)
	assert.Equal(t, "stream not found or not live", msg["message"])
	assert.Equal(t, 0, e.hub.RoomSize("dead01"))
	_, ok := e.hub.Peer("a")
	assert.False(t, ok)
}

func TestHostJoin(t *testing.T) {
	e := newTestEnv(t)
	a := e.newClient("a")
	e.connect(t, a, 1)

	require.NoError(t, e.svc.HandleJoinStream(context.Background(), a, "abc123", "p1"))

	// Private roster reply: no other members yet.
	msg := recv(t, a)
	require.Equal(t, domain.MsgTypeRoomMembers, msg["type"])
	assert.Empty(t, msg["members"])

	// Viewer count broadcast reaches the whole room, host included.
	msg = recv(t, a)
	require.Equal(t, domain.MsgTypeViewerCount, msg["type"])
	assert.EqualValues(t, 1, msg["count"])

	assert.Equal(t, 1, e.hub.RoomSize("abc123"))
	assert.True(t, a.Session.Hosting())

	// Host gets a peer directory entry.
	peerID, ok := e.hub.Peer("a")
	require.True(t, ok)
	assert.Equal(t, "p1", peerID)

	// Count persisted to the stream record and mirrored to redis.
	assert.Equal(t, []int{1}, e.streams.persistedCounts("abc123"))
	count, _ := e.presence.GetViewerCount(context.Background(), "abc123")
	assert.Equal(t, 1, count)
}

func TestViewerJoinGetsNoPeerEntry(t *testing.T) {
	e := newTestEnv(t)
	a := e.newClient("a")
	b := e.newClient("b")
	e.connect(t, a, 1)
	e.connect(t, b, 2)

	require.NoError(t, e.svc.HandleJoinStream(context.Background(), a, "abc123", "p1"))
	recv(t, a) // room-members
	recv(t, a) // viewer-count 1

	require.NoError(t, e.svc.HandleJoinStream(context.Background(), b, "abc123", "p2"))

	// A plain viewer's supplied peer id is never stored.
	_, ok := e.hub.Peer("b")
	assert.False(t, ok)

	// Existing member sees the join without a peer id.
	msg := recv(t, a)
	require.Equal(t, domain.MsgTypeUserJoined, msg["type"])
	assert.EqualValues(t, 2, msg["user_id"])
	assert.Equal(t, "grace", msg["username"])
	assert.Equal(t, false, msg["is_host"])
	assert.Equal(t, false, msg["is_participant"])
	assert.Nil(t, msg["peer_id"])

	msg = recv(t, a)
	require.Equal(t, domain.MsgTypeViewerCount, msg["type"])
	assert.EqualValues(t, 2, msg["count"])

	// Joiner's roster carries the host's peer id.
	msg = recv(t, b)
	require.Equal(t, domain.MsgTypeRoomMembers, msg["type"])
	members := msg["members"].([]interface{})
	require.Len(t, members, 1)
	host := members[0].(map[string]interface{})
	assert.Equal(t, "a", host["session_id"])
	assert.Equal(t, true, host["is_host"])
	assert.Equal(t, "p1", host["peer_id"])

	assert.Equal(t, []int{1, 2}, e.streams.persistedCounts("abc123"))
}

func TestParticipantJoinRegistersPeer(t *testing.T) {
	e := newTestEnv(t)
	e.participants.grants[grantKey("abc123", 3)] = true

	a := e.newClient("a")
	c := e.newClient("c")
	e.connect(t, a, 1)
	e.connect(t, c, 3)

	require.NoError(t, e.svc.HandleJoinStream(context.Background(), a, "abc123", "p1"))
	recv(t, a)
	recv(t, a)

	require.NoError(t, e.svc.HandleJoinStream(context.Background(), c, "abc123", "p3"))

	peerID, ok := e.hub.Peer("c")
	require.True(t, ok)
	assert.Equal(t, "p3", peerID)

	msg := recv(t, a)
	require.Equal(t, domain.MsgTypeUserJoined, msg["type"])
	assert.Equal(t, true, msg["is_participant"])
	assert.Equal(t, "p3", msg["peer_id"])
}

func TestParticipantLookupFailureDegradesToViewer(t *testing.T) {
	e := newTestEnv(t)
	e.participants.err = fmt.Errorf("timeout")

	b := e.newClient("b")
	e.connect(t, b, 2)

	require.NoError(t, e.svc.HandleJoinStream(context.Background(), b, "abc123", "p2"))

	// Join still succeeds, but without signaling rights.
	msg := recv(t, b)
	assert.Equal(t, domain.MsgTypeRoomMembers, msg["type"])
	_, ok := e.hub.Peer("b")
	assert.False(t, ok)
	assert.False(t, b.Session.Participating())
}

// Relay

func joinedPair(t *testing.T, e *testEnv) (*hub.Client, *hub.Client) {
	t.Helper()
	a := e.newClient("a")
	b := e.newClient("b")
	e.connect(t, a, 1)
	e.connect(t, b, 2)
	require.NoError(t, e.svc.HandleJoinStream(context.Background(), a, "abc123", "p1"))
	recv(t, a)
	recv(t, a)
	require.NoError(t, e.svc.HandleJoinStream(context.Background(), b, "abc123", "p2"))
	recv(t, a) // user-joined
	recv(t, a) // viewer-count
	recv(t, b) // room-members
	recv(t, b) // viewer-count
	return a, b
}

func TestSignalRelayOverwritesFrom(t *testing.T) {
	e := newTestEnv(t)
	a, b := joinedPair(t, e)

	payload := json.RawMessage(`{"sdp":"v=0"}`)
	require.NoError(t, e.svc.HandleSignal(context.Background(), b, &domain.SignalMessage{
		Type:       domain.MsgTypeSignal,
		To:         a.ID,
		From:       "spoofed",
		SignalType: domain.SignalOffer,
		Payload:    payload,
	}))

	msg := recv(t, a)
	assert.Equal(t, domain.MsgTypeSignal, msg["type"])
	assert.Equal(t, "b", msg["from"])
	assert.Equal(t, domain.SignalOffer, msg["signal_type"])
	assert.Equal(t, map[string]interface{}{"sdp": "v=0"}, msg["payload"])
}

func TestSignalToUnknownTargetDropped(t *testing.T) {
	e := newTestEnv(t)
	_, b := joinedPair(t, e)

	require.NoError(t, e.svc.HandleSignal(context.Background(), b, &domain.SignalMessage{
		Type: domain.MsgTypeSignal,
		To:   "ghost",
	}))
	assertSilent(t, b)
}

func TestSignalCrossRoomDropped(t *testing.T) {
	e := newTestEnv(t)
	a, _ := joinedPair(t, e)

	// c is in a different room.
	c := e.newClient("c")
	e.connect(t, c, 2)
	require.NoError(t, e.svc.HandleJoinStream(context.Background(), c, "xyz789", ""))
	recv(t, c)
	recv(t, c)

	require.NoError(t, e.svc.HandleSignal(context.Background(), c, &domain.SignalMessage{
		Type:       domain.MsgTypeSignal,
		To:         a.ID,
		SignalType: domain.SignalOffer,
	}))
	assertSilent(t, a)
}

func TestSignalFromUnjoinedDropped(t *testing.T) {
	e := newTestEnv(t)
	a, _ := joinedPair(t, e)

	c := e.newClient("c")
	e.connect(t, c, 3)

	require.NoError(t, e.svc.HandleSignal(context.Background(), c, &domain.SignalMessage{
		Type: domain.MsgTypeSignal,
		To:   a.ID,
	}))
	assertSilent(t, a)
}

// Disconnect

func TestDisconnectCleansUp(t *testing.T) {
	e := newTestEnv(t)
	a, b := joinedPair(t, e)

	require.NoError(t, e.svc.HandleDisconnect(context.Background(), b))

	msg := recv(t, a)
	require.Equal(t, domain.MsgTypeUserLeft, msg["type"])
	assert.EqualValues(t, 2, msg["user_id"])
	assert.Equal(t, "b", msg["session_id"])

	msg = recv(t, a)
	require.Equal(t, domain.MsgTypeViewerCount, msg["type"])
	assert.EqualValues(t, 1, msg["count"])

	assert.Equal(t, 1, e.hub.RoomSize("abc123"))
	_, ok := e.hub.Peer("b")
	assert.False(t, ok)
	assert.Equal(t, domain.StateClosed, b.Session.GetState())
	assert.Equal(t, []int{1, 2, 1}, e.streams.persistedCounts("abc123"))
}

func TestLastDisconnectDeletesRoom(t *testing.T) {
	e := newTestEnv(t)
	a, b := joinedPair(t, e)

	require.NoError(t, e.svc.HandleDisconnect(context.Background(), b))
	recv(t, a)
	recv(t, a)
	require.NoError(t, e.svc.HandleDisconnect(context.Background(), a))

	assert.Equal(t, 0, e.hub.RoomSize("abc123"))

	// The stream record stays live; only the in-memory room is gone.
	assert.True(t, e.streams.stream("abc123").IsLive)
	assert.Equal(t, 0, e.streams.stream("abc123").ViewerCount)
}

func TestDisconnectWithoutJoinIsNoOp(t *testing.T) {
	e := newTestEnv(t)
	c := e.newClient("a")
	e.connect(t, c, 1)

	require.NoError(t, e.svc.HandleDisconnect(context.Background(), c))
	assert.Equal(t, domain.StateClosed, c.Session.GetState())
}

// End-stream

func TestEndStreamByHost(t *testing.T) {
	e := newTestEnv(t)
	a, b := joinedPair(t, e)

	require.NoError(t, e.svc.HandleEndStream(context.Background(), a))

	// Both members receive the teardown notice.
	for _, c := range []*hub.Client{a, b} {
		msg := recv(t, c)
		assert.Equal(t, domain.MsgTypeStreamEnded, msg["type"])
		assert.Equal(t, "abc123", msg["stream_id"])
	}

	// Stream record: not live, zero viewers, end timestamp set.
	stream := e.streams.stream("abc123")
	assert.False(t, stream.IsLive)
	assert.Equal(t, 0, stream.ViewerCount)
	require.NotNil(t, stream.EndedAt)

	// Room and peer entries are gone; sessions survive.
	assert.Equal(t, 0, e.hub.RoomSize("abc123"))
	_, ok := e.hub.Peer("a")
	assert.False(t, ok)
	assert.Empty(t, a.Session.CurrentStream())
	assert.True(t, b.Session.IsAuthenticated())

	// Redis live state cleared, kafka event produced.
	assert.Contains(t, e.presence.cleared, "abc123")
	events := e.producer.produced()
	require.Len(t, events, 1)
	assert.Equal(t, streamkafka.EventStreamEnded, events[0].Type)
	assert.Equal(t, int64(1), events[0].HostID)
	assert.Equal(t, streamkafka.ReasonExplicit, events[0].Reason)
}

func TestEndStreamByNonHostIsSilentNoOp(t *testing.T) {
	e := newTestEnv(t)
	a, b := joinedPair(t, e)

	require.NoError(t, e.svc.HandleEndStream(context.Background(), b))

	assertSilent(t, a)
	assertSilent(t, b)
	assert.Equal(t, 2, e.hub.RoomSize("abc123"))
	assert.True(t, e.streams.stream("abc123").IsLive)
	assert.Empty(t, e.producer.produced())
}

func TestEndStreamAfterAlreadyEnded(t *testing.T) {
	e := newTestEnv(t)
	a, b := joinedPair(t, e)

	require.NoError(t, e.svc.HandleEndStream(context.Background(), a))
	recv(t, a)
	recv(t, b)

	// The host's session left the room on teardown, so a second end-stream
	// is a no-op; same for a non-host after the room is gone.
	require.NoError(t, e.svc.HandleEndStream(context.Background(), a))
	require.NoError(t, e.svc.HandleEndStream(context.Background(), b))
	assertSilent(t, a)
	assertSilent(t, b)
}

func TestEndStreamPersistFailureStillTearsDown(t *testing.T) {
	e := newTestEnv(t)
	a, b := joinedPair(t, e)
	e.streams.endErr = fmt.Errorf("deadlock detected")

	require.NoError(t, e.svc.HandleEndStream(context.Background(), a))

	// The broadcast still goes out; persistence is best effort.
	msg := recv(t, b)
	assert.Equal(t, domain.MsgTypeStreamEnded, msg["type"])
	assert.Equal(t, 0, e.hub.RoomSize("abc123"))
}

// Room switching

func TestJoinDifferentStreamLeavesCurrentRoom(t *testing.T) {
	e := newTestEnv(t)
	a, b := joinedPair(t, e)

	require.NoError(t, e.svc.HandleJoinStream(context.Background(), b, "xyz789", ""))

	// Old room saw the departure and the new count.
	msg := recv(t, a)
	assert.Equal(t, domain.MsgTypeUserLeft, msg["type"])
	msg = recv(t, a)
	require.Equal(t, domain.MsgTypeViewerCount, msg["type"])
	assert.EqualValues(t, 1, msg["count"])

	assert.Equal(t, 1, e.hub.RoomSize("abc123"))
	assert.Equal(t, 1, e.hub.RoomSize("xyz789"))
	assert.Equal(t, "xyz789", b.Session.CurrentStream())
}

// Read API

func TestViewerCountWithPresence(t *testing.T) {
	e := newTestEnv(t)

	// An unknown stream is a miss in redis AND the database: the 404 path.
	_, err := e.svc.ViewerCount(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrStreamNotFound)

	// A known stream with no active room falls back to the stored count.
	e.streams.streams["abc123"].ViewerCount = 4
	count, err := e.svc.ViewerCount(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// Once a room exists the redis mirror wins.
	require.NoError(t, e.presence.SetViewerCount(context.Background(), "abc123", 9))
	count, err = e.svc.ViewerCount(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, 9, count)
}

func TestViewerCountFallsBackToStore(t *testing.T) {
	e := newTestEnv(t)
	svc := NewSignalService(e.hub, e.users, e.streams, e.participants, nil, nil, "")

	e.streams.streams["abc123"].ViewerCount = 7
	count, err := svc.ViewerCount(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	_, err = svc.ViewerCount(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrStreamNotFound)
}
