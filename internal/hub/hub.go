package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iroosevelt/nerderland-live/internal/config"
	"github.com/iroosevelt/nerderland-live/internal/domain"
	pkglog "github.com/iroosevelt/nerderland-live/pkg/log"
)

// DisconnectHandler is called when a client disconnects, before the client is
// removed from the hub.
type DisconnectHandler func(*Client)

// ErrClientClosed reports a send to a client that has been unregistered.
var ErrClientClosed = errors.New("client closed")

var errSendBufferFull = errors.New("send buffer full")

// Client represents a connected WebSocket client.
type Client struct {
	ID                string
	Hub               *Hub
	Conn              *websocket.Conn
	Send              chan []byte
	Session           *domain.Session
	disconnectHandler DisconnectHandler

	mu     sync.Mutex
	closed bool
}

// enqueue hands data to the write pump. The client mutex serializes sends
// against the hub closing Send on unregister, so callers holding a stale
// *Client cannot hit a closed channel.
func (c *Client) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// SetDisconnectHandler sets the handler to be called on disconnect.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.disconnectHandler = handler
}

// Hub owns all WebSocket connections plus the two in-memory registries the
// signaling server runs on: the room registry (stream id -> member sessions)
// and the peer directory (session id -> peer-connection id). Both are process
// local; nothing outside this process mutates them.
type Hub struct {
	clients    map[string]*Client
	rooms      map[string]map[string]*Client // streamID -> sessionID -> client
	peers      map[string]string             // sessionID -> peer-connection id
	register   chan *Client
	unregister chan *Client
	broadcast  chan *RoomMessage
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// RoomMessage is a message to be broadcast to a room.
type RoomMessage struct {
	StreamID string
	Message  []byte
	Exclude  string // session ID to exclude from the broadcast
}

// NewHub creates a new Hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		peers:      make(map[string]string),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *RoomMessage, 256),
		config:     cfg,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	l := pkglog.L()
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l.Debug().Str(pkglog.FieldSessionID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				// Defensive sweep: the disconnect handler already removed the
				// client from its room, but a racing end-stream may have torn
				// the room down first. Every removal here is idempotent.
				for streamID, members := range h.rooms {
					delete(members, client.ID)
					if len(members) == 0 {
						delete(h.rooms, streamID)
					}
				}
				delete(h.peers, client.ID)
				delete(h.clients, client.ID)
				client.closeSend()
			}
			h.mu.Unlock()
			l.Debug().Str(pkglog.FieldSessionID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			if members, ok := h.rooms[msg.StreamID]; ok {
				for sessionID, client := range members {
					if sessionID == msg.Exclude {
						continue
					}
					if err := client.enqueue(msg.Message); errors.Is(err, errSendBufferFull) {
						go h.removeClient(client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Client returns the connected client with the given session id.
func (h *Hub) Client(sessionID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[sessionID]
	return c, ok
}

// JoinRoom adds a client to a stream's room, creating the room lazily.
func (h *Hub) JoinRoom(client *Client, streamID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[streamID]; !ok {
		h.rooms[streamID] = make(map[string]*Client)
	}
	h.rooms[streamID][client.ID] = client
}

// LeaveRoom removes a client from a stream's room. The room is deleted when
// its last member leaves. Safe to call when the room no longer exists.
func (h *Hub) LeaveRoom(client *Client, streamID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[streamID]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, streamID)
		}
	}
}

// RemoveRoom deletes a room wholesale and returns the members it had.
// Remaining members keep their sessions but the room is gone; later signal or
// leave operations against it are no-ops.
func (h *Hub) RemoveRoom(streamID string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[streamID]
	if !ok {
		return nil
	}
	delete(h.rooms, streamID)

	out := make([]*Client, 0, len(members))
	for _, client := range members {
		out = append(out, client)
	}
	return out
}

// RoomMembers returns the room's members excluding the given session id.
func (h *Hub) RoomMembers(streamID, exclude string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[streamID]
	if !ok {
		return nil
	}
	out := make([]*Client, 0, len(members))
	for sessionID, client := range members {
		if sessionID == exclude {
			continue
		}
		out = append(out, client)
	}
	return out
}

// RoomSize returns the current member count of a stream's room.
func (h *Hub) RoomSize(streamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[streamID])
}

// InRoom reports whether the session is currently a member of the stream's room.
func (h *Hub) InRoom(streamID, sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members, ok := h.rooms[streamID]
	if !ok {
		return false
	}
	_, ok = members[sessionID]
	return ok
}

// SetPeer registers the peer-connection id for a session.
func (h *Hub) SetPeer(sessionID, peerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[sessionID] = peerID
}

// Peer returns the peer-connection id registered for a session, if any.
func (h *Hub) Peer(sessionID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	peerID, ok := h.peers[sessionID]
	return peerID, ok
}

// RemovePeer deletes the peer directory entry for a session.
func (h *Hub) RemovePeer(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, sessionID)
}

// BroadcastToRoom sends a message to all clients in a stream's room.
func (h *Hub) BroadcastToRoom(streamID string, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.broadcast <- &RoomMessage{
		StreamID: streamID,
		Message:  data,
		Exclude:  exclude,
	}
	return nil
}

// SendToClient sends a message to a specific client. Unknown clients are a
// silent no-op.
func (h *Hub) SendToClient(sessionID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	client, ok := h.clients[sessionID]
	h.mu.RUnlock()

	if !ok {
		return nil
	}

	if err := client.enqueue(data); errors.Is(err, errSendBufferFull) {
		go h.removeClient(client)
	}
	return nil
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}

// ReadPump pumps messages from the WebSocket connection to the handler.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		if c.disconnectHandler != nil {
			c.disconnectHandler(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := pkglog.L()
				l.Error().Err(err).Str(pkglog.FieldSessionID, c.ID).Msg("websocket error")
			}
			break
		}

		if c.Session != nil {
			c.Session.UpdateActivity()
		}

		handler(c, message)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage marshals and queues a message for the client. Messages are
// dropped when the client's buffer is full; sending to an unregistered client
// reports ErrClientClosed.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	if err := c.enqueue(data); errors.Is(err, ErrClientClosed) {
		return err
	}
	return nil
}
