package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iroosevelt/nerderland-live/internal/domain"
	"github.com/iroosevelt/nerderland-live/internal/hub"
	"github.com/iroosevelt/nerderland-live/internal/service"
	pkglog "github.com/iroosevelt/nerderland-live/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub     *hub.Hub
	service service.SignalService
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *hub.Hub, svc service.SignalService) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
	}
}

// HandleWebSocket upgrades the connection and starts the session pumps.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := pkglog.Ctx(c.Request.Context())

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	sessionID := uuid.New().String()
	client := &hub.Client{
		ID:      sessionID,
		Hub:     h.hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Session: domain.NewSession(sessionID),
	}

	client.SetDisconnectHandler(func(cl *hub.Client) {
		if err := h.service.HandleDisconnect(context.Background(), cl); err != nil {
			l.Error().Err(err).Str(pkglog.FieldSessionID, cl.ID).Msg("disconnect handler error")
		}
	})

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	l := pkglog.L()

	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.MsgTypeConnect:
		var msg domain.ConnectMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid connect message"))
			return
		}
		if err := h.service.HandleConnect(ctx, client, msg.UserID, msg.Token); err != nil {
			l.Error().Err(err).Str(pkglog.FieldSessionID, client.ID).Msg("connect failed")
		}

	case domain.MsgTypeJoinStream:
		var msg domain.JoinStreamMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid join-stream message"))
			return
		}
		if err := h.service.HandleJoinStream(ctx, client, msg.StreamID, msg.PeerID); err != nil {
			l.Error().Err(err).Str(pkglog.FieldSessionID, client.ID).Msg("join stream failed")
		}

	case domain.MsgTypeSignal:
		var msg domain.SignalMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid signal message"))
			return
		}
		if err := h.service.HandleSignal(ctx, client, &msg); err != nil {
			l.Error().Err(err).Str(pkglog.FieldSessionID, client.ID).Msg("signal relay failed")
		}

	case domain.MsgTypeEndStream:
		if err := h.service.HandleEndStream(ctx, client); err != nil {
			l.Error().Err(err).Str(pkglog.FieldSessionID, client.ID).Msg("end stream failed")
		}

	case domain.MsgTypePing:
		client.SendMessage(map[string]string{"type": domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown message type"))
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", h.HandleWebSocket)
}
