// Package realtime serves the websocket endpoint: authentication at
// handshake, presence registration and the frame protocol.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"vetchat/auth"
	"vetchat/errors"
	"vetchat/infrastructure/dto"
	"vetchat/observability"
	"vetchat/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const maxFrameSize = 64 << 10

type GatewayOptions struct {
	ConnectionBufferSize int
	// SendTimeout bounds one request (join, send, mark as read).
	SendTimeout time.Duration
	// LeaveTimeout bounds the unregistration once the socket is gone.
	LeaveTimeout time.Duration
	CheckOrigin  func(r *http.Request) bool
}

type Gateway struct {
	log           *slog.Logger
	authenticator *auth.Authenticator
	chat          services.IChatService
	upgrader      websocket.Upgrader
	options       GatewayOptions
}

func NewGateway(log *slog.Logger, authenticator *auth.Authenticator, chat services.IChatService, options GatewayOptions) *Gateway {
	if options.SendTimeout <= 0 {
		options.SendTimeout = 5 * time.Second
	}
	if options.LeaveTimeout <= 0 {
		options.LeaveTimeout = 2 * time.Second
	}
	checkOrigin := options.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Gateway{
		log:           log,
		authenticator: authenticator,
		chat:          chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		options: options,
	}
}

// Handle authenticates the handshake, upgrades the connection and processes
// frames until the client disconnects.
// A request without a valid token is answered 401 before any upgrade, and the
// presence registry is never touched.
func (g *Gateway) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := g.authenticator.Authenticate(auth.TokenFromRequest(c))
		if err != nil {
			observability.ConnectionsRefused.WithLabelValues("authentication").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": errors.Code(err), "message": "invalid or expired token"},
			})
			return
		}

		ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response.
			observability.ConnectionsRefused.WithLabelValues("upgrade").Inc()
			g.log.Debug("Websocket upgrade failed", "user_id", claims.UserID, "error", err)
			return
		}

		conn := NewConnection(g.log, claims.UserID, ws, g.options.ConnectionBufferSize)
		conn.Start()

		joinCtx, cancel := context.WithTimeout(c.Request.Context(), g.options.SendTimeout)
		err = g.chat.Join(joinCtx, claims.Profile(), conn)
		cancel()
		if err != nil {
			g.log.Error("Connection not registered", "user_id", claims.UserID, "error", err)
			conn.Close(websocket.CloseTryAgainLater, "presence unavailable")
			return
		}
		defer g.leave(conn)

		connected, err := dto.WithPayload(dto.FrameConnected, dto.ConnectedPayload{UserID: claims.UserID, ConnectionID: conn.ID()})
		if err == nil {
			_ = conn.SendFrame(connected)
		}
		g.readLoop(c.Request.Context(), ws, conn)
	}
}

// leave runs on a fresh context: the request context is already gone when
// the client drops.
func (g *Gateway) leave(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), g.options.LeaveTimeout)
	defer cancel()
	if err := g.chat.Leave(ctx, conn); err != nil {
		g.log.Warn("Connection not unregistered", "user_id", conn.UserID(), "conn_id", conn.ID(), "error", err)
	}
	conn.Close(websocket.CloseNormalClosure, "session closed")
}

func (g *Gateway) readLoop(ctx context.Context, ws *websocket.Conn, conn *Connection) {
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				g.log.Debug("Read failed", "user_id", conn.UserID(), "conn_id", conn.ID(), "error", err)
			}
			return
		}
		// Any traffic proves the client is alive.
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		var frame dto.Frame
		if err = json.Unmarshal(data, &frame); err != nil {
			_ = conn.SendFrame(dto.ErrorFrame("", fmt.Errorf("%w: invalid frame", errors.ErrInvalidArgument)))
			continue
		}
		g.dispatch(ctx, conn, frame)
	}
}

func (g *Gateway) dispatch(ctx context.Context, conn *Connection, frame dto.Frame) {
	ctx, cancel := context.WithTimeout(ctx, g.options.SendTimeout)
	defer cancel()

	switch frame.Type {
	case dto.FrameSendMessage:
		_ = conn.SendFrame(g.sendMessage(ctx, conn, frame))
	case dto.FrameMarkAsRead:
		g.markAsRead(ctx, conn, frame)
	default:
		err := fmt.Errorf("%w: unknown frame type %q", errors.ErrInvalidArgument, frame.Type)
		_ = conn.SendFrame(dto.ErrorFrame(frame.RequestID, err))
	}
}

// sendMessage always returns exactly one ack for the request.
func (g *Gateway) sendMessage(ctx context.Context, conn *Connection, frame dto.Frame) dto.Frame {
	var payload dto.SendMessagePayload
	if err := frame.Decode(&payload); err != nil {
		return dto.FailedAck(frame.RequestID, err)
	}
	sent, err := g.chat.Send(ctx, services.SendMessageCommand{
		SenderID:       conn.UserID(),
		RecipientID:    payload.RecipientID,
		Content:        payload.Content,
		ConversationID: payload.ConversationID,
		ConnectionID:   conn.ID(),
	})
	if err != nil {
		return dto.FailedAck(frame.RequestID, err)
	}
	return dto.MessageAck(frame.RequestID, dto.FromSentMessage(sent.Message, sent.Sender))
}

func (g *Gateway) markAsRead(ctx context.Context, conn *Connection, frame dto.Frame) {
	var payload dto.MarkAsReadPayload
	if err := frame.Decode(&payload); err != nil {
		_ = conn.SendFrame(dto.ErrorFrame(frame.RequestID, err))
		return
	}
	count, err := g.chat.MarkRead(ctx, services.MarkReadCommand{UserID: conn.UserID(), ConversationID: payload.ConversationID})
	switch {
	case err != nil:
		_ = conn.SendFrame(dto.ErrorFrame(frame.RequestID, err))
	case frame.RequestID != "":
		_ = conn.SendFrame(dto.CountAck(frame.RequestID, count))
	}
}
