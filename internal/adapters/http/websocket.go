package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/safiri/internal/core/realtime"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait).
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	tokenKey = "ws_token"
)

// WebSocketUpgrade rejects non-upgrade requests and bad tokens before the
// handshake. The token comes from ?token= or the Authorization header.
func WebSocketUpgrade(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := c.Query("token")
		if token == "" {
			token = bearerToken(c)
		}
		if _, err := deps.Identity.VerifyToken(c.UserContext(), token); err != nil {
			return errUnauthorized(c, "invalid token")
		}
		c.Locals(tokenKey, token)
		return c.Next()
	}
}

// WebSocketHandler bridges one socket to the realtime hub: inbound frames go
// to HandleMessage, the client's queue is drained by a write pump.
func WebSocketHandler(hub *realtime.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		defer conn.Close()
		ctx := context.Background()
		logger := LoggerFromCtx(ctx).With("remote_addr", conn.RemoteAddr().String())

		token, _ := conn.Locals(tokenKey).(string)
		client, err := hub.Connect(ctx, token)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
				time.Now().Add(writeWait))
			return
		}
		logger = logger.With("client_id", client.ID, "user_id", client.Identity.UserID)
		logger.Info("ws client connected")

		done := make(chan struct{})
		go writePump(conn, client, done)

		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("ws read failed", "error", err)
				}
				break
			}
			hub.HandleMessage(ctx, client, msg)
		}

		// closes client.Send(), which stops the write pump
		hub.Disconnect(ctx, client)
		<-done
		logger.Info("ws client disconnected")
	}
}

func writePump(conn *websocket.Conn, client *realtime.Client, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case msg, ok := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				// unblock the reader so the handler can disconnect
				_ = conn.Close()
				drain(client)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				drain(client)
				return
			}
		}
	}
}

// drain discards queued messages until the hub closes the queue.
func drain(client *realtime.Client) {
	for range client.Send() {
	}
}
