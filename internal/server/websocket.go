package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/conftimeout/internal/hub"
)

const writeTimeout = 5 * time.Second

// eventClient is a middleman between a websocket connection and the hub.
type eventClient struct {
	conn       *websocket.Conn
	hub        *hub.Hub
	subscriber *hub.Subscriber
}

// serveEvents streams hub frames to the connection until either side goes
// away. Anything the client sends is discarded.
func (s *Server) serveEvents(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true, // In production, check origin.
	})
	if err != nil {
		slog.Error("Failed to upgrade event WebSocket", "error", err)
		return nil
	}

	sub := s.hub.Subscribe()
	if sub == nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return nil
	}

	client := &eventClient{conn: conn, hub: s.hub, subscriber: sub}
	client.writePump(conn.CloseRead(c.Request().Context()))
	return nil
}

// writePump pumps frames from the hub to the websocket connection.
func (c *eventClient) writePump(ctx context.Context) {
	defer c.hub.Leave(c.subscriber)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Event WebSocket closed by peer")
			c.conn.Close(websocket.StatusNormalClosure, "")
			return

		case frame, ok := <-c.subscriber.Send:
			if !ok {
				c.conn.Close(websocket.StatusGoingAway, "unsubscribed")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				if websocket.CloseStatus(err) == -1 {
					slog.Error("Event writePump error", "error", err)
				}
				return
			}
		}
	}
}
