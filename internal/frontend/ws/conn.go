package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/game/session"
)

// conn is one upgraded socket and its outbound queue.
type conn struct {
	h      *Handler
	ws     *websocket.Conn
	out    *session.Outbox
	remote string

	closeOnce sync.Once
}

func (c *conn) closeSocket() {
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
	})
}

// readPump feeds inbound text frames to the coordinator until the socket
// fails, then disconnects the channel exactly once.
func (c *conn) readPump() {
	logger := c.h.logger.With(zap.String("channel", c.out.ID()))
	defer func() {
		c.h.coord.Disconnect(context.Background(), c.out.ID())
		_ = c.out.Close()
		c.closeSocket()
		c.h.remove(c)
		c.h.wg.Done()
		logger.Info("websocket disconnected", zap.String("remote_addr", c.remote))
	}()

	if c.h.cfg.MaxMessageSize > 0 {
		c.ws.SetReadLimit(c.h.cfg.MaxMessageSize)
	}
	readTimeout := c.h.cfg.ReadTimeout
	extend := func() {
		if readTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		}
	}
	extend()
	c.ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		extend()
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		c.dispatch(logger, data)
	}
}

// dispatch hands one frame to the coordinator. A panic while handling the
// frame is logged and the connection stays open.
func (c *conn) dispatch(logger *zap.Logger, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic handling message",
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
		}
	}()
	c.h.coord.HandleMessage(c.h.ctx, c.out.ID(), data)
}

// writePump writes queued messages one frame each and pings the peer on an
// interval. When the outbox closes it sends a close frame and shuts the
// socket, which in turn ends readPump.
func (c *conn) writePump() {
	interval := c.h.cfg.PingInterval()
	if interval <= 0 {
		interval = 54 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.closeSocket()
		c.h.wg.Done()
	}()

	timeout := c.h.writeTimeout()
	events := c.out.Events()
	for {
		select {
		case msg, ok := <-events:
			_ = c.ws.SetWriteDeadline(time.Now().Add(timeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.h.logger.Debug("websocket write failed",
					zap.String("channel", c.out.ID()),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(timeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
