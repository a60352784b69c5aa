package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/wpprelay/internal/bus"
	"github.com/matheus3301/wpprelay/internal/live"
	"github.com/matheus3301/wpprelay/internal/metrics"
	"go.uber.org/zap"
)

const (
	wsSendBuffer = 256
	wsWriteWait  = 10 * time.Second
)

var upgrader = &websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsFrame is the push channel message: {"event": ..., "data": ...}.
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type connection struct {
	ws     *websocket.Conn
	origin string
	hub    *live.Hub
	logger *zap.Logger
}

func (c *connection) reader() {
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var in wsFrame
		if err := json.Unmarshal(message, &in); err != nil {
			c.logger.Debug("ignoring malformed websocket frame", zap.String("origin", c.origin), zap.Error(err))
			continue
		}
		if err := c.hub.PublishTyping(in.Event, c.origin, in.Data); err != nil {
			c.logger.Debug("ignoring websocket event", zap.String("origin", c.origin), zap.String("event", in.Event))
		}
	}
}

func (c *connection) writer(events <-chan bus.Event, done <-chan struct{}) {
	defer func() { _ = c.ws.Close() }()
	for {
		select {
		case <-done:
			return
		case be, open := <-events:
			if !open {
				// Evicted for falling behind; closing makes the client reconnect.
				c.logger.Debug("websocket subscriber evicted", zap.String("origin", c.origin))
				_ = c.ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "falling behind"),
					time.Now().Add(wsWriteWait))
				return
			}
			evt, ok := live.FromBus(be)
			if !ok {
				continue
			}
			payload, err := json.Marshal(evt.Payload())
			if err != nil {
				c.logger.Error("encode live event", zap.String("type", evt.Type), zap.Error(err))
				continue
			}
			out, err := json.Marshal(wsFrame{Event: evt.Type, Data: payload})
			if err != nil {
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		}
	}
}

// serveWS upgrades to a WebSocket push channel. Each connection subscribes
// under its own origin so its typing events are not echoed back.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &connection{ws: ws, origin: uuid.NewString(), hub: s.Hub, logger: s.Logger}

	events, unsub := s.Hub.Subscribe(c.origin, wsSendBuffer)
	metrics.LiveSubscribers.WithLabelValues("ws").Inc()
	s.Logger.Debug("websocket connected", zap.String("origin", c.origin))

	done := make(chan struct{})
	go c.writer(events, done)
	c.reader()

	unsub()
	close(done)
	_ = ws.Close()
	metrics.LiveSubscribers.WithLabelValues("ws").Dec()
	s.Logger.Debug("websocket disconnected", zap.String("origin", c.origin))
}
