package huntserver

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// conn is one participant page subscribed to a puzzle.
type conn struct {
	id       string
	puzzleID string
	user     string
	server   *Server
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
}

func newConn(s *Server, ws *websocket.Conn, puzzleID, user string) *conn {
	return &conn{
		id:       uuid.NewString(),
		puzzleID: puzzleID,
		user:     user,
		server:   s,
		ws:       ws,
		send:     make(chan []byte, s.cfg.SendBuffer),
		done:     make(chan struct{}),
	}
}

// enqueue pushes a live frame. A client too slow to keep up is disconnected
// rather than silently skipped, so it goes stale and resyncs from its marker.
func (c *conn) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		log.Warn().Str("connection_id", c.id).Str("puzzle_id", c.puzzleID).Msg("send buffer full, closing slow connection")
		_ = c.ws.Close()
	}
}

// sendEvent queues a reply to a client request, waiting for buffer space until
// the writer goes away. Only the read pump calls it, so send is still open.
func (c *conn) sendEvent(ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("type", ev.Type).Msg("failed to marshal event")
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	}
}

// readPump owns the read side and unregisters the connection when it ends.
func (c *conn) readPump() {
	defer func() {
		c.server.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req request
		if err := c.ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.id).Msg("unexpected close")
			}
			return
		}
		c.server.handleRequest(c, req)
	}
}

// writePump is the only writer on the socket.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
