package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/anchorpad/internal/logging"
	"github.com/caffeineduck/anchorpad/playground"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 54 * time.Second

	// Largest editor text accepted from the peer.
	maxMessageSize = 512 * 1024

	sendBuffer = 64
)

// Client message types.
const (
	msgLoad     = "load"
	msgEdit     = "edit"
	msgGenerate = "generate"
)

// Server message types.
const (
	msgStatus  = "status"
	msgOutcome = "outcome"
)

type inboundMessage struct {
	Type string `json:"type"`
	Code string `json:"code,omitempty"`
}

type statusMessage struct {
	Type   string            `json:"type"`
	Status playground.Status `json:"status"`
	Error  *string           `json:"error"`
}

type outcomeMessage struct {
	Type    string             `json:"type"`
	Outcome playground.Outcome `json:"outcome"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// checkOrigin accepts same-host pages and clients that send no Origin.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, scheme := range []string{"http://", "https://"} {
		if strings.TrimPrefix(origin, scheme) == r.Host {
			return true
		}
	}
	return strings.HasPrefix(origin, "http://localhost") ||
		strings.HasPrefix(origin, "http://127.0.0.1")
}

// Client is one WebSocket connection with its own playground.
type Client struct {
	server *Server
	conn   *websocket.Conn
	id     string
	pg     *playground.Playground

	send      chan any
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed",
			logging.FieldError, err.Error(),
			logging.FieldRemote, r.RemoteAddr)
		return
	}

	c := &Client{
		server: s,
		conn:   conn,
		id:     uuid.NewString(),
		send:   make(chan any, sendBuffer),
		done:   make(chan struct{}),
	}
	c.pg = playground.New(s.shared, s.playgroundOptions(
		playground.OnStatus(c.pushStatus),
		playground.OnOutcome(c.pushOutcome),
		playground.WithLogger(s.log.With(logging.FieldClientID, c.id)),
	)...)

	if !s.register(c) {
		c.pg.Close()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	s.log.Debugw("client connected",
		logging.FieldClientID, c.id,
		logging.FieldRemote, r.RemoteAddr)

	c.pushStatus(c.pg.Status())
	go c.writePump()
	go c.readPump()
}

// readPump reads client messages until the connection fails.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.server.log.Warnw("websocket read error",
					logging.FieldClientID, c.id,
					logging.FieldError, err.Error())
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.server.log.Debugw("bad client message",
				logging.FieldClientID, c.id,
				logging.FieldError, err.Error())
			continue
		}
		c.route(msg)
	}
}

func (c *Client) route(msg inboundMessage) {
	switch msg.Type {
	case msgLoad:
		if err := c.pg.Initiate(); err != nil && !errors.Is(err, playground.ErrInvalidTransition) {
			c.server.log.Debugw("initiate rejected",
				logging.FieldClientID, c.id,
				logging.FieldError, err.Error())
		}
		// Repeat the status so a client that asked twice still hears back.
		if c.pg.Status() == playground.StatusSuccess {
			c.pushStatus(playground.StatusSuccess)
		}
	case msgEdit:
		c.pg.DebouncedEvaluate(msg.Code)
	case msgGenerate:
		c.pg.CancelDebounced()
		go c.generate(msg.Code)
	default:
		c.server.log.Debugw("unknown message type",
			logging.FieldClientID, c.id,
			"type", msg.Type)
	}
}

func (c *Client) generate(code string) {
	outcome, err := c.pg.Evaluate(c.server.ctx, code)
	if errors.Is(err, playground.ErrClosed) {
		return
	}
	c.pushOutcome(outcome)
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.log.Debugw("websocket write error",
					logging.FieldClientID, c.id,
					logging.FieldError, err.Error())
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) pushStatus(status playground.Status) {
	msg := statusMessage{Type: msgStatus, Status: status}
	if status == playground.StatusError {
		if err := c.pg.LoadErr(); err != nil {
			text := err.Error()
			msg.Error = &text
		}
	}
	c.push(msg)
}

func (c *Client) pushOutcome(o playground.Outcome) {
	c.push(outcomeMessage{Type: msgOutcome, Outcome: o})
}

// push queues msg for the writer. A full queue drops the message rather
// than stall the playground.
func (c *Client) push(msg any) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.server.log.Warnw("client send queue full, dropping message", logging.FieldClientID, c.id)
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.server.unregister(c)
		c.pg.Close()
		c.conn.Close()
		c.server.log.Debugw("client disconnected", logging.FieldClientID, c.id)
	})
}
