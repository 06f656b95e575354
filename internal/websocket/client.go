package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10 // clients only send small control requests

	defaultSendBuffer = 256

	// control frame payloads are capped at 125 bytes, two go to the code
	maxCloseReason = 123
)

// Conn is the subset of *websocket.Conn the pumps use.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Principal is the verified identity behind a connection.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

type Client struct {
	ID          string
	UserID      string
	Email       string
	Role        string
	Conn        Conn
	ConnectedAt time.Time

	send chan []byte
	// guarded by Hub.mu
	rooms map[string]struct{}

	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once
	closeReason atomic.Value
	sendMu      sync.Mutex
	lastSeen    atomic.Int64
	dropped     atomic.Int64
}

func NewClient(id string, conn Conn, p Principal, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	c := &Client{
		ID:          id,
		UserID:      p.UserID,
		Email:       p.Email,
		Role:        p.Role,
		Conn:        conn,
		ConnectedAt: now,
		send:        make(chan []byte, sendBuffer),
		rooms:       make(map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	c.lastSeen.Store(now.UnixNano())

	return c
}

// Start launches the read and write pumps. The read pump unregisters the
// client from h when the transport goes away.
func (c *Client) Start(h *Hub) {
	go c.writePump()
	go c.readPump(h)
}

func (c *Client) Done() <-chan struct{} { return c.ctx.Done() }

func (c *Client) IsClientActive() bool { return c.ctx.Err() == nil }

func (c *Client) GetLastSeen() time.Time { return time.Unix(0, c.lastSeen.Load()) }

func (c *Client) Dropped() int64 { return c.dropped.Load() }

func (c *Client) touch() { c.lastSeen.Store(time.Now().UnixNano()) }

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
	})
}

// CloseGracefully stops accepting new messages and lets the write pump
// flush what is already queued, then send a close frame carrying reason.
// The transport is closed after writeWait if no pump is running.
func (c *Client) CloseGracefully(reason string) {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	c.closeReason.Store(reason)
	c.cancel()

	if c.Conn == nil {
		c.Close()
		return
	}
	time.AfterFunc(writeWait, c.Close)
}

// SendMessage marshals and enqueues a single message for this client.
func (c *Client) SendMessage(msg OutgoingMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("clientID", c.ID).Msg("ws: failed to marshal client message")
		return false
	}
	ok, _ := c.enqueue(data)
	return ok
}

// enqueue never blocks. When the buffer is full the oldest queued message is
// discarded to make room; the second return value counts those drops.
func (c *Client) enqueue(data []byte) (bool, int) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	dropped := 0
	for {
		if !c.IsClientActive() {
			return false, dropped
		}

		select {
		case c.send <- data:
			return true, dropped
		default:
		}

		select {
		case <-c.send:
			dropped++
			c.dropped.Add(1)
		default:
		}
	}
}

// writePump: take data from c.send and write to socket + ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.flush()
			return

		case msg := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Str("clientID", c.ID).Msg("ws: write failed")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is still queued and then the close frame. After
// cancel no enqueue can add to send, so the drain terminates.
func (c *Client) flush() {
	// wait out an enqueue that saw the client active just before cancel
	c.sendMu.Lock()
	c.sendMu.Unlock()

	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	for {
		select {
		case msg := <-c.send:
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			reason, _ := c.closeReason.Load().(string)
			_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
			return
		}
	}
}

// readPump: read join/leave requests from the client + handle pong for keep-alive
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.Unregister(c)
		c.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("clientID", c.ID).Msg("ws: unexpected close")
			}
			return
		}
		c.touch()

		var msg IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.SendMessage(newErrorMessage("", "malformed message"))
			continue
		}

		h.handleIncoming(c, msg)
	}
}
