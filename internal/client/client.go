// Package client is the in-repo counterpart of the signaling protocol:
// it correlates requests with responses by id and surfaces server
// pushes, so callers drive negotiation without touching the wire format.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// DefaultRequestTimeout bounds every request awaiting its reply;
	// on expiry the pending entry is dropped and the caller errors out.
	DefaultRequestTimeout = 10 * time.Second
)

var (
	ErrRequestTimeout = errors.New("request timed out")
	ErrClosed         = errors.New("client closed")
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	ID   string          `json:"id,omitempty"`
}

// Notification is a server push (no id, no reply expected).
type Notification struct {
	Type string
	Data json.RawMessage
}

type result struct {
	data json.RawMessage
	err  error
}

type Client struct {
	conn    *websocket.Conn
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan result

	notifications chan Notification
	done          chan struct{}
	closeOnce     sync.Once
}

// Dial connects to a signaling endpoint (token already in the URL).
func Dial(rawURL string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:          conn,
		timeout:       DefaultRequestTimeout,
		pending:       make(map[string]chan result),
		notifications: make(chan Notification, 32),
		done:          make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))

	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// SetTimeout overrides the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// Notifications streams server pushes. Slow consumers lose pushes
// rather than stalling the read loop.
func (c *Client) Notifications() <-chan Notification { return c.notifications }

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		c.failPending(ErrClosed)
	})
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		if env.ID != "" {
			c.resolve(env)
			continue
		}
		select {
		case c.notifications <- Notification{Type: env.Type, Data: env.Data}:
		default:
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) resolve(env envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.mu.Unlock()
	if !ok {
		// Reply raced a timeout that already dropped the entry.
		return
	}
	if env.Type == "error" {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(env.Data, &e)
		ch <- result{err: errors.New(e.Message)}
		return
	}
	ch <- result{data: env.Data}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan result)
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- result{err: err}
	}
}

// request sends one envelope and waits for the correlated reply.
func (c *Client) request(typ string, data any) (json.RawMessage, error) {
	env := envelope{Type: typ, ID: uuid.NewString()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}

	ch := make(chan result, 1)
	c.mu.Lock()
	c.pending[env.ID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(env)
	c.writeMu.Unlock()
	if err != nil {
		c.drop(env.ID)
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.data, r.err
	case <-timer.C:
		c.drop(env.ID)
		return nil, ErrRequestTimeout
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *Client) drop(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
