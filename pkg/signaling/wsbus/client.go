/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-02
 */

// Package wsbus implements the signaling Channel over a websocket relay.
// The relay is expected to fan frames out to the other participants; frames
// are JSON objects of the form {"event": "...", "data": {...}}.
package wsbus

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maiguangyang/call_core/pkg/signaling"
	"github.com/maiguangyang/call_core/pkg/utils"
)

// Config holds websocket channel configuration
type Config struct {
	// URL of the relay endpoint, e.g. wss://support.example.com/signal
	URL string
	// DialTimeout bounds a single connection attempt
	DialTimeout time.Duration
	// PingInterval between keepalive pings
	PingInterval time.Duration
	// PongTimeout after which a missing pong kills the connection
	PongTimeout time.Duration
	// BackoffInitial is the first reconnect delay
	BackoffInitial time.Duration
	// BackoffMax caps the reconnect delay
	BackoffMax time.Duration
	// WriteTimeout bounds a single outbound frame
	WriteTimeout time.Duration
}

// DefaultConfig returns default websocket channel configuration
func DefaultConfig(rawURL string) *Config {
	return &Config{
		URL:            rawURL,
		DialTimeout:    10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		BackoffInitial: 1 * time.Second,
		BackoffMax:     32 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

// frame is the wire format: one named event per websocket message
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type connCallback struct {
	onConnect    func()
	onDisconnect func()
}

// Client is a reconnecting websocket Channel. Handlers registered with On
// survive reconnects; emits made while the connection is down fail with
// signaling.ErrChannelUnavailable and are not queued.
type Client struct {
	config *Config

	mu        sync.Mutex
	conn      *websocket.Conn
	identity  string
	connected bool
	closed    bool
	backoff   time.Duration
	gen       int // connection generation, guards stale pumps

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	nextID    int
	handlers  map[string]map[int]signaling.Handler
	connCbs   map[int]connCallback
}

// New creates a new websocket channel client
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig("")
	}
	return &Client{
		config:   config,
		backoff:  config.BackoffInitial,
		handlers: make(map[string]map[int]signaling.Handler),
		connCbs:  make(map[int]connCallback),
	}
}

// Connect dials the relay under the given participant identity and starts
// the read pump. Subsequent disconnects trigger automatic reconnection with
// exponential backoff until Disconnect is called.
func (c *Client) Connect(identity string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return signaling.ErrChannelUnavailable
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.identity = identity
	c.mu.Unlock()

	return c.dial()
}

// dial performs one connection attempt and installs the pumps on success
func (c *Client) dial() error {
	c.mu.Lock()
	identity := c.identity
	c.mu.Unlock()

	u, err := url.Parse(c.config.URL)
	if err != nil {
		return fmt.Errorf("wsbus: bad relay url: %w", err)
	}
	q := u.Query()
	q.Set("identity", identity)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: c.config.DialTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("wsbus: dial %s: %w", c.config.URL, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return signaling.ErrChannelUnavailable
	}
	c.conn = conn
	c.connected = true
	c.backoff = c.config.BackoffInitial
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.PingInterval + c.config.PongTimeout))
	})

	go c.readPump(conn, gen)
	go c.pingLoop(conn, gen)

	c.notifyConn(true)
	return nil
}

// Disconnect closes the connection and stops reconnecting
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	wasConnected := c.connected
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if wasConnected {
		c.notifyConn(false)
	}
	return nil
}

// Connected reports whether the channel is currently usable
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Emit sends a named event to the relay
func (c *Client) Emit(event string, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return signaling.ErrChannelUnavailable
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("%w: %v", signaling.ErrChannelUnavailable, err)
	}
	return nil
}

// On registers a handler for a named event
func (c *Client) On(event string, handler signaling.Handler) (cancel func()) {
	c.handlerMu.Lock()
	id := c.nextID
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]signaling.Handler)
	}
	c.handlers[event][id] = handler
	c.handlerMu.Unlock()

	return func() {
		c.handlerMu.Lock()
		delete(c.handlers[event], id)
		c.handlerMu.Unlock()
	}
}

// OnConnectionChange registers connect/disconnect notifications
func (c *Client) OnConnectionChange(onConnect, onDisconnect func()) (cancel func()) {
	c.handlerMu.Lock()
	id := c.nextID
	c.nextID++
	c.connCbs[id] = connCallback{onConnect: onConnect, onDisconnect: onDisconnect}
	c.handlerMu.Unlock()

	return func() {
		c.handlerMu.Lock()
		delete(c.connCbs, id)
		c.handlerMu.Unlock()
	}
}

// readPump reads frames until the connection dies, then hands off to the
// reconnect loop. gen guards against a stale pump racing a newer connection.
func (c *Client) readPump(conn *websocket.Conn, gen int) {
	conn.SetReadDeadline(time.Now().Add(c.config.PingInterval + c.config.PongTimeout))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.onConnLost(conn, gen, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.config.PingInterval + c.config.PongTimeout))

		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			utils.Warn("wsbus: dropping malformed frame: %v", err)
			continue
		}
		c.dispatch(f.Event, f.Data)
	}
}

// pingLoop sends keepalive pings while the connection is up
func (c *Client) pingLoop(conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		stale := c.closed || c.gen != gen || c.conn != conn
		c.mu.Unlock()
		if stale {
			return
		}

		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// onConnLost marks the channel down and starts the reconnect loop
func (c *Client) onConnLost(conn *websocket.Conn, gen int, err error) {
	c.mu.Lock()
	if c.closed || c.gen != gen || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	conn.Close()
	utils.Warn("wsbus: connection lost: %v", err)
	c.notifyConn(false)

	go c.reconnectLoop()
}

// reconnectLoop retries with exponential backoff until it succeeds or the
// client is closed
func (c *Client) reconnectLoop() {
	for {
		c.mu.Lock()
		if c.closed || c.connected {
			c.mu.Unlock()
			return
		}
		wait := c.backoff
		c.backoff *= 2
		if c.backoff > c.config.BackoffMax {
			c.backoff = c.config.BackoffMax
		}
		c.mu.Unlock()

		time.Sleep(wait)

		if err := c.dial(); err == nil {
			return
		}
		utils.Debug("wsbus: reconnect attempt failed, backing off %s", wait)
	}
}

func (c *Client) dispatch(event string, data json.RawMessage) {
	c.handlerMu.RLock()
	handlers := make([]signaling.Handler, 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		handlers = append(handlers, h)
	}
	c.handlerMu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
}

func (c *Client) notifyConn(up bool) {
	c.handlerMu.RLock()
	cbs := make([]connCallback, 0, len(c.connCbs))
	for _, cb := range c.connCbs {
		cbs = append(cbs, cb)
	}
	c.handlerMu.RUnlock()

	for _, cb := range cbs {
		if up && cb.onConnect != nil {
			cb.onConnect()
		}
		if !up && cb.onDisconnect != nil {
			cb.onDisconnect()
		}
	}
}
