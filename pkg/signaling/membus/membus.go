/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-02
 */

// Package membus is an in-process signaling bus. Every connected channel
// sees every event emitted by the others; routing by participant id is the
// receiver's job, exactly as with a real relay. Used by the example program
// and by loopback tests.
package membus

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/maiguangyang/call_core/pkg/signaling"
)

// Bus fans events out between in-process channels
type Bus struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// New creates an empty bus
func New() *Bus {
	return &Bus{
		channels: make(map[string]*Channel),
	}
}

// Channel returns the channel bound to the given identity, creating it on
// first use. The channel is not connected until Connect is called.
func (b *Bus) Channel(identity string) *Channel {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.channels[identity]; ok {
		return ch
	}
	ch := &Channel{
		bus:      b,
		identity: identity,
		handlers: make(map[string]map[int]signaling.Handler),
	}
	b.channels[identity] = ch
	return ch
}

// broadcast delivers an event to every connected channel except the sender.
// Delivery is synchronous; the bus gives no ordering guarantee across
// distinct event names, matching the external channel contract.
func (b *Bus) broadcast(from *Channel, event string, data json.RawMessage) {
	b.mu.RLock()
	targets := make([]*Channel, 0, len(b.channels))
	for _, ch := range b.channels {
		if ch != from && ch.Connected() {
			targets = append(targets, ch)
		}
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		ch.dispatch(event, data)
	}
}

// Channel is one participant's endpoint on the bus
type Channel struct {
	bus      *Bus
	identity string

	mu        sync.RWMutex
	connected bool
	nextID    int
	handlers  map[string]map[int]signaling.Handler
	connCbs   map[int]connCallback
}

type connCallback struct {
	onConnect    func()
	onDisconnect func()
}

// Connect marks the channel as joined. The identity must match the one the
// channel was created under.
func (c *Channel) Connect(identity string) error {
	c.mu.Lock()
	if identity != c.identity {
		c.mu.Unlock()
		return fmt.Errorf("channel is bound to %q, got %q", c.identity, identity)
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = true
	cbs := c.copyConnCbs()
	c.mu.Unlock()

	for _, cb := range cbs {
		if cb.onConnect != nil {
			cb.onConnect()
		}
	}
	return nil
}

// Disconnect marks the channel as left
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	cbs := c.copyConnCbs()
	c.mu.Unlock()

	for _, cb := range cbs {
		if cb.onDisconnect != nil {
			cb.onDisconnect()
		}
	}
	return nil
}

// Connected reports whether the channel is joined
func (c *Channel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Emit broadcasts a named event to every other connected channel
func (c *Channel) Emit(event string, payload interface{}) error {
	if !c.Connected() {
		return signaling.ErrChannelUnavailable
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.bus.broadcast(c, event, data)
	return nil
}

// On registers a handler for a named event
func (c *Channel) On(event string, handler signaling.Handler) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]signaling.Handler)
	}
	c.handlers[event][id] = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers[event], id)
		c.mu.Unlock()
	}
}

// OnConnectionChange registers connect/disconnect notifications
func (c *Channel) OnConnectionChange(onConnect, onDisconnect func()) (cancel func()) {
	c.mu.Lock()
	if c.connCbs == nil {
		c.connCbs = make(map[int]connCallback)
	}
	id := c.nextID
	c.nextID++
	c.connCbs[id] = connCallback{onConnect: onConnect, onDisconnect: onDisconnect}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.connCbs, id)
		c.mu.Unlock()
	}
}

func (c *Channel) dispatch(event string, data json.RawMessage) {
	c.mu.RLock()
	handlers := make([]signaling.Handler, 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		handlers = append(handlers, h)
	}
	c.mu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
}

// copyConnCbs must be called with c.mu held
func (c *Channel) copyConnCbs() []connCallback {
	cbs := make([]connCallback, 0, len(c.connCbs))
	for _, cb := range c.connCbs {
		cbs = append(cbs, cb)
	}
	return cbs
}
