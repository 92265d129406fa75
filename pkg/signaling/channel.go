/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-02
 */
package signaling

import (
	"encoding/json"
	"errors"
)

// ErrChannelUnavailable indicates the channel is currently disconnected.
// Outbound emits made while disconnected fail with this error instead of
// silently succeeding; the channel keeps reconnecting on its own.
var ErrChannelUnavailable = errors.New("signaling channel unavailable")

// Handler receives the raw JSON payload of a named event
type Handler func(data json.RawMessage)

// Channel is the bidirectional message bus the call core signals over.
// Implementations own their transport and reconnection policy; delivery is
// at-most-once per attempt and unordered across distinct event names.
type Channel interface {
	// Connect joins the bus under the given participant identity
	Connect(identity string) error

	// Disconnect leaves the bus and stops any reconnection attempts
	Disconnect() error

	// Connected reports whether the channel is currently usable
	Connected() bool

	// Emit sends a named event. Returns ErrChannelUnavailable while the
	// channel is down.
	Emit(event string, payload interface{}) error

	// On registers a handler for a named event. The returned cancel
	// removes only this handler; other handlers are unaffected.
	On(event string, handler Handler) (cancel func())

	// OnConnectionChange registers connect/disconnect notifications.
	// Either callback may be nil.
	OnConnectionChange(onConnect, onDisconnect func()) (cancel func())
}
