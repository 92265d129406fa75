/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-03
 */
package rtc

import (
	"sync"

	"github.com/maiguangyang/call_core/pkg/utils"
)

// DeviceInventory tracks the available camera/microphone hardware.
// Device listing is advisory: enumeration failures degrade to an empty
// snapshot instead of erroring, since a call can proceed on defaults.
// The platform change subscription is scoped to the inventory instance
// and released by Close.
type DeviceInventory struct {
	source CaptureSource

	mu        sync.RWMutex
	listeners map[int]func([]Device)
	nextID    int
	cancelSrc func()
	closed    bool
}

// NewDeviceInventory creates an inventory over the given capture source and
// subscribes to platform device-change notifications.
func NewDeviceInventory(source CaptureSource) *DeviceInventory {
	inv := &DeviceInventory{
		source:    source,
		listeners: make(map[int]func([]Device)),
	}
	inv.cancelSrc = source.OnDeviceChange(func() {
		inv.Enumerate()
	})
	return inv
}

// Enumerate returns a fresh snapshot of video-input, audio-input and
// audio-output devices and notifies every change listener with it.
func (inv *DeviceInventory) Enumerate() []Device {
	inv.mu.RLock()
	closed := inv.closed
	inv.mu.RUnlock()
	if closed {
		return nil
	}

	all, err := inv.source.Devices()
	if err != nil {
		utils.Warn("device enumeration failed: %v", err)
		all = nil
	}

	devices := make([]Device, 0, len(all))
	for _, d := range all {
		switch d.Kind {
		case DeviceVideoInput, DeviceAudioInput, DeviceAudioOutput:
			devices = append(devices, d)
		}
	}

	inv.mu.RLock()
	listeners := make([]func([]Device), 0, len(inv.listeners))
	for _, fn := range inv.listeners {
		listeners = append(listeners, fn)
	}
	inv.mu.RUnlock()

	for _, fn := range listeners {
		fn(devices)
	}
	return devices
}

// OnChange registers a listener invoked with each fresh device snapshot.
// Listeners are independent; cancelling one leaves the others registered.
func (inv *DeviceInventory) OnChange(fn func([]Device)) (cancel func()) {
	inv.mu.Lock()
	id := inv.nextID
	inv.nextID++
	inv.listeners[id] = fn
	inv.mu.Unlock()

	return func() {
		inv.mu.Lock()
		delete(inv.listeners, id)
		inv.mu.Unlock()
	}
}

// Close releases the platform change subscription. Idempotent.
func (inv *DeviceInventory) Close() {
	inv.mu.Lock()
	if inv.closed {
		inv.mu.Unlock()
		return
	}
	inv.closed = true
	cancel := inv.cancelSrc
	inv.cancelSrc = nil
	inv.listeners = make(map[int]func([]Device))
	inv.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
