/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-03
 */
package rtc

import (
	"sync"

	"github.com/maiguangyang/call_core/pkg/signaling"
)

// signalBuffer holds inbound signals that cannot be applied yet: an offer
// arriving before local media is ready, or a candidate racing ahead of its
// remote description. Queues are per remote participant and preserve strict
// arrival order; a signal is either applied or held for exactly one later
// flush, never silently dropped.
type signalBuffer struct {
	mu     sync.Mutex
	queues map[string][]signaling.Signal
}

func newSignalBuffer() *signalBuffer {
	return &signalBuffer{
		queues: make(map[string][]signaling.Signal),
	}
}

// Push appends a signal to the participant's queue
func (b *signalBuffer) Push(remoteID string, sig signaling.Signal) {
	b.mu.Lock()
	b.queues[remoteID] = append(b.queues[remoteID], sig)
	b.mu.Unlock()
}

// Drain removes and returns the participant's queue in arrival order.
// The caller replays the signals; any that are still blocked get pushed
// back, so one Drain/replay pass never loops.
func (b *signalBuffer) Drain(remoteID string) []signaling.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := b.queues[remoteID]
	delete(b.queues, remoteID)
	return pending
}

// Drop discards the participant's queue without replaying it
func (b *signalBuffer) Drop(remoteID string) {
	b.mu.Lock()
	delete(b.queues, remoteID)
	b.mu.Unlock()
}

// Len returns the number of buffered signals for the participant
func (b *signalBuffer) Len(remoteID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[remoteID])
}

// Clear discards every queue
func (b *signalBuffer) Clear() {
	b.mu.Lock()
	b.queues = make(map[string][]signaling.Signal)
	b.mu.Unlock()
}
