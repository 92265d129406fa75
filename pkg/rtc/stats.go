/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-04
 */
package rtc

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// CallStats counts signaling traffic and recorded media for one controller.
// Counters are cumulative over the controller's lifetime.
type CallStats struct {
	mu sync.RWMutex

	signalsIn       uint64
	signalsOut      uint64
	recordedPackets uint64
	recordedBytes   uint64

	// Recording bitrate, recomputed on demand
	lastCalcTime      time.Time
	lastRecordedBytes uint64
	recordingBitrate  float64
}

// NewCallStats creates a stats collector
func NewCallStats() *CallStats {
	return &CallStats{
		lastCalcTime: time.Now(),
	}
}

// AddSignalIn counts one inbound signaling message
func (s *CallStats) AddSignalIn() {
	atomic.AddUint64(&s.signalsIn, 1)
}

// AddSignalOut counts one outbound signaling message
func (s *CallStats) AddSignalOut() {
	atomic.AddUint64(&s.signalsOut, 1)
}

// AddRecordedPacket counts one RTP packet handed to the recording sink
func (s *CallStats) AddRecordedPacket(bytes int) {
	atomic.AddUint64(&s.recordedPackets, 1)
	atomic.AddUint64(&s.recordedBytes, uint64(bytes))
}

// CalculateBitrate updates the recording bitrate. Call roughly once per
// second; closer calls are ignored.
func (s *CallStats) CalculateBitrate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(s.lastCalcTime).Seconds()
	if elapsed < 0.1 {
		return
	}

	current := atomic.LoadUint64(&s.recordedBytes)
	s.recordingBitrate = float64(current-s.lastRecordedBytes) * 8 / elapsed
	s.lastRecordedBytes = current
	s.lastCalcTime = now
}

// Snapshot is a point-in-time view of the counters
type Snapshot struct {
	SignalsIn        uint64  `json:"signals_in"`
	SignalsOut       uint64  `json:"signals_out"`
	RecordedPackets  uint64  `json:"recorded_packets"`
	RecordedBytes    uint64  `json:"recorded_bytes"`
	RecordingBitrate float64 `json:"recording_bitrate_bps"`
}

// Snapshot returns a point-in-time view of the counters
func (s *CallStats) Snapshot() Snapshot {
	s.mu.RLock()
	bitrate := s.recordingBitrate
	s.mu.RUnlock()

	return Snapshot{
		SignalsIn:        atomic.LoadUint64(&s.signalsIn),
		SignalsOut:       atomic.LoadUint64(&s.signalsOut),
		RecordedPackets:  atomic.LoadUint64(&s.recordedPackets),
		RecordedBytes:    atomic.LoadUint64(&s.recordedBytes),
		RecordingBitrate: bitrate,
	}
}

// ToJSON serializes the current snapshot
func (s *CallStats) ToJSON() (string, error) {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return "", err
	}
	return string(data), nil
}
