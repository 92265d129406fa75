/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-04
 */
package rtc

import (
	"errors"
	"io"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/maiguangyang/call_core/pkg/utils"
)

// RecorderSink receives depacketized RTP from every recorded remote track.
// Container muxing and storage are the sink's concern, not the core's.
// The packet payload references a reusable buffer that is reclaimed after
// WriteRTP returns; sinks that retain data must copy it.
type RecorderSink interface {
	WriteRTP(peerID string, kind webrtc.RTPCodecType, packet *rtp.Packet) error
	Close() error
}

// Recorder pulls RTP from remote tracks while active and feeds the sink.
// One read loop per track; loops exit when recording stops or the track
// ends with the call.
type Recorder struct {
	mu     sync.Mutex
	sink   RecorderSink
	stats  *CallStats
	active bool
	gen    int // bumped on Stop so stale loops drain out
}

func newRecorder(stats *CallStats) *Recorder {
	return &Recorder{stats: stats}
}

// SetSink installs the recording sink. Must be set before recording starts.
func (rec *Recorder) SetSink(sink RecorderSink) {
	rec.mu.Lock()
	rec.sink = sink
	rec.mu.Unlock()
}

// Active reports whether recording is running
func (rec *Recorder) Active() bool {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.active
}

// Start begins recording. Tracks are added via Capture; tracks of peers
// that join later are captured as they arrive.
func (rec *Recorder) Start() error {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.sink == nil {
		return ErrNoRecordingSink
	}
	rec.active = true
	return nil
}

// Stop ends recording and closes the sink. Idempotent.
func (rec *Recorder) Stop() {
	rec.mu.Lock()
	if !rec.active {
		rec.mu.Unlock()
		return
	}
	rec.active = false
	rec.gen++
	sink := rec.sink
	rec.mu.Unlock()

	if sink != nil {
		if err := sink.Close(); err != nil {
			utils.Warn("recording sink close failed: %v", err)
		}
	}
}

// Capture starts a read loop over one remote track. No-op while recording
// is inactive.
func (rec *Recorder) Capture(peerID string, track *webrtc.TrackRemote) {
	rec.mu.Lock()
	if !rec.active || rec.sink == nil {
		rec.mu.Unlock()
		return
	}
	sink := rec.sink
	gen := rec.gen
	rec.mu.Unlock()

	go rec.readLoop(peerID, track, sink, gen)
}

func (rec *Recorder) readLoop(peerID string, track *webrtc.TrackRemote, sink RecorderSink, gen int) {
	kind := track.Kind()
	for {
		buf := utils.GetBuffer(1500)
		n, _, err := track.Read(buf)
		if err != nil {
			utils.PutBuffer(buf)
			if !errors.Is(err, io.EOF) {
				utils.Debug("recorder: track %s read ended: %v", track.ID(), err)
			}
			return
		}

		rec.mu.Lock()
		stale := !rec.active || rec.gen != gen
		rec.mu.Unlock()
		if stale {
			utils.PutBuffer(buf)
			return
		}

		packet := &rtp.Packet{}
		if err := packet.Unmarshal(buf[:n]); err != nil {
			utils.PutBuffer(buf)
			utils.Warn("recorder: dropping malformed RTP from %s: %v", peerID, err)
			continue
		}

		if err := sink.WriteRTP(peerID, kind, packet); err != nil {
			utils.PutBuffer(buf)
			utils.Warn("recorder: sink write failed, stopping capture of %s: %v", track.ID(), err)
			return
		}
		if rec.stats != nil {
			rec.stats.AddRecordedPacket(n)
		}
		utils.PutBuffer(buf)
	}
}
