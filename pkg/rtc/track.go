/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-03
 */
package rtc

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// DeviceKind classifies a capture device
type DeviceKind string

const (
	// DeviceVideoInput is a camera
	DeviceVideoInput DeviceKind = "videoinput"
	// DeviceAudioInput is a microphone
	DeviceAudioInput DeviceKind = "audioinput"
	// DeviceAudioOutput is a speaker/headset
	DeviceAudioOutput DeviceKind = "audiooutput"
)

// Device describes one capture device as reported by the platform
type Device struct {
	ID    string     `json:"deviceId"`
	Label string     `json:"label"`
	Kind  DeviceKind `json:"kind"`
}

// Track is a single live audio or video source. Implementations own the
// underlying hardware; once stopped a track never restarts — going live
// again requires re-acquisition through the capture source.
type Track interface {
	// ID returns the track id
	ID() string
	// Kind returns audio or video
	Kind() webrtc.RTPCodecType
	// DeviceID returns the id of the device feeding this track
	DeviceID() string
	// Enabled reports whether the track is producing media
	Enabled() bool
	// SetEnabled pauses or resumes the track without releasing hardware
	SetEnabled(enabled bool)
	// Stop releases the underlying hardware. Idempotent.
	Stop()
	// Stopped reports whether the track has been stopped
	Stopped() bool
	// Local returns the pion track to attach to peer connections
	Local() webrtc.TrackLocal
}

// CaptureSource is the platform backend that opens hardware. The production
// implementation sits behind build tags (pion/mediadevices on Linux); tests
// inject fakes. Passing an empty deviceID selects the platform default.
type CaptureSource interface {
	// Devices returns a snapshot of the available capture devices
	Devices() ([]Device, error)
	// OnDeviceChange registers a hardware change notification
	OnDeviceChange(fn func()) (cancel func())
	// OpenCamera acquires a video track from the given camera
	OpenCamera(deviceID string) (Track, error)
	// OpenMicrophone acquires an audio track from the given microphone
	OpenMicrophone(deviceID string) (Track, error)
	// OpenScreen acquires a display-capture track. Returns
	// ErrCaptureCancelled when the user dismisses the prompt.
	OpenScreen() (Track, error)
}

// Stream is an ownership-bearing bundle of tracks: zero or more audio tracks
// and at most one video track, mirroring what the manager hands to peers.
type Stream struct {
	id string

	mu     sync.RWMutex
	tracks []Track
}

// NewStream creates a stream owning the given tracks
func NewStream(tracks ...Track) *Stream {
	return &Stream{
		id:     uuid.NewString(),
		tracks: tracks,
	}
}

// ID returns the stream id
func (s *Stream) ID() string {
	return s.id
}

// Tracks returns a snapshot of the stream's tracks
func (s *Stream) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// VideoTrack returns the stream's video track, or nil
func (s *Stream) VideoTrack() Track {
	return s.trackOfKind(webrtc.RTPCodecTypeVideo)
}

// AudioTrack returns the stream's first audio track, or nil
func (s *Stream) AudioTrack() Track {
	return s.trackOfKind(webrtc.RTPCodecTypeAudio)
}

func (s *Stream) trackOfKind(kind webrtc.RTPCodecType) Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

// addTrack appends a track to the stream
func (s *Stream) addTrack(t Track) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

// swapTrack replaces the stream's track of t's kind and returns the old
// track, or appends when no track of that kind exists (old is nil then).
// Tracks of other kinds are untouched.
func (s *Stream) swapTrack(t Track) (old Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.tracks {
		if cur.Kind() == t.Kind() {
			old = cur
			s.tracks[i] = t
			return old
		}
	}
	s.tracks = append(s.tracks, t)
	return nil
}

// Stop stops every track in the stream. Idempotent.
func (s *Stream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// Live reports whether any track is still running
func (s *Stream) Live() bool {
	for _, t := range s.Tracks() {
		if !t.Stopped() {
			return true
		}
	}
	return false
}

// StaticTrack is a sample-based Track over webrtc.TrackLocalStaticSample.
// It produces no media on its own; the example program and tests use it
// where real capture hardware is unavailable.
type StaticTrack struct {
	id       string
	kind     webrtc.RTPCodecType
	deviceID string
	local    *webrtc.TrackLocalStaticSample

	mu      sync.RWMutex
	enabled bool
	stopped bool
}

// NewStaticVideoTrack creates a VP8 static video track bound to deviceID
func NewStaticVideoTrack(deviceID string) (*StaticTrack, error) {
	return newStaticTrack(webrtc.RTPCodecTypeVideo, webrtc.MimeTypeVP8, deviceID)
}

// NewStaticAudioTrack creates an Opus static audio track bound to deviceID
func NewStaticAudioTrack(deviceID string) (*StaticTrack, error) {
	return newStaticTrack(webrtc.RTPCodecTypeAudio, webrtc.MimeTypeOpus, deviceID)
}

func newStaticTrack(kind webrtc.RTPCodecType, mimeType, deviceID string) (*StaticTrack, error) {
	id := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		id,
		"call-"+deviceID,
	)
	if err != nil {
		return nil, err
	}
	return &StaticTrack{
		id:       id,
		kind:     kind,
		deviceID: deviceID,
		local:    local,
		enabled:  true,
	}, nil
}

// ID returns the track id
func (t *StaticTrack) ID() string { return t.id }

// Kind returns audio or video
func (t *StaticTrack) Kind() webrtc.RTPCodecType { return t.kind }

// DeviceID returns the device the track is bound to
func (t *StaticTrack) DeviceID() string { return t.deviceID }

// Enabled reports whether the track is producing media
func (t *StaticTrack) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetEnabled pauses or resumes the track
func (t *StaticTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// Stop marks the track stopped. Idempotent.
func (t *StaticTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.enabled = false
	t.mu.Unlock()
}

// Stopped reports whether the track has been stopped
func (t *StaticTrack) Stopped() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stopped
}

// Local returns the pion track for peer connection attachment
func (t *StaticTrack) Local() webrtc.TrackLocal { return t.local }

// WriteSample pushes one media sample into the track. Samples written while
// the track is disabled are swallowed, mirroring a paused capture device.
func (t *StaticTrack) WriteSample(sample media.Sample) error {
	t.mu.RLock()
	stopped, enabled := t.stopped, t.enabled
	t.mu.RUnlock()

	if stopped {
		return ErrDeviceUnavailable
	}
	if !enabled {
		return nil
	}
	return t.local.WriteSample(sample)
}
