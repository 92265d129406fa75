/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-03
 */
package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/maiguangyang/call_core/pkg/utils"
)

// trackReplacer swaps outgoing tracks across every live peer connection.
// Implemented by the PeerRegistry.
type trackReplacer interface {
	ReplaceVideoTrack(Track) error
	ReplaceAudioTrack(Track) error
}

// MediaManager owns every local capture handle: the primary camera+mic
// stream, the screen-share stream and the additional-camera set. The UI
// only ever receives references for rendering; all track mutation goes
// through the manager.
type MediaManager struct {
	source   CaptureSource
	replacer trackReplacer

	// mu is never held across replacer calls: the replacer walks the peer
	// registry, and the registry reads local media state on its own paths
	mu         sync.RWMutex
	primary    *Stream
	screen     *Stream
	savedVideo Track // camera track to restore when screen share stops
	cameras    map[string]*Stream
	maxCameras int

	videoDeviceID string
	audioDeviceID string
}

// newMediaManager creates a manager over the given capture source.
// replacer may be nil when no peers exist yet (standalone use).
func newMediaManager(source CaptureSource, replacer trackReplacer, maxCameras int) *MediaManager {
	if maxCameras <= 0 {
		maxCameras = DefaultConfig().MaxCameras
	}
	return &MediaManager{
		source:     source,
		replacer:   replacer,
		cameras:    make(map[string]*Stream),
		maxCameras: maxCameras,
	}
}

// Acquire requests camera and/or microphone access and replaces the primary
// stream on success. On failure the existing primary handle is untouched.
// Empty device ids select the platform defaults.
func (m *MediaManager) Acquire(video, audio bool, videoDeviceID, audioDeviceID string) (*Stream, error) {
	var tracks []Track

	if video {
		t, err := m.source.OpenCamera(videoDeviceID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if audio {
		t, err := m.source.OpenMicrophone(audioDeviceID)
		if err != nil {
			// No partial acquisition: release what was opened above
			for _, opened := range tracks {
				opened.Stop()
			}
			return nil, err
		}
		tracks = append(tracks, t)
	}

	stream := NewStream(tracks...)

	m.mu.Lock()
	old := m.primary
	m.primary = stream
	if video {
		m.videoDeviceID = videoDeviceID
	}
	if audio {
		m.audioDeviceID = audioDeviceID
	}
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return stream, nil
}

// SwitchVideoDevice moves the outgoing video to another camera: the new
// track replaces the old one in every peer connection and in the primary
// stream, then the old track stops. Audio is untouched. On failure the
// previous track stays live — there is never a partial swap.
func (m *MediaManager) SwitchVideoDevice(deviceID string) error {
	if m.Primary() == nil {
		return fmt.Errorf("%w: no active stream", ErrDeviceUnavailable)
	}

	t, err := m.source.OpenCamera(deviceID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	// Peers swap first, then the local stream; the old track stops last
	if m.replacer != nil {
		if err := m.replacer.ReplaceVideoTrack(t); err != nil {
			t.Stop()
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}

	m.mu.Lock()
	if m.primary == nil {
		m.mu.Unlock()
		t.Stop()
		return fmt.Errorf("%w: stream released mid-switch", ErrDeviceUnavailable)
	}
	old := m.primary.swapTrack(t)
	m.videoDeviceID = deviceID
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return nil
}

// SwitchAudioDevice moves the outgoing audio to another microphone.
// Symmetric to SwitchVideoDevice; video is untouched.
func (m *MediaManager) SwitchAudioDevice(deviceID string) error {
	if m.Primary() == nil {
		return fmt.Errorf("%w: no active stream", ErrDeviceUnavailable)
	}

	t, err := m.source.OpenMicrophone(deviceID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	if m.replacer != nil {
		if err := m.replacer.ReplaceAudioTrack(t); err != nil {
			t.Stop()
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}

	m.mu.Lock()
	if m.primary == nil {
		m.mu.Unlock()
		t.Stop()
		return fmt.Errorf("%w: stream released mid-switch", ErrDeviceUnavailable)
	}
	old := m.primary.swapTrack(t)
	m.audioDeviceID = deviceID
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return nil
}

// SetVideoEnabled flips the enabled flag on the live video track. Enabling
// with no live video track re-acquires the camera. Audio is never touched.
func (m *MediaManager) SetVideoEnabled(enabled bool) error {
	m.mu.Lock()
	if m.primary != nil {
		if t := m.primary.VideoTrack(); t != nil && !t.Stopped() {
			t.SetEnabled(enabled)
			m.mu.Unlock()
			return nil
		}
	}
	if !enabled {
		m.mu.Unlock()
		return nil
	}
	deviceID := m.videoDeviceID
	m.mu.Unlock()

	t, err := m.source.OpenCamera(deviceID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.primary == nil {
		m.primary = NewStream(t)
	} else {
		m.primary.swapTrack(t)
	}
	m.mu.Unlock()

	if m.replacer != nil {
		if err := m.replacer.ReplaceVideoTrack(t); err != nil {
			utils.Warn("video re-enable: track replacement failed: %v", err)
		}
	}
	return nil
}

// SetAudioEnabled flips the enabled flag on the live audio track. Enabling
// with no live audio track re-acquires the microphone. Video is never
// touched.
func (m *MediaManager) SetAudioEnabled(enabled bool) error {
	m.mu.Lock()
	if m.primary != nil {
		if t := m.primary.AudioTrack(); t != nil && !t.Stopped() {
			t.SetEnabled(enabled)
			m.mu.Unlock()
			return nil
		}
	}
	if !enabled {
		m.mu.Unlock()
		return nil
	}
	deviceID := m.audioDeviceID
	m.mu.Unlock()

	t, err := m.source.OpenMicrophone(deviceID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.primary == nil {
		m.primary = NewStream(t)
	} else {
		m.primary.swapTrack(t)
	}
	m.mu.Unlock()

	if m.replacer != nil {
		if err := m.replacer.ReplaceAudioTrack(t); err != nil {
			utils.Warn("audio re-enable: track replacement failed: %v", err)
		}
	}
	return nil
}

// StartScreenShare captures the display and swaps it into every peer
// connection in place of the camera. Returns (nil, nil) when the user
// dismisses the capture prompt — cancellation is an expected outcome.
// The camera track stays live for restoration by StopScreenShare.
func (m *MediaManager) StartScreenShare() (*Stream, error) {
	if existing := m.Screen(); existing != nil {
		return existing, nil
	}

	t, err := m.source.OpenScreen()
	if err != nil {
		if errors.Is(err, ErrCaptureCancelled) {
			return nil, nil
		}
		return nil, err
	}

	m.mu.Lock()
	if m.screen != nil {
		existing := m.screen
		m.mu.Unlock()
		t.Stop()
		return existing, nil
	}
	if m.primary != nil {
		m.savedVideo = m.primary.VideoTrack()
	}
	screen := NewStream(t)
	m.screen = screen
	m.mu.Unlock()

	if m.replacer != nil {
		if err := m.replacer.ReplaceVideoTrack(t); err != nil {
			m.mu.Lock()
			if m.screen == screen {
				m.screen = nil
				m.savedVideo = nil
			}
			m.mu.Unlock()
			t.Stop()
			return nil, err
		}
	}
	return screen, nil
}

// StopScreenShare stops the display capture and restores the camera track
// that was outgoing immediately before sharing began. Idempotent.
func (m *MediaManager) StopScreenShare() error {
	m.mu.Lock()
	if m.screen == nil {
		m.mu.Unlock()
		return nil
	}
	screen := m.screen
	m.screen = nil
	saved := m.savedVideo
	m.savedVideo = nil
	m.mu.Unlock()

	screen.Stop()
	if saved != nil && !saved.Stopped() && m.replacer != nil {
		return m.replacer.ReplaceVideoTrack(saved)
	}
	return nil
}

// AddCamera opens a secondary, audio-less camera stream. Adding a device
// that is already active is a no-op returning the existing handle; the set
// refuses growth beyond the configured maximum.
func (m *MediaManager) AddCamera(deviceID string) (*Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stream, exists := m.cameras[deviceID]; exists {
		return stream, nil
	}
	if len(m.cameras) >= m.maxCameras {
		return nil, ErrCameraLimitReached
	}

	t, err := m.source.OpenCamera(deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	stream := NewStream(t)
	m.cameras[deviceID] = stream
	return stream, nil
}

// RemoveCamera stops and evicts one secondary camera. No-op if the device
// is not active.
func (m *MediaManager) RemoveCamera(deviceID string) {
	m.mu.Lock()
	stream, exists := m.cameras[deviceID]
	if exists {
		delete(m.cameras, deviceID)
	}
	m.mu.Unlock()

	if exists {
		stream.Stop()
	}
}

// Release stops every owned track — primary, screen and all secondary
// cameras — and clears device bookkeeping. Idempotent.
func (m *MediaManager) Release() {
	m.mu.Lock()
	streams := make([]*Stream, 0, len(m.cameras)+2)
	if m.primary != nil {
		streams = append(streams, m.primary)
	}
	if m.screen != nil {
		streams = append(streams, m.screen)
	}
	for _, s := range m.cameras {
		streams = append(streams, s)
	}
	m.primary = nil
	m.screen = nil
	m.savedVideo = nil
	m.cameras = make(map[string]*Stream)
	m.videoDeviceID = ""
	m.audioDeviceID = ""
	m.mu.Unlock()

	for _, s := range streams {
		s.Stop()
	}
}

// Primary returns the current primary stream, or nil
func (m *MediaManager) Primary() *Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary
}

// Screen returns the current screen stream, or nil
func (m *MediaManager) Screen() *Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.screen
}

// ScreenSharing reports whether a display capture is active
func (m *MediaManager) ScreenSharing() bool {
	return m.Screen() != nil
}

// Camera returns the secondary stream for deviceID, or nil
func (m *MediaManager) Camera(deviceID string) *Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cameras[deviceID]
}

// CameraCount returns the size of the additional-camera set
func (m *MediaManager) CameraCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cameras)
}

// VideoDeviceID returns the device feeding the primary video track
func (m *MediaManager) VideoDeviceID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.videoDeviceID
}

// AudioDeviceID returns the device feeding the primary audio track
func (m *MediaManager) AudioDeviceID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.audioDeviceID
}
