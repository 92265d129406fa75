//go:build linux && cgo

/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-04
 */
package rtc

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"

	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"

	"github.com/maiguangyang/call_core/pkg/utils"
)

// systemSource opens real hardware through pion/mediadevices. VP8 for video,
// Opus for audio; the codec selector is populated into the media engine so
// peer connections negotiate what the encoders actually produce.
type systemSource struct {
	codecs *mediadevices.CodecSelector

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	listeners map[int]func()
	nextID    int
}

// NewSystemCaptureSource creates the platform capture backend
func NewSystemCaptureSource() (CaptureSource, error) {
	vp8Params, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vp8Params.BitRate = 500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &systemSource{
		codecs: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vp8Params),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		listeners: make(map[int]func()),
	}, nil
}

// ConfigureMediaEngine registers the backend's codecs with the media engine
func (s *systemSource) ConfigureMediaEngine(m *webrtc.MediaEngine) error {
	s.codecs.Populate(m)
	return nil
}

// Devices enumerates the platform's capture devices
func (s *systemSource) Devices() ([]Device, error) {
	infos := mediadevices.EnumerateDevices()
	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		var kind DeviceKind
		switch info.Kind {
		case mediadevices.VideoInput:
			kind = DeviceVideoInput
		case mediadevices.AudioInput:
			kind = DeviceAudioInput
		case mediadevices.AudioOutput:
			kind = DeviceAudioOutput
		default:
			continue
		}
		devices = append(devices, Device{
			ID:    info.DeviceID,
			Label: info.Label,
			Kind:  kind,
		})
	}
	return devices, nil
}

// OnDeviceChange watches /dev for capture hardware coming and going.
// Events are debounced; plugging a camera in fires one notification.
func (s *systemSource) OnDeviceChange(fn func()) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	if s.watcher == nil {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			utils.Warn("device watch unavailable: %v", err)
		} else if err := watcher.Add("/dev"); err != nil {
			utils.Warn("device watch on /dev failed: %v", err)
			watcher.Close()
		} else {
			s.watcher = watcher
			go s.watchLoop(watcher)
		}
	}

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		if len(s.listeners) == 0 && s.watcher != nil {
			s.watcher.Close()
			s.watcher = nil
		}
		s.mu.Unlock()
	}
}

func (s *systemSource) watchLoop(watcher *fsnotify.Watcher) {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			name := event.Name
			if !strings.Contains(name, "video") && !strings.Contains(name, "snd") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, s.notifyListeners)
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *systemSource) notifyListeners() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// OpenCamera acquires a video track. An unknown deviceID fails fast with
// ErrDeviceNotFound instead of falling back to a different camera.
func (s *systemSource) OpenCamera(deviceID string) (Track, error) {
	if deviceID != "" {
		if err := s.ensureDevice(deviceID, DeviceVideoInput); err != nil {
			return nil, err
		}
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.FrameFormat = prop.FrameFormatOneOf{frame.FormatI420, frame.FormatYUY2, frame.FormatNV21}
			c.Width = prop.Int(640)
			c.Height = prop.Int(480)
			if deviceID != "" {
				c.DeviceID = prop.String(deviceID)
			}
		},
		Codec: s.codecs,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaAccessDenied, err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, ErrDeviceUnavailable
	}
	return newHardwareTrack(tracks[0], deviceID), nil
}

// OpenMicrophone acquires an audio track
func (s *systemSource) OpenMicrophone(deviceID string) (Track, error) {
	if deviceID != "" {
		if err := s.ensureDevice(deviceID, DeviceAudioInput); err != nil {
			return nil, err
		}
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				c.DeviceID = prop.String(deviceID)
			}
		},
		Codec: s.codecs,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaAccessDenied, err)
	}

	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, ErrDeviceUnavailable
	}
	return newHardwareTrack(tracks[0], deviceID), nil
}

// OpenScreen acquires a display-capture track
func (s *systemSource) OpenScreen() (Track, error) {
	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.FrameFormat = prop.FrameFormat(frame.FormatI420)
		},
		Codec: s.codecs,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaAccessDenied, err)
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, ErrDeviceUnavailable
	}
	return newHardwareTrack(tracks[0], "screen"), nil
}

func (s *systemSource) ensureDevice(deviceID string, kind DeviceKind) error {
	devices, err := s.Devices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		if d.ID == deviceID && d.Kind == kind {
			return nil
		}
	}
	return ErrDeviceNotFound
}

// hardwareTrack adapts a mediadevices track to the Track interface.
// SetEnabled is bookkeeping only; the encoder keeps running so re-enable
// is instant.
type hardwareTrack struct {
	track    mediadevices.Track
	deviceID string

	mu      sync.RWMutex
	enabled bool
	stopped bool
}

func newHardwareTrack(track mediadevices.Track, deviceID string) *hardwareTrack {
	return &hardwareTrack{
		track:    track,
		deviceID: deviceID,
		enabled:  true,
	}
}

func (t *hardwareTrack) ID() string { return t.track.ID() }

func (t *hardwareTrack) Kind() webrtc.RTPCodecType { return t.track.Kind() }

func (t *hardwareTrack) DeviceID() string { return t.deviceID }

func (t *hardwareTrack) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func (t *hardwareTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *hardwareTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.enabled = false
	t.mu.Unlock()

	if err := t.track.Close(); err != nil {
		utils.Debug("capture track %s close: %v", t.track.ID(), err)
	}
}

func (t *hardwareTrack) Stopped() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stopped
}

func (t *hardwareTrack) Local() webrtc.TrackLocal { return t.track }
