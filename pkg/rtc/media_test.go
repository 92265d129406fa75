/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-04
 *
 * Media Manager Tests
 */
package rtc

import (
	"errors"
	"sync"
	"testing"
)

// fakeReplacer records track swaps instead of touching peer connections
type fakeReplacer struct {
	mu    sync.Mutex
	video []Track
	audio []Track
	err   error
}

func (r *fakeReplacer) ReplaceVideoTrack(t Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.video = append(r.video, t)
	return nil
}

func (r *fakeReplacer) ReplaceAudioTrack(t Track) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.audio = append(r.audio, t)
	return nil
}

func (r *fakeReplacer) lastVideo() Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.video) == 0 {
		return nil
	}
	return r.video[len(r.video)-1]
}

func TestMediaManagerAcquire(t *testing.T) {
	source := newFakeSource()
	m := newMediaManager(source, &fakeReplacer{}, 4)

	stream, err := m.Acquire(true, true, "", "")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if stream.VideoTrack() == nil {
		t.Error("Expected a video track")
	}
	if stream.AudioTrack() == nil {
		t.Error("Expected an audio track")
	}
	if m.Primary() != stream {
		t.Error("Expected Primary to return the acquired stream")
	}

	// Re-acquiring replaces and stops the old handle
	second, err := m.Acquire(true, true, "", "")
	if err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}
	if stream.Live() {
		t.Error("Expected old primary stream to be stopped")
	}
	if m.Primary() != second {
		t.Error("Expected Primary to return the new stream")
	}
}

func TestMediaManagerAcquirePartialFailure(t *testing.T) {
	source := newFakeSource()
	source.micErr = errors.New("mic busy")
	m := newMediaManager(source, &fakeReplacer{}, 4)

	if _, err := m.Acquire(true, true, "", ""); err == nil {
		t.Fatal("Expected acquire to fail")
	}
	if m.Primary() != nil {
		t.Error("Expected no primary stream after failure")
	}
	// The camera opened before the mic failed must not leak
	for _, track := range source.openedTracks() {
		if !track.Stopped() {
			t.Errorf("Expected opened track %s to be stopped", track.ID())
		}
	}
}

func TestMediaManagerSwitchVideoDevice(t *testing.T) {
	source := newFakeSource()
	replacer := &fakeReplacer{}
	m := newMediaManager(source, replacer, 4)

	stream, err := m.Acquire(true, true, "cam-a", "mic-a")
	if err != nil {
		t.Fatal(err)
	}
	oldVideo := stream.VideoTrack()
	audio := stream.AudioTrack()

	if err := m.SwitchVideoDevice("cam-b"); err != nil {
		t.Fatalf("SwitchVideoDevice failed: %v", err)
	}

	if m.VideoDeviceID() != "cam-b" {
		t.Errorf("Expected video device cam-b, got %s", m.VideoDeviceID())
	}
	if !oldVideo.Stopped() {
		t.Error("Expected old video track to be stopped")
	}
	if got := stream.VideoTrack(); got == oldVideo || got.DeviceID() != "cam-b" {
		t.Error("Expected primary stream to carry the new video track")
	}
	if got := replacer.lastVideo(); got == nil || got.DeviceID() != "cam-b" {
		t.Error("Expected peers to receive the new video track")
	}
	// Audio must be untouched
	if audio.Stopped() || stream.AudioTrack() != audio {
		t.Error("Expected audio track to be untouched by the video switch")
	}
}

func TestMediaManagerSwitchFailureKeepsOldTrack(t *testing.T) {
	source := newFakeSource()
	m := newMediaManager(source, &fakeReplacer{}, 4)

	stream, err := m.Acquire(true, false, "cam-a", "")
	if err != nil {
		t.Fatal(err)
	}
	oldVideo := stream.VideoTrack()

	source.mu.Lock()
	source.cameraErr = errors.New("device yanked")
	source.mu.Unlock()

	err = m.SwitchVideoDevice("cam-b")
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if oldVideo.Stopped() {
		t.Error("Expected old track to stay live after a failed switch")
	}
	if m.VideoDeviceID() != "cam-a" {
		t.Errorf("Expected video device to stay cam-a, got %s", m.VideoDeviceID())
	}
}

func TestMediaManagerScreenShare(t *testing.T) {
	source := newFakeSource()
	replacer := &fakeReplacer{}
	m := newMediaManager(source, replacer, 4)

	stream, err := m.Acquire(true, false, "cam-a", "")
	if err != nil {
		t.Fatal(err)
	}
	camera := stream.VideoTrack()

	screen, err := m.StartScreenShare()
	if err != nil {
		t.Fatalf("StartScreenShare failed: %v", err)
	}
	if screen == nil || !m.ScreenSharing() {
		t.Fatal("Expected an active screen stream")
	}
	if got := replacer.lastVideo(); got == nil || got.DeviceID() != "screen" {
		t.Error("Expected peers to receive the screen track")
	}
	// The camera keeps running for restoration
	if camera.Stopped() {
		t.Error("Expected camera track to stay live during screen share")
	}

	if err := m.StopScreenShare(); err != nil {
		t.Fatalf("StopScreenShare failed: %v", err)
	}
	if m.ScreenSharing() {
		t.Error("Expected screen sharing to be off")
	}
	if got := replacer.lastVideo(); got != camera {
		t.Error("Expected the saved camera track to be restored")
	}
	if !screen.VideoTrack().Stopped() {
		t.Error("Expected screen track to be stopped")
	}
}

func TestMediaManagerScreenShareCancelled(t *testing.T) {
	source := newFakeSource()
	source.screenErr = ErrCaptureCancelled
	m := newMediaManager(source, &fakeReplacer{}, 4)

	stream, err := m.StartScreenShare()
	if err != nil {
		t.Fatalf("Expected cancellation to be a non-error, got %v", err)
	}
	if stream != nil || m.ScreenSharing() {
		t.Error("Expected no screen stream after cancellation")
	}
}

func TestMediaManagerCameraSet(t *testing.T) {
	source := newFakeSource()
	m := newMediaManager(source, &fakeReplacer{}, 2)

	first, err := m.AddCamera("cam-b")
	if err != nil {
		t.Fatalf("AddCamera failed: %v", err)
	}

	// Adding the same device again is a no-op returning the existing handle
	again, err := m.AddCamera("cam-b")
	if err != nil {
		t.Fatalf("Second AddCamera failed: %v", err)
	}
	if again != first {
		t.Error("Expected idempotent AddCamera to return the existing stream")
	}
	if m.CameraCount() != 1 {
		t.Errorf("Expected 1 camera, got %d", m.CameraCount())
	}

	if _, err := m.AddCamera("cam-c"); err != nil {
		t.Fatalf("AddCamera failed: %v", err)
	}
	if _, err := m.AddCamera("cam-d"); !errors.Is(err, ErrCameraLimitReached) {
		t.Fatalf("Expected ErrCameraLimitReached, got %v", err)
	}

	m.RemoveCamera("cam-b")
	if m.Camera("cam-b") != nil {
		t.Error("Expected cam-b to be evicted")
	}
	if first.Live() {
		t.Error("Expected removed camera stream to be stopped")
	}
}

func TestMediaManagerEnableFlags(t *testing.T) {
	source := newFakeSource()
	replacer := &fakeReplacer{}
	m := newMediaManager(source, replacer, 4)

	stream, err := m.Acquire(true, true, "", "")
	if err != nil {
		t.Fatal(err)
	}
	video := stream.VideoTrack()

	if err := m.SetVideoEnabled(false); err != nil {
		t.Fatal(err)
	}
	if video.Enabled() {
		t.Error("Expected video track to be disabled")
	}
	if err := m.SetVideoEnabled(true); err != nil {
		t.Fatal(err)
	}
	if !video.Enabled() {
		t.Error("Expected video track to be enabled")
	}
	if stream.VideoTrack() != video {
		t.Error("Expected the live track to be reused, not reopened")
	}

	// Enabling after the track died re-acquires the camera
	video.Stop()
	if err := m.SetVideoEnabled(true); err != nil {
		t.Fatal(err)
	}
	if got := stream.VideoTrack(); got == video || got.Stopped() {
		t.Error("Expected a fresh video track after re-enable")
	}
	if replacer.lastVideo() == nil {
		t.Error("Expected the fresh track to be pushed to peers")
	}
}

func TestMediaManagerRelease(t *testing.T) {
	source := newFakeSource()
	m := newMediaManager(source, &fakeReplacer{}, 4)

	if _, err := m.Acquire(true, true, "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StartScreenShare(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddCamera("cam-b"); err != nil {
		t.Fatal(err)
	}

	m.Release()

	if m.Primary() != nil || m.Screen() != nil || m.CameraCount() != 0 {
		t.Error("Expected all handles to be cleared")
	}
	for _, track := range source.openedTracks() {
		if !track.Stopped() {
			t.Errorf("Expected track %s to be stopped", track.ID())
		}
	}
	if m.VideoDeviceID() != "" || m.AudioDeviceID() != "" {
		t.Error("Expected device bookkeeping to be cleared")
	}

	// Idempotent
	m.Release()
}
