/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-04
 *
 * Track and Stream Tests
 */
package rtc

import (
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

func TestStaticTrackLifecycle(t *testing.T) {
	track, err := NewStaticVideoTrack("cam-a")
	if err != nil {
		t.Fatal(err)
	}

	if track.Kind() != webrtc.RTPCodecTypeVideo {
		t.Error("Expected a video track")
	}
	if track.DeviceID() != "cam-a" {
		t.Errorf("Expected device cam-a, got %s", track.DeviceID())
	}
	if !track.Enabled() || track.Stopped() {
		t.Error("Expected a live enabled track")
	}

	track.SetEnabled(false)
	if track.Enabled() {
		t.Error("Expected track to be disabled")
	}
	// Samples written while disabled are swallowed
	if err := track.WriteSample(media.Sample{Data: []byte{1}, Duration: time.Millisecond}); err != nil {
		t.Errorf("Expected disabled write to be a no-op, got %v", err)
	}

	track.Stop()
	track.Stop()
	if !track.Stopped() || track.Enabled() {
		t.Error("Expected a stopped, disabled track")
	}
	if err := track.WriteSample(media.Sample{Data: []byte{1}, Duration: time.Millisecond}); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable after stop, got %v", err)
	}
}

func TestStreamTrackAccess(t *testing.T) {
	video, err := NewStaticVideoTrack("cam-a")
	if err != nil {
		t.Fatal(err)
	}
	audio, err := NewStaticAudioTrack("mic-a")
	if err != nil {
		t.Fatal(err)
	}

	stream := NewStream(video, audio)
	if stream.ID() == "" {
		t.Error("Expected a stream id")
	}
	if stream.VideoTrack() != video || stream.AudioTrack() != audio {
		t.Error("Expected tracks to be retrievable by kind")
	}
	if !stream.Live() {
		t.Error("Expected a live stream")
	}
}

func TestStreamSwapTrack(t *testing.T) {
	video, _ := NewStaticVideoTrack("cam-a")
	audio, _ := NewStaticAudioTrack("mic-a")
	stream := NewStream(video, audio)

	replacement, _ := NewStaticVideoTrack("cam-b")
	old := stream.swapTrack(replacement)
	if old != video {
		t.Error("Expected the old video track back")
	}
	if stream.VideoTrack() != replacement || stream.AudioTrack() != audio {
		t.Error("Expected only the video slot to change")
	}

	// Swapping a kind with no existing track appends
	empty := NewStream()
	if old := empty.swapTrack(replacement); old != nil {
		t.Error("Expected nil old track on append")
	}
	if empty.VideoTrack() != replacement {
		t.Error("Expected the appended track to be visible")
	}
}

func TestStreamStop(t *testing.T) {
	video, _ := NewStaticVideoTrack("cam-a")
	audio, _ := NewStaticAudioTrack("mic-a")
	stream := NewStream(video, audio)

	stream.Stop()
	if stream.Live() {
		t.Error("Expected a stopped stream")
	}
	if !video.Stopped() || !audio.Stopped() {
		t.Error("Expected every track to be stopped")
	}
}
