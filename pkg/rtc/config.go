/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-03
 */
package rtc

import (
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// Config holds call core configuration
type Config struct {
	// ICE servers for peer connections. TURN provisioning is the deployment's
	// concern; the default is a public STUN server only.
	ICEServers []webrtc.ICEServer

	// MaxCameras bounds the additional-camera set (beyond the primary stream)
	MaxCameras int

	// CallRequestExpiry is advisory: the notification layer uses it to expire
	// unanswered rings. The core itself never times out a pending entry.
	CallRequestExpiry time.Duration

	// LoggerFactory is handed to pion for transport-level logs
	LoggerFactory logging.LoggerFactory

	// API overrides the WebRTC API used for peer connections. Mainly for
	// tests that need a custom SettingEngine (vnet and the like).
	API *webrtc.API

	// Enable debug logging
	Debug bool
}

// DefaultConfig returns default call core configuration
func DefaultConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		MaxCameras:        4,
		CallRequestExpiry: 30 * time.Second,
	}
}

// webrtcConfig returns the pion configuration for new peer connections
func (c Config) webrtcConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: c.ICEServers,
	}
}

// mediaEngineConfigurer is implemented by capture backends that must register
// their own codecs (pion/mediadevices needs its codec selector populated into
// the media engine before peer connections are created).
type mediaEngineConfigurer interface {
	ConfigureMediaEngine(*webrtc.MediaEngine) error
}

// buildAPI constructs the WebRTC API shared by every peer connection.
// The capture backend gets first say on codecs; otherwise the pion defaults
// are registered.
func buildAPI(cfg Config, source CaptureSource) (*webrtc.API, error) {
	if cfg.API != nil {
		return cfg.API, nil
	}

	m := &webrtc.MediaEngine{}
	if mec, ok := source.(mediaEngineConfigurer); ok {
		if err := mec.ConfigureMediaEngine(m); err != nil {
			return nil, err
		}
	} else if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	if cfg.LoggerFactory != nil {
		se.LoggerFactory = cfg.LoggerFactory
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}
