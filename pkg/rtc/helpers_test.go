/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-04
 *
 * Shared test fakes and helpers
 */
package rtc

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"

	"github.com/maiguangyang/call_core/pkg/signaling"
)

// fakeSource opens StaticTracks instead of hardware
type fakeSource struct {
	mu        sync.Mutex
	devices   []Device
	listeners map[int]func()
	nextID    int

	cameraErr error
	micErr    error
	screenErr error

	opened []*StaticTrack
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		devices: []Device{
			{ID: "cam-a", Label: "Camera A", Kind: DeviceVideoInput},
			{ID: "cam-b", Label: "Camera B", Kind: DeviceVideoInput},
			{ID: "mic-a", Label: "Microphone A", Kind: DeviceAudioInput},
		},
		listeners: make(map[int]func()),
	}
}

func (s *fakeSource) Devices() ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Device, len(s.devices))
	copy(out, s.devices)
	return out, nil
}

func (s *fakeSource) OnDeviceChange(fn func()) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *fakeSource) fireDeviceChange() {
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

func (s *fakeSource) OpenCamera(deviceID string) (Track, error) {
	s.mu.Lock()
	err := s.cameraErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if deviceID == "" {
		deviceID = "cam-a"
	}
	t, terr := NewStaticVideoTrack(deviceID)
	if terr != nil {
		return nil, terr
	}
	s.mu.Lock()
	s.opened = append(s.opened, t)
	s.mu.Unlock()
	return t, nil
}

func (s *fakeSource) OpenMicrophone(deviceID string) (Track, error) {
	s.mu.Lock()
	err := s.micErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if deviceID == "" {
		deviceID = "mic-a"
	}
	t, terr := NewStaticAudioTrack(deviceID)
	if terr != nil {
		return nil, terr
	}
	s.mu.Lock()
	s.opened = append(s.opened, t)
	s.mu.Unlock()
	return t, nil
}

func (s *fakeSource) OpenScreen() (Track, error) {
	s.mu.Lock()
	err := s.screenErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	t, terr := NewStaticVideoTrack("screen")
	if terr != nil {
		return nil, terr
	}
	s.mu.Lock()
	s.opened = append(s.opened, t)
	s.mu.Unlock()
	return t, nil
}

func (s *fakeSource) openedTracks() []*StaticTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*StaticTrack, len(s.opened))
	copy(out, s.opened)
	return out
}

// fakeChannel records emits and lets tests inject inbound events
type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	nextID    int
	handlers  map[string]map[int]signaling.Handler
	emitted   []fakeEmit
	emitErr   error
}

type fakeEmit struct {
	event string
	data  json.RawMessage
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		connected: true,
		handlers:  make(map[string]map[int]signaling.Handler),
	}
}

func (c *fakeChannel) Connect(identity string) error {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeChannel) Emit(event string, payload interface{}) error {
	c.mu.Lock()
	if c.emitErr != nil {
		err := c.emitErr
		c.mu.Unlock()
		return err
	}
	if !c.connected {
		c.mu.Unlock()
		return signaling.ErrChannelUnavailable
	}
	c.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.emitted = append(c.emitted, fakeEmit{event: event, data: data})
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) On(event string, handler signaling.Handler) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]signaling.Handler)
	}
	c.handlers[event][id] = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers[event], id)
		c.mu.Unlock()
	}
}

func (c *fakeChannel) OnConnectionChange(onConnect, onDisconnect func()) (cancel func()) {
	return func() {}
}

// signalEnvelopes decodes every recorded EventSignal emit
func (c *fakeChannel) signalEnvelopes(t *testing.T) []signaling.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var envs []signaling.Envelope
	for _, e := range c.emitted {
		if e.event != signaling.EventSignal {
			continue
		}
		var env signaling.Envelope
		if err := json.Unmarshal(e.data, &env); err != nil {
			t.Fatalf("recorded envelope does not decode: %v", err)
		}
		envs = append(envs, env)
	}
	return envs
}

func (c *fakeChannel) countSignals(t *testing.T, st signaling.SignalType) int {
	t.Helper()
	n := 0
	for _, env := range c.signalEnvelopes(t) {
		if env.Signal.Type == st {
			n++
		}
	}
	return n
}

// spyChannel wraps a real channel and counts outgoing offers
type spyChannel struct {
	signaling.Channel

	mu     sync.Mutex
	offers int
}

func (s *spyChannel) Emit(event string, payload interface{}) error {
	if event == signaling.EventSignal {
		if env, ok := payload.(signaling.Envelope); ok && env.Signal.Type == signaling.SignalOffer {
			s.mu.Lock()
			s.offers++
			s.mu.Unlock()
		}
	}
	return s.Channel.Emit(event, payload)
}

func (s *spyChannel) offerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offers
}

// testConfig keeps peer connections offline: no STUN
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ICEServers = nil
	return cfg
}

// newVnetPair builds two WebRTC APIs wired through a virtual network so
// tests establish real transports without touching the host network
func newVnetPair(t *testing.T) (*webrtc.API, *webrtc.API) {
	t.Helper()

	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "1.2.3.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatal(err)
	}

	apis := make([]*webrtc.API, 0, 2)
	for _, ip := range []string{"1.2.3.4", "1.2.3.5"} {
		net, err := vnet.NewNet(&vnet.NetConfig{StaticIP: ip})
		if err != nil {
			t.Fatal(err)
		}
		if err := wan.AddNet(net); err != nil {
			t.Fatal(err)
		}

		m := &webrtc.MediaEngine{}
		if err := m.RegisterDefaultCodecs(); err != nil {
			t.Fatal(err)
		}
		ir := &interceptor.Registry{}
		if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
			t.Fatal(err)
		}

		se := webrtc.SettingEngine{}
		se.SetNet(net)

		apis = append(apis, webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(ir),
			webrtc.WithSettingEngine(se),
		))
	}

	if err := wan.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { wan.Stop() })

	return apis[0], apis[1]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", msg)
}
