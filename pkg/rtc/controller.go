/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-04
 */
package rtc

import (
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/maiguangyang/call_core/pkg/signaling"
	"github.com/maiguangyang/call_core/pkg/utils"
)

// CallState is the controller's lifecycle
type CallState int32

const (
	// CallStateIdle means no call activity
	CallStateIdle CallState = iota
	// CallStateRequestingMedia means local capture is being acquired
	CallStateRequestingMedia
	// CallStateNegotiating means at least one peer is mid-negotiation
	CallStateNegotiating
	// CallStateInCall means at least one remote stream is up
	CallStateInCall
	// CallStateEnded means the controller has been disposed
	CallStateEnded
)

func (s CallState) String() string {
	switch s {
	case CallStateIdle:
		return "idle"
	case CallStateRequestingMedia:
		return "requesting-media"
	case CallStateNegotiating:
		return "negotiating"
	case CallStateInCall:
		return "in-call"
	case CallStateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// IncomingCall describes an out-of-band ring from another participant.
// ContextID is presentation data (the support-ticket id); expiry of an
// unanswered ring is the notification layer's job.
type IncomingCall struct {
	CallerID  string
	ContextID string
}

// Controller orchestrates the device inventory, media manager and peer
// registry into call verbs and surfaces state to the presentation layer.
// One controller serves one participant session; construct it at session
// start and Dispose it at session end.
type Controller struct {
	cfg     Config
	selfID  string
	channel signaling.Channel

	devices  *DeviceInventory
	media    *MediaManager
	peers    *PeerRegistry
	pending  *signalBuffer
	recorder *Recorder
	stats    *CallStats

	mu           sync.RWMutex
	state        CallState
	videoEnabled bool
	audioEnabled bool
	lastError    string
	closed       bool

	cbMu            sync.RWMutex
	nextCbID        int
	onIncoming      map[int]func(IncomingCall)
	onResponse      map[int]func(signaling.CallResponse)
	onStreamAdded   func(peerID string, stream *RemoteStream)
	onStreamRemoved func(peerID string)

	cancels []func()
}

// NewController wires a controller over the given signaling channel and
// capture source. The channel must already be connected (or connecting);
// the controller subscribes to its events but does not own its lifecycle.
func NewController(selfID string, cfg Config, channel signaling.Channel, source CaptureSource) (*Controller, error) {
	api, err := buildAPI(cfg, source)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:        cfg,
		selfID:     selfID,
		channel:    channel,
		pending:    newSignalBuffer(),
		stats:      NewCallStats(),
		state:      CallStateIdle,
		onIncoming: make(map[int]func(IncomingCall)),
		onResponse: make(map[int]func(signaling.CallResponse)),
	}

	c.peers = newPeerRegistry(selfID, api, cfg.webrtcConfig(), channel, func() *Stream {
		return c.media.Primary()
	}, c.stats)
	c.media = newMediaManager(source, c.peers, cfg.MaxCameras)
	c.devices = NewDeviceInventory(source)
	c.recorder = newRecorder(c.stats)

	c.peers.SetOnStreamAdded(func(peerID string, stream *RemoteStream) {
		c.mu.Lock()
		if c.state == CallStateNegotiating {
			c.state = CallStateInCall
		}
		c.mu.Unlock()

		c.cbMu.RLock()
		fn := c.onStreamAdded
		c.cbMu.RUnlock()
		if fn != nil {
			fn(peerID, stream)
		}
	})
	c.peers.SetOnStreamRemoved(func(peerID string) {
		c.cbMu.RLock()
		fn := c.onStreamRemoved
		c.cbMu.RUnlock()
		if fn != nil {
			fn(peerID)
		}
	})
	c.peers.SetOnRemoteTrack(func(peerID string, track *webrtc.TrackRemote) {
		c.recorder.Capture(peerID, track)
	})

	c.cancels = append(c.cancels,
		channel.On(signaling.EventSignal, c.handleSignalEvent),
		channel.On(signaling.EventCallRequest, c.handleCallRequestEvent),
		channel.On(signaling.EventCallResponse, c.handleCallResponseEvent),
	)

	return c, nil
}

// handleSignalEvent validates and routes one inbound signal envelope.
// Unrecognized shapes are logged and dropped, never applied.
func (c *Controller) handleSignalEvent(data json.RawMessage) {
	var env signaling.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		utils.Warn("dropping malformed signal envelope: %v", err)
		return
	}
	if env.To != "" && env.To != c.selfID {
		return
	}
	if env.From == "" {
		utils.Warn("dropping signal envelope without sender")
		return
	}
	if err := env.Signal.Validate(); err != nil {
		utils.Warn("rejecting signal from %s: %v", env.From, err)
		return
	}
	c.routeSignal(env.From, env.Signal)
}

// routeSignal applies one signal or defers it. Signals arriving before
// local media is ready are held for Accept's flush; a candidate racing
// ahead of its remote description is held until the description lands.
// Nothing is ever dropped for arriving early.
func (c *Controller) routeSignal(from string, sig signaling.Signal) {
	if c.isClosed() {
		return
	}

	if c.media.Primary() == nil {
		c.pending.Push(from, sig)
		return
	}

	if sig.Type == signaling.SignalCandidate {
		peer := c.peers.Get(from)
		if peer == nil || !peer.RemoteDescribed() {
			c.pending.Push(from, sig)
			return
		}
	}

	if err := c.peers.HandleSignal(from, sig); err != nil {
		utils.Error("signal %s from %s failed: %v", sig.Type, from, err)
		c.setLastError(err)
		return
	}

	// A freshly applied description unblocks candidates that were held
	// waiting for it, including ones re-queued by an earlier flush
	if sig.Type == signaling.SignalOffer || sig.Type == signaling.SignalAnswer {
		c.flushPending(from)
	}
}

// flushPending replays every buffered signal for one participant in
// arrival order. Replay re-enters routeSignal, so a still-blocked
// candidate is re-queued rather than dropped; each Drain removes what it
// hands out, and re-queued candidates replay again once the description
// they are waiting for is applied.
func (c *Controller) flushPending(remoteID string) {
	for _, sig := range c.pending.Drain(remoteID) {
		c.routeSignal(remoteID, sig)
	}
}

func (c *Controller) handleCallRequestEvent(data json.RawMessage) {
	var req signaling.CallRequest
	if err := json.Unmarshal(data, &req); err != nil {
		utils.Warn("dropping malformed call request: %v", err)
		return
	}
	if req.To != "" && req.To != c.selfID {
		return
	}

	call := IncomingCall{CallerID: req.From, ContextID: req.ContextID}
	c.cbMu.RLock()
	handlers := make([]func(IncomingCall), 0, len(c.onIncoming))
	for _, fn := range c.onIncoming {
		handlers = append(handlers, fn)
	}
	c.cbMu.RUnlock()

	for _, fn := range handlers {
		fn(call)
	}
}

func (c *Controller) handleCallResponseEvent(data json.RawMessage) {
	var resp signaling.CallResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		utils.Warn("dropping malformed call response: %v", err)
		return
	}
	if resp.To != "" && resp.To != c.selfID {
		return
	}

	c.cbMu.RLock()
	handlers := make([]func(signaling.CallResponse), 0, len(c.onResponse))
	for _, fn := range c.onResponse {
		handlers = append(handlers, fn)
	}
	c.cbMu.RUnlock()

	for _, fn := range handlers {
		fn(resp)
	}
}

// Initiate acquires local media, rings the recipient with the given context
// id and starts negotiation as initiator. Any failure releases media
// acquired for this call and returns the controller to idle; a controller
// already in a call keeps its other peers.
func (c *Controller) Initiate(recipientID, contextID string) error {
	if c.isClosed() {
		return ErrControllerClosed
	}

	if c.media.Primary() == nil {
		c.setState(CallStateRequestingMedia)
		if _, err := c.media.Acquire(true, true, "", ""); err != nil {
			c.failCallSetup(err)
			return err
		}
		c.mu.Lock()
		c.videoEnabled = true
		c.audioEnabled = true
		c.mu.Unlock()
	}
	c.setState(CallStateNegotiating)

	req := signaling.CallRequest{From: c.selfID, To: recipientID, ContextID: contextID}
	if err := c.channel.Emit(signaling.EventCallRequest, req); err != nil {
		c.failCallSetup(err)
		return err
	}

	if _, err := c.peers.CreateOrGet(recipientID, true); err != nil {
		c.failCallSetup(err)
		return err
	}
	return nil
}

// Accept acquires local media, replays any signals that arrived while the
// ring was pending and joins negotiation as responder.
func (c *Controller) Accept(callerID string) error {
	if c.isClosed() {
		return ErrControllerClosed
	}

	if c.media.Primary() == nil {
		c.setState(CallStateRequestingMedia)
		if _, err := c.media.Acquire(true, true, "", ""); err != nil {
			c.failCallSetup(err)
			return err
		}
		c.mu.Lock()
		c.videoEnabled = true
		c.audioEnabled = true
		c.mu.Unlock()
	}
	c.setState(CallStateNegotiating)

	// A buffered offer creates the responder entry during the flush
	c.flushPending(callerID)
	if c.peers.Get(callerID) == nil {
		if _, err := c.peers.CreateOrGet(callerID, false); err != nil {
			c.failCallSetup(err)
			return err
		}
	}

	resp := signaling.CallResponse{From: c.selfID, To: callerID, Accepted: true}
	if err := c.channel.Emit(signaling.EventCallResponse, resp); err != nil {
		utils.Warn("call response to %s not delivered: %v", callerID, err)
	}
	return nil
}

// Decline rejects a pending ring and discards any signals buffered for it
func (c *Controller) Decline(callerID string) {
	c.pending.Drop(callerID)
	resp := signaling.CallResponse{From: c.selfID, To: callerID, Accepted: false}
	if err := c.channel.Emit(signaling.EventCallResponse, resp); err != nil {
		utils.Warn("call decline to %s not delivered: %v", callerID, err)
	}
}

// failCallSetup records the error and unwinds: with no surviving peers the
// controller releases media and returns to idle, otherwise the existing
// call continues untouched.
func (c *Controller) failCallSetup(err error) {
	c.setLastError(err)
	if c.peers.Count() > 0 {
		c.setState(CallStateInCall)
		return
	}
	c.media.Release()
	c.setState(CallStateIdle)
}

// ToggleVideo flips outgoing video and returns the new enabled state
func (c *Controller) ToggleVideo() (bool, error) {
	c.mu.RLock()
	target := !c.videoEnabled
	c.mu.RUnlock()

	if err := c.media.SetVideoEnabled(target); err != nil {
		c.setLastError(err)
		return !target, err
	}
	c.mu.Lock()
	c.videoEnabled = target
	c.mu.Unlock()
	return target, nil
}

// ToggleAudio flips outgoing audio and returns the new enabled state
func (c *Controller) ToggleAudio() (bool, error) {
	c.mu.RLock()
	target := !c.audioEnabled
	c.mu.RUnlock()

	if err := c.media.SetAudioEnabled(target); err != nil {
		c.setLastError(err)
		return !target, err
	}
	c.mu.Lock()
	c.audioEnabled = target
	c.mu.Unlock()
	return target, nil
}

// ToggleScreenShare starts or stops display capture and returns whether
// sharing is now active. A dismissed capture prompt returns (false, nil).
func (c *Controller) ToggleScreenShare() (bool, error) {
	if c.media.ScreenSharing() {
		if err := c.media.StopScreenShare(); err != nil {
			c.setLastError(err)
			return true, err
		}
		return false, nil
	}

	stream, err := c.media.StartScreenShare()
	if err != nil {
		c.setLastError(err)
		return false, err
	}
	return stream != nil, nil
}

// ToggleRecording starts or stops recording and returns whether recording
// is now active. Requires a sink installed via SetRecordingSink.
func (c *Controller) ToggleRecording() (bool, error) {
	if c.recorder.Active() {
		c.recorder.Stop()
		return false, nil
	}

	if err := c.recorder.Start(); err != nil {
		c.setLastError(err)
		return false, err
	}

	// Tracks already received start recording immediately; later tracks
	// are captured as they arrive.
	for _, id := range c.peers.PeerIDs() {
		peer := c.peers.Get(id)
		if peer == nil {
			continue
		}
		if remote := peer.RemoteStream(); remote != nil {
			for _, track := range remote.Tracks() {
				c.recorder.Capture(id, track)
			}
		}
	}
	return true, nil
}

// SwitchCamera moves outgoing video to another camera, in place
func (c *Controller) SwitchCamera(deviceID string) error {
	if err := c.media.SwitchVideoDevice(deviceID); err != nil {
		c.setLastError(err)
		return err
	}
	return nil
}

// SwitchMicrophone moves outgoing audio to another microphone, in place
func (c *Controller) SwitchMicrophone(deviceID string) error {
	if err := c.media.SwitchAudioDevice(deviceID); err != nil {
		c.setLastError(err)
		return err
	}
	return nil
}

// AddCamera adds a secondary camera stream
func (c *Controller) AddCamera(deviceID string) (*Stream, error) {
	stream, err := c.media.AddCamera(deviceID)
	if err != nil {
		c.setLastError(err)
		return nil, err
	}
	return stream, nil
}

// RemoveCamera evicts a secondary camera stream
func (c *Controller) RemoveCamera(deviceID string) {
	c.media.RemoveCamera(deviceID)
}

// EndCall stops recording, closes every peer connection, releases every
// capture handle and resets to idle.
func (c *Controller) EndCall() {
	c.recorder.Stop()
	c.peers.EndAll()
	c.media.Release()
	c.pending.Clear()

	c.mu.Lock()
	if !c.closed {
		c.state = CallStateIdle
	}
	c.videoEnabled = false
	c.audioEnabled = false
	c.mu.Unlock()
}

// Dispose tears the controller down: ends any call, unsubscribes from the
// channel and releases the device-change subscription. Idempotent.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	c.EndCall()
	c.peers.Close()
	c.devices.Close()

	c.mu.Lock()
	c.state = CallStateEnded
	c.mu.Unlock()
}

// OnIncomingCall registers a ring handler. Handlers are independent;
// cancelling one leaves the others registered.
func (c *Controller) OnIncomingCall(fn func(IncomingCall)) (cancel func()) {
	c.cbMu.Lock()
	id := c.nextCbID
	c.nextCbID++
	c.onIncoming[id] = fn
	c.cbMu.Unlock()

	return func() {
		c.cbMu.Lock()
		delete(c.onIncoming, id)
		c.cbMu.Unlock()
	}
}

// OnCallResponse registers a handler for accept/decline replies to this
// participant's rings
func (c *Controller) OnCallResponse(fn func(signaling.CallResponse)) (cancel func()) {
	c.cbMu.Lock()
	id := c.nextCbID
	c.nextCbID++
	c.onResponse[id] = fn
	c.cbMu.Unlock()

	return func() {
		c.cbMu.Lock()
		delete(c.onResponse, id)
		c.cbMu.Unlock()
	}
}

// SetOnStreamAdded sets the remote-stream-available callback
func (c *Controller) SetOnStreamAdded(fn func(peerID string, stream *RemoteStream)) {
	c.cbMu.Lock()
	c.onStreamAdded = fn
	c.cbMu.Unlock()
}

// SetOnStreamRemoved sets the remote-stream-removed callback
func (c *Controller) SetOnStreamRemoved(fn func(peerID string)) {
	c.cbMu.Lock()
	c.onStreamRemoved = fn
	c.cbMu.Unlock()
}

// OnDevicesChange registers a device-list listener
func (c *Controller) OnDevicesChange(fn func([]Device)) (cancel func()) {
	return c.devices.OnChange(fn)
}

// EnumerateDevices returns a fresh device snapshot
func (c *Controller) EnumerateDevices() []Device {
	return c.devices.Enumerate()
}

// SetRecordingSink installs the sink that receives recorded RTP
func (c *Controller) SetRecordingSink(sink RecorderSink) {
	c.recorder.SetSink(sink)
}

// SelfID returns this participant's identity
func (c *Controller) SelfID() string {
	return c.selfID
}

// State returns the controller lifecycle state
func (c *Controller) State() CallState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// VideoEnabled reports whether outgoing video is on
func (c *Controller) VideoEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.videoEnabled
}

// AudioEnabled reports whether outgoing audio is on
func (c *Controller) AudioEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.audioEnabled
}

// ScreenSharing reports whether display capture is active
func (c *Controller) ScreenSharing() bool {
	return c.media.ScreenSharing()
}

// Recording reports whether recording is active
func (c *Controller) Recording() bool {
	return c.recorder.Active()
}

// LastError returns the latest user-visible error string, empty when none
func (c *Controller) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

// ClearLastError resets the user-visible error string
func (c *Controller) ClearLastError() {
	c.mu.Lock()
	c.lastError = ""
	c.mu.Unlock()
}

// Media returns the local media manager. Rendering only — track mutation
// must go through the controller verbs.
func (c *Controller) Media() *MediaManager {
	return c.media
}

// Peers returns the peer connection registry
func (c *Controller) Peers() *PeerRegistry {
	return c.peers
}

// Stats returns a snapshot of the controller's counters
func (c *Controller) Stats() Snapshot {
	return c.stats.Snapshot()
}

func (c *Controller) setState(state CallState) {
	c.mu.Lock()
	if !c.closed {
		c.state = state
	}
	c.mu.Unlock()
}

func (c *Controller) setLastError(err error) {
	c.mu.Lock()
	c.lastError = err.Error()
	c.mu.Unlock()
}

func (c *Controller) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
