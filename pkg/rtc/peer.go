/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-03
 */
package rtc

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/maiguangyang/call_core/pkg/signaling"
)

// PeerState is the lifecycle of one connection entry
type PeerState int32

const (
	// PeerStateNew is a freshly created entry
	PeerStateNew PeerState = iota
	// PeerStateNegotiating means offer/answer exchange is in flight
	PeerStateNegotiating
	// PeerStateConnected means the transport is established
	PeerStateConnected
	// PeerStateFailed is terminal: the entry is evicted, never retried
	PeerStateFailed
	// PeerStateClosed is reached only via explicit end-call
	PeerStateClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerStateNew:
		return "new"
	case PeerStateNegotiating:
		return "negotiating"
	case PeerStateConnected:
		return "connected"
	case PeerStateFailed:
		return "failed"
	case PeerStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// RemoteStream is the remote participant's media as assembled from
// incoming tracks
type RemoteStream struct {
	peerID string
	id     string

	mu     sync.RWMutex
	tracks []*webrtc.TrackRemote
}

func newRemoteStream(peerID, id string) *RemoteStream {
	return &RemoteStream{peerID: peerID, id: id}
}

// PeerID returns the owning participant id
func (r *RemoteStream) PeerID() string { return r.peerID }

// ID returns the remote stream id
func (r *RemoteStream) ID() string { return r.id }

// Tracks returns a snapshot of the received tracks
func (r *RemoteStream) Tracks() []*webrtc.TrackRemote {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*webrtc.TrackRemote, len(r.tracks))
	copy(out, r.tracks)
	return out
}

func (r *RemoteStream) addTrack(t *webrtc.TrackRemote) {
	r.mu.Lock()
	r.tracks = append(r.tracks, t)
	r.mu.Unlock()
}

// Peer is one negotiated connection to a remote participant.
// Owned exclusively by the PeerRegistry; at most one entry exists per
// remote id at any time.
type Peer struct {
	mu       sync.RWMutex
	id       string
	registry *PeerRegistry
	pc       *webrtc.PeerConnection

	initiator bool
	state     PeerState
	remoteSet bool

	// senders for outgoing track replacement (device switch, screen share)
	videoSender *webrtc.RTPSender
	audioSender *webrtc.RTPSender

	remote *RemoteStream
	closed bool
}

// newPeer creates an entry with a fresh PeerConnection, attaches the given
// local stream and wires the transport event handlers. The caller snapshots
// the stream so nothing here touches the media manager.
func newPeer(id string, registry *PeerRegistry, initiator bool, local *Stream) (*Peer, error) {
	pc, err := registry.api.NewPeerConnection(registry.config)
	if err != nil {
		return nil, err
	}

	peer := &Peer{
		id:        id,
		registry:  registry,
		pc:        pc,
		initiator: initiator,
		state:     PeerStateNew,
	}

	if err := peer.attachLocal(local); err != nil {
		pc.Close()
		return nil, err
	}

	peer.setupEventHandlers()

	return peer, nil
}

// ID returns the remote participant id
func (p *Peer) ID() string {
	return p.id
}

// attachLocal adds every live local track to the connection. Kinds with no
// local track get a recvonly transceiver so the SDP still carries valid
// m-lines for them.
func (p *Peer) attachLocal(stream *Stream) error {
	var haveVideo, haveAudio bool

	if stream != nil {
		for _, t := range stream.Tracks() {
			if t.Stopped() {
				continue
			}
			sender, err := p.pc.AddTrack(t.Local())
			if err != nil {
				return err
			}
			switch t.Kind() {
			case webrtc.RTPCodecTypeVideo:
				p.videoSender = sender
				haveVideo = true
			case webrtc.RTPCodecTypeAudio:
				p.audioSender = sender
				haveAudio = true
			}
		}
	}

	if !haveVideo {
		if _, err := p.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return err
		}
	}
	if !haveAudio {
		if _, err := p.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return err
		}
	}
	return nil
}

// setupEventHandlers wires the transport callbacks
func (p *Peer) setupEventHandlers() {
	// Local ICE candidates go straight out over the signaling channel
	p.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		p.registry.emitSignal(p.id, signaling.Signal{
			Type: signaling.SignalCandidate,
			Candidate: &signaling.Candidate{
				Candidate:        init.Candidate,
				SDPMid:           init.SDPMid,
				SDPMLineIndex:    init.SDPMLineIndex,
				UsernameFragment: init.UsernameFragment,
			},
		})
	})

	// Incoming tracks assemble into the remote stream
	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.registry.onRemoteTrack(p, track)
	})

	p.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			p.setState(PeerStateConnected)
		case webrtc.PeerConnectionStateFailed:
			// Non-retriable peer loss: evict and notify. Re-initiating is
			// the caller's decision.
			p.setState(PeerStateFailed)
			p.registry.evict(p.id)
		case webrtc.PeerConnectionStateDisconnected:
			// Temporarily disconnected, may recover on its own
		case webrtc.PeerConnectionStateClosed:
			// Explicit close path already handled the eviction
		}
	})
}

// negotiate creates and sends the initial offer
func (p *Peer) negotiate() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPeerClosed
	}
	p.state = PeerStateNegotiating

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: create offer: %v", ErrPeerNegotiationFailed, err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: set local offer: %v", ErrPeerNegotiationFailed, err)
	}
	sdp := offer.SDP
	p.mu.Unlock()

	p.registry.emitSignal(p.id, signaling.Signal{Type: signaling.SignalOffer, SDP: sdp})
	return nil
}

// HandleOffer applies a remote offer and replies with an answer
func (p *Peer) HandleOffer(offerSDP string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPeerClosed
	}
	p.state = PeerStateNegotiating

	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: set remote offer: %v", ErrPeerNegotiationFailed, err)
	}
	p.remoteSet = true

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: create answer: %v", ErrPeerNegotiationFailed, err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: set local answer: %v", ErrPeerNegotiationFailed, err)
	}
	sdp := answer.SDP
	p.mu.Unlock()

	p.registry.emitSignal(p.id, signaling.Signal{Type: signaling.SignalAnswer, SDP: sdp})
	return nil
}

// HandleAnswer applies a remote answer. No reply is sent.
func (p *Peer) HandleAnswer(answerSDP string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPeerClosed
	}

	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("%w: set remote answer: %v", ErrPeerNegotiationFailed, err)
	}
	p.remoteSet = true
	return nil
}

// AddCandidate applies a remote ICE candidate. Callers must gate on
// RemoteDescribed; a candidate without a remote description is rejected
// by the transport.
func (p *Peer) AddCandidate(c signaling.Candidate) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPeerClosed
	}

	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

// RemoteDescribed reports whether a remote description has been applied
func (p *Peer) RemoteDescribed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.remoteSet
}

// Initiator reports the entry's negotiation role
func (p *Peer) Initiator() bool {
	return p.initiator
}

// replaceTrack swaps the outgoing track of t's kind in place. No
// renegotiation: the transport keeps its existing description, so the
// kind must already have a sender from attachLocal. A kind attached as
// recvonly is refused; the track would never flow without a new offer.
func (p *Peer) replaceTrack(t Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPeerClosed
	}

	var sender *webrtc.RTPSender
	switch t.Kind() {
	case webrtc.RTPCodecTypeVideo:
		sender = p.videoSender
	case webrtc.RTPCodecTypeAudio:
		sender = p.audioSender
	}
	if sender == nil {
		return fmt.Errorf("%w: %s", ErrNoSender, t.Kind())
	}

	return sender.ReplaceTrack(t.Local())
}

// State returns the current lifecycle state
func (p *Peer) State() PeerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Peer) setState(state PeerState) {
	p.mu.Lock()
	// Terminal states never regress
	if p.state == PeerStateFailed || p.state == PeerStateClosed {
		p.mu.Unlock()
		return
	}
	p.state = state
	p.mu.Unlock()
}

// RemoteStream returns the assembled remote stream, or nil before the first
// track arrives
func (p *Peer) RemoteStream() *RemoteStream {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.remote
}

// Close shuts down the transport. Idempotent.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.state != PeerStateFailed {
		p.state = PeerStateClosed
	}
	pc := p.pc
	p.mu.Unlock()

	if pc != nil {
		return pc.Close()
	}
	return nil
}

// IsClosed returns whether the peer is closed
func (p *Peer) IsClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// ConnectionState returns the transport-level connection state
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pc == nil {
		return webrtc.PeerConnectionStateClosed
	}
	return p.pc.ConnectionState()
}
