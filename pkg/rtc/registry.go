/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-03
 */
package rtc

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/maiguangyang/call_core/pkg/signaling"
	"github.com/maiguangyang/call_core/pkg/utils"
)

// PeerRegistry owns one connection entry per remote participant and drives
// the offer/answer/ICE exchange over the signaling channel.
type PeerRegistry struct {
	mu     sync.RWMutex
	selfID string
	api    *webrtc.API
	config webrtc.Configuration

	channel signaling.Channel
	local   func() *Stream
	stats   *CallStats

	peers map[string]*Peer

	// Callbacks
	onStreamAdded   func(peerID string, stream *RemoteStream)
	onStreamRemoved func(peerID string)
	onRemoteTrackCb func(peerID string, track *webrtc.TrackRemote)

	closed bool
}

// newPeerRegistry creates a registry. local supplies the current primary
// stream whose tracks get attached to every new connection.
func newPeerRegistry(selfID string, api *webrtc.API, config webrtc.Configuration, channel signaling.Channel, local func() *Stream, stats *CallStats) *PeerRegistry {
	return &PeerRegistry{
		selfID:  selfID,
		api:     api,
		config:  config,
		channel: channel,
		local:   local,
		stats:   stats,
		peers:   make(map[string]*Peer),
	}
}

// SetOnStreamAdded sets the callback for a remote stream becoming available
func (r *PeerRegistry) SetOnStreamAdded(fn func(peerID string, stream *RemoteStream)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStreamAdded = fn
}

// SetOnStreamRemoved sets the callback for a remote stream going away
func (r *PeerRegistry) SetOnStreamRemoved(fn func(peerID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStreamRemoved = fn
}

// SetOnRemoteTrack sets the callback fired for every incoming track
func (r *PeerRegistry) SetOnRemoteTrack(fn func(peerID string, track *webrtc.TrackRemote)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemoteTrackCb = fn
}

// CreateOrGet returns the existing entry for remoteID unchanged, or creates
// a new one. The idempotent lookup is what keeps racing signals from opening
// duplicate transports. When asInitiator is set on a newly created entry,
// negotiation starts immediately.
func (r *PeerRegistry) CreateOrGet(remoteID string, asInitiator bool) (*Peer, error) {
	// Snapshot the local stream before locking. r.local reaches into the
	// media manager, which itself calls back into the registry on device
	// switches; holding r.mu across it would order the two locks both ways.
	local := r.local()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if peer, exists := r.peers[remoteID]; exists {
		r.mu.Unlock()
		return peer, nil
	}

	peer, err := newPeer(remoteID, r, asInitiator, local)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.peers[remoteID] = peer
	r.mu.Unlock()

	if asInitiator {
		if err := peer.negotiate(); err != nil {
			r.evict(remoteID)
			return nil, err
		}
	}

	return peer, nil
}

// Get returns the entry for remoteID, or nil
func (r *PeerRegistry) Get(remoteID string) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peers[remoteID]
}

// Count returns the number of live entries
func (r *PeerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// PeerIDs returns the ids of every live entry
func (r *PeerRegistry) PeerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	return ids
}

// HandleSignal routes one inbound signal to the matching entry. An offer
// creates the entry on demand (responder role); answers and candidates
// require an existing one.
func (r *PeerRegistry) HandleSignal(remoteID string, sig signaling.Signal) error {
	if r.stats != nil {
		r.stats.AddSignalIn()
	}

	switch sig.Type {
	case signaling.SignalOffer:
		peer, err := r.CreateOrGet(remoteID, false)
		if err != nil {
			return err
		}
		return peer.HandleOffer(sig.SDP)

	case signaling.SignalAnswer:
		peer := r.Get(remoteID)
		if peer == nil {
			return ErrPeerNotFound
		}
		return peer.HandleAnswer(sig.SDP)

	case signaling.SignalCandidate:
		peer := r.Get(remoteID)
		if peer == nil {
			return ErrPeerNotFound
		}
		if sig.Candidate == nil {
			return signaling.ErrInvalidSignal
		}
		return peer.AddCandidate(*sig.Candidate)

	default:
		return signaling.ErrInvalidSignal
	}
}

// ReplaceVideoTrack swaps the outgoing video track on every live entry.
// Track replacement only — no entry renegotiates.
func (r *PeerRegistry) ReplaceVideoTrack(t Track) error {
	return r.replaceAll(t)
}

// ReplaceAudioTrack swaps the outgoing audio track on every live entry
func (r *PeerRegistry) ReplaceAudioTrack(t Track) error {
	return r.replaceAll(t)
}

func (r *PeerRegistry) replaceAll(t Track) error {
	var firstErr error
	for _, peer := range r.snapshot() {
		if err := peer.replaceTrack(t); err != nil {
			utils.Warn("track replacement failed for peer %s: %v", peer.ID(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// End closes and evicts one entry
func (r *PeerRegistry) End(remoteID string) {
	r.mu.Lock()
	peer, exists := r.peers[remoteID]
	if exists {
		delete(r.peers, remoteID)
	}
	r.mu.Unlock()

	if exists {
		peer.Close()
		r.emitStreamRemoved(remoteID)
	}
}

// EndAll closes and evicts every entry (call termination)
func (r *PeerRegistry) EndAll() {
	r.mu.Lock()
	peers := r.peers
	r.peers = make(map[string]*Peer)
	r.mu.Unlock()

	for id, peer := range peers {
		peer.Close()
		r.emitStreamRemoved(id)
	}
}

// Close shuts the registry down; no new entries can be created
func (r *PeerRegistry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.EndAll()
}

// evict removes a failed entry and notifies subscribers. Used by the
// transport failure path; a no-op when the entry is already gone.
func (r *PeerRegistry) evict(remoteID string) {
	r.mu.Lock()
	peer, exists := r.peers[remoteID]
	if exists {
		delete(r.peers, remoteID)
	}
	r.mu.Unlock()

	if exists {
		peer.Close()
		r.emitStreamRemoved(remoteID)
	}
}

// onRemoteTrack assembles incoming tracks into the peer's remote stream and
// fires the stream-available callback on the first one
func (r *PeerRegistry) onRemoteTrack(p *Peer, track *webrtc.TrackRemote) {
	p.mu.Lock()
	first := p.remote == nil
	if first {
		p.remote = newRemoteStream(p.id, track.StreamID())
	}
	p.remote.addTrack(track)
	stream := p.remote
	p.mu.Unlock()

	r.emitRemoteTrack(p.id, track)
	if first {
		r.emitStreamAdded(p.id, stream)
	}
}

// emitSignal sends one signal to the remote participant. A down channel
// degrades to a logged no-op; the channel reconnects on its own.
func (r *PeerRegistry) emitSignal(to string, sig signaling.Signal) {
	env := signaling.Envelope{
		ID:     uuid.NewString(),
		To:     to,
		From:   r.selfID,
		Signal: sig,
	}
	if err := r.channel.Emit(signaling.EventSignal, env); err != nil {
		if errors.Is(err, signaling.ErrChannelUnavailable) {
			utils.Warn("signaling channel down, %s to %s not delivered", sig.Type, to)
		} else {
			utils.Error("signal emit to %s failed: %v", to, err)
		}
		return
	}
	if r.stats != nil {
		r.stats.AddSignalOut()
	}
}

func (r *PeerRegistry) snapshot() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}

func (r *PeerRegistry) emitStreamAdded(peerID string, stream *RemoteStream) {
	r.mu.RLock()
	fn := r.onStreamAdded
	r.mu.RUnlock()
	if fn != nil {
		fn(peerID, stream)
	}
}

func (r *PeerRegistry) emitStreamRemoved(peerID string) {
	r.mu.RLock()
	fn := r.onStreamRemoved
	r.mu.RUnlock()
	if fn != nil {
		fn(peerID)
	}
}

func (r *PeerRegistry) emitRemoteTrack(peerID string, track *webrtc.TrackRemote) {
	r.mu.RLock()
	fn := r.onRemoteTrackCb
	r.mu.RUnlock()
	if fn != nil {
		fn(peerID, track)
	}
}
