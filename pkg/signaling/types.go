/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-02
 */
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names carried over the channel.
const (
	// EventSignal carries an Envelope with an SDP or ICE payload
	EventSignal = "signal"
	// EventCallRequest is the out-of-band ring sent before negotiation starts
	EventCallRequest = "call-request"
	// EventCallResponse is the callee's accept/decline reply
	EventCallResponse = "call-response"
)

// SignalType represents the type of signaling message
type SignalType string

const (
	// SignalOffer is an SDP offer
	SignalOffer SignalType = "offer"
	// SignalAnswer is an SDP answer
	SignalAnswer SignalType = "answer"
	// SignalCandidate is an ICE candidate
	SignalCandidate SignalType = "candidate"
)

// ErrInvalidSignal indicates a signal that does not match any known shape.
// Unrecognized payloads are rejected at the boundary, never applied.
var ErrInvalidSignal = errors.New("invalid signaling message")

// Candidate represents an ICE candidate as carried on the wire
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Signal is the discriminated union exchanged during negotiation:
// an offer or answer carries SDP, a candidate carries ICE data.
// The channel may deliver signals out of order or not at all; callers
// must not assume ordered or at-most-once delivery.
type Signal struct {
	Type      SignalType `json:"type"`
	SDP       string     `json:"sdp,omitempty"`
	Candidate *Candidate `json:"candidate,omitempty"`
}

// Validate checks that the signal matches one of the known shapes
func (s Signal) Validate() error {
	switch s.Type {
	case SignalOffer, SignalAnswer:
		if s.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", ErrInvalidSignal, s.Type)
		}
	case SignalCandidate:
		if s.Candidate == nil {
			return fmt.Errorf("%w: candidate without payload", ErrInvalidSignal)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSignal, string(s.Type))
	}
	return nil
}

// ParseSignal decodes and validates a signal from raw JSON
func ParseSignal(data []byte) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(data, &s); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	if err := s.Validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}

// Envelope routes a Signal between two participants.
// To/From are the opaque participant ids the surrounding
// application uses as routing keys.
type Envelope struct {
	ID     string `json:"id,omitempty"`
	To     string `json:"to"`
	From   string `json:"from"`
	Signal Signal `json:"signal"`
}

// CallRequest is the out-of-band ring. ContextID carries the support-ticket
// id (or similar) so the callee can display caller context before accepting.
type CallRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	ContextID string `json:"contextId,omitempty"`
}

// CallResponse is the callee's reply to a CallRequest
type CallResponse struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Accepted bool   `json:"accepted"`
}
