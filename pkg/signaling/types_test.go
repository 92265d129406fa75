/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-04
 *
 * Signal Shape Tests
 */
package signaling

import (
	"errors"
	"testing"
)

func TestParseSignal(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		want    SignalType
	}{
		{"offer", `{"type":"offer","sdp":"v=0"}`, false, SignalOffer},
		{"answer", `{"type":"answer","sdp":"v=0"}`, false, SignalAnswer},
		{"candidate", `{"type":"candidate","candidate":{"candidate":"candidate:1"}}`, false, SignalCandidate},
		{"offer without sdp", `{"type":"offer"}`, true, ""},
		{"answer without sdp", `{"type":"answer"}`, true, ""},
		{"candidate without payload", `{"type":"candidate"}`, true, ""},
		{"unknown type", `{"type":"renegotiate","sdp":"v=0"}`, true, ""},
		{"empty type", `{"sdp":"v=0"}`, true, ""},
		{"not json", `{{{`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := ParseSignal([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSignal) {
					t.Fatalf("Expected ErrInvalidSignal, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if sig.Type != tt.want {
				t.Errorf("Expected type %s, got %s", tt.want, sig.Type)
			}
		})
	}
}

func TestCandidateOptionalFields(t *testing.T) {
	raw := `{"type":"candidate","candidate":{"candidate":"candidate:1","sdpMid":"0","sdpMLineIndex":0}}`
	sig, err := ParseSignal([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if sig.Candidate.SDPMid == nil || *sig.Candidate.SDPMid != "0" {
		t.Error("Expected sdpMid to round-trip")
	}
	if sig.Candidate.SDPMLineIndex == nil || *sig.Candidate.SDPMLineIndex != 0 {
		t.Error("Expected sdpMLineIndex to round-trip")
	}
	if sig.Candidate.UsernameFragment != nil {
		t.Error("Expected absent usernameFragment to stay nil")
	}
}
