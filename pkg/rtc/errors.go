/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-03
 */
package rtc

import "errors"

var (
	// ErrMediaAccessDenied indicates the platform refused camera/mic access
	ErrMediaAccessDenied = errors.New("media access denied")

	// ErrDeviceNotFound indicates the requested capture device does not exist
	ErrDeviceNotFound = errors.New("capture device not found")

	// ErrDeviceUnavailable indicates a device switch failed; the previous
	// device is left active
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrCameraLimitReached indicates the additional-camera limit is hit
	ErrCameraLimitReached = errors.New("camera limit reached")

	// ErrCaptureCancelled indicates the user dismissed a capture prompt.
	// Screen-share treats this as an expected outcome, not a failure.
	ErrCaptureCancelled = errors.New("capture cancelled")

	// ErrPeerNegotiationFailed indicates offer/answer negotiation failed
	ErrPeerNegotiationFailed = errors.New("peer negotiation failed")

	// ErrNoSender indicates a track replacement for a kind the connection
	// never sent; adding a new kind mid-call needs renegotiation
	ErrNoSender = errors.New("no outgoing sender for track kind")

	// ErrPeerNotFound indicates no connection entry exists for the participant
	ErrPeerNotFound = errors.New("peer not found")

	// ErrPeerClosed indicates the peer entry has been closed
	ErrPeerClosed = errors.New("peer is closed")

	// ErrRegistryClosed indicates the registry has been shut down
	ErrRegistryClosed = errors.New("peer registry is closed")

	// ErrControllerClosed indicates the controller has been disposed
	ErrControllerClosed = errors.New("call controller is closed")

	// ErrNoRecordingSink indicates recording was toggled without a sink
	ErrNoRecordingSink = errors.New("no recording sink configured")
)
