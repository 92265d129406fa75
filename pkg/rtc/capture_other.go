//go:build !(linux && cgo)

/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-04
 */
package rtc

// NewSystemCaptureSource returns a stub backend on platforms without a
// capture implementation. Every open fails with ErrDeviceNotFound; inject
// a CaptureSource of your own to run elsewhere.
func NewSystemCaptureSource() (CaptureSource, error) {
	return &stubSource{}, nil
}

type stubSource struct{}

func (s *stubSource) Devices() ([]Device, error) { return nil, nil }

func (s *stubSource) OnDeviceChange(fn func()) (cancel func()) { return func() {} }

func (s *stubSource) OpenCamera(deviceID string) (Track, error) {
	return nil, ErrDeviceNotFound
}

func (s *stubSource) OpenMicrophone(deviceID string) (Track, error) {
	return nil, ErrDeviceNotFound
}

func (s *stubSource) OpenScreen() (Track, error) {
	return nil, ErrDeviceNotFound
}
