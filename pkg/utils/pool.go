/*
 * @Author: Marlon.M
 * @Email: maiguangyang@163.com
 * @Date: 2026-03-02
 */
package utils

import (
	"sync"
)

// Default buffer size (UDP MTU 1500, rounded up).
// RTP reads from remote tracks almost never exceed this.
const defaultBufferSize = 2048

var bufferPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, defaultBufferSize)
	},
}

// GetBuffer returns a slice of the requested length.
// The slice may be reused, so callers must not retain it after PutBuffer.
func GetBuffer(length int) []byte {
	buf := bufferPool.Get().([]byte)

	// Oversized requests get a one-off allocation that never
	// enters the pool.
	if cap(buf) < length {
		return make([]byte, length)
	}

	return buf[:length]
}

// PutBuffer returns a slice to the pool
func PutBuffer(buf []byte) {
	// Keep the pool healthy: no small fragments, no large captives.
	if cap(buf) < defaultBufferSize {
		return
	}
	if cap(buf) > 4096 {
		return
	}

	bufferPool.Put(buf)
}
