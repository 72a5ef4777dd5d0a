//go:build !unix
// +build !unix

package security

import (
	"crypto/subtle"
	"runtime"
	"sync"
)

// SecureBytes is a byte slice that gets zeroed when freed.
// On this platform memory locking is not available; wiping still works.
type SecureBytes struct {
	data []byte
	mu   sync.Mutex
}

// FromBytes creates SecureBytes from existing data.
// The original slice is zeroed after copying.
func FromBytes(data []byte) *SecureBytes {
	sb := &SecureBytes{data: make([]byte, len(data))}
	copy(sb.data, data)
	Wipe(data)

	runtime.SetFinalizer(sb, func(s *SecureBytes) {
		s.Destroy()
	})
	return sb
}

// Bytes returns the underlying byte slice.
// Warning: the returned slice should not be stored; use it immediately.
func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Destroy zeroes the memory. Safe to call multiple times.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}
	Wipe(s.data)
	s.data = nil
	runtime.SetFinalizer(s, nil)
}

// Wipe zeroes a byte slice in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// ConstantTimeEqual compares two byte slices in constant time.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
