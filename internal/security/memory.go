//go:build unix
// +build unix

// Package security provides key-material hygiene utilities.
//
// This package implements:
// - Secure memory wiping (prevents key recovery from memory)
// - Memory locking (prevents swapping of sensitive data)
// - Constant-time comparisons (prevents timing attacks)
package security

import (
	"crypto/subtle"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// SecureBytes is a byte slice that gets zeroed when freed.
// Use this for sensitive data like key seeds.
type SecureBytes struct {
	data   []byte
	locked bool
	mu     sync.Mutex
}

// FromBytes creates SecureBytes from existing data.
// The original slice is zeroed after copying.
func FromBytes(data []byte) *SecureBytes {
	sb := &SecureBytes{data: make([]byte, len(data))}
	copy(sb.data, data)
	Wipe(data)

	// Best effort: lock the copy so it never hits swap. Failure is
	// non-fatal (insufficient privileges or RLIMIT_MEMLOCK).
	if err := unix.Mlock(sb.data); err == nil {
		sb.locked = true
	}

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

// Destroy zeroes and unlocks the memory. Safe to call multiple times.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}
	Wipe(s.data)
	if s.locked {
		unix.Munlock(s.data)
		s.locked = false
	}
	s.data = nil
	runtime.SetFinalizer(s, nil)
}

// Wipe zeroes a byte slice in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// Keep the slice alive until the zeroing is visible.
	runtime.KeepAlive(b)
}

// ConstantTimeEqual compares two byte slices in constant time.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
