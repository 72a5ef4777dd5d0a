package identity

import (
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(t.TempDir())
}

func TestSignBeforeIdentityFails(t *testing.T) {
	s := newTestService(t)

	_, err := s.Sign([]byte("payload"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyNotFound))
}

func TestGetOrCreateIdentityIsIdempotent(t *testing.T) {
	s := newTestService(t)

	first, err := s.GetOrCreateIdentity()
	require.NoError(t, err)
	assert.NotEmpty(t, first.DeviceID)
	assert.NotEmpty(t, first.PublicKey)

	second, err := s.GetOrCreateIdentity()
	require.NoError(t, err)
	assert.Equal(t, first.DeviceID, second.DeviceID)
	assert.Equal(t, first.PublicKey, second.PublicKey)
}

func TestIdentitySurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	first, err := NewService(dir).GetOrCreateIdentity()
	require.NoError(t, err)

	second, err := NewService(dir).GetOrCreateIdentity()
	require.NoError(t, err)
	assert.Equal(t, first.DeviceID, second.DeviceID)
	assert.Equal(t, first.PublicKey, second.PublicKey)
}

func TestSignAndVerify(t *testing.T) {
	s := newTestService(t)
	id, err := s.GetOrCreateIdentity()
	require.NoError(t, err)

	payload := []byte("claim bytes")
	sig, err := s.Sign(payload)
	require.NoError(t, err)

	assert.True(t, Verify(payload, sig, id.PublicKey))
	assert.False(t, Verify([]byte("other bytes"), sig, id.PublicKey))
	assert.False(t, Verify(payload, sig, "not base64!!"))
	assert.False(t, Verify(payload, []byte("junk"), id.PublicKey))
}

func TestConcurrentSigning(t *testing.T) {
	s := newTestService(t)
	id, err := s.GetOrCreateIdentity()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sig, err := s.Sign([]byte("concurrent"))
			if err != nil {
				t.Errorf("sign: %v", err)
				return
			}
			if !Verify([]byte("concurrent"), sig, id.PublicKey) {
				t.Error("bad signature under concurrency")
			}
		}()
	}
	wg.Wait()
}

func TestAttestation(t *testing.T) {
	s := newTestService(t)

	att, err := s.Attestation()
	require.NoError(t, err)

	assert.NotEmpty(t, att.DeviceID)
	assert.NotEmpty(t, att.PublicKey)
	assert.NotEmpty(t, att.Timestamp)
	assert.True(t, VerifyAttestation(att), "fresh attestation must verify")

	// Any mutation of the signed fields must invalidate it.
	tampered := att
	tampered.DeviceID = "someone-else"
	assert.False(t, VerifyAttestation(tampered))

	tampered = att
	tampered.Timestamp = "2020-01-01T00:00:00Z"
	assert.False(t, VerifyAttestation(tampered))
}

func TestAttestationDoesNotLeakPrivateKey(t *testing.T) {
	s := newTestService(t)

	att, err := s.Attestation()
	require.NoError(t, err)

	pub, err := base64.StdEncoding.DecodeString(att.PublicKey)
	require.NoError(t, err)
	assert.Len(t, pub, 32, "only the 32-byte public key may be exported")
}

func TestVerifyKeyIntegrity(t *testing.T) {
	s := newTestService(t)

	// Before any identity exists the check reports tampering.
	report := s.VerifyKeyIntegrity()
	assert.False(t, report.Valid)
	assert.True(t, report.TamperDetected)

	_, err := s.GetOrCreateIdentity()
	require.NoError(t, err)

	report = s.VerifyKeyIntegrity()
	assert.True(t, report.Valid)
	assert.False(t, report.TamperDetected)
}

func TestHMACKeyIsStable(t *testing.T) {
	dir := t.TempDir()
	s := NewService(dir)

	k1, err := s.HMACKey()
	require.NoError(t, err)
	assert.Len(t, k1, 32)

	k2, err := NewService(dir).HMACKey()
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "hmac key must be derivable across restarts")
}

func TestReset(t *testing.T) {
	s := newTestService(t)

	first, err := s.GetOrCreateIdentity()
	require.NoError(t, err)

	require.NoError(t, s.Reset())

	if _, err := s.Sign([]byte("x")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after reset, got %v", err)
	}

	second, err := s.GetOrCreateIdentity()
	require.NoError(t, err)
	assert.NotEqual(t, first.PublicKey, second.PublicKey, "reset must yield a fresh keypair")
}
