// Package identity owns the per-device signing keypair.
//
// The private key never leaves this package: only signatures, the
// public key, and attestations cross the boundary. Signing is
// serialized because the underlying secure-storage APIs on real
// devices require exclusive access and may block on user presence.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"c2pay/internal/security"
	"c2pay/internal/signer"
	"c2pay/internal/tee"
)

// Errors
var (
	ErrKeyNotFound = errors.New("identity: no device key found")
)

// Key file names within the key directory.
const (
	keyFileName      = "device.key"
	deviceIDFileName = "device.id"
)

// hkdfInfo labels derived keys so different uses cannot collide.
const storeHMACInfo = "c2pay-store-hmac-v1"

// Identity is the public identity of this device.
type Identity struct {
	DeviceID  string `json:"deviceId"`
	PublicKey string `json:"publicKey"` // base64 Ed25519
	CreatedAt string `json:"createdAt,omitempty"`
}

// Attestation is a self-signed statement of device identity and
// security-tier claims. The signature covers device id, public key and
// timestamp.
type Attestation struct {
	DeviceID          string   `json:"deviceId"`
	DeviceModel       string   `json:"deviceModel"`
	OSVersion         string   `json:"osVersion"`
	PublicKey         string   `json:"publicKey"`
	Tier              tee.Tier `json:"tier"`
	SecureHardware    bool     `json:"secureHardware"`
	BiometricHardware bool     `json:"biometricHardware"`
	Timestamp         string   `json:"timestamp"` // RFC3339
	Signature         string   `json:"attestationSignature"`
}

// attestationPayload is the exact signed portion of an attestation.
// Field order is the canonical serialization order.
type attestationPayload struct {
	DeviceID  string `json:"deviceId"`
	PublicKey string `json:"publicKey"`
	Timestamp string `json:"timestamp"`
}

// IntegrityReport is the result of a key integrity round trip.
type IntegrityReport struct {
	Valid               bool `json:"valid"`
	StillHardwareBacked bool `json:"stillHardwareBacked"`
	TamperDetected      bool `json:"tamperDetected"`
}

// Service manages the device keypair and signing operations.
type Service struct {
	mu       sync.Mutex
	dir      string
	caps     tee.Capabilities
	seed     *security.SecureBytes
	deviceID string
	created  time.Time
}

// NewService creates a service over the given key directory. The
// security capabilities are probed once at construction.
func NewService(dir string) *Service {
	return &Service{dir: dir, caps: tee.Probe()}
}

// Capabilities reports the platform's key-storage capabilities.
func (s *Service) Capabilities() tee.Capabilities {
	return s.caps
}

// GetOrCreateIdentity returns the device identity, generating and
// persisting a keypair and device id on first use. Idempotent.
func (s *Service) GetOrCreateIdentity() (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	priv, err := s.ensureKeyLocked()
	if err != nil {
		return Identity{}, err
	}

	return Identity{
		DeviceID:  s.deviceID,
		PublicKey: base64.StdEncoding.EncodeToString(signer.PublicKey(priv)),
		CreatedAt: s.created.UTC().Format(time.RFC3339),
	}, nil
}

// Sign signs payload with the device key. Returns ErrKeyNotFound when
// no identity has been created. At most one signing operation runs at
// a time.
func (s *Service) Sign(payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	priv, err := s.loadKeyLocked()
	if err != nil {
		return nil, err
	}
	return signer.Sign(priv, payload), nil
}

// Verify checks a signature against a base64 public key. Pure and
// total: malformed inputs yield false.
func Verify(payload, signature []byte, publicKeyB64 string) bool {
	pub, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return false
	}
	return signer.Verify(ed25519.PublicKey(pub), payload, signature)
}

// Attestation builds and self-signs a statement of device identity and
// security tier. Creates the identity lazily if needed.
func (s *Service) Attestation() (Attestation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	priv, err := s.ensureKeyLocked()
	if err != nil {
		return Attestation{}, err
	}

	hostname, _ := os.Hostname()
	att := Attestation{
		DeviceID:          s.deviceID,
		DeviceModel:       hostname,
		OSVersion:         runtime.GOOS + "/" + runtime.GOARCH,
		PublicKey:         base64.StdEncoding.EncodeToString(signer.PublicKey(priv)),
		Tier:              s.caps.Tier,
		SecureHardware:    s.caps.HardwareBacked,
		BiometricHardware: s.caps.BiometricHardware,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(attestationPayload{
		DeviceID:  att.DeviceID,
		PublicKey: att.PublicKey,
		Timestamp: att.Timestamp,
	})
	if err != nil {
		return Attestation{}, fmt.Errorf("marshal attestation payload: %w", err)
	}

	att.Signature = base64.StdEncoding.EncodeToString(signer.Sign(priv, payload))
	return att, nil
}

// VerifyAttestation checks an attestation's self-signature. Pure and
// total.
func VerifyAttestation(att Attestation) bool {
	payload, err := json.Marshal(attestationPayload{
		DeviceID:  att.DeviceID,
		PublicKey: att.PublicKey,
		Timestamp: att.Timestamp,
	})
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(att.Signature)
	if err != nil {
		return false
	}
	return Verify(payload, sig, att.PublicKey)
}

// VerifyKeyIntegrity performs a throwaway sign/verify round trip to
// confirm the key still operates. Any failure reports tampering.
func (s *Service) VerifyKeyIntegrity() IntegrityReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	priv, err := s.loadKeyLocked()
	if err != nil {
		return IntegrityReport{TamperDetected: true}
	}

	probe := make([]byte, 32)
	if _, err := rand.Read(probe); err != nil {
		return IntegrityReport{TamperDetected: true}
	}

	sig := signer.Sign(priv, probe)
	valid := signer.Verify(signer.PublicKey(priv), probe, sig)

	return IntegrityReport{
		Valid:               valid,
		StillHardwareBacked: s.caps.HardwareBacked,
		TamperDetected:      !valid,
	}
}

// HMACKey derives a 32-byte MAC key from the device key seed for the
// secure store. Creates the identity lazily if needed.
func (s *Service) HMACKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	priv, err := s.ensureKeyLocked()
	if err != nil {
		return nil, err
	}

	seed := priv.Seed()
	defer security.Wipe(seed)

	key := make([]byte, 32)
	r := hkdf.New(sha256.New, seed, nil, []byte(storeHMACInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive hmac key: %w", err)
	}
	return key, nil
}

// Reset destroys the device identity: key material is wiped and the
// persisted files removed. The next use generates a fresh identity.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seed != nil {
		s.seed.Destroy()
		s.seed = nil
	}
	s.deviceID = ""

	var firstErr error
	for _, name := range []string{keyFileName, deviceIDFileName} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ensureKeyLocked loads or creates the keypair. Caller holds s.mu.
func (s *Service) ensureKeyLocked() (ed25519.PrivateKey, error) {
	priv, err := s.loadKeyLocked()
	if err == nil {
		return priv, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}

	_, priv, err = signer.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := signer.SaveSeed(filepath.Join(s.dir, keyFileName), priv); err != nil {
		return nil, err
	}

	s.seed = security.FromBytes(priv)
	s.created = time.Now()

	if err := s.ensureDeviceIDLocked(); err != nil {
		return nil, err
	}
	return ed25519.PrivateKey(s.seed.Bytes()), nil
}

// loadKeyLocked returns the cached or persisted key without creating
// one. Caller holds s.mu.
func (s *Service) loadKeyLocked() (ed25519.PrivateKey, error) {
	if s.seed != nil {
		if b := s.seed.Bytes(); b != nil {
			if s.deviceID == "" {
				if err := s.ensureDeviceIDLocked(); err != nil {
					return nil, err
				}
			}
			return ed25519.PrivateKey(b), nil
		}
		s.seed = nil
	}

	path := filepath.Join(s.dir, keyFileName)
	priv, err := signer.LoadPrivateKey(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	info, err := os.Stat(path)
	if err == nil {
		s.created = info.ModTime()
	}

	s.seed = security.FromBytes(priv)
	if err := s.ensureDeviceIDLocked(); err != nil {
		return nil, err
	}
	return ed25519.PrivateKey(s.seed.Bytes()), nil
}

// ensureDeviceIDLocked loads or generates the persistent device id.
// Caller holds s.mu.
func (s *Service) ensureDeviceIDLocked() error {
	if s.deviceID != "" {
		return nil
	}

	path := filepath.Join(s.dir, deviceIDFileName)
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		s.deviceID = string(data)
		return nil
	}

	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		return fmt.Errorf("generate device id: %w", err)
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "device"
	}
	id := fmt.Sprintf("%s-%d-%s", hostname, time.Now().Unix(), hex.EncodeToString(suffix))

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id), 0600); err != nil {
		return fmt.Errorf("persist device id: %w", err)
	}
	s.deviceID = id
	return nil
}
