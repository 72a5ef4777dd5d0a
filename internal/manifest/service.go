package manifest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"c2pay/internal/biometric"
	"c2pay/internal/identity"
	"c2pay/internal/motion"
)

// Service creates signed manifests for the local device.
type Service struct {
	id  *identity.Service
	now func() time.Time
}

// NewService creates a manifest service over the device identity.
func NewService(id *identity.Service) *Service {
	return &Service{id: id, now: time.Now}
}

// NewServiceAt creates a service with an injectable clock, for tests.
func NewServiceAt(id *identity.Service, now func() time.Time) *Service {
	return &Service{id: id, now: now}
}

// Create assembles and signs a manifest. Passive and active biometric
// evidence are optional; everything else is always present. The
// attestation is fetched fresh per manifest.
func (s *Service) Create(payment PaymentContext, behavioral BehavioralEvidence, passiveBio *motion.Profile, activeBio *biometric.Result) (Manifest, error) {
	att, err := s.id.Attestation()
	if err != nil {
		return Manifest{}, fmt.Errorf("fetch attestation: %w", err)
	}

	ident, err := s.id.GetOrCreateIdentity()
	if err != nil {
		return Manifest{}, fmt.Errorf("fetch identity: %w", err)
	}

	caps := s.id.Capabilities()
	integrity := s.id.VerifyKeyIntegrity()

	claim := Claim{
		Payment:           payment,
		Behavioral:        behavioral,
		PassiveBiometrics: passiveBio,
		ActiveBiometric:   activeBio,
		Device: DeviceDescriptor{
			Model:       att.DeviceModel,
			OS:          att.OSVersion,
			Fingerprint: deviceFingerprint(ident),
		},
		TEEDetails: TEEDetails{
			HardwareBacked:   caps.HardwareBacked,
			StorageLevel:     caps.Tier.String(),
			KeyIntegrity:     integrity.Valid,
			BiometricCapable: caps.BiometricHardware,
			AttestationChain: []string{
				"device:" + ident.DeviceID,
				"storage:" + caps.Tier.String(),
				fmt.Sprintf("secure_hardware:%t", caps.HardwareBacked),
				fmt.Sprintf("biometric_hw:%t", caps.BiometricHardware),
				fmt.Sprintf("key_integrity:%t", integrity.Valid),
			},
		},
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}

	payload, err := signingPayload(claim, att)
	if err != nil {
		return Manifest{}, err
	}

	sig, err := s.id.Sign(payload)
	if err != nil {
		return Manifest{}, fmt.Errorf("sign manifest: %w", err)
	}

	return Manifest{
		Version:     Version,
		Claim:       claim,
		Attestation: att,
		Signature:   base64.StdEncoding.EncodeToString(sig),
		PublicKey:   ident.PublicKey,
	}, nil
}

// deviceFingerprint derives a stable short fingerprint from the public
// identity.
func deviceFingerprint(ident identity.Identity) string {
	sum := sha256.Sum256([]byte(ident.DeviceID + "|" + ident.PublicKey))
	return hex.EncodeToString(sum[:8])
}
