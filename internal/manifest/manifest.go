// Package manifest assembles, signs and verifies attestation bundles.
//
// A manifest binds the payment context, behavioral evidence, biometric
// results and device attestation for one transaction into a single
// signed document. The signature covers the canonical serialization of
// exactly {claim, attestation}; mutating any field of either
// invalidates it. Once signed a manifest is immutable - verification
// only reports, it never mutates.
package manifest

import (
	"encoding/json"
	"fmt"

	"c2pay/internal/biometric"
	"c2pay/internal/identity"
	"c2pay/internal/keystroke"
	"c2pay/internal/motion"
	"c2pay/internal/session"
)

// Version is the manifest format version.
const Version = "1.0"

// PaymentContext describes the transaction being authorized.
type PaymentContext struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Merchant string  `json:"merchant"`
	OrderID  string  `json:"orderId"`
}

// BehavioralEvidence carries the fused risk score and the session's
// behavioral profiles.
type BehavioralEvidence struct {
	RiskScore int                `json:"riskScore"`
	Keystroke *keystroke.Profile `json:"keystroke,omitempty"`
	Session   *session.Pattern   `json:"session,omitempty"`
}

// DeviceDescriptor summarizes the issuing device.
type DeviceDescriptor struct {
	Model       string `json:"model"`
	OS          string `json:"os"`
	Fingerprint string `json:"fingerprint"`
}

// TEEDetails summarizes the key-custody claims embedded in a claim.
type TEEDetails struct {
	HardwareBacked   bool     `json:"hardwareBacked"`
	StorageLevel     string   `json:"storageLevel"`
	KeyIntegrity     bool     `json:"keyIntegrity"`
	BiometricCapable bool     `json:"biometricCapable"`
	AttestationChain []string `json:"attestationChain"`
}

// Claim is the signed statement at the center of a manifest.
type Claim struct {
	Payment           PaymentContext     `json:"payment"`
	Behavioral        BehavioralEvidence `json:"behavioral"`
	PassiveBiometrics *motion.Profile    `json:"passiveBiometrics,omitempty"`
	ActiveBiometric   *biometric.Result  `json:"activeBiometric,omitempty"`
	Device            DeviceDescriptor   `json:"device"`
	TEEDetails        TEEDetails         `json:"teeDetails"`
	Timestamp         string             `json:"timestamp"` // RFC3339
}

// Manifest is a signed attestation bundle.
type Manifest struct {
	Version     string               `json:"version"`
	Claim       Claim                `json:"claim"`
	Attestation identity.Attestation `json:"attestation"`
	Signature   string               `json:"signature"`
	PublicKey   string               `json:"publicKey"`
}

// signingEnvelope is the exact signed portion of a manifest. The
// canonical serialization is its JSON encoding: field order is fixed
// by this declaration, there are no maps anywhere in the envelope, and
// the signature field is excluded by construction.
type signingEnvelope struct {
	Claim       Claim                `json:"claim"`
	Attestation identity.Attestation `json:"attestation"`
}

// signingPayload produces the canonical bytes covered by the manifest
// signature.
func signingPayload(claim Claim, att identity.Attestation) ([]byte, error) {
	payload, err := json.Marshal(signingEnvelope{Claim: claim, Attestation: att})
	if err != nil {
		return nil, fmt.Errorf("canonicalize manifest: %w", err)
	}
	return payload, nil
}
