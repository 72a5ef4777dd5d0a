package manifest

import (
	"encoding/base64"
	"strings"
	"time"

	"c2pay/internal/identity"
	"c2pay/internal/tee"
)

// maxAge is the manifest freshness window.
const maxAge = 5 * time.Minute

// minChainEntries is the minimum attestation chain length considered
// well-formed.
const minChainEntries = 4

// Checks enumerates the individual verification checks.
type Checks struct {
	SignatureValid   bool `json:"signatureValid"`
	AttestationValid bool `json:"attestationValid"`
	TimestampValid   bool `json:"timestampValid"`
}

// Report is the result of verifying a manifest. Verification is
// expected to run on possibly tampered data, so failures are
// enumerated here rather than returned as errors.
type Report struct {
	Valid  bool     `json:"valid"`
	Checks Checks   `json:"checks"`
	Errors []string `json:"errors"`
}

// TEEStatus is the additional chain-of-trust result of VerifyWithChain.
type TEEStatus struct {
	AttestationChainValid bool   `json:"attestationChainValid"`
	HardwareBackedClaimed bool   `json:"hardwareBackedClaimed"`
	StorageLevel          string `json:"storageLevel"`
	KeyIntegrityValid     bool   `json:"keyIntegrityValid"`
}

// ChainReport combines the base report with TEE chain checks.
type ChainReport struct {
	Report
	TEEStatus TEEStatus `json:"teeStatus"`
}

// Verify re-derives the canonical serialization and checks the primary
// signature, the nested attestation's self-signature, and timestamp
// freshness relative to now. Pure and total: it never errors and never
// mutates the manifest.
func Verify(m Manifest, now time.Time) Report {
	var r Report

	payload, err := signingPayload(m.Claim, m.Attestation)
	if err == nil {
		sig, decErr := base64.StdEncoding.DecodeString(m.Signature)
		r.Checks.SignatureValid = decErr == nil && identity.Verify(payload, sig, m.PublicKey)
	}
	if !r.Checks.SignatureValid {
		r.Errors = append(r.Errors, "invalid manifest signature")
	}

	r.Checks.AttestationValid = identity.VerifyAttestation(m.Attestation)
	if !r.Checks.AttestationValid {
		r.Errors = append(r.Errors, "invalid device attestation")
	}

	if ts, parseErr := time.Parse(time.RFC3339, m.Claim.Timestamp); parseErr == nil {
		age := now.Sub(ts)
		r.Checks.TimestampValid = age < maxAge
	}
	if !r.Checks.TimestampValid {
		r.Errors = append(r.Errors, "timestamp too old")
	}

	r.Valid = r.Checks.SignatureValid && r.Checks.AttestationValid && r.Checks.TimestampValid
	return r
}

// VerifyWithChain runs Verify and additionally validates the
// attestation chain shape and the consistency of the manifest's
// key-custody claims. The chain is valid only if it has at least four
// entries and every entry is key:value shaped.
func VerifyWithChain(m Manifest, now time.Time) ChainReport {
	cr := ChainReport{Report: Verify(m, now)}

	details := m.Claim.TEEDetails
	cr.TEEStatus = TEEStatus{
		HardwareBackedClaimed: details.HardwareBacked,
		StorageLevel:          details.StorageLevel,
		KeyIntegrityValid:     details.KeyIntegrity,
	}

	cr.TEEStatus.AttestationChainValid = chainWellFormed(details.AttestationChain)
	if !cr.TEEStatus.AttestationChainValid {
		cr.Errors = append(cr.Errors, "invalid attestation chain")
		cr.Valid = false
	}

	if details.HardwareBacked && details.StorageLevel == tee.TierSoftware.String() {
		cr.Errors = append(cr.Errors, "claims hardware-backed but software storage")
		cr.Valid = false
	}

	return cr
}

// chainWellFormed checks the key:value shape of every chain entry.
func chainWellFormed(chain []string) bool {
	if len(chain) < minChainEntries {
		return false
	}
	for _, entry := range chain {
		if !strings.Contains(entry, ":") {
			return false
		}
	}
	return true
}
