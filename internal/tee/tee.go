// Package tee probes the key-storage security tier of the platform.
//
// The probe is read-only: it reports what isolation level the device
// can offer for the signing key (software-only, hardware-isolated, or
// a dedicated security module) and whether biometric hardware is
// present. It never changes platform state.
package tee

import (
	"fmt"
	"os"
	"runtime"
)

// Tier is the isolation level of key storage.
type Tier int

const (
	// TierSoftware means the key lives in ordinary process memory and
	// on the regular filesystem.
	TierSoftware Tier = iota
	// TierHardware means a hardware-isolated element (TPM, Secure
	// Enclave) protects the key.
	TierHardware
	// TierStrongBox means a dedicated tamper-resistant security module
	// is available.
	TierStrongBox
)

// String returns the wire name of the tier.
func (t Tier) String() string {
	switch t {
	case TierHardware:
		return "hardware"
	case TierStrongBox:
		return "strongbox"
	default:
		return "software"
	}
}

// ParseTier maps a wire name back to a Tier. Unknown names map to
// TierSoftware, the weakest claim.
func ParseTier(s string) Tier {
	switch s {
	case "hardware":
		return TierHardware
	case "strongbox":
		return TierStrongBox
	default:
		return TierSoftware
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	*t = ParseTier(string(text))
	return nil
}

// Capabilities describes the security features available for key
// custody on this device.
type Capabilities struct {
	Tier              Tier   `json:"tier"`
	HardwareBacked    bool   `json:"hardware_backed"`
	BiometricHardware bool   `json:"biometric_hardware"`
	Platform          string `json:"platform"`
	Detail            string `json:"detail,omitempty"`
}

// Probe inspects the platform and reports its capabilities.
func Probe() Capabilities {
	caps := probePlatform()
	caps.Platform = fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	caps.HardwareBacked = caps.Tier != TierSoftware
	return caps
}

// fileExists reports whether path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
