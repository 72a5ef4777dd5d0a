//go:build linux
// +build linux

package tee

import (
	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
)

// TPM device paths, preferring the in-kernel resource manager.
var tpmDevicePaths = []string{"/dev/tpmrm0", "/dev/tpm0"}

// probePlatform classifies the key-storage tier on Linux.
//
// A reachable TPM 2.0 upgrades the tier to hardware. StrongBox-class
// modules do not exist on stock Linux, so the strongbox tier is never
// reported here.
func probePlatform() Capabilities {
	caps := Capabilities{
		Tier:              TierSoftware,
		BiometricHardware: fprintdPresent(),
	}

	for _, path := range tpmDevicePaths {
		if !fileExists(path) {
			continue
		}
		tpmTransport, err := transport.OpenTPM(path)
		if err != nil {
			caps.Detail = "tpm device present but not accessible"
			continue
		}
		// Confirm the device actually answers TPM 2.0 commands.
		probe := tpm2.GetCapability{
			Capability:    tpm2.TPMCapTPMProperties,
			Property:      uint32(tpm2.TPMPTManufacturer),
			PropertyCount: 1,
		}
		_, err = probe.Execute(tpmTransport)
		tpmTransport.Close()
		if err == nil {
			caps.Tier = TierHardware
			caps.Detail = "tpm 2.0 at " + path
			return caps
		}
		caps.Detail = "tpm device did not respond to TPM 2.0 commands"
	}

	return caps
}

// fprintdPresent reports whether a fingerprint reader daemon is
// installed, based on the service binaries shipped by distros.
func fprintdPresent() bool {
	return fileExists("/usr/libexec/fprintd") ||
		fileExists("/usr/lib/fprintd/fprintd") ||
		fileExists("/usr/sbin/fprintd")
}
