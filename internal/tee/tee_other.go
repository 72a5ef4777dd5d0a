//go:build !linux
// +build !linux

package tee

// probePlatform is the fallback for platforms without a supported
// hardware probe. The software tier is the honest default: a stronger
// tier must never be claimed without evidence.
func probePlatform() Capabilities {
	return Capabilities{Tier: TierSoftware}
}
