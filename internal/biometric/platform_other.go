//go:build !linux

package biometric

func newPlatformPrompt() Prompt {
	return unavailablePrompt{}
}
