package biometric

import "context"

// NewPlatformPrompt returns the challenge backend for this platform.
func NewPlatformPrompt() Prompt {
	return newPlatformPrompt()
}

// UnavailablePrompt returns a backend that reports missing hardware,
// for configurations with the platform backend disabled.
func UnavailablePrompt() Prompt {
	return unavailablePrompt{}
}

// unavailablePrompt is the backend for platforms without biometric
// support. Every challenge reports missing hardware.
type unavailablePrompt struct{}

func (unavailablePrompt) HardwarePresent() bool { return false }
func (unavailablePrompt) Enrolled() bool        { return false }
func (unavailablePrompt) Method() Method        { return MethodNone }

func (unavailablePrompt) Challenge(ctx context.Context, message string) (Outcome, error) {
	return OutcomeNotAvailable, nil
}

// NoCamera is a Camera backend for environments without a camera
// collaborator. Selfie verification through it always fails closed.
type NoCamera struct{}

func (NoCamera) RequestPermission(ctx context.Context) bool { return false }

func (NoCamera) CaptureLiveness(ctx context.Context) (Liveness, error) {
	return Liveness{}, nil
}
