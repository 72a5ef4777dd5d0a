// Package biometric performs active biometric challenges.
//
// The verifier wraps a platform challenge backend (Prompt) and a
// liveness-camera backend (Camera). Every non-success outcome from the
// platform - cancellation, lockout, missing enrollment, missing
// hardware - is classified uniformly as an unverified result; no
// platform error escapes this boundary.
package biometric

import (
	"context"
)

// Method identifies how a verification was performed. Wire names match
// the manifest format.
type Method string

const (
	MethodFaceID  Method = "faceId"
	MethodTouchID Method = "touchId"
	MethodSelfie  Method = "selfie"
	MethodNone    Method = "none"
)

// Result is the outcome of an active biometric verification.
// Verified=false always comes with MethodNone and Confidence 0.
type Result struct {
	Method     Method `json:"method"`
	Verified   bool   `json:"verified"`
	Confidence int    `json:"confidence"`
}

// Unverified is the uniform failure result.
func Unverified() Result {
	return Result{Method: MethodNone, Verified: false, Confidence: 0}
}

// Outcome is a platform challenge outcome code.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeUserCancel    Outcome = "user_cancel"
	OutcomeSystemCancel  Outcome = "system_cancel"
	OutcomeAppCancel     Outcome = "app_cancel"
	OutcomeFailed        Outcome = "authentication_failed"
	OutcomeLockout       Outcome = "biometry_lockout"
	OutcomeNotEnrolled   Outcome = "biometry_not_enrolled"
	OutcomeNotAvailable  Outcome = "biometry_not_available"
	OutcomePasscodeUnset Outcome = "passcode_not_set"
)

// Prompt is the platform biometric challenge backend.
type Prompt interface {
	// HardwarePresent reports whether biometric hardware exists.
	HardwarePresent() bool
	// Enrolled reports whether the user has enrolled a biometric.
	Enrolled() bool
	// Method reports the challenge method the hardware offers.
	Method() Method
	// Challenge runs one challenge and returns its outcome. The
	// outcome carries all failure detail; err is reserved for
	// transport-level problems and is also treated as non-success.
	Challenge(ctx context.Context, message string) (Outcome, error)
}

// Liveness is the result of a selfie liveness capture.
type Liveness struct {
	Captured   bool
	Live       bool
	Confidence int
}

// Camera is the selfie-liveness backend.
type Camera interface {
	// RequestPermission asks for camera access.
	RequestPermission(ctx context.Context) bool
	// CaptureLiveness runs an explicit capture plus liveness check.
	CaptureLiveness(ctx context.Context) (Liveness, error)
}

// Verifier runs active biometric challenges with a selfie fallback.
type Verifier struct {
	prompt Prompt
	camera Camera
}

// NewVerifier creates a verifier over the given backends.
func NewVerifier(prompt Prompt, camera Camera) *Verifier {
	return &Verifier{prompt: prompt, camera: camera}
}

// Available reports whether a primary challenge can be issued:
// hardware present AND user enrolled.
func (v *Verifier) Available() bool {
	return v.prompt.HardwarePresent() && v.prompt.Enrolled()
}

// Verify runs the primary platform challenge. All cancel, lockout,
// not-enrolled and not-available outcomes yield an unverified result.
func (v *Verifier) Verify(ctx context.Context, message string) Result {
	if !v.Available() {
		return Unverified()
	}

	outcome, err := v.prompt.Challenge(ctx, message)
	if err != nil || outcome != OutcomeSuccess {
		return Unverified()
	}

	method := v.prompt.Method()
	if method == MethodNone {
		return Unverified()
	}
	return Result{Method: method, Verified: true, Confidence: 100}
}

// VerifySelfie runs the fallback liveness check. It requires a camera
// permission grant and a completed live capture; absence of either
// yields an unverified result. It never auto-approves.
func (v *Verifier) VerifySelfie(ctx context.Context) Result {
	if v.camera == nil {
		return Unverified()
	}
	if !v.camera.RequestPermission(ctx) {
		return Unverified()
	}

	liveness, err := v.camera.CaptureLiveness(ctx)
	if err != nil || !liveness.Captured || !liveness.Live {
		return Unverified()
	}
	return Result{Method: MethodSelfie, Verified: true, Confidence: liveness.Confidence}
}
