package biometric

import "context"

// ChallengeState enumerates the steps of the challenge-with-fallback
// flow. The flow is linear: a failed primary challenge leads to exactly
// one selfie fallback attempt, then the flow resolves. A cancelled
// challenge is a user decision and is never retried.
type ChallengeState int

const (
	StateNotAttempted ChallengeState = iota
	StatePrimaryFailed
	StateFallbackAttempted
	StateResolved
)

// String returns a readable state name.
func (s ChallengeState) String() string {
	switch s {
	case StateNotAttempted:
		return "not_attempted"
	case StatePrimaryFailed:
		return "primary_failed"
	case StateFallbackAttempted:
		return "fallback_attempted"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Challenge is one challenge-with-fallback flow.
type Challenge struct {
	verifier *Verifier
	state    ChallengeState
	result   Result
}

// NewChallenge starts a flow in StateNotAttempted.
func NewChallenge(v *Verifier) *Challenge {
	return &Challenge{verifier: v, result: Unverified()}
}

// State returns the current state.
func (c *Challenge) State() ChallengeState { return c.state }

// Result returns the terminal result. Only meaningful once the state
// is StateResolved.
func (c *Challenge) Result() Result { return c.result }

// Run executes the flow to resolution and returns the terminal result.
// Policy: the selfie fallback is attempted on any non-success of the
// primary challenge, including absent hardware.
func (c *Challenge) Run(ctx context.Context, message string) Result {
	if c.state != StateNotAttempted {
		return c.result
	}

	primary := c.verifier.Verify(ctx, message)
	if primary.Verified {
		c.result = primary
		c.state = StateResolved
		return c.result
	}

	c.state = StatePrimaryFailed

	fallback := c.verifier.VerifySelfie(ctx)
	c.state = StateFallbackAttempted

	c.result = fallback
	c.state = StateResolved
	return c.result
}
