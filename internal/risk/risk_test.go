package risk

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"c2pay/internal/biometric"
	"c2pay/internal/identity"
	"c2pay/internal/keystroke"
	"c2pay/internal/manifest"
	"c2pay/internal/motion"
	"c2pay/internal/session"
	"c2pay/internal/store"
)

type fakePrompt struct {
	hardware bool
	enrolled bool
	method   biometric.Method
	outcome  biometric.Outcome
	calls    int
}

func (p *fakePrompt) HardwarePresent() bool { return p.hardware }
func (p *fakePrompt) Enrolled() bool        { return p.enrolled }
func (p *fakePrompt) Method() biometric.Method {
	return p.method
}
func (p *fakePrompt) Challenge(ctx context.Context, message string) (biometric.Outcome, error) {
	p.calls++
	return p.outcome, nil
}

type fakeCamera struct {
	permission bool
	liveness   biometric.Liveness
}

func (c *fakeCamera) RequestPermission(ctx context.Context) bool { return c.permission }
func (c *fakeCamera) CaptureLiveness(ctx context.Context) (biometric.Liveness, error) {
	return c.liveness, nil
}

// testHarness wires an engine over real collaborators with a
// deterministic session clock.
type testHarness struct {
	engine    *Engine
	store     *store.Store
	keystroke *keystroke.Tracker
	session   *session.Tracker
	motion    *motion.Analyzer
	sessionMs int64
}

func newHarness(t *testing.T, threshold int, prompt biometric.Prompt, camera biometric.Camera) *testHarness {
	t.Helper()

	dir := t.TempDir()
	hmacKey := make([]byte, 32)
	_, err := rand.Read(hmacKey)
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(dir, "c2pay.db"), hmacKey, 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := &testHarness{store: st, keystroke: keystroke.NewTracker(), motion: motion.NewAnalyzer()}

	start := time.Now()
	h.session = session.NewTrackerAt(func() time.Time {
		return start.Add(time.Duration(h.sessionMs) * time.Millisecond)
	}, start)

	if prompt == nil {
		prompt = &fakePrompt{hardware: false, enrolled: false, method: biometric.MethodNone}
	}

	id := identity.NewService(dir)
	h.engine = New(Deps{
		Store:     st,
		Keystroke: h.keystroke,
		Session:   h.session,
		Motion:    h.motion,
		Verifier:  biometric.NewVerifier(prompt, camera),
		Manifests: manifest.NewService(id),
		Identity:  id,
	}, threshold)
	return h
}

// browse simulates the given session shape.
func (h *testHarness) browse(timeOnSiteMs int64, pages, searches int) {
	h.sessionMs = timeOnSiteMs
	for i := 0; i < pages; i++ {
		h.session.RecordPageView()
	}
	for i := 0; i < searches; i++ {
		h.session.RecordSearch()
	}
}

func TestAuthorizeNormalSessionNoBaselines(t *testing.T) {
	h := newHarness(t, 0, nil, nil)
	h.browse(45000, 3, 1)

	d, err := h.engine.Authorize(context.Background(), Payment{Amount: 499.99, Merchant: "TechStore", OrderID: "order-1"})
	require.NoError(t, err)

	assert.True(t, d.Approved)
	assert.False(t, d.MFATriggered)
	assert.Equal(t, 0, d.Assessment.TotalRisk)
	assert.Equal(t, 0, d.Assessment.Breakdown.Behavioral)
	assert.Equal(t, 0, d.Assessment.Breakdown.PassiveBio)
	assert.Empty(t, d.Assessment.RedFlags)
	assert.Equal(t, []string{"behavioral_analysis"}, d.Assessment.AuthMethodsUsed)

	r := manifest.Verify(d.Manifest, time.Now())
	assert.True(t, r.Valid, "manifest must verify: %v", r.Errors)
}

func TestAssessSuspiciousSession(t *testing.T) {
	h := newHarness(t, 0, nil, nil)
	h.browse(10000, 1, 0)

	a := h.engine.Assess(Payment{Amount: 499.99, Merchant: "TechStore"})

	assert.Equal(t, 85, a.Breakdown.Behavioral, "40 short session + 20 no search + 25 minimal browsing")
	assert.Equal(t, 0, a.Breakdown.PassiveBio)
	assert.Equal(t, 51, a.TotalRisk, "round(0.6*85)")
	assert.ElementsMatch(t, []string{"very short session", "no search before purchase", "minimal browsing"}, a.RedFlags)
}

func TestSuspiciousSessionBelowDefaultThreshold(t *testing.T) {
	h := newHarness(t, DefaultThreshold, nil, nil)
	h.browse(10000, 1, 0)

	d, err := h.engine.Authorize(context.Background(), Payment{Amount: 499.99, Merchant: "TechStore"})
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.False(t, d.MFATriggered, "51 < 60 must not trigger MFA")
}

func TestMFAUnavailableHardwareFailsClosed(t *testing.T) {
	h := newHarness(t, 50, nil, nil) // no hardware, no camera
	h.browse(10000, 1, 0)

	d, err := h.engine.Authorize(context.Background(), Payment{Amount: 499.99, Merchant: "TechStore"})
	assert.ErrorIs(t, err, ErrBiometricUnavailable)
	assert.False(t, d.Approved)
	assert.True(t, d.MFATriggered)
}

func TestMFACancelledWithoutFallbackFails(t *testing.T) {
	prompt := &fakePrompt{hardware: true, enrolled: true, method: biometric.MethodFaceID, outcome: biometric.OutcomeUserCancel}
	camera := &fakeCamera{permission: false}
	h := newHarness(t, 50, prompt, camera)
	h.browse(10000, 1, 0)

	d, err := h.engine.Authorize(context.Background(), Payment{Amount: 499.99, Merchant: "TechStore"})
	assert.ErrorIs(t, err, ErrBiometricFailed)
	assert.False(t, d.Approved)
	assert.Equal(t, 1, prompt.calls, "a cancelled challenge must not be retried")
}

func TestMFAPrimarySuccessApproves(t *testing.T) {
	prompt := &fakePrompt{hardware: true, enrolled: true, method: biometric.MethodFaceID, outcome: biometric.OutcomeSuccess}
	h := newHarness(t, 50, prompt, nil)
	h.browse(10000, 1, 0)

	d, err := h.engine.Authorize(context.Background(), Payment{Amount: 499.99, Merchant: "TechStore"})
	require.NoError(t, err)

	assert.True(t, d.Approved)
	assert.True(t, d.MFATriggered)
	assert.Contains(t, d.Assessment.AuthMethodsUsed, "faceId")
	require.NotNil(t, d.Manifest.Claim.ActiveBiometric)
	assert.True(t, d.Manifest.Claim.ActiveBiometric.Verified)
}

func TestMFASelfieFallbackApproves(t *testing.T) {
	prompt := &fakePrompt{hardware: true, enrolled: true, method: biometric.MethodFaceID, outcome: biometric.OutcomeFailed}
	camera := &fakeCamera{permission: true, liveness: biometric.Liveness{Captured: true, Live: true, Confidence: 90}}
	h := newHarness(t, 50, prompt, camera)
	h.browse(10000, 1, 0)

	d, err := h.engine.Authorize(context.Background(), Payment{Amount: 499.99, Merchant: "TechStore"})
	require.NoError(t, err)
	assert.True(t, d.Approved)
	assert.Contains(t, d.Assessment.AuthMethodsUsed, "selfie")
}

func TestTypingMismatchAgainstBaseline(t *testing.T) {
	h := newHarness(t, 0, nil, nil)
	h.browse(45000, 3, 1)

	// Divergent saved typing baseline.
	require.NoError(t, h.store.SetJSON("baseline/keystroke", keystroke.Profile{AvgDwellMs: 300, AvgFlightMs: 600}))

	a := h.engine.Assess(Payment{Amount: 50, Merchant: "TechStore"})
	assert.Equal(t, 30, a.Breakdown.Behavioral)
	assert.Contains(t, a.RedFlags, "typing mismatch")
}

func TestUnusualAmountAgainstLearnedTypical(t *testing.T) {
	h := newHarness(t, 0, nil, nil)
	h.browse(45000, 3, 1)

	require.NoError(t, h.store.SetJSON("baseline/typical_amount", 100.0))

	a := h.engine.Assess(Payment{Amount: 301, Merchant: "TechStore"})
	assert.Equal(t, 30, a.Breakdown.Behavioral)
	assert.Contains(t, a.RedFlags, "unusual amount")

	a = h.engine.Assess(Payment{Amount: 300, Merchant: "TechStore"})
	assert.Empty(t, a.RedFlags, "3x typical exactly is not unusual")
}

func TestPassiveMismatchAgainstBaseline(t *testing.T) {
	h := newHarness(t, 0, nil, nil)
	h.browse(45000, 3, 1)

	// Strongly divergent passive baseline against an empty analyzer.
	saved := motion.Profile{
		TiltPattern:      []float64{3.0, 3.0, 3.0},
		ShakeFrequency:   1.0,
		AvgPressure:      1.0,
		AvgFingerSize:    40,
		AvgTapDurationMs: 200,
	}
	require.NoError(t, h.store.SetJSON("baseline/passive", saved))

	a := h.engine.Assess(Payment{Amount: 50, Merchant: "TechStore"})
	assert.Greater(t, a.Breakdown.PassiveBio, 0)
	assert.Contains(t, a.RedFlags, "passive biometric mismatch")
	assert.Contains(t, a.AuthMethodsUsed, "passive_biometrics")
	assert.Equal(t, int(0.4*float64(a.Breakdown.PassiveBio)+0.5), a.TotalRisk)
}

func TestPressureOnlyDivergenceFlagsPassiveMismatch(t *testing.T) {
	h := newHarness(t, 0, nil, nil)
	h.browse(45000, 3, 1)

	// Only the touch-force channel differs from the live profile.
	// Force gaps are amplified during matching, so even a small one
	// drops the similarity below the mismatch floor.
	saved := motion.Profile{AvgPressure: 0.03125}
	require.NoError(t, h.store.SetJSON("baseline/passive", saved))

	a := h.engine.Assess(Payment{Amount: 50, Merchant: "TechStore"})
	assert.Equal(t, 78, a.Breakdown.PassiveBio)
	assert.Contains(t, a.RedFlags, "passive biometric mismatch")
	assert.Contains(t, a.AuthMethodsUsed, "passive_biometrics")
}

func TestFusionBounds(t *testing.T) {
	h := newHarness(t, 0, nil, nil)
	h.browse(5000, 0, 0)
	require.NoError(t, h.store.SetJSON("baseline/keystroke", keystroke.Profile{AvgDwellMs: 500, AvgFlightMs: 900}))
	require.NoError(t, h.store.SetJSON("baseline/typical_amount", 1.0))

	// Every behavioral signal fires: 30+40+20+25+30 clamps to 100.
	a := h.engine.Assess(Payment{Amount: 10000, Merchant: "TechStore"})
	assert.Equal(t, 100, a.Breakdown.Behavioral)
	assert.GreaterOrEqual(t, a.TotalRisk, 0)
	assert.LessOrEqual(t, a.TotalRisk, 100)
	assert.Equal(t, 60, a.TotalRisk, "round(0.6*100 + 0.4*0)")
}

func TestSaveProfilesLearnsBaselines(t *testing.T) {
	h := newHarness(t, 0, nil, nil)
	h.browse(45000, 3, 1)

	_, err := h.engine.Authorize(context.Background(), Payment{Amount: 120, Merchant: "TechStore"})
	require.NoError(t, err)
	require.NoError(t, h.engine.SaveProfiles())

	var typical float64
	require.NoError(t, h.store.GetJSON("baseline/typical_amount", &typical))
	assert.Equal(t, 120.0, typical)

	var pattern session.Pattern
	require.NoError(t, h.store.GetJSON("baseline/session", &pattern))
	assert.Equal(t, 3, pattern.PagesViewed)

	var typing keystroke.Profile
	require.NoError(t, h.store.GetJSON("baseline/keystroke", &typing))
}

func TestSaveProfilesBeforeAuthorizationSkipsAmount(t *testing.T) {
	h := newHarness(t, 0, nil, nil)
	h.browse(45000, 3, 1)

	require.NoError(t, h.engine.SaveProfiles())

	var typical float64
	err := h.store.GetJSON("baseline/typical_amount", &typical)
	assert.ErrorIs(t, err, store.ErrNotFound, "no amount learned before an authorization")
}

func TestVerifyLast(t *testing.T) {
	h := newHarness(t, 0, nil, nil)

	_, err := h.engine.VerifyLast()
	assert.ErrorIs(t, err, ErrNoManifest)

	h.browse(45000, 3, 1)
	_, err = h.engine.Authorize(context.Background(), Payment{Amount: 50, Merchant: "TechStore"})
	require.NoError(t, err)

	report, err := h.engine.VerifyLast()
	require.NoError(t, err)
	assert.True(t, report.Valid, "errors: %v", report.Errors)
	assert.True(t, report.TEEStatus.AttestationChainValid)
}
