// Package risk fuses behavioral and passive-biometric signals into a
// per-transaction risk score and decides whether an active biometric
// challenge is required before authorization.
//
// The engine takes all collaborators as explicit dependencies so tests
// can inject fixture stores and fake biometric backends. Risk
// computation is total: missing baselines contribute zero risk, never
// errors. Within one authorization the risk score is always computed
// before any challenge is issued, and the manifest is signed strictly
// after the challenge outcome is known.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"c2pay/internal/biometric"
	"c2pay/internal/identity"
	"c2pay/internal/keystroke"
	"c2pay/internal/logging"
	"c2pay/internal/manifest"
	"c2pay/internal/motion"
	"c2pay/internal/session"
	"c2pay/internal/store"
)

// Errors surfaced by Authorize. Both are fatal to the attempt; a risk
// decision that requires MFA is never silently downgraded to approval.
var (
	ErrBiometricUnavailable = errors.New("risk: biometric verification required but unavailable")
	ErrBiometricFailed      = errors.New("risk: biometric verification failed")
	ErrNoManifest           = errors.New("risk: no cached manifest")
)

// DefaultThreshold is the fused-risk score at which MFA is required.
const DefaultThreshold = 60

// Scoring constants. Behavioral risk accumulates from independent
// signals and is clamped to [0,100] before fusion.
const (
	similarityFloor = 50.0 // baseline similarity below this is a mismatch
	shortSessionMs  = 30000
	minPagesViewed  = 2
	amountMultiple  = 3.0

	typingMismatchWeight  = 30
	shortSessionWeight    = 40
	noSearchWeight        = 20
	minimalBrowsingWeight = 25
	unusualAmountWeight   = 30

	behavioralShare = 0.6
	passiveShare    = 0.4
)

// Store keys for baselines and the manifest cache.
const (
	keyKeystrokeBaseline = "baseline/keystroke"
	keySessionBaseline   = "baseline/session"
	keyPassiveBaseline   = "baseline/passive"
	keyTypicalAmount     = "baseline/typical_amount"
	keyLastManifest      = "manifest/last"
	keyVisitCount        = "counter/visits"
)

// Payment is the transaction under authorization.
type Payment struct {
	Amount   float64 `json:"amount"`
	Merchant string  `json:"merchant"`
	OrderID  string  `json:"orderId"`
}

// Breakdown holds the per-channel sub-scores. Session is the portion
// of the behavioral score contributed by session shape alone; it is
// informational and does not enter the fusion separately.
type Breakdown struct {
	Behavioral int `json:"behavioral"`
	PassiveBio int `json:"passiveBio"`
	Session    int `json:"session"`
}

// Assessment is the fused risk result.
type Assessment struct {
	TotalRisk       int       `json:"totalRisk"`
	Breakdown       Breakdown `json:"breakdown"`
	RedFlags        []string  `json:"redFlags"`
	AuthMethodsUsed []string  `json:"authMethodsUsed"`
}

// Decision is the outcome of one authorization attempt.
type Decision struct {
	Approved     bool              `json:"approved"`
	MFATriggered bool              `json:"mfaTriggered"`
	Assessment   Assessment        `json:"riskAssessment"`
	Manifest     manifest.Manifest `json:"manifest"`
}

// Deps are the engine's collaborators. All are required except Logger,
// which defaults to the global logger.
type Deps struct {
	Store     *store.Store
	Keystroke *keystroke.Tracker
	Session   *session.Tracker
	Motion    *motion.Analyzer
	Verifier  *biometric.Verifier
	Manifests *manifest.Service
	Identity  *identity.Service
	Logger    *logging.Logger
}

// Engine decides per payment attempt whether passive evidence
// suffices or an active challenge must be interposed.
type Engine struct {
	mu        sync.Mutex // serializes SaveProfiles (wholesale overwrite)
	deps      Deps
	threshold int
	log       *logging.Logger
	now       func() time.Time

	lastAmount float64 // last successfully authorized amount, pending learn
}

// New creates an engine with the given dependencies. A non-positive
// threshold selects DefaultThreshold.
func New(deps Deps, threshold int) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	log := deps.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Engine{
		deps:      deps,
		threshold: threshold,
		log:       log.WithComponent("risk"),
		now:       time.Now,
	}
}

// Assess computes the fused risk for a payment against the saved
// baselines. It is a pure read of the trackers and the store; missing
// baselines contribute zero risk.
func (e *Engine) Assess(p Payment) Assessment {
	var a Assessment
	behavioral, sessionPart := e.behavioralRisk(p, &a)
	passive := e.passiveRisk(&a)

	a.Breakdown = Breakdown{
		Behavioral: behavioral,
		PassiveBio: passive,
		Session:    sessionPart,
	}
	a.TotalRisk = clampScore(int(math.Round(
		float64(behavioral)*behavioralShare + float64(passive)*passiveShare)))

	a.AuthMethodsUsed = []string{"behavioral_analysis"}
	if passive > 0 {
		a.AuthMethodsUsed = append(a.AuthMethodsUsed, "passive_biometrics")
	}
	return a
}

// behavioralRisk scores typing, session shape and amount signals.
// It returns the clamped behavioral score and the session-only portion.
func (e *Engine) behavioralRisk(p Payment, a *Assessment) (behavioral, sessionPart int) {
	score := 0

	var savedTyping keystroke.Profile
	if err := e.deps.Store.GetJSON(keyKeystrokeBaseline, &savedTyping); err == nil {
		similarity := keystroke.Compare(e.deps.Keystroke.Profile(), savedTyping)
		if similarity < similarityFloor {
			score += typingMismatchWeight
			a.RedFlags = append(a.RedFlags, "typing mismatch")
		}
	}

	pattern := e.deps.Session.Pattern()
	if pattern.TimeOnSiteMs < shortSessionMs {
		score += shortSessionWeight
		sessionPart += shortSessionWeight
		a.RedFlags = append(a.RedFlags, "very short session")
	}
	if pattern.SearchCount == 0 {
		score += noSearchWeight
		sessionPart += noSearchWeight
		a.RedFlags = append(a.RedFlags, "no search before purchase")
	}
	if pattern.PagesViewed < minPagesViewed {
		score += minimalBrowsingWeight
		sessionPart += minimalBrowsingWeight
		a.RedFlags = append(a.RedFlags, "minimal browsing")
	}

	var typical float64
	if err := e.deps.Store.GetJSON(keyTypicalAmount, &typical); err == nil && typical > 0 {
		if p.Amount > amountMultiple*typical {
			score += unusualAmountWeight
			a.RedFlags = append(a.RedFlags, "unusual amount")
		}
	}

	return clampScore(score), clampScore(sessionPart)
}

// passiveRisk scores the motion/touch channel against its baseline.
func (e *Engine) passiveRisk(a *Assessment) int {
	var saved motion.Profile
	if err := e.deps.Store.GetJSON(keyPassiveBaseline, &saved); err != nil {
		return 0
	}

	match := motion.Match(saved, e.deps.Motion.Profile())
	if match >= similarityFloor {
		return 0
	}
	a.RedFlags = append(a.RedFlags, "passive biometric mismatch")
	return clampScore(int(math.Round(100 - match)))
}

// Authorize runs the full decision flow for one payment attempt: risk
// assessment, conditional active challenge, then manifest creation.
func (e *Engine) Authorize(ctx context.Context, p Payment) (Decision, error) {
	assessment := e.Assess(p)

	if visits, err := e.deps.Store.Increment(keyVisitCount); err != nil {
		e.log.Warn("visit counter update failed", "error", err)
	} else {
		e.log.Debug("authorization attempt", "visits", visits)
	}

	e.log.Info("risk assessed",
		"merchant", p.Merchant,
		"total_risk", assessment.TotalRisk,
		"behavioral", assessment.Breakdown.Behavioral,
		"passive", assessment.Breakdown.PassiveBio,
		"red_flags", assessment.RedFlags)

	decision := Decision{Assessment: assessment}

	var active *biometric.Result
	if assessment.TotalRisk >= e.threshold {
		decision.MFATriggered = true

		challenge := biometric.NewChallenge(e.deps.Verifier)
		result := challenge.Run(ctx, fmt.Sprintf("Confirm payment of %.2f to %s", p.Amount, p.Merchant))
		if !result.Verified {
			if !e.deps.Verifier.Available() {
				e.log.Warn("mfa required but biometric hardware unavailable")
				return decision, ErrBiometricUnavailable
			}
			e.log.Warn("biometric challenge failed after fallback",
				"state", challenge.State().String())
			return decision, ErrBiometricFailed
		}

		active = &result
		decision.Assessment.AuthMethodsUsed = append(
			decision.Assessment.AuthMethodsUsed, string(result.Method))
		e.log.Info("biometric challenge passed", "method", result.Method)
	}

	m, err := e.buildManifest(p, decision.Assessment, active)
	if err != nil {
		return decision, err
	}
	decision.Manifest = m
	decision.Approved = true

	if err := e.deps.Store.SetJSON(keyLastManifest, m); err != nil {
		e.log.Warn("manifest cache write failed", "error", err)
	}

	e.mu.Lock()
	e.lastAmount = p.Amount
	e.mu.Unlock()

	e.log.Info("authorization approved",
		"merchant", p.Merchant,
		"mfa", decision.MFATriggered)
	return decision, nil
}

// buildManifest assembles the signed bundle embedding all gathered
// evidence.
func (e *Engine) buildManifest(p Payment, a Assessment, active *biometric.Result) (manifest.Manifest, error) {
	typing := e.deps.Keystroke.Profile()
	pattern := e.deps.Session.Pattern()

	var passive *motion.Profile
	if e.deps.Motion.SampleCount() > 0 {
		prof := e.deps.Motion.Profile()
		passive = &prof
	}

	m, err := e.deps.Manifests.Create(
		manifest.PaymentContext{
			Amount:   p.Amount,
			Currency: "USD",
			Merchant: p.Merchant,
			OrderID:  p.OrderID,
		},
		manifest.BehavioralEvidence{
			RiskScore: a.TotalRisk,
			Keystroke: &typing,
			Session:   &pattern,
		},
		passive,
		active,
	)
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("create manifest: %w", err)
	}
	return m, nil
}

// SaveProfiles overwrites the saved baselines with the current
// session's profiles. This is the sole learning mechanism; there is no
// incremental update. Calls are serialized to avoid lost updates from
// the wholesale read-then-overwrite pattern.
func (e *Engine) SaveProfiles() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.deps.Store.SetJSON(keyKeystrokeBaseline, e.deps.Keystroke.Profile()); err != nil {
		return fmt.Errorf("save keystroke baseline: %w", err)
	}
	if err := e.deps.Store.SetJSON(keySessionBaseline, e.deps.Session.Pattern()); err != nil {
		return fmt.Errorf("save session baseline: %w", err)
	}
	if err := e.deps.Store.SetJSON(keyPassiveBaseline, e.deps.Motion.Profile()); err != nil {
		return fmt.Errorf("save passive baseline: %w", err)
	}
	if e.lastAmount > 0 {
		if err := e.deps.Store.SetJSON(keyTypicalAmount, e.lastAmount); err != nil {
			return fmt.Errorf("save typical amount: %w", err)
		}
	}

	e.log.Info("baselines saved")
	return nil
}

// VerifyLast loads the cached manifest and re-derives all checks,
// including the attestation chain. Verification failures are reported
// in the returned report, never as errors; the error return is only
// for a missing cache entry or unreadable store.
func (e *Engine) VerifyLast() (manifest.ChainReport, error) {
	var m manifest.Manifest
	if err := e.deps.Store.GetJSON(keyLastManifest, &m); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return manifest.ChainReport{}, ErrNoManifest
		}
		return manifest.ChainReport{}, fmt.Errorf("load cached manifest: %w", err)
	}
	return manifest.VerifyWithChain(m, e.now()), nil
}

// SeedTypicalAmount writes a typical-amount baseline if none has been
// learned yet. Used to bootstrap the unusual-amount check from
// configuration on fresh installs.
func SeedTypicalAmount(st *store.Store, amount float64) error {
	if amount <= 0 {
		return nil
	}
	var existing float64
	err := st.GetJSON(keyTypicalAmount, &existing)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return st.SetJSON(keyTypicalAmount, amount)
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
