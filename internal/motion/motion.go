// Package motion derives passive-biometric profiles from device motion
// and touch streams.
package motion

import (
	"math"
	"sync"
	"time"
)

const (
	// bufferCap bounds the motion sample ring buffer.
	bufferCap = 50
	// tiltWindow is the number of recent samples used for the tilt
	// pattern.
	tiltWindow = 10
	// shakeThreshold is the acceleration magnitude above which a
	// sample counts as a shake.
	shakeThreshold = 0.5
	// fingerSizeScale normalizes contact-area differences for
	// matching, in touch-radius points.
	fingerSizeScale = 20.0
	// pressureScale amplifies touch-force differences for matching:
	// forces live in a narrow 0..1 band, so even a 0.01 gap between
	// users is significant.
	pressureScale = 100.0
)

// Sample is one accelerometer reading.
type Sample struct {
	Ax, Ay, Az float64
	At         time.Time
}

// Touch is one touch-start event.
type Touch struct {
	Force   float64
	RadiusX float64
	RadiusY float64
	At      time.Time
}

// Profile is the derived passive-biometric profile.
type Profile struct {
	// TiltPattern is the device tilt angle (radians) of the most
	// recent samples, at most ten.
	TiltPattern []float64 `json:"tiltPattern"`
	// ShakeFrequency is the fraction of samples exceeding the shake
	// threshold, 0..1.
	ShakeFrequency float64 `json:"shakeFrequency"`
	// AvgPressure is the mean touch force, 0..1.
	AvgPressure float64 `json:"pressureAverage"`
	// AvgTapDurationMs is the mean duration of completed taps.
	AvgTapDurationMs float64 `json:"tapDuration"`
	// AvgFingerSize is the mean contact-area size in radius points.
	AvgFingerSize float64 `json:"fingerSize"`
}

// Analyzer accumulates motion and touch events for the current session.
// Safe for a single async producer with concurrent snapshot reads.
type Analyzer struct {
	mu      sync.Mutex
	samples []Sample // ring, oldest first
	touches []touchRecord
}

type touchRecord struct {
	Touch
	durationMs float64
	completed  bool
}

// NewAnalyzer returns an empty analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// RecordSample feeds one motion sample. The buffer keeps the last 50
// samples; the oldest is evicted on overflow.
func (a *Analyzer) RecordSample(s Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.samples = append(a.samples, s)
	if len(a.samples) > bufferCap {
		a.samples = a.samples[len(a.samples)-bufferCap:]
	}
}

// RecordTouchStart feeds a touch-start event.
func (a *Analyzer) RecordTouchStart(t Touch) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.touches = append(a.touches, touchRecord{Touch: t})
}

// RecordTouchEnd completes the most recent open touch.
func (a *Analyzer) RecordTouchEnd(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := len(a.touches) - 1; i >= 0; i-- {
		if !a.touches[i].completed {
			a.touches[i].durationMs = float64(at.Sub(a.touches[i].At)) / float64(time.Millisecond)
			a.touches[i].completed = true
			return
		}
	}
}

// Profile snapshots the current profile. With no samples all
// aggregates are zero-valued, never NaN.
func (a *Analyzer) Profile() Profile {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Profile{
		TiltPattern:      a.tiltPattern(),
		ShakeFrequency:   a.shakeFrequency(),
		AvgPressure:      a.avgPressure(),
		AvgTapDurationMs: a.avgTapDuration(),
		AvgFingerSize:    a.avgFingerSize(),
	}
}

// Reset clears all session state.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.samples = nil
	a.touches = nil
}

// SampleCount reports how many motion samples are buffered.
func (a *Analyzer) SampleCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.samples)
}

func (a *Analyzer) tiltPattern() []float64 {
	start := len(a.samples) - tiltWindow
	if start < 0 {
		start = 0
	}
	tilt := make([]float64, 0, tiltWindow)
	for _, s := range a.samples[start:] {
		tilt = append(tilt, math.Atan2(s.Ay, s.Ax))
	}
	return tilt
}

func (a *Analyzer) shakeFrequency() float64 {
	if len(a.samples) == 0 {
		return 0
	}
	shakes := 0
	for _, s := range a.samples {
		if math.Sqrt(s.Ax*s.Ax+s.Ay*s.Ay+s.Az*s.Az) > shakeThreshold {
			shakes++
		}
	}
	return float64(shakes) / float64(len(a.samples))
}

func (a *Analyzer) avgPressure() float64 {
	if len(a.touches) == 0 {
		return 0
	}
	var sum float64
	for _, t := range a.touches {
		sum += t.Force
	}
	return sum / float64(len(a.touches))
}

func (a *Analyzer) avgTapDuration() float64 {
	var sum float64
	n := 0
	for _, t := range a.touches {
		if t.completed {
			sum += t.durationMs
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (a *Analyzer) avgFingerSize() float64 {
	if len(a.touches) == 0 {
		return 0
	}
	var sum float64
	for _, t := range a.touches {
		sum += math.Sqrt(t.RadiusX * t.RadiusY)
	}
	return sum / float64(len(a.touches))
}

// Match scores how well two profiles agree, 0..100. Identical profiles
// score 100. Channel weights: tilt pattern 30, shake frequency 20,
// touch pressure 25, finger size 25. Tilt, shake, and finger
// differences are normalized and clamped to [0,1] before weighting;
// the pressure difference is amplified uncapped, so a sufficiently
// large force gap dominates the score on its own.
func Match(saved, current Profile) float64 {
	score := 100.0
	score -= unit(tiltDistance(saved.TiltPattern, current.TiltPattern)/math.Pi) * 30
	score -= unit(math.Abs(saved.ShakeFrequency-current.ShakeFrequency)) * 20
	score -= math.Abs(saved.AvgPressure-current.AvgPressure) * pressureScale * 25
	score -= unit(math.Abs(saved.AvgFingerSize-current.AvgFingerSize)/fingerSizeScale) * 25
	return math.Max(0, math.Min(100, score))
}

// tiltDistance is the mean absolute angle difference over the shared
// prefix of two tilt patterns. Either pattern being empty contributes
// no distance: absent data is not treated as mismatch.
func tiltDistance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var total float64
	for i := 0; i < n; i++ {
		total += math.Abs(a[i] - b[i])
	}
	return total / float64(n)
}

func unit(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
