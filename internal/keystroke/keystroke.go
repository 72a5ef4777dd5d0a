// Package keystroke derives typing-rhythm profiles from key events.
//
// IMPORTANT: the tracker aggregates timing only - it does NOT retain
// which keys were pressed. Key identity is used transiently to pair a
// key-down with its key-up and to classify corrections, then dropped.
// What survives is dwell/flight statistics, never text.
package keystroke

import (
	"math"
	"sync"
	"time"
)

// rhythmWindow is the number of recent flight times kept in a profile.
const rhythmWindow = 10

// Profile is the derived typing-rhythm profile for one session.
type Profile struct {
	// AvgDwellMs is the mean key-down duration in milliseconds.
	AvgDwellMs float64 `json:"avgDwellTime"`
	// AvgFlightMs is the mean inter-key latency in milliseconds.
	AvgFlightMs float64 `json:"avgFlightTime"`
	// Rhythm holds the last few flight times in milliseconds.
	Rhythm []float64 `json:"rhythm"`
	// CorrectionRate is the backspace/delete fraction as a percentage.
	CorrectionRate float64 `json:"errorRate"`
}

// Tracker accumulates key events for the current session.
// It is safe for a single async producer and concurrent snapshot reads.
type Tracker struct {
	mu          sync.Mutex
	downAt      map[string]time.Time
	dwellMs     []float64
	flightMs    []float64
	lastKeyAt   time.Time
	corrections int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{downAt: make(map[string]time.Time)}
}

// RecordKeyDown feeds a key-down event.
func (t *Tracker) RecordKeyDown(key string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.downAt[key] = at

	if !t.lastKeyAt.IsZero() {
		t.flightMs = append(t.flightMs, ms(at.Sub(t.lastKeyAt)))
	}
	t.lastKeyAt = at

	if key == "Backspace" || key == "Delete" {
		t.corrections++
	}
}

// RecordKeyUp feeds a key-up event. An up without a matching down is
// ignored.
func (t *Tracker) RecordKeyUp(key string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	down, ok := t.downAt[key]
	if !ok {
		return
	}
	t.dwellMs = append(t.dwellMs, ms(at.Sub(down)))
	delete(t.downAt, key)
}

// Profile snapshots the current profile. A tracker with no events
// yields zero-valued aggregates, never NaN.
func (t *Tracker) Profile() Profile {
	t.mu.Lock()
	defer t.mu.Unlock()

	rhythm := make([]float64, 0, rhythmWindow)
	if n := len(t.flightMs); n > 0 {
		start := n - rhythmWindow
		if start < 0 {
			start = 0
		}
		rhythm = append(rhythm, t.flightMs[start:]...)
	}

	var rate float64
	if len(t.flightMs) > 0 {
		rate = float64(t.corrections) / float64(len(t.flightMs)) * 100
	}

	return Profile{
		AvgDwellMs:     mean(t.dwellMs),
		AvgFlightMs:    mean(t.flightMs),
		Rhythm:         rhythm,
		CorrectionRate: rate,
	}
}

// Reset clears all session state. Called at session start.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.downAt = make(map[string]time.Time)
	t.dwellMs = nil
	t.flightMs = nil
	t.lastKeyAt = time.Time{}
	t.corrections = 0
}

// Compare scores the similarity of two profiles from 0 (maximal
// divergence) to 100 (identical), symmetric in its arguments. The
// score is the mean absolute difference of dwell and flight averages
// mapped onto the 0..100 range.
func Compare(a, b Profile) float64 {
	dwellDiff := math.Abs(a.AvgDwellMs - b.AvgDwellMs)
	flightDiff := math.Abs(a.AvgFlightMs - b.AvgFlightMs)
	return clamp(100 - (dwellDiff+flightDiff)/2)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp(x float64) float64 {
	return math.Max(0, math.Min(100, x))
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
