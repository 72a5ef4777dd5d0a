// Package session tracks the shape of a shopping session.
package session

import (
	"sync"
	"time"
)

// Pattern is a snapshot of the session shape. All counters are
// monotonically non-decreasing within one session.
type Pattern struct {
	TimeOnSiteMs      int64 `json:"timeOnSite"`
	PagesViewed       int   `json:"pagesViewed"`
	SearchCount       int   `json:"searchCount"`
	CartModifications int   `json:"cartModifications"`
}

// Tracker accumulates session counters.
type Tracker struct {
	mu       sync.Mutex
	now      func() time.Time
	start    time.Time
	pages    int
	searches int
	cartMods int
}

// NewTracker starts a session at the current time.
func NewTracker() *Tracker {
	return NewTrackerAt(time.Now, time.Now())
}

// NewTrackerAt starts a session with an injectable clock, for tests.
func NewTrackerAt(now func() time.Time, start time.Time) *Tracker {
	return &Tracker{now: now, start: start}
}

// RecordPageView counts one page view.
func (t *Tracker) RecordPageView() {
	t.mu.Lock()
	t.pages++
	t.mu.Unlock()
}

// RecordSearch counts one search.
func (t *Tracker) RecordSearch() {
	t.mu.Lock()
	t.searches++
	t.mu.Unlock()
}

// RecordCartModification counts one cart add/remove/change.
func (t *Tracker) RecordCartModification() {
	t.mu.Lock()
	t.cartMods++
	t.mu.Unlock()
}

// Pattern snapshots the session shape.
func (t *Tracker) Pattern() Pattern {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Pattern{
		TimeOnSiteMs:      t.now().Sub(t.start).Milliseconds(),
		PagesViewed:       t.pages,
		SearchCount:       t.searches,
		CartModifications: t.cartMods,
	}
}

// Reset starts a new session. The only way counters go backwards.
func (t *Tracker) Reset(start time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.start = start
	t.pages = 0
	t.searches = 0
	t.cartMods = 0
}
