package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"c2pay/internal/keystroke"
	"c2pay/internal/motion"
	"c2pay/internal/session"
)

// event is one timestamped interaction sample in a recorded session.
// T is milliseconds from session start.
type event struct {
	Type string `json:"type"`
	T    int64  `json:"t"`

	// keydown / keyup
	Key string `json:"key,omitempty"`

	// motion
	Ax float64 `json:"ax,omitempty"`
	Ay float64 `json:"ay,omitempty"`
	Az float64 `json:"az,omitempty"`

	// touchstart
	Force   float64 `json:"force,omitempty"`
	RadiusX float64 `json:"radiusX,omitempty"`
	RadiusY float64 `json:"radiusY,omitempty"`
}

// recording is a captured interaction session to replay into the
// behavioral trackers.
type recording struct {
	Events []event `json:"events"`
}

func loadRecording(path string) (*recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rec recording
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse recording: %w", err)
	}
	if len(rec.Events) == 0 {
		return nil, fmt.Errorf("recording has no events")
	}
	return &rec, nil
}

// duration is the recording's span, from zero to the last event.
func (r *recording) duration() time.Duration {
	var last int64
	for _, e := range r.Events {
		if e.T > last {
			last = e.T
		}
	}
	return time.Duration(last) * time.Millisecond
}

// replay feeds every event into the trackers and returns a session
// tracker whose clock is pinned to the end of the recording, so
// time-on-site reflects the recorded span rather than wall time.
func (r *recording) replay(keys *keystroke.Tracker, analyzer *motion.Analyzer) *session.Tracker {
	start := time.Now().Add(-r.duration())
	at := func(e event) time.Time {
		return start.Add(time.Duration(e.T) * time.Millisecond)
	}

	end := start.Add(r.duration())
	sess := session.NewTrackerAt(func() time.Time { return end }, start)

	for _, e := range r.Events {
		switch e.Type {
		case "keydown":
			keys.RecordKeyDown(e.Key, at(e))
		case "keyup":
			keys.RecordKeyUp(e.Key, at(e))
		case "motion":
			analyzer.RecordSample(motion.Sample{Ax: e.Ax, Ay: e.Ay, Az: e.Az, At: at(e)})
		case "touchstart":
			analyzer.RecordTouchStart(motion.Touch{Force: e.Force, RadiusX: e.RadiusX, RadiusY: e.RadiusY, At: at(e)})
		case "touchend":
			analyzer.RecordTouchEnd(at(e))
		case "pageview":
			sess.RecordPageView()
		case "search":
			sess.RecordSearch()
		case "cart":
			sess.RecordCartModification()
		}
	}
	return sess
}
