package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/alert"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/events"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
)

type Counters struct {
	FramesReceived       int64 `json:"frames_received"`
	FramesProcessed      int64 `json:"frames_processed"`
	FramesDropped        int64 `json:"frames_dropped"`
	FramesMalformed      int64 `json:"frames_malformed"`
	ClassifierDegraded   int64 `json:"classifier_degraded"`
	CandidatesOpened     int64 `json:"candidates_opened"`
	CandidatesExpired    int64 `json:"candidates_expired"`
	EventsConfirmed      int64 `json:"events_confirmed"`
	EventsMerged         int64 `json:"events_merged"`
	EventsResolved       int64 `json:"events_resolved"`
	InvariantViolations  int64 `json:"invariant_violations"`
	LocationUnavailable  int64 `json:"location_unavailable"`
	AlertAttempts        int64 `json:"alert_attempts"`
	AlertAttemptsFailed  int64 `json:"alert_attempts_failed"`
	DispatchSucceeded    int64 `json:"dispatch_succeeded"`
	DispatchFailed       int64 `json:"dispatch_failed"`
	DispatchRejected     int64 `json:"dispatch_rejected"`
	RedispatchSuppressed int64 `json:"redispatch_suppressed"`
}

// EventSummary is the dashboard view of one confirmed event.
type EventSummary struct {
	EventID           string                `json:"event_id"`
	CameraID          string                `json:"camera_id"`
	State             models.EventState     `json:"state"`
	PeakConfidence    float64               `json:"peak_confidence"`
	VehicleCount      int                   `json:"vehicles_detected"`
	LocationAvailable bool                  `json:"location_available"`
	MergedTriggers    int                   `json:"merged_triggers"`
	DispatchStatus    models.DispatchStatus `json:"dispatch_status,omitempty"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

type Snapshot struct {
	StartTime     time.Time        `json:"start_time"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	Counters      Counters         `json:"counters"`
	Cameras       map[string]int64 `json:"cameras"`
	Recent        []EventSummary   `json:"recent_events"`
}

// OtherCameras collects frame counts once the per-camera map is full.
const OtherCameras = "_other"

const defaultCameraLimit = 1024

// Aggregator collects pipeline and dispatch counters. It is safe for
// concurrent use and satisfies alert.Observer.
type Aggregator struct {
	framesReceived       atomic.Int64
	framesProcessed      atomic.Int64
	framesDropped        atomic.Int64
	framesMalformed      atomic.Int64
	classifierDegraded   atomic.Int64
	candidatesOpened     atomic.Int64
	candidatesExpired    atomic.Int64
	eventsConfirmed      atomic.Int64
	eventsMerged         atomic.Int64
	eventsResolved       atomic.Int64
	invariantViolations  atomic.Int64
	locationUnavailable  atomic.Int64
	alertAttempts        atomic.Int64
	alertAttemptsFailed  atomic.Int64
	dispatchSucceeded    atomic.Int64
	dispatchFailed       atomic.Int64
	dispatchRejected     atomic.Int64
	redispatchSuppressed atomic.Int64

	mu          sync.RWMutex
	cameras     map[string]int64
	cameraLimit int
	recent      []EventSummary
	limit       int
	startTime time.Time
	now       func() time.Time
}

func NewAggregator(limit int) *Aggregator {
	if limit <= 0 {
		limit = 100
	}
	return &Aggregator{
		cameras:     make(map[string]int64),
		cameraLimit: defaultCameraLimit,
		limit:       limit,
		startTime:   time.Now(),
		now:         time.Now,
	}
}

// WithCameraLimit bounds how many cameras get their own frame counter.
func (a *Aggregator) WithCameraLimit(n int) *Aggregator {
	if n > 0 {
		a.cameraLimit = n
	}
	return a
}

func (a *Aggregator) FrameReceived(cameraID string) {
	a.framesReceived.Add(1)
	a.mu.Lock()
	if _, ok := a.cameras[cameraID]; !ok && len(a.cameras) >= a.cameraLimit {
		cameraID = OtherCameras
	}
	a.cameras[cameraID]++
	a.mu.Unlock()
}

func (a *Aggregator) FrameProcessed(score models.FusedScore) {
	a.framesProcessed.Add(1)
	if score.Degraded {
		a.classifierDegraded.Add(1)
	}
}

func (a *Aggregator) FrameDropped()        { a.framesDropped.Add(1) }
func (a *Aggregator) FrameMalformed()      { a.framesMalformed.Add(1) }
func (a *Aggregator) InvariantViolation()  { a.invariantViolations.Add(1) }
func (a *Aggregator) EventMerged()         { a.eventsMerged.Add(1) }
func (a *Aggregator) LocationUnavailable() { a.locationUnavailable.Add(1) }

// Transition counts one state change and keeps the recent list current for
// events that got past the candidate stage.
func (a *Aggregator) Transition(t events.Transition) {
	switch t.To {
	case models.StateCandidate:
		a.candidatesOpened.Add(1)
	case models.StateConfirmed:
		a.eventsConfirmed.Add(1)
	case models.StateExpired:
		if t.From == models.StateCandidate {
			a.candidatesExpired.Add(1)
		}
	case models.StateResolved:
		a.eventsResolved.Add(1)
	}

	if t.Event == nil || t.To == models.StateCandidate {
		return
	}
	if t.To == models.StateExpired && t.From == models.StateCandidate {
		return
	}
	a.upsert(t.Event, "")
}

// DispatchRejected records a confirmed event the dispatcher refused.
func (a *Aggregator) DispatchRejected(ev *models.AccidentEvent) {
	a.dispatchRejected.Add(1)
	if ev != nil {
		a.upsert(ev, models.DispatchFailed)
	}
}

func (a *Aggregator) AlertAttempted(attempt models.AlertAttempt) {
	a.alertAttempts.Add(1)
	if attempt.Outcome == models.OutcomeFailed {
		a.alertAttemptsFailed.Add(1)
	}
}

func (a *Aggregator) RedispatchSuppressed(string, string, models.DispatchStatus) {
	a.redispatchSuppressed.Add(1)
}

func (a *Aggregator) DispatchCompleted(_ context.Context, report alert.Report) {
	if report.Status == models.DispatchSent {
		a.dispatchSucceeded.Add(1)
	} else {
		a.dispatchFailed.Add(1)
	}
	if report.Event != nil {
		a.upsert(report.Event, report.Status)
	}
}

// EventStatus returns the latest summary of a recent event.
func (a *Aggregator) EventStatus(eventID string) (EventSummary, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, s := range a.recent {
		if s.EventID == eventID {
			return s, true
		}
	}
	return EventSummary{}, false
}

func (a *Aggregator) upsert(ev *models.AccidentEvent, status models.DispatchStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.recent {
		if a.recent[i].EventID != ev.ID {
			continue
		}
		s := &a.recent[i]
		// A dispatch report may land after the event resolved; keep the
		// later lifecycle state.
		if !s.State.Terminal() || ev.State.Terminal() {
			s.State = ev.State
		}
		if ev.PeakConfidence > s.PeakConfidence {
			s.PeakConfidence = ev.PeakConfidence
		}
		if ev.MergedTriggers > s.MergedTriggers {
			s.MergedTriggers = ev.MergedTriggers
		}
		if ev.Location != nil || ev.LocationAvailable {
			s.LocationAvailable = ev.LocationAvailable
		}
		if status != "" {
			s.DispatchStatus = status
		}
		s.UpdatedAt = a.now()
		return
	}

	summary := EventSummary{
		EventID:           ev.ID,
		CameraID:          ev.CameraID,
		State:             ev.State,
		PeakConfidence:    ev.PeakConfidence,
		VehicleCount:      ev.VehicleCount,
		LocationAvailable: ev.LocationAvailable,
		MergedTriggers:    ev.MergedTriggers,
		DispatchStatus:    status,
		UpdatedAt:         a.now(),
	}
	if len(a.recent) < a.limit {
		a.recent = append(a.recent, summary)
		return
	}
	copy(a.recent, a.recent[1:])
	a.recent[len(a.recent)-1] = summary
}

func (a *Aggregator) Counters() Counters {
	return Counters{
		FramesReceived:       a.framesReceived.Load(),
		FramesProcessed:      a.framesProcessed.Load(),
		FramesDropped:        a.framesDropped.Load(),
		FramesMalformed:      a.framesMalformed.Load(),
		ClassifierDegraded:   a.classifierDegraded.Load(),
		CandidatesOpened:     a.candidatesOpened.Load(),
		CandidatesExpired:    a.candidatesExpired.Load(),
		EventsConfirmed:      a.eventsConfirmed.Load(),
		EventsMerged:         a.eventsMerged.Load(),
		EventsResolved:       a.eventsResolved.Load(),
		InvariantViolations:  a.invariantViolations.Load(),
		LocationUnavailable:  a.locationUnavailable.Load(),
		AlertAttempts:        a.alertAttempts.Load(),
		AlertAttemptsFailed:  a.alertAttemptsFailed.Load(),
		DispatchSucceeded:    a.dispatchSucceeded.Load(),
		DispatchFailed:       a.dispatchFailed.Load(),
		DispatchRejected:     a.dispatchRejected.Load(),
		RedispatchSuppressed: a.redispatchSuppressed.Load(),
	}
}

// Snapshot returns a consistent copy, newest events first.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cameras := make(map[string]int64, len(a.cameras))
	for id, n := range a.cameras {
		cameras[id] = n
	}
	recent := make([]EventSummary, 0, len(a.recent))
	for i := len(a.recent) - 1; i >= 0; i-- {
		recent = append(recent, a.recent[i])
	}

	return Snapshot{
		StartTime:     a.startTime,
		UptimeSeconds: time.Since(a.startTime).Seconds(),
		Counters:      a.Counters(),
		Cameras:       cameras,
		Recent:        recent,
	}
}
