package models

import "time"

type EventState string

const (
	StateIdle       EventState = "IDLE"
	StateCandidate  EventState = "CANDIDATE"
	StateConfirmed  EventState = "CONFIRMED"
	StateDispatched EventState = "DISPATCHED"
	StateResolved   EventState = "RESOLVED"
	StateExpired    EventState = "EXPIRED"
)

func (s EventState) Terminal() bool {
	return s == StateResolved || s == StateExpired
}

type LocationFix struct {
	SourceID  string    `json:"source_id"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	AccuracyM float64   `json:"accuracy_m"`
	Timestamp time.Time `json:"timestamp"`
	Stale     bool      `json:"stale"`
}

type AttemptOutcome string

const (
	OutcomePending AttemptOutcome = "pending"
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailed  AttemptOutcome = "failed"
)

type AlertAttempt struct {
	EventID   string         `json:"event_id"`
	Channel   string         `json:"channel"`
	Attempt   int            `json:"attempt"`
	Timestamp time.Time      `json:"timestamp"`
	Outcome   AttemptOutcome `json:"outcome"`
	Error     string         `json:"error,omitempty"`
}

// AccidentEvent is owned by the camera's state machine until it reaches a
// terminal state. Other components only ever see copies.
type AccidentEvent struct {
	ID                string         `json:"id"`
	CameraID          string         `json:"camera_id"`
	CreatedAt         time.Time      `json:"created_at"`
	PeakConfidence    float64        `json:"peak_confidence"`
	Classification    Classification `json:"classification"`
	State             EventState     `json:"state"`
	Location          *LocationFix   `json:"location,omitempty"`
	LocationAvailable bool           `json:"location_available"`
	VehicleCount      int            `json:"vehicle_count"`
	MergedTriggers    int            `json:"merged_triggers"`
	ConfirmedAt       time.Time      `json:"confirmed_at,omitempty"`
	ResolvedAt        time.Time      `json:"resolved_at,omitempty"`
	LastActivity      time.Time      `json:"last_activity"`
	Attempts          []AlertAttempt `json:"attempts,omitempty"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (e *AccidentEvent) Clone() *AccidentEvent {
	if e == nil {
		return nil
	}
	c := *e
	if e.Location != nil {
		loc := *e.Location
		c.Location = &loc
	}
	if e.Attempts != nil {
		c.Attempts = append([]AlertAttempt(nil), e.Attempts...)
	}
	return &c
}

type DispatchStatus string

const (
	DispatchPending DispatchStatus = "pending"
	DispatchSent    DispatchStatus = "sent"
	DispatchFailed  DispatchStatus = "failed"
)

// EventRecord is the append-only persisted form of an event once it has
// reached a terminal state and its dispatch has finished.
type EventRecord struct {
	EventID           string                    `json:"event_id"`
	CameraID          string                    `json:"camera_id"`
	CreatedAt         time.Time                 `json:"timestamp"`
	PeakConfidence    float64                   `json:"confidence"`
	Classification    Classification            `json:"classification"`
	State             EventState                `json:"state"`
	MergedTriggers    int                       `json:"merged_triggers"`
	ResolvedAt        *time.Time                `json:"resolved_at,omitempty"`
	VehicleCount      int                       `json:"vehicles_detected"`
	Location          *LocationFix              `json:"location,omitempty"`
	LocationAvailable bool                      `json:"location_available"`
	Address           string                    `json:"address,omitempty"`
	Status            DispatchStatus            `json:"status"`
	Channels          map[string]DispatchStatus `json:"channels"`
	Attempts          []AlertAttempt            `json:"attempts"`
}
