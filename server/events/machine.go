package events

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Transition struct {
	From  models.EventState     `json:"from"`
	To    models.EventState     `json:"to"`
	Event *models.AccidentEvent `json:"event"`
}

// Outcome describes what one observed frame did to the camera's event.
type Outcome struct {
	Transitions []Transition
	Merged      bool
	Extended    bool
	Violation   error
	// Event is a copy of the active event after the frame, nil when idle.
	Event *models.AccidentEvent
}

// Confirmed returns the event if it was confirmed by this frame.
func (o Outcome) Confirmed() *models.AccidentEvent {
	for _, t := range o.Transitions {
		if t.To == models.StateConfirmed {
			return t.Event
		}
	}
	return nil
}

// Machine tracks the single active accident event of one camera. Observe,
// MarkDispatched, RejectDispatch, Tick and Cancel must be called from the
// camera's own worker; Active may be read from anywhere.
type Machine struct {
	cameraID string
	cfg      config.EventsConfig
	logger   *zap.Logger
	newID    func() string

	active atomic.Pointer[models.AccidentEvent]

	aboveStreak   int
	belowStreak   int
	framesOpen    int
	triggering    bool
	cooldownUntil time.Time
	cancelled     bool
}

func NewMachine(cameraID string, cfg config.EventsConfig, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConfirmThreshold < cfg.CandidateThreshold {
		cfg.ConfirmThreshold = cfg.CandidateThreshold
	}
	if cfg.ConfirmFrames < 1 {
		cfg.ConfirmFrames = 1
	}
	if cfg.ExpireFrames < 1 {
		cfg.ExpireFrames = 1
	}
	return &Machine{
		cameraID: cameraID,
		cfg:      cfg,
		logger:   logger.With(zap.String("camera_id", cameraID)),
		newID:    uuid.NewString,
	}
}

func (m *Machine) CameraID() string {
	return m.cameraID
}

// Active returns a copy of the current non-terminal event, or nil.
func (m *Machine) Active() *models.AccidentEvent {
	return m.active.Load().Clone()
}

func (m *Machine) State() models.EventState {
	if ev := m.active.Load(); ev != nil {
		return ev.State
	}
	return models.StateIdle
}

func (m *Machine) Observe(score models.FusedScore) Outcome {
	var out Outcome
	if m.cancelled {
		return out
	}

	now := score.Timestamp
	out.Transitions = append(out.Transitions, m.Tick(now)...)

	ev := m.active.Load()
	switch {
	case ev == nil:
		if score.Confidence >= m.cfg.CandidateThreshold {
			m.open(score, &out)
		}
	case ev.State == models.StateCandidate:
		m.observeCandidate(ev, score, &out)
	case ev.State == models.StateConfirmed || ev.State == models.StateDispatched:
		m.observeCooldown(ev, score, &out)
	}

	out.Event = m.Active()
	return out
}

func (m *Machine) open(score models.FusedScore, out *Outcome) {
	next, err := Advance(nil, models.StateCandidate)
	if err != nil {
		out.Violation = err
		return
	}
	next.ID = m.newID()
	next.CameraID = m.cameraID
	next.CreatedAt = score.Timestamp
	next.LastActivity = score.Timestamp
	next.PeakConfidence = score.Confidence
	next.Classification = models.ClassificationCollisionCandidate
	next.VehicleCount = score.VehicleCount

	if !m.active.CompareAndSwap(nil, next) {
		out.Violation = fmt.Errorf("%w: candidate %s rejected", ErrInvariantViolation, next.ID)
		m.logger.Error("Rejected new candidate, camera already has an active event",
			zap.String("event_id", next.ID),
			zap.Error(out.Violation))
		return
	}

	m.aboveStreak = 0
	m.belowStreak = 0
	m.framesOpen = 1
	m.triggering = true
	if score.Confidence >= m.cfg.ConfirmThreshold {
		m.aboveStreak = 1
	}
	out.Transitions = append(out.Transitions, Transition{From: models.StateIdle, To: models.StateCandidate, Event: next.Clone()})
	m.logger.Info("Accident candidate opened",
		zap.String("event_id", next.ID),
		zap.Float64("confidence", score.Confidence))

	if m.aboveStreak >= m.cfg.ConfirmFrames {
		m.confirm(next, score, out)
	}
}

func (m *Machine) observeCandidate(ev *models.AccidentEvent, score models.FusedScore, out *Outcome) {
	m.framesOpen++
	if score.Confidence >= m.cfg.ConfirmThreshold {
		m.aboveStreak++
	} else {
		m.aboveStreak = 0
	}
	if score.Confidence < m.cfg.CandidateThreshold {
		m.belowStreak++
	} else {
		m.belowStreak = 0
	}

	updated := ev.Clone()
	updated.LastActivity = score.Timestamp
	if score.Confidence > updated.PeakConfidence {
		updated.PeakConfidence = score.Confidence
	}
	if score.VehicleCount > updated.VehicleCount {
		updated.VehicleCount = score.VehicleCount
	}

	switch {
	case m.aboveStreak >= m.cfg.ConfirmFrames:
		if !m.swap(ev, updated, out) {
			return
		}
		m.confirm(updated, score, out)
	case m.belowStreak >= m.cfg.ExpireFrames:
		m.expire(ev, updated, "confidence dropped", out)
	case m.cfg.DebounceWindow > 0 && m.framesOpen >= m.cfg.DebounceWindow:
		m.expire(ev, updated, "debounce window elapsed", out)
	default:
		m.swap(ev, updated, out)
	}
}

func (m *Machine) confirm(ev *models.AccidentEvent, score models.FusedScore, out *Outcome) {
	next, err := Advance(ev, models.StateConfirmed)
	if err != nil {
		out.Violation = err
		return
	}
	next.ConfirmedAt = score.Timestamp
	if !m.swap(ev, next, out) {
		return
	}
	m.aboveStreak = 0
	out.Transitions = append(out.Transitions, Transition{From: ev.State, To: next.State, Event: next.Clone()})
	m.logger.Info("Accident confirmed",
		zap.String("event_id", next.ID),
		zap.Float64("peak_confidence", next.PeakConfidence))
}

func (m *Machine) expire(current, ev *models.AccidentEvent, reason string, out *Outcome) {
	next, err := Advance(ev, models.StateExpired)
	if err != nil {
		out.Violation = err
		return
	}
	if !m.active.CompareAndSwap(current, nil) {
		m.violation(current, out)
		return
	}
	m.reset()
	out.Transitions = append(out.Transitions, Transition{From: ev.State, To: next.State, Event: next})
	m.logger.Info("Accident event expired",
		zap.String("event_id", next.ID),
		zap.String("reason", reason))
}

// observeCooldown folds frames seen after confirmation into the active event.
// A rising edge over the candidate threshold counts as a merged trigger; a
// full confirmation streak extends the cooldown.
func (m *Machine) observeCooldown(ev *models.AccidentEvent, score models.FusedScore, out *Outcome) {
	above := score.Confidence >= m.cfg.CandidateThreshold
	if !above {
		m.triggering = false
		m.aboveStreak = 0
		return
	}

	updated := ev.Clone()
	updated.LastActivity = score.Timestamp
	if score.Confidence > updated.PeakConfidence {
		updated.PeakConfidence = score.Confidence
	}
	if score.VehicleCount > updated.VehicleCount {
		updated.VehicleCount = score.VehicleCount
	}
	if !m.triggering {
		m.triggering = true
		updated.MergedTriggers++
		out.Merged = true
	}

	if score.Confidence >= m.cfg.ConfirmThreshold {
		m.aboveStreak++
	} else {
		m.aboveStreak = 0
	}
	if m.aboveStreak >= m.cfg.ConfirmFrames && ev.State == models.StateDispatched {
		m.aboveStreak = 0
		m.cooldownUntil = score.Timestamp.Add(m.cfg.Cooldown)
		out.Extended = true
	}

	if m.swap(ev, updated, out) && out.Merged {
		m.logger.Info("Merged trigger into active event",
			zap.String("event_id", updated.ID),
			zap.Int("merged_triggers", updated.MergedTriggers))
	}
}

// MarkDispatched records the single dispatch hand-off of a confirmed event
// and starts its cooldown at now.
func (m *Machine) MarkDispatched(eventID string, now time.Time) (*models.AccidentEvent, error) {
	ev := m.active.Load()
	if ev == nil || ev.ID != eventID {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}
	next, err := Advance(ev, models.StateDispatched)
	if err != nil {
		return nil, err
	}
	next.LastActivity = now
	if !m.active.CompareAndSwap(ev, next) {
		return nil, fmt.Errorf("%w: dispatch of %s", ErrInvariantViolation, eventID)
	}
	m.cooldownUntil = now.Add(m.cfg.Cooldown)
	m.aboveStreak = 0
	m.logger.Info("Accident dispatched", zap.String("event_id", eventID))
	return next.Clone(), nil
}

// RejectDispatch expires a confirmed event whose hand-off was refused.
func (m *Machine) RejectDispatch(eventID string) (*models.AccidentEvent, error) {
	ev := m.active.Load()
	if ev == nil || ev.ID != eventID {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}
	next, err := Advance(ev, models.StateExpired)
	if err != nil {
		return nil, err
	}
	if !m.active.CompareAndSwap(ev, nil) {
		return nil, fmt.Errorf("%w: reject of %s", ErrInvariantViolation, eventID)
	}
	m.reset()
	m.logger.Warn("Dispatch refused, event expired", zap.String("event_id", eventID))
	return next, nil
}

// Tick resolves a dispatched event whose cooldown has elapsed at now.
func (m *Machine) Tick(now time.Time) []Transition {
	ev := m.active.Load()
	if ev == nil || ev.State != models.StateDispatched || now.Before(m.cooldownUntil) {
		return nil
	}
	next, err := Advance(ev, models.StateResolved)
	if err != nil {
		return nil
	}
	next.ResolvedAt = m.cooldownUntil
	if !m.active.CompareAndSwap(ev, nil) {
		m.logger.Error("Active event changed during resolve", zap.String("event_id", ev.ID))
		return nil
	}
	m.reset()
	m.logger.Info("Accident event resolved",
		zap.String("event_id", next.ID),
		zap.Int("merged_triggers", next.MergedTriggers))
	return []Transition{{From: ev.State, To: next.State, Event: next}}
}

// ResolveAt reports when the dispatched event's cooldown ends.
func (m *Machine) ResolveAt() (time.Time, bool) {
	ev := m.active.Load()
	if ev == nil || ev.State != models.StateDispatched {
		return time.Time{}, false
	}
	return m.cooldownUntil, true
}

// Cancel stops the machine for a stopped stream. A candidate expires; a
// confirmed or dispatched event is left to finish its cycle through Tick.
func (m *Machine) Cancel() []Transition {
	m.cancelled = true
	ev := m.active.Load()
	if ev == nil || ev.State != models.StateCandidate {
		return nil
	}
	var out Outcome
	m.expire(ev, ev, "stream stopped", &out)
	return out.Transitions
}

// Resume reopens a cancelled machine when its camera's stream restarts, so
// an event still cooling down keeps absorbing the camera's new triggers.
func (m *Machine) Resume() {
	m.cancelled = false
	m.triggering = false
	m.aboveStreak = 0
}

func (m *Machine) swap(old, next *models.AccidentEvent, out *Outcome) bool {
	if !m.active.CompareAndSwap(old, next) {
		m.violation(old, out)
		return false
	}
	return true
}

func (m *Machine) violation(expected *models.AccidentEvent, out *Outcome) {
	out.Violation = fmt.Errorf("%w: event %s replaced concurrently", ErrInvariantViolation, expected.ID)
	m.logger.Error("Active event slot changed unexpectedly", zap.Error(out.Violation))
}

func (m *Machine) reset() {
	m.aboveStreak = 0
	m.belowStreak = 0
	m.framesOpen = 0
	m.triggering = false
	m.cooldownUntil = time.Time{}
}
