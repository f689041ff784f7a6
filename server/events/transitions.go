package events

import (
	"errors"
	"fmt"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
)

var (
	ErrIllegalTransition  = errors.New("illegal event transition")
	ErrInvariantViolation = errors.New("camera already has an active event")
	ErrUnknownEvent       = errors.New("event is not the active event")
)

// transitions is the complete set of legal moves. Terminal states have no
// entry and therefore cannot change.
var transitions = map[models.EventState][]models.EventState{
	models.StateIdle:       {models.StateCandidate},
	models.StateCandidate:  {models.StateConfirmed, models.StateExpired},
	models.StateConfirmed:  {models.StateDispatched, models.StateExpired},
	models.StateDispatched: {models.StateResolved},
}

func CanTransition(from, to models.EventState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Advance returns a copy of ev moved to state to. The input is never
// modified.
func Advance(ev *models.AccidentEvent, to models.EventState) (*models.AccidentEvent, error) {
	from := models.StateIdle
	if ev != nil {
		from = ev.State
	}
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	next := ev.Clone()
	if next == nil {
		next = &models.AccidentEvent{}
	}
	next.State = to
	return next, nil
}
