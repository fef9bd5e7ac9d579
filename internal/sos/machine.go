package sos

import "github.com/wolfeidau/beacon/internal/models"

// Event drives a session transition.
type Event string

const (
	EventRaise      Event = "raise"
	EventExpire     Event = "expire"
	EventTriggerNow Event = "trigger_now"
	EventCancel     Event = "cancel"
	EventDeactivate Event = "deactivate"
	EventTimeout    Event = "timeout"
)

// stateIdle is the absence of an open session. It is never stored.
const stateIdle models.State = ""

type transitionKey struct {
	from  models.State
	event Event
}

var transitions = map[transitionKey]models.State{
	{stateIdle, EventRaise}:                    models.StateCountingDown,
	{models.StateCountingDown, EventCancel}:     stateIdle,
	{models.StateCountingDown, EventExpire}:     models.StateActive,
	{models.StateCountingDown, EventTriggerNow}: models.StateActive,
	{models.StateActive, EventDeactivate}:       models.StateDeactivated,
	{models.StateActive, EventTimeout}:          models.StateExpired,
}

// nextState looks up the transition for event from state.
func nextState(from models.State, event Event) (models.State, bool) {
	to, ok := transitions[transitionKey{from: from, event: event}]
	return to, ok
}

func stateName(s models.State) string {
	if s == stateIdle {
		return "idle"
	}
	return string(s)
}
