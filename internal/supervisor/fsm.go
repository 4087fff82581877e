package supervisor

import "github.com/TUM-Dev/VMP/internal/fsm"

// State is one of the four pipeline lifecycle states.
type State string

const (
	StateCreated     State = "Created"
	StatePlaying     State = "Playing"
	StateEndOfStream State = "EndOfStream"
	StateError       State = "Error"
)

type event string

const (
	eventStart     event = "start"
	eventParseFail event = "parseFail"
	eventEOS       event = "eos"
	eventFail      event = "fail"
	eventRestart   event = "restart"
)

func transitions() []fsm.Transition[State, event] {
	return []fsm.Transition[State, event]{
		{From: StateCreated, Event: eventStart, To: StatePlaying},
		{From: StateCreated, Event: eventParseFail, To: StateError},
		{From: StatePlaying, Event: eventEOS, To: StateEndOfStream},
		{From: StatePlaying, Event: eventFail, To: StateError},
		{From: StatePlaying, Event: eventRestart, To: StateCreated},
		{From: StateEndOfStream, Event: eventRestart, To: StateCreated},
		{From: StateError, Event: eventRestart, To: StateCreated},
	}
}
