package session

import (
	"log"

	"wordmoment/internal/models"
)

// EventKind names an engine transition
type EventKind string

const (
	EventAnswered    EventKind = "answered"
	EventRejected    EventKind = "rejected"
	EventReinforced  EventKind = "reinforced"
	EventWordStarted EventKind = "word_started"
	EventCompleted   EventKind = "completed"
	EventReset       EventKind = "reset"
)

// Event describes an accepted transition, or a rejected submission. State
// fields reflect the engine after the transition.
type Event struct {
	Kind                EventKind        `json:"kind"`
	LevelID             string           `json:"level"`
	UnitID              string           `json:"unit"`
	Phase               models.Phase     `json:"phase"`
	Cursor              int              `json:"cursor"`
	ReinforcementCursor int              `json:"reinforcementCursor"`
	Word                models.WordEntry `json:"word"`
}

// Observer receives engine events. Events are delivered after the
// transition has been persisted and outside the engine lock.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}

// LogObserver logs every event to logger
func LogObserver(logger *log.Logger) Observer {
	return ObserverFunc(func(e Event) {
		logger.Printf("Session %s/%s: %s %q (phase=%s cursor=%d)",
			e.LevelID, e.UnitID, e.Kind, e.Word.Text, e.Phase, e.Cursor)
	})
}
