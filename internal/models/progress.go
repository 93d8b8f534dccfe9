package models

// Phase is the mode a learning session is in
type Phase string

const (
	PhaseTyping        Phase = "typing"
	PhaseReinforcement Phase = "reinforcement"
	PhaseComplete      Phase = "complete"
)

// PersistedProgress is the durable per-unit record
type PersistedProgress struct {
	Cursor   int  `json:"cursor"`
	Finished bool `json:"finished"`
}
