package handlers

import (
	"net/url"

	"wordmoment/internal/models"
	"wordmoment/internal/session"
)

// WordView is a word as sent to the client
type WordView struct {
	Text              string   `json:"text"`
	Meaning           string   `json:"meaning"`
	PronunciationHint string   `json:"pronunciationHint,omitempty"`
	DisplayBlocks     []string `json:"displayBlocks,omitempty"`
	AudioURL          string   `json:"audioUrl"`
}

// SessionView is the state of one learning session
type SessionView struct {
	ID                  string       `json:"id"`
	Level               string       `json:"level"`
	Unit                string       `json:"unit"`
	Phase               models.Phase `json:"phase"`
	Cursor              int          `json:"cursor"`
	TotalWords          int          `json:"totalWords"`
	Progress            int          `json:"progress"`
	ProgressRatio       float64      `json:"progressRatio"`
	PendingInput        string       `json:"pendingInput"`
	CurrentWord         WordView     `json:"currentWord"`
	ReinforcementWord   *WordView    `json:"reinforcementWord,omitempty"`
	ReinforcementCursor int          `json:"reinforcementCursor"`
	QueueLength         int          `json:"queueLength"`
}

type LevelsResponse struct {
	Levels []string `json:"levels"`
}

type UnitsResponse struct {
	Level string               `json:"level"`
	Units []models.UnitSummary `json:"units"`
}

type SubmitResponse struct {
	Correct bool        `json:"correct"`
	Session SessionView `json:"session"`
}

type startSessionRequest struct {
	Level string `json:"level" validate:"required"`
	Unit  string `json:"unit" validate:"required"`
}

type inputRequest struct {
	Text string `json:"text"`
}

type submitRequest struct {
	Text *string `json:"text"`
}

func audioURL(text string) string {
	q := url.Values{}
	q.Set("audio", text)
	q.Set("type", "2")
	return audioURLBase + "?" + q.Encode()
}

func newWordView(w models.WordEntry) WordView {
	return WordView{
		Text:              w.Text,
		Meaning:           w.Meaning,
		PronunciationHint: w.PronunciationHint,
		DisplayBlocks:     w.DisplayBlocks,
		AudioURL:          audioURL(w.Text),
	}
}

func newSessionView(id string, snap session.Snapshot) SessionView {
	view := SessionView{
		ID:                  id,
		Level:               snap.LevelID,
		Unit:                snap.UnitID,
		Phase:               snap.Phase,
		Cursor:              snap.Cursor,
		TotalWords:          snap.TotalWords,
		Progress:            snap.Progress,
		ProgressRatio:       snap.ProgressRatio,
		PendingInput:        snap.PendingInput,
		CurrentWord:         newWordView(snap.CurrentWord),
		ReinforcementCursor: snap.ReinforcementCursor,
		QueueLength:         len(snap.ReinforcementQueue),
	}
	if snap.ReinforcementWord != nil {
		w := newWordView(*snap.ReinforcementWord)
		view.ReinforcementWord = &w
	}
	return view
}
