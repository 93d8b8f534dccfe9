package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"wordmoment/internal/models"
	"wordmoment/internal/progress"
)

// ErrEmptyUnit is returned when an engine is opened on a unit without words
var ErrEmptyUnit = errors.New("unit has no words")

// state is the mutable part of an engine. Transitions build a new state,
// persist it and only then replace the current one.
type state struct {
	phase               models.Phase
	cursor              int
	pendingInput        string
	queue               []models.WordEntry
	reinforcementCursor int
}

// Engine drives one unit through typing, reinforcement and completion.
// Commands are serialised by an internal mutex.
type Engine struct {
	mu sync.Mutex

	unit      models.Unit
	store     progress.Store
	logger    *log.Logger
	observers []Observer

	st     state
	exited bool
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used for restore diagnostics
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithObserver registers an observer for engine events
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// New opens an engine on unit, seeded from any progress saved for it
func New(ctx context.Context, unit models.Unit, store progress.Store, opts ...Option) (*Engine, error) {
	if len(unit.Words) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrEmptyUnit, unit.LevelID, unit.UnitID)
	}

	// The engine owns its copy of the word list
	unit.Words = append([]models.WordEntry(nil), unit.Words...)

	e := &Engine{
		unit:   unit,
		store:  store,
		logger: log.Default(),
		st:     state{phase: models.PhaseTyping},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.restore(ctx)
	return e, nil
}

func (e *Engine) restore(ctx context.Context) {
	saved, ok := e.store.Load(ctx, e.unit.LevelID, e.unit.UnitID)
	if !ok {
		return
	}

	last := len(e.unit.Words) - 1
	if saved.Finished {
		e.st = state{phase: models.PhaseComplete, cursor: last}
		return
	}
	if saved.Cursor < 0 || saved.Cursor > last {
		e.logger.Printf("Ignoring saved cursor %d for %s/%s: unit has %d words",
			saved.Cursor, e.unit.LevelID, e.unit.UnitID, len(e.unit.Words))
		return
	}
	e.st = state{phase: models.PhaseTyping, cursor: saved.Cursor}
}

// commit persists next and makes it the current state. On a failed write
// the current state is left untouched.
func (e *Engine) commit(ctx context.Context, next state) error {
	record := models.PersistedProgress{
		Cursor:   next.cursor,
		Finished: next.phase == models.PhaseComplete,
	}
	if err := e.store.Save(ctx, e.unit.LevelID, e.unit.UnitID, record); err != nil {
		return err
	}
	e.st = next
	return nil
}

func (e *Engine) event(kind EventKind, word models.WordEntry) Event {
	return Event{
		Kind:                kind,
		LevelID:             e.unit.LevelID,
		UnitID:              e.unit.UnitID,
		Phase:               e.st.phase,
		Cursor:              e.st.cursor,
		ReinforcementCursor: e.st.reinforcementCursor,
		Word:                word,
	}
}

func (e *Engine) emit(ev Event) {
	for _, o := range e.observers {
		o.OnEvent(ev)
	}
}

// UpdateInput replaces the pending input. Ignored outside the typing phase.
func (e *Engine) UpdateInput(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.exited || e.st.phase != models.PhaseTyping {
		return
	}
	e.st.pendingInput = text
}

// Submit checks raw against the current word. A match starts reinforcement
// over every word up to and including the current one. A mismatch returns
// false and changes nothing. The error is non-nil only when the transition
// could not be persisted, in which case the state is unchanged.
func (e *Engine) Submit(ctx context.Context, raw string) (bool, error) {
	e.mu.Lock()

	if e.exited || e.st.phase != models.PhaseTyping {
		e.mu.Unlock()
		return false, nil
	}

	word := e.unit.Words[e.st.cursor]
	if !Matches(raw, word.Text) {
		ev := e.event(EventRejected, word)
		e.mu.Unlock()
		e.emit(ev)
		return false, nil
	}

	next := state{
		phase:  models.PhaseReinforcement,
		cursor: e.st.cursor,
		queue:  append([]models.WordEntry(nil), e.unit.Words[:e.st.cursor+1]...),
	}
	if err := e.commit(ctx, next); err != nil {
		e.mu.Unlock()
		return false, err
	}

	ev := e.event(EventAnswered, word)
	e.mu.Unlock()
	e.emit(ev)
	return true, nil
}

// SubmitPending submits the current pending input
func (e *Engine) SubmitPending(ctx context.Context) (bool, error) {
	e.mu.Lock()
	pending := e.st.pendingInput
	e.mu.Unlock()

	return e.Submit(ctx, pending)
}

// Advance moves reinforcement on by one word. After the last queued word it
// starts the next word, or completes the unit. Ignored outside reinforcement.
func (e *Engine) Advance(ctx context.Context) error {
	e.mu.Lock()

	if e.exited || e.st.phase != models.PhaseReinforcement {
		e.mu.Unlock()
		return nil
	}

	next := e.st
	var kind EventKind
	var word models.WordEntry

	switch {
	case e.st.reinforcementCursor < len(e.st.queue)-1:
		next.reinforcementCursor++
		kind = EventReinforced
		word = next.queue[next.reinforcementCursor]
	case e.st.cursor < len(e.unit.Words)-1:
		next = state{phase: models.PhaseTyping, cursor: e.st.cursor + 1}
		kind = EventWordStarted
		word = e.unit.Words[next.cursor]
	default:
		next = state{phase: models.PhaseComplete, cursor: e.st.cursor}
		kind = EventCompleted
		word = e.unit.Words[next.cursor]
	}

	if err := e.commit(ctx, next); err != nil {
		e.mu.Unlock()
		return err
	}

	ev := e.event(kind, word)
	e.mu.Unlock()
	e.emit(ev)
	return nil
}

// Reset returns the unit to the first word and persists the fresh record
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()

	if e.exited {
		e.mu.Unlock()
		return nil
	}

	if err := e.commit(ctx, state{phase: models.PhaseTyping}); err != nil {
		e.mu.Unlock()
		return err
	}

	ev := e.event(EventReset, e.unit.Words[0])
	e.mu.Unlock()
	e.emit(ev)
	return nil
}

// Exit discards the session. Saved progress is left as last written and
// every later command is a no-op.
func (e *Engine) Exit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exited = true
}

// Unit returns the unit the engine is bound to
func (e *Engine) Unit() models.Unit {
	return e.unit
}

func (e *Engine) Phase() models.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.phase
}

func (e *Engine) Cursor() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.cursor
}

func (e *Engine) PendingInput() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.pendingInput
}

// CurrentWord returns the word at the cursor
func (e *Engine) CurrentWord() models.WordEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unit.Words[e.st.cursor]
}

// CurrentReinforcementWord returns the word being replayed. ok is false
// outside reinforcement.
func (e *Engine) CurrentReinforcementWord() (models.WordEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.reinforcementWord()
}

func (s state) reinforcementWord() (models.WordEntry, bool) {
	if s.phase != models.PhaseReinforcement || s.reinforcementCursor >= len(s.queue) {
		return models.WordEntry{}, false
	}
	return s.queue[s.reinforcementCursor], true
}

// ReinforcementQueue returns a copy of the reinforcement queue
func (e *Engine) ReinforcementQueue() []models.WordEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.WordEntry(nil), e.st.queue...)
}

func (e *Engine) ReinforcementCursor() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.reinforcementCursor
}

// Progress returns the 1-based position of the cursor and the word count
func (e *Engine) Progress() (done, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.cursor + 1, len(e.unit.Words)
}

// ProgressRatio returns (cursor+1) / word count
func (e *Engine) ProgressRatio() float64 {
	done, total := e.Progress()
	return float64(done) / float64(total)
}

// Snapshot is a consistent view of the engine for presentation
type Snapshot struct {
	LevelID             string             `json:"level"`
	UnitID              string             `json:"unit"`
	Phase               models.Phase       `json:"phase"`
	Cursor              int                `json:"cursor"`
	TotalWords          int                `json:"totalWords"`
	Progress            int                `json:"progress"`
	ProgressRatio       float64            `json:"progressRatio"`
	PendingInput        string             `json:"pendingInput"`
	CurrentWord         models.WordEntry   `json:"currentWord"`
	ReinforcementWord   *models.WordEntry  `json:"reinforcementWord,omitempty"`
	ReinforcementCursor int                `json:"reinforcementCursor"`
	ReinforcementQueue  []models.WordEntry `json:"reinforcementQueue"`
}

// Snapshot returns every query in one value
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := len(e.unit.Words)
	snap := Snapshot{
		LevelID:             e.unit.LevelID,
		UnitID:              e.unit.UnitID,
		Phase:               e.st.phase,
		Cursor:              e.st.cursor,
		TotalWords:          total,
		Progress:            e.st.cursor + 1,
		ProgressRatio:       float64(e.st.cursor+1) / float64(total),
		PendingInput:        e.st.pendingInput,
		CurrentWord:         e.unit.Words[e.st.cursor],
		ReinforcementCursor: e.st.reinforcementCursor,
		ReinforcementQueue:  append([]models.WordEntry{}, e.st.queue...),
	}
	if w, ok := e.st.reinforcementWord(); ok {
		snap.ReinforcementWord = &w
	}
	return snap
}
