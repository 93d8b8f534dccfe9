package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wordmoment/internal/models"
	"wordmoment/internal/progress"
)

func testUnit(words ...string) models.Unit {
	entries := make([]models.WordEntry, len(words))
	for i, w := range words {
		entries[i] = models.WordEntry{Text: w, Meaning: "meaning of " + w}
	}
	return models.Unit{LevelID: "Starter", UnitID: "Unit 1", Words: entries}
}

func texts(words []models.WordEntry) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.Text
	}
	return out
}

func newStore() *progress.BlobStore {
	return progress.NewBlobStore(progress.NewMemoryBackend(nil))
}

// flakyStore fails every Save while fail is set
type flakyStore struct {
	progress.Store
	fail bool
}

var errStoreDown = errors.New("store unavailable")

func (s *flakyStore) Save(ctx context.Context, levelID, unitID string, record models.PersistedProgress) error {
	if s.fail {
		return errStoreDown
	}
	return s.Store.Save(ctx, levelID, unitID, record)
}

func TestNewFreshSession(t *testing.T) {
	e, err := New(context.Background(), testUnit("cat", "dog", "cow"), newStore())
	require.NoError(t, err)

	assert.Equal(t, models.PhaseTyping, e.Phase())
	assert.Equal(t, 0, e.Cursor())
	assert.Equal(t, "cat", e.CurrentWord().Text)
	assert.Empty(t, e.ReinforcementQueue())
	_, ok := e.CurrentReinforcementWord()
	assert.False(t, ok)
	assert.InDelta(t, 1.0/3.0, e.ProgressRatio(), 1e-9)

	done, total := e.Progress()
	assert.Equal(t, 1, done)
	assert.Equal(t, 3, total)
}

func TestNewEmptyUnit(t *testing.T) {
	_, err := New(context.Background(), testUnit(), newStore())
	assert.ErrorIs(t, err, ErrEmptyUnit)
}

func TestCatDogScenario(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, testUnit("cat", "dog"), newStore())
	require.NoError(t, err)

	ok, err := e.Submit(ctx, "cat")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.PhaseReinforcement, e.Phase())
	assert.Equal(t, []string{"cat"}, texts(e.ReinforcementQueue()))
	assert.Equal(t, 0, e.ReinforcementCursor())

	require.NoError(t, e.Advance(ctx))
	assert.Equal(t, models.PhaseTyping, e.Phase())
	assert.Equal(t, 1, e.Cursor())

	ok, err = e.Submit(ctx, "dog")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.PhaseReinforcement, e.Phase())
	assert.Equal(t, []string{"cat", "dog"}, texts(e.ReinforcementQueue()))
	assert.Equal(t, 0, e.ReinforcementCursor())

	require.NoError(t, e.Advance(ctx))
	assert.Equal(t, 1, e.ReinforcementCursor())
	w, ok := e.CurrentReinforcementWord()
	require.True(t, ok)
	assert.Equal(t, "dog", w.Text)

	require.NoError(t, e.Advance(ctx))
	assert.Equal(t, models.PhaseComplete, e.Phase())
	assert.Equal(t, 1, e.Cursor())
	assert.Equal(t, 1.0, e.ProgressRatio())
}

type transcriptStep struct {
	Command             string                    `json:"command"`
	Result              *bool                     `json:"result,omitempty"`
	Phase               models.Phase              `json:"phase"`
	Cursor              int                       `json:"cursor"`
	ReinforcementCursor int                       `json:"reinforcementCursor"`
	Queue               []string                  `json:"queue"`
	Saved               *models.PersistedProgress `json:"saved,omitempty"`
	Events              []EventKind               `json:"events"`
}

func TestCatDogTranscript(t *testing.T) {
	ctx := context.Background()
	store := newStore()

	var events []EventKind
	e, err := New(ctx, testUnit("cat", "dog"), store, WithObserver(ObserverFunc(func(ev Event) {
		events = append(events, ev.Kind)
	})))
	require.NoError(t, err)

	var steps []transcriptStep
	record := func(command string, result *bool) {
		step := transcriptStep{
			Command:             command,
			Result:              result,
			Phase:               e.Phase(),
			Cursor:              e.Cursor(),
			ReinforcementCursor: e.ReinforcementCursor(),
			Queue:               texts(e.ReinforcementQueue()),
			Events:              append([]EventKind{}, events...),
		}
		if saved, ok := store.Load(ctx, "Starter", "Unit 1"); ok {
			step.Saved = &saved
		}
		steps = append(steps, step)
		events = nil
	}
	submit := func(command, text string) {
		ok, err := e.Submit(ctx, text)
		require.NoError(t, err)
		record(command, &ok)
	}
	advance := func() {
		require.NoError(t, e.Advance(ctx))
		record("advance", nil)
	}

	submit("submit bird", "bird")
	submit("submit CAT", " CAT\t")
	advance()
	submit("submit dog", "dog")
	advance()
	advance()
	advance()
	require.NoError(t, e.Reset(ctx))
	record("reset", nil)

	got, err := json.MarshalIndent(steps, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "cat_dog_transcript", got)
}

func TestSubmitCaseAndWhitespace(t *testing.T) {
	for _, typed := range []string{"Apple ", "apple", "APPLE"} {
		t.Run(typed, func(t *testing.T) {
			e, err := New(context.Background(), testUnit("apple"), newStore())
			require.NoError(t, err)

			ok, err := e.Submit(context.Background(), typed)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestSubmitMismatchLeavesState(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	e, err := New(ctx, testUnit("cat", "dog"), store)
	require.NoError(t, err)

	e.UpdateInput("cta")
	ok, err := e.SubmitPending(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, models.PhaseTyping, e.Phase())
	assert.Equal(t, "cta", e.PendingInput(), "pending input is kept for retry")
	_, saved := store.Load(ctx, "Starter", "Unit 1")
	assert.False(t, saved, "a rejected answer is not persisted")

	e.UpdateInput("cat")
	ok, err = e.SubmitPending(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, e.PendingInput())
}

func TestReinforcementQueueIsCumulative(t *testing.T) {
	ctx := context.Background()
	words := []string{"one", "two", "three", "four", "five"}
	e, err := New(ctx, testUnit(words...), newStore())
	require.NoError(t, err)

	for k, w := range words {
		ok, err := e.Submit(ctx, w)
		require.NoError(t, err)
		require.True(t, ok)

		queue := e.ReinforcementQueue()
		require.Len(t, queue, k+1)
		assert.Equal(t, words[:k+1], texts(queue))

		// The queue is consumed by exactly len(queue) advances
		for i := 0; i < len(queue); i++ {
			assert.Equal(t, models.PhaseReinforcement, e.Phase())
			require.NoError(t, e.Advance(ctx))
		}

		if k < len(words)-1 {
			assert.Equal(t, models.PhaseTyping, e.Phase())
			assert.Equal(t, k+1, e.Cursor())
		} else {
			assert.Equal(t, models.PhaseComplete, e.Phase())
			assert.Equal(t, k, e.Cursor())
		}
	}
}

func TestGuardViolationsAreNoOps(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	e, err := New(ctx, testUnit("cat", "dog"), store)
	require.NoError(t, err)

	require.NoError(t, e.Advance(ctx))
	assert.Equal(t, models.PhaseTyping, e.Phase())
	_, saved := store.Load(ctx, "Starter", "Unit 1")
	assert.False(t, saved)

	ok, err := e.Submit(ctx, "cat")
	require.NoError(t, err)
	require.True(t, ok)

	// Typing and submitting during reinforcement are dropped
	e.UpdateInput("dog")
	assert.Empty(t, e.PendingInput())
	ok, err = e.Submit(ctx, "cat")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.PhaseReinforcement, e.Phase())
	assert.Equal(t, 0, e.ReinforcementCursor())
}

func TestPersistsEveryTransition(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	e, err := New(ctx, testUnit("cat", "dog"), store)
	require.NoError(t, err)

	load := func() models.PersistedProgress {
		t.Helper()
		rec, ok := store.Load(ctx, "Starter", "Unit 1")
		require.True(t, ok)
		return rec
	}

	_, err = e.Submit(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, models.PersistedProgress{Cursor: 0}, load())

	require.NoError(t, e.Advance(ctx))
	assert.Equal(t, models.PersistedProgress{Cursor: 1}, load())

	_, err = e.Submit(ctx, "dog")
	require.NoError(t, err)
	require.NoError(t, e.Advance(ctx))
	require.NoError(t, e.Advance(ctx))
	assert.Equal(t, models.PersistedProgress{Cursor: 1, Finished: true}, load())

	require.NoError(t, e.Reset(ctx))
	assert.Equal(t, models.PersistedProgress{Cursor: 0, Finished: false}, load())
	assert.Equal(t, models.PhaseTyping, e.Phase())
	assert.Equal(t, 0, e.Cursor())
	assert.Empty(t, e.ReinforcementQueue())
	assert.Equal(t, 0, e.ReinforcementCursor())
}

func TestRestore(t *testing.T) {
	tests := []struct {
		name       string
		record     *models.PersistedProgress
		wantPhase  models.Phase
		wantCursor int
		wantLog    bool
	}{
		{name: "nothing saved", wantPhase: models.PhaseTyping, wantCursor: 0},
		{name: "in progress", record: &models.PersistedProgress{Cursor: 2}, wantPhase: models.PhaseTyping, wantCursor: 2},
		{name: "finished pins last word", record: &models.PersistedProgress{Cursor: 0, Finished: true}, wantPhase: models.PhaseComplete, wantCursor: 3},
		{name: "cursor past end", record: &models.PersistedProgress{Cursor: 4}, wantPhase: models.PhaseTyping, wantCursor: 0, wantLog: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore()
			if tt.record != nil {
				require.NoError(t, store.Save(ctx, "Starter", "Unit 1", *tt.record))
			}

			var buf bytes.Buffer
			e, err := New(ctx, testUnit("a", "b", "c", "d"), store, WithLogger(log.New(&buf, "", 0)))
			require.NoError(t, err)

			assert.Equal(t, tt.wantPhase, e.Phase())
			assert.Equal(t, tt.wantCursor, e.Cursor())
			assert.Empty(t, e.ReinforcementQueue())
			assert.Equal(t, tt.wantLog, buf.Len() > 0)
		})
	}
}

func TestRestoreFinishedThenReset(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	require.NoError(t, store.Save(ctx, "Starter", "Unit 1", models.PersistedProgress{Cursor: 1, Finished: true}))

	e, err := New(ctx, testUnit("cat", "dog"), store)
	require.NoError(t, err)
	require.Equal(t, models.PhaseComplete, e.Phase())

	// Nothing to advance from a restored completion
	require.NoError(t, e.Advance(ctx))
	assert.Equal(t, models.PhaseComplete, e.Phase())

	require.NoError(t, e.Reset(ctx))
	assert.Equal(t, models.PhaseTyping, e.Phase())
	assert.False(t, progress.IsFinished(ctx, store, "Starter", "Unit 1"))
}

func TestRestoreFromMalformedBlob(t *testing.T) {
	ctx := context.Background()
	store := progress.NewBlobStore(progress.NewMemoryBackend([]byte(`["not", "an", "object"]`)))

	e, err := New(ctx, testUnit("cat"), store)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseTyping, e.Phase())

	ok, err := e.Submit(ctx, "cat")
	require.NoError(t, err)
	assert.True(t, ok)

	rec, found := store.Load(ctx, "Starter", "Unit 1")
	require.True(t, found)
	assert.Equal(t, 0, rec.Cursor)
}

func TestFailedSaveRollsBack(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: newStore()}

	var events []Event
	e, err := New(ctx, testUnit("cat", "dog"), store, WithObserver(ObserverFunc(func(ev Event) {
		events = append(events, ev)
	})))
	require.NoError(t, err)

	store.fail = true
	ok, err := e.Submit(ctx, "cat")
	assert.ErrorIs(t, err, errStoreDown)
	assert.False(t, ok)
	assert.Equal(t, models.PhaseTyping, e.Phase())
	assert.Empty(t, e.ReinforcementQueue())
	assert.Empty(t, events)

	store.fail = false
	ok, err = e.Submit(ctx, "cat")
	require.NoError(t, err)
	require.True(t, ok)

	store.fail = true
	assert.ErrorIs(t, e.Advance(ctx), errStoreDown)
	assert.Equal(t, models.PhaseReinforcement, e.Phase())
	assert.Equal(t, 0, e.Cursor())

	assert.ErrorIs(t, e.Reset(ctx), errStoreDown)
	assert.Equal(t, models.PhaseReinforcement, e.Phase())

	store.fail = false
	require.NoError(t, e.Advance(ctx))
	assert.Equal(t, models.PhaseTyping, e.Phase())
	assert.Equal(t, 1, e.Cursor())
	require.Len(t, events, 2)
	assert.Equal(t, EventAnswered, events[0].Kind)
	assert.Equal(t, EventWordStarted, events[1].Kind)
}

func TestExit(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	e, err := New(ctx, testUnit("cat", "dog"), store)
	require.NoError(t, err)

	_, err = e.Submit(ctx, "cat")
	require.NoError(t, err)
	e.Exit()

	require.NoError(t, e.Advance(ctx))
	require.NoError(t, e.Reset(ctx))
	assert.Equal(t, models.PhaseReinforcement, e.Phase())

	rec, ok := store.Load(ctx, "Starter", "Unit 1")
	require.True(t, ok)
	assert.Equal(t, models.PersistedProgress{Cursor: 0}, rec)
}

func TestEvents(t *testing.T) {
	ctx := context.Background()

	var events []Event
	e, err := New(ctx, testUnit("cat", "dog"), newStore(), WithObserver(ObserverFunc(func(ev Event) {
		events = append(events, ev)
	})))
	require.NoError(t, err)

	_, _ = e.Submit(ctx, "cow")
	_, _ = e.Submit(ctx, "cat")
	_ = e.Advance(ctx)
	_, _ = e.Submit(ctx, "dog")
	_ = e.Advance(ctx)
	_ = e.Advance(ctx)

	require.Len(t, events, 6)
	assert.Equal(t, Event{Kind: EventRejected, LevelID: "Starter", UnitID: "Unit 1", Phase: models.PhaseTyping, Word: e.Unit().Words[0]}, events[0])
	assert.Equal(t, EventAnswered, events[1].Kind)
	assert.Equal(t, "cat", events[1].Word.Text)
	assert.Equal(t, EventWordStarted, events[2].Kind)
	assert.Equal(t, "dog", events[2].Word.Text)
	assert.Equal(t, 1, events[2].Cursor)
	assert.Equal(t, EventReinforced, events[4].Kind)
	assert.Equal(t, 1, events[4].ReinforcementCursor)
	assert.Equal(t, EventCompleted, events[5].Kind)
	assert.Equal(t, models.PhaseComplete, events[5].Phase)
}

func TestObserverMayQueryEngine(t *testing.T) {
	ctx := context.Background()

	var e *Engine
	var phases []models.Phase
	e, err := New(ctx, testUnit("cat"), newStore(), WithObserver(ObserverFunc(func(Event) {
		phases = append(phases, e.Phase())
	})))
	require.NoError(t, err)

	_, err = e.Submit(ctx, "cat")
	require.NoError(t, err)
	require.NoError(t, e.Advance(ctx))

	assert.Equal(t, []models.Phase{models.PhaseReinforcement, models.PhaseComplete}, phases)
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	LogObserver(log.New(&buf, "", 0)).OnEvent(Event{
		Kind: EventCompleted, LevelID: "CET4", UnitID: "Unit 1", Phase: models.PhaseComplete,
		Word: models.WordEntry{Text: "cat"},
	})
	assert.Equal(t, "Session CET4/Unit 1: completed \"cat\" (phase=complete cursor=0)\n", buf.String())
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, testUnit("cat", "dog"), newStore())
	require.NoError(t, err)

	snap := e.Snapshot()
	assert.Nil(t, snap.ReinforcementWord)
	assert.Equal(t, []models.WordEntry{}, snap.ReinforcementQueue)

	_, err = e.Submit(ctx, "cat")
	require.NoError(t, err)

	snap = e.Snapshot()
	assert.Equal(t, "Starter", snap.LevelID)
	assert.Equal(t, models.PhaseReinforcement, snap.Phase)
	assert.Equal(t, 2, snap.TotalWords)
	assert.Equal(t, 1, snap.Progress)
	assert.Equal(t, 0.5, snap.ProgressRatio)
	require.NotNil(t, snap.ReinforcementWord)
	assert.Equal(t, "cat", snap.ReinforcementWord.Text)
	assert.Equal(t, "cat", snap.CurrentWord.Text)

	// Mutating the snapshot does not reach the engine
	snap.ReinforcementQueue[0].Text = "changed"
	assert.Equal(t, "cat", e.ReinforcementQueue()[0].Text)
}

func TestEngineOwnsWords(t *testing.T) {
	unit := testUnit("cat", "dog")
	e, err := New(context.Background(), unit, newStore())
	require.NoError(t, err)

	unit.Words[0].Text = "changed"
	assert.Equal(t, "cat", e.CurrentWord().Text)
}
