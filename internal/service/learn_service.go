package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"wordmoment/internal/catalog"
	"wordmoment/internal/models"
	"wordmoment/internal/progress"
	"wordmoment/internal/session"
)

var (
	// ErrSessionNotFound is returned for unknown or exited session ids
	ErrSessionNotFound = errors.New("session not found")
	// ErrLevelNotFound is returned when a level has no units in the catalog
	ErrLevelNotFound = errors.New("level not found")
)

// unitKey identifies a catalog unit
type unitKey struct {
	levelID string
	unitID  string
}

type activeSession struct {
	engine   *session.Engine
	unit     unitKey
	lastUsed time.Time
}

// LearnService opens learning sessions over the catalog. At most one engine
// is active per unit: reopening a unit exits the engine opened before it, so
// saved progress only has one writer.
type LearnService struct {
	catalog   *catalog.Catalog
	store     progress.Store
	observers []session.Observer
	logger    *log.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*activeSession
	byUnit   map[unitKey]string
}

// NewLearnService creates a new learn service. Observers are attached to
// every engine it opens.
func NewLearnService(cat *catalog.Catalog, store progress.Store, observers ...session.Observer) *LearnService {
	return &LearnService{
		catalog:   cat,
		store:     store,
		observers: observers,
		logger:    log.Default(),
		now:       time.Now,
		sessions:  make(map[string]*activeSession),
		byUnit:    make(map[unitKey]string),
	}
}

// SetLogger sets the logger handed to new engines
func (s *LearnService) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Levels returns the catalog levels
func (s *LearnService) Levels() []string {
	return s.catalog.Levels()
}

// Units lists the units of a level with their completion flag
func (s *LearnService) Units(ctx context.Context, levelID string) ([]models.UnitSummary, error) {
	units := s.catalog.Units(levelID)
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrLevelNotFound, levelID)
	}

	summaries := make([]models.UnitSummary, len(units))
	for i, u := range units {
		summaries[i] = models.UnitSummary{
			LevelID:   u.LevelID,
			UnitID:    u.UnitID,
			WordCount: u.Len(),
			Finished:  progress.IsFinished(ctx, s.store, u.LevelID, u.UnitID),
		}
	}
	return summaries, nil
}

// Start opens an engine on (levelID, unitID), restoring saved progress. An
// engine already open on the same unit is exited and its id stops resolving.
func (s *LearnService) Start(ctx context.Context, levelID, unitID string) (string, *session.Engine, error) {
	unit, err := s.catalog.Unit(levelID, unitID)
	if err != nil {
		return "", nil, err
	}

	opts := []session.Option{session.WithLogger(s.logger)}
	for _, o := range s.observers {
		opts = append(opts, session.WithObserver(o))
	}

	key := unitKey{levelID: unit.LevelID, unitID: unit.UnitID}

	// Held across the restore so two opens of one unit cannot both win
	s.mu.Lock()
	defer s.mu.Unlock()

	if prevID, ok := s.byUnit[key]; ok {
		s.removeLocked(prevID)
		s.logger.Printf("Session %s replaced: %s/%s reopened", prevID, levelID, unitID)
	}

	engine, err := session.New(ctx, unit, s.store, opts...)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open session: %w", err)
	}

	id := uuid.NewString()
	s.sessions[id] = &activeSession{engine: engine, unit: key, lastUsed: s.now()}
	s.byUnit[key] = id

	s.logger.Printf("Session %s opened for %s/%s at %s word %d", id, levelID, unitID, engine.Phase(), engine.Cursor()+1)
	return id, engine, nil
}

// Get returns the active engine for id and marks the session as used
func (s *LearnService) Get(id string) (*session.Engine, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	active.lastUsed = s.now()
	return active.engine, nil
}

// Exit discards the session. Saved progress is kept.
func (s *LearnService) Exit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.removeLocked(id) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// removeLocked exits and forgets session id. s.mu must be held.
func (s *LearnService) removeLocked(id string) bool {
	active, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	if s.byUnit[active.unit] == id {
		delete(s.byUnit, active.unit)
	}
	active.engine.Exit()
	return true
}

// ActiveSessions returns the number of open sessions
func (s *LearnService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ExpireIdle exits every session not used for longer than idle and returns
// how many were removed
func (s *LearnService) ExpireIdle(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expired := 0
	for id, active := range s.sessions {
		if now.Sub(active.lastUsed) > idle {
			s.removeLocked(id)
			expired++
		}
	}
	return expired
}

// RunExpiry calls ExpireIdle every idle/2 until ctx is done
func (s *LearnService) RunExpiry(ctx context.Context, idle time.Duration) error {
	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.ExpireIdle(idle); n > 0 {
				s.logger.Printf("Expired %d idle sessions, %d still active", n, s.ActiveSessions())
			}
		}
	}
}

// ExitAll discards every open session
func (s *LearnService) ExitAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.sessions {
		s.removeLocked(id)
	}
}
