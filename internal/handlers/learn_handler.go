package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"wordmoment/internal/catalog"
	"wordmoment/internal/service"
	"wordmoment/internal/session"
)

// LearnHandler serves the learning session API
type LearnHandler struct {
	learnService *service.LearnService
	validate     *validator.Validate
}

// NewLearnHandler creates a new learn handler
func NewLearnHandler(learnService *service.LearnService) *LearnHandler {
	return &LearnHandler{
		learnService: learnService,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register adds the API routes to mux. submitLimit wraps the submit route.
func (h *LearnHandler) Register(mux *http.ServeMux, submitLimit func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/levels", h.ListLevels)
	mux.HandleFunc("GET /api/levels/{level}/units", h.ListUnits)
	mux.HandleFunc("POST /api/sessions", h.StartSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.GetSession)
	mux.HandleFunc("POST /api/sessions/{id}/input", h.UpdateInput)
	mux.Handle("POST /api/sessions/{id}/submit", submitLimit(http.HandlerFunc(h.Submit)))
	mux.HandleFunc("POST /api/sessions/{id}/advance", h.Advance)
	mux.HandleFunc("POST /api/sessions/{id}/reset", h.Reset)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.ExitSession)
}

// ListLevels returns the catalog levels
func (h *LearnHandler) ListLevels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, LevelsResponse{Levels: h.learnService.Levels()})
}

// ListUnits returns the units of a level with their completion flags
func (h *LearnHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	level := r.PathValue("level")

	units, err := h.learnService.Units(r.Context(), level)
	if errors.Is(err, service.ErrLevelNotFound) {
		respondWithError(w, http.StatusNotFound, ErrLevelNotFound, "", nil)
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error listing units", err)
		return
	}

	respondJSON(w, http.StatusOK, UnitsResponse{Level: level, Units: units})
}

// StartSession opens a unit, restoring saved progress
func (h *LearnHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidRequestBody, "", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "level and unit are required", "", nil)
		return
	}

	id, engine, err := h.learnService.Start(r.Context(), req.Level, req.Unit)
	if errors.Is(err, catalog.ErrUnitNotFound) {
		respondWithError(w, http.StatusNotFound, ErrUnitNotFound, "", nil)
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error starting session", err)
		return
	}

	respondJSON(w, http.StatusCreated, newSessionView(id, engine.Snapshot()))
}

// GetSession returns the session state
func (h *LearnHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(id, engine.Snapshot()))
}

// UpdateInput stores the learner's in-progress text
func (h *LearnHandler) UpdateInput(w http.ResponseWriter, r *http.Request) {
	id, engine, ok := h.engine(w, r)
	if !ok {
		return
	}

	var req inputRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidRequestBody, "", nil)
		return
	}

	engine.UpdateInput(req.Text)
	respondJSON(w, http.StatusOK, newSessionView(id, engine.Snapshot()))
}

// Submit checks an answer. Without text the pending input is submitted.
func (h *LearnHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, engine, ok := h.engine(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidRequestBody, "", nil)
		return
	}

	var correct bool
	var err error
	if req.Text != nil {
		correct, err = engine.Submit(r.Context(), *req.Text)
	} else {
		correct, err = engine.SubmitPending(r.Context())
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error submitting answer", err)
		return
	}

	respondJSON(w, http.StatusOK, SubmitResponse{
		Correct: correct,
		Session: newSessionView(id, engine.Snapshot()),
	})
}

// Advance moves reinforcement on by one word
func (h *LearnHandler) Advance(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "Error advancing session", (*session.Engine).Advance)
}

// Reset starts the unit over
func (h *LearnHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "Error resetting session", (*session.Engine).Reset)
}

// ExitSession discards the session
func (h *LearnHandler) ExitSession(w http.ResponseWriter, r *http.Request) {
	if err := h.learnService.Exit(r.PathValue("id")); err != nil {
		respondWithError(w, http.StatusNotFound, ErrSessionNotFound, "", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LearnHandler) command(w http.ResponseWriter, r *http.Request, logMsg string, fn func(*session.Engine, context.Context) error) {
	id, engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := fn(engine, r.Context()); err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, logMsg, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionView(id, engine.Snapshot()))
}

func (h *LearnHandler) engine(w http.ResponseWriter, r *http.Request) (string, *session.Engine, bool) {
	id := r.PathValue("id")
	engine, err := h.learnService.Get(id)
	if err != nil {
		respondWithError(w, http.StatusNotFound, ErrSessionNotFound, "", nil)
		return "", nil, false
	}
	return id, engine, true
}

// decodeJSON decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
