package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/mindmentor/questionnaire/internal/i18n"
	"github.com/mindmentor/questionnaire/internal/model"
	"github.com/mindmentor/questionnaire/internal/store"
	"github.com/mindmentor/questionnaire/internal/wizard"
)

// Handler holds shared dependencies for HTTP handlers. It keeps one live
// wizard per user so an attempt survives across requests; the wizard itself
// rejects overlapping transitions.
type Handler struct {
	store  *store.Store
	config model.Config

	mu       sync.Mutex
	attempts map[int64]*wizard.Wizard
}

// New creates a new Handler.
func New(s *store.Store, cfg model.Config) *Handler {
	return &Handler{store: s, config: cfg, attempts: make(map[int64]*wizard.Wizard)}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/branding", h.handleBranding)
	r.Get("/api/logout-link", h.handleLogoutLink)
	r.Post("/api/login", h.handleLogin)
	r.Post("/api/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/api/welcome", h.handleWelcome)
		r.Get("/api/questionnaire/status", h.handleStatus)
		r.Post("/api/questionnaire", h.handleDirectSubmit)
		r.Post("/api/attempt", h.handleStartAttempt)
		r.Get("/api/attempt", h.handleAttemptState)
		r.Put("/api/attempt/answer", h.handleSetAnswer)
		r.Post("/api/attempt/next", h.handleNext)
		r.Post("/api/attempt/previous", h.handlePrevious)
		r.Post("/api/attempt/submit", h.handleSubmit)
	})
}

// wizardFor returns the user's wizard, creating one on first use.
func (h *Handler) wizardFor(userID int64) *wizard.Wizard {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.attempts[userID]
	if !ok {
		w = wizard.New(&storeService{store: h.store})
		h.attempts[userID] = w
	}
	return w
}

func (h *Handler) dropWizard(userID int64) {
	h.mu.Lock()
	delete(h.attempts, userID)
	h.mu.Unlock()
}

// contactID resolves the contact record the attempt is filed under. Users
// without a linked contact fall back to their numeric user ID.
func (h *Handler) contactID(user *model.User) string {
	contactID, err := h.store.ContactIDForUser(user.ID)
	if err != nil || contactID == "" {
		return strconv.FormatInt(user.ID, 10)
	}
	return contactID
}

// attemptState is the JSON projection of the wizard for the front end: the
// current question together with its cached answer, so the displayed control
// is always rebuilt from this pair and never carries stale selection state.
type attemptState struct {
	Index      int             `json:"index"`
	Total      int             `json:"total"`
	Question   *model.Question `json:"question,omitempty"`
	Label      string          `json:"label,omitempty"`
	Answer     model.Answer    `json:"answer"`
	First      bool            `json:"first"`
	Last       bool            `json:"last"`
	Persisting bool            `json:"persisting"`
	Warning    string          `json:"warning,omitempty"`
	Message    string          `json:"message,omitempty"`
	Completed  bool            `json:"completed,omitempty"`
}

func (h *Handler) stateOf(wiz *wizard.Wizard) attemptState {
	st := attemptState{
		Index:      wiz.Index(),
		Total:      wiz.Len(),
		Persisting: !wiz.Degraded(),
	}
	if q, ans, ok := wiz.Current(); ok {
		st.Question = &q
		st.Label = q.Label()
		st.Answer = ans
		st.First = st.Index == 0
		st.Last = st.Index == st.Total-1
	}
	return st
}

func (h *Handler) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req struct {
		Resume bool `json:"resume"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	wiz := h.wizardFor(user.ID)
	if err := wiz.Start(r.Context(), h.contactID(user), req.Resume); err != nil {
		h.writeTransitionError(w, r, wiz, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.stateOf(wiz))
}

func (h *Handler) handleAttemptState(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	wiz := h.wizardFor(user.ID)
	if !wiz.Started() {
		writeError(w, http.StatusNotFound, "no active attempt")
		return
	}
	writeJSON(w, http.StatusOK, h.stateOf(wiz))
}

func (h *Handler) handleSetAnswer(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req struct {
		QuestionID int64        `json:"question_id"`
		Answer     model.Answer `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wiz := h.wizardFor(user.ID)
	if err := wiz.SetAnswer(req.QuestionID, req.Answer); err != nil {
		h.writeTransitionError(w, r, wiz, err)
		return
	}
	writeJSON(w, http.StatusOK, h.stateOf(wiz))
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	wiz := h.wizardFor(user.ID)

	warn, err := wiz.Next(r.Context())
	if err != nil {
		h.writeTransitionError(w, r, wiz, err)
		return
	}

	st := h.stateOf(wiz)
	if warn != nil {
		st.Warning = appI18n.T(r.Context(), "SaveWarning")
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	wiz := h.wizardFor(user.ID)

	if err := wiz.Previous(); err != nil {
		h.writeTransitionError(w, r, wiz, err)
		return
	}
	writeJSON(w, http.StatusOK, h.stateOf(wiz))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	wiz := h.wizardFor(user.ID)

	warn, err := wiz.Submit(r.Context())
	if err != nil {
		h.writeTransitionError(w, r, wiz, err)
		return
	}
	h.dropWizard(user.ID)

	st := h.stateOf(wiz)
	st.Completed = true
	st.Message = appI18n.T(r.Context(), "SubmitThanks")
	if warn != nil {
		st.Warning = appI18n.T(r.Context(), "SaveWarning")
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	contactID := h.contactID(user)

	completed, err := h.store.HasCompletedQuestionnaire(contactID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	previous, err := h.store.PreviousSessions(contactID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"has_completed":     completed,
		"previous_sessions": previous,
	})
}

// handleDirectSubmit is the single-call submission path: all answers arrive
// at once, are swept for validity, and are recorded in one transaction.
func (h *Handler) handleDirectSubmit(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req struct {
		Answers map[int64]model.Answer `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	questions, err := h.store.ListQuestions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(questions) == 0 {
		writeError(w, http.StatusServiceUnavailable, appI18n.T(r.Context(), "NoQuestions"))
		return
	}
	for _, q := range questions {
		if err := wizard.ValidateAnswer(q, req.Answers[q.ID]); err != nil {
			h.writeValidationError(w, r, err)
			return
		}
	}

	sessionID, err := h.store.SubmitQuestionnaire(h.contactID(user), req.Answers)
	if err != nil {
		writeError(w, http.StatusBadGateway, appI18n.T(r.Context(), "SubmitFailed"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sessionID,
		"message":    appI18n.T(r.Context(), "SubmitThanks"),
	})
}

// writeTransitionError maps wizard errors onto HTTP responses.
func (h *Handler) writeTransitionError(w http.ResponseWriter, r *http.Request, wiz *wizard.Wizard, err error) {
	var verr *wizard.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeValidationError(w, r, verr)
	case errors.Is(err, wizard.ErrBusy):
		writeError(w, http.StatusConflict, appI18n.T(r.Context(), "AttemptInFlight"))
	case errors.Is(err, wizard.ErrNotStarted):
		writeError(w, http.StatusNotFound, "no active attempt")
	case errors.Is(err, wizard.ErrNoQuestions):
		writeError(w, http.StatusServiceUnavailable, appI18n.T(r.Context(), "NoQuestions"))
	case errors.Is(err, wizard.ErrAtLastQuestion), errors.Is(err, wizard.ErrNotLast):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		// Completion failure: the session stays open, submit is retryable.
		writeError(w, http.StatusBadGateway, appI18n.T(r.Context(), "SubmitFailed"))
	}
}

func (h *Handler) writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *wizard.ValidationError
	if !errors.As(err, &verr) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	msg := appI18n.T(r.Context(), "ValidationUnanswered")
	if verr.Reason == wizard.ReasonTooShort {
		msg = appI18n.Td(r.Context(), "ValidationTooShort", map[string]any{"Min": wizard.MinTextAnswerLen})
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":       msg,
		"question_id": verr.QuestionID,
		"reason":      verr.Reason,
	})
}
