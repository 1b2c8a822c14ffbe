// Package wizard drives one questionnaire attempt: the current position, the
// in-memory answer cache, validation, and best-effort persistence of answers
// through a remote service. Transitions are serialized; an overlapping call
// returns ErrBusy instead of interleaving with an in-flight one.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mindmentor/questionnaire/internal/model"
)

// Service is the narrow interface to the remote questionnaire store. The
// wizard treats it as opaque: failures are surfaced or tolerated per
// operation, never retried internally.
type Service interface {
	// OpenSession opens (or resumes) a session for a contact.
	OpenSession(ctx context.Context, contactID string) (string, error)
	// LoadQuestions returns the ordered question list.
	LoadQuestions(ctx context.Context) ([]model.Question, error)
	// SessionResponses returns previously persisted answers for a session.
	SessionResponses(ctx context.Context, sessionID string) (map[int64]model.Answer, error)
	// SaveAnswer persists one answer. Later writes for the same question
	// supersede earlier ones.
	SaveAnswer(ctx context.Context, sessionID string, questionID int64, ans model.Answer) error
	// CompleteSession marks the session completed.
	CompleteSession(ctx context.Context, sessionID string) error
}

var (
	// ErrBusy is returned when a transition is already in flight.
	ErrBusy = errors.New("wizard: transition in flight")
	// ErrNotStarted is returned for transitions before Start.
	ErrNotStarted = errors.New("wizard: attempt not started")
	// ErrNoQuestions is returned by Start when the catalog is empty. It is
	// distinct from a transport failure: the attempt cannot proceed.
	ErrNoQuestions = errors.New("wizard: no questions available")
	// ErrAtLastQuestion is returned by Next at the last index; only Submit
	// applies there.
	ErrAtLastQuestion = errors.New("wizard: already at last question")
	// ErrNotLast is returned by Submit away from the last index.
	ErrNotLast = errors.New("wizard: not at last question")
)

// SaveWarning reports a failed best-effort answer save. Navigation has
// already proceeded; the warning is for display only.
type SaveWarning struct {
	QuestionID int64
	Err        error
}

func (w *SaveWarning) Error() string {
	return fmt.Sprintf("save answer for question %d: %v", w.QuestionID, w.Err)
}

func (w *SaveWarning) Unwrap() error { return w.Err }

// Wizard is the navigation state machine for one attempt. All methods are
// safe for concurrent use; state-changing operations are additionally
// serialized through a single-slot in-flight guard.
type Wizard struct {
	svc Service

	mu        sync.Mutex
	busy      bool
	started   bool
	degraded  bool // session open failed; answers stay local
	sessionID string
	contactID string
	questions []model.Question
	answers   map[int64]model.Answer
	index     int
}

// New creates a wizard over the given service.
func New(svc Service) *Wizard {
	return &Wizard{svc: svc, answers: make(map[int64]model.Answer)}
}

// begin claims the single transition slot.
func (w *Wizard) begin() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrBusy
	}
	w.busy = true
	return nil
}

func (w *Wizard) end() {
	w.mu.Lock()
	w.busy = false
	w.mu.Unlock()
}

// Start loads the question catalog, opens a session for the contact, and
// enters the first question. With resume set, previously persisted responses
// hydrate the answer cache before the first question is entered, so the
// displayed answer and the index change as one state transition.
//
// A failed session open degrades the attempt to non-persisting instead of
// blocking the user; a failed or empty question load fails the attempt start
// outright.
func (w *Wizard) Start(ctx context.Context, contactID string, resume bool) error {
	if err := w.begin(); err != nil {
		return err
	}
	defer w.end()

	questions, err := w.svc.LoadQuestions(ctx)
	if err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	degraded := false
	sessionID, err := w.svc.OpenSession(ctx, contactID)
	if err != nil {
		slog.Warn("session open failed, continuing without persistence",
			"contact_id", contactID, "error", err)
		degraded = true
		sessionID = ""
	}

	answers := make(map[int64]model.Answer)
	if resume && !degraded {
		prior, err := w.svc.SessionResponses(ctx, sessionID)
		if err != nil {
			slog.Warn("loading prior responses failed",
				"session_id", sessionID, "error", err)
		} else {
			for id, ans := range prior {
				answers[id] = ans
			}
		}
	}

	w.mu.Lock()
	w.started = true
	w.degraded = degraded
	w.sessionID = sessionID
	w.contactID = contactID
	w.questions = questions
	w.answers = answers
	w.index = 0
	w.mu.Unlock()

	slog.Info("attempt started",
		"contact_id", contactID,
		"session_id", sessionID,
		"questions", len(questions),
		"resumed_answers", len(answers),
		"degraded", degraded)
	return nil
}

// SetAnswer records a local answer edit for a question.
func (w *Wizard) SetAnswer(questionID int64, ans model.Answer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return ErrNotStarted
	}
	w.answers[questionID] = ans
	return nil
}

// Answer returns the cached answer for a question, zero if unanswered.
func (w *Wizard) Answer(questionID int64) model.Answer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.answers[questionID]
}

// Hydrate bulk-overwrites the answer cache from persisted responses.
func (w *Wizard) Hydrate(responses map[int64]model.Answer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.answers = make(map[int64]model.Answer, len(responses))
	for id, ans := range responses {
		w.answers[id] = ans
	}
}

// Current returns the question at the current index together with its cached
// answer. The display is a pure function of this pair; no widget state
// carries over between questions. ok is false before Start and after Submit.
func (w *Wizard) Current() (q model.Question, ans model.Answer, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started || w.index >= len(w.questions) {
		return model.Question{}, model.Answer{}, false
	}
	q = w.questions[w.index]
	return q, w.answers[q.ID], true
}

// Index returns the current 0-based question index.
func (w *Wizard) Index() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.index
}

// Len returns the number of questions in the attempt.
func (w *Wizard) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.questions)
}

// Started reports whether an attempt is in progress.
func (w *Wizard) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

// Degraded reports whether the attempt runs without persistence.
func (w *Wizard) Degraded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.degraded
}

// SessionID returns the open session identifier, empty when degraded.
func (w *Wizard) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID
}

// Next validates the current question and advances to the following one.
// The answer for the question being left is persisted best-effort: a save
// failure comes back as a non-nil SaveWarning while navigation proceeds.
// At the last index Next returns ErrAtLastQuestion and the index stays put.
func (w *Wizard) Next(ctx context.Context) (*SaveWarning, error) {
	if err := w.begin(); err != nil {
		return nil, err
	}
	defer w.end()

	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil, ErrNotStarted
	}
	if w.index >= len(w.questions)-1 {
		w.mu.Unlock()
		return nil, ErrAtLastQuestion
	}
	q := w.questions[w.index]
	ans := w.answers[q.ID]
	sessionID, degraded := w.sessionID, w.degraded
	w.mu.Unlock()

	if err := ValidateAnswer(q, ans); err != nil {
		return nil, err
	}

	warn := w.persist(ctx, sessionID, degraded, q, ans)

	w.mu.Lock()
	if w.index < len(w.questions)-1 {
		w.index++
	}
	w.mu.Unlock()
	return warn, nil
}

// Previous steps back one question without validation. The index clamps at
// zero; the cached answer for the newly current question is re-displayed
// through Current.
func (w *Wizard) Previous() error {
	if err := w.begin(); err != nil {
		return err
	}
	defer w.end()

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return ErrNotStarted
	}
	if w.index > 0 {
		w.index--
	}
	return nil
}

// Submit completes the attempt from the last question. Every question is
// swept for validity first; on failure the index jumps to the first failing
// question and a *ValidationError names it. The final answer is flushed
// best-effort, then the session is closed. A completion failure leaves the
// session open and the wizard state intact so Submit can be retried; success
// resets the wizard to its pre-start state.
func (w *Wizard) Submit(ctx context.Context) (*SaveWarning, error) {
	if err := w.begin(); err != nil {
		return nil, err
	}
	defer w.end()

	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil, ErrNotStarted
	}
	if w.index != len(w.questions)-1 {
		w.mu.Unlock()
		return nil, ErrNotLast
	}
	for i, q := range w.questions {
		if err := ValidateAnswer(q, w.answers[q.ID]); err != nil {
			w.index = i
			w.mu.Unlock()
			return nil, err
		}
	}
	last := w.questions[len(w.questions)-1]
	ans := w.answers[last.ID]
	sessionID, degraded := w.sessionID, w.degraded
	w.mu.Unlock()

	warn := w.persist(ctx, sessionID, degraded, last, ans)

	if !degraded {
		if err := w.svc.CompleteSession(ctx, sessionID); err != nil {
			slog.Error("session completion failed", "session_id", sessionID, "error", err)
			return warn, fmt.Errorf("complete session: %w", err)
		}
	}

	w.mu.Lock()
	w.started = false
	w.degraded = false
	w.sessionID = ""
	w.contactID = ""
	w.questions = nil
	w.answers = make(map[int64]model.Answer)
	w.index = 0
	w.mu.Unlock()

	slog.Info("attempt submitted", "session_id", sessionID)
	return warn, nil
}

// persist saves one answer best-effort. Unanswered questions are never sent.
func (w *Wizard) persist(ctx context.Context, sessionID string, degraded bool, q model.Question, ans model.Answer) *SaveWarning {
	if degraded || !Answered(ans) {
		return nil
	}
	if err := w.svc.SaveAnswer(ctx, sessionID, q.ID, ans); err != nil {
		slog.Warn("answer save failed",
			"session_id", sessionID, "question_id", q.ID, "error", err)
		return &SaveWarning{QuestionID: q.ID, Err: err}
	}
	return nil
}
