package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mindmentor/questionnaire/internal/model"
)

type savedAnswer struct {
	SessionID  string
	QuestionID int64
	Answer     model.Answer
}

// fakeService is an in-memory wizard.Service with injectable failures.
type fakeService struct {
	mu          sync.Mutex
	questions   []model.Question
	responses   map[int64]model.Answer
	loadErr     error
	openErr     error
	saveErr     error
	completeErr error
	saved       []savedAnswer
	completed   []string
	saveGate    chan struct{} // when set, SaveAnswer blocks until closed
}

func (f *fakeService) OpenSession(_ context.Context, contactID string) (string, error) {
	if f.openErr != nil {
		return "", f.openErr
	}
	return "S-" + contactID, nil
}

func (f *fakeService) LoadQuestions(context.Context) ([]model.Question, error) {
	return f.questions, f.loadErr
}

func (f *fakeService) SessionResponses(context.Context, string) (map[int64]model.Answer, error) {
	return f.responses, nil
}

func (f *fakeService) SaveAnswer(_ context.Context, sessionID string, questionID int64, ans model.Answer) error {
	if f.saveGate != nil {
		<-f.saveGate
	}
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, savedAnswer{sessionID, questionID, ans})
	return nil
}

func (f *fakeService) CompleteSession(_ context.Context, sessionID string) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, sessionID)
	return nil
}

func (f *fakeService) savedAnswers() []savedAnswer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]savedAnswer(nil), f.saved...)
}

func threeQuestions() []model.Question {
	return []model.Question{
		{ID: 1, Order: 1, Text: "How are you sleeping?", Type: model.TypeMultipleChoice,
			Options: []model.Option{{ID: 11, Value: "well", Text: "Well"}, {ID: 12, Value: "poorly", Text: "Poorly"}}},
		{ID: 2, Order: 2, Text: "Which habits do you track?", Type: model.TypeMultipleSelect,
			Options: []model.Option{{ID: 21, Value: "mood", Text: "Mood"}, {ID: 22, Value: "exercise", Text: "Exercise"}}},
		{ID: 3, Order: 3, Text: "Anything on your mind?", Type: model.TypeText},
	}
}

func startedWizard(t *testing.T, svc *fakeService) *Wizard {
	t.Helper()
	w := New(svc)
	if err := w.Start(context.Background(), "C1", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return w
}

func mustSet(t *testing.T, w *Wizard, questionID int64, ans model.Answer) {
	t.Helper()
	if err := w.SetAnswer(questionID, ans); err != nil {
		t.Fatalf("SetAnswer(%d): %v", questionID, err)
	}
}

func mustNext(t *testing.T, w *Wizard) {
	t.Helper()
	if warn, err := w.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	} else if warn != nil {
		t.Fatalf("Next warning: %v", warn)
	}
}

func TestStartEmptyCatalog(t *testing.T) {
	w := New(&fakeService{})
	err := w.Start(context.Background(), "C1", false)
	if !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
	if w.Started() {
		t.Error("wizard should not be started after failed Start")
	}
}

func TestStartLoadFailure(t *testing.T) {
	boom := errors.New("boom")
	w := New(&fakeService{loadErr: boom})
	err := w.Start(context.Background(), "C1", false)
	if !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestTransitionsBeforeStart(t *testing.T) {
	w := New(&fakeService{questions: threeQuestions()})
	if _, err := w.Next(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Next: expected ErrNotStarted, got %v", err)
	}
	if err := w.Previous(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Previous: expected ErrNotStarted, got %v", err)
	}
	if _, err := w.Submit(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Submit: expected ErrNotStarted, got %v", err)
	}
	if err := w.SetAnswer(1, model.SingleAnswer("well")); !errors.Is(err, ErrNotStarted) {
		t.Errorf("SetAnswer: expected ErrNotStarted, got %v", err)
	}
}

func TestIndexStaysInBounds(t *testing.T) {
	svc := &fakeService{questions: threeQuestions()}
	w := startedWizard(t, svc)

	// Previous at 0 clamps.
	for i := 0; i < 3; i++ {
		if err := w.Previous(); err != nil {
			t.Fatalf("Previous: %v", err)
		}
	}
	if got := w.Index(); got != 0 {
		t.Fatalf("index after repeated Previous = %d, want 0", got)
	}

	mustSet(t, w, 1, model.SingleAnswer("well"))
	mustNext(t, w)
	mustSet(t, w, 2, model.MultiAnswer([]string{"mood"}))
	mustNext(t, w)

	// Next at the last index is a no-op for the index.
	if _, err := w.Next(context.Background()); !errors.Is(err, ErrAtLastQuestion) {
		t.Fatalf("Next at last: expected ErrAtLastQuestion, got %v", err)
	}
	if got := w.Index(); got != 2 {
		t.Fatalf("index after Next at last = %d, want 2", got)
	}

	// Mixed sequence never leaves [0, N-1].
	_ = w.Previous()
	_ = w.Previous()
	_ = w.Previous()
	_ = w.Previous()
	if got := w.Index(); got < 0 || got >= w.Len() {
		t.Fatalf("index %d out of bounds [0,%d)", got, w.Len())
	}
}

func TestAnswerRoundTrip(t *testing.T) {
	svc := &fakeService{questions: threeQuestions()}
	w := startedWizard(t, svc)

	single := model.SingleAnswer("well")
	mustSet(t, w, 1, single)
	if got := w.Answer(1); got.Value() != "well" || got.Kind != model.AnswerSingle {
		t.Errorf("single round trip: got %+v", got)
	}

	multi := model.MultiAnswer([]string{"mood", "exercise"})
	mustSet(t, w, 2, multi)
	got := w.Answer(2)
	if len(got.List()) != 2 || got.List()[0] != "mood" || got.List()[1] != "exercise" {
		t.Errorf("multi round trip: got %+v", got)
	}

	if !w.Answer(3).IsZero() {
		t.Error("unanswered question should return zero answer")
	}
}

func TestHydrate(t *testing.T) {
	svc := &fakeService{questions: threeQuestions()}
	w := startedWizard(t, svc)

	responses := map[int64]model.Answer{
		1: model.SingleAnswer("poorly"),
		3: model.TextAnswer("stress at work"),
	}
	w.Hydrate(responses)

	for id, want := range responses {
		got := w.Answer(id)
		if got.Value() != want.Value() || got.Kind != want.Kind {
			t.Errorf("Answer(%d) = %+v, want %+v", id, got, want)
		}
	}
	if !w.Answer(2).IsZero() {
		t.Error("question absent from hydration should be unanswered")
	}
}

func TestNextValidatesCurrent(t *testing.T) {
	svc := &fakeService{questions: threeQuestions()}
	w := startedWizard(t, svc)

	_, err := w.Next(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.QuestionID != 1 || verr.Reason != ReasonUnanswered {
		t.Errorf("unexpected validation error: %+v", verr)
	}
	if w.Index() != 0 {
		t.Errorf("index moved on failed validation: %d", w.Index())
	}
	if len(svc.savedAnswers()) != 0 {
		t.Error("nothing should be persisted on failed validation")
	}
}

func TestNextPersistsQuestionBeingLeft(t *testing.T) {
	svc := &fakeService{questions: threeQuestions()}
	w := startedWizard(t, svc)

	mustSet(t, w, 1, model.SingleAnswer("well"))
	mustNext(t, w)

	saved := svc.savedAnswers()
	if len(saved) != 1 {
		t.Fatalf("expected 1 save, got %d", len(saved))
	}
	if saved[0].QuestionID != 1 || saved[0].SessionID != "S-C1" {
		t.Errorf("unexpected save: %+v", saved[0])
	}
	if saved[0].Answer.Value() != "well" {
		t.Errorf("saved answer = %+v", saved[0].Answer)
	}
}

func TestSaveFailureIsNonBlocking(t *testing.T) {
	svc := &fakeService{questions: threeQuestions(), saveErr: errors.New("store down")}
	w := startedWizard(t, svc)

	mustSet(t, w, 1, model.SingleAnswer("well"))
	warn, err := w.Next(context.Background())
	if err != nil {
		t.Fatalf("Next should proceed past a save failure: %v", err)
	}
	if warn == nil || warn.QuestionID != 1 {
		t.Fatalf("expected SaveWarning for question 1, got %v", warn)
	}
	if w.Index() != 1 {
		t.Errorf("index = %d, want 1", w.Index())
	}
}

func TestPreviousRedisplaysCachedAnswer(t *testing.T) {
	svc := &fakeService{questions: threeQuestions()}
	w := startedWizard(t, svc)

	mustSet(t, w, 1, model.SingleAnswer("poorly"))
	mustNext(t, w)
	if err := w.Previous(); err != nil {
		t.Fatalf("Previous: %v", err)
	}

	q, ans, ok := w.Current()
	if !ok || q.ID != 1 {
		t.Fatalf("Current after Previous: q=%+v ok=%v", q, ok)
	}
	if ans.Value() != "poorly" {
		t.Errorf("cached answer not re-displayed: %+v", ans)
	}
}

func TestSubmitSweepJumpsToFirstFailing(t *testing.T) {
	svc := &fakeService{questions: threeQuestions()}
	w := startedWizard(t, svc)

	// Q1 answered, Q2 unanswered, Q3 answered; walk to the end via SetAnswer
	// then clear Q2 to simulate the sweep case.
	mustSet(t, w, 1, model.SingleAnswer("well"))
	mustNext(t, w)
	mustSet(t, w, 2, model.MultiAnswer([]string{"mood"}))
	mustNext(t, w)
	mustSet(t, w, 3, model.TextAnswer("nothing much"))
	mustSet(t, w, 2, model.Answer{})

	_, err := w.Submit(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.QuestionID != 2 {
		t.Errorf("sweep should report question 2, got %d", verr.QuestionID)
	}
	if w.Index() != 1 {
		t.Errorf("index should jump to first failing question, got %d", w.Index())
	}
	if len(svc.completed) != 0 {
		t.Error("session must not complete on sweep failure")
	}
	if w.Started() == false {
		t.Error("state must not reset on sweep failure")
	}
}

func TestSubmitAwayFromLastIndex(t *testing.T) {
	svc := &fakeService{questions: threeQuestions()}
	w := startedWizard(t, svc)
	if _, err := w.Submit(context.Background()); !errors.Is(err, ErrNotLast) {
		t.Fatalf("expected ErrNotLast, got %v", err)
	}
}

func TestCompletionFailureKeepsStateForRetry(t *testing.T) {
	svc := &fakeService{
		questions:   threeQuestions(),
		completeErr: errors.New("store down"),
	}
	w := startedWizard(t, svc)

	mustSet(t, w, 1, model.SingleAnswer("well"))
	mustNext(t, w)
	mustSet(t, w, 2, model.MultiAnswer([]string{"mood"}))
	mustNext(t, w)
	mustSet(t, w, 3, model.TextAnswer("all good"))

	if _, err := w.Submit(context.Background()); err == nil {
		t.Fatal("expected completion error")
	}
	if !w.Started() {
		t.Fatal("state reset despite completion failure")
	}

	// Retry succeeds once the store recovers.
	svc.completeErr = nil
	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if w.Started() {
		t.Error("state should reset after successful submit")
	}
	if len(svc.completed) != 1 || svc.completed[0] != "S-C1" {
		t.Errorf("completed sessions = %v", svc.completed)
	}
}

func TestDegradedModeSkipsPersistence(t *testing.T) {
	svc := &fakeService{
		questions: threeQuestions(),
		openErr:   errors.New("no session backend"),
	}
	w := New(svc)
	if err := w.Start(context.Background(), "C1", false); err != nil {
		t.Fatalf("Start should tolerate session open failure: %v", err)
	}
	if !w.Degraded() {
		t.Fatal("expected degraded attempt")
	}

	mustSet(t, w, 1, model.SingleAnswer("well"))
	mustNext(t, w)
	mustSet(t, w, 2, model.MultiAnswer([]string{"mood"}))
	mustNext(t, w)
	mustSet(t, w, 3, model.TextAnswer("fine"))
	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatalf("Submit in degraded mode: %v", err)
	}

	if len(svc.savedAnswers()) != 0 || len(svc.completed) != 0 {
		t.Error("degraded attempt must not touch the store")
	}
}

// The two-question walkthrough: select an option, advance, fail text
// validation with a two-character answer, fix it, submit.
func TestTwoQuestionScenario(t *testing.T) {
	svc := &fakeService{questions: []model.Question{
		{ID: 1, Order: 1, Text: "Feeling rested?", Type: model.TypeYesNo,
			Options: []model.Option{{ID: 11, Value: "O1", Text: "Yes"}, {ID: 12, Value: "O2", Text: "No"}}},
		{ID: 2, Order: 2, Text: "Tell us more", Type: model.TypeText},
	}}
	w := New(svc)
	if err := w.Start(context.Background(), "U1", false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if w.SessionID() != "S-U1" {
		t.Fatalf("session = %q", w.SessionID())
	}

	mustSet(t, w, 1, model.SingleAnswer("O1"))
	mustNext(t, w)

	saved := svc.savedAnswers()
	if len(saved) != 1 || saved[0].QuestionID != 1 || saved[0].Answer.Value() != "O1" {
		t.Fatalf("unexpected saves after Next: %+v", saved)
	}

	mustSet(t, w, 2, model.TextAnswer("ab"))
	_, err := w.Submit(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.QuestionID != 2 || verr.Reason != ReasonTooShort {
		t.Fatalf("expected too_short for question 2, got %v", err)
	}
	if w.Index() != 1 {
		t.Errorf("index = %d, want 1", w.Index())
	}

	mustSet(t, w, 2, model.TextAnswer("abc"))
	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(svc.completed) != 1 || svc.completed[0] != "S-U1" {
		t.Errorf("completed = %v", svc.completed)
	}
	if _, _, ok := w.Current(); ok {
		t.Error("no current question after reset")
	}
}

func TestResumeHydratesBeforeFirstDisplay(t *testing.T) {
	svc := &fakeService{
		questions: threeQuestions(),
		responses: map[int64]model.Answer{1: model.SingleAnswer("well")},
	}
	w := New(svc)
	if err := w.Start(context.Background(), "C1", true); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The very first display already reflects the persisted answer.
	q, ans, ok := w.Current()
	if !ok || q.ID != 1 {
		t.Fatalf("Current: q=%+v ok=%v", q, ok)
	}
	if ans.Value() != "well" {
		t.Errorf("resumed answer not pre-set: %+v", ans)
	}
}

func TestOverlappingTransitionsRejected(t *testing.T) {
	gate := make(chan struct{})
	svc := &fakeService{questions: threeQuestions(), saveGate: gate}
	w := startedWizard(t, svc)
	mustSet(t, w, 1, model.SingleAnswer("well"))

	done := make(chan error, 1)
	go func() {
		_, err := w.Next(context.Background())
		done <- err
	}()

	// Wait until the first Next holds the transition slot.
	for {
		w.mu.Lock()
		busy := w.busy
		w.mu.Unlock()
		if busy {
			break
		}
	}

	if err := w.Previous(); !errors.Is(err, ErrBusy) {
		t.Errorf("Previous during in-flight Next: expected ErrBusy, got %v", err)
	}
	if _, err := w.Submit(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Submit during in-flight Next: expected ErrBusy, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("in-flight Next: %v", err)
	}
	if w.Index() != 1 {
		t.Errorf("index = %d, want 1", w.Index())
	}
}
