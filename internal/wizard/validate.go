package wizard

import (
	"fmt"
	"strings"

	"github.com/mindmentor/questionnaire/internal/model"
)

// MinTextAnswerLen is the minimum trimmed length of a free-text answer.
const MinTextAnswerLen = 3

// Validation failure reasons.
const (
	ReasonUnanswered = "unanswered"
	ReasonTooShort   = "too_short"
)

// ValidationError reports the question that blocked a transition.
type ValidationError struct {
	QuestionID int64
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("question %d: %s", e.QuestionID, e.Reason)
}

// Answered reports whether an answer value counts as present: false for the
// zero value, an empty string, and an empty list.
func Answered(ans model.Answer) bool {
	if ans.IsZero() {
		return false
	}
	for _, v := range ans.Values {
		if v != "" {
			return true
		}
	}
	return false
}

// ValidateAnswer applies the per-question answer rules: presence for every
// type, plus the minimum trimmed length for free-text questions.
func ValidateAnswer(q model.Question, ans model.Answer) error {
	if !Answered(ans) {
		return &ValidationError{QuestionID: q.ID, Reason: ReasonUnanswered}
	}
	if q.IsText() && len(strings.TrimSpace(ans.Text())) < MinTextAnswerLen {
		return &ValidationError{QuestionID: q.ID, Reason: ReasonTooShort}
	}
	return nil
}
