package wizard

import (
	"errors"
	"testing"

	"github.com/mindmentor/questionnaire/internal/model"
)

func TestAnswered(t *testing.T) {
	tests := []struct {
		name string
		ans  model.Answer
		want bool
	}{
		{"absent", model.Answer{}, false},
		{"empty string", model.TextAnswer(""), false},
		{"empty list", model.MultiAnswer(nil), false},
		{"empty list values", model.MultiAnswer([]string{}), false},
		{"list of empties", model.MultiAnswer([]string{"", ""}), false},
		{"single value", model.SingleAnswer("x"), true},
		{"one-element list", model.MultiAnswer([]string{"x"}), true},
		{"text", model.TextAnswer("hello"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Answered(tt.ans); got != tt.want {
				t.Errorf("Answered(%+v) = %v, want %v", tt.ans, got, tt.want)
			}
		})
	}
}

func TestValidateTextMinLength(t *testing.T) {
	q := model.Question{ID: 7, Type: model.TypeText}

	tests := []struct {
		name   string
		text   string
		reason string // empty means valid
	}{
		{"empty", "", ReasonUnanswered},
		{"two chars", "ab", ReasonTooShort},
		{"whitespace padding", "  a \t", ReasonTooShort},
		{"exactly three", "abc", ""},
		{"three after trim", " abc ", ""},
		{"longer", "feeling fine", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAnswer(q, model.TextAnswer(tt.text))
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("ValidateAnswer(%q) = %v, want nil", tt.text, err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateAnswer(%q) = %v, want ValidationError", tt.text, err)
			}
			if verr.Reason != tt.reason || verr.QuestionID != 7 {
				t.Errorf("got %+v, want reason %q", verr, tt.reason)
			}
		})
	}
}

func TestValidateNonTextTypesNeedOnlyPresence(t *testing.T) {
	// The minimum-length rule applies to free text only; a short option
	// value is a perfectly valid selection.
	q := model.Question{ID: 3, Type: model.TypeScale}
	if err := ValidateAnswer(q, model.SingleAnswer("5")); err != nil {
		t.Errorf("scale value rejected: %v", err)
	}
}
