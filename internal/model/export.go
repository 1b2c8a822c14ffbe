package model

import "time"

// ResultsExport is the top-level JSON structure for results export.
type ResultsExport struct {
	Questionnaire string          `json:"questionnaire"`
	ExportedAt    time.Time       `json:"exported_at"`
	NumQuestions  int             `json:"num_questions"`
	Results       []ContactResult `json:"results"`
}

// ContactResult holds one contact's questionnaire session data for export.
type ContactResult struct {
	ContactID     string         `json:"contact_id"`
	DisplayName   string         `json:"display_name"`
	SessionNumber int            `json:"session_number"`
	Status        SessionStatus  `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	Answers       []AnswerResult `json:"answers"`
}

// AnswerResult holds one persisted answer for export.
type AnswerResult struct {
	QuestionID   int64        `json:"question_id"`
	QuestionText string       `json:"question_text"`
	Type         QuestionType `json:"type"`
	AnswerID     string       `json:"answer_id,omitempty"`
	AnswerText   string       `json:"answer_text,omitempty"`
	AnsweredAt   time.Time    `json:"answered_at"`
}
