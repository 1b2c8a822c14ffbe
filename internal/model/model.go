package model

import (
	"context"
	"fmt"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleParticipant is a regular questionnaire participant.
	UserRoleParticipant UserRole = "participant"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user. ContactID links the user to the contact
// record that questionnaire sessions are filed under.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	Email        string
	AvatarURL    string
	ContactID    string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// QuestionType classifies how a question is answered and displayed.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeMultipleSelect QuestionType = "multiple_select"
	TypeText           QuestionType = "text"
	TypeScale          QuestionType = "scale"
	TypeYesNo          QuestionType = "yes_no"
)

// Option is one selectable choice belonging to a question.
type Option struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
	Text  string `json:"text"`
}

// Question is one questionnaire item. The list order of questions as
// returned by the store governs navigation; Order is display metadata only.
type Question struct {
	ID      int64        `json:"id"`
	Order   int          `json:"order"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []Option     `json:"options"`
}

// Label combines the position and text into a composite display label.
func (q Question) Label() string {
	return fmt.Sprintf("%d. %s", q.Order, q.Text)
}

func (q Question) IsText() bool           { return q.Type == TypeText }
func (q Question) IsScale() bool          { return q.Type == TypeScale }
func (q Question) IsYesNo() bool          { return q.Type == TypeYesNo }
func (q Question) IsMultipleChoice() bool { return q.Type == TypeMultipleChoice }
func (q Question) IsMultipleSelect() bool { return q.Type == TypeMultipleSelect }

// SingleSelect reports whether the question takes exactly one option value.
func (q Question) SingleSelect() bool {
	return q.Type == TypeMultipleChoice || q.Type == TypeScale || q.Type == TypeYesNo
}

// AnswerKind discriminates the shape of an answer value.
type AnswerKind string

const (
	AnswerNone   AnswerKind = ""
	AnswerSingle AnswerKind = "single"
	AnswerMulti  AnswerKind = "multi"
	AnswerText   AnswerKind = "text"
)

// Answer holds one question's answer: a single option value, a set of option
// values, or free text. The zero value means "not answered".
type Answer struct {
	Kind   AnswerKind `json:"kind"`
	Values []string   `json:"values"`
}

// SingleAnswer builds a single-select answer.
func SingleAnswer(value string) Answer {
	return Answer{Kind: AnswerSingle, Values: []string{value}}
}

// MultiAnswer builds a multi-select answer.
func MultiAnswer(values []string) Answer {
	return Answer{Kind: AnswerMulti, Values: values}
}

// TextAnswer builds a free-text answer.
func TextAnswer(text string) Answer {
	return Answer{Kind: AnswerText, Values: []string{text}}
}

// IsZero reports whether no answer has been given.
func (a Answer) IsZero() bool {
	return a.Kind == AnswerNone && len(a.Values) == 0
}

// Value returns the effective single value. A list-shaped answer read through
// a single-select question collapses to its first element; the coercion is
// intentional and isolated here.
func (a Answer) Value() string {
	if len(a.Values) == 0 {
		return ""
	}
	return a.Values[0]
}

// Text returns the free-text content of the answer.
func (a Answer) Text() string { return a.Value() }

// List returns the full value list.
func (a Answer) List() []string { return a.Values }

// SessionStatus represents the status of a questionnaire session.
type SessionStatus string

const (
	StatusOpen      SessionStatus = "open"
	StatusCompleted SessionStatus = "completed"
)

// Session is the server-side record correlating one attempt to a contact.
type Session struct {
	ID          string        `json:"id"`
	ContactID   string        `json:"contact_id"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// UserResponse is one persisted answer. There is one logical response per
// (session, question); later writes supersede earlier ones.
type UserResponse struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	QuestionID int64     `json:"question_id"`
	AnswerID   string    `json:"answer_id"`
	AnswerText string    `json:"answer_text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Config holds runtime parameters set via CLI flags.
type Config struct {
	BasePath      string // URL prefix for sub-path deployments (e.g. "/ru")
	SitePath      string // hosted site base path, used to derive the logout link
	LogoURL       string // branding logo location
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	Lang          string
}

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	Order   int            `json:"order"`
	Text    string         `json:"text"`
	Type    QuestionType   `json:"type"`
	Options []OptionImport `json:"options"`
}

// OptionImport is one option entry in a questions JSON file.
type OptionImport struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}
