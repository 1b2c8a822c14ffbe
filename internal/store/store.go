package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mindmentor/questionnaire/internal/model"

	_ "modernc.org/sqlite"
)

// multiValueSep joins multi-select values into the answer_text column.
const multiValueSep = ";"

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ord INTEGER NOT NULL,
		text TEXT NOT NULL,
		type TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS question_options (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL,
		value TEXT NOT NULL,
		text TEXT NOT NULL,
		pos INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		contact_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS user_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		question_id INTEGER NOT NULL,
		answer_id TEXT NOT NULL DEFAULT '',
		answer_text TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		UNIQUE(session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES sessions(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		contact_id TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'participant',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertQuestion stores a question together with its options.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO questions (ord, text, type) VALUES (?, ?, ?)`,
		q.Order, q.Text, q.Type,
	)
	if err != nil {
		return 0, err
	}
	questionID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, opt := range q.Options {
		_, err := tx.Exec(
			`INSERT INTO question_options (question_id, value, text, pos) VALUES (?, ?, ?, ?)`,
			questionID, opt.Value, opt.Text, i,
		)
		if err != nil {
			return 0, err
		}
	}

	return questionID, tx.Commit()
}

// ListQuestions returns all questions in display order with options loaded.
func (s *Store) ListQuestions() ([]model.Question, error) {
	rows, err := s.db.Query(`SELECT id, ord, text, type FROM questions ORDER BY ord, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Order, &q.Text, &q.Type); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range questions {
		opts, err := s.optionsForQuestion(questions[i].ID)
		if err != nil {
			return nil, err
		}
		questions[i].Options = opts
	}
	return questions, nil
}

func (s *Store) optionsForQuestion(questionID int64) ([]model.Option, error) {
	rows, err := s.db.Query(
		`SELECT id, value, text FROM question_options WHERE question_id = ? ORDER BY pos, id`,
		questionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var opts []model.Option
	for rows.Next() {
		var o model.Option
		if err := rows.Scan(&o.ID, &o.Value, &o.Text); err != nil {
			return nil, err
		}
		opts = append(opts, o)
	}
	return opts, rows.Err()
}

// GetQuestion returns a question by ID with its options.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	var q model.Question
	err := s.db.QueryRow(
		`SELECT id, ord, text, type FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.Order, &q.Text, &q.Type)
	if err != nil {
		return q, err
	}
	q.Options, err = s.optionsForQuestion(q.ID)
	return q, err
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// CreateSession opens a new session for a contact.
func (s *Store) CreateSession(contactID string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, contact_id, status, created_at) VALUES (?, ?, 'open', ?)`,
		id, contactID, time.Now(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetSession returns a session by ID.
func (s *Store) GetSession(id string) (model.Session, error) {
	var sess model.Session
	err := s.db.QueryRow(
		`SELECT id, contact_id, status, created_at, completed_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.ContactID, &sess.Status, &sess.CreatedAt, &sess.CompletedAt)
	return sess, err
}

// OpenSessionForContact returns the contact's open session, or nil if the
// contact has none. At most one open session is driven at a time; the most
// recent one wins if earlier attempts were abandoned.
func (s *Store) OpenSessionForContact(contactID string) (*model.Session, error) {
	var sess model.Session
	err := s.db.QueryRow(
		`SELECT id, contact_id, status, created_at, completed_at FROM sessions
		 WHERE contact_id = ? AND status = 'open' ORDER BY created_at DESC LIMIT 1`,
		contactID,
	).Scan(&sess.ID, &sess.ContactID, &sess.Status, &sess.CreatedAt, &sess.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// CompleteSession marks a session completed and stamps the completion time.
func (s *Store) CompleteSession(id string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET status = 'completed', completed_at = ? WHERE id = ? AND status = 'open'`,
		time.Now(), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s is not open", id)
	}
	return nil
}

// PreviousSessions returns the contact's completed sessions, newest first.
func (s *Store) PreviousSessions(contactID string) ([]model.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, contact_id, status, created_at, completed_at FROM sessions
		 WHERE contact_id = ? AND status = 'completed' ORDER BY completed_at DESC`,
		contactID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.ContactID, &sess.Status, &sess.CreatedAt, &sess.CompletedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// HasCompletedQuestionnaire reports whether the contact has at least one
// completed session.
func (s *Store) HasCompletedQuestionnaire(contactID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sessions WHERE contact_id = ? AND status = 'completed'`,
		contactID,
	).Scan(&count)
	return count > 0, err
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions() ([]model.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, contact_id, status, created_at, completed_at FROM sessions ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.ContactID, &sess.Status, &sess.CreatedAt, &sess.CompletedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpsertResponse writes one answer for a (session, question) pair. A later
// write supersedes the earlier one.
func (s *Store) UpsertResponse(sessionID string, questionID int64, answerID, answerText string) error {
	_, err := s.db.Exec(
		`INSERT INTO user_responses (session_id, question_id, answer_id, answer_text, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, question_id) DO UPDATE SET answer_id = ?, answer_text = ?, created_at = ?`,
		sessionID, questionID, answerID, answerText, time.Now(), answerID, answerText, time.Now(),
	)
	return err
}

// SaveAnswer persists an answer value, splitting it into the option/text
// columns by shape.
func (s *Store) SaveAnswer(sessionID string, questionID int64, ans model.Answer) error {
	answerID, answerText := encodeAnswer(ans)
	return s.UpsertResponse(sessionID, questionID, answerID, answerText)
}

// SessionResponses returns the persisted answers for a session keyed by
// question, reconstructed into answer values using each question's type.
func (s *Store) SessionResponses(sessionID string) (map[int64]model.Answer, error) {
	rows, err := s.db.Query(
		`SELECT r.question_id, r.answer_id, r.answer_text, q.type
		 FROM user_responses r JOIN questions q ON q.id = r.question_id
		 WHERE r.session_id = ?`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := make(map[int64]model.Answer)
	for rows.Next() {
		var questionID int64
		var answerID, answerText string
		var qtype model.QuestionType
		if err := rows.Scan(&questionID, &answerID, &answerText, &qtype); err != nil {
			return nil, err
		}
		responses[questionID] = decodeAnswer(qtype, answerID, answerText)
	}
	return responses, rows.Err()
}

// ResponsesForSession returns the raw persisted response rows, ordered by
// question.
func (s *Store) ResponsesForSession(sessionID string) ([]model.UserResponse, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, question_id, answer_id, answer_text, created_at
		 FROM user_responses WHERE session_id = ? ORDER BY question_id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var responses []model.UserResponse
	for rows.Next() {
		var r model.UserResponse
		if err := rows.Scan(&r.ID, &r.SessionID, &r.QuestionID, &r.AnswerID, &r.AnswerText, &r.CreatedAt); err != nil {
			return nil, err
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// SubmitQuestionnaire is the single-call submission path: it opens a session,
// writes every answer, and completes the session in one transaction.
func (s *Store) SubmitQuestionnaire(contactID string, answers map[int64]model.Answer) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	id := uuid.NewString()
	now := time.Now()
	_, err = tx.Exec(
		`INSERT INTO sessions (id, contact_id, status, created_at, completed_at) VALUES (?, ?, 'completed', ?, ?)`,
		id, contactID, now, now,
	)
	if err != nil {
		return "", err
	}

	for questionID, ans := range answers {
		answerID, answerText := encodeAnswer(ans)
		_, err := tx.Exec(
			`INSERT INTO user_responses (session_id, question_id, answer_id, answer_text, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			id, questionID, answerID, answerText, now,
		)
		if err != nil {
			return "", err
		}
	}

	return id, tx.Commit()
}

// encodeAnswer maps an answer value onto the answer_id/answer_text columns.
func encodeAnswer(ans model.Answer) (answerID, answerText string) {
	switch ans.Kind {
	case model.AnswerMulti:
		return "", strings.Join(ans.List(), multiValueSep)
	case model.AnswerText:
		return "", ans.Text()
	default:
		return ans.Value(), ""
	}
}

// decodeAnswer reconstructs the answer value for a question type.
func decodeAnswer(qtype model.QuestionType, answerID, answerText string) model.Answer {
	switch qtype {
	case model.TypeMultipleSelect:
		if answerText == "" {
			return model.MultiAnswer(nil)
		}
		return model.MultiAnswer(strings.Split(answerText, multiValueSep))
	case model.TypeText:
		return model.TextAnswer(answerText)
	default:
		return model.SingleAnswer(answerID)
	}
}
