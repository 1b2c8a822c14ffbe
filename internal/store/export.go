package store

import (
	"fmt"

	"github.com/mindmentor/questionnaire/internal/model"
)

// ExportCompletedSessions builds export-ready results from all completed
// sessions, one entry per session with the persisted answers attached.
func (s *Store) ExportCompletedSessions() ([]model.ContactResult, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	questions := make(map[int64]model.Question)
	list, err := s.ListQuestions()
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	for _, q := range list {
		questions[q.ID] = q
	}

	// Track session count per contact for session_number.
	contactSessionCount := make(map[string]int)

	var results []model.ContactResult
	for _, sess := range sessions {
		if sess.Status != model.StatusCompleted {
			continue
		}
		contactSessionCount[sess.ContactID]++

		responses, err := s.ResponsesForSession(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("responses for session %s: %w", sess.ID, err)
		}

		var answers []model.AnswerResult
		for _, r := range responses {
			ar := model.AnswerResult{
				QuestionID: r.QuestionID,
				AnswerID:   r.AnswerID,
				AnswerText: r.AnswerText,
				AnsweredAt: r.CreatedAt,
			}
			if q, ok := questions[r.QuestionID]; ok {
				ar.QuestionText = q.Text
				ar.Type = q.Type
			}
			answers = append(answers, ar)
		}

		displayName := ""
		if u, err := s.userByContactID(sess.ContactID); err != nil {
			return nil, fmt.Errorf("user for contact %s: %w", sess.ContactID, err)
		} else if u != nil {
			displayName = u.DisplayName
		}

		results = append(results, model.ContactResult{
			ContactID:     sess.ContactID,
			DisplayName:   displayName,
			SessionNumber: contactSessionCount[sess.ContactID],
			Status:        sess.Status,
			CreatedAt:     sess.CreatedAt,
			CompletedAt:   sess.CompletedAt,
			Answers:       answers,
		})
	}

	return results, nil
}

func (s *Store) userByContactID(contactID string) (*model.User, error) {
	if contactID == "" {
		return nil, nil
	}
	return s.getUser(`SELECT id, username, display_name, email, avatar_url, contact_id, password_hash, role, active, created_at
		 FROM users WHERE contact_id = ?`, contactID)
}
