package handler

import (
	"context"

	"github.com/mindmentor/questionnaire/internal/model"
	"github.com/mindmentor/questionnaire/internal/store"
)

// storeService adapts the SQLite store to the wizard's remote-service
// interface. Opening a session resumes the contact's open one when present,
// so an abandoned attempt picks up where it left off.
type storeService struct {
	store *store.Store
}

func (s *storeService) OpenSession(_ context.Context, contactID string) (string, error) {
	open, err := s.store.OpenSessionForContact(contactID)
	if err != nil {
		return "", err
	}
	if open != nil {
		return open.ID, nil
	}
	return s.store.CreateSession(contactID)
}

func (s *storeService) LoadQuestions(context.Context) ([]model.Question, error) {
	return s.store.ListQuestions()
}

func (s *storeService) SessionResponses(_ context.Context, sessionID string) (map[int64]model.Answer, error) {
	return s.store.SessionResponses(sessionID)
}

func (s *storeService) SaveAnswer(_ context.Context, sessionID string, questionID int64, ans model.Answer) error {
	return s.store.SaveAnswer(sessionID, questionID, ans)
}

func (s *storeService) CompleteSession(_ context.Context, sessionID string) error {
	return s.store.CompleteSession(sessionID)
}
