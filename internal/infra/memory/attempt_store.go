package memory

import (
	"context"
	"sort"
	"sync"

	"school-quiz-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore,
// backing tests and the no-database demo mode. It enforces the same
// contracts as the Postgres store: uniqueness on (quiz, student,
// attempt_number) and conditional finalization.
type AttemptStore struct {
	mu        sync.Mutex
	nextID    int64
	attempts  map[int64]domain.Attempt
	snapshots map[int64]domain.QuizSnapshot
	responses map[int64]map[string]domain.Response
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		nextID:    1,
		attempts:  make(map[int64]domain.Attempt),
		snapshots: make(map[int64]domain.QuizSnapshot),
		responses: make(map[int64]map[string]domain.Response),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt, snap domain.QuizSnapshot) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attempts {
		if existing.QuizID == attempt.QuizID &&
			existing.StudentID == attempt.StudentID &&
			existing.AttemptNumber == attempt.AttemptNumber {
			return domain.Attempt{}, false, nil
		}
	}
	attempt.ID = s.nextID
	s.nextID++
	s.attempts[attempt.ID] = attempt
	s.snapshots[attempt.ID] = snap
	s.responses[attempt.ID] = make(map[string]domain.Response)
	return attempt, true, nil
}

func (s *AttemptStore) ListAttempts(_ context.Context, quizID string, studentID int64) ([]domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID && attempt.StudentID == studentID {
			out = append(out, attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AttemptNumber > out[j].AttemptNumber
	})
	return out, nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID int64) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) AttemptSnapshot(_ context.Context, attemptID int64) (domain.QuizSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[attemptID]
	if !ok {
		return domain.QuizSnapshot{}, domain.ErrAttemptNotFound
	}
	return snap, nil
}

func (s *AttemptStore) SaveResponse(_ context.Context, resp domain.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byQuestion, ok := s.responses[resp.AttemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	byQuestion[resp.QuestionID] = resp
	return nil
}

func (s *AttemptStore) ListResponses(_ context.Context, attemptID int64) ([]domain.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byQuestion, ok := s.responses[attemptID]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	out := make([]domain.Response, 0, len(byQuestion))
	for _, resp := range byQuestion {
		out = append(out, resp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (s *AttemptStore) FinalizeAttempt(_ context.Context, attempt domain.Attempt, responses []domain.Response) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.attempts[attempt.ID]
	if !ok {
		return false, domain.ErrAttemptNotFound
	}
	if current.Submitted() {
		return false, nil
	}
	s.attempts[attempt.ID] = attempt
	byQuestion := make(map[string]domain.Response, len(responses))
	for _, resp := range responses {
		byQuestion[resp.QuestionID] = resp
	}
	s.responses[attempt.ID] = byQuestion
	return true, nil
}

func (s *AttemptStore) UpdateResponseGrade(_ context.Context, resp domain.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byQuestion, ok := s.responses[resp.AttemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if _, ok := byQuestion[resp.QuestionID]; !ok {
		return domain.ErrQuestionNotFound
	}
	byQuestion[resp.QuestionID] = resp
	return nil
}

func (s *AttemptStore) UpdateAttemptScore(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attempt.ID]; !ok {
		return domain.ErrAttemptNotFound
	}
	s.attempts[attempt.ID] = attempt
	return nil
}
