package app

import (
	"math/rand"

	"school-quiz-service/internal/domain"
)

// PresentationView builds the student-facing rendering of a snapshot:
// question order and, independently, each question's option order are
// derived from the attempt's persisted seed, and the answer key is
// stripped. The same seed always yields the same ordering, so a resumed
// attempt renders exactly as it did before; the stored snapshot is
// never mutated.
func PresentationView(snap domain.QuizSnapshot, seed int64) domain.QuizSnapshot {
	view := snap
	view.Questions = make([]domain.Question, len(snap.Questions))
	copy(view.Questions, snap.Questions)

	rnd := rand.New(rand.NewSource(seed))
	if snap.RandomizeQuestions && len(view.Questions) > 1 {
		reorderQuestions(view.Questions, rnd.Perm(len(view.Questions)))
	}

	for i := range view.Questions {
		q := &view.Questions[i]
		options := make([]domain.AnswerOption, len(q.Options))
		copy(options, q.Options)
		if snap.RandomizeAnswers && len(options) > 1 {
			reorderOptions(options, rnd.Perm(len(options)))
		}
		for j := range options {
			options[j].IsCorrect = false
			options[j].Points = nil
		}
		q.Options = options
		q.CorrectAnswers = nil
	}
	return view
}

func reorderQuestions(questions []domain.Question, perm []int) {
	ordered := make([]domain.Question, len(questions))
	for i, p := range perm {
		ordered[i] = questions[p]
	}
	copy(questions, ordered)
}

func reorderOptions(options []domain.AnswerOption, perm []int) {
	ordered := make([]domain.AnswerOption, len(options))
	for i, p := range perm {
		ordered[i] = options[p]
	}
	copy(options, ordered)
}
