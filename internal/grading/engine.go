package grading

import (
	"strings"

	"school-quiz-service/internal/domain"
)

// Result is the outcome of grading a single response.
type Result struct {
	PointsEarned float64
	IsCorrect    bool
	// IsGraded is false while the response still awaits a human grader
	// (essays, and responses flagged inconsistent).
	IsGraded bool
	// Inconsistent marks a response that references something outside
	// the attempt's snapshot. It is zero-scored but left ungraded so a
	// teacher reviews it instead of the score being silently lost.
	Inconsistent bool
	Note         string
}

// Strategy grades one response against its question.
type Strategy interface {
	Grade(q domain.Question, r domain.Response) Result
}

// Engine routes a response to the strategy for its question type.
type Engine struct {
	strategies map[domain.QuestionType]Strategy
}

// NewEngine installs the built-in strategies.
func NewEngine() *Engine {
	return &Engine{
		strategies: map[domain.QuestionType]Strategy{
			domain.QuestionMultipleChoice: choiceStrategy{},
			domain.QuestionTrueFalse:      choiceStrategy{},
			domain.QuestionShortAnswer:    textStrategy{},
			domain.QuestionFillBlank:      textStrategy{},
			domain.QuestionEssay:          essayStrategy{},
		},
	}
}

// Grade is a pure function of (question, response). A question type
// without a strategy is treated as an inconsistency, not a panic, so
// one bad question never aborts grading of the rest.
func (e *Engine) Grade(q domain.Question, r domain.Response) Result {
	s, ok := e.strategies[q.Type]
	if !ok {
		return Result{Inconsistent: true, Note: "no grading strategy for question type " + string(q.Type)}
	}
	return s.Grade(q, r)
}

type choiceStrategy struct{}

func (choiceStrategy) Grade(q domain.Question, r domain.Response) Result {
	if r.SelectedOptionID == nil || *r.SelectedOptionID == "" {
		return Result{IsGraded: true}
	}
	opt := q.OptionByID(*r.SelectedOptionID)
	if opt == nil {
		// The selected option is not in the snapshot: the definition
		// changed mid-attempt. Flag for review rather than zero-score.
		return Result{Inconsistent: true, Note: "selected option " + *r.SelectedOptionID + " not in snapshot"}
	}
	if !opt.IsCorrect {
		return Result{IsGraded: true}
	}
	points := q.Points
	if opt.Points != nil {
		points = *opt.Points
	}
	return Result{PointsEarned: points, IsCorrect: true, IsGraded: true}
}

type textStrategy struct{}

func (textStrategy) Grade(q domain.Question, r domain.Response) Result {
	if r.ResponseText == nil || strings.TrimSpace(*r.ResponseText) == "" {
		return Result{IsGraded: true}
	}
	student := strings.TrimSpace(*r.ResponseText)
	// First matching reference answer wins, in stored order.
	for _, ca := range q.CorrectAnswers {
		if matches(student, ca) {
			return Result{PointsEarned: q.Points, IsCorrect: true, IsGraded: true}
		}
	}
	return Result{IsGraded: true}
}

// matches applies the per-answer case and partial-credit rules: trimmed
// equality, or substring containment when the answer accepts partial
// matches.
func matches(student string, ca domain.CorrectAnswer) bool {
	reference := strings.TrimSpace(ca.Text)
	if !ca.CaseSensitive {
		student = strings.ToLower(student)
		reference = strings.ToLower(reference)
	}
	if student == reference {
		return true
	}
	return ca.AcceptPartial && strings.Contains(student, reference)
}

type essayStrategy struct{}

func (essayStrategy) Grade(_ domain.Question, r domain.Response) Result {
	// A blank essay needs no human review; an answered one always does.
	if !r.Answered() {
		return Result{IsGraded: true}
	}
	return Result{IsGraded: false, Note: "awaiting manual grading"}
}
