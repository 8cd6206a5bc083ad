package domain

import "time"

// QuestionType determines which grading strategy applies to a question.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionShortAnswer    QuestionType = "SHORT_ANSWER"
	QuestionFillBlank      QuestionType = "FILL_BLANK"
	QuestionEssay          QuestionType = "ESSAY"
)

// IsChoice reports whether the type is answered by selecting an option.
func (t QuestionType) IsChoice() bool {
	return t == QuestionMultipleChoice || t == QuestionTrueFalse
}

// IsText reports whether the type is answered with free text.
func (t QuestionType) IsText() bool {
	return t == QuestionShortAnswer || t == QuestionFillBlank || t == QuestionEssay
}

// AnswerOption is one selectable choice on a MULTIPLE_CHOICE or TRUE_FALSE question.
type AnswerOption struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	IsCorrect bool     `json:"isCorrect"`
	Points    *float64 `json:"points,omitempty"` // overrides the question's points when set
	Position  int      `json:"position"`
}

// CorrectAnswer is one acceptable reference answer for a text question.
type CorrectAnswer struct {
	Text          string `json:"text"`
	CaseSensitive bool   `json:"caseSensitive"`
	AcceptPartial bool   `json:"acceptPartial"`
}

// Question belongs to exactly one quiz. Options are populated for choice
// types, CorrectAnswers for SHORT_ANSWER and FILL_BLANK.
type Question struct {
	ID             string          `json:"id"`
	Type           QuestionType    `json:"type"`
	Prompt         string          `json:"prompt"`
	Points         float64         `json:"points"`
	IsRequired     bool            `json:"isRequired"`
	Position       int             `json:"position"`
	Options        []AnswerOption  `json:"options,omitempty"`
	CorrectAnswers []CorrectAnswer `json:"correctAnswers,omitempty"`
}

// OptionByID returns the option with the given ID, or nil.
func (q *Question) OptionByID(optionID string) *AnswerOption {
	for i := range q.Options {
		if q.Options[i].ID == optionID {
			return &q.Options[i]
		}
	}
	return nil
}

// QuizSnapshot is the read-only quiz definition an attempt is graded
// against. It is captured once at attempt start; later edits to the
// live quiz never change it.
type QuizSnapshot struct {
	ID                     string     `json:"id"`
	Title                  string     `json:"title"`
	Instructions           string     `json:"instructions,omitempty"`
	TimeLimitMinutes       *int       `json:"timeLimitMinutes,omitempty"` // nil = untimed
	RandomizeQuestions     bool       `json:"randomizeQuestions"`
	RandomizeAnswers       bool       `json:"randomizeAnswers"`
	AllowMultipleAttempts  bool       `json:"allowMultipleAttempts"`
	MaxAttempts            *int       `json:"maxAttempts,omitempty"`  // nil = unlimited
	PassingScore           *float64   `json:"passingScore,omitempty"` // percentage; nil = no pass/fail
	ShowResultsImmediately bool       `json:"showResultsImmediately"`
	ShowCorrectAnswers     bool       `json:"showCorrectAnswers"`
	IsPublished            bool       `json:"isPublished"`
	Questions              []Question `json:"questions"`
}

// QuestionByID returns the question with the given ID, or nil.
func (s *QuizSnapshot) QuestionByID(questionID string) *Question {
	for i := range s.Questions {
		if s.Questions[i].ID == questionID {
			return &s.Questions[i]
		}
	}
	return nil
}

// TotalPoints is the maximum score across all questions, the
// denominator for percentage scoring.
func (s *QuizSnapshot) TotalPoints() float64 {
	var total float64
	for i := range s.Questions {
		total += s.Questions[i].Points
	}
	return total
}

// Attempt is one student's instance of taking a quiz.
type Attempt struct {
	ID                int64      `json:"id"`
	QuizID            string     `json:"quizId"`
	StudentID         int64      `json:"studentId"`
	AttemptNumber     int        `json:"attemptNumber"`
	OrderSeed         int64      `json:"-"` // drives the per-attempt display order
	StartedAt         time.Time  `json:"startedAt"`
	SubmittedAt       *time.Time `json:"submittedAt,omitempty"`
	TotalPointsEarned float64    `json:"totalPointsEarned"`
	PercentageScore   float64    `json:"percentageScore"`
	IsPassed          *bool      `json:"isPassed,omitempty"` // nil when the quiz has no passing threshold
	IsGraded          bool       `json:"isGraded"`
}

// Submitted reports whether the attempt is closed to student interaction.
func (a *Attempt) Submitted() bool {
	return a.SubmittedAt != nil
}

// Deadline returns the authoritative submission deadline, computed from
// the persisted start time. ok is false for untimed quizzes.
func (a *Attempt) Deadline(timeLimitMinutes *int) (deadline time.Time, ok bool) {
	if timeLimitMinutes == nil {
		return time.Time{}, false
	}
	return a.StartedAt.Add(time.Duration(*timeLimitMinutes) * time.Minute), true
}

// Response is a student's answer to one question within one attempt.
// Exactly one of SelectedOptionID (choice types) or ResponseText (text
// types) is populated; both nil means the question went unanswered.
// Grading fields stay at their zero values until the attempt is graded.
type Response struct {
	AttemptID        int64   `json:"attemptId"`
	QuestionID       string  `json:"questionId"`
	SelectedOptionID *string `json:"selectedOptionId,omitempty"`
	ResponseText     *string `json:"responseText,omitempty"`
	PointsEarned     float64 `json:"pointsEarned"`
	IsCorrect        bool    `json:"isCorrect"`
	IsGraded         bool    `json:"isGraded"`
	Feedback         *string `json:"feedback,omitempty"`
}

// Answered reports whether the response carries any student input.
func (r *Response) Answered() bool {
	if r.SelectedOptionID != nil && *r.SelectedOptionID != "" {
		return true
	}
	return r.ResponseText != nil && *r.ResponseText != ""
}
