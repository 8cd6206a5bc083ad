package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"school-quiz-service/internal/domain"
	"school-quiz-service/internal/grading"
)

// QuizRepository loads published quiz definitions (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizSnapshot, error)
}

// AttemptStore abstracts how attempts, their frozen snapshots, and
// responses are persisted (in-memory, Postgres).
type AttemptStore interface {
	// CreateAttempt inserts the attempt together with its snapshot.
	// inserted is false when (quiz, student, attempt_number) already
	// exists: a concurrent caller won the insert and the race is
	// resolved by re-reading, never surfaced.
	CreateAttempt(ctx context.Context, attempt domain.Attempt, snap domain.QuizSnapshot) (created domain.Attempt, inserted bool, err error)
	// ListAttempts returns the student's attempts for a quiz, newest first.
	ListAttempts(ctx context.Context, quizID string, studentID int64) ([]domain.Attempt, error)
	GetAttempt(ctx context.Context, attemptID int64) (domain.Attempt, error)
	// AttemptSnapshot returns the definition frozen at attempt start.
	AttemptSnapshot(ctx context.Context, attemptID int64) (domain.QuizSnapshot, error)
	// SaveResponse upserts the one response for (attempt, question).
	SaveResponse(ctx context.Context, resp domain.Response) error
	ListResponses(ctx context.Context, attemptID int64) ([]domain.Response, error)
	// FinalizeAttempt persists scores, responses, and submitted_at in
	// one shot, only if the attempt is still unsubmitted. ok is false
	// when another submission got there first.
	FinalizeAttempt(ctx context.Context, attempt domain.Attempt, responses []domain.Response) (ok bool, err error)
	UpdateResponseGrade(ctx context.Context, resp domain.Response) error
	UpdateAttemptScore(ctx context.Context, attempt domain.Attempt) error
}

// AttemptTracker marks live timed attempts for operational visibility.
// Implementations are best-effort; failures never block the lifecycle.
type AttemptTracker interface {
	Track(ctx context.Context, attemptID int64, deadline time.Time)
	Untrack(ctx context.Context, attemptID int64)
}

// AttemptService drives the quiz attempt lifecycle: start-or-resume,
// response collection, deadline-driven auto-submission, grading, and
// manual grade entry.
type AttemptService struct {
	store   AttemptStore
	quizzes QuizRepository
	tracker AttemptTracker
	engine  *grading.Engine
	timers  *deadlineTimers
	clock   func() time.Time
	seed    func() int64
}

// Option customizes an AttemptService.
type Option func(*AttemptService)

// WithClock overrides the time source (tests).
func WithClock(clock func() time.Time) Option {
	return func(s *AttemptService) { s.clock = clock }
}

// WithSeedFn overrides how per-attempt randomization seeds are drawn (tests).
func WithSeedFn(seed func() int64) Option {
	return func(s *AttemptService) { s.seed = seed }
}

// WithTracker wires a live-attempt tracker.
func WithTracker(tracker AttemptTracker) Option {
	return func(s *AttemptService) { s.tracker = tracker }
}

func NewAttemptService(store AttemptStore, quizzes QuizRepository, opts ...Option) *AttemptService {
	s := &AttemptService{
		store:   store,
		quizzes: quizzes,
		engine:  grading.NewEngine(),
		timers:  newDeadlineTimers(),
		clock:   time.Now,
		seed:    rand.Int63,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartResult is what a student session needs to render an attempt.
type StartResult struct {
	Attempt   domain.Attempt
	Quiz      domain.QuizSnapshot // presentation view, answer key stripped
	Responses []domain.Response
	Deadline  *time.Time // nil for untimed quizzes
	Resumed   bool
}

// SubmitResult is the finalized attempt with its scored responses and
// the snapshot it was graded against (consumers shape result visibility
// from the snapshot's show_* flags).
type SubmitResult struct {
	Attempt   domain.Attempt
	Responses []domain.Response
	Snapshot  domain.QuizSnapshot
}

// StartOrResume resumes the student's open attempt if one exists,
// otherwise creates the next attempt subject to the quiz's attempt
// policy. At most one unsubmitted attempt per (quiz, student) exists at
// any time; a concurrent duplicate create collapses into a resume.
func (s *AttemptService) StartOrResume(ctx context.Context, quizID string, studentID int64) (StartResult, error) {
	if studentID <= 0 {
		return StartResult{}, domain.ErrIdentityUnresolved
	}
	snap, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return StartResult{}, fmt.Errorf("%w: load quiz %q: %v", domain.ErrQuizUnavailable, quizID, err)
	}
	if !snap.IsPublished {
		return StartResult{}, domain.ErrQuizUnavailable
	}
	return s.startOrResume(ctx, snap, studentID, false)
}

func (s *AttemptService) startOrResume(ctx context.Context, snap domain.QuizSnapshot, studentID int64, retried bool) (StartResult, error) {
	attempts, err := s.store.ListAttempts(ctx, snap.ID, studentID)
	if err != nil {
		return StartResult{}, fmt.Errorf("list attempts: %w", err)
	}

	if len(attempts) > 0 && !attempts[0].Submitted() {
		return s.resume(ctx, attempts[0])
	}
	if !snap.AllowMultipleAttempts {
		for i := range attempts {
			if attempts[i].Submitted() {
				return StartResult{}, domain.ErrAlreadyCompleted
			}
		}
	}
	if snap.MaxAttempts != nil && len(attempts) >= *snap.MaxAttempts {
		return StartResult{}, domain.ErrAttemptLimitExceeded
	}

	// Attempt numbers are monotonic over everything ever created, not
	// over the current count, so a deleted attempt never frees a number.
	next := 1
	for i := range attempts {
		if attempts[i].AttemptNumber >= next {
			next = attempts[i].AttemptNumber + 1
		}
	}

	attempt := domain.Attempt{
		QuizID:        snap.ID,
		StudentID:     studentID,
		AttemptNumber: next,
		OrderSeed:     s.seed(),
		StartedAt:     s.clock(),
	}
	created, inserted, err := s.store.CreateAttempt(ctx, attempt, snap)
	if err != nil {
		return StartResult{}, fmt.Errorf("create attempt: %w", err)
	}
	if !inserted {
		// A concurrent request (second tab, retried call) created this
		// attempt number first. Re-read and resume what it created.
		if retried {
			return StartResult{}, fmt.Errorf("attempt creation for quiz %q student %d did not settle", snap.ID, studentID)
		}
		return s.startOrResume(ctx, snap, studentID, true)
	}
	return s.sessionFor(ctx, created, snap, nil, false), nil
}

func (s *AttemptService) resume(ctx context.Context, attempt domain.Attempt) (StartResult, error) {
	snap, err := s.store.AttemptSnapshot(ctx, attempt.ID)
	if err != nil {
		return StartResult{}, fmt.Errorf("load attempt snapshot: %w", err)
	}
	responses, err := s.store.ListResponses(ctx, attempt.ID)
	if err != nil {
		return StartResult{}, fmt.Errorf("list responses: %w", err)
	}
	return s.sessionFor(ctx, attempt, snap, responses, true), nil
}

func (s *AttemptService) sessionFor(ctx context.Context, attempt domain.Attempt, snap domain.QuizSnapshot, responses []domain.Response, resumed bool) StartResult {
	result := StartResult{
		Attempt:   attempt,
		Quiz:      PresentationView(snap, attempt.OrderSeed),
		Responses: responses,
		Resumed:   resumed,
	}
	if deadline, ok := attempt.Deadline(snap.TimeLimitMinutes); ok {
		result.Deadline = &deadline
		if s.tracker != nil {
			s.tracker.Track(ctx, attempt.ID, deadline)
		}
	}
	return result
}

// AnswerInput is one in-progress answer. OptionID applies to choice
// questions, Text to text questions; an empty value clears the answer.
type AnswerInput struct {
	QuestionID string
	OptionID   string
	Text       string
}

// SaveResponse records or replaces the student's answer to one
// question. The collector closes at submission or at the deadline,
// whichever comes first.
func (s *AttemptService) SaveResponse(ctx context.Context, attemptID, studentID int64, in AnswerInput) (domain.Response, error) {
	attempt, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return domain.Response{}, err
	}
	if attempt.Submitted() {
		return domain.Response{}, domain.ErrAttemptSubmitted
	}
	snap, err := s.store.AttemptSnapshot(ctx, attempt.ID)
	if err != nil {
		return domain.Response{}, fmt.Errorf("load attempt snapshot: %w", err)
	}
	if deadline, ok := attempt.Deadline(snap.TimeLimitMinutes); ok && s.clock().After(deadline) {
		return domain.Response{}, domain.ErrAttemptSubmitted
	}

	question := snap.QuestionByID(in.QuestionID)
	if question == nil {
		return domain.Response{}, domain.ErrQuestionNotFound
	}
	resp := domain.Response{AttemptID: attempt.ID, QuestionID: question.ID}
	if question.Type.IsChoice() {
		if in.OptionID != "" {
			if question.OptionByID(in.OptionID) == nil {
				return domain.Response{}, domain.ErrScoringInconsistency
			}
			optionID := in.OptionID
			resp.SelectedOptionID = &optionID
		}
	} else if in.Text != "" {
		text := in.Text
		resp.ResponseText = &text
	}
	if err := s.store.SaveResponse(ctx, resp); err != nil {
		return domain.Response{}, fmt.Errorf("save response: %w", err)
	}
	return resp, nil
}

// Submit finalizes the attempt: every snapshot question gets exactly
// one response (unanswered ones score zero), each is graded by its
// type's strategy, and the aggregate is persisted together with
// submitted_at. Submission is at-most-once; a duplicate call, whether
// from the timer or a second click, returns the already-persisted
// result without rescoring.
func (s *AttemptService) Submit(ctx context.Context, attemptID, studentID int64) (SubmitResult, error) {
	attempt, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return SubmitResult{}, err
	}
	if attempt.Submitted() {
		return s.submittedResult(ctx, attempt)
	}
	snap, err := s.store.AttemptSnapshot(ctx, attempt.ID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("load attempt snapshot: %w", err)
	}
	collected, err := s.store.ListResponses(ctx, attempt.ID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("list responses: %w", err)
	}

	byQuestion := make(map[string]domain.Response, len(collected))
	for i := range collected {
		byQuestion[collected[i].QuestionID] = collected[i]
	}

	final := make([]domain.Response, 0, len(snap.Questions))
	for i := range snap.Questions {
		question := &snap.Questions[i]
		resp, ok := byQuestion[question.ID]
		if !ok {
			resp = domain.Response{AttemptID: attempt.ID, QuestionID: question.ID}
		} else {
			delete(byQuestion, question.ID)
		}
		result := s.engine.Grade(*question, resp)
		resp.PointsEarned = result.PointsEarned
		resp.IsCorrect = result.IsCorrect
		resp.IsGraded = result.IsGraded
		if result.Inconsistent {
			resp.IsGraded = false
			note := result.Note
			resp.Feedback = &note
		}
		final = append(final, resp)
	}
	// A stored response whose question is not in the snapshot is kept
	// and flagged for review, never silently dropped.
	for _, resp := range byQuestion {
		note := "question " + resp.QuestionID + " not in snapshot"
		resp.PointsEarned = 0
		resp.IsCorrect = false
		resp.IsGraded = false
		resp.Feedback = &note
		final = append(final, resp)
	}

	now := s.clock()
	attempt.SubmittedAt = &now
	grading.Aggregate(snap, final).Apply(&attempt)

	ok, err := s.store.FinalizeAttempt(ctx, attempt, final)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("finalize attempt: %w", err)
	}
	if !ok {
		// Lost the race against a concurrent submission; its scoring
		// pass stands.
		persisted, err := s.store.GetAttempt(ctx, attempt.ID)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("reload attempt: %w", err)
		}
		return s.submittedResult(ctx, persisted)
	}

	s.timers.Cancel(attempt.ID)
	if s.tracker != nil {
		s.tracker.Untrack(ctx, attempt.ID)
	}
	return SubmitResult{Attempt: attempt, Responses: final, Snapshot: snap}, nil
}

func (s *AttemptService) submittedResult(ctx context.Context, attempt domain.Attempt) (SubmitResult, error) {
	responses, err := s.store.ListResponses(ctx, attempt.ID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("list responses: %w", err)
	}
	snap, err := s.store.AttemptSnapshot(ctx, attempt.ID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("load attempt snapshot: %w", err)
	}
	return SubmitResult{Attempt: attempt, Responses: responses, Snapshot: snap}, nil
}

// ScheduleAutoSubmit arms the session timer for a timed attempt. The
// deadline comes from the persisted start time, so a suspended tab or a
// skewed client clock cannot stretch the session; a non-positive
// remaining duration fires immediately. notify receives the outcome
// when the timer submits. The returned cancel is the one cleanup path
// and must run when the session ends; a late fire after a manual submit
// is harmless because Submit is idempotent.
func (s *AttemptService) ScheduleAutoSubmit(attempt domain.Attempt, deadline time.Time, notify func(SubmitResult, error)) (cancel func()) {
	attemptID, studentID := attempt.ID, attempt.StudentID
	return s.timers.Schedule(attemptID, deadline.Sub(s.clock()), func() {
		ctx, cancelCtx := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelCtx()
		result, err := s.Submit(ctx, attemptID, studentID)
		if notify != nil {
			notify(result, err)
		}
	})
}

// RecordManualGrade enters a teacher's grade for a deferred response
// (an essay, or one flagged inconsistent at submission) and recomputes
// the attempt's totals and pass flag from the stored responses.
func (s *AttemptService) RecordManualGrade(ctx context.Context, attemptID int64, questionID string, points float64, feedback string) (domain.Attempt, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !attempt.Submitted() {
		return domain.Attempt{}, domain.ErrResponseNotGradable
	}
	snap, err := s.store.AttemptSnapshot(ctx, attempt.ID)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load attempt snapshot: %w", err)
	}
	question := snap.QuestionByID(questionID)
	if question == nil {
		return domain.Attempt{}, domain.ErrQuestionNotFound
	}
	if points < 0 || points > question.Points {
		return domain.Attempt{}, domain.ErrInvalidGrade
	}
	responses, err := s.store.ListResponses(ctx, attempt.ID)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("list responses: %w", err)
	}

	updated := false
	for i := range responses {
		if responses[i].QuestionID != questionID {
			continue
		}
		if responses[i].IsGraded {
			return domain.Attempt{}, domain.ErrResponseNotGradable
		}
		responses[i].PointsEarned = points
		responses[i].IsCorrect = points > 0
		responses[i].IsGraded = true
		if feedback != "" {
			fb := feedback
			responses[i].Feedback = &fb
		}
		if err := s.store.UpdateResponseGrade(ctx, responses[i]); err != nil {
			return domain.Attempt{}, fmt.Errorf("update response grade: %w", err)
		}
		updated = true
		break
	}
	if !updated {
		return domain.Attempt{}, domain.ErrQuestionNotFound
	}

	grading.Aggregate(snap, responses).Apply(&attempt)
	if err := s.store.UpdateAttemptScore(ctx, attempt); err != nil {
		return domain.Attempt{}, fmt.Errorf("update attempt score: %w", err)
	}
	return attempt, nil
}

// ListAttempts returns the student's attempt history for a quiz, newest
// first, for the gradebook and reporting consumers.
func (s *AttemptService) ListAttempts(ctx context.Context, quizID string, studentID int64) ([]domain.Attempt, error) {
	if studentID <= 0 {
		return nil, domain.ErrIdentityUnresolved
	}
	return s.store.ListAttempts(ctx, quizID, studentID)
}

func (s *AttemptService) ownedAttempt(ctx context.Context, attemptID, studentID int64) (domain.Attempt, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.StudentID != studentID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}
