package domain

import "errors"

var (
	// ErrQuizUnavailable is returned when a quiz is unpublished or its
	// definition could not be loaded.
	ErrQuizUnavailable = errors.New("quiz unavailable")
	// ErrIdentityUnresolved is returned when the numeric student identity
	// could not be determined. Fatal to the session.
	ErrIdentityUnresolved = errors.New("student identity unresolved")
	// ErrAlreadyCompleted is returned when multiple attempts are
	// disallowed and a submitted attempt already exists.
	ErrAlreadyCompleted = errors.New("quiz already completed")
	// ErrAttemptLimitExceeded is returned when the student has used up
	// the quiz's max attempts.
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")
	// ErrAttemptNotFound is returned when an attempt does not exist or
	// belongs to another student.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptSubmitted is returned on writes to an attempt that is
	// already closed, either explicitly or by its deadline.
	ErrAttemptSubmitted = errors.New("attempt already submitted")
	// ErrQuestionNotFound indicates a question ID outside the attempt's snapshot.
	ErrQuestionNotFound = errors.New("question not found in attempt snapshot")
	// ErrScoringInconsistency indicates a response referencing an option
	// that is not part of the attempt's snapshot.
	ErrScoringInconsistency = errors.New("response references an unknown option")
	// ErrInvalidGrade is returned when a manual grade is negative or
	// exceeds the question's maximum points.
	ErrInvalidGrade = errors.New("invalid grade")
	// ErrResponseNotGradable is returned when manual grading targets a
	// response that is already auto-graded.
	ErrResponseNotGradable = errors.New("response does not await manual grading")
)
