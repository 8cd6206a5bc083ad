package grading

import (
	"math"
	"testing"

	"school-quiz-service/internal/domain"
)

func twoQuestionQuiz(passing *float64) domain.QuizSnapshot {
	return domain.QuizSnapshot{
		ID:           "quiz-1",
		PassingScore: passing,
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionMultipleChoice, Points: 10},
			{ID: "q2", Type: domain.QuestionShortAnswer, Points: 20},
		},
	}
}

func TestAggregatePercentageAndPassFail(t *testing.T) {
	responses := []domain.Response{
		{QuestionID: "q1", PointsEarned: 10, IsCorrect: true, IsGraded: true},
		{QuestionID: "q2", PointsEarned: 5, IsGraded: true},
	}

	passing := 50.0
	sum := Aggregate(twoQuestionQuiz(&passing), responses)
	if sum.TotalPointsEarned != 15 || sum.PercentageScore != 50 {
		t.Fatalf("expected 15 points / 50%%, got %v / %v", sum.TotalPointsEarned, sum.PercentageScore)
	}
	if sum.IsPassed == nil || !*sum.IsPassed {
		t.Fatalf("50%% must pass a threshold of 50")
	}

	higher := 51.0
	sum = Aggregate(twoQuestionQuiz(&higher), responses)
	if sum.IsPassed == nil || *sum.IsPassed {
		t.Fatalf("50%% must fail a threshold of 51")
	}

	sum = Aggregate(twoQuestionQuiz(nil), responses)
	if sum.IsPassed != nil {
		t.Fatalf("no threshold configured means no pass/fail, got %v", *sum.IsPassed)
	}
}

func TestAggregateDenominatorCountsUnanswered(t *testing.T) {
	// Only q1 answered; q2's 20 possible points still count.
	responses := []domain.Response{
		{QuestionID: "q1", PointsEarned: 10, IsCorrect: true, IsGraded: true},
		{QuestionID: "q2", IsGraded: true},
	}
	sum := Aggregate(twoQuestionQuiz(nil), responses)
	if sum.PossiblePoints != 30 {
		t.Fatalf("expected denominator 30, got %v", sum.PossiblePoints)
	}
	if want := 100.0 / 3.0; math.Abs(sum.PercentageScore-want) > 1e-9 {
		t.Fatalf("expected about %v%%, got %v%%", want, sum.PercentageScore)
	}
}

func TestAggregateZeroPossiblePoints(t *testing.T) {
	sum := Aggregate(domain.QuizSnapshot{ID: "empty"}, nil)
	if sum.PercentageScore != 0 {
		t.Fatalf("zero-point quiz must score 0%%, got %v", sum.PercentageScore)
	}
}

func TestAggregatePendingManualGrading(t *testing.T) {
	responses := []domain.Response{
		{QuestionID: "q1", PointsEarned: 10, IsCorrect: true, IsGraded: true},
		{QuestionID: "q2", IsGraded: false}, // essay awaiting review
	}
	sum := Aggregate(twoQuestionQuiz(nil), responses)
	if sum.IsGraded {
		t.Fatalf("an ungraded response must keep the attempt ungraded")
	}
	// The auto-graded portion is still reflected immediately.
	if sum.TotalPointsEarned != 10 {
		t.Fatalf("expected auto-graded points to count, got %v", sum.TotalPointsEarned)
	}
}
