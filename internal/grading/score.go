package grading

import "school-quiz-service/internal/domain"

// Summary is the attempt-level score derived from graded responses.
type Summary struct {
	TotalPointsEarned float64
	PossiblePoints    float64
	PercentageScore   float64
	IsPassed          *bool // nil when the quiz has no passing threshold
	IsGraded          bool  // false while any response awaits manual grading
}

// Aggregate computes the attempt score from its responses. The
// denominator is the sum of maximum points over every question in the
// snapshot, whether answered or not; a quiz worth zero points scores
// 0%, never a division by zero. It reads the persisted grading fields,
// so rerunning it after manual grading folds teacher-awarded points in.
func Aggregate(snap domain.QuizSnapshot, responses []domain.Response) Summary {
	sum := Summary{
		PossiblePoints: snap.TotalPoints(),
		IsGraded:       true,
	}
	for i := range responses {
		sum.TotalPointsEarned += responses[i].PointsEarned
		if !responses[i].IsGraded {
			sum.IsGraded = false
		}
	}
	if sum.PossiblePoints > 0 {
		sum.PercentageScore = sum.TotalPointsEarned / sum.PossiblePoints * 100
	}
	if snap.PassingScore != nil {
		passed := sum.PercentageScore >= *snap.PassingScore
		sum.IsPassed = &passed
	}
	return sum
}

// Apply copies the summary onto an attempt record.
func (s Summary) Apply(a *domain.Attempt) {
	a.TotalPointsEarned = s.TotalPointsEarned
	a.PercentageScore = s.PercentageScore
	a.IsPassed = s.IsPassed
	a.IsGraded = s.IsGraded
}
