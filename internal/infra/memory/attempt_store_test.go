package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"school-quiz-service/internal/domain"
)

func storeAttempt(n int) domain.Attempt {
	return domain.Attempt{
		QuizID:        "quiz-1",
		StudentID:     7,
		AttemptNumber: n,
		StartedAt:     time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestCreateAttemptEnforcesUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()

	first, inserted, err := store.CreateAttempt(ctx, storeAttempt(1), domain.QuizSnapshot{ID: "quiz-1"})
	if err != nil || !inserted {
		t.Fatalf("first create: inserted=%v err=%v", inserted, err)
	}
	if first.ID == 0 {
		t.Fatalf("expected an assigned attempt id")
	}

	_, inserted, err = store.CreateAttempt(ctx, storeAttempt(1), domain.QuizSnapshot{ID: "quiz-1"})
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if inserted {
		t.Fatalf("duplicate (quiz, student, number) must not insert")
	}

	_, inserted, err = store.CreateAttempt(ctx, storeAttempt(2), domain.QuizSnapshot{ID: "quiz-1"})
	if err != nil || !inserted {
		t.Fatalf("next number create: inserted=%v err=%v", inserted, err)
	}
}

func TestListAttemptsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	for n := 1; n <= 3; n++ {
		if _, _, err := store.CreateAttempt(ctx, storeAttempt(n), domain.QuizSnapshot{ID: "quiz-1"}); err != nil {
			t.Fatalf("create %d: %v", n, err)
		}
	}

	attempts, err := store.ListAttempts(ctx, "quiz-1", 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(attempts))
	}
	for i, want := range []int{3, 2, 1} {
		if attempts[i].AttemptNumber != want {
			t.Fatalf("position %d: want number %d, got %d", i, want, attempts[i].AttemptNumber)
		}
	}

	other, err := store.ListAttempts(ctx, "quiz-1", 8)
	if err != nil {
		t.Fatalf("list other student: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no attempts for another student, got %d", len(other))
	}
}

func TestFinalizeAttemptIsConditional(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	created, _, err := store.CreateAttempt(ctx, storeAttempt(1), domain.QuizSnapshot{ID: "quiz-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	submittedAt := created.StartedAt.Add(5 * time.Minute)
	finalized := created
	finalized.SubmittedAt = &submittedAt
	finalized.TotalPointsEarned = 10

	ok, err := store.FinalizeAttempt(ctx, finalized, []domain.Response{
		{AttemptID: created.ID, QuestionID: "q1", PointsEarned: 10, IsCorrect: true, IsGraded: true},
	})
	if err != nil || !ok {
		t.Fatalf("first finalize: ok=%v err=%v", ok, err)
	}

	// A second finalization, as from a late timer, must not overwrite.
	later := finalized
	later.TotalPointsEarned = 0
	ok, err = store.FinalizeAttempt(ctx, later, nil)
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if ok {
		t.Fatalf("finalize must refuse an already-submitted attempt")
	}

	got, err := store.GetAttempt(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalPointsEarned != 10 {
		t.Fatalf("losing finalize overwrote the score")
	}
	responses, err := store.ListResponses(ctx, created.ID)
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(responses) != 1 || !responses[0].IsGraded {
		t.Fatalf("expected the winning finalize's responses, got %+v", responses)
	}
}

func TestSaveResponseReplacesAnswer(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	created, _, err := store.CreateAttempt(ctx, storeAttempt(1), domain.QuizSnapshot{ID: "quiz-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	a := "opt-a"
	b := "opt-b"
	if err := store.SaveResponse(ctx, domain.Response{AttemptID: created.ID, QuestionID: "q1", SelectedOptionID: &a}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveResponse(ctx, domain.Response{AttemptID: created.ID, QuestionID: "q1", SelectedOptionID: &b}); err != nil {
		t.Fatalf("resave: %v", err)
	}

	responses, err := store.ListResponses(ctx, created.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("resave must replace, not append: got %d responses", len(responses))
	}
	if *responses[0].SelectedOptionID != "opt-b" {
		t.Fatalf("expected the replacement answer, got %q", *responses[0].SelectedOptionID)
	}
}

func TestUnknownAttemptErrors(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()

	if _, err := store.GetAttempt(ctx, 99); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("get: expected ErrAttemptNotFound, got %v", err)
	}
	if _, err := store.AttemptSnapshot(ctx, 99); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("snapshot: expected ErrAttemptNotFound, got %v", err)
	}
	if err := store.SaveResponse(ctx, domain.Response{AttemptID: 99, QuestionID: "q1"}); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("save: expected ErrAttemptNotFound, got %v", err)
	}
}
