package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"school-quiz-service/internal/domain"
	"github.com/uptrace/bun"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts,alias:a"`

	ID                int64      `bun:"attempt_id,pk,autoincrement"`
	QuizID            string     `bun:"quiz_id,notnull"`
	StudentID         int64      `bun:"student_id,notnull"`
	AttemptNumber     int        `bun:"attempt_number,notnull"`
	OrderSeed         int64      `bun:"order_seed,notnull"`
	Snapshot          []byte     `bun:"snapshot,type:jsonb,notnull"`
	StartedAt         time.Time  `bun:"started_at,notnull"`
	SubmittedAt       *time.Time `bun:"submitted_at"`
	TotalPointsEarned float64    `bun:"total_points_earned"`
	PercentageScore   float64    `bun:"percentage_score"`
	IsPassed          *bool      `bun:"is_passed"`
	IsGraded          bool       `bun:"is_graded"`
}

type responseRow struct {
	bun.BaseModel `bun:"table:quiz_responses,alias:r"`

	AttemptID        int64   `bun:"attempt_id,pk"`
	QuestionID       string  `bun:"question_id,pk"`
	SelectedOptionID *string `bun:"selected_option_id"`
	ResponseText     *string `bun:"response_text"`
	PointsEarned     float64 `bun:"points_earned"`
	IsCorrect        bool    `bun:"is_correct"`
	IsGraded         bool    `bun:"is_graded"`
	Feedback         *string `bun:"feedback"`
}

// AttemptStore persists attempts, their frozen snapshots, and responses
// in Postgres via bun. The unique index on (quiz_id, student_id,
// attempt_number) backs the insert-or-fetch creation contract.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt, snap domain.QuizSnapshot) (domain.Attempt, bool, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("marshal snapshot: %w", err)
	}
	row := attemptRowFrom(attempt)
	row.Snapshot = data

	// Insert-or-lose: on conflict the row stays untouched and no ID
	// comes back, which the lifecycle manager resolves by re-reading.
	if _, err := s.db.NewInsert().Model(row).
		On("CONFLICT (quiz_id, student_id, attempt_number) DO NOTHING").
		Returning("attempt_id").
		Exec(ctx); err != nil {
		return domain.Attempt{}, false, fmt.Errorf("insert attempt: %w", err)
	}
	if row.ID == 0 {
		return domain.Attempt{}, false, nil
	}
	return row.toDomain(), true, nil
}

func (s *AttemptStore) ListAttempts(ctx context.Context, quizID string, studentID int64) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("quiz_id = ?", quizID).
		Where("student_id = ?", studentID).
		Order("attempt_number DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]domain.Attempt, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID int64) (domain.Attempt, error) {
	row := &attemptRow{ID: attemptID}
	err := s.db.NewSelect().Model(row).WherePK().Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) AttemptSnapshot(ctx context.Context, attemptID int64) (domain.QuizSnapshot, error) {
	var raw []byte
	err := s.db.NewSelect().Model((*attemptRow)(nil)).
		Column("snapshot").
		Where("attempt_id = ?", attemptID).
		Scan(ctx, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizSnapshot{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.QuizSnapshot{}, fmt.Errorf("get attempt snapshot: %w", err)
	}
	var snap domain.QuizSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.QuizSnapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

func (s *AttemptStore) SaveResponse(ctx context.Context, resp domain.Response) error {
	row := responseRowFrom(resp)
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (attempt_id, question_id) DO UPDATE").
		Set("selected_option_id = EXCLUDED.selected_option_id").
		Set("response_text = EXCLUDED.response_text").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	return nil
}

func (s *AttemptStore) ListResponses(ctx context.Context, attemptID int64) ([]domain.Response, error) {
	var rows []responseRow
	err := s.db.NewSelect().Model(&rows).
		Where("attempt_id = ?", attemptID).
		Order("question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	out := make([]domain.Response, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *AttemptStore) FinalizeAttempt(ctx context.Context, attempt domain.Attempt, responses []domain.Response) (bool, error) {
	finalized := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := attemptRowFrom(attempt)
		res, err := tx.NewUpdate().Model(row).
			Column("submitted_at", "total_points_earned", "percentage_score", "is_passed", "is_graded").
			WherePK().
			Where("submitted_at IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("close attempt: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			// Another submission already closed this attempt; its
			// scoring pass stands.
			return nil
		}

		rows := make([]responseRow, len(responses))
		for i := range responses {
			rows[i] = *responseRowFrom(responses[i])
		}
		if len(rows) > 0 {
			if _, err := tx.NewInsert().Model(&rows).
				On("CONFLICT (attempt_id, question_id) DO UPDATE").
				Set("selected_option_id = EXCLUDED.selected_option_id").
				Set("response_text = EXCLUDED.response_text").
				Set("points_earned = EXCLUDED.points_earned").
				Set("is_correct = EXCLUDED.is_correct").
				Set("is_graded = EXCLUDED.is_graded").
				Set("feedback = EXCLUDED.feedback").
				Exec(ctx); err != nil {
				return fmt.Errorf("write scored responses: %w", err)
			}
		}
		finalized = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return finalized, nil
}

func (s *AttemptStore) UpdateResponseGrade(ctx context.Context, resp domain.Response) error {
	row := responseRowFrom(resp)
	res, err := s.db.NewUpdate().Model(row).
		Column("points_earned", "is_correct", "is_graded", "feedback").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update response grade: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (s *AttemptStore) UpdateAttemptScore(ctx context.Context, attempt domain.Attempt) error {
	row := attemptRowFrom(attempt)
	res, err := s.db.NewUpdate().Model(row).
		Column("total_points_earned", "percentage_score", "is_passed", "is_graded").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update attempt score: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func attemptRowFrom(a domain.Attempt) *attemptRow {
	return &attemptRow{
		ID:                a.ID,
		QuizID:            a.QuizID,
		StudentID:         a.StudentID,
		AttemptNumber:     a.AttemptNumber,
		OrderSeed:         a.OrderSeed,
		StartedAt:         a.StartedAt,
		SubmittedAt:       a.SubmittedAt,
		TotalPointsEarned: a.TotalPointsEarned,
		PercentageScore:   a.PercentageScore,
		IsPassed:          a.IsPassed,
		IsGraded:          a.IsGraded,
	}
}

func (r *attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:                r.ID,
		QuizID:            r.QuizID,
		StudentID:         r.StudentID,
		AttemptNumber:     r.AttemptNumber,
		OrderSeed:         r.OrderSeed,
		StartedAt:         r.StartedAt,
		SubmittedAt:       r.SubmittedAt,
		TotalPointsEarned: r.TotalPointsEarned,
		PercentageScore:   r.PercentageScore,
		IsPassed:          r.IsPassed,
		IsGraded:          r.IsGraded,
	}
}

func responseRowFrom(resp domain.Response) *responseRow {
	return &responseRow{
		AttemptID:        resp.AttemptID,
		QuestionID:       resp.QuestionID,
		SelectedOptionID: resp.SelectedOptionID,
		ResponseText:     resp.ResponseText,
		PointsEarned:     resp.PointsEarned,
		IsCorrect:        resp.IsCorrect,
		IsGraded:         resp.IsGraded,
		Feedback:         resp.Feedback,
	}
}

func (r *responseRow) toDomain() domain.Response {
	return domain.Response{
		AttemptID:        r.AttemptID,
		QuestionID:       r.QuestionID,
		SelectedOptionID: r.SelectedOptionID,
		ResponseText:     r.ResponseText,
		PointsEarned:     r.PointsEarned,
		IsCorrect:        r.IsCorrect,
		IsGraded:         r.IsGraded,
		Feedback:         r.Feedback,
	}
}
