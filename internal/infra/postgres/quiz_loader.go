package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"school-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader loads quiz definition JSONB from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.QuizSnapshot, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizSnapshot{}, domain.ErrQuizUnavailable
	}
	if err != nil {
		return domain.QuizSnapshot{}, fmt.Errorf("load quiz: %w", err)
	}
	var snap domain.QuizSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.QuizSnapshot{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return snap, nil
}
