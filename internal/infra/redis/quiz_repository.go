package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"school-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz definitions from a backing store (e.g., Postgres JSONB).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.QuizSnapshot, error)
}

// QuizRepository is a read-through cache of quiz snapshots:
// GET quiz:{quizID}:snapshot holds the definition JSON, refilled from
// the loader on miss. The cache is a view, never the authority; grading
// always runs against the snapshot frozen on the attempt itself.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.QuizSnapshot, error) {
	key := r.snapshotKey(quizID)

	if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var snap domain.QuizSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			return snap, nil
		}
		// Unreadable cache entry: drop it and fall through to the loader.
		_ = r.client.Del(ctx, key).Err()
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
			var snap domain.QuizSnapshot
			if err := json.Unmarshal(raw, &snap); err == nil {
				return snap, nil
			}
		}

		snap, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.QuizSnapshot{}, err
		}

		if data, err := json.Marshal(snap); err == nil {
			// best-effort fill
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return snap, nil
	})
	if err != nil {
		return domain.QuizSnapshot{}, err
	}
	return result.(domain.QuizSnapshot), nil
}

func (r *QuizRepository) snapshotKey(quizID string) string {
	return "quiz:" + quizID + ":snapshot"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
