package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"school-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz definitions from a backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.QuizSnapshot, error)
}

// QuizRepository caches quiz snapshots with TTL to avoid repeated DB hits.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedSnapshot
}

type cachedSnapshot struct {
	snap      domain.QuizSnapshot
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSnapshot),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.QuizSnapshot, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[quizID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.snap, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[quizID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.snap, nil
		}
		r.mu.RUnlock()

		snap, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.QuizSnapshot{}, err
		}

		r.mu.Lock()
		r.cache[quizID] = cachedSnapshot{
			snap:      snap,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return domain.QuizSnapshot{}, err
	}
	return result.(domain.QuizSnapshot), nil
}

// StaticQuizLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuizLoader struct {
	quizzes map[string]domain.QuizSnapshot
}

func NewStaticQuizLoader(quizzes map[string]domain.QuizSnapshot) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.QuizSnapshot, error) {
	if snap, ok := l.quizzes[quizID]; ok {
		return snap, nil
	}
	return domain.QuizSnapshot{}, domain.ErrQuizUnavailable
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
