package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// AttemptTracker marks live timed attempts with a key that expires at
// the attempt's deadline:
//
//	SET attempt:{attemptID}:live {deadline unix} EX {until deadline}
//
// Operators get a cheap view of in-flight timed sessions, and a key
// expiring on its own means the deadline passed without a clean submit.
// Writes are best-effort; the lifecycle never depends on them.
type AttemptTracker struct {
	client *redis.Client
	clock  func() time.Time
}

func NewAttemptTracker(client *redis.Client) *AttemptTracker {
	return &AttemptTracker{client: client, clock: time.Now}
}

func (t *AttemptTracker) Track(ctx context.Context, attemptID int64, deadline time.Time) {
	remaining := deadline.Sub(t.clock())
	if remaining <= 0 {
		return
	}
	_ = t.client.Set(ctx, t.key(attemptID), deadline.Unix(), remaining).Err()
}

func (t *AttemptTracker) Untrack(ctx context.Context, attemptID int64) {
	_ = t.client.Del(ctx, t.key(attemptID)).Err()
}

func (t *AttemptTracker) key(attemptID int64) string {
	return "attempt:" + strconv.FormatInt(attemptID, 10) + ":live"
}
