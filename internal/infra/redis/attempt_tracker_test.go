package redis

import (
	"context"
	"strconv"
	"testing"
	"time"
)

func TestTrackSetsExpiringKey(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	tracker := NewAttemptTracker(client)

	now := time.Now()
	tracker.clock = func() time.Time { return now }
	deadline := now.Add(10 * time.Minute)
	tracker.Track(ctx, 42, deadline)

	got, err := mr.Get("attempt:42:live")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != strconv.FormatInt(deadline.Unix(), 10) {
		t.Fatalf("key holds %q, want the deadline unix timestamp", got)
	}
	if ttl := mr.TTL("attempt:42:live"); ttl <= 0 || ttl > 10*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	// The key expires on its own at the deadline.
	mr.FastForward(11 * time.Minute)
	if mr.Exists("attempt:42:live") {
		t.Fatalf("key must expire at the deadline")
	}
}

func TestTrackSkipsPassedDeadlines(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	tracker := NewAttemptTracker(client)

	tracker.Track(ctx, 42, time.Now().Add(-time.Minute))
	if mr.Exists("attempt:42:live") {
		t.Fatalf("a deadline in the past must not be tracked")
	}
}

func TestUntrackRemovesKey(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	tracker := NewAttemptTracker(client)

	tracker.Track(ctx, 42, time.Now().Add(10*time.Minute))
	tracker.Untrack(ctx, 42)
	if mr.Exists("attempt:42:live") {
		t.Fatalf("untrack must delete the live key")
	}
}
