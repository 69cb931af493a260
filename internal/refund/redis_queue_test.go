package refund

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) (*miniredis.Miniredis, *RedisQueue) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, NewRedisQueue(rdb)
}

func TestRedisQueue_EnqueueDueAck(t *testing.T) {
	t.Parallel()

	mr, q := newTestQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 2, 18, 0, 0, 0, time.UTC)

	if err := q.Enqueue(ctx, Job{ID: "j-1", MessageID: "m-1", UserID: "u-1", EnqueuedAt: now}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if err := q.Enqueue(ctx, Job{ID: "j-2", MessageID: "m-2", EnqueuedAt: now, NextAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	if n, _ := q.Len(ctx); n != 2 {
		t.Fatalf("expected 2 queued jobs, got %d", n)
	}

	due, err := q.Due(ctx, now, 10)
	if err != nil {
		t.Fatalf("Due() error: %v", err)
	}
	if len(due) != 1 || due[0].ID != "j-1" || due[0].MessageID != "m-1" {
		t.Fatalf("expected only j-1 due, got %+v", due)
	}

	if err := q.Ack(ctx, "j-1"); err != nil {
		t.Fatalf("Ack() error: %v", err)
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Fatalf("expected 1 queued job after ack, got %d", n)
	}
	if mr.HGet(jobsKey, "j-1") != "" {
		t.Fatalf("expected payload to be removed on ack")
	}
}

func TestRedisQueue_RetryReschedules(t *testing.T) {
	t.Parallel()

	_, q := newTestQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 2, 18, 0, 0, 0, time.UTC)

	job := Job{ID: "j-1", MessageID: "m-1", EnqueuedAt: now}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	job.Attempts = 1
	job.LastError = "ledger down"
	if err := q.Retry(ctx, job, now.Add(time.Minute)); err != nil {
		t.Fatalf("Retry() error: %v", err)
	}

	if due, _ := q.Due(ctx, now, 10); len(due) != 0 {
		t.Fatalf("expected nothing due before next_at, got %+v", due)
	}

	due, err := q.Due(ctx, now.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("Due() error: %v", err)
	}
	if len(due) != 1 || due[0].Attempts != 1 || due[0].LastError != "ledger down" {
		t.Fatalf("expected updated job, got %+v", due)
	}
}

func TestRedisQueue_DueRespectsLimitAndOrder(t *testing.T) {
	t.Parallel()

	_, q := newTestQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 2, 18, 0, 0, 0, time.UTC)

	for i, id := range []string{"c", "a", "b"} {
		if err := q.Enqueue(ctx, Job{ID: id, MessageID: "m-" + id, EnqueuedAt: now.Add(time.Duration(-i) * time.Minute)}); err != nil {
			t.Fatalf("Enqueue() error: %v", err)
		}
	}

	due, err := q.Due(ctx, now, 2)
	if err != nil {
		t.Fatalf("Due() error: %v", err)
	}
	if len(due) != 2 || due[0].ID != "b" || due[1].ID != "a" {
		t.Fatalf("expected oldest two (b, a), got %+v", due)
	}
}

func TestRedisQueue_AssignsID(t *testing.T) {
	t.Parallel()

	_, q := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	if err := q.Enqueue(ctx, Job{MessageID: "m-1", EnqueuedAt: now}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	due, _ := q.Due(ctx, now, 1)
	if len(due) != 1 || due[0].ID == "" {
		t.Fatalf("expected generated id, got %+v", due)
	}
}
