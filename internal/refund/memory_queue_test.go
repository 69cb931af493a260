package refund

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueue_Lifecycle(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue()
	ctx := context.Background()
	now := time.Date(2026, 2, 2, 18, 0, 0, 0, time.UTC)

	_ = q.Enqueue(ctx, Job{ID: "late", MessageID: "m-2", EnqueuedAt: now})
	_ = q.Enqueue(ctx, Job{ID: "early", MessageID: "m-1", EnqueuedAt: now.Add(-time.Minute)})
	_ = q.Enqueue(ctx, Job{ID: "future", MessageID: "m-3", EnqueuedAt: now, NextAt: now.Add(time.Hour)})

	due, _ := q.Due(ctx, now, 10)
	if len(due) != 2 || due[0].ID != "early" || due[1].ID != "late" {
		t.Fatalf("unexpected due jobs %+v", due)
	}

	if due, _ := q.Due(ctx, now, 1); len(due) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(due))
	}

	_ = q.Retry(ctx, due[0], now.Add(2*time.Hour))
	_ = q.Ack(ctx, "late")

	if n, _ := q.Len(ctx); n != 2 {
		t.Fatalf("expected 2 jobs left, got %d", n)
	}
	if due, _ := q.Due(ctx, now, 10); len(due) != 0 {
		t.Fatalf("expected nothing due, got %+v", due)
	}
}
