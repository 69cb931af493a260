package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

type Refunder interface {
	Refund(ctx context.Context, messageID string) error
}

// Permanent reports whether err can never succeed on retry. It is set by
// the caller since only the ledger knows which of its errors are final.
type Permanent func(err error) bool

// Inline refunds messageID, retrying transient failures up to attempts
// times with exponential backoff starting at base.
func Inline(ctx context.Context, r Refunder, messageID string, attempts uint64, base time.Duration, permanent Permanent) error {
	b := retry.WithMaxRetries(attempts, retry.NewExponential(base))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := r.Refund(ctx, messageID)
		if err == nil {
			return nil
		}
		if permanent != nil && permanent(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// Delay is the wait before retry n (1-indexed), doubling from base and
// capped at max.
func Delay(base, max time.Duration, attempt int) time.Duration {
	b := retry.WithCappedDuration(max, retry.NewExponential(base))
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d, _ = b.Next()
	}
	return d
}

type WorkerConfig struct {
	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type Worker struct {
	queue     Queue
	ledger    Refunder
	cfg       WorkerConfig
	permanent Permanent
	now       func() time.Time
}

func NewWorker(q Queue, r Refunder, cfg WorkerConfig, permanent Permanent) (*Worker, error) {
	if q == nil || r == nil {
		return nil, errors.New("queue and refunder must not be nil")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("batch size must be > 0")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("max attempts must be > 0")
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 10 * time.Minute
	}
	return &Worker{
		queue:     q,
		ledger:    r,
		cfg:       cfg,
		permanent: permanent,
		now:       time.Now,
	}, nil
}

// Tick drains the jobs that are due. Per-job failures are rescheduled or
// dropped; only a failure to read the queue is returned.
func (w *Worker) Tick(ctx context.Context) error {
	jobs, err := w.queue.Due(ctx, w.now(), w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("read due refunds: %w", err)
	}

	var done, retried, dropped int
	for _, j := range jobs {
		switch w.process(ctx, j) {
		case outcomeDone:
			done++
		case outcomeRetry:
			retried++
		case outcomeDropped:
			dropped++
		}
	}

	if len(jobs) > 0 {
		slog.Info("refund batch processed", "due", len(jobs), "refunded", done, "retrying", retried, "dropped", dropped)
	}
	return nil
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDropped
)

func (w *Worker) process(ctx context.Context, j Job) outcome {
	err := w.ledger.Refund(ctx, j.MessageID)
	if err == nil {
		if err := w.queue.Ack(ctx, j.ID); err != nil {
			slog.Error("refund ack failed", "job_id", j.ID, "message_id", j.MessageID, "err", err)
		}
		slog.Info("queued refund applied", "message_id", j.MessageID, "user_id", j.UserID, "attempts", j.Attempts+1)
		return outcomeDone
	}

	j.Attempts++
	j.LastError = err.Error()

	if (w.permanent != nil && w.permanent(err)) || j.Attempts >= w.cfg.MaxAttempts {
		// Dead letter: the log line is the record an operator acts on.
		slog.Error("refund abandoned",
			"job_id", j.ID,
			"message_id", j.MessageID,
			"user_id", j.UserID,
			"attempts", j.Attempts,
			"err", err,
		)
		if err := w.queue.Ack(ctx, j.ID); err != nil {
			slog.Error("refund ack failed", "job_id", j.ID, "err", err)
		}
		return outcomeDropped
	}

	next := w.now().Add(Delay(w.cfg.BaseDelay, w.cfg.MaxDelay, j.Attempts))
	if err := w.queue.Retry(ctx, j, next); err != nil {
		slog.Error("refund reschedule failed", "job_id", j.ID, "err", err)
	}
	slog.Warn("refund retry scheduled", "message_id", j.MessageID, "attempts", j.Attempts, "next_at", next, "err", err)
	return outcomeRetry
}
