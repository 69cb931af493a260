package refund

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	dueKey  = "refunds:due"
	jobsKey = "refunds:jobs"
)

// RedisQueue stores job payloads in a hash and schedules them in a sorted
// set scored by due time in unix milliseconds.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.NextAt.IsZero() {
		job.NextAt = job.EnqueuedAt
	}
	return q.put(ctx, job)
}

func (q *RedisQueue) Retry(ctx context.Context, job Job, nextAt time.Time) error {
	job.NextAt = nextAt
	return q.put(ctx, job)
}

func (q *RedisQueue) put(ctx context.Context, job Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, jobsKey, job.ID, b)
		p.ZAdd(ctx, dueKey, redis.Z{Score: float64(job.NextAt.UnixMilli()), Member: job.ID})
		return nil
	})
	return err
}

func (q *RedisQueue) Due(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := q.rdb.ZRangeByScore(ctx, dueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	vals, err := q.rdb.HMGet(ctx, jobsKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// Payload vanished; drop the dangling schedule entry.
			_ = q.rdb.ZRem(ctx, dueKey, ids[i]).Err()
			continue
		}
		var j Job
		if err := json.Unmarshal([]byte(s), &j); err != nil {
			return nil, fmt.Errorf("decode refund job %s: %w", ids[i], err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, dueKey, id)
		p.HDel(ctx, jobsKey, id)
		return nil
	})
	return err
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, dueKey).Result()
}
