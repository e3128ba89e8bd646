package queue

import (
	"context"
	"time"

	r "github.com/redis/go-redis/v9"
)

const readyKey = "bulkops:ready"

// RedisQ is the ready queue of submitted job ids. Postgres stays the
// source of truth; the list only decides pickup order.
type RedisQ struct{ rdb *r.Client }

func New(rdb *r.Client) *RedisQ { return &RedisQ{rdb} }

func (q *RedisQ) Enqueue(ctx context.Context, jobID string) error {
	return q.rdb.LPush(ctx, readyKey, jobID).Err()
}

// Dequeue blocks up to the given duration. An empty queue returns ("", nil)
// so callers can interleave housekeeping between polls.
func (q *RedisQ) Dequeue(ctx context.Context, block time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, block, readyKey).Result()
	if err == r.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(res) == 2 {
		return res[1], nil
	}
	return "", nil
}
