package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeliveryQueueKey is the Redis sorted set holding queued delivery jobs,
// scored by the time they become due.
const DeliveryQueueKey = "delivery_queue"

// DeliveryJob is a single delivery task queued in Redis. It carries the
// event payload and the ledger row it executes; the subscription itself is
// re-fetched by the worker so the current secret and status apply.
type DeliveryJob struct {
	AttemptID      string          `json:"attempt_id"`
	EventID        string          `json:"event_id"`
	SubscriptionID string          `json:"subscription_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Attempt        int             `json:"attempt"`
}

// Queue is the Redis-backed fast path for delivery scheduling. The ledger
// remains authoritative; a job lost from Redis is recovered by the sweeper.
type Queue struct {
	client *redis.Client
}

func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue adds a job due at the given time.
func (q *Queue) Enqueue(ctx context.Context, job DeliveryJob, due time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	err = q.client.ZAdd(ctx, DeliveryQueueKey, redis.Z{
		Score:  float64(due.UnixMicro()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("queuing delivery job: %w", err)
	}
	return nil
}

// Due returns up to count raw job members whose due time has passed.
func (q *Queue) Due(ctx context.Context, now time.Time, count int64) ([]string, error) {
	members, err := q.client.ZRangeByScore(ctx, DeliveryQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(float64(now.UnixMicro()), 'f', -1, 64),
		Count: count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("polling delivery queue: %w", err)
	}
	return members, nil
}

// Claim removes a member from the queue. Returns false if another
// dispatcher instance already took it.
func (q *Queue) Claim(ctx context.Context, member string) (bool, error) {
	removed, err := q.client.ZRem(ctx, DeliveryQueueKey, member).Result()
	if err != nil {
		return false, fmt.Errorf("claiming delivery job: %w", err)
	}
	return removed > 0, nil
}

// Depth returns the number of jobs currently waiting in the queue.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, DeliveryQueueKey).Result()
}
