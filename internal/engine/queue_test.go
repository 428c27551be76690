package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewQueue(client)
}

func TestQueue_EnqueueAndDue(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	job := DeliveryJob{
		AttemptID:      "att-1",
		EventID:        "evt-1",
		SubscriptionID: "sub-1",
		EventType:      "candidate.hired",
		Payload:        json.RawMessage(`{"candidate_id":"c-9"}`),
		Attempt:        1,
	}

	if err := q.Enqueue(ctx, job, now.Add(-time.Second)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	members, err := q.Due(ctx, now, 10)
	if err != nil {
		t.Fatalf("due failed: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 due job, got %d", len(members))
	}

	var decoded DeliveryJob
	if err := json.Unmarshal([]byte(members[0]), &decoded); err != nil {
		t.Fatalf("failed to unmarshal due job: %v", err)
	}
	if decoded.AttemptID != "att-1" || decoded.EventType != "candidate.hired" {
		t.Errorf("decoded job does not match: %+v", decoded)
	}
}

func TestQueue_FutureJobsNotDue(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	job := DeliveryJob{AttemptID: "att-future", EventID: "evt-1", Attempt: 2}
	if err := q.Enqueue(ctx, job, now.Add(time.Minute)); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	members, err := q.Due(ctx, now, 10)
	if err != nil {
		t.Fatalf("due failed: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("job scheduled a minute out should not be due, got %d", len(members))
	}

	// Becomes visible once the due time passes
	members, err = q.Due(ctx, now.Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("due failed: %v", err)
	}
	if len(members) != 1 {
		t.Errorf("expected 1 due job after due time, got %d", len(members))
	}
}

func TestQueue_ClaimIsExclusive(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	job := DeliveryJob{AttemptID: "att-1", EventID: "evt-1", Attempt: 1}
	if err := q.Enqueue(ctx, job, now); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	members, err := q.Due(ctx, now, 10)
	if err != nil || len(members) != 1 {
		t.Fatalf("expected 1 due job, got %d (err=%v)", len(members), err)
	}

	claimed, err := q.Claim(ctx, members[0])
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !claimed {
		t.Error("first claim should succeed")
	}

	// Second dispatcher loses the race
	claimed, err = q.Claim(ctx, members[0])
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if claimed {
		t.Error("second claim of the same member should return false")
	}
}

func TestQueue_Depth(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth failed: %v", err)
	}
	if depth != 0 {
		t.Errorf("expected empty queue, got depth %d", depth)
	}

	for i := 0; i < 3; i++ {
		job := DeliveryJob{AttemptID: "att-" + string(rune('a'+i)), Attempt: 1}
		if err := q.Enqueue(ctx, job, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	depth, err = q.Depth(ctx)
	if err != nil {
		t.Fatalf("depth failed: %v", err)
	}
	if depth != 3 {
		t.Errorf("expected queue depth 3, got %d", depth)
	}
}

func TestDeliveryQueueKey_Constant(t *testing.T) {
	if DeliveryQueueKey != "delivery_queue" {
		t.Errorf("expected DeliveryQueueKey = %q, got %q", "delivery_queue", DeliveryQueueKey)
	}
}
