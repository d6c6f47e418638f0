package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// newTestBroker connects to a real Redis instance for round-trip coverage
// of the enqueue/dequeue/ack contract. Skipped unless TEST_REDIS_URL is set,
// matching how the rest of this codebase gates tests against live
// dependencies it cannot fake.
func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse TEST_REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, Config{MaxAttempts: 5, RetryBase: time.Millisecond})
}

func TestEnqueueDequeueAckRoundTrip(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	queue := "test-queue-" + newMessageID()

	id, err := b.Enqueue(ctx, queue, map[string]string{"hello": "world"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if id == "" {
		t.Fatal("Enqueue() returned an empty message id")
	}

	msg, err := b.Dequeue(ctx, queue, time.Second)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if msg == nil {
		t.Fatal("Dequeue() returned nil, want the enqueued message")
	}
	if msg.ID != id {
		t.Fatalf("msg.ID = %q, want %q", msg.ID, id)
	}

	if err := b.Ack(ctx, queue, msg); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}
}

func TestNackReschedulesRetryableFailures(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	queue := "test-queue-" + newMessageID()

	id, err := b.Enqueue(ctx, queue, map[string]string{"hello": "world"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	msg, err := b.Dequeue(ctx, queue, time.Second)
	if err != nil || msg == nil {
		t.Fatalf("Dequeue() = %v, %v", msg, err)
	}
	if msg.ID != id {
		t.Fatalf("msg.ID = %q, want %q", msg.ID, id)
	}

	if err := b.Nack(ctx, msg, true); err != nil {
		t.Fatalf("Nack() error = %v", err)
	}

	n, err := b.PromoteDelayed(ctx, queue)
	if err != nil {
		t.Fatalf("PromoteDelayed() error = %v", err)
	}
	if n != 0 {
		t.Fatalf("PromoteDelayed() promoted %d entries before the retry delay elapsed, want 0", n)
	}
}

func TestQueueLengthReflectsPendingMessages(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	queue := "test-queue-" + newMessageID()

	if _, err := b.Enqueue(ctx, queue, map[string]string{"a": "1"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := b.Enqueue(ctx, queue, map[string]string{"b": "2"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	n, err := b.QueueLength(ctx, queue)
	if err != nil {
		t.Fatalf("QueueLength() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("QueueLength() = %d, want 2", n)
	}
}
