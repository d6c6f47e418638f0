// Package queue implements the C5 queue broker contract on top of Redis:
// named durable queues, per-queue concurrency caps and rate limits,
// delayed retry delivery, and at-least-once handoff to worker handlers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	workererrors "github.com/sitemapindexerpro/workercore/infrastructure/errors"
	"github.com/sitemapindexerpro/workercore/infrastructure/ratelimit"
)

// Queue names.
const (
	QueueScanner        = "sitemap-scanner"
	QueueGoogleSubmitter = "google-submitter"
	QueueIndexNow       = "indexnow-submitter"
)

func processingKey(queue string) string { return fmt.Sprintf("%s:processing", queue) }
func delayedKey(queue string) string    { return fmt.Sprintf("%s:delayed", queue) }

// Message is one enqueued unit of work.
type Message struct {
	ID       string          `json:"id"`
	Queue    string          `json:"queue"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// Broker is the Redis-backed implementation of the C5 interface.
type Broker struct {
	rdb         *redis.Client
	maxAttempts int
	retryBase   time.Duration
	limiters    map[string]*ratelimit.RateLimiter
}

// Config configures per-queue concurrency/rate behavior.
type Config struct {
	MaxAttempts int
	RetryBase   time.Duration
}

func New(rdb *redis.Client, cfg Config) *Broker {
	b := &Broker{
		rdb:         rdb,
		maxAttempts: cfg.MaxAttempts,
		retryBase:   cfg.RetryBase,
		limiters:    make(map[string]*ratelimit.RateLimiter),
	}
	b.limiters[QueueScanner] = ratelimit.New(ratelimit.RateLimitConfig{RequestsPerSecond: 50, Burst: 100})
	b.limiters[QueueGoogleSubmitter] = ratelimit.New(ratelimit.RateLimitConfig{RequestsPerSecond: 10, Burst: 20})
	b.limiters[QueueIndexNow] = ratelimit.New(ratelimit.RateLimitConfig{RequestsPerSecond: 20, Burst: 40})
	return b
}

// Enqueue places a new message on queue with attempts=0.
func (b *Broker) Enqueue(ctx context.Context, queue string, payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", workererrors.Internal("marshal queue payload", err)
	}
	id := newMessageID()
	msg := Message{ID: id, Queue: queue, Payload: raw, Attempts: 0}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", workererrors.Internal("marshal queue message", err)
	}
	if err := b.rdb.LPush(ctx, queue, body).Err(); err != nil {
		return "", workererrors.Transient("enqueue message", err)
	}
	return id, nil
}

// EnqueueDelayed schedules a message for redelivery after delay, used for
// retry backoff.
func (b *Broker) EnqueueDelayed(ctx context.Context, msg Message, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return workererrors.Internal("marshal delayed message", err)
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli()) / 1000
	if err := b.rdb.ZAdd(ctx, delayedKey(msg.Queue), &redis.Z{Score: readyAt, Member: body}).Err(); err != nil {
		return workererrors.Transient("schedule delayed message", err)
	}
	return nil
}

// PromoteDelayed moves due entries from the delayed sorted set back onto
// the live queue. Intended to be called periodically by a poller.
func (b *Broker) PromoteDelayed(ctx context.Context, queue string) (int, error) {
	now := float64(time.Now().Unix())
	due, err := b.rdb.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return 0, workererrors.Transient("scan delayed queue", err)
	}
	for _, entry := range due {
		pipe := b.rdb.TxPipeline()
		pipe.LPush(ctx, queue, entry)
		pipe.ZRem(ctx, delayedKey(queue), entry)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, workererrors.Transient("promote delayed message", err)
		}
	}
	return len(due), nil
}

// Dequeue blocks until a message is available on queue (or ctx is done),
// moving it onto the processing list for at-least-once delivery.
func (b *Broker) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Message, error) {
	if limiter, ok := b.limiters[queue]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	raw, err := b.rdb.BRPopLPush(ctx, queue, processingKey(queue), timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, workererrors.Transient("dequeue message", err)
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, workererrors.Internal("unmarshal queue message", err)
	}
	return &msg, nil
}

// Ack removes a successfully processed message from the processing list.
func (b *Broker) Ack(ctx context.Context, queue string, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return workererrors.Internal("marshal ack message", err)
	}
	if err := b.rdb.LRem(ctx, processingKey(queue), 1, body).Err(); err != nil {
		return workererrors.Transient("ack message", err)
	}
	return nil
}

// Nack removes the message from processing and either reschedules it with
// exponential backoff (Transient failures under maxAttempts) or drops it
// (the caller is expected to have already persisted the terminal failure,
// e.g. via jobstore.Fail).
func (b *Broker) Nack(ctx context.Context, msg *Message, retryable bool) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return workererrors.Internal("marshal nack message", err)
	}
	if err := b.rdb.LRem(ctx, processingKey(msg.Queue), 1, body).Err(); err != nil {
		return workererrors.Transient("remove from processing list", err)
	}

	if !retryable || msg.Attempts+1 >= b.maxAttempts {
		return nil
	}

	next := *msg
	next.Attempts++
	delay := b.retryBase * time.Duration(1<<uint(next.Attempts))
	return b.EnqueueDelayed(ctx, next, delay)
}

// QueueLength reports the approximate pending size for the queue_size gauge.
func (b *Broker) QueueLength(ctx context.Context, queue string) (int64, error) {
	n, err := b.rdb.LLen(ctx, queue).Result()
	if err != nil {
		return 0, workererrors.Transient("queue length", err)
	}
	return n, nil
}

func newMessageID() string {
	return fmt.Sprintf("msg_%d", time.Now().UnixNano())
}
