// Package eventbus implements the C9 live event bus: an in-process
// publish/subscribe hub keyed by (organizationId, projectId), generalized
// from a single global dispatcher to one hub per tenant/project pair, with
// cross-instance fan-out over Redis Pub/Sub.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/sitemapindexerpro/workercore/infrastructure/logging"
	"github.com/sitemapindexerpro/workercore/internal/model"
)

// EventKind distinguishes the three event shapes delivered to subscribers.
type EventKind string

const (
	EventLog         EventKind = "LOG"
	EventJobUpdate   EventKind = "JOB_UPDATE"
	EventStatsUpdate EventKind = "STATS_UPDATE"
)

// Event is the envelope delivered to subscribers and published cross-instance.
type Event struct {
	Kind      EventKind       `json:"kind"`
	Org       string          `json:"org"`
	ProjectID string          `json:"projectId"`
	Log       *model.LogEvent `json:"log,omitempty"`
	Job       *JobUpdate      `json:"job,omitempty"`
	Stats     *model.CachedCounters `json:"stats,omitempty"`
}

// JobUpdate is the JOB_UPDATE payload shape.
type JobUpdate struct {
	ID             string         `json:"id"`
	Type           model.JobType  `json:"type"`
	Status         model.JobStatus `json:"status"`
	Progress       int            `json:"progress"`
	ProcessedItems int            `json:"processedItems"`
	TotalItems     int            `json:"totalItems"`
}

type channelKey struct {
	org       string
	projectID string
}

func (k channelKey) redisChannel() string {
	return fmt.Sprintf("ws:%s:%s", k.org, k.projectID)
}

// hub fans one (org, project) channel out to its local subscribers,
// preserving publish order per channel (no cross-channel ordering).
type hub struct {
	mu          sync.Mutex
	subscribers map[int64]chan Event
	nextID      int64
}

func newHub() *hub {
	return &hub{subscribers: make(map[int64]chan Event)}
}

func (h *hub) subscribe(buffer int) (int64, chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, buffer)
	h.subscribers[id] = ch
	return id, ch
}

func (h *hub) unsubscribe(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// deliverLocal fans out to local subscribers only, dropping the oldest
// buffered LOG event first when a subscriber's channel is full so that
// JOB_UPDATE/STATS_UPDATE events are never starved by a log flood.
func (h *hub) deliverLocal(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
			if evt.Kind == EventLog {
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}
}

func (h *hub) isEmpty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers) == 0
}

// Bus owns per-(org,project) hubs and the cross-instance Redis fan-out.
type Bus struct {
	rdb *redis.Client
	log *logging.Logger

	mu   sync.Mutex
	hubs map[channelKey]*hub

	subBuffer int
}

func New(rdb *redis.Client, log *logging.Logger, subscriberBuffer int) *Bus {
	return &Bus{
		rdb:       rdb,
		log:       log,
		hubs:      make(map[channelKey]*hub),
		subBuffer: subscriberBuffer,
	}
}

func (b *Bus) hubFor(org, projectID string) *hub {
	key := channelKey{org: org, projectID: projectID}
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.hubs[key]
	if !ok {
		h = newHub()
		b.hubs[key] = h
	}
	return h
}

// Subscribe registers a local subscriber for (org, projectId) and returns a
// channel plus an unsubscribe function. The WebSocket transport layer reads
// from this channel and writes frames to the client connection.
func (b *Bus) Subscribe(org, projectID string) (<-chan Event, func()) {
	h := b.hubFor(org, projectID)
	id, ch := h.subscribe(b.subBuffer)
	return ch, func() { h.unsubscribe(id) }
}

// Publish delivers evt to local subscribers and republishes it to the
// cross-instance Redis channel so other instances' local buses deliver it
// too.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.publishLocal(evt)
	b.publishRemote(ctx, evt)
}

// PublishLog wraps Publish for the common case of broadcasting one log
// line from a domain worker (scanner, google-submitter, indexnow), so
// callers don't each construct a model.LogEvent by hand.
func (b *Bus) PublishLog(ctx context.Context, org, projectID string, level model.LogLevel, module model.LogModule, message, jobID string) {
	var jobIDPtr *string
	if jobID != "" {
		jobIDPtr = &jobID
	}
	b.Publish(ctx, Event{
		Kind:      EventLog,
		Org:       org,
		ProjectID: projectID,
		Log: &model.LogEvent{
			ID:        uuid.NewString(),
			Timestamp: time.Now().UTC(),
			Level:     level,
			Module:    module,
			Message:   message,
			JobID:     jobIDPtr,
			ProjectID: &projectID,
		},
	})
}

func (b *Bus) publishLocal(evt Event) {
	key := channelKey{org: evt.Org, projectID: evt.ProjectID}
	b.mu.Lock()
	h, ok := b.hubs[key]
	b.mu.Unlock()
	if ok {
		h.deliverLocal(evt)
	}
}

func (b *Bus) publishRemote(ctx context.Context, evt Event) {
	if b.rdb == nil {
		return
	}
	body, err := json.Marshal(evt)
	if err != nil {
		b.log.WithError(err).Warn("marshal event for cross-instance publish failed")
		return
	}
	key := channelKey{org: evt.Org, projectID: evt.ProjectID}
	if err := b.rdb.Publish(ctx, key.redisChannel(), body).Err(); err != nil {
		b.log.WithError(err).Warn("publish to cross-instance channel failed")
	}
}

// RunSubscriber listens on all ws:* channels and fans received events into
// local hubs only (never republishing, to avoid echo loops).
func (b *Bus) RunSubscriber(ctx context.Context) error {
	if b.rdb == nil {
		return nil
	}
	pubsub := b.rdb.PSubscribe(ctx, "ws:*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.log.WithError(err).Warn("unmarshal cross-instance event failed")
				continue
			}
			b.publishLocal(evt)
		}
	}
}
