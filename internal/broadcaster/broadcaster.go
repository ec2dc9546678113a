// Package broadcaster fans out metadata-only Events to per-context
// subscribers. Subscribers never receive message content; a content_delta
// event only tells a client to pull get_streaming_chunks itself, which
// makes a dropped or duplicated signal harmless.
package broadcaster

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kairoslabs/convocore/internal/coreobs"
	"github.com/kairoslabs/convocore/pkg/models"
)

const (
	// DefaultBufferSize bounds each subscriber's channel. Under
	// backpressure the oldest buffered event is dropped to make room for
	// the newest, consistent with the broadcaster's best-effort contract.
	DefaultBufferSize = 64

	// HeartbeatInterval is how often a heartbeat event is pushed to every
	// active subscriber.
	HeartbeatInterval = 30 * time.Second
)

type subscription struct {
	id string
	ch chan models.Event
}

// Broadcaster holds the subscriber map, itself protected by its own lock
// independent of any per-context lock: subscribe/drop/fan-out are short
// critical sections and never block on a slow subscriber.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string][]*subscription
	seq  uint64

	cronSched *cron.Cron
	cronID    cron.EntryID

	// Metrics is nil-safe; set it after New to record dropped events.
	Metrics *coreobs.Metrics

	// BufferSize bounds each subscriber's channel; set by New to
	// DefaultBufferSize, overridable before the first Subscribe call.
	BufferSize int
}

// New creates a Broadcaster with no active subscribers and starts the
// heartbeat scheduler.
func New() *Broadcaster {
	b := &Broadcaster{
		subs:       make(map[string][]*subscription),
		cronSched:  cron.New(cron.WithSeconds()),
		BufferSize: DefaultBufferSize,
	}
	spec := "@every " + HeartbeatInterval.String()
	id, err := b.cronSched.AddFunc(spec, b.heartbeatAll)
	if err == nil {
		b.cronID = id
	}
	b.cronSched.Start()
	return b
}

// Stop halts the heartbeat scheduler. Does not close any subscriber
// channels; callers should Close each context first if full teardown is
// required.
func (b *Broadcaster) Stop() {
	b.cronSched.Stop()
}

// Subscribe allocates a receiver for contextID. The returned unsubscribe
// function removes and closes the channel; calling it twice is a no-op.
func (b *Broadcaster) Subscribe(contextID string) (<-chan models.Event, func()) {
	b.mu.Lock()
	b.seq++
	sub := &subscription{id: idFor(b.seq), ch: make(chan models.Event, b.BufferSize)}
	b.subs[contextID] = append(b.subs[contextID], sub)
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[contextID]
			for i, s := range list {
				if s.id == sub.id {
					b.subs[contextID] = append(list[:i], list[i+1:]...)
					close(sub.ch)
					break
				}
			}
			if len(b.subs[contextID]) == 0 {
				delete(b.subs, contextID)
			}
		})
	}
	return sub.ch, unsubscribe
}

// Broadcast pushes event to every subscriber of contextID. A full
// subscriber channel has its oldest buffered event dropped to make room,
// so a slow client loses signals rather than stalling the broadcaster.
func (b *Broadcaster) Broadcast(contextID string, event models.Event) {
	b.mu.Lock()
	subs := append([]*subscription(nil), b.subs[contextID]...)
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
				b.Metrics.ObserveDropped(contextID)
			}
		}
	}
}

// Close closes and removes every subscriber of contextID, used when a
// context is deleted.
func (b *Broadcaster) Close(contextID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[contextID] {
		close(sub.ch)
	}
	delete(b.subs, contextID)
}

// SubscriberCount reports the number of active subscribers for contextID,
// used by tests to assert unsubscribe leaves no entry behind.
func (b *Broadcaster) SubscriberCount(contextID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[contextID])
}

func (b *Broadcaster) heartbeatAll() {
	b.mu.Lock()
	contextIDs := make([]string, 0, len(b.subs))
	for id := range b.subs {
		contextIDs = append(contextIDs, id)
	}
	b.mu.Unlock()

	now := time.Now()
	for _, id := range contextIDs {
		b.Broadcast(id, models.NewHeartbeatEvent(id, now))
	}
}

func idFor(seq uint64) string {
	return "sub-" + itoa(seq)
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
