// Package hub implements per-server log and state pub/sub, with immediate
// backlog delivery to late joiners and a SlowConsumer backpressure policy.
// Modeled as a mutex-guarded concurrent map with copy-on-broadcast.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/forgehost/panel/internal/model"
)

const defaultQueueCapacity = 256

// Event is delivered to a log subscriber: either a one-shot backlog
// snapshot or a single live line.
type Event struct {
	Backlog []model.LogLine
	Line    *model.LogLine
}

// StateEvent is delivered to a state subscriber.
type StateEvent struct {
	State model.State
}

// Subscriber is a bounded delivery queue plus an out-of-band close signal
// used to report SlowConsumer disconnects.
type Subscriber[T any] struct {
	ID     uuid.UUID
	ch     chan T
	Closed chan string // receives the disconnect reason, closed on normal Unsubscribe
}

// Recv exposes the subscriber's channel for range/select use.
func (s *Subscriber[T]) Recv() <-chan T { return s.ch }

func newSubscriber[T any](queueCapacity int) *Subscriber[T] {
	return &Subscriber[T]{ID: uuid.New(), ch: make(chan T, queueCapacity), Closed: make(chan string, 1)}
}

// send attempts a non-blocking delivery; on overflow it removes the
// subscriber from subs and reports SlowConsumer, rather than blocking the
// producer.
func send[T any](subs cmap.ConcurrentMap[string, *Subscriber[T]], sub *Subscriber[T], ev T) {
	select {
	case sub.ch <- ev:
	default:
		subs.Remove(sub.ID.String())
		select {
		case sub.Closed <- "SlowConsumer":
		default:
		}
	}
}

type serverTopics struct {
	mu        sync.Mutex
	logSubs   cmap.ConcurrentMap[string, *Subscriber[Event]]
	stateSubs cmap.ConcurrentMap[string, *Subscriber[StateEvent]]

	ring      []model.LogLine
	ringCap   int
	nextSeq   uint64
	lastState *model.State
}

// Hub is the Subscription Hub.
type Hub struct {
	servers       cmap.ConcurrentMap[string, *serverTopics]
	queueCapacity int
	ringCapacity  int
}

// New returns a Hub. ringCapacity and queueCapacity default to the spec's
// values (1000, 256) when zero.
func New(ringCapacity, queueCapacity int) *Hub {
	if ringCapacity <= 0 {
		ringCapacity = 1000
	}
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}
	return &Hub{
		servers:       cmap.New[*serverTopics](),
		queueCapacity: queueCapacity,
		ringCapacity:  ringCapacity,
	}
}

func (h *Hub) topicsFor(serverID string) *serverTopics {
	t, _ := h.servers.Upsert(serverID, nil, func(exists bool, valueInMap *serverTopics, _ *serverTopics) *serverTopics {
		if exists {
			return valueInMap
		}
		return &serverTopics{
			logSubs:   cmap.New[*Subscriber[Event]](),
			stateSubs: cmap.New[*Subscriber[StateEvent]](),
			ringCap:   h.ringCapacity,
		}
	})
	return t
}

// Release drops all bookkeeping for a server, e.g. once its supervisor
// entry is gone.
func (h *Hub) Release(serverID string) {
	h.servers.Remove(serverID)
}

// PublishLog appends a non-empty line to the server's ring (evicting the
// oldest on overflow) and fans it out to every log subscriber, preserving
// the order observed from the child's pipes.
func (h *Hub) PublishLog(serverID, stream, text string) model.LogLine {
	t := h.topicsFor(serverID)

	t.mu.Lock()
	t.nextSeq++
	line := model.LogLine{
		Seq:      t.nextSeq,
		WallTime: time.Now(),
		Stream:   stream,
		Text:     text,
	}
	t.ring = append(t.ring, line)
	if len(t.ring) > t.ringCap {
		t.ring = t.ring[len(t.ring)-t.ringCap:]
	}
	t.mu.Unlock()

	for _, sub := range t.logSubs.Items() {
		send(t.logSubs, sub, Event{Line: &line})
	}
	return line
}

// PublishState updates and fans out the server's last-observed state.
func (h *Hub) PublishState(serverID string, state model.State) {
	t := h.topicsFor(serverID)

	t.mu.Lock()
	t.lastState = &state
	t.mu.Unlock()

	for _, sub := range t.stateSubs.Items() {
		send(t.stateSubs, sub, StateEvent{State: state})
	}
}

// SubscribeLogs registers a log subscriber, immediately delivering a
// backlog snapshot before any live lines.
func (h *Hub) SubscribeLogs(serverID string) *Subscriber[Event] {
	t := h.topicsFor(serverID)
	sub := newSubscriber[Event](h.queueCapacity)

	t.mu.Lock()
	backlog := make([]model.LogLine, len(t.ring))
	copy(backlog, t.ring)
	t.mu.Unlock()

	// Enqueue the backlog before the subscriber is discoverable by
	// PublishLog, so no live line can reach sub.ch ahead of it.
	sub.ch <- Event{Backlog: backlog}
	t.logSubs.Set(sub.ID.String(), sub)
	return sub
}

// SubscribeState registers a state subscriber, immediately delivering the
// last observed state if any.
func (h *Hub) SubscribeState(serverID string) *Subscriber[StateEvent] {
	t := h.topicsFor(serverID)
	sub := newSubscriber[StateEvent](h.queueCapacity)

	t.stateSubs.Set(sub.ID.String(), sub)
	t.mu.Lock()
	last := t.lastState
	t.mu.Unlock()
	if last != nil {
		sub.ch <- StateEvent{State: *last}
	}
	return sub
}

// UnsubscribeLogs removes a log subscriber.
func (h *Hub) UnsubscribeLogs(serverID string, sub *Subscriber[Event]) {
	if t, ok := h.servers.Get(serverID); ok {
		t.logSubs.Remove(sub.ID.String())
	}
	close(sub.Closed)
}

// UnsubscribeState removes a state subscriber.
func (h *Hub) UnsubscribeState(serverID string, sub *Subscriber[StateEvent]) {
	if t, ok := h.servers.Get(serverID); ok {
		t.stateSubs.Remove(sub.ID.String())
	}
	close(sub.Closed)
}
