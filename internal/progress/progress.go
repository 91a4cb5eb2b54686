// Package progress implements a session-keyed pub/sub channel for
// provisioning milestones: progress/complete/error events, with a short
// terminal-event retention window so a late subscriber can still observe
// how a finished session ended.
package progress

import (
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/forgehost/panel/internal/apierr"
)

const (
	defaultQueueCapacity = 64
	terminalRetentionTTL = 60 * time.Second
)

// EventKind discriminates the three frame shapes a session can emit.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// Event is one frame delivered to a progress subscriber.
type Event struct {
	Kind     EventKind `json:"kind"`
	Step     string    `json:"step,omitempty"`
	Percent  int       `json:"percent,omitempty"`
	Message  string    `json:"message,omitempty"`
	Current  *int      `json:"current,omitempty"`
	Total    *int      `json:"total,omitempty"`
	ServerID string    `json:"serverId,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

func (e Event) terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}

// Subscriber is a bounded delivery queue for one session's events.
type Subscriber struct {
	ch chan Event
}

// Recv exposes the subscriber's channel for range/select use.
func (s *Subscriber) Recv() <-chan Event { return s.ch }

type session struct {
	mu   sync.Mutex
	subs cmap.ConcurrentMap[string, *Subscriber]
	done bool
}

// Channel is the Progress Channel (C10).
type Channel struct {
	sessions  cmap.ConcurrentMap[string, *session]
	terminal  *ttlcache.Cache[string, Event]
	queueSize int
	nextSubID uint64
	idMu      sync.Mutex
}

// New returns a Channel and starts its terminal-event retention janitor.
func New() *Channel {
	terminal := ttlcache.New[string, Event](
		ttlcache.WithTTL[string, Event](terminalRetentionTTL),
	)
	go terminal.Start()

	return &Channel{
		sessions:  cmap.New[*session](),
		terminal:  terminal,
		queueSize: defaultQueueCapacity,
	}
}

// Close stops the retention janitor.
func (c *Channel) Close() {
	c.terminal.Stop()
}

// NewSession registers a fresh, subscribable session.
func (c *Channel) NewSession(sessionID string) {
	c.sessions.Set(sessionID, &session{subs: cmap.New[*Subscriber]()})
}

// Subscribe registers a subscriber for sessionID. If the session already
// finished but its terminal event is still within the retention window,
// the subscriber receives that event immediately and no live session is
// created. A wholly unknown session yields UnknownSession.
func (c *Channel) Subscribe(sessionID string) (*Subscriber, error) {
	if item := c.terminal.Get(sessionID); item != nil {
		sub := &Subscriber{ch: make(chan Event, 1)}
		sub.ch <- item.Value()
		return sub, nil
	}

	s, ok := c.sessions.Get(sessionID)
	if !ok {
		return nil, apierr.New(apierr.UnknownSession, "provisioning session not found", map[string]any{"session_id": sessionID})
	}

	sub := &Subscriber{ch: make(chan Event, c.queueSize)}
	c.idMu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.idMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs.Set(strconv.FormatUint(id, 10), sub)
	return sub, nil
}

// Publish fans an event out to every live subscriber of sessionID. Terminal
// events (complete/error) also remove the session and stash the event in
// the retention cache.
func (c *Channel) Publish(sessionID string, ev Event) {
	s, ok := c.sessions.Get(sessionID)
	if !ok {
		return
	}

	s.mu.Lock()
	for _, sub := range s.subs.Items() {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	if ev.terminal() {
		s.done = true
	}
	s.mu.Unlock()

	if ev.terminal() {
		c.terminal.Set(sessionID, ev, terminalRetentionTTL)
		c.sessions.Remove(sessionID)
	}
}
