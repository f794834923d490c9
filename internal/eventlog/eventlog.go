// Package eventlog holds the in-process domain event journal: a bounded,
// append-only ring buffer with synchronous fan-out to live subscribers.
// It backs both the sync API (polling and streaming replication) and the
// automation layer's view of recent state changes.
package eventlog

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"taskboard/internal/domain"
)

// DefaultCapacity bounds the retained event window.
const DefaultCapacity = 500

type subscriber struct {
	id int
	fn func(domain.Event)
}

// Log is the event journal. The zero value is not usable; construct with New.
type Log struct {
	mu       sync.Mutex
	capacity int
	events   []domain.Event
	subs     []subscriber
	nextSub  int
	logger   zerolog.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

func New(capacity int, logger zerolog.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		logger:   logger.With().Str("component", "eventlog").Logger(),
		Now:      time.Now,
	}
}

// Publish appends one event and delivers it to every live subscriber in
// subscription order. Appends are serialized; the oldest event is evicted
// once capacity is exceeded. The returned event is the stored record.
func (l *Log) Publish(resource, action string, data map[string]any) domain.Event {
	if data == nil {
		data = map[string]any{}
	}
	l.mu.Lock()
	now := l.Now().UTC()
	evt := domain.Event{
		ID:        newEventID(now),
		Resource:  resource,
		Action:    action,
		Timestamp: now.Format(time.RFC3339Nano),
		Data:      data,
	}
	l.events = append(l.events, evt)
	if len(l.events) > l.capacity {
		l.events = l.events[1:]
	}
	subs := make([]subscriber, len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()

	for _, s := range subs {
		l.notify(s, evt)
	}
	return evt
}

// notify isolates one listener invocation so a panicking subscriber cannot
// break delivery to the rest.
func (l *Log) notify(s subscriber, evt domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Int("subscriber", s.id).Any("panic", r).Str("event_id", evt.ID).Msg("subscriber panicked")
		}
	}()
	s.fn(evt)
}

// Subscribe registers a listener invoked once per future publish. The
// returned function deregisters it; calling it more than once is harmless.
func (l *Log) Subscribe(fn func(domain.Event)) func() {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs = append(l.subs, subscriber{id: id, fn: fn})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, s := range l.subs {
			if s.id == id {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

// Query selects retained events. AfterID wins over Since; an AfterID that is
// no longer retained falls back to the full buffer, and an unparseable Since
// yields no events at all. A positive Limit keeps the most recent entries.
type Query struct {
	Since   string
	AfterID string
	Limit   int
}

// Events returns a snapshot of retained events matching q, in append order.
func (l *Log) Events(q Query) []domain.Event {
	l.mu.Lock()
	events := make([]domain.Event, len(l.events))
	copy(events, l.events)
	l.mu.Unlock()

	if q.AfterID != "" {
		if idx := indexOf(events, q.AfterID); idx >= 0 {
			events = events[idx+1:]
		}
	} else if q.Since != "" {
		since, err := parseSince(q.Since)
		if err != nil {
			return []domain.Event{}
		}
		filtered := events[:0]
		for _, evt := range events {
			ts, err := time.Parse(time.RFC3339Nano, evt.Timestamp)
			if err == nil && ts.After(since) {
				filtered = append(filtered, evt)
			}
		}
		events = filtered
	}

	if q.Limit > 0 && len(events) > q.Limit {
		events = events[len(events)-q.Limit:]
	}
	return events
}

// Len reports how many events are currently retained.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func indexOf(events []domain.Event, id string) int {
	for i, evt := range events {
		if evt.ID == id {
			return i
		}
	}
	return -1
}

func parseSince(since string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, since); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", since)
}

// newEventID builds a millisecond-prefixed id with a random suffix. IDs from
// a single Log sort in append order at millisecond granularity, which is all
// the sync feed promises.
func newEventID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}
