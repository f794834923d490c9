package eventlog

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/domain"
)

func newTestLog(capacity int) *Log {
	return New(capacity, zerolog.Nop())
}

func TestPublishAssignsIDAndTimestamp(t *testing.T) {
	log := newTestLog(10)
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	log.Now = func() time.Time { return fixed }

	evt := log.Publish("task", "created", map[string]any{"taskId": int64(7)})

	require.NotEmpty(t, evt.ID)
	assert.Contains(t, evt.ID, fmt.Sprintf("%d-", fixed.UnixMilli()))
	assert.Equal(t, "task", evt.Resource)
	assert.Equal(t, "created", evt.Action)
	assert.Equal(t, fixed.Format(time.RFC3339Nano), evt.Timestamp)
	assert.Equal(t, "task.created", evt.Type())
}

func TestBoundedRetentionEvictsOldest(t *testing.T) {
	log := newTestLog(3)
	for i := 0; i < 5; i++ {
		log.Publish("task", "updated", map[string]any{"n": i})
	}

	events := log.Events(Query{})
	require.Len(t, events, 3)
	assert.Equal(t, 2, events[0].Data["n"])
	assert.Equal(t, 4, events[2].Data["n"])
	assert.Equal(t, 3, log.Len())
}

func TestEventsAfterID(t *testing.T) {
	log := newTestLog(10)
	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, log.Publish("task", "moved", map[string]any{"n": i}).ID)
	}

	events := log.Events(Query{AfterID: ids[1]})
	require.Len(t, events, 2)
	assert.Equal(t, ids[2], events[0].ID)
	assert.Equal(t, ids[3], events[1].ID)
}

func TestEventsAfterEvictedIDFallsBackToFullBuffer(t *testing.T) {
	log := newTestLog(2)
	first := log.Publish("task", "created", nil).ID
	log.Publish("task", "updated", nil)
	log.Publish("task", "deleted", nil)

	events := log.Events(Query{AfterID: first})
	assert.Len(t, events, 2)
}

func TestEventsSince(t *testing.T) {
	log := newTestLog(10)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	log.Now = func() time.Time { return clock }

	log.Publish("board", "created", nil)
	clock = base.Add(2 * time.Minute)
	log.Publish("task", "created", nil)

	events := log.Events(Query{Since: base.Add(time.Minute).Format(time.RFC3339Nano)})
	require.Len(t, events, 1)
	assert.Equal(t, "task.created", events[0].Type())
}

func TestEventsUnparseableSinceReturnsEmpty(t *testing.T) {
	log := newTestLog(10)
	log.Publish("task", "created", nil)

	events := log.Events(Query{Since: "not-a-timestamp"})
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestEventsLimitKeepsMostRecent(t *testing.T) {
	log := newTestLog(10)
	for i := 0; i < 5; i++ {
		log.Publish("task", "updated", map[string]any{"n": i})
	}

	events := log.Events(Query{Limit: 2})
	require.Len(t, events, 2)
	assert.Equal(t, 3, events[0].Data["n"])
	assert.Equal(t, 4, events[1].Data["n"])
}

func TestSubscribeDeliversInOrderAndUnsubscribes(t *testing.T) {
	log := newTestLog(10)
	var order []string
	unsubA := log.Subscribe(func(e domain.Event) { order = append(order, "a:"+e.Action) })
	log.Subscribe(func(e domain.Event) { order = append(order, "b:"+e.Action) })

	log.Publish("task", "created", nil)
	unsubA()
	log.Publish("task", "moved", nil)

	assert.Equal(t, []string{"a:created", "b:created", "b:moved"}, order)
}

func TestPanickingSubscriberDoesNotBreakOthers(t *testing.T) {
	log := newTestLog(10)
	log.Subscribe(func(domain.Event) { panic("boom") })
	var got int
	log.Subscribe(func(domain.Event) { got++ })

	log.Publish("task", "created", nil)
	log.Publish("task", "updated", nil)

	assert.Equal(t, 2, got)
	assert.Equal(t, 2, log.Len())
}
