package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeLogsDeliversBacklogBeforeLiveLines(t *testing.T) {
	t.Parallel()

	h := New(1000, 256)
	h.PublishLog("s1", "stdout", "line one")
	h.PublishLog("s1", "stdout", "line two")

	sub := h.SubscribeLogs("s1")
	ev := <-sub.Recv()
	require.NotNil(t, ev.Backlog)
	require.Len(t, ev.Backlog, 2)
	assert.Equal(t, "line one", ev.Backlog[0].Text)
	assert.Equal(t, "line two", ev.Backlog[1].Text)

	h.PublishLog("s1", "stdout", "line three")
	live := <-sub.Recv()
	require.NotNil(t, live.Line)
	assert.Equal(t, "line three", live.Line.Text)
}

func TestRingBufferCapsAt1000(t *testing.T) {
	t.Parallel()

	h := New(1000, 256)
	for i := 0; i < 1500; i++ {
		h.PublishLog("s1", "stdout", "line")
	}
	sub := h.SubscribeLogs("s1")
	ev := <-sub.Recv()
	assert.Len(t, ev.Backlog, 1000)
	// Oldest-evicted: the last backlog entry should have the highest seq.
	assert.EqualValues(t, 1500, ev.Backlog[len(ev.Backlog)-1].Seq)
}

func TestSlowConsumerIsDisconnectedWithoutAffectingOthers(t *testing.T) {
	t.Parallel()

	h := New(1000, 4) // tiny queue to force overflow quickly
	slow := h.SubscribeLogs("s1")
	<-slow.Recv() // drain backlog event

	fast := h.SubscribeLogs("s1")
	<-fast.Recv() // drain backlog event

	// Flood more lines than the slow subscriber's queue can hold, without
	// ever draining it, while the fast subscriber drains after every line.
	for i := 0; i < 20; i++ {
		h.PublishLog("s1", "stdout", "flood")
		<-fast.Recv()
	}

	select {
	case reason := <-slow.Closed:
		assert.Equal(t, "SlowConsumer", reason)
	default:
		t.Fatal("expected slow subscriber to be disconnected")
	}

	// The fast subscriber kept up, so it is still subscribed and receives
	// the next line.
	select {
	case reason := <-fast.Closed:
		t.Fatalf("fast subscriber was disconnected: %s", reason)
	default:
	}
	h.PublishLog("s1", "stdout", "after flood")
	live := <-fast.Recv()
	require.NotNil(t, live.Line)
	assert.Equal(t, "after flood", live.Line.Text)
}

func TestStateSubscribeDeliversLastObservedState(t *testing.T) {
	t.Parallel()

	h := New(1000, 256)
	h.PublishState("s1", "Starting")

	sub := h.SubscribeState("s1")
	ev := <-sub.Recv()
	assert.EqualValues(t, "Starting", ev.State)
}
