package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeUnknownSessionFails(t *testing.T) {
	t.Parallel()

	c := New()
	defer c.Close()

	_, err := c.Subscribe("nope")
	require.Error(t, err)
}

func TestPublishDeliversProgressThenComplete(t *testing.T) {
	t.Parallel()

	c := New()
	defer c.Close()

	c.NewSession("s1")
	sub, err := c.Subscribe("s1")
	require.NoError(t, err)

	c.Publish("s1", Event{Kind: EventProgress, Step: "fetching", Percent: 5})
	ev := <-sub.Recv()
	assert.Equal(t, EventProgress, ev.Kind)
	assert.Equal(t, "fetching", ev.Step)

	c.Publish("s1", Event{Kind: EventComplete, ServerID: "srv-1"})
	ev = <-sub.Recv()
	assert.Equal(t, EventComplete, ev.Kind)
	assert.Equal(t, "srv-1", ev.ServerID)
}

func TestSubscribeAfterCompleteReturnsRetainedTerminalEvent(t *testing.T) {
	t.Parallel()

	c := New()
	defer c.Close()

	c.NewSession("s1")
	c.Publish("s1", Event{Kind: EventComplete, ServerID: "srv-1"})

	sub, err := c.Subscribe("s1")
	require.NoError(t, err)
	ev := <-sub.Recv()
	assert.Equal(t, EventComplete, ev.Kind)
	assert.Equal(t, "srv-1", ev.ServerID)
}

func TestSessionIsRemovedAfterErrorEvent(t *testing.T) {
	t.Parallel()

	c := New()
	defer c.Close()

	c.NewSession("s1")
	c.Publish("s1", Event{Kind: EventError, Reason: "boom"})

	_, ok := c.sessions.Get("s1")
	assert.False(t, ok)
}
