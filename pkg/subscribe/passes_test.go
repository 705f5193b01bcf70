package subscribe

import (
	"testing"

	"github.com/ccanvas/ccanvas/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func p(v int64) *int64 { return &v }

func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	passes := NewPasses()
	ch := events.Coarse(events.AllKeyPresses)

	before := passes.Ordered(ch)
	passes.Subscribe(ch, 7, p(10))
	passes.Unsubscribe(ch, 7)
	after := passes.Ordered(ch)

	assert.Equal(t, before, after, "Subscribe then Unsubscribe must leave passes identical to the pre-state")
}

func TestOrderedListPreservesInsertionOrderWithinPriority(t *testing.T) {
	passes := NewPasses()
	ch := events.Coarse(events.AllKeyPresses)

	passes.Subscribe(ch, 1, p(5))
	passes.Subscribe(ch, 2, p(5))
	passes.Subscribe(ch, 3, p(5))

	order := passes.Ordered(ch)
	require.Len(t, order, 3)
	assert.Equal(t, []uint64{1, 2, 3}, ids(order))
}

func TestPriorityCapture_S2(t *testing.T) {
	// S2: two subscribers on AllKeyPresses, priorities 10 and 5.
	passes := NewPasses()
	ch := events.Coarse(events.AllKeyPresses)
	passes.Subscribe(ch, 100, p(5))
	passes.Subscribe(ch, 200, p(10))

	order := passes.Subscribers([]events.Channel{ch})
	require.Len(t, order, 2)
	assert.Equal(t, uint64(200), order[0].ID, "priority 10 subscriber must be visited first")
	assert.Equal(t, uint64(100), order[1].ID)
}

func TestSubscribersDedupAcrossChannels(t *testing.T) {
	passes := NewPasses()
	everything := events.Coarse(events.Everything)
	keys := events.Coarse(events.AllKeyPresses)

	passes.Subscribe(everything, 1, p(1))
	passes.Subscribe(keys, 1, p(9)) // same subscriber, different channel

	got := passes.Subscribers([]events.Channel{everything, keys})
	require.Len(t, got, 1, "a subscriber matching two channels appears once")
	assert.Equal(t, int64(1), *got[0].Priority, "first matched channel's priority wins")
}

func TestAbsentPrioritySortsLast(t *testing.T) {
	passes := NewPasses()
	ch := events.Coarse(events.Everything)
	passes.Subscribe(ch, 1, nil)
	passes.Subscribe(ch, 2, p(-100))

	order := passes.Subscribers([]events.Channel{ch})
	require.Len(t, order, 2)
	assert.Equal(t, uint64(2), order[0].ID, "even a very low explicit priority beats no priority")
	assert.Equal(t, uint64(1), order[1].ID)
}

func TestSuppressAbovePriority_S3(t *testing.T) {
	sup := NewSuppressors()
	ch := events.Coarse(events.AllKeyPresses)
	id := sup.Suppress(ch, 20)

	level, has := sup.Level([]events.Channel{ch})
	require.True(t, has)
	assert.Equal(t, int64(20), level)
	assert.True(t, ShouldSkip(p(10), level, has), "priority 10 subscriber must be skipped under a priority-20 suppressor")
	assert.False(t, ShouldSkip(p(30), level, has), "priority 30 subscriber must pass a priority-20 suppressor")

	sup.Unsuppress(ch, id)
	_, has = sup.Level([]events.Channel{ch})
	assert.False(t, has)
}

func TestSuppressUnsuppressRoundTrip(t *testing.T) {
	sup := NewSuppressors()
	ch := events.Coarse(events.AllKeyPresses)

	beforeState := sup.StateID
	id := sup.Suppress(ch, 5)
	sup.Unsuppress(ch, id)

	_, has := sup.Level([]events.Channel{ch})
	assert.False(t, has)
	assert.Greater(t, sup.StateID, beforeState, "state id is monotonic non-decreasing across mutations")
}

func TestSuppressorsSortedDescending(t *testing.T) {
	sup := NewSuppressors()
	ch := events.Coarse(events.Everything)
	sup.Suppress(ch, 5)
	sup.Suppress(ch, 50)
	sup.Suppress(ch, 20)

	top, ok := sup.TopPriority(ch)
	require.True(t, ok)
	assert.Equal(t, int64(50), top)
}

func TestCombineLevels(t *testing.T) {
	assert.Nil(t, CombineLevels(nil, nil))
	assert.Equal(t, int64(3), *CombineLevels(p(10), p(3), nil))
	assert.Equal(t, int64(3), *CombineLevels(p(3)))
}

func ids(subs []Subscriber) []uint64 {
	out := make([]uint64, len(subs))
	for i, s := range subs {
		out[i] = s.ID
	}
	return out
}
