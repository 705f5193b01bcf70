package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWatcher struct {
	alive bool
	got   []Notification
}

func (w *fakeWatcher) Notify(n Notification) bool {
	if !w.alive {
		return false
	}
	w.got = append(w.got, n)
	return true
}

func TestSetBroadcastsToWatchers(t *testing.T) {
	p := New()
	w := &fakeWatcher{alive: true}
	p.Watch("k", 1, w)
	p.Set("k", Value("v1"), 42)

	require.Len(t, w.got, 1)
	assert.Equal(t, "k", w.got[0].Label)
	assert.Equal(t, Value("v1"), w.got[0].Value)
	assert.False(t, w.got[0].Removed)

	v, ok := p.Get("k")
	require.True(t, ok)
	assert.Equal(t, Value("v1"), v)
}

func TestDeadWatcherPrunedOnSet_S5(t *testing.T) {
	p := New()
	a := &fakeWatcher{alive: true}
	p.Watch("k", 1, a)
	p.Set("k", Value("1"), 99) // A receives ValueUpdated
	require.Len(t, a.got, 1)

	a.alive = false // A's client socket closed
	p.Set("k", Value("2"), 99)

	item := p.items["k"]
	require.NotNil(t, item)
	assert.Equal(t, 0, item.WatcherCount(), "dead watcher must be pruned on the next broadcast")
}

func TestWatchUnwatchRoundTrip(t *testing.T) {
	p := New()
	w := &fakeWatcher{alive: true}

	existed := p.Unwatch("absent", 1, 0)
	assert.False(t, existed)

	p.Watch("k", 1, w)
	p.Unwatch("k", 1, 7)

	require.Len(t, w.got, 1)
	assert.True(t, w.got[0].Removed)
	_, ok := p.items["k"]
	assert.False(t, ok, "item with no value and no watchers must be purged")
}

func TestRemovePurgesEmptyItem(t *testing.T) {
	p := New()
	p.Set("k", Value("1"), 1)
	p.Remove("k", 1)

	_, ok := p.Get("k")
	assert.False(t, ok)
	_, present := p.items["k"]
	assert.False(t, present)
}

func TestRemoveKeepsItemWithWatchers(t *testing.T) {
	p := New()
	w := &fakeWatcher{alive: true}
	p.Set("k", Value("1"), 1)
	p.Watch("k", 5, w)
	p.Remove("k", 1)

	_, present := p.items["k"]
	assert.True(t, present, "item survives removal while a watcher remains")
	require.Len(t, w.got, 1)
	assert.True(t, w.got[0].Removed)
}
