package subscribe

import (
	"sort"

	"github.com/ccanvas/ccanvas/pkg/events"
)

type suppressEntry struct {
	id       uint64
	priority int64
}

// Suppressors is the per-component channel -> suppressor table. Each
// space or process owns exactly one. StateID increments on
// every mutation. pkg/processor's Dispatcher does not read it: it
// computes the suppress level once per event.
type Suppressors struct {
	byChannel map[events.Channel][]suppressEntry
	nextID    uint64
	StateID   uint64
}

// NewSuppressors builds an empty suppressor table.
func NewSuppressors() *Suppressors {
	return &Suppressors{byChannel: make(map[events.Channel][]suppressEntry)}
}

// Suppress installs a new suppressor of priority on channel and returns
// its id (used later to remove exactly this suppressor via Unsuppress).
func (s *Suppressors) Suppress(channel events.Channel, priority int64) uint64 {
	s.nextID++
	id := s.nextID
	list := s.byChannel[channel]
	list = append(list, suppressEntry{id: id, priority: priority})
	sort.SliceStable(list, func(i, j int) bool { return list[i].priority > list[j].priority })
	s.byChannel[channel] = list
	s.StateID++
	return id
}

// Unsuppress removes the suppressor previously returned by Suppress.
func (s *Suppressors) Unsuppress(channel events.Channel, id uint64) {
	list, ok := s.byChannel[channel]
	if !ok {
		return
	}
	for i, e := range list {
		if e.id == id {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.byChannel, channel)
	} else {
		s.byChannel[channel] = list
	}
	s.StateID++
}

// TopPriority returns channel's current top (highest) suppressor
// priority, and whether any suppressor exists on it at all.
func (s *Suppressors) TopPriority(channel events.Channel) (int64, bool) {
	list, ok := s.byChannel[channel]
	if !ok || len(list) == 0 {
		return 0, false
	}
	return list[0].priority, true
}

// Level computes current_suppress_level: the max, over channels, of
// each channel's top suppressor priority. The second return reports
// whether any of channels carries a suppressor at all; when false the
// level is undefined and no subscriber should be filtered on it.
func (s *Suppressors) Level(channels []events.Channel) (int64, bool) {
	var level int64
	found := false
	for _, c := range channels {
		p, ok := s.TopPriority(c)
		if !ok {
			continue
		}
		if !found || p > level {
			level = p
		}
		found = true
	}
	return level, found
}

// ShouldSkip reports whether a subscriber must be skipped: a suppressor
// is active on the matched channels and the subscriber's own priority
// is absent or does not exceed that level (see DESIGN.md for why "at or
// below" rather than "strictly below" is the intended reading).
func ShouldSkip(priority *int64, level int64, hasLevel bool) bool {
	if !hasLevel {
		return false
	}
	if priority == nil {
		return true
	}
	return *priority <= level
}

// CombineLevels computes min(levels...) treating a nil entry as
// unconstrained (+infinity). Used to fold an inherited suppress level
// together with a space's own and a target process's own level. A nil
// result means no cap applies at any of the levels given.
func CombineLevels(levels ...*int64) *int64 {
	var min *int64
	for _, l := range levels {
		if l == nil {
			continue
		}
		if min == nil || *l < *min {
			v := *l
			min = &v
		}
	}
	return min
}
