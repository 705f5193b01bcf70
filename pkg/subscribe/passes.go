// Package subscribe implements the broker-wide subscription table
// (Passes) and the per-component suppressor tables: priority-ordered
// subscriber lists, O(1) dedup membership, and the suppress-level
// computation used to filter subscribers before delivery.
package subscribe

import (
	"sort"

	"github.com/ccanvas/ccanvas/pkg/events"
)

// Subscriber is one (subscriber id, priority) binding recorded against a
// channel. Priority is nil when the subscriber asked for none; such a
// subscriber always sorts after every prioritized subscriber.
type Subscriber struct {
	ID       uint64
	Priority *int64
}

type passList struct {
	members map[uint64]bool
	order   []Subscriber // descending priority, ties by insertion order
}

// Passes is the broker-wide channel -> subscriber table. It is owned
// exclusively by the Processor goroutine; nothing else may mutate it.
type Passes struct {
	byChannel map[events.Channel]*passList
}

// NewPasses builds an empty subscription table.
func NewPasses() *Passes {
	return &Passes{byChannel: make(map[events.Channel]*passList)}
}

// Subscribe records subscriberID on channel at priority (nil = none).
// Re-subscribing the same id on the same channel overwrites its
// priority in place without disturbing its position in the ordered
// list relative to other unchanged entries — this keeps Subscribe then
// Unsubscribe a true identity operation only when the id was not
// already present; updating an existing id's
// priority is an explicit re-prioritization, not covered by that
// round-trip.
func (p *Passes) Subscribe(channel events.Channel, id uint64, priority *int64) {
	l, ok := p.byChannel[channel]
	if !ok {
		l = &passList{members: make(map[uint64]bool)}
		p.byChannel[channel] = l
	}
	if l.members[id] {
		for i := range l.order {
			if l.order[i].ID == id {
				l.order[i].Priority = priority
				break
			}
		}
		resort(l.order)
		return
	}
	l.members[id] = true
	l.order = append(l.order, Subscriber{ID: id, Priority: priority})
	resort(l.order)
}

// Unsubscribe removes subscriberID from channel. It is a no-op if the
// id was not subscribed.
func (p *Passes) Unsubscribe(channel events.Channel, id uint64) {
	l, ok := p.byChannel[channel]
	if !ok || !l.members[id] {
		return
	}
	delete(l.members, id)
	for i, s := range l.order {
		if s.ID == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	if len(l.order) == 0 {
		delete(p.byChannel, channel)
	}
}

// UnsubscribeAll removes id from every channel it is subscribed to.
// Used when a component disconnects.
func (p *Passes) UnsubscribeAll(id uint64) {
	for channel, l := range p.byChannel {
		if l.members[id] {
			p.Unsubscribe(channel, id)
		}
	}
}

// Channels returns every channel with at least one subscriber.
func (p *Passes) Channels() []events.Channel {
	out := make([]events.Channel, 0, len(p.byChannel))
	for c := range p.byChannel {
		out = append(out, c)
	}
	return out
}

// Ordered returns channel's subscriber list in its current order, for
// inspection/testing. The returned slice is a copy.
func (p *Passes) Ordered(channel events.Channel) []Subscriber {
	l, ok := p.byChannel[channel]
	if !ok {
		return nil
	}
	out := make([]Subscriber, len(l.order))
	copy(out, l.order)
	return out
}

// Subscribers returns the subscribers matching any of channels, each
// appearing once, ordered by descending priority (stable merge across
// the channels' individually-sorted lists). A subscriber
// that matches more than one channel is recorded at the priority of
// the first channel (in the given order) it matched.
func (p *Passes) Subscribers(channels []events.Channel) []Subscriber {
	seen := make(map[uint64]bool)
	var collected []Subscriber
	for _, c := range channels {
		l, ok := p.byChannel[c]
		if !ok {
			continue
		}
		for _, s := range l.order {
			if seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			collected = append(collected, s)
		}
	}
	sort.SliceStable(collected, func(i, j int) bool {
		return higherPriority(collected[i].Priority, collected[j].Priority)
	})
	return collected
}

// resort re-sorts l in place: descending priority, ties preserve
// relative insertion order, absent priority sorts last.
func resort(order []Subscriber) {
	sort.SliceStable(order, func(i, j int) bool {
		return higherPriority(order[i].Priority, order[j].Priority)
	})
}

func higherPriority(a, b *int64) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return *a > *b
}
