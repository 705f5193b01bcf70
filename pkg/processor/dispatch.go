// Package processor implements the broker's single authority over the
// component tree, subscriptions, suppressors, pool, and focus: the
// dispatch pipeline that consumes decoded packets and internal events
// and executes routing, subscription matching, suppression filtering,
// and capture logic. Only this package's Dispatcher goroutine mutates
// pkg/registry, pkg/subscribe, or the per-component pkg/pool tables it
// owns; everything else reaches them through Dispatcher's channel.
package processor

import (
	"github.com/ccanvas/ccanvas/pkg/events"
	"github.com/ccanvas/ccanvas/pkg/log"
	"github.com/ccanvas/ccanvas/pkg/registry"
	"github.com/ccanvas/ccanvas/pkg/subscribe"
)

// Sender is the one-shot or per-target outbound write path (pkg/sender).
// Dispatch hands it wire-encoded bytes; Sender clears the registry
// client handle on a failed write and does not retry.
type Sender interface {
	SendOne(id uint64, data []byte) error
}

// EventOutcome is one event's dispatch result, returned once every
// matching subscriber in priority order has been offered the event (or
// one of them captured it).
type EventOutcome struct {
	Delivered  []uint64 // subscribers the event was offered to, including ones whose write failed
	Skipped    []uint64 // subscribers filtered out by suppression
	Captured   bool
	CapturedBy uint64
}

// Dispatcher is the broker's single mutator of shared dispatch state.
type Dispatcher struct {
	Registry    *registry.Registry
	Passes      *subscribe.Passes
	Suppressors map[uint64]*subscribe.Suppressors // keyed by owning component id
	Ack         *AckTable
	Sender      Sender

	// Encode turns (responseID, event) into the wire bytes written to a
	// subscriber's client socket. responseID is allocated by Ack.New and
	// is the id the subscriber's ConfirmRecieve must echo back. Injected so this
	// package stays independent of pkg/wire's concrete envelope shape.
	Encode func(responseID uint64, e events.Event) []byte
}

// New builds a Dispatcher around an already-initialized registry.
func New(reg *registry.Registry, passes *subscribe.Passes, sender Sender, encode func(uint64, events.Event) []byte) *Dispatcher {
	return &Dispatcher{
		Registry:    reg,
		Passes:      passes,
		Suppressors: make(map[uint64]*subscribe.Suppressors),
		Ack:         NewAckTable(),
		Sender:      sender,
		Encode:      encode,
	}
}

// SuppressLevel computes the effective suppress level over the given
// channels across every scope in chain (root to the dispatch origin),
// combining with CombineLevels: the lowest level among the scopes
// applies.
func (d *Dispatcher) SuppressLevel(chain []uint64, channels []events.Channel) *int64 {
	var levels []*int64
	for _, scope := range chain {
		sup, ok := d.Suppressors[scope]
		if !ok {
			continue
		}
		if lvl, has := sup.Level(channels); has {
			v := lvl
			levels = append(levels, &v)
		}
	}
	return subscribe.CombineLevels(levels...)
}

// Dispatch offers e, in priority order, to every subscriber matching
// its channels, skipping any the suppress level filters out. The level
// is computed once, before the first subscriber is offered the event,
// and is not recomputed if a suppressor changes mid-iteration. It stops
// at the first subscriber whose ConfirmRecieve resolves pass == false
// (capture), and reports exactly what happened for callers that need
// to know (e.g. to surface Undelivered on a direct-target request).
func (d *Dispatcher) Dispatch(e events.Event, chain []uint64) EventOutcome {
	channels := e.Channels()
	subs := d.Passes.Subscribers(channels)
	level, hasLevel := d.suppressLevelOk(chain, channels)

	var out EventOutcome
	for _, s := range subs {
		if subscribe.ShouldSkip(s.Priority, level, hasLevel) {
			out.Skipped = append(out.Skipped, s.ID)
			continue
		}
		if !d.offer(s.ID, e) {
			out.Delivered = append(out.Delivered, s.ID)
			out.Captured = true
			out.CapturedBy = s.ID
			return out
		}
		out.Delivered = append(out.Delivered, s.ID)
	}
	return out
}

func (d *Dispatcher) suppressLevelOk(chain []uint64, channels []events.Channel) (int64, bool) {
	lvl := d.SuppressLevel(chain, channels)
	if lvl == nil {
		return 0, false
	}
	return *lvl, true
}

// offer writes e to subscriberID's client socket under a fresh
// acknowledgement id and waits for its capture decision. A write
// failure resolves as non-capturing so dispatch continues to the next
// subscriber.
func (d *Dispatcher) offer(subscriberID uint64, e events.Event) bool {
	responseID, wait := d.Ack.New()
	data := d.Encode(responseID, e)
	if err := d.Sender.SendOne(subscriberID, data); err != nil {
		log.WithComponent("processor").Warn().Uint64("subscriber", subscriberID).Msg("write failed, treating as non-capturing")
		d.Ack.Cancel(responseID)
	}
	return Pending(wait).Resolve()
}

// Disconnect tears down id's connection: removes it from the registry,
// purges its subscriptions from Passes, and drops its suppressor
// table. Returns the removed connection's descendants in post-order so
// the caller can cascade the same teardown into them.
func (d *Dispatcher) Disconnect(id uint64) []uint64 {
	desc := d.Registry.Descendants(id)
	conn, ok := d.Registry.Remove(id)
	if !ok {
		return nil
	}
	d.Passes.UnsubscribeAll(id)
	delete(d.Suppressors, id)
	_ = conn
	return desc
}
