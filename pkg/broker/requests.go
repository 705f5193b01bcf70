package broker

import (
	"context"
	"os"

	"github.com/ccanvas/ccanvas/pkg/component"
	"github.com/ccanvas/ccanvas/pkg/discrim"
	"github.com/ccanvas/ccanvas/pkg/events"
	"github.com/ccanvas/ccanvas/pkg/log"
	"github.com/ccanvas/ccanvas/pkg/metrics"
	"github.com/ccanvas/ccanvas/pkg/pool"
	"github.com/ccanvas/ccanvas/pkg/subscribe"
	"github.com/ccanvas/ccanvas/pkg/supervise"
	"github.com/ccanvas/ccanvas/pkg/term"
	"github.com/ccanvas/ccanvas/pkg/wire"
	"github.com/prometheus/client_golang/prometheus"
)

// handleRequest dispatches a decoded Request from connID to the
// handler for its Kind, and writes back the matching Response, if the
// request kind expects one.
func (b *Broker) handleRequest(connID uint64, req wire.Request) {
	switch req.Kind {
	case wire.KindConfirmRecieve:
		if req.ConfirmRecieve != nil {
			b.Dispatch.Ack.Resolve(req.ConfirmRecieve.ID, req.ConfirmRecieve.Pass)
		}
		return // no reply: this request IS the reply to an earlier event
	case wire.KindDrop:
		b.dropComponent(connID)
		return
	case wire.KindTerminate:
		b.shutdownOnce.Do(func() { close(b.shutdown) })
		return

	case wire.KindSubscribe:
		b.reply(connID, req, b.doSubscribe(connID, req))
	case wire.KindUnsubscribe:
		b.reply(connID, req, b.doUnsubscribe(connID, req))
	case wire.KindSuppress:
		b.reply(connID, req, b.doSuppress(connID, req))
	case wire.KindUnsuppress:
		b.reply(connID, req, b.doUnsuppress(connID, req))
	case wire.KindMessage:
		b.reply(connID, req, b.doMessage(connID, req))
	case wire.KindSpawn:
		b.reply(connID, req, b.doSpawn(connID, req))
	case wire.KindNewSpace:
		b.reply(connID, req, b.doNewSpace(connID, req))
	case wire.KindFocusAt:
		b.reply(connID, req, b.doFocusAt(connID, req))
	case wire.KindGetState:
		b.reply(connID, req, b.doGetState(connID, req))
	case wire.KindGetEntry:
		b.reply(connID, req, b.doGetEntry(req))
	case wire.KindSetEntry:
		b.reply(connID, req, b.doSetEntry(connID, req))
	case wire.KindRemoveEntry:
		b.reply(connID, req, b.doRemoveEntry(connID, req))
	case wire.KindWatch:
		b.reply(connID, req, b.doWatch(connID, req))
	case wire.KindUnwatch:
		b.reply(connID, req, b.doUnwatch(connID, req))
	case wire.KindSetSocket:
		b.reply(connID, req, b.doSetSocket(connID, req))
	case wire.KindRender:
		b.reply(connID, req, b.doRender(req))
	default:
		log.WithConn(connID).Warn().Str("kind", string(req.Kind)).Msg("unhandled request kind")
	}
}

// reply writes resp back to connID's client socket, stamping the
// request id it answers.
func (b *Broker) reply(connID uint64, req wire.Request, resp wire.Response) {
	resp.RequestID = req.RequestID
	data, err := wire.Encode(resp)
	if err != nil {
		log.WithConn(connID).Error().Err(err).Msg("encode response failed")
		return
	}
	if err := b.Sender.SendOne(connID, data); err != nil {
		log.WithConn(connID).Debug().Err(err).Msg("reply write failed")
	}
}

func okResponse(sv any) wire.Response {
	return wire.Response{Kind: wire.KindSuccess, Success: &wire.SuccessBody{StateValue: sv}}
}

func errResponse(code wire.ErrorCode, msg string) wire.Response {
	return wire.Response{Kind: wire.KindError, Error: &wire.ErrorBody{Code: code, Message: msg}}
}

// targetOrSelf resolves req.Target, falling back to connID when empty.
func targetOrSelf(connID uint64, target string) (uint64, error) {
	if target == "" {
		return connID, nil
	}
	return parentFromDiscriminator(target)
}

func (b *Broker) doSubscribe(connID uint64, req wire.Request) wire.Response {
	if req.Subscribe == nil {
		return errResponse(wire.ErrComponentNotFound, "missing subscribe body")
	}
	channel := events.ParseChannel(req.Subscribe.Channel)
	b.Passes.Subscribe(channel, connID, req.Subscribe.Priority)
	metrics.SubscribersTotal.WithLabelValues(string(channel.Kind)).Set(float64(len(b.Passes.Ordered(channel))))
	return okResponse(nil)
}

func (b *Broker) doUnsubscribe(connID uint64, req wire.Request) wire.Response {
	if req.Unsubscribe == nil {
		return errResponse(wire.ErrComponentNotFound, "missing unsubscribe body")
	}
	channel := events.ParseChannel(req.Unsubscribe.Channel)
	b.Passes.Unsubscribe(channel, connID)
	metrics.SubscribersTotal.WithLabelValues(string(channel.Kind)).Set(float64(len(b.Passes.Ordered(channel))))
	return okResponse(nil)
}

func (b *Broker) suppressorsFor(scope uint64) *subscribe.Suppressors {
	s, ok := b.Dispatch.Suppressors[scope]
	if !ok {
		s = subscribe.NewSuppressors()
		b.Dispatch.Suppressors[scope] = s
	}
	return s
}

func (b *Broker) doSuppress(connID uint64, req wire.Request) wire.Response {
	if req.Suppress == nil {
		return errResponse(wire.ErrComponentNotFound, "missing suppress body")
	}
	scope, err := targetOrSelf(connID, req.Target)
	if err != nil {
		return errResponse(wire.ErrComponentNotFound, err.Error())
	}
	id := b.suppressorsFor(scope).Suppress(events.ParseChannel(req.Suppress.Channel), req.Suppress.Priority)
	return wire.Response{Kind: wire.KindSuccess, Success: &wire.SuccessBody{SuppressID: &id}}
}

func (b *Broker) doUnsuppress(connID uint64, req wire.Request) wire.Response {
	if req.Unsuppress == nil {
		return errResponse(wire.ErrComponentNotFound, "missing unsuppress body")
	}
	scope, err := targetOrSelf(connID, req.Target)
	if err != nil {
		return errResponse(wire.ErrComponentNotFound, err.Error())
	}
	b.suppressorsFor(scope).Unsuppress(events.ParseChannel(req.Unsuppress.Channel), req.Unsuppress.ID)
	return okResponse(nil)
}

func (b *Broker) doMessage(connID uint64, req wire.Request) wire.Response {
	if req.Message == nil {
		return errResponse(wire.ErrComponentNotFound, "missing message body")
	}
	senderConn, ok := b.Registry.Get(connID)
	sender := ""
	if ok {
		sender = senderConn.Label
	}
	target := connID
	if req.Target != "" {
		resolved, err := parentFromDiscriminator(req.Target)
		if err != nil {
			return errResponse(wire.ErrComponentNotFound, err.Error())
		}
		target = resolved
	}
	e := events.Event{
		Kind:    events.KindMessage,
		Message: &events.Message{Sender: sender, Tag: req.Message.Tag, Body: req.Message.Body},
	}
	timer := prometheus.NewTimer(metrics.DispatchLatency.WithLabelValues(string(e.Kind)))
	outcome := b.Dispatch.Dispatch(e, b.ancestorChain(target))
	timer.ObserveDuration()
	metrics.EventsSkippedTotal.WithLabelValues(string(e.Kind)).Add(float64(len(outcome.Skipped)))
	if !outcome.Captured {
		metrics.EventsUndeliveredTotal.WithLabelValues(string(e.Kind)).Inc()
		return wire.Response{Kind: wire.KindUndelivered}
	}
	metrics.EventsDispatchedTotal.WithLabelValues(string(e.Kind)).Inc()
	return okResponse(nil)
}

func (b *Broker) doSpawn(connID uint64, req wire.Request) wire.Response {
	if req.Spawn == nil {
		return errResponse(wire.ErrSpawnFailed, "missing spawn body")
	}
	id, err := b.spawnUnder(connID, req.Spawn.Label, req.Spawn.Command, req.Spawn.Args)
	if err != nil {
		return errResponse(wire.ErrSpawnFailed, err.Error())
	}
	if req.Spawn.AsSpace {
		b.mu.Lock()
		b.spaces[id] = component.NewSpace(b.discriminatorOf(id))
		b.mu.Unlock()
	}
	return okResponse(b.discriminatorOf(id).String())
}

// spawnUnder registers a new component under parentID, ahead of the
// child process actually connecting, and starts it under supervision.
func (b *Broker) spawnUnder(parentID uint64, label, command string, args []string) (uint64, error) {
	id := b.ids.NextComponent()
	if _, err := b.Layout.ComponentDir(id); err != nil {
		return 0, err
	}
	serverPath := b.Layout.ServerSock(id)
	if err := b.Registry.Create(id, &parentID, "", "", serverPath, label); err != nil {
		return 0, err
	}
	if conn, ok := b.Registry.Get(id); ok {
		if l, ok := conn.Server.(netListener); ok {
			b.Loop.AdoptServer(id, l.Listener)
		}
	}
	if err := b.Spawner.Spawn(context.Background(), supervise.Spec{ID: id, Label: label, Command: command, Args: args}); err != nil {
		b.Registry.Remove(id)
		return 0, err
	}
	metrics.SpawnedProcessesTotal.Inc()
	return id, nil
}

func (b *Broker) doNewSpace(connID uint64, req wire.Request) wire.Response {
	if req.NewSpace == nil {
		return errResponse(wire.ErrComponentNotFound, "missing new_space body")
	}
	id := b.ids.NextComponent()
	if err := b.Registry.Create(id, &connID, "", "", "", req.NewSpace.Label); err != nil {
		return errResponse(wire.ErrComponentNotFound, err.Error())
	}
	b.mu.Lock()
	b.spaces[id] = component.NewSpace(b.discriminatorOf(id))
	b.mu.Unlock()
	return okResponse(b.discriminatorOf(id).String())
}

func (b *Broker) doFocusAt(connID uint64, req wire.Request) wire.Response {
	if req.FocusAt == nil {
		return errResponse(wire.ErrComponentNotFound, "missing focus_at body")
	}
	target, err := discrim.Parse(req.FocusAt.Target)
	if err != nil {
		return errResponse(wire.ErrComponentNotFound, err.Error())
	}
	b.mu.Lock()
	sp, ok := b.spaces[connID]
	b.mu.Unlock()
	if !ok || sp == nil {
		return errResponse(wire.ErrComponentNotFound, "caller owns no space")
	}
	sp.FocusAt(target, &focusDelivery{b: b, spaceOwner: connID})
	return okResponse(nil)
}

// focusDelivery implements component.Delivery against the live broker.
type focusDelivery struct {
	b          *Broker
	spaceOwner uint64
}

func (d *focusDelivery) SendFocus(child uint64) {
	d.b.Dispatch.Dispatch(events.Event{Kind: events.KindFocus}, d.b.ancestorChain(child))
}

func (d *focusDelivery) SendUnfocus(child uint64) {
	d.b.Dispatch.Dispatch(events.Event{Kind: events.KindUnfocus}, d.b.ancestorChain(child))
}

func (d *focusDelivery) DeliverFocusAt(child uint64, target discrim.Discriminator) {
	d.b.mu.Lock()
	sp, ok := d.b.spaces[child]
	d.b.mu.Unlock()
	if !ok || sp == nil {
		return
	}
	sp.FocusAt(target, &focusDelivery{b: d.b, spaceOwner: child})
}

func (b *Broker) doGetState(connID uint64, req wire.Request) wire.Response {
	if req.GetState == nil {
		return errResponse(wire.ErrComponentNotFound, "missing get_state body")
	}
	switch req.GetState.Query {
	case wire.StateFocused:
		b.mu.Lock()
		sp, ok := b.spaces[connID]
		b.mu.Unlock()
		if !ok || sp == nil {
			return okResponse(b.discriminatorOf(connID).String())
		}
		if child, has := sp.Focus.Child(); has {
			return okResponse(b.discriminatorOf(child).String())
		}
		return okResponse(b.discriminatorOf(connID).String())
	case wire.StateIsFocused:
		parent, ok := b.Registry.Get(connID)
		if !ok {
			return okResponse(false)
		}
		b.mu.Lock()
		sp := b.spaces[parent.Parent]
		b.mu.Unlock()
		if sp == nil {
			return okResponse(true)
		}
		child, has := sp.Focus.Child()
		return okResponse(has && child == connID)
	case wire.StateTerminalSize:
		size, err := term.GetSize()
		if err != nil {
			return errResponse(wire.ErrComponentNotFound, err.Error())
		}
		return okResponse(size)
	case wire.StateWorkingDir:
		wd, err := os.Getwd()
		if err != nil {
			return errResponse(wire.ErrComponentNotFound, err.Error())
		}
		return okResponse(wd)
	default:
		return errResponse(wire.ErrComponentNotFound, "unknown state query")
	}
}

func (b *Broker) doGetEntry(req wire.Request) wire.Response {
	if req.GetEntry == nil {
		return errResponse(wire.ErrEntryNotFound, "missing get_entry body")
	}
	val, ok := b.Pool.Get(req.GetEntry.Label)
	if !ok {
		return errResponse(wire.ErrEntryNotFound, "no such entry")
	}
	return wire.Response{Kind: wire.KindSuccess, Success: &wire.SuccessBody{EntryValue: []byte(val)}}
}

func (b *Broker) doSetEntry(connID uint64, req wire.Request) wire.Response {
	if req.SetEntry == nil {
		return errResponse(wire.ErrEntryNotFound, "missing set_entry body")
	}
	b.Pool.Set(req.SetEntry.Label, pool.Value(req.SetEntry.Value), connID)
	metrics.PoolItemsTotal.Set(float64(len(b.Pool.Labels())))
	return okResponse(nil)
}

func (b *Broker) doRemoveEntry(connID uint64, req wire.Request) wire.Response {
	if req.RemoveEntry == nil {
		return errResponse(wire.ErrEntryNotFound, "missing remove_entry body")
	}
	b.Pool.Remove(req.RemoveEntry.Label, connID)
	metrics.PoolItemsTotal.Set(float64(len(b.Pool.Labels())))
	return okResponse(nil)
}

// poolWatcher forwards pool notifications to a connection's client
// socket as KindEvent responses wrapping a pool.Notification payload.
type poolWatcher struct {
	b  *Broker
	id uint64
}

func (w *poolWatcher) Notify(n pool.Notification) bool {
	payload, err := wire.Marshal(n)
	if err != nil {
		return false
	}
	data, err := wire.Encode(wire.Response{Kind: wire.KindEvent, Event: &wire.EventBody{Serialized: payload}})
	if err != nil {
		return false
	}
	return w.b.Sender.SendOne(w.id, data) == nil
}

func (b *Broker) doWatch(connID uint64, req wire.Request) wire.Response {
	if req.Watch == nil {
		return errResponse(wire.ErrEntryNotFound, "missing watch body")
	}
	b.Pool.Watch(req.Watch.Label, connID, &poolWatcher{b: b, id: connID})
	return okResponse(nil)
}

func (b *Broker) doUnwatch(connID uint64, req wire.Request) wire.Response {
	if req.Unwatch == nil {
		return errResponse(wire.ErrEntryNotFound, "missing unwatch body")
	}
	b.Pool.Unwatch(req.Unwatch.Label, connID, connID)
	return okResponse(nil)
}

func (b *Broker) doSetSocket(connID uint64, req wire.Request) wire.Response {
	if req.SetSocket == nil {
		return errResponse(wire.ErrComponentNotFound, "missing set_socket body")
	}
	client, err := b.dial(req.SetSocket.Path)
	if err != nil {
		return errResponse(wire.ErrComponentNotFound, err.Error())
	}
	conn, ok := b.Registry.Get(connID)
	if !ok {
		client.Close()
		return errResponse(wire.ErrComponentNotFound, "unknown connection")
	}
	conn.Client = client
	return wire.Response{Kind: wire.KindSetSocketOK, SetSocket: &wire.SetSocketBody{Path: req.SetSocket.Path}}
}

// doRender writes a rendered frame to the hosting terminal. Only the
// process currently holding terminal focus is expected to call this;
// the broker does not itself arbitrate that beyond writing whatever it
// receives, since enforcing it costs a focus check per frame on a path
// that must stay cheap.
func (b *Broker) doRender(req wire.Request) wire.Response {
	if req.Render == nil {
		return errResponse(wire.ErrComponentNotFound, "missing render body")
	}
	if _, err := os.Stdout.Write(req.Render.Frame); err != nil {
		return errResponse(wire.ErrComponentNotFound, err.Error())
	}
	return okResponse(nil)
}
