package broker

import (
	"github.com/ccanvas/ccanvas/pkg/discrim"
	"github.com/ccanvas/ccanvas/pkg/log"
	"github.com/ccanvas/ccanvas/pkg/metrics"
	"github.com/ccanvas/ccanvas/pkg/registry"
	"github.com/ccanvas/ccanvas/pkg/wire"
)

// handleHandshake processes a ReqConn arriving on an ephemeral,
// one-shot accepted stream: it resolves the requested parent, assigns
// the new connection's id, registers it (dialing the component's
// offered client socket and binding its own server socket), and
// replies ApprConn or RejConn on the same ephemeral stream.
func (b *Broker) handleHandshake(connID uint64, body []byte) {
	logger := log.WithConn(connID)

	var req wire.ReqConn
	if err := wire.Unmarshal(body, &req); err != nil {
		logger.Warn().Err(err).Msg("malformed handshake, dropping")
		return
	}

	parentID, err := parentFromDiscriminator(req.Parent)
	if err != nil {
		b.rejectHandshake(connID, req, wire.ReasonUnknownParent)
		return
	}
	if _, ok := b.Registry.Get(parentID); !ok {
		b.rejectHandshake(connID, req, wire.ReasonUnknownParent)
		return
	}

	id := b.ids.NextComponent()
	if _, err := b.Layout.ComponentDir(id); err != nil {
		logger.Error().Err(err).Msg("create component directory failed")
		b.rejectHandshake(connID, req, wire.ReasonUnknownParent)
		return
	}

	clientPath := ""
	if req.Socket != nil {
		clientPath = req.Socket.Path
	}
	serverPath := b.Layout.ServerSock(id)

	if err := b.Registry.Create(id, &parentID, "", clientPath, serverPath, req.Label); err != nil {
		logger.Warn().Err(err).Msg("registry create failed")
		b.rejectHandshake(connID, req, wire.ReasonDuplicateID)
		return
	}

	if conn, ok := b.Registry.Get(id); ok {
		if l, ok := conn.Server.(netListener); ok {
			b.Loop.AdoptServer(id, l.Listener)
		}
	}

	b.mu.Lock()
	b.spaces[id] = nil // processes hold no space until NewSpace names one
	b.mu.Unlock()

	b.approveHandshake(connID, req, serverPath)
	logger.Info().Uint64("new_id", id).Uint64("parent", parentID).Str("label", req.Label).Msg("connection established")
}

func (b *Broker) approveHandshake(ephemeralID uint64, req wire.ReqConn, serverPath string) {
	metrics.HandshakesTotal.WithLabelValues("approved").Inc()
	metrics.ConnectionsTotal.Inc()
	var echo uint64
	if req.Socket != nil {
		echo = req.Socket.Echo
	}
	data, err := wire.Encode(wire.ApprConn{Echo: echo, Path: serverPath})
	if err != nil {
		log.WithConn(ephemeralID).Error().Err(err).Msg("encode ApprConn failed")
		return
	}
	if err := b.Loop.Write(ephemeralID, data); err != nil {
		log.WithConn(ephemeralID).Debug().Err(err).Msg("write ApprConn failed, peer likely already moved on")
	}
}

func (b *Broker) rejectHandshake(ephemeralID uint64, req wire.ReqConn, reason wire.RejectReason) {
	label := "rejected_id"
	if reason == wire.ReasonUnknownParent {
		label = "rejected_parent"
	}
	metrics.HandshakesTotal.WithLabelValues(label).Inc()
	var echo uint64
	if req.Socket != nil {
		echo = req.Socket.Echo
	}
	data, err := wire.Encode(wire.RejConn{Echo: echo, Reason: reason})
	if err != nil {
		log.WithConn(ephemeralID).Error().Err(err).Msg("encode RejConn failed")
		return
	}
	_ = b.Loop.Write(ephemeralID, data)
}

// parentFromDiscriminator resolves a dotted discriminator string to
// the id it names: the discriminator is itself the chain of ids from
// root to the target, so the target's own id is simply its last
// element (root, on an empty path, names RootID).
func parentFromDiscriminator(s string) (uint64, error) {
	d, err := discrim.Parse(s)
	if err != nil {
		return 0, err
	}
	if len(d) == 0 {
		return registry.RootID, nil
	}
	return d[len(d)-1], nil
}

// discriminatorOf builds id's discriminator by walking its registry
// parent chain up to the root.
func (b *Broker) discriminatorOf(id uint64) discrim.Discriminator {
	var chain []uint64
	cur := id
	for {
		conn, ok := b.Registry.Get(cur)
		if !ok || cur == registry.RootID {
			break
		}
		chain = append([]uint64{cur}, chain...)
		if conn.Parent == cur {
			break
		}
		cur = conn.Parent
	}
	d := discrim.Root()
	for _, v := range chain {
		d = d.Child(v)
	}
	return d
}

// ancestorChain returns id and every ancestor up to and including the
// root, root-first, the order pkg/processor.Dispatcher.SuppressLevel
// expects.
func (b *Broker) ancestorChain(id uint64) []uint64 {
	var chain []uint64
	cur := id
	for {
		conn, ok := b.Registry.Get(cur)
		if !ok {
			break
		}
		chain = append([]uint64{cur}, chain...)
		if conn.Parent == cur {
			break
		}
		cur = conn.Parent
	}
	return chain
}
