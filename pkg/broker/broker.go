// Package broker ties together the connection registry, subscription
// and suppressor tables, the pool, the component focus tree, the
// process supervisor, and the outbound sender into the single running
// server each ccanvas master process becomes. It is the ioloop.Handler
// for both the master socket's ephemeral handshake connections and
// every adopted component server socket.
package broker

import (
	"fmt"
	"net"
	"sync"

	"github.com/ccanvas/ccanvas/pkg/component"
	"github.com/ccanvas/ccanvas/pkg/events"
	"github.com/ccanvas/ccanvas/pkg/ioloop"
	"github.com/ccanvas/ccanvas/pkg/log"
	"github.com/ccanvas/ccanvas/pkg/metrics"
	"github.com/ccanvas/ccanvas/pkg/paths"
	"github.com/ccanvas/ccanvas/pkg/pool"
	"github.com/ccanvas/ccanvas/pkg/processor"
	"github.com/ccanvas/ccanvas/pkg/registry"
	"github.com/ccanvas/ccanvas/pkg/sender"
	"github.com/ccanvas/ccanvas/pkg/subscribe"
	"github.com/ccanvas/ccanvas/pkg/supervise"
	"github.com/ccanvas/ccanvas/pkg/wire"
)

// Broker is the master process's server.
type Broker struct {
	Layout   *paths.Layout
	Registry *registry.Registry
	Passes   *subscribe.Passes
	Pool     *pool.Pool
	Dispatch *processor.Dispatcher
	Sender   *sender.Sender
	Spawner  *supervise.Supervisor
	Loop     *ioloop.Loop

	ids *ioloop.IDAllocator

	mu     sync.Mutex
	spaces map[uint64]*component.Space

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New wires a Broker whose master socket is bound at masterSockPath.
func New(layout *paths.Layout, masterSockPath string) (*Broker, error) {
	b := &Broker{
		Layout:   layout,
		Pool:     pool.New(),
		ids:      ioloop.NewIDAllocator(),
		spaces:   make(map[uint64]*component.Space),
		shutdown: make(chan struct{}),
	}

	b.Registry = registry.New(b.dial, b.listen)
	if err := b.Registry.Init(); err != nil {
		return nil, fmt.Errorf("broker: init registry: %w", err)
	}
	b.spaces[registry.RootID] = component.NewSpace(b.discriminatorOf(registry.RootID))

	b.Passes = subscribe.NewPasses()
	b.Sender = sender.New(b.Registry, dialOneShot, 256)
	b.Dispatch = processor.New(b.Registry, b.Passes, b.Sender, b.encodeEvent)
	b.Spawner = supervise.New(masterSockPath)

	loop, err := ioloop.Listen(masterSockPath, b)
	if err != nil {
		return nil, fmt.Errorf("broker: listen master socket: %w", err)
	}
	b.Loop = loop
	return b, nil
}

// Serve runs the master socket's accept loop until it is closed.
func (b *Broker) Serve() error {
	go b.Sender.Run()
	return b.Loop.Accept()
}

// Close shuts down every socket this broker owns.
func (b *Broker) Close() error {
	b.Sender.Stop()
	return b.Loop.Close()
}

// Done reports a channel that closes once a connection has sent a
// Terminate request asking the broker to shut down.
func (b *Broker) Done() <-chan struct{} {
	return b.shutdown
}

// SpawnRoot starts a top-level component as a child of the implicit
// root, as named by the command line's label/command groups.
func (b *Broker) SpawnRoot(label, command string, args []string) (uint64, error) {
	return b.spawnUnder(registry.RootID, label, command, args)
}

// DispatchInput delivers a terminal-origin event (a key press, mouse
// action, or screen resize read from the broker's own stdin) into the
// root scope, the same dispatch path any other event takes.
func (b *Broker) DispatchInput(e events.Event) {
	b.Dispatch.Dispatch(e, b.ancestorChain(registry.RootID))
}

// Shutdown broadcasts Terminate to every connection's client socket,
// signals every supervised process to terminate, and releases this
// broker's sockets and directory.
func (b *Broker) Shutdown() {
	b.broadcastTerminate()
	b.Spawner.ShutdownAll()
	b.Close()
	b.Layout.Cleanup()
}

// broadcastTerminate pushes an unsolicited Shutdown response to every
// connection but the root's own, so each component can exit cleanly
// before its process is signalled.
func (b *Broker) broadcastTerminate() {
	logger := log.WithComponent("broker")
	data, err := wire.Encode(wire.Response{Kind: wire.KindShutdown})
	if err != nil {
		logger.Error().Err(err).Msg("encode Shutdown failed")
		return
	}
	for _, id := range b.Registry.IDs() {
		if id == registry.RootID {
			continue
		}
		if err := b.Sender.SendOne(id, data); err != nil {
			logger.Debug().Uint64("id", id).Err(err).Msg("terminate broadcast failed, peer likely already gone")
		}
	}
}

// OnPacket implements ioloop.Handler. Ephemeral connection ids (see
// ioloop.IsEphemeral) have sent exactly one handshake packet; every
// other id names an already-registered connection sending a Request.
func (b *Broker) OnPacket(connID uint64, body []byte) {
	if ioloop.IsEphemeral(connID) {
		b.handleHandshake(connID, body)
		return
	}
	var req wire.Request
	if err := wire.Unmarshal(body, &req); err != nil {
		log.WithConn(connID).Warn().Err(err).Msg("malformed request, dropping")
		return
	}
	b.handleRequest(connID, req)
}

// OnDisconnect implements ioloop.Handler. A dropped ephemeral stream
// means only that a handshake attempt ended before completing; a
// dropped component connection cascades into a full teardown.
func (b *Broker) OnDisconnect(connID uint64) {
	if ioloop.IsEphemeral(connID) {
		return
	}
	b.dropComponent(connID)
}

func (b *Broker) dropComponent(id uint64) {
	metrics.ConnectionsTotal.Dec()
	descendants := b.Dispatch.Disconnect(id)
	b.mu.Lock()
	delete(b.spaces, id)
	for _, d := range descendants {
		delete(b.spaces, d)
	}
	b.mu.Unlock()
	for _, d := range descendants {
		b.Spawner.Signal(d)
	}
	b.Spawner.Signal(id)
	log.WithConn(id).Info().Int("descendants", len(descendants)).Msg("connection dropped")
}

func (b *Broker) encodeEvent(responseID uint64, e events.Event) []byte {
	logger := log.WithComponent("broker")
	payload, err := wire.Marshal(e)
	if err != nil {
		logger.Error().Err(err).Msg("marshal event payload failed")
		return nil
	}
	resp := wire.Response{
		Kind:       wire.KindEvent,
		ResponseID: responseID,
		Event:      &wire.EventBody{Serialized: payload},
	}
	data, err := wire.Encode(resp)
	if err != nil {
		logger.Error().Err(err).Msg("encode event envelope failed")
		return nil
	}
	return data
}

func (b *Broker) dial(path string) (registry.Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	return &connClient{conn: conn}, nil
}

func (b *Broker) listen(path string) (registry.Listener, error) {
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return netListener{l}, nil
}

func dialOneShot(path string) (net.Conn, error) {
	return net.Dial("unix", path)
}

// connClient adapts a net.Conn to registry.Client.
type connClient struct{ conn net.Conn }

func (c *connClient) Write(data []byte) error { _, err := c.conn.Write(data); return err }
func (c *connClient) Close() error             { return c.conn.Close() }

// netListener adapts a net.Listener to registry.Listener while
// remaining a net.Listener itself, so ioloop.AdoptServer can accept on
// the same value registry stored.
type netListener struct{ net.Listener }
