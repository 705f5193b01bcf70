// Package registry implements the broker's id-keyed connection table:
// the rooted component tree, the label<->id bijection, and each
// connection's outbound client handle and inbound server listener. It
// is owned exclusively by the Processor goroutine (pkg/processor);
// nothing else may mutate it.
package registry

import (
	"errors"
	"fmt"
	"io"
)

// Sentinel errors returned by Create. Wrap with fmt.Errorf("%w: ...")
// where extra context is useful; callers compare with errors.Is.
var (
	ErrDuplicateID  = errors.New("duplicate id")
	ErrUnknownParent = errors.New("unknown parent")
	ErrSocketError  = errors.New("socket error")
)

// RootID is the always-present master connection's id.
const RootID uint64 = 0

// Client is a component's outbound event stream: the socket the broker
// writes events and delivered requests to. Implementations typically
// wrap a net.Conn (see pkg/broker's connClient).
type Client interface {
	Write(data []byte) error
	Close() error
}

// Listener is a component's inbound request-accepting socket. Registry
// only tracks its lifetime; accepting connections on it is pkg/ioloop's
// job.
type Listener interface {
	io.Closer
}

// Dialer connects to a component-supplied client path, producing a
// Client, or an error if the component isn't listening yet.
type Dialer func(path string) (Client, error)

// ListenFunc binds a component's server path, producing a Listener.
type ListenFunc func(path string) (Listener, error)

// Connection is one node of the component tree.
type Connection struct {
	ID       uint64
	Parent   uint64 // equals ID for the root
	Children map[uint64]bool
	Label    string

	Client Client   // nil when unreachable or never connected
	Server Listener // nil when this connection accepts no requests

	// Subscriptions is a set of channel strings, created empty by
	// Create. Nothing in this module fills it: on disconnect,
	// pkg/subscribe.Passes.UnsubscribeAll scans every channel instead.
	Subscriptions map[string]bool
}

// Registry is the broker-wide connection table.
type Registry struct {
	conns  map[uint64]*Connection
	labels map[string]uint64
	dial   Dialer
	listen ListenFunc
}

// New builds a Registry with the given dial/listen strategies. Pass nil
// for either to disable client connects or server binds respectively
// (useful in tests that never populate client_path/server_path).
func New(dial Dialer, listen ListenFunc) *Registry {
	return &Registry{
		conns:  make(map[uint64]*Connection),
		labels: make(map[string]uint64),
		dial:   dial,
		listen: listen,
	}
}

// Init creates the always-present root connection at id 0, self-parented.
func (r *Registry) Init() error {
	return r.Create(RootID, nil, "", "", "", "")
}

// Create inserts a new connection. parentID, when non-nil, names the
// parent by id; otherwise parentLabel names it by label, with the
// root-creation rule that a parentLabel equal to this connection's own
// label self-parents (used exactly once, to create the root). clientPath
// and serverPath are optional; an empty string skips that socket.
//
// A clientPath connect failure is not fatal: the connection is created
// with Client == nil and any later Write to it is dropped. A serverPath
// bind failure is fatal to the call and returns ErrSocketError.
func (r *Registry) Create(id uint64, parentID *uint64, parentLabel, clientPath, serverPath, label string) error {
	if _, exists := r.conns[id]; exists {
		return ErrDuplicateID
	}

	var parent uint64
	switch {
	case parentID != nil:
		if _, ok := r.conns[*parentID]; !ok {
			return ErrUnknownParent
		}
		parent = *parentID
	case parentLabel == label:
		parent = id
	default:
		pid, ok := r.labels[parentLabel]
		if !ok {
			return ErrUnknownParent
		}
		parent = pid
	}

	var client Client
	if clientPath != "" && r.dial != nil {
		if c, err := r.dial(clientPath); err == nil {
			client = c
		}
	}

	var server Listener
	if serverPath != "" && r.listen != nil {
		l, err := r.listen(serverPath)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSocketError, err)
		}
		server = l
	}

	conn := &Connection{
		ID:            id,
		Parent:        parent,
		Children:      make(map[uint64]bool),
		Label:         label,
		Client:        client,
		Server:        server,
		Subscriptions: make(map[string]bool),
	}
	r.conns[id] = conn

	if parent != id {
		if p, ok := r.conns[parent]; ok {
			p.Children[id] = true
		}
	}
	if label != "" {
		r.labels[label] = id
	}
	return nil
}

// Get returns the connection for id, if it exists.
func (r *Registry) Get(id uint64) (*Connection, bool) {
	c, ok := r.conns[id]
	return c, ok
}

// IDs returns a snapshot of every connection id currently registered.
func (r *Registry) IDs() []uint64 {
	out := make([]uint64, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// Resolve returns the id bound to label.
func (r *Registry) Resolve(label string) (uint64, bool) {
	id, ok := r.labels[label]
	return id, ok
}

// Remove deletes id from the tree: drops it from its parent's children,
// removes its label binding, and closes its sockets. It returns the
// removed connection (so the caller can purge its Subscriptions from
// pkg/subscribe.Passes) and whether id existed.
func (r *Registry) Remove(id uint64) (*Connection, bool) {
	conn, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	if conn.Parent != id {
		if p, ok := r.conns[conn.Parent]; ok {
			delete(p.Children, id)
		}
	}
	if conn.Label != "" {
		delete(r.labels, conn.Label)
	}
	if conn.Client != nil {
		conn.Client.Close()
	}
	if conn.Server != nil {
		conn.Server.Close()
	}
	delete(r.conns, id)
	return conn, true
}

// Descendants returns every id in id's subtree (id excluded) in
// post-order: each child's own subtree fully listed before the child
// itself, so callers that tear connections down in this order always
// remove leaves before their parents.
func (r *Registry) Descendants(id uint64) []uint64 {
	conn, ok := r.conns[id]
	if !ok {
		return nil
	}
	var out []uint64
	for child := range conn.Children {
		out = append(out, r.Descendants(child)...)
		out = append(out, child)
	}
	return out
}

// Write attempts to send data to id's client socket. On any I/O
// failure the client handle is cleared: id becomes send-unreachable
// but keeps receiving requests via its server socket until disconnect.
func (r *Registry) Write(id uint64, data []byte) error {
	conn, ok := r.conns[id]
	if !ok || conn.Client == nil {
		return errors.New("no client for id")
	}
	if err := conn.Client.Write(data); err != nil {
		conn.Client = nil
		return err
	}
	return nil
}
