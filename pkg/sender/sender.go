// Package sender owns every outbound write the broker makes: to a
// connection's client socket, to several at once, or to a one-shot
// path-addressed stream. It runs as its own goroutine, draining a
// work queue, so the Processor never blocks on a slow or wedged peer.
package sender

import (
	"net"

	"github.com/ccanvas/ccanvas/pkg/log"
	"github.com/ccanvas/ccanvas/pkg/registry"
)

// Target selects where a Work item's bytes go.
type Target struct {
	one     *uint64
	many    []uint64
	path    string
}

// One targets a single connection's client handle.
func One(id uint64) Target { return Target{one: &id} }

// Multiple targets several connections' client handles.
func Multiple(ids []uint64) Target { return Target{many: ids} }

// PathStr targets a one-shot stream to path: dial, write once, close.
// Handshake rejections do not go through it: pkg/broker writes RejConn
// back on the handshake's own stream.
func PathStr(path string) Target { return Target{path: path} }

// Work is one queued outbound write.
type Work struct {
	Target Target
	Data   []byte
}

// Dialer opens a one-shot outbound stream to a filesystem path.
type Dialer func(path string) (net.Conn, error)

// Sender drains a work queue of outbound writes.
type Sender struct {
	queue    chan Work
	registry *registry.Registry
	dial     Dialer
	done     chan struct{}
}

// New builds a Sender bound to reg for One/Multiple targets and dial
// for PathStr targets. Call Run in its own goroutine to start draining.
func New(reg *registry.Registry, dial Dialer, queueSize int) *Sender {
	return &Sender{
		queue:    make(chan Work, queueSize),
		registry: reg,
		dial:     dial,
		done:     make(chan struct{}),
	}
}

// Enqueue queues w for delivery. Safe to call from any goroutine.
func (s *Sender) Enqueue(w Work) {
	select {
	case s.queue <- w:
	case <-s.done:
	}
}

// SendOne is a synchronous convenience wrapper used by pkg/processor's
// Dispatcher, which needs the ack-sink timing to line up with the
// write itself rather than a queued, eventually-consistent send.
func (s *Sender) SendOne(id uint64, data []byte) error {
	return s.registry.Write(id, data)
}

// Run drains the queue until Stop is called.
func (s *Sender) Run() {
	for {
		select {
		case w := <-s.queue:
			s.deliver(w)
		case <-s.done:
			return
		}
	}
}

// Stop ends Run and makes further Enqueue calls no-ops.
func (s *Sender) Stop() { close(s.done) }

func (s *Sender) deliver(w Work) {
	logger := log.WithComponent("sender")
	switch {
	case w.Target.one != nil:
		if err := s.registry.Write(*w.Target.one, w.Data); err != nil {
			logger.Warn().Uint64("target", *w.Target.one).Err(err).Msg("write failed, client handle cleared")
		}
	case w.Target.many != nil:
		for _, id := range w.Target.many {
			if err := s.registry.Write(id, w.Data); err != nil {
				logger.Warn().Uint64("target", id).Err(err).Msg("write failed, client handle cleared")
			}
		}
	case w.Target.path != "":
		conn, err := s.dial(w.Target.path)
		if err != nil {
			logger.Warn().Str("path", w.Target.path).Err(err).Msg("one-shot dial failed")
			return
		}
		if _, err := conn.Write(w.Data); err != nil {
			logger.Warn().Str("path", w.Target.path).Err(err).Msg("one-shot write failed")
		}
		conn.Close()
	}
}
