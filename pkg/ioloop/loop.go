// Package ioloop implements the broker's connection I/O layer: it
// accepts streams on the master socket and on each component's server
// socket, frames inbound bytes into packets, and publishes them to the
// Processor. Unlike the non-blocking poll-and-token reactor this
// replaces, each accepted stream gets its own goroutine; ids are
// partitioned instead of poll tokens (see IDAllocator) so the dispatch
// side still sees one flat id space.
package ioloop

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/ccanvas/ccanvas/pkg/log"
	"github.com/ccanvas/ccanvas/pkg/wire"
)

func errNoSuchConn(id uint64) error {
	return fmt.Errorf("ioloop: no tracked connection for id %d", id)
}

// Handler receives decoded frames and disconnect notifications from
// every accepted stream. Implementations (pkg/broker) must not
// block for long inside OnPacket: the calling goroutine reads nothing
// further from that connection until it returns.
type Handler interface {
	OnPacket(connID uint64, body []byte)
	OnDisconnect(connID uint64)
}

// Loop owns the master listener and every accepted stream's reader
// goroutine.
type Loop struct {
	listener net.Listener
	handler  Handler
	ids      *IDAllocator

	mu    sync.Mutex
	conns map[uint64]net.Conn
}

// Listen binds the master socket at path.
func Listen(path string, handler Handler) (*Loop, error) {
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &Loop{listener: l, handler: handler, ids: NewIDAllocator(), conns: make(map[uint64]net.Conn)}, nil
}

// Accept runs the accept loop until the listener is closed. Each
// accepted connection gets its own reader goroutine.
func (l *Loop) Accept() error {
	logger := log.WithComponent("ioloop")
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		id := l.ids.NextEphemeral()
		l.mu.Lock()
		l.conns[id] = conn
		l.mu.Unlock()
		go l.serve(id, conn)
	}
}

// AdoptServer registers an already-listening component server socket
// (opened by pkg/registry on Create) so its connections are served the
// same way as master-socket accepts, under a fixed component id rather
// than a freshly allocated ephemeral one.
func (l *Loop) AdoptServer(componentID uint64, serverListener net.Listener) {
	go func() {
		for {
			conn, err := serverListener.Accept()
			if err != nil {
				return
			}
			l.mu.Lock()
			l.conns[componentID] = conn
			l.mu.Unlock()
			go l.serve(componentID, conn)
		}
	}()
}

// Write sends data on id's accepted stream, if one is still tracked.
// Used to reply on a handshake's ephemeral stream and to the master
// socket's own accepted connections generally.
func (l *Loop) Write(id uint64, data []byte) error {
	l.mu.Lock()
	conn, ok := l.conns[id]
	l.mu.Unlock()
	if !ok {
		return errNoSuchConn(id)
	}
	_, err := conn.Write(data)
	return err
}

// Close shuts down the master listener and every tracked stream.
func (l *Loop) Close() error {
	l.mu.Lock()
	for _, c := range l.conns {
		c.Close()
	}
	l.mu.Unlock()
	return l.listener.Close()
}

func (l *Loop) serve(id uint64, conn net.Conn) {
	logger := log.WithConn(id)
	defer func() {
		l.mu.Lock()
		delete(l.conns, id)
		l.mu.Unlock()
		conn.Close()
		l.handler.OnDisconnect(id)
	}()

	var dec wire.Decoder
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				body, ok, decErr := dec.Next()
				if decErr != nil {
					logger.Warn().Err(decErr).Msg("malformed frame, dropping connection")
					return
				}
				if !ok {
					break
				}
				l.handler.OnPacket(id, body)
			}
		}
		if err != nil {
			if err != io.EOF {
				logger.Debug().Err(err).Msg("read ended")
			}
			return
		}
	}
}
