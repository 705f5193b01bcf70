package ioloop

import "math"

// IDAllocator partitions the broker's id space in two directions so
// the two kinds of accepted stream can never collide: server-socket
// derived component ids count up from 1, and ephemeral streams
// accepted on the master socket (each carrying one handshake and its
// approval or rejection) count down from math.MaxUint64.
type IDAllocator struct {
	nextComponent uint64
	nextEphemeral uint64
}

// NewIDAllocator builds an allocator with component ids starting at 1
// (0 is reserved for the master) and ephemeral ids starting at MaxUint64.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{nextComponent: 1, nextEphemeral: math.MaxUint64}
}

// NextComponent returns the next ascending component id.
func (a *IDAllocator) NextComponent() uint64 {
	id := a.nextComponent
	a.nextComponent++
	return id
}

// NextEphemeral returns the next descending one-shot stream id.
func (a *IDAllocator) NextEphemeral() uint64 {
	id := a.nextEphemeral
	a.nextEphemeral--
	return id
}

// IsEphemeral reports whether id was handed out by NextEphemeral rather
// than NextComponent: by construction, every ephemeral id exceeds every
// component id the allocator could ever reach before exhaustion.
func IsEphemeral(id uint64) bool {
	return id > math.MaxUint32
}
