package ioloop

import (
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ccanvas/ccanvas/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu       sync.Mutex
	packets  []string
	disconns []uint64
}

func (h *recordingHandler) OnPacket(connID uint64, body []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var req wire.Request
	_ = wire.Unmarshal(body, &req)
	h.packets = append(h.packets, string(req.Kind))
}

func (h *recordingHandler) OnDisconnect(connID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconns = append(h.disconns, connID)
}

func TestAcceptFramesAndDisconnects(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "master.sock")
	h := &recordingHandler{}
	loop, err := Listen(sockPath, h)
	require.NoError(t, err)
	go loop.Accept()
	defer loop.Close()

	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)

	require.NoError(t, wire.WriteFrame(conn, wire.Request{Kind: wire.KindDrop, RequestID: 1}))
	conn.Close()

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.packets) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "Drop", h.packets[0])

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.disconns) == 1
	}, time.Second, 5*time.Millisecond)
}
