package supervise

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnTracksAndReapsProcess(t *testing.T) {
	s := New("/tmp/ccanvas-test.sock")
	ctx := context.Background()

	require.NoError(t, s.Spawn(ctx, Spec{ID: 1, Command: "true"}))
	require.Eventually(t, func() bool { return s.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSpawnInvalidCommandErrors(t *testing.T) {
	s := New("/tmp/ccanvas-test.sock")
	err := s.Spawn(context.Background(), Spec{ID: 1, Command: "/no/such/binary-xyz"})
	assert.Error(t, err)
}

func TestShutdownAllSignalsRunningProcesses(t *testing.T) {
	s := New("/tmp/ccanvas-test.sock")
	ctx := context.Background()
	require.NoError(t, s.Spawn(ctx, Spec{ID: 1, Command: "sleep", Args: []string{"5"}}))

	require.Eventually(t, func() bool { return s.Count() == 1 }, time.Second, 5*time.Millisecond)
	s.ShutdownAll()
	require.Eventually(t, func() bool { return s.Count() == 0 }, time.Second, 5*time.Millisecond)
}
