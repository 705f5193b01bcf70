package broker

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/ccanvas/ccanvas/pkg/registry"
	"github.com/ccanvas/ccanvas/pkg/wire"
	"github.com/stretchr/testify/require"
)

// fakeClient records every write it receives, standing in for a
// component's dialed-back client socket in tests that never open a
// real one.
type fakeClient struct{ writes [][]byte }

func (c *fakeClient) Write(data []byte) error { c.writes = append(c.writes, data); return nil }
func (c *fakeClient) Close() error             { return nil }

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	layout, err := newTestLayout(t)
	require.NoError(t, err)
	b, err := New(layout, filepath.Join(layout.Root, "master.sock"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestNewBrokerInitializesRoot(t *testing.T) {
	b := newTestBroker(t)
	conn, ok := b.Registry.Get(registry.RootID)
	require.True(t, ok)
	require.Equal(t, registry.RootID, conn.Parent)

	b.mu.Lock()
	_, hasSpace := b.spaces[registry.RootID]
	b.mu.Unlock()
	require.True(t, hasSpace, "root must start with a focus space")
}

func TestSpawnRootTracksAndReapsProcess(t *testing.T) {
	b := newTestBroker(t)
	go b.Sender.Run() // stopped by newTestBroker's cleanup via b.Close

	id, err := b.SpawnRoot("noop", "true", nil)
	require.NoError(t, err)

	conn, ok := b.Registry.Get(id)
	require.True(t, ok)
	require.Equal(t, registry.RootID, conn.Parent)
	require.Equal(t, "noop", conn.Label)

	require.Eventually(t, func() bool { return b.Spawner.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBroadcastTerminateReachesEveryConnectionButRoot(t *testing.T) {
	b := newTestBroker(t)
	root := registry.RootID
	require.NoError(t, b.Registry.Create(1, &root, "", "", "", "child"))

	client := &fakeClient{}
	conn, ok := b.Registry.Get(1)
	require.True(t, ok)
	conn.Client = client

	b.broadcastTerminate()

	require.Len(t, client.writes, 1)
	var resp wire.Response
	require.NoError(t, wire.ReadFrame(bytes.NewReader(client.writes[0]), &resp))
	require.Equal(t, wire.KindShutdown, resp.Kind)
}

func TestParentFromDiscriminatorDefaultsToRoot(t *testing.T) {
	id, err := parentFromDiscriminator("")
	require.NoError(t, err)
	require.Equal(t, registry.RootID, id)
}

func TestParentFromDiscriminatorLastElementIsTarget(t *testing.T) {
	id, err := parentFromDiscriminator("0.3.7")
	require.NoError(t, err)
	require.Equal(t, uint64(7), id)
}

func TestDiscriminatorOfWalksRegistryChain(t *testing.T) {
	b := newTestBroker(t)
	parent := registry.RootID
	require.NoError(t, b.Registry.Create(1, &parent, "", "", "", "child"))

	d := b.discriminatorOf(1)
	require.Equal(t, "1", d.String())
}
