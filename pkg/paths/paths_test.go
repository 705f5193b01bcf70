package paths

import (
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentSockPaths(t *testing.T) {
	tmp := t.TempDir()
	l, err := NewLayout(tmp)
	require.NoError(t, err)

	expectedDir := tmp + "/" + strconv.Itoa(os.Getpid())
	assert.Equal(t, expectedDir, l.Root)
	assert.Equal(t, expectedDir+"/7/client.sock", l.ClientSock(7))
	assert.Equal(t, expectedDir+"/7/server.sock", l.ServerSock(7))
}

func TestComponentDirCreatesDirectory(t *testing.T) {
	tmp := t.TempDir()
	l, err := NewLayout(tmp)
	require.NoError(t, err)

	dir, err := l.ComponentDir(3)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCleanupRemovesProcessDir(t *testing.T) {
	tmp := t.TempDir()
	l, err := NewLayout(tmp)
	require.NoError(t, err)
	_, err = l.ComponentDir(1)
	require.NoError(t, err)

	require.NoError(t, l.Cleanup())
	_, err = os.Stat(l.Root)
	assert.True(t, os.IsNotExist(err))
}
