package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCreatesSelfParentedRoot(t *testing.T) {
	r := New(nil, nil)
	require.NoError(t, r.Init())

	root, ok := r.Get(RootID)
	require.True(t, ok)
	assert.Equal(t, RootID, root.Parent)
	assert.Empty(t, root.Children)
}

func TestCreateDuplicateID_S1(t *testing.T) {
	r := New(nil, nil)
	require.NoError(t, r.Init())

	err := r.Create(RootID, nil, "", "", "", "")
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestCreateUnknownParent(t *testing.T) {
	r := New(nil, nil)
	require.NoError(t, r.Init())

	bogus := uint64(999)
	err := r.Create(1, &bogus, "", "", "", "child")
	assert.ErrorIs(t, err, ErrUnknownParent)

	err = r.Create(2, nil, "no-such-label", "", "", "child2")
	assert.ErrorIs(t, err, ErrUnknownParent)
}

func TestParentChildConsistency(t *testing.T) {
	r := New(nil, nil)
	require.NoError(t, r.Init())
	root := RootID
	require.NoError(t, r.Create(1, &root, "", "", "", "a"))
	require.NoError(t, r.Create(2, &root, "", "", "", "b"))

	rootConn, _ := r.Get(RootID)
	assert.True(t, rootConn.Children[1])
	assert.True(t, rootConn.Children[2])

	child, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, RootID, child.Parent)
}

func TestLabelBijection(t *testing.T) {
	r := New(nil, nil)
	require.NoError(t, r.Init())
	root := RootID
	require.NoError(t, r.Create(1, &root, "", "", "", "editor"))

	id, ok := r.Resolve("editor")
	require.True(t, ok)
	assert.Equal(t, uint64(1), id)

	r.Remove(1)
	_, ok = r.Resolve("editor")
	assert.False(t, ok, "removing a connection must drop its label binding")
}

func TestDescendantsPostOrder(t *testing.T) {
	r := New(nil, nil)
	require.NoError(t, r.Init())
	root := RootID
	require.NoError(t, r.Create(1, &root, "", "", "", "a"))
	one := uint64(1)
	require.NoError(t, r.Create(2, &one, "", "", "", "b"))

	desc := r.Descendants(RootID)
	require.Equal(t, []uint64{2, 1}, desc, "child's own subtree must be listed before the child itself")
}

func TestRemoveUpdatesParentChildren(t *testing.T) {
	r := New(nil, nil)
	require.NoError(t, r.Init())
	root := RootID
	require.NoError(t, r.Create(1, &root, "", "", "", "a"))

	_, ok := r.Remove(1)
	require.True(t, ok)

	rootConn, _ := r.Get(RootID)
	assert.False(t, rootConn.Children[1])
	_, ok = r.Get(1)
	assert.False(t, ok)
}

type fakeClient struct {
	writeErr error
	wrote    [][]byte
}

func (c *fakeClient) Write(data []byte) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	c.wrote = append(c.wrote, data)
	return nil
}
func (c *fakeClient) Close() error { return nil }

func TestClientConnectFailureIsNotFatal(t *testing.T) {
	dial := func(path string) (Client, error) { return nil, errors.New("refused") }
	r := New(dial, nil)
	require.NoError(t, r.Init())
	root := RootID
	err := r.Create(1, &root, "", "/tmp/does-not-exist.sock", "", "a")
	require.NoError(t, err, "a client dial failure must not fail Create")

	conn, _ := r.Get(1)
	assert.Nil(t, conn.Client)
}

func TestWriteClearsClientOnFailure(t *testing.T) {
	fc := &fakeClient{writeErr: errors.New("broken pipe")}
	dial := func(path string) (Client, error) { return fc, nil }
	r := New(dial, nil)
	require.NoError(t, r.Init())
	root := RootID
	require.NoError(t, r.Create(1, &root, "", "/tmp/x.sock", "", "a"))

	err := r.Write(1, []byte("hi"))
	assert.Error(t, err)

	conn, _ := r.Get(1)
	assert.Nil(t, conn.Client, "a write failure must clear the client handle")
}
