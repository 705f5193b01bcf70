package component

import (
	"testing"

	"github.com/ccanvas/ccanvas/pkg/discrim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDelivery struct {
	focused   []uint64
	unfocused []uint64
	delivered []uint64
}

func (r *recordingDelivery) SendFocus(child uint64)   { r.focused = append(r.focused, child) }
func (r *recordingDelivery) SendUnfocus(child uint64) { r.unfocused = append(r.unfocused, child) }
func (r *recordingDelivery) DeliverFocusAt(child uint64, target discrim.Discriminator) {
	r.delivered = append(r.delivered, child)
}

func TestFocusSwitchBetweenChildren_S4(t *testing.T) {
	m := discrim.Root()
	c1, c2 := m.Child(1), m.Child(2)

	space := NewSpace(m)
	space.Focus = OnChild(1)

	d := &recordingDelivery{}
	newFocused := space.FocusAt(c2, d)

	assert.Equal(t, []uint64{1}, d.unfocused, "old focus c1 must receive Unfocus")
	assert.Equal(t, []uint64{2}, d.delivered, "FocusAt must be delivered to c2")
	assert.Equal(t, []uint64{2}, d.focused, "Focus must be sent to c2 after delivery")
	assert.True(t, newFocused.Equal(c2))

	child, ok := space.Focus.Child()
	require.True(t, ok)
	assert.Equal(t, uint64(2), child)
}

func TestFocusAtSelfFromChild(t *testing.T) {
	m := discrim.Root()
	c1 := m.Child(1)
	space := NewSpace(m)
	space.Focus = OnChild(1)

	d := &recordingDelivery{}
	newFocused := space.FocusAt(m, d)

	assert.Equal(t, []uint64{1}, d.unfocused)
	assert.True(t, newFocused.Equal(m))
	assert.True(t, space.Focus.IsThis())
	_ = c1
}

func TestFocusAtFromThis(t *testing.T) {
	m := discrim.Root()
	c1 := m.Child(1)
	space := NewSpace(m)

	d := &recordingDelivery{}
	newFocused := space.FocusAt(c1, d)

	assert.Empty(t, d.unfocused, "no prior child focus, no Unfocus sent")
	assert.Equal(t, []uint64{1}, d.delivered)
	assert.Equal(t, []uint64{1}, d.focused)
	assert.True(t, newFocused.Equal(c1))
}

func TestFocusForwardsUnchangedWhenAlreadyOnPath(t *testing.T) {
	m := discrim.Root()
	c1 := m.Child(1)
	grandchild := c1.Child(9)

	space := NewSpace(m)
	space.Focus = OnChild(1)

	d := &recordingDelivery{}
	space.FocusAt(grandchild, d)

	assert.Empty(t, d.unfocused, "forwarding through the already-focused child sends no Focus/Unfocus traffic")
	assert.Empty(t, d.focused)
	assert.Equal(t, []uint64{1}, d.delivered)
}

func TestChildDroppedRevertsFocusToThis(t *testing.T) {
	space := NewSpace(discrim.Root())
	space.Focus = OnChild(5)

	space.ChildDropped(5)
	assert.True(t, space.Focus.IsThis())
}

func TestChildDroppedIgnoresUnrelatedChild(t *testing.T) {
	space := NewSpace(discrim.Root())
	space.Focus = OnChild(5)

	space.ChildDropped(7)
	child, ok := space.Focus.Child()
	require.True(t, ok)
	assert.Equal(t, uint64(5), child)
}
