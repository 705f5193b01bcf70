// Package component implements Space, the logical container node of the
// broker's component tree, which owns a focus state machine over its
// children. Hosted processes have no type here; pkg/broker tracks them
// as registry connections.
package component

import "github.com/ccanvas/ccanvas/pkg/discrim"

// Focus is a space's focus state: either the space itself (This) or one
// specific child subtree (Children(id)).
type Focus struct {
	hasChild bool
	child    uint64
}

// This builds the "space itself is focused" state.
func This() Focus { return Focus{} }

// OnChild builds the "one child subtree is focused" state.
func OnChild(id uint64) Focus { return Focus{hasChild: true, child: id} }

// IsThis reports whether the space itself holds focus.
func (f Focus) IsThis() bool { return !f.hasChild }

// Child returns the focused child's id, if any.
func (f Focus) Child() (uint64, bool) { return f.child, f.hasChild }

// Delivery is the side effects a FocusAt transition performs against
// the rest of the broker: sending Focus/Unfocus events to a child and
// recursively delivering a re-targeted FocusAt into it.
type Delivery interface {
	SendFocus(child uint64)
	SendUnfocus(child uint64)
	DeliverFocusAt(child uint64, target discrim.Discriminator)
}

// Space is one container node of the component tree. Self is this
// space's own discriminator; Focus is its current focus state.
type Space struct {
	Self  discrim.Discriminator
	Focus Focus
}

// NewSpace builds a space at self, initially focused on itself.
func NewSpace(self discrim.Discriminator) *Space {
	return &Space{Self: self, Focus: This()}
}

// FocusAt runs one of the four transitions of the focus state machine
// and returns the discriminator it focused: target, or s.Self when
// target is s.Self or not under this space. No global focused
// discriminator is kept; pkg/broker discards this return value.
func (s *Space) FocusAt(target discrim.Discriminator, d Delivery) discrim.Discriminator {
	if target.Equal(s.Self) {
		if child, ok := s.Focus.Child(); ok {
			d.SendUnfocus(child)
			s.Focus = This()
		}
		return s.Self
	}

	nextHop, ok := target.ImmediateChildOf(s.Self)
	if !ok {
		// target is not under this space at all; nothing to do.
		return s.Self
	}

	if current, ok := s.Focus.Child(); ok && current == nextHop {
		// already focused on the child the target descends through:
		// forward unchanged, no Focus/Unfocus traffic at this level.
		d.DeliverFocusAt(nextHop, target)
		return target
	}

	if current, ok := s.Focus.Child(); ok {
		d.SendUnfocus(current)
	}
	s.Focus = OnChild(nextHop)
	d.DeliverFocusAt(nextHop, target)
	d.SendFocus(nextHop)
	return target
}

// ChildDropped reverts focus to This if the dropped child held it.
func (s *Space) ChildDropped(id uint64) {
	if child, ok := s.Focus.Child(); ok && child == id {
		s.Focus = This()
	}
}
