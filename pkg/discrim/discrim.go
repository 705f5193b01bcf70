// Package discrim implements the discriminator: the ordered id path that
// names a node in the broker's component tree.
package discrim

import (
	"fmt"
	"strconv"
	"strings"
)

// Discriminator is an ordered sequence of ids naming a node in the
// component tree. The empty sequence names the implicit master (id 0).
// A child's discriminator extends its parent's by exactly one element.
type Discriminator []uint64

// Root is the discriminator of the master.
func Root() Discriminator {
	return Discriminator{}
}

// Child returns a new discriminator extending d by one element.
func (d Discriminator) Child(id uint64) Discriminator {
	out := make(Discriminator, len(d)+1)
	copy(out, d)
	out[len(d)] = id
	return out
}

// IsPrefixOf reports whether d names an ancestor of (or is equal to) other.
func (d Discriminator) IsPrefixOf(other Discriminator) bool {
	if len(d) > len(other) {
		return false
	}
	for i, v := range d {
		if other[i] != v {
			return false
		}
	}
	return true
}

// ImmediateChildOf returns the element of d that follows other, i.e. the
// next hop from other towards d, and true if other is a strict prefix
// of d.
func (d Discriminator) ImmediateChildOf(other Discriminator) (uint64, bool) {
	if !other.IsPrefixOf(d) || len(d) <= len(other) {
		return 0, false
	}
	return d[len(other)], true
}

// Parent returns the discriminator of d's parent. Calling Parent on the
// root returns the root unchanged, matching the convention that the
// root's own parent is itself.
func (d Discriminator) Parent() Discriminator {
	if len(d) == 0 {
		return Root()
	}
	out := make(Discriminator, len(d)-1)
	copy(out, d[:len(d)-1])
	return out
}

// Equal reports whether two discriminators name the same node.
func (d Discriminator) Equal(other Discriminator) bool {
	if len(d) != len(other) {
		return false
	}
	for i, v := range d {
		if other[i] != v {
			return false
		}
	}
	return true
}

// String renders a discriminator as a dotted path, e.g. "1.4.2". The root
// renders as "".
func (d Discriminator) String() string {
	parts := make([]string, len(d))
	for i, v := range d {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, ".")
}

// Parse parses a dotted path produced by String back into a Discriminator.
func Parse(s string) (Discriminator, error) {
	if s == "" {
		return Root(), nil
	}
	parts := strings.Split(s, ".")
	out := make(Discriminator, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("discrim: invalid component %q in %q: %w", p, s, err)
		}
		out[i] = v
	}
	return out, nil
}
