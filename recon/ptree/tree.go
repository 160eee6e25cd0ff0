// Package ptree holds a binary hash tree that is built one level at a time
// over an ordered leaf sequence. Only the current top level, the frontier, is
// kept; lower levels are reachable through node children.
package ptree

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spacemeshos/gluon/common/types"
	"github.com/spacemeshos/gluon/hash"
)

var (
	// ErrPairMismatch is returned when correct pairs can not replace the
	// locally misplaced ones one for one.
	ErrPairMismatch = errors.New("ptree: pair mismatch")
	// ErrUnknownValue is returned when a pair refers to a value that is not on
	// the frontier.
	ErrUnknownValue = errors.New("ptree: unknown value")
)

// Pair is two sibling values, left first.
type Pair [2]types.Hash32

type node struct {
	value       types.Hash32
	left, right *node
}

func leaf(v types.Hash32) *node {
	return &node{value: v}
}

func null() *node {
	return &node{value: types.EmptyHash32}
}

func parent(left, right *node) *node {
	return &node{
		value: hash.Sum(left.value[:], right.value[:]),
		left:  left,
		right: right,
	}
}

func (n *node) isNull() bool {
	return n.left == nil && n.value == types.EmptyHash32
}

func (n *node) appendLeaves(out []types.Hash32) []types.Hash32 {
	switch {
	case n.isNull():
		return out
	case n.left == nil:
		return append(out, n.value)
	default:
		return n.right.appendLeaves(n.left.appendLeaves(out))
	}
}

// Tree is the frontier of a partially built hash tree.
type Tree struct {
	top []*node
}

// FromLeaves wraps values as leaves, padding odd sequences with a null leaf.
func FromLeaves(values []types.Hash32) *Tree {
	t := &Tree{top: make([]*node, 0, len(values)+1)}
	for _, v := range values {
		t.top = append(t.top, leaf(v))
	}
	t.Pad()
	return t
}

// Width returns the frontier length.
func (t *Tree) Width() int { return len(t.top) }

// Folded reports whether the frontier is down to the root.
func (t *Tree) Folded() bool { return len(t.top) <= 1 }

// Pad appends a null node when the frontier has odd length.
func (t *Tree) Pad() {
	if len(t.top)%2 == 1 {
		t.top = append(t.top, null())
	}
}

// AddLevel replaces the frontier with the parents of consecutive pairs.
func (t *Tree) AddLevel() {
	t.Pad()
	next := make([]*node, len(t.top)/2)
	for i := range next {
		next[i] = parent(t.top[2*i], t.top[2*i+1])
	}
	t.top = next
}

// Values returns the frontier values in order.
func (t *Tree) Values() []types.Hash32 {
	out := make([]types.Hash32, len(t.top))
	for i, n := range t.top {
		out[i] = n.value
	}
	return out
}

// Pairs groups the frontier values into consecutive sibling pairs. A trailing
// unpaired value is left out.
func (t *Tree) Pairs() []Pair {
	out := make([]Pair, len(t.top)/2)
	for i := range out {
		out[i] = Pair{t.top[2*i].value, t.top[2*i+1].value}
	}
	return out
}

// Leaves expands the frontier back into leaf values, null leaves excluded.
func (t *Tree) Leaves() []types.Hash32 {
	var out []types.Hash32
	for _, n := range t.top {
		out = n.appendLeaves(out)
	}
	return out
}

// Root folds a copy of the frontier values up to the root. The frontier is not
// modified. The root of an empty tree is the null value.
func (t *Tree) Root() types.Hash32 {
	if len(t.top) == 1 {
		return t.top[0].value
	}
	return RootOf(t.Values())
}

// RootOf computes the root of the tree built over leaves.
func RootOf(leaves []types.Hash32) types.Hash32 {
	if len(leaves) == 0 {
		return types.EmptyHash32
	}
	level := slices.Clone(leaves)
	for {
		if len(level)%2 == 1 {
			level = append(level, types.EmptyHash32)
		}
		for i := 0; i < len(level)/2; i++ {
			level[i] = hash.Sum(level[2*i][:], level[2*i+1][:])
		}
		level = level[:len(level)/2]
		if len(level) == 1 {
			return level[0]
		}
	}
}

// ReconcileOrder repairs sibling pairing given the pairs the peer has and
// this frontier lacks. Every local pair that holds a value of a correct pair
// is erroneous; erroneous pairs are replaced by correct pairs in the order
// both are listed, then pairs are sorted by the frontier position of their
// right value. Only the frontier order changes, no node is created.
func (t *Tree) ReconcileOrder(correct []Pair) error {
	if len(correct) == 0 {
		return nil
	}
	if len(t.top)%2 == 1 {
		return fmt.Errorf("%w: odd frontier width %d", ErrPairMismatch, len(t.top))
	}
	position := make(map[types.Hash32]int, len(t.top))
	for i, n := range t.top {
		position[n.value] = i
	}
	displaced := make(map[types.Hash32]struct{}, 2*len(correct))
	for _, p := range correct {
		for _, v := range p {
			if _, ok := position[v]; !ok {
				return fmt.Errorf("%w: %s", ErrUnknownValue, v.ShortString())
			}
			displaced[v] = struct{}{}
		}
	}
	pairs := t.Pairs()
	var erroneous []int
	for i, p := range pairs {
		_, l := displaced[p[0]]
		_, r := displaced[p[1]]
		if l || r {
			erroneous = append(erroneous, i)
		}
	}
	if len(erroneous) != len(correct) {
		return fmt.Errorf("%w: %d erroneous pairs for %d correct pairs",
			ErrPairMismatch, len(erroneous), len(correct))
	}
	for i, idx := range erroneous {
		pairs[idx] = correct[i]
	}
	slices.SortStableFunc(pairs, func(a, b Pair) int {
		return position[a[1]] - position[b[1]]
	})
	top := make([]*node, 0, len(t.top))
	used := make([]bool, len(t.top))
	for _, p := range pairs {
		for _, v := range p {
			i := position[v]
			if used[i] {
				return fmt.Errorf("%w: value %s paired twice", ErrPairMismatch, v.ShortString())
			}
			used[i] = true
			top = append(top, t.top[i])
		}
	}
	t.top = top
	return nil
}
